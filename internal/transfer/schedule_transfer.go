package transfer

import "github.com/maheshrc27/postflow/internal/models"

type PostInput struct {
	ImageURL     string `json:"image_url"`
	Caption      string `json:"caption"`
	ScheduleDate string `json:"schedule_date"`
}

// ScheduleRequest schedules every post on every account.
type ScheduleRequest struct {
	Accounts []models.Account `json:"accounts"`
	Posts    []PostInput      `json:"posts"`
}

type PairFailure struct {
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name"`
	ImageURL    string `json:"image_url"`
	Kind        string `json:"kind"`
	Error       string `json:"error"`
}

type ScheduleResponse struct {
	Succeeded []*models.ScheduledRecord `json:"succeeded"`
	Failed    []PairFailure             `json:"failed"`
}

type EditRequest struct {
	Caption      *string        `json:"caption"`
	ScheduleDate *string        `json:"schedule_date"`
	ImageURL     *string        `json:"image_url"`
	Account      models.Account `json:"account"`
}

type DeleteRequest struct {
	AccessToken string `json:"access_token"`
}
