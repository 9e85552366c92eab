package transfer

// GraphError is the error envelope the Graph API returns on failure.
type GraphError struct {
	Message        string `json:"message"`
	Type           string `json:"type"`
	Code           int    `json:"code"`
	ErrorSubcode   int    `json:"error_subcode"`
	IsTransient    bool   `json:"is_transient"`
	ErrorUserTitle string `json:"error_user_title"`
	ErrorUserMsg   string `json:"error_user_msg"`
	FbtraceID      string `json:"fbtrace_id"`
}

type GraphIDResponse struct {
	ID      string      `json:"id"`
	PostID  string      `json:"post_id,omitempty"`
	Success bool        `json:"success,omitempty"`
	Error   *GraphError `json:"error,omitempty"`
}

type GraphPageInfo struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Error *GraphError `json:"error,omitempty"`
}
