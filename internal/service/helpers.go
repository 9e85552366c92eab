package service

import (
	"encoding/json"
	"time"
)

func decodeJSON(body string, out any) error {
	return json.Unmarshal([]byte(body), out)
}

// ClampSchedule moves a requested instant forward to the earliest time the
// provider will accept. The result is never before now+minLead.
func ClampSchedule(requested, now time.Time, minLead time.Duration) int64 {
	earliest := now.Add(minLead).Unix()
	if requested.IsZero() || requested.Unix() < earliest {
		return earliest
	}
	return requested.Unix()
}
