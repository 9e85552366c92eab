package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maheshrc27/postflow/internal/transfer"
)

var (
	ErrConfig           = errors.New("configuration error")
	ErrInvalidAccount   = errors.New("invalid account")
	ErrAuthExpired      = errors.New("access token expired")
	ErrProviderRejected = errors.New("provider rejected request")
	ErrClaimConflict    = errors.New("pending item claimed by another worker")
	ErrOrphanRecord     = errors.New("scheduled record no longer exists")
	ErrRecordNotFound   = errors.New("scheduled record not found")
	ErrNotEditable      = errors.New("scheduled record can no longer be changed")
)

// PublishError carries the provider's code and message alongside the
// error class. errors.Is matches it against the class sentinel.
type PublishError struct {
	Kind    error
	Code    int
	Subcode int
	Message string
}

func (e *PublishError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (code %d)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PublishError) Is(target error) bool {
	return target == e.Kind
}

func (e *PublishError) Unwrap() error {
	return e.Kind
}

func configError(format string, args ...any) error {
	return &PublishError{Kind: ErrConfig, Message: fmt.Sprintf(format, args...)}
}

func rejected(format string, args ...any) error {
	return &PublishError{Kind: ErrProviderRejected, Message: fmt.Sprintf(format, args...)}
}

const (
	graphCodeInvalidToken   = 190
	graphSubcodeSessionGone = 463
	graphSubcodeInvalidated = 467
)

// ClassifyGraphError maps a Graph API error envelope onto the publish
// error classes.
func ClassifyGraphError(ge *transfer.GraphError) error {
	if ge == nil {
		return rejected("empty error response")
	}
	msg := ge.Message
	if msg == "" {
		msg = ge.ErrorUserMsg
	}

	kind := ErrProviderRejected
	lower := strings.ToLower(msg)
	switch {
	case ge.Code == graphCodeInvalidToken,
		ge.ErrorSubcode == graphSubcodeSessionGone,
		ge.ErrorSubcode == graphSubcodeInvalidated,
		strings.Contains(lower, "session has expired"),
		strings.Contains(lower, "access token has expired"):
		kind = ErrAuthExpired
	case ge.Code == 100 && strings.Contains(lower, "does not exist"):
		kind = ErrInvalidAccount
	}

	return &PublishError{Kind: kind, Code: ge.Code, Subcode: ge.ErrorSubcode, Message: msg}
}

// ErrorKind names the class of err for reporting.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrInvalidAccount):
		return "invalid_account"
	case errors.Is(err, ErrAuthExpired):
		return "auth_expired"
	case errors.Is(err, ErrProviderRejected):
		return "provider_rejected"
	case errors.Is(err, ErrClaimConflict):
		return "claim_conflict"
	case errors.Is(err, ErrOrphanRecord):
		return "orphan_record"
	case errors.Is(err, ErrRecordNotFound):
		return "not_found"
	case errors.Is(err, ErrNotEditable):
		return "not_editable"
	}
	return "store"
}
