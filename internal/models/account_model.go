package models

import (
	"fmt"
	"strings"
)

type PlatformKind string

const (
	PlatformDirectPublish   PlatformKind = "direct_publish"    // facebook pages
	PlatformTwoPhasePublish PlatformKind = "two_phase_publish" // instagram business accounts
)

// ParsePlatformKind accepts the canonical kinds and the platform names
// accounts are usually exported with.
func ParsePlatformKind(s string) (PlatformKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(PlatformDirectPublish), "facebook", "page":
		return PlatformDirectPublish, nil
	case string(PlatformTwoPhasePublish), "instagram":
		return PlatformTwoPhasePublish, nil
	}
	return "", fmt.Errorf("unknown platform kind %q", s)
}

func (k *PlatformKind) UnmarshalText(text []byte) error {
	parsed, err := ParsePlatformKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (k PlatformKind) MarshalText() ([]byte, error) {
	return []byte(k), nil
}

// Account is a publishing destination owned by the operator. Tokens are
// supplied per request and never stored on the account itself.
type Account struct {
	ID              string       `json:"id" toml:"id"`
	DisplayName     string       `json:"display_name" toml:"display_name"`
	Platform        PlatformKind `json:"platform" toml:"platform"`
	AccessToken     string       `json:"access_token" toml:"access_token"`
	ParentAccountID string       `json:"parent_account_id,omitempty" toml:"parent_account_id"`
}

// HasValidID is false for the empty and "0" ids the account pickers emit
// for unlinked destinations.
func (a Account) HasValidID() bool {
	id := strings.TrimSpace(a.ID)
	return id != "" && id != "0"
}

// Destination is the closed set of publish targets. Exactly one of the
// concrete types below implements it per platform kind.
type Destination interface {
	destination()
}

type DirectPublishAccount struct{ Account }

type TwoPhasePublishAccount struct{ Account }

func (DirectPublishAccount) destination()   {}
func (TwoPhasePublishAccount) destination() {}

func (a Account) Destination() (Destination, error) {
	switch a.Platform {
	case PlatformDirectPublish:
		return DirectPublishAccount{a}, nil
	case PlatformTwoPhasePublish:
		return TwoPhasePublishAccount{a}, nil
	}
	return nil, fmt.Errorf("account %s: unknown platform kind %q", a.ID, a.Platform)
}
