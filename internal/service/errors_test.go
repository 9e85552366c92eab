package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/stretchr/testify/assert"
)

func TestClassifyGraphError(t *testing.T) {
	cases := []struct {
		name string
		in   *transfer.GraphError
		want error
	}{
		{"invalid token code", &transfer.GraphError{Code: 190, Message: "Invalid OAuth access token"}, ErrAuthExpired},
		{"session subcode", &transfer.GraphError{Code: 102, ErrorSubcode: 463, Message: "x"}, ErrAuthExpired},
		{"session message", &transfer.GraphError{Code: 10, Message: "Session has expired on Tuesday"}, ErrAuthExpired},
		{"expired message", &transfer.GraphError{Code: 1, Message: "The access token has expired"}, ErrAuthExpired},
		{"missing object", &transfer.GraphError{Code: 100, Message: "Object with ID '0' does not exist"}, ErrInvalidAccount},
		{"other", &transfer.GraphError{Code: 9004, Message: "Only photo or video can be accepted"}, ErrProviderRejected},
		{"nil", nil, ErrProviderRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, ClassifyGraphError(tc.in), tc.want)
		})
	}
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "auth_expired", ErrorKind(fmt.Errorf("wrap: %w", &PublishError{Kind: ErrAuthExpired})))
	assert.Equal(t, "config", ErrorKind(configError("x")))
	assert.Equal(t, "orphan_record", ErrorKind(fmt.Errorf("item 7: %w", ErrOrphanRecord)))
	assert.Equal(t, "store", ErrorKind(errors.New("disk full")))
	assert.Equal(t, "", ErrorKind(nil))
}
