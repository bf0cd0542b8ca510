package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_MessageIncludesCauseWhenPresent(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Transient("bid commit failed", cause)
	assert.Equal(t, "bid commit failed: connection refused", err.Error())
}

func TestError_MessageOmitsCauseWhenAbsent(t *testing.T) {
	err := Validation("bid does not meet minimum increment")
	assert.Equal(t, "bid does not meet minimum increment", err.Error())
}

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Internal("invariant violated", cause)
	assert.ErrorIs(t, err, cause)
}

func TestError_ErrorsAsRecoversKind(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", ErrAuctionClosed)

	var derr *Error
	assert.True(t, errors.As(wrapped, &derr))
	assert.Equal(t, KindConflict, derr.Kind)
}

func TestConstructors_SetExpectedKind(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want ErrorKind
	}{
		{"Validation", Validation("x"), KindValidation},
		{"Unauthorized", Unauthorized("x"), KindUnauthorized},
		{"Forbidden", Forbidden("x"), KindForbidden},
		{"NotFound", NotFound("x"), KindNotFound},
		{"Conflict", Conflict("x"), KindConflict},
		{"Transient", Transient("x", nil), KindTransient},
		{"Internal", Internal("x", nil), KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Kind)
		})
	}
}
