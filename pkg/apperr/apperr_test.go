package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/diagnosis/staybook/pkg/apperr"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := apperr.BusinessRule(apperr.CodeNoRoomAvailable, "no room available")
	wrapped := fmt.Errorf("reserve: %w", base)

	assert.Equal(t, apperr.KindBusinessRule, apperr.KindOf(wrapped))
	assert.True(t, apperr.HasCode(wrapped, apperr.CodeNoRoomAvailable))
	assert.True(t, errors.Is(wrapped, apperr.BusinessRule(apperr.CodeNoRoomAvailable, "")))
	assert.False(t, errors.Is(wrapped, apperr.BusinessRule(apperr.CodeAlreadyRefunded, "")))
}

func TestForeignErrorsAreInternal(t *testing.T) {
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(errors.New("boom")))
	assert.False(t, apperr.HasCode(errors.New("boom"), apperr.CodeNotFound))
}

func TestFieldErrorsAccumulate(t *testing.T) {
	fe := apperr.FieldErrors{}
	assert.NoError(t, fe.Err())

	fe.Add("check_in", "must be today or later")
	fe.Add("check_out", "must be after check-in")
	fe.Add("check_in", "ignored second message")

	err := fe.Err()
	e, ok := apperr.As(err)
	if assert.True(t, ok) {
		assert.Equal(t, apperr.KindValidation, e.Kind)
		assert.Len(t, e.Fields, 2)
		assert.Equal(t, "must be today or later", e.Fields["check_in"])
	}
	assert.Contains(t, err.Error(), "check_out: must be after check-in")
}

func TestConsistencyUnwraps(t *testing.T) {
	cause := errors.New("commit failed")
	err := apperr.Consistency("refund succeeded upstream but local persistence failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, apperr.CodeConsistency, err.Code)
}
