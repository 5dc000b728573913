package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	e := New(CodeInvalidArgument, "bad input")
	assert.Equal(t, "[INVALID_ARGUMENT] bad input", e.Error())

	e = NewWithField(CodeInvalidArgument, "bad input", "horizon")
	assert.Equal(t, "[INVALID_ARGUMENT] bad input (field: horizon)", e.Error())
}

func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	e := Wrap(cause, CodeInternal, "wrapped")
	assert.ErrorIs(t, e, cause)
}

func TestIs_And_Code(t *testing.T) {
	e := New(CodeNegativeLoad, "negative load")
	assert.True(t, Is(e, CodeNegativeLoad))
	assert.False(t, Is(e, CodeInternal))
	assert.Equal(t, CodeNegativeLoad, Code(e))

	plain := errors.New("plain")
	assert.Equal(t, CodeInternal, Code(plain))
}

func TestIsCritical(t *testing.T) {
	crit := NewCritical(CodeTreeProbabilityDrift, "drift")
	assert.True(t, IsCritical(crit))

	warn := New(CodeInvalidArgument, "bad")
	assert.False(t, IsCritical(warn))
}

func TestWithDetailsAndField(t *testing.T) {
	e := New(CodeNegativeLoad, "negative load").
		WithDetails("container", 7).
		WithDetails("day", 3).
		WithField("vol")

	assert.Equal(t, 7, e.Details["container"])
	assert.Equal(t, 3, e.Details["day"])
	assert.Equal(t, "vol", e.Field)
}
