package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := New(CodeReferenceIntegrity, "entity %q not found", "a")
	assert.True(t, stderrors.Is(err, ErrReferenceIntegrity))
	assert.False(t, stderrors.Is(err, ErrLifecycle))

	wrapped := fmt.Errorf("apply: %w", err)
	assert.True(t, stderrors.Is(wrapped, ErrReferenceIntegrity))
	assert.Equal(t, CodeReferenceIntegrity, CodeOf(wrapped))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.Equal(t, CodeUnknown, CodeOf(stderrors.New("plain")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("disk")
	err := Wrap(CodeInvalidArgument, cause, "decode snapshot")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "decode snapshot: disk", err.Error())
}

func TestWithCopiesMetadata(t *testing.T) {
	base := New(CodeProtocol, "unknown subject")
	a := base.With("subject", "bogus")
	assert.Nil(t, base.Metadata)
	assert.Equal(t, "bogus", a.Metadata["subject"])
}
