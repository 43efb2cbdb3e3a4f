package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapAndClassOf(t *testing.T) {
	base := errors.New("signature verification failed")
	wrapped := WrapIntegrity(base)

	class, ok := ClassOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, Integrity, class)
	assert.True(t, errors.Is(wrapped, base))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, WrapPolicy(nil))
}

func TestIsMatchesClassExactly(t *testing.T) {
	err := WrapTimeout(errors.New("dht query timed out"))
	assert.True(t, Is(err, Timeout))
	assert.False(t, Is(err, Policy))
}

func TestClassOfUnclassifiedErrorReportsFalse(t *testing.T) {
	_, ok := ClassOf(errors.New("plain error"))
	assert.False(t, ok)
}

func TestPenalizesReputation(t *testing.T) {
	assert.True(t, Integrity.PenalizesReputation())
	assert.True(t, Policy.PenalizesReputation())
	assert.False(t, Transport.PenalizesReputation())
	assert.False(t, Resource.PenalizesReputation())
	assert.False(t, Timeout.PenalizesReputation())
	assert.False(t, InvalidInput.PenalizesReputation())
}

func TestErrorMessageIncludesClassAndUnderlyingText(t *testing.T) {
	err := WrapResource(errors.New("outbox at capacity"))
	assert.Contains(t, err.Error(), "resource")
	assert.Contains(t, err.Error(), "outbox at capacity")
}
