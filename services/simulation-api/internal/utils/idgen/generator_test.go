package idgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	id := NewID(PrefixRun)

	assert.Len(t, id, len("run_")+32)
	assert.True(t, HasPrefix(id, PrefixRun))
	assert.False(t, HasPrefix(id, PrefixPersona))
	assert.NotEqual(t, id, NewID(PrefixRun))
}

func TestHasPrefix_RejectsMalformed(t *testing.T) {
	assert.False(t, HasPrefix("run_short", PrefixRun))
	assert.False(t, HasPrefix("run", PrefixRun))
	assert.False(t, HasPrefix("", PrefixRun))
}
