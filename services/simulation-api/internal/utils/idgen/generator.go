package idgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Public ID prefixes.
const (
	PrefixPersona      = "persona"
	PrefixRun          = "run"
	PrefixConversation = "conv"
	PrefixMessage      = "msg"
)

// NewID returns "<prefix>_<32 hex chars>" backed by a random UUID.
func NewID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// HasPrefix reports whether id was generated with prefix.
func HasPrefix(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"_")
	return ok && len(rest) == 32
}
