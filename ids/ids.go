// Package ids defines the identity type shared by goals, notes and accomplishments.
//
// An ID is either temporary (minted locally for a record the server has not
// confirmed yet) or persisted (assigned by the remote store). The distinction is
// carried as a field so callers branch on IsTemporary instead of inspecting
// string prefixes. The prefix only exists on the wire form.
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// TempPrefix marks the wire form of a temporary identity.
const TempPrefix = "temp-"

// ID identifies a record either by a local temporary token or by its server id.
type ID struct {
	value string
	temp  bool
}

// NewTemporary mints a unique temporary identity.
func NewTemporary() ID {
	return ID{value: uuid.NewString(), temp: true}
}

// Temporary wraps an existing temporary token.
func Temporary(token string) ID {
	return ID{value: token, temp: true}
}

// Persisted wraps a server assigned id.
func Persisted(serverID string) ID {
	return ID{value: serverID}
}

// Parse converts the wire form into an ID.
func Parse(s string) ID {
	if token, ok := strings.CutPrefix(s, TempPrefix); ok {
		return Temporary(token)
	}
	return Persisted(s)
}

// IsTemporary reports whether the id was generated locally and is not yet confirmed.
func (id ID) IsTemporary() bool {
	return id.temp
}

// IsZero reports whether the id is unset.
func (id ID) IsZero() bool {
	return id.value == "" && !id.temp
}

// Value returns the raw token or server id without the temporary prefix.
func (id ID) Value() string {
	return id.value
}

// String returns the wire form.
func (id ID) String() string {
	if id.temp {
		return TempPrefix + id.value
	}
	return id.value
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	*id = Parse(string(text))
	return nil
}

// Strings renders a slice of ids in wire form.
func Strings(list []ID) []string {
	out := make([]string, len(list))
	for i, id := range list {
		out[i] = id.String()
	}
	return out
}
