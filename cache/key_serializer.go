package cache

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/goliatone/go-goal-cache/model"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// KeySerializer builds the in-flight registry keys for single and batch count requests.
type KeySerializer interface {
	CountKey(kind model.Kind, id string) string
	BatchKey(ids []string) string
}

// defaultKeySerializer keys single requests by kind and id, and batches by a
// hash over the sorted, deduplicated id set. Two batches share a key only when
// they name exactly the same ids.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// CountKey returns count::<kind>::<id>.
func (s *defaultKeySerializer) CountKey(kind model.Kind, id string) string {
	return strings.Join([]string{"count", string(kind), id}, KeySeparator)
}

// BatchKey returns batch::<n>::<xxhash of the normalized ids>.
func (s *defaultKeySerializer) BatchKey(ids []string) string {
	normalized := NormalizeIDs(ids)

	digest := xxhash.New()
	for _, id := range normalized {
		_, _ = digest.WriteString(id)
		_, _ = digest.WriteString("\x00")
	}

	return strings.Join([]string{"batch", fmt.Sprint(len(normalized)), fmt.Sprintf("%016x", digest.Sum64())}, KeySeparator)
}

// NormalizeIDs returns a sorted copy of ids without duplicates or blanks.
func NormalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
