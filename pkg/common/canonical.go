package common

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// CanonicalID normalizes any parseable UUID form (hyphenated, hex-32,
// urn:uuid:, braced) to its canonical lowercase 32-character hex form.
func CanonicalID(raw string) (string, error) {
	u, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid id %q: %w", raw, err)
	}
	return toHex32(u), nil
}

// NewID generates a fresh random id in canonical hex-32 form.
func NewID() string {
	return toHex32(uuid.New())
}

// IsNilID reports whether a canonical id is the all-zero nil UUID.
func IsNilID(canonical string) bool {
	return canonical == toHex32(uuid.Nil)
}

func toHex32(u uuid.UUID) string {
	return strings.ReplaceAll(u.String(), "-", "")
}

// DedupeIDs normalizes, deduplicates, drops nil/invalid entries and
// returns the remaining ids sorted for deterministic output.
func DedupeIDs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		id, err := CanonicalID(r)
		if err != nil || IsNilID(id) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// DedupeConcepts keeps the first-seen casing of each concept, deduplicated
// case-insensitively, preserving declaration order.
func DedupeConcepts(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		key := strings.ToLower(c)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// IDSetEqual reports whether two already-canonicalized, already-sorted
// id slices contain the same elements.
func IDSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// UnionIDs merges two canonical id slices, deduplicating and sorting.
func UnionIDs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, id := range a {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
