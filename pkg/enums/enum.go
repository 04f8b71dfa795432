// Package enums holds the closed string sets persisted in Postgres and
// carried on the wire. Each type exposes IsValid and a Parse constructor.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

// parse resolves raw against set, ignoring case and surrounding space.
func parse[T ~string](set []T, kind, raw string) (T, error) {
	normalized := T(strings.ToLower(strings.TrimSpace(raw)))
	if slices.Contains(set, normalized) {
		return normalized, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
