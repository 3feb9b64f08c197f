package ethereum

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// TraceAddress is the path from the transaction root to one node of the
// execution call tree, e.g. []int{0, 1, 2}. Ordering traces by their
// TraceAddress component-wise reconstructs the execution traversal order
// within one transaction.
type TraceAddress []int

// String returns the canonical comma-joined form, e.g. "0,1,2". The root
// trace has an empty path and renders as "".
func (ta TraceAddress) String() string {
	parts := make([]string, len(ta))
	for i, component := range ta {
		parts[i] = strconv.Itoa(component)
	}

	return strings.Join(parts, ",")
}

// SortKey returns a zero-padded representation that sorts correctly as a
// plain string, so that "2" orders before "10".
func (ta TraceAddress) SortKey() string {
	parts := make([]string, len(ta))
	for i, component := range ta {
		parts[i] = fmt.Sprintf("%05d", component)
	}

	return strings.Join(parts, ",")
}

// Compare orders two trace addresses component-wise numerically. A prefix
// orders before any of its descendants.
func (ta TraceAddress) Compare(other TraceAddress) int {
	for i := 0; i < len(ta) && i < len(other); i++ {
		if ta[i] != other[i] {
			if ta[i] < other[i] {
				return -1
			}

			return 1
		}
	}

	switch {
	case len(ta) < len(other):
		return -1
	case len(ta) > len(other):
		return 1
	default:
		return 0
	}
}

// ParseTraceAddress is the inverse of TraceAddress.String.
func ParseTraceAddress(s string) (TraceAddress, error) {
	if s == "" {
		return TraceAddress{}, nil
	}

	parts := strings.Split(s, ",")
	ta := make(TraceAddress, len(parts))

	for i, part := range parts {
		component, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid trace address %q", s)
		}

		ta[i] = component
	}

	return ta, nil
}

// CompareTraceAddressStrings orders two canonical trace address strings
// numerically. Unparseable addresses fall back to plain string comparison.
func CompareTraceAddressStrings(a, b string) int {
	taA, errA := ParseTraceAddress(a)
	taB, errB := ParseTraceAddress(b)

	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}

	return taA.Compare(taB)
}
