package semjoin

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
)

var (
	// ErrColumnNotFound is matched by errors.Is for every *ColumnNotFoundError.
	ErrColumnNotFound = errors.New("column not found")

	// ErrJoinColumnCountMismatch is matched by errors.Is for every
	// *JoinColumnCountMismatchError.
	ErrJoinColumnCountMismatch = errors.New("join column count mismatch")

	// ErrNoJoinColumns is returned when neither On nor LeftOn/RightOn is set.
	ErrNoJoinColumns = errors.New("must specify On or both LeftOn and RightOn")
)

// ColumnNotFoundError reports a join column absent from a view.
type ColumnNotFoundError struct {
	Side      string // "left", "right" or the view kind
	Column    string
	Available []string
}

func (e *ColumnNotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "column '%s' not found in %s dataset; available columns: [%s]",
		e.Column, e.Side, strings.Join(e.Available, ", "))
	if s := suggestColumn(e.Column, e.Available); s != "" {
		fmt.Fprintf(&b, " (did you mean '%s'?)", s)
	}
	return b.String()
}

func (e *ColumnNotFoundError) Is(target error) bool {
	return target == ErrColumnNotFound
}

// JoinColumnCountMismatchError reports leftOn/rightOn lists of unequal arity.
type JoinColumnCountMismatchError struct {
	Left  int
	Right int
}

func (e *JoinColumnCountMismatchError) Error() string {
	return fmt.Sprintf("leftOn has %d columns but rightOn has %d; they must have the same length", e.Left, e.Right)
}

func (e *JoinColumnCountMismatchError) Is(target error) bool {
	return target == ErrJoinColumnCountMismatch
}

// suggestColumn returns the closest available column name by fuzzy
// subsequence match, or "" when nothing is close.
func suggestColumn(name string, available []string) string {
	if name == "" || len(available) == 0 {
		return ""
	}
	lowered := make([]string, len(available))
	for i, a := range available {
		lowered[i] = strings.ToLower(a)
	}
	matches := fuzzy.Find(strings.ToLower(name), lowered)
	if len(matches) > 0 {
		return available[matches[0].Index]
	}
	// The column may be longer than the candidate ("customer_id" vs "cust_id"),
	// so try the reverse direction too.
	best, bestScore := "", 0.0
	for i, a := range lowered {
		if sim := stringSimilarity(strings.ToLower(name), a); sim > bestScore {
			best, bestScore = available[i], sim
		}
	}
	if bestScore >= 0.5 {
		return best
	}
	return ""
}
