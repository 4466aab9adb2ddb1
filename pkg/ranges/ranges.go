// Package ranges parses human-typed page range expressions like "1,3-5,7"
// into validated, ordered page selections.
package ranges

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PageIndex is a zero-based page identifier within a document.
type PageIndex int

// Selection is an ordered set of unique page indices, strictly ascending.
type Selection []PageIndex

// ErrEmptyInput is returned when the selection expression is empty.
var ErrEmptyInput = errors.New("empty page range expression")

// EmptyTokenError is returned for empty tokens, e.g. "1,,3" or a trailing comma.
type EmptyTokenError struct {
	Position int // zero-based token position within the expression
}

func (e *EmptyTokenError) Error() string {
	return fmt.Sprintf("empty token at position %d", e.Position)
}

// MalformedTokenError is returned for tokens that are not numbers or ranges.
type MalformedTokenError struct {
	Token string
}

func (e *MalformedTokenError) Error() string {
	return fmt.Sprintf("malformed token %q", e.Token)
}

// OutOfRangeError is returned for page numbers outside [1, pageCount].
type OutOfRangeError struct {
	Page      int
	PageCount int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("page %d out of range [1, %d]", e.Page, e.PageCount)
}

// InvertedRangeError is returned for ranges whose start exceeds their end.
type InvertedRangeError struct {
	Start, End int
}

func (e *InvertedRangeError) Error() string {
	return fmt.Sprintf("inverted range %d-%d", e.Start, e.End)
}

// Parse converts a page range expression into a Selection.
//
// The expression is a comma-separated list of tokens; each token is either a
// single 1-based page number "N" or a range "A-B" (inclusive, A <= B).
// Whitespace around tokens and around the hyphen is ignored. Tokens are
// validated left to right and the first invalid token determines the error;
// no partial result is returned. Duplicate and overlapping tokens are allowed
// and collapse into the final sorted, deduplicated selection.
func Parse(text string, pageCount int) (Selection, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	seen := make(map[int]bool)
	for pos, token := range strings.Split(text, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, &EmptyTokenError{Position: pos}
		}

		start, end, err := parseToken(token, pageCount)
		if err != nil {
			return nil, err
		}
		for p := start; p <= end; p++ {
			seen[p] = true
		}
	}

	// Collapse to 0-based, sorted, unique indices.
	sel := make(Selection, 0, len(seen))
	for p := range seen {
		sel = append(sel, PageIndex(p-1))
	}
	sort.Slice(sel, func(i, j int) bool { return sel[i] < sel[j] })
	return sel, nil
}

// parseToken parses a single token into an inclusive 1-based page interval.
func parseToken(token string, pageCount int) (int, int, error) {
	if before, after, found := strings.Cut(token, "-"); found {
		start, err := parsePage(before)
		if err != nil {
			return 0, 0, &MalformedTokenError{Token: token}
		}
		end, err := parsePage(after)
		if err != nil {
			return 0, 0, &MalformedTokenError{Token: token}
		}
		if start > end {
			return 0, 0, &InvertedRangeError{Start: start, End: end}
		}
		if start < 1 {
			return 0, 0, &OutOfRangeError{Page: start, PageCount: pageCount}
		}
		if end > pageCount {
			return 0, 0, &OutOfRangeError{Page: end, PageCount: pageCount}
		}
		return start, end, nil
	}

	page, err := parsePage(token)
	if err != nil {
		return 0, 0, &MalformedTokenError{Token: token}
	}
	if page < 1 || page > pageCount {
		return 0, 0, &OutOfRangeError{Page: page, PageCount: pageCount}
	}
	return page, page, nil
}

// parsePage parses one side of a token as a 1-based page number.
func parsePage(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

// String renders the selection back as a compact 1-based range expression,
// e.g. Selection{0,1,2,4} -> "1-3,5".
func (s Selection) String() string {
	if len(s) == 0 {
		return ""
	}

	var b strings.Builder
	for i := 0; i < len(s); {
		j := i
		for j+1 < len(s) && s[j+1] == s[j]+1 {
			j++
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		if j == i {
			fmt.Fprintf(&b, "%d", s[i]+1)
		} else {
			fmt.Fprintf(&b, "%d-%d", s[i]+1, s[j]+1)
		}
		i = j + 1
	}
	return b.String()
}
