package predicate

import (
	"errors"
	"fmt"

	"github.com/hugr-lab/conntrack-airport/conntrack"
)

var (
	// ErrParse matches every *ParseError.
	ErrParse = errors.New("predicate parse error")

	// ErrFilterBuild matches every *BuildError.
	ErrFilterBuild = errors.New("predicate filter build error")
)

// maxInputEcho bounds how much of the input a ParseError repeats.
const maxInputEcho = 256

// ParseError reports predicate input that could not be parsed.
type ParseError struct {
	Input string
	Err   error
}

func newParseError(input string, err error) *ParseError {
	if len(input) > maxInputEcho {
		input = input[:maxInputEcho] + "..."
	}
	return &ParseError{Input: input, Err: err}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse predicate %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// BuildError reports a directional filter that failed to finalize. It
// indicates a compiler defect rather than an unsupported predicate.
type BuildError struct {
	Direction conntrack.Direction
	Err       error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s filter: %v", e.Direction, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

func (e *BuildError) Is(target error) bool { return target == ErrFilterBuild }
