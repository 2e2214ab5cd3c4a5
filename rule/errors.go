package rule

import (
	"errors"
	"fmt"
)

// ErrMalformedRule is returned (wrapped in a *ParseError) for any rule string
// that cannot be parsed.
var ErrMalformedRule = errors.New("malformed recurrence rule")

// ParseError describes why a rule string was rejected.
type ParseError struct {
	Input  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %q: %s: %v", ErrMalformedRule, e.Input, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %q: %s", ErrMalformedRule, e.Input, e.Reason)
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedRule, e.Err}
	}
	return []error{ErrMalformedRule}
}

func malformed(input, reason string, err error) error {
	return &ParseError{Input: input, Reason: reason, Err: err}
}
