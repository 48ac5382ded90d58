package practice

import (
	"errors"
	"fmt"
)

var (
	ErrProviderFailure = errors.New("speech provider failure")
	ErrInvalidRequest  = errors.New("invalid practice request")
)

type UnitKind string

const (
	UnitWord     UnitKind = "word"
	UnitSentence UnitKind = "sentence"
)

// UnitError reports which word or sentence stopped a track build. Index is
// the zero-based position in processing order (after any shuffle).
type UnitError struct {
	Kind  UnitKind
	Index int
	Text  string
	Err   error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("%s %d %q: %v", e.Kind, e.Index+1, e.Text, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
