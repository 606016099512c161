package timeline

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPath            = errors.New("segment path is empty")
	ErrInconsistentOrdering = errors.New("arrive segment does not follow the segment it terminates")
	ErrUnknownKind          = errors.New("unknown direction type")
	ErrBadTime              = errors.New("malformed timestamp")
	ErrNoSegments           = errors.New("route has no segments")
)

// ParseError reports which raw direction could not be turned into a segment.
type ParseError struct {
	Index int
	Type  string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("direction %d (%s): %v", e.Index, e.Type, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
