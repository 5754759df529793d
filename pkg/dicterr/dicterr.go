// Package dicterr defines the error taxonomy shared by every stage of a dictionary build.
package dicterr

import (
	"errors"
	"fmt"
)

// Kind classifies a build failure.
type Kind int

const (
	// KindParse is a malformed input record.
	KindParse Kind = iota + 1
	// KindBuild is an inconsistent or ambiguous set of entries.
	KindBuild
	// KindRange is a context ID outside the configured bounds.
	KindRange
	// KindIO is a read or write failure, including corrupt artifacts.
	KindIO
	// KindVersion is an artifact format mismatch on load.
	KindVersion
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse error"
	case KindBuild:
		return "build error"
	case KindRange:
		return "range error"
	case KindIO:
		return "io error"
	case KindVersion:
		return "version error"
	}
	return "unknown error"
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrParse   = &Error{Kind: KindParse}
	ErrBuild   = &Error{Kind: KindBuild}
	ErrRange   = &Error{Kind: KindRange}
	ErrIO      = &Error{Kind: KindIO}
	ErrVersion = &Error{Kind: KindVersion}
)

// Pos is the location of a source record.
type Pos struct {
	File string
	Line int
}

func (p Pos) String() string {
	switch {
	case p.File == "" && p.Line == 0:
		return ""
	case p.File == "":
		return fmt.Sprintf("line %d", p.Line)
	case p.Line == 0:
		return p.File
	}
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

// IsZero reports whether no location is known.
func (p Pos) IsZero() bool { return p.File == "" && p.Line == 0 }

// Error is a classified build error.
type Error struct {
	Kind Kind
	Pos  Pos
	// Op names the stage or field that failed, e.g. "cost" or "write artifact".
	Op  string
	Msg string
	Err error
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if !e.Pos.IsZero() {
		s += " at " + e.Pos.String()
	}
	if e.Op != "" {
		s += ": " + e.Op
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by Kind so errors.Is(err, ErrParse) works for any parse error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Pos.IsZero() && t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Parse returns a parse error at pos.
func Parse(pos Pos, op, format string, args ...any) error {
	return &Error{Kind: KindParse, Pos: pos, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Build returns a build error at pos.
func Build(pos Pos, format string, args ...any) error {
	return &Error{Kind: KindBuild, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Range returns a range error for an ID that exceeds max.
func Range(pos Pos, op string, id, max int) error {
	return &Error{Kind: KindRange, Pos: pos, Op: op, Msg: fmt.Sprintf("id %d exceeds maximum %d", id, max)}
}

// IO wraps err as an io error for op.
func IO(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) && de.Kind == KindIO {
		return err
	}
	return &Error{Kind: KindIO, Op: op, Err: err}
}

// Corrupt returns an io error describing a malformed artifact.
func Corrupt(format string, args ...any) error {
	return &Error{Kind: KindIO, Op: "corrupt artifact", Msg: fmt.Sprintf(format, args...)}
}

// Version returns a version error.
func Version(format string, args ...any) error {
	return &Error{Kind: KindVersion, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}
