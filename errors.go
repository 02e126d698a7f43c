package lfstore

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Error is returned by every Store operation. At most one of the kind flags
// is normally set, except for entries of an unknown kind which are reported
// as both NotDirectory and NotBlob. With no flag set the failure came from
// the underlying filesystem and Err holds its cause.
type Error struct {
	ID           string
	NotFound     bool // no item has this id
	NotBlob      bool // the item is not a blob
	NotFile      bool // the item is not a file
	NotDirectory bool // the item is not a folder
	Message      string
	Err          error
}

// ErrReservedAttr is the cause of an Error when a caller tries to read or
// write an attribute name the store keeps for itself.
var ErrReservedAttr = errors.New("reserved attribute name")

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("lfstore")
	if e.ID != "" {
		b.WriteString(" " + e.ID)
	}
	for _, k := range []struct {
		set  bool
		text string
	}{
		{e.NotFound, "not found"},
		{e.NotBlob, "not a blob"},
		{e.NotFile, "not a file"},
		{e.NotDirectory, "not a directory"},
	} {
		if k.set {
			b.WriteString(": " + k.text)
		}
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

// Cause returns the underlying error, for errors.Cause.
func (e *Error) Cause() error { return e.Err }

// Unwrap returns the underlying error, for errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Err }

func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// IsNotFound returns true if err says the id has no item.
func IsNotFound(err error) bool {
	e := asError(err)
	return e != nil && e.NotFound
}

// IsNotBlob returns true if err says the item is there but is not a blob.
func IsNotBlob(err error) bool {
	e := asError(err)
	return e != nil && e.NotBlob
}

// IsNotFile returns true if err says the item is a folder where a file
// was expected.
func IsNotFile(err error) bool {
	e := asError(err)
	return e != nil && e.NotFile
}

// IsNotDirectory returns true if err says the item is a file where a
// folder was expected.
func IsNotDirectory(err error) bool {
	e := asError(err)
	return e != nil && e.NotDirectory
}

// IsReservedAttr returns true if err was caused by a reserved attribute name.
func IsReservedAttr(err error) bool {
	return errors.Cause(err) == ErrReservedAttr
}

func notFound(id string, cause error) error {
	return &Error{ID: id, NotFound: true, Err: cause}
}

func wrapErr(id string, err error, format string, args ...interface{}) error {
	return &Error{ID: id, Message: fmt.Sprintf(format, args...), Err: err}
}
