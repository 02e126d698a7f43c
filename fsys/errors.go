package fsys

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code classifies a FileError.
type Code int

const (
	Other Code = iota
	NotFound
	AlreadyExists
	NotFile
	NotDirectory
	IsDirectory
	NotEmpty
	BadPath
	ReadOnly
)

var codeNames = map[Code]string{
	Other:         "error",
	NotFound:      "not found",
	AlreadyExists: "already exists",
	NotFile:       "not a file",
	NotDirectory:  "not a directory",
	IsDirectory:   "is a directory",
	NotEmpty:      "directory not empty",
	BadPath:       "bad path",
	ReadOnly:      "read-only filesystem",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// FileError is the error returned by every filesystem operation.
type FileError struct {
	Op   string
	Path string
	Code Code
	Err  error // underlying cause, if any
}

func (e *FileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Code, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Code)
}

func (e *FileError) Unwrap() error { return e.Err }

func fileErr(op, path string, code Code) error {
	return &FileError{Op: op, Path: path, Code: code}
}

func ioErr(op, path string, err error) error {
	return &FileError{Op: op, Path: path, Code: Other, Err: err}
}

// CodeOf returns the code of the FileError inside err, or Other if there is
// none.
func CodeOf(err error) Code {
	var fe *FileError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return Other
}

func IsNotFound(err error) bool      { return err != nil && CodeOf(err) == NotFound }
func IsAlreadyExists(err error) bool { return err != nil && CodeOf(err) == AlreadyExists }
func IsNotFile(err error) bool       { return err != nil && CodeOf(err) == NotFile }
func IsNotDirectory(err error) bool  { return err != nil && CodeOf(err) == NotDirectory }
func IsDirectoryErr(err error) bool  { return err != nil && CodeOf(err) == IsDirectory }
