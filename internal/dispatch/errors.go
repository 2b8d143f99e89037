package dispatch

import (
	"errors"
	"fmt"
)

// ErrPrinterUnset is returned when no printer has been selected.
var ErrPrinterUnset = errors.New("no printer selected")

// ErrNoPrintableContent means a file produced zero label blocks.
var ErrNoPrintableContent = errors.New("no printable content")

// SplitError reports a file that produced zero blocks. It matches
// ErrNoPrintableContent with errors.Is.
type SplitError struct {
	Path string
}

func (e *SplitError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, ErrNoPrintableContent)
}

func (e *SplitError) Unwrap() error { return ErrNoPrintableContent }

// FileAccessError reports a failure to read or delete a source file.
type FileAccessError struct {
	Path string
	Op   string // "read" or "delete"
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error { return e.Err }
