package monitor

import "fmt"

// DirectoryError reports a watched folder that could not be listed.
type DirectoryError struct {
	Folder string
	Err    error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("list %s: %v", e.Folder, e.Err)
}

func (e *DirectoryError) Unwrap() error { return e.Err }
