package localstore

import "fmt"

// NotFoundError indicates no stored row carries the requested data id.
type NotFoundError struct {
	Path   string
	DataID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no item found for data id %q in %s", e.DataID, e.Path)
}
