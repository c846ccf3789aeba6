package fuse

import "fmt"

// DimensionMismatchError reports arrays whose shapes or coordinates cannot
// merge. It is fatal for the merge that raised it, never for the batch.
type DimensionMismatchError struct {
	Op   string
	Want string
	Got  string
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: dimension mismatch: want %s, got %s", e.Op, e.Want, e.Got)
}
