package recman

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an object id is unknown or the record
	// it named has been removed. Callers can treat this as a normal
	// not-found condition.
	ErrNotFound = errors.New("record not found")

	// ErrFormat is returned when a fixed-size buffer is too short or
	// otherwise malformed during id or pointer decoding.
	ErrFormat = errors.New("malformed fixed-size buffer")

	// ErrCorrupt is returned when a page header disagrees with its slot
	// directory. This is fatal: no automatic repair is attempted and the
	// engine must not be trusted with further writes.
	ErrCorrupt = errors.New("page corruption detected")
)

// ContractError reports a strategy that broke its contract: an unusable
// page returned from PageForRecord, or a stale PageInfo passed through a
// lifecycle hook. It is a programming-error class, not a runtime
// condition to retry, and is raised as a panic by VerifyStrategy.
type ContractError struct {
	Op     string
	PageID PageID
	Detail string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("strategy contract violation in %s (page %d): %s",
		e.Op, e.PageID, e.Detail)
}
