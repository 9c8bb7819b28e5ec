package pager

import (
	"fmt"
	"os"
)

var _ Pager = (*InMem)(nil)

// InMem implements an ephemeral pager using in-memory page buffers.
// Unlike the on-disk pager, any page size is allowed, which makes it
// convenient for exercising page-packing logic with tiny pages.
type InMem struct {
	pageSize int
	readOnly bool
	closed   bool
	pages    [][]byte
}

// Count returns the number of pages allocated so far.
func (mem *InMem) Count() int { return len(mem.pages) }

// PageSize returns the size of one page in bytes.
func (mem *InMem) PageSize() int { return mem.pageSize }

// Alloc allocates 'n' new zeroed pages and returns the id of the first.
func (mem *InMem) Alloc(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("count must be positive non-zero")
	} else if mem.closed {
		return 0, os.ErrClosed
	} else if mem.readOnly {
		return 0, ErrReadOnly
	}

	firstID := len(mem.pages)
	for i := 0; i < n; i++ {
		mem.pages = append(mem.pages, make([]byte, mem.pageSize))
	}
	return firstID, nil
}

// Read returns a copy of the page with given id.
func (mem *InMem) Read(id int) ([]byte, error) {
	if mem.closed {
		return nil, os.ErrClosed
	} else if id < 0 || id >= len(mem.pages) {
		return nil, fmt.Errorf("non-existent page %d", id)
	}

	buf := make([]byte, mem.pageSize)
	copy(buf, mem.pages[id])
	return buf, nil
}

// Write overwrites the page with given id with 'd'.
func (mem *InMem) Write(id int, d []byte) error {
	if mem.closed {
		return os.ErrClosed
	} else if mem.readOnly {
		return ErrReadOnly
	} else if id < 0 || id >= len(mem.pages) {
		return fmt.Errorf("non-existent page %d", id)
	} else if len(d) > mem.pageSize {
		return fmt.Errorf("data is larger than page size")
	}

	copy(mem.pages[id], d)
	return nil
}

// Close discards all pages and marks the pager closed.
func (mem *InMem) Close() error {
	mem.closed = true
	mem.pages = nil
	return nil
}

func (mem *InMem) String() string {
	return fmt.Sprintf("InMem{pageSize=%d, count=%d}", mem.pageSize, len(mem.pages))
}
