// Package pager provides strictly page based I/O on file-like objects.
// Pages are fixed-size buffers addressed by a zero-based id. An on-disk
// implementation backed by memory mapped files and an ephemeral in-memory
// implementation are provided.
package pager

import (
	"errors"
	"io"
	"os"
)

// InMemoryFileName can be passed to Open() to create an ephemeral
// in-memory pager.
const InMemoryFileName = ":memory:"

// ErrReadOnly is returned when a write operation is attempted on a
// read-only pager instance.
var ErrReadOnly = errors.New("read-only")

var defaultOptions = Options{
	FileMode: 0664,
	PageSize: os.Getpagesize(),
	ReadOnly: false,
}

// Options represents configuration options for a pager.
type Options struct {
	PageSize int
	ReadOnly bool
	FileMode os.FileMode
}

// Pager represents a file-like object with strict page based access.
type Pager interface {
	io.Closer

	// Count returns the number of pages currently in the pager.
	Count() int

	// PageSize returns the size of one page in bytes.
	PageSize() int

	// Alloc allocates 'n' new sequential pages and returns the id of
	// the first page in the sequence.
	Alloc(n int) (int, error)

	// Read reads the page with the given id and returns its data.
	Read(id int) ([]byte, error)

	// Write writes one page worth of data to the page with given id.
	Write(id int, d []byte) error
}

// Open opens the named file and returns a pager instance for it. If the
// file doesn't exist, it will be created if not in read-only mode. If
// 'opts' is nil, default options are used.
func Open(filePath string, opts *Options) (Pager, error) {
	if opts == nil {
		opts = &defaultOptions
	}
	if opts.PageSize <= 0 {
		opts.PageSize = os.Getpagesize()
	}

	if filePath == InMemoryFileName {
		return &InMem{
			pageSize: opts.PageSize,
			readOnly: opts.ReadOnly,
		}, nil
	}

	return openOnDisk(filePath, *opts)
}
