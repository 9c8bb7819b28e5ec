package pager

import (
	"errors"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

func openOnDisk(filePath string, opts Options) (*OnDisk, error) {
	flag := os.O_CREATE | os.O_RDWR
	mmapFlag := mmap.RDWR
	if opts.ReadOnly {
		flag = os.O_RDONLY
		mmapFlag = mmap.RDONLY
	}

	fh, err := os.OpenFile(filePath, flag, opts.FileMode)
	if err != nil {
		return nil, err
	}

	p := &OnDisk{
		file:     fh,
		pageSize: opts.PageSize,
		mmapFlag: mmapFlag,
		readOnly: opts.ReadOnly,
	}

	if err := p.open(); err != nil {
		_ = p.Close()
		return nil, err
	}

	if err := p.mmap(); err != nil {
		_ = p.Close()
		return nil, err
	}

	return p, nil
}

// OnDisk represents a paged file instance and provides I/O functions in
// a strictly paged manner. The first physical page of the file holds the
// pager header; logical page ids are offset past it.
type OnDisk struct {
	// file state
	file     *os.File
	data     mmap.MMap
	mmapFlag int
	readOnly bool
	fileSize int64

	// paging information
	pageSize int
}

// Alloc allocates 'n' new pages and returns the id of the first page in
// the allocated sequence.
func (p *OnDisk) Alloc(n int) (int, error) {
	if n <= 0 {
		return 0, errors.New("count must be positive non-zero")
	} else if p.file == nil {
		return 0, os.ErrClosed
	} else if p.readOnly {
		return 0, ErrReadOnly
	}

	firstID := p.Count()
	if err := p.resize(firstID + n); err != nil {
		return 0, err
	}

	return firstID, nil
}

// Read reads the page with given id from the file and returns the page
// data.
func (p *OnDisk) Read(id int) ([]byte, error) {
	if id < 0 || id >= p.Count() {
		return nil, fmt.Errorf("non-existent page %d", id)
	} else if p.file == nil {
		return nil, os.ErrClosed
	}

	return p.readAt(p.offset(id))
}

// Write writes the data into the page with given id.
func (p *OnDisk) Write(id int, d []byte) error {
	if len(d) > p.pageSize {
		return errors.New("data is larger than page size")
	} else if id < 0 || id >= p.Count() {
		return fmt.Errorf("non-existent page %d", id)
	} else if p.file == nil {
		return os.ErrClosed
	} else if p.readOnly {
		return ErrReadOnly
	}

	return p.writeAt(d, p.offset(id))
}

// Count returns the current number of logical pages in the file. The
// header page is not counted.
func (p *OnDisk) Count() int {
	return int(p.fileSize)/p.pageSize - 1
}

// PageSize returns the size of one page in bytes.
func (p *OnDisk) PageSize() int { return p.pageSize }

// Close flushes any pending writes and frees the file handle.
func (p *OnDisk) Close() error {
	if p.file == nil {
		return nil
	}
	_ = p.unmmap()
	err := p.file.Close()
	p.file = nil
	return err
}

func (p *OnDisk) String() string {
	return fmt.Sprintf("OnDisk{file='%s', pageSize=%d, count=%d}",
		p.file.Name(), p.pageSize, p.Count())
}

func (p *OnDisk) readAt(offset int64) ([]byte, error) {
	if p.data == nil {
		return nil, os.ErrClosed
	}

	buf := make([]byte, p.pageSize)
	if _, err := p.file.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *OnDisk) writeAt(buf []byte, offset int64) error {
	if p.data == nil {
		return os.ErrClosed
	}

	copy(p.data[offset:], buf)
	return nil
}

func (p *OnDisk) offset(id int) int64 {
	return int64((id + 1) * p.pageSize)
}

func (p *OnDisk) open() error {
	fi, err := p.file.Stat()
	if err != nil {
		return err
	}
	p.fileSize = fi.Size()

	if p.fileSize == 0 {
		if p.readOnly {
			return errors.New("cannot initialize page file in read-only mode")
		}
		return p.init()
	}

	buf := make([]byte, headerSz)
	if _, err := p.file.ReadAt(buf, 0); err != nil {
		return err
	}

	h := header{}
	if err := h.UnmarshalBinary(buf); err != nil {
		return err
	}
	if err := h.validate(); err != nil {
		return err
	}

	p.pageSize = int(h.pageSize)
	if p.fileSize%int64(p.pageSize) != 0 {
		return errors.New("file size is not a multiple of page size")
	}
	return nil
}

func (p *OnDisk) init() error {
	if err := p.file.Truncate(int64(p.pageSize)); err != nil {
		return err
	}
	p.fileSize = int64(p.pageSize)

	h := header{
		magic:    magic,
		version:  version,
		pageSize: uint32(p.pageSize),
	}

	d, _ := h.MarshalBinary()
	_, err := p.file.WriteAt(d, 0)
	return err
}

// resize resizes the file to have exactly 'count' number of logical
// pages (plus the header page).
func (p *OnDisk) resize(count int) error {
	size := int64((count + 1) * p.pageSize)
	if p.fileSize == size {
		return nil
	}
	if err := p.unmmap(); err != nil {
		return err
	}
	if err := p.file.Truncate(size); err != nil {
		return err
	}
	p.fileSize = size
	return p.mmap()
}

func (p *OnDisk) mmap() error {
	if p.data != nil {
		_ = p.unmmap()
	}

	d, err := mmap.Map(p.file, p.mmapFlag, 0)
	if err != nil {
		return err
	}
	p.data = d
	return nil
}

func (p *OnDisk) unmmap() error {
	if p.data == nil {
		return nil
	}
	_ = p.data.Flush()
	return p.data.Unmap()
}
