package pager

import (
	"encoding/binary"
	"errors"
)

const magic = uint32(0x706d6c6f) // "pmlo"
const version = 0x1
const headerSz = 12

type header struct {
	magic    uint32 // magic the page file was initialized with.
	version  uint8  // pager implementation version
	flags    uint8  // control flags (not used)
	pageSize uint32 // page size this page file was initialized with.
}

func (h header) validate() error {
	if h.magic != magic {
		return errors.New("invalid magic in page file header")
	}

	if h.version != version {
		return errors.New("invalid page file version")
	}

	if h.pageSize == 0 {
		return errors.New("page size not set in header")
	}

	return nil
}

func (h header) MarshalBinary() (data []byte, err error) {
	buf := make([]byte, headerSz)
	binary.LittleEndian.PutUint32(buf[0:4], h.magic)
	buf[4] = h.version
	buf[5] = h.flags
	binary.LittleEndian.PutUint32(buf[8:12], h.pageSize)
	return buf, nil
}

func (h *header) UnmarshalBinary(data []byte) error {
	if len(data) < headerSz {
		return errors.New("in-sufficient data to unmarshal header")
	} else if h == nil {
		return errors.New("cannot unmarshal into nil-header")
	}

	h.magic = binary.LittleEndian.Uint32(data[0:4])
	h.version = data[4]
	h.flags = data[5]
	h.pageSize = binary.LittleEndian.Uint32(data[8:12])
	return nil
}
