package recman

import (
	"encoding/binary"
	"fmt"
)

// idSize is the fixed serialized width of an ObjectID.
const idSize = 8

// linkPtrSz is the fixed serialized width of a slotAddr as stored inside
// link records.
const linkPtrSz = 6

// ObjectID is an opaque identifier naming one logical record for its
// entire lifetime. Ids are handed out by a monotonic counter starting at
// 1 and are never reused, even after the record is removed.
type ObjectID uint64

// PageID identifies one page in the manager's pool.
type PageID uint32

// IDConverter converts object ids to and from their fixed-size binary
// form so that stored pages are self-describing.
type IDConverter struct{}

// Size returns the fixed number of bytes produced by MarshalID.
func (IDConverter) Size() int { return idSize }

// MarshalID returns the fixed-size binary form of the id.
func (IDConverter) MarshalID(id ObjectID) []byte {
	b := make([]byte, idSize)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// UnmarshalID decodes an id from the first Size() bytes of 'd'. Returns
// ErrFormat if the buffer is too short.
func (IDConverter) UnmarshalID(d []byte) (ObjectID, error) {
	if len(d) < idSize {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrFormat, idSize, len(d))
	}
	return ObjectID(binary.BigEndian.Uint64(d[:idSize])), nil
}

// slotAddr names one slot on one page. It is the unit of record
// addressing and the continuation pointer stored in link records.
type slotAddr struct {
	page PageID
	slot uint16
}

func (a slotAddr) String() string {
	return fmt.Sprintf("addr{page: %d, slot: %d}", a.page, a.slot)
}

func (a slotAddr) marshalInto(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], uint32(a.page))
	binary.LittleEndian.PutUint16(b[4:6], a.slot)
}

func unmarshalSlotAddr(d []byte) (slotAddr, error) {
	if len(d) < linkPtrSz {
		return slotAddr{}, fmt.Errorf("%w: need %d bytes, have %d", ErrFormat, linkPtrSz, len(d))
	}
	return slotAddr{
		page: PageID(binary.LittleEndian.Uint32(d[0:4])),
		slot: binary.LittleEndian.Uint16(d[4:6]),
	}, nil
}
