package recman

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// On-page layout, little-endian:
//
//	┌──────────────────────────────────────────────────────────┐
//	| magic (2) | flags (2) | numRecords (2) | freeOff (2)     |
//	|────────────── slot directory (maxSlots × 16) ────────────|
//	| offset (2) | length (2) | flags (2) | rsvd (2) | owner(8)|
//	| ...                                                      |
//	|───────────────────── data region ────────────────────────|
//	| packed record bytes, growing forward from dirEnd         |
//	└──────────────────────────────────────────────────────────┘
//
// The slot directory is a fixed region so the per-page overhead is a
// constant and record accounting stays byte-exact. Link slots store
// [next slotAddr (6)][prefix bytes] as their payload; the link flag in
// the slot entry distinguishes them from terminal slots.
//
// Offsets and lengths are 16-bit, which caps the page size at 65535
// bytes. The manager rejects larger pages at construction.
const (
	pageMagic    = uint16(0x504D) // "PM"
	pageHeaderSz = 8
	slotSz       = 16

	pageInUse = uint16(1 << 0)

	slotUsed    = uint16(1 << 0)
	slotLink    = uint16(1 << 1)
	slotHead    = uint16(1 << 2)
	slotPending = uint16(1 << 3)
)

// pageOverhead returns the constant non-payload cost of a page holding
// at most maxSlots records.
func pageOverhead(maxSlots int) int {
	return pageHeaderSz + maxSlots*slotSz
}

type slot struct {
	offset uint16
	length uint16
	flags  uint16
	owner  ObjectID
}

func (s slot) used() bool    { return s.flags&slotUsed != 0 }
func (s slot) link() bool    { return s.flags&slotLink != 0 }
func (s slot) head() bool    { return s.flags&slotHead != 0 }
func (s slot) pending() bool { return s.flags&slotPending != 0 }

// page is a view over one raw page buffer. It never owns the buffer.
type page struct {
	buf      []byte
	maxSlots int
}

func openPage(buf []byte, maxSlots int) page {
	return page{buf: buf, maxSlots: maxSlots}
}

// format initializes the buffer as an empty in-use page.
func (p page) format() {
	for i := range p.buf {
		p.buf[i] = 0
	}
	binary.LittleEndian.PutUint16(p.buf[0:2], pageMagic)
	binary.LittleEndian.PutUint16(p.buf[2:4], pageInUse)
	binary.LittleEndian.PutUint16(p.buf[4:6], 0)
	binary.LittleEndian.PutUint16(p.buf[6:8], uint16(p.dataStart()))
}

// clear marks the page as evacuated so a later scan treats it as free.
func (p page) clear() {
	for i := range p.buf {
		p.buf[i] = 0
	}
}

func (p page) inUse() bool {
	return binary.LittleEndian.Uint16(p.buf[0:2]) == pageMagic &&
		binary.LittleEndian.Uint16(p.buf[2:4])&pageInUse != 0
}

func (p page) numRecords() int {
	return int(binary.LittleEndian.Uint16(p.buf[4:6]))
}

func (p page) setNumRecords(n int) {
	binary.LittleEndian.PutUint16(p.buf[4:6], uint16(n))
}

func (p page) freeOff() int {
	return int(binary.LittleEndian.Uint16(p.buf[6:8]))
}

func (p page) setFreeOff(off int) {
	binary.LittleEndian.PutUint16(p.buf[6:8], uint16(off))
}

// dataStart is the first byte of the data region.
func (p page) dataStart() int { return pageHeaderSz + p.maxSlots*slotSz }

// dataCap is the number of payload bytes the page can hold.
func (p page) dataCap() int { return len(p.buf) - p.dataStart() }

func (p page) slotOff(i int) int { return pageHeaderSz + i*slotSz }

func (p page) slot(i int) slot {
	off := p.slotOff(i)
	return slot{
		offset: binary.LittleEndian.Uint16(p.buf[off : off+2]),
		length: binary.LittleEndian.Uint16(p.buf[off+2 : off+4]),
		flags:  binary.LittleEndian.Uint16(p.buf[off+4 : off+6]),
		owner:  ObjectID(binary.LittleEndian.Uint64(p.buf[off+8 : off+16])),
	}
}

func (p page) setSlot(i int, s slot) {
	off := p.slotOff(i)
	binary.LittleEndian.PutUint16(p.buf[off:off+2], s.offset)
	binary.LittleEndian.PutUint16(p.buf[off+2:off+4], s.length)
	binary.LittleEndian.PutUint16(p.buf[off+4:off+6], s.flags)
	binary.LittleEndian.PutUint16(p.buf[off+6:off+8], 0)
	binary.LittleEndian.PutUint64(p.buf[off+8:off+16], uint64(s.owner))
}

// freeSlot returns the lowest unused directory index.
func (p page) freeSlot() (int, bool) {
	for i := 0; i < p.maxSlots; i++ {
		if !p.slot(i).used() {
			return i, true
		}
	}
	return 0, false
}

func (p page) payload(s slot) []byte {
	return p.buf[int(s.offset) : int(s.offset)+int(s.length)]
}

// validate cross-checks the header against the slot directory. Any
// disagreement means the page cannot be trusted.
func (p page) validate() error {
	if binary.LittleEndian.Uint16(p.buf[0:2]) != pageMagic {
		return fmt.Errorf("%w: bad page magic", ErrCorrupt)
	}

	freeOff := p.freeOff()
	if freeOff < p.dataStart() || freeOff > len(p.buf) {
		return fmt.Errorf("%w: free offset %d out of range", ErrCorrupt, freeOff)
	}

	used := 0
	for i := 0; i < p.maxSlots; i++ {
		s := p.slot(i)
		if !s.used() {
			continue
		}
		used++
		if int(s.offset) < p.dataStart() || int(s.offset)+int(s.length) > freeOff {
			return fmt.Errorf("%w: slot %d points outside data region", ErrCorrupt, i)
		}
		if s.link() && s.length < linkPtrSz {
			return fmt.Errorf("%w: link slot %d shorter than a pointer", ErrCorrupt, i)
		}
	}

	if used != p.numRecords() {
		return fmt.Errorf("%w: header says %d records, directory has %d",
			ErrCorrupt, p.numRecords(), used)
	}
	return nil
}

// compact rewrites the data region in slot order, squeezing out holes
// left by removed or relocated records. Slot numbers are stable across
// compaction; only offsets move. When 'skip' is >= 0 that slot's old
// payload is dropped instead of moved (its replacement is written by
// the caller afterwards).
func (p page) compact(skip int) {
	type ent struct {
		idx int
		s   slot
	}

	var live []ent
	for i := 0; i < p.maxSlots; i++ {
		s := p.slot(i)
		if s.used() && i != skip {
			live = append(live, ent{idx: i, s: s})
		}
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].s.offset < live[j].s.offset
	})

	scratch := make([]byte, 0, p.dataCap())
	for _, e := range live {
		scratch = append(scratch, p.payload(e.s)...)
	}

	off := p.dataStart()
	copy(p.buf[off:], scratch)
	for _, e := range live {
		e.s.offset = uint16(off)
		p.setSlot(e.idx, e.s)
		off += int(e.s.length)
	}
	p.setFreeOff(off)
}
