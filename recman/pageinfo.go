package recman

// PageInfo carries the live occupancy metadata of one page. The record
// manager owns the canonical PageInfo table; strategies hold the same
// objects by reference but must never mutate them directly. All
// mutation flows through the manager so the single-writer discipline is
// preserved even though two components see the same table.
//
// Invariant: BytesUsed() + free == capacity - overhead at all times,
// where free is the value reported by BytesFreeAfterReservation(0).
type PageInfo struct {
	capacity int
	overhead int
	maxSlots int

	used  int
	links int
	slots map[int]int // slot number -> record bytes held by that slot
}

// NewPageInfo creates bookkeeping for a page of 'capacity' total bytes
// of which 'overhead' bytes are taken by the page header and slot
// directory. 'maxSlots' bounds the number of records the page can hold.
func NewPageInfo(capacity, overhead, maxSlots int) *PageInfo {
	return &PageInfo{
		capacity: capacity,
		overhead: overhead,
		maxSlots: maxSlots,
		slots:    make(map[int]int),
	}
}

// BytesFreeAfterReservation returns the free bytes that would remain if
// 'n' more bytes were reserved on this page. The result is signed: a
// negative value means the page cannot host the reservation. The call
// never mutates state; it is used by strategies to rank candidates
// before committing.
func (pi *PageInfo) BytesFreeAfterReservation(n int) int {
	return pi.capacity - pi.overhead - pi.used - n
}

// NumRecords returns the number of records currently on the page. A
// page with zero records is eligible for reclamation.
func (pi *PageInfo) NumRecords() int { return len(pi.slots) }

// BytesUsed returns the bytes occupied by record payloads on the page.
func (pi *PageInfo) BytesUsed() int { return pi.used }

// LinkRecords returns the number of link records on the page.
func (pi *PageInfo) LinkRecords() int { return pi.links }

// Capacity returns the total page size in bytes.
func (pi *PageInfo) Capacity() int { return pi.capacity }

// Overhead returns the fixed header + slot directory cost in bytes.
func (pi *PageInfo) Overhead() int { return pi.overhead }

// HasFreeSlot reports whether the slot directory can take one more
// record regardless of byte space.
func (pi *PageInfo) HasFreeSlot() bool { return len(pi.slots) < pi.maxSlots }

// MinRecord returns the lowest occupied slot number. The result is -1
// (undefined) when the page holds no records.
func (pi *PageInfo) MinRecord() int {
	if len(pi.slots) == 0 {
		return -1
	}
	min := -1
	for n := range pi.slots {
		if min < 0 || n < min {
			min = n
		}
	}
	return min
}

// MaxRecord returns the highest occupied slot number, or -1 when the
// page holds no records.
func (pi *PageInfo) MaxRecord() int {
	max := -1
	for n := range pi.slots {
		if n > max {
			max = n
		}
	}
	return max
}

func (pi *PageInfo) recordInserted(slot, n int, link bool) {
	pi.slots[slot] = n
	pi.used += n
	if link {
		pi.links++
	}
}

func (pi *PageInfo) recordRemoved(slot int, link bool) {
	n, ok := pi.slots[slot]
	if !ok {
		return
	}
	delete(pi.slots, slot)
	pi.used -= n
	if link {
		pi.links--
	}
}

func (pi *PageInfo) recordResized(slot, delta int) {
	if _, ok := pi.slots[slot]; !ok {
		return
	}
	pi.slots[slot] += delta
	pi.used += delta
}
