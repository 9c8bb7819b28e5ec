package recman

import "sort"

// NextFit keeps a roving cursor over the page set: each search starts
// at the page after the previous hit and wraps around, spreading
// records across pages instead of hammering the lowest ids. Within one
// sweep the ascending-id order is the tie-break. When the page under
// the cursor is removed the cursor simply moves on to the next id.
type NextFit struct {
	pages  map[PageID]*PageInfo
	order  []PageID // ascending
	cursor int      // index into order of the next page to try
}

// NewNextFit returns an empty next-fit strategy.
func NewNextFit() *NextFit {
	return &NextFit{pages: make(map[PageID]*PageInfo)}
}

func (nf *NextFit) String() string { return "next-fit" }

// PageForRecord sweeps at most one full cycle starting at the cursor
// and returns the first page that can take 'bytes' more bytes.
func (nf *NextFit) PageForRecord(bytes int) (PageID, bool) {
	n := len(nf.order)
	for i := 0; i < n; i++ {
		pos := (nf.cursor + i) % n
		id := nf.order[pos]
		info := nf.pages[id]
		if info.HasFreeSlot() && info.BytesFreeAfterReservation(bytes) >= 0 {
			nf.cursor = (pos + 1) % n
			return id, true
		}
	}
	return 0, false
}

func (nf *NextFit) PageInserted(id PageID, info *PageInfo) {
	nf.pages[id] = info
	i := sort.Search(len(nf.order), func(i int) bool { return nf.order[i] >= id })
	nf.order = append(nf.order, 0)
	copy(nf.order[i+1:], nf.order[i:])
	nf.order[i] = id
	if i < nf.cursor {
		nf.cursor++
	}
}

func (nf *NextFit) PageRemoved(id PageID, info *PageInfo) {
	delete(nf.pages, id)
	i := sort.Search(len(nf.order), func(i int) bool { return nf.order[i] >= id })
	if i < len(nf.order) && nf.order[i] == id {
		nf.order = append(nf.order[:i], nf.order[i+1:]...)
		if i < nf.cursor {
			nf.cursor--
		}
	}
	if len(nf.order) == 0 {
		nf.cursor = 0
	} else {
		nf.cursor %= len(nf.order)
	}
}

func (nf *NextFit) RecordUpdated(id PageID, info *PageInfo, slot, recordsAdded, bytesAdded, linksAdded int) {
	// free space is read live from the shared PageInfo objects.
}
