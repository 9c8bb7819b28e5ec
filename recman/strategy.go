package recman

import "sort"

// Strategy decides which page receives a new or growing record. It is
// the extension point for allocation policies: new policies implement
// only this interface and are swapped in at Manager construction time.
//
// A strategy observes every structural mutation through the three
// lifecycle hooks for the lifetime of its Manager. It may retain the
// *PageInfo objects it receives (they are shared with the manager's
// canonical table) but must key any internal structure by PageID and
// drop every reference in PageRemoved. It must never mutate a PageInfo.
type Strategy interface {
	// PageForRecord selects an existing page that can host 'bytes' more
	// bytes, per the policy's ordering. The second return is false when
	// no existing page qualifies, which tells the record manager to
	// allocate a fresh page. The call is purely advisory and must not
	// mutate any page state.
	PageForRecord(bytes int) (PageID, bool)

	// PageInserted is called exactly once when a new page enters the
	// pool.
	PageInserted(id PageID, info *PageInfo)

	// PageRemoved is called exactly once when a page is fully evacuated
	// and reclaimed. After it returns the strategy must hold no
	// reference to the page.
	PageRemoved(id PageID, info *PageInfo)

	// RecordUpdated is called after every record-level mutation so the
	// strategy's internal ranking stays consistent with ground truth.
	// Deltas are negative on removal.
	RecordUpdated(id PageID, info *PageInfo, slot, recordsAdded, bytesAdded, linksAdded int)
}

// FirstFit selects the page with the lowest id that has enough room.
// The ascending-id order doubles as the tie-break, so results are
// deterministic.
type FirstFit struct {
	pages map[PageID]*PageInfo
	order []PageID // ascending
}

// NewFirstFit returns an empty first-fit strategy.
func NewFirstFit() *FirstFit {
	return &FirstFit{pages: make(map[PageID]*PageInfo)}
}

func (f *FirstFit) String() string { return "first-fit" }

// PageForRecord returns the lowest page id that can take 'bytes' more
// bytes and still has a free slot.
func (f *FirstFit) PageForRecord(bytes int) (PageID, bool) {
	for _, id := range f.order {
		info := f.pages[id]
		if info.HasFreeSlot() && info.BytesFreeAfterReservation(bytes) >= 0 {
			return id, true
		}
	}
	return 0, false
}

func (f *FirstFit) PageInserted(id PageID, info *PageInfo) {
	f.pages[id] = info
	i := sort.Search(len(f.order), func(i int) bool { return f.order[i] >= id })
	f.order = append(f.order, 0)
	copy(f.order[i+1:], f.order[i:])
	f.order[i] = id
}

func (f *FirstFit) PageRemoved(id PageID, info *PageInfo) {
	delete(f.pages, id)
	i := sort.Search(len(f.order), func(i int) bool { return f.order[i] >= id })
	if i < len(f.order) && f.order[i] == id {
		f.order = append(f.order[:i], f.order[i+1:]...)
	}
}

func (f *FirstFit) RecordUpdated(id PageID, info *PageInfo, slot, recordsAdded, bytesAdded, linksAdded int) {
	// ranking is read live from the shared PageInfo objects; only
	// membership is cached, so there is nothing to adjust here.
}
