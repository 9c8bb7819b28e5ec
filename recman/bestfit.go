package recman

// BestFit selects the page whose free space would be minimal after the
// reservation, keeping large contiguous space available for future big
// records. On equal leftover space the lower page id wins, for
// determinism.
type BestFit struct {
	pages map[PageID]*PageInfo
}

// NewBestFit returns an empty best-fit strategy.
func NewBestFit() *BestFit {
	return &BestFit{pages: make(map[PageID]*PageInfo)}
}

func (b *BestFit) String() string { return "best-fit" }

// PageForRecord returns the candidate page with the smallest
// non-negative leftover after reserving 'bytes'.
func (b *BestFit) PageForRecord(bytes int) (PageID, bool) {
	var (
		bestID       PageID
		bestLeftover = -1
	)

	for id, info := range b.pages {
		if !info.HasFreeSlot() {
			continue
		}
		leftover := info.BytesFreeAfterReservation(bytes)
		if leftover < 0 {
			continue
		}
		if bestLeftover < 0 || leftover < bestLeftover ||
			(leftover == bestLeftover && id < bestID) {
			bestID, bestLeftover = id, leftover
		}
	}

	return bestID, bestLeftover >= 0
}

func (b *BestFit) PageInserted(id PageID, info *PageInfo) {
	b.pages[id] = info
}

func (b *BestFit) PageRemoved(id PageID, info *PageInfo) {
	delete(b.pages, id)
}

func (b *BestFit) RecordUpdated(id PageID, info *PageInfo, slot, recordsAdded, bytesAdded, linksAdded int) {
	// free space is read live from the shared PageInfo objects; only
	// membership is cached.
}
