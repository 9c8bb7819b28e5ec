package recman

import "fmt"

// VerifyStrategy wraps a concrete Strategy and cross-validates every
// answer against the record manager's authoritative page table, which
// it shares by reference. Violations are fatal: each one is raised as a
// *ContractError through the onViolation hook, which defaults to panic.
// A broken strategy is a programming error and the engine must not keep
// mutating pages it cannot trust.
//
// This is not a production component; it exists so the test suite
// catches strategy bugs immediately instead of as silent corruption.
// It is installed by passing Verify: true to the Manager options.
type VerifyStrategy struct {
	delegate Strategy
	table    map[PageID]*PageInfo // the manager's canonical table

	// onViolation receives every contract violation. Nil means panic.
	onViolation func(error)
}

// PageForRecord forwards to the delegate and then recomputes the free
// space of the returned page, asserting the reservation actually fits.
// A violating answer is reported and treated as "no page".
func (v *VerifyStrategy) PageForRecord(bytes int) (PageID, bool) {
	id, ok := v.delegate.PageForRecord(bytes)
	if !ok {
		return 0, false
	}

	info, exists := v.table[id]
	if !exists {
		v.fail("PageForRecord", id, "returned page is not in the page table")
		return 0, false
	}
	if free := info.BytesFreeAfterReservation(bytes); free < 0 {
		v.fail("PageForRecord", id,
			fmt.Sprintf("page cannot host %d bytes (free after reservation: %d)", bytes, free))
		return 0, false
	}
	return id, true
}

// PageInserted asserts the PageInfo passed is the table's entry for the
// page before forwarding.
func (v *VerifyStrategy) PageInserted(id PageID, info *PageInfo) {
	if v.table[id] != info {
		v.fail("PageInserted", id, "PageInfo does not match the page table entry")
		return
	}
	v.delegate.PageInserted(id, info)
}

// PageRemoved asserts the PageInfo passed is the table's entry for the
// page before forwarding.
func (v *VerifyStrategy) PageRemoved(id PageID, info *PageInfo) {
	if v.table[id] != info {
		v.fail("PageRemoved", id, "PageInfo does not match the page table entry")
		return
	}
	v.delegate.PageRemoved(id, info)
}

// RecordUpdated asserts the PageInfo passed is the table's entry for
// the page before forwarding.
func (v *VerifyStrategy) RecordUpdated(id PageID, info *PageInfo, slot, recordsAdded, bytesAdded, linksAdded int) {
	if v.table[id] != info {
		v.fail("RecordUpdated", id, "PageInfo does not match the page table entry")
		return
	}
	v.delegate.RecordUpdated(id, info, slot, recordsAdded, bytesAdded, linksAdded)
}

func (v *VerifyStrategy) String() string {
	return fmt.Sprintf("verify(%v)", v.delegate)
}

func (v *VerifyStrategy) fail(op string, id PageID, detail string) {
	err := &ContractError{Op: op, PageID: id, Detail: detail}
	if v.onViolation != nil {
		v.onViolation(err)
		return
	}
	panic(err)
}
