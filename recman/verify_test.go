package recman

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// pinnedStrategy always answers with a fixed page id, ignoring the
// hooks. It stands in for a buggy allocation policy.
type pinnedStrategy struct {
	id PageID
	ok bool
}

func (p *pinnedStrategy) PageForRecord(bytes int) (PageID, bool) { return p.id, p.ok }
func (p *pinnedStrategy) PageInserted(PageID, *PageInfo)         {}
func (p *pinnedStrategy) PageRemoved(PageID, *PageInfo)          {}
func (p *pinnedStrategy) RecordUpdated(PageID, *PageInfo, int, int, int, int) {
}

func TestVerifyStrategy(t *testing.T) {

	t.Run("forwards sound answers untouched", func(t *testing.T) {
		table := map[PageID]*PageInfo{4: pageWithFree(50)}
		v := &VerifyStrategy{delegate: &pinnedStrategy{id: 4, ok: true}, table: table}

		id, ok := v.PageForRecord(50)
		assert.True(t, ok)
		assert.Equal(t, PageID(4), id)

		_, ok = (&VerifyStrategy{delegate: &pinnedStrategy{}, table: table}).PageForRecord(10)
		assert.False(t, ok)
	})

	t.Run("panics when the delegate names an unknown page", func(t *testing.T) {
		v := &VerifyStrategy{
			delegate: &pinnedStrategy{id: 9, ok: true},
			table:    map[PageID]*PageInfo{},
		}
		assertContractPanic(t, "PageForRecord", func() { v.PageForRecord(1) })
	})

	t.Run("panics when the chosen page cannot fit the record", func(t *testing.T) {
		v := &VerifyStrategy{
			delegate: &pinnedStrategy{id: 4, ok: true},
			table:    map[PageID]*PageInfo{4: pageWithFree(10)},
		}
		assertContractPanic(t, "PageForRecord", func() { v.PageForRecord(11) })
	})

	t.Run("reports through the violation hook when one is installed", func(t *testing.T) {
		var got error
		v := &VerifyStrategy{
			delegate:    &pinnedStrategy{id: 9, ok: true},
			table:       map[PageID]*PageInfo{},
			onViolation: func(err error) { got = err },
		}

		id, ok := v.PageForRecord(1)
		assert.False(t, ok, "a violating answer degrades to no page")
		assert.Zero(t, id)

		var ce *ContractError
		if assert.ErrorAs(t, got, &ce) {
			assert.Equal(t, "PageForRecord", ce.Op)
		}
	})

	t.Run("panics on hooks carrying a stale PageInfo", func(t *testing.T) {
		canonical := pageWithFree(50)
		stale := pageWithFree(50)
		v := &VerifyStrategy{
			delegate: NewBestFit(),
			table:    map[PageID]*PageInfo{4: canonical},
		}

		v.PageInserted(4, canonical) // shared pointer: fine

		assertContractPanic(t, "RecordUpdated", func() { v.RecordUpdated(4, stale, 0, 1, 10, 0) })
		assertContractPanic(t, "PageRemoved", func() { v.PageRemoved(4, stale) })
	})
}

func assertContractPanic(t *testing.T, op string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if !assert.NotNil(t, r, "expected a panic") {
			return
		}
		ce, ok := r.(*ContractError)
		if assert.True(t, ok, "panic value should be *ContractError, got %T", r) {
			assert.Equal(t, op, ce.Op)
		}
	}()
	fn()
}
