// Package recman implements a page-based record manager: variable
// length byte records are packed into fixed-size pages, addressed by
// opaque object ids, with a pluggable space-allocation strategy
// deciding which page receives each new record. Records larger than a
// page are chained across pages using link records.
package recman

import (
	"fmt"
	"math"
	"os"

	"github.com/phuslu/log"

	"github.com/pomelodb/pomelo/pager"
)

// Options represents configuration for a record Manager.
type Options struct {
	// Strategy is the space-allocation policy. Defaults to best-fit.
	Strategy Strategy

	// Verify wraps the strategy in a VerifyStrategy that cross-checks
	// every answer against the page table and raises a *ContractError
	// on violation. Meant for tests.
	Verify bool

	// OnViolation overrides how the verifying wrapper reports contract
	// violations. Nil means panic. Only meaningful with Verify.
	OnViolation func(error)

	// MaxSlots bounds the number of records per page. Zero picks a
	// default derived from the page size.
	MaxSlots int

	Log log.Logger
}

// New creates a record Manager over the given pager. If the pager
// already holds pages, the page table, the id index, and the id counter
// are rebuilt by scanning them; pages found evacuated go to the
// free-page list for reuse.
//
// The Manager is a single-threaded engine by contract: it performs no
// internal locking and multi-threaded use requires an external mutex
// around the whole instance.
func New(p pager.Pager, opts Options) (*Manager, error) {
	if opts.MaxSlots <= 0 {
		opts.MaxSlots = defaultMaxSlots(p.PageSize())
	}
	if opts.Strategy == nil {
		opts.Strategy = NewBestFit()
	}
	if opts.Log.Writer == nil {
		opts.Log = log.Logger{Level: log.InfoLevel, Writer: &log.IOWriter{Writer: os.Stderr}}
	}

	// slot offsets and lengths are 16-bit on the page
	if p.PageSize() > math.MaxUint16 {
		return nil, fmt.Errorf("page size %d exceeds the maximum addressable %d",
			p.PageSize(), math.MaxUint16)
	}

	dataCap := p.PageSize() - pageOverhead(opts.MaxSlots)
	if dataCap <= linkPtrSz {
		return nil, fmt.Errorf("page size %d leaves no room for records with %d slots",
			p.PageSize(), opts.MaxSlots)
	}

	m := &Manager{
		pgr:      p,
		log:      opts.Log,
		maxSlots: opts.MaxSlots,
		dataCap:  dataCap,
		strategy: opts.Strategy,
		pages:    make(map[PageID]*PageInfo),
		index:    make(map[ObjectID]slotAddr),
		nextID:   1,
	}

	if opts.Verify {
		m.strategy = &VerifyStrategy{
			delegate:    opts.Strategy,
			table:       m.pages,
			onViolation: opts.OnViolation,
		}
	}

	if err := m.scan(); err != nil {
		return nil, err
	}
	return m, nil
}

// Manager owns all page buffers (through its pager), the canonical
// pageId -> PageInfo table, and the objectId -> slot index. It is the
// only component that mutates pages; the strategy sees every mutation
// through its lifecycle hooks.
type Manager struct {
	pgr      pager.Pager
	log      log.Logger
	maxSlots int
	dataCap  int
	strategy Strategy

	pages  map[PageID]*PageInfo
	index  map[ObjectID]slotAddr
	free   []PageID // evacuated pages awaiting reuse
	nextID ObjectID
	closed bool
}

// touched records one fragment write for deferred hook delivery.
type touched struct {
	pid    PageID
	slot   int
	stored int
	links  int
}

// Insert stores the payload and returns the id of its head slot. The
// strategy picks the destination page; when no existing page qualifies
// a fresh page is allocated, and payloads too large for even a fresh
// page are split into a link-record chain across fresh pages.
func (m *Manager) Insert(data []byte) (ObjectID, error) {
	if m.closed {
		return 0, os.ErrClosed
	}

	id := m.nextID
	if err := m.place(id, data); err != nil {
		return 0, err
	}
	m.nextID++

	m.log.Debug().Uint64("id", uint64(id)).Int("bytes", len(data)).
		Msg("record inserted")
	return id, nil
}

// Get returns the full payload of the record named by id, transparently
// re-assembling link-record chains. Returns ErrNotFound for unknown or
// removed ids and for reserved ids that were never populated.
func (m *Manager) Get(id ObjectID) ([]byte, error) {
	if m.closed {
		return nil, os.ErrClosed
	}

	addr, ok := m.index[id]
	if !ok {
		return nil, ErrNotFound
	}

	out := []byte{}
	seen := 0
	for {
		buf, err := m.readPage(addr.page)
		if err != nil {
			return nil, err
		}
		pg := openPage(buf, m.maxSlots)

		s := pg.slot(int(addr.slot))
		if !s.used() {
			return nil, fmt.Errorf("%w: index points at a free slot (%v)", ErrCorrupt, addr)
		}
		if s.pending() {
			return nil, ErrNotFound
		}

		payload := pg.payload(s)
		if !s.link() {
			return append(out, payload...), nil
		}

		next, err := unmarshalSlotAddr(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, payload[linkPtrSz:]...)

		addr = next
		seen++
		if seen > m.pgr.Count() {
			return nil, fmt.Errorf("%w: link-record chain does not terminate", ErrCorrupt)
		}
	}
}

// Update replaces the payload of an existing record. The object id is
// stable across updates regardless of whether the new payload is larger
// or smaller. Single-slot records that still fit on their page are
// rewritten in place; everything else is relocated along the insert
// path under the same id, releasing the previously occupied slots.
// The first update of a reserved id populates its placeholder.
func (m *Manager) Update(id ObjectID, data []byte) error {
	if m.closed {
		return os.ErrClosed
	}

	addr, ok := m.index[id]
	if !ok {
		return ErrNotFound
	}

	buf, err := m.readPage(addr.page)
	if err != nil {
		return err
	}
	pg := openPage(buf, m.maxSlots)

	s := pg.slot(int(addr.slot))
	if !s.used() {
		return fmt.Errorf("%w: index points at a free slot (%v)", ErrCorrupt, addr)
	}

	pi := m.pages[addr.page]
	delta := len(data) - int(s.length)

	if !s.link() && pi.BytesFreeAfterReservation(delta) >= 0 {
		// same page, same slot
		switch {
		case len(data) <= int(s.length):
			copy(buf[int(s.offset):], data)
		case pg.freeOff()+len(data) <= len(buf):
			off := pg.freeOff()
			copy(buf[off:], data)
			s.offset = uint16(off)
			pg.setFreeOff(off + len(data))
		default:
			pg.compact(int(addr.slot))
			off := pg.freeOff()
			copy(buf[off:], data)
			s.offset = uint16(off)
			pg.setFreeOff(off + len(data))
		}

		s.length = uint16(len(data))
		s.flags &^= slotPending
		pg.setSlot(int(addr.slot), s)

		if err := m.writePage(addr.page, buf); err != nil {
			return err
		}
		pi.recordResized(int(addr.slot), delta)
		m.strategy.RecordUpdated(addr.page, pi, int(addr.slot), 0, delta, 0)
		return nil
	}

	// relocation: release the old slots, then place the new payload
	// under the same id. The old slots are gone by the time place can
	// fail, so on error the id is dropped rather than left pointing at
	// freed slots.
	if err := m.removeChain(addr); err != nil {
		return err
	}
	if err := m.place(id, data); err != nil {
		delete(m.index, id)
		return err
	}
	return nil
}

// Remove frees the record's entire link-record chain. Pages whose last
// record is removed are reclaimed for reuse as fresh pages. The id is
// never handed out again.
func (m *Manager) Remove(id ObjectID) error {
	if m.closed {
		return os.ErrClosed
	}

	addr, ok := m.index[id]
	if !ok {
		return ErrNotFound
	}

	if err := m.removeChain(addr); err != nil {
		return err
	}
	delete(m.index, id)

	m.log.Debug().Uint64("id", uint64(id)).Msg("record removed")
	return nil
}

// Reserve allocates an id and a zero-length placeholder slot without
// committing payload bytes. It is meant for payloads that depend on the
// id itself: Get reports ErrNotFound until the first Update populates
// the placeholder.
func (m *Manager) Reserve() (ObjectID, error) {
	if m.closed {
		return 0, os.ErrClosed
	}

	id := m.nextID

	pid, ok := m.strategy.PageForRecord(0)
	if ok && !m.pages[pid].HasFreeSlot() {
		m.log.Error().Uint64("page", uint64(pid)).
			Msg("strategy returned a slot-exhausted page, allocating fresh")
		ok = false
	}
	if !ok {
		var err error
		if pid, err = m.newPage(); err != nil {
			return 0, err
		}
	}

	addr, _, err := m.writeFragment(pid, id, nil, nil, slotUsed|slotHead|slotPending)
	if err != nil {
		return 0, err
	}
	m.strategy.RecordUpdated(pid, m.pages[pid], int(addr.slot), 1, 0, 0)

	m.index[id] = addr
	m.nextID++
	return id, nil
}

// Size returns the number of live object ids, including reserved ones
// that are not yet populated.
func (m *Manager) Size() int { return len(m.index) }

// IDConverter returns the fixed-size codec for this manager's ids.
func (m *Manager) IDConverter() IDConverter { return IDConverter{} }

// Stats is a point-in-time snapshot of the manager's occupancy.
type Stats struct {
	Pages     int `json:"pages"`
	FreePages int `json:"free_pages"`
	Records   int `json:"records"`
	PageSize  int `json:"page_size"`
}

// Stats returns a snapshot of the manager's occupancy.
func (m *Manager) Stats() Stats {
	return Stats{
		Pages:     len(m.pages),
		FreePages: len(m.free),
		Records:   len(m.index),
		PageSize:  m.pgr.PageSize(),
	}
}

// Close marks the manager closed. The pager is owned by the caller and
// is not closed here.
func (m *Manager) Close() error {
	m.closed = true
	return nil
}

func (m *Manager) String() string {
	return fmt.Sprintf("Manager{pages=%d, records=%d, strategy=%v}",
		len(m.pages), len(m.index), m.strategy)
}

// place writes the payload as a new record under 'id' and indexes its
// head slot.
func (m *Manager) place(id ObjectID, data []byte) error {
	headFlags := slotUsed | slotHead

	if pid, ok := m.strategy.PageForRecord(len(data)); ok {
		if !m.pages[pid].HasFreeSlot() {
			m.log.Error().Uint64("page", uint64(pid)).
				Msg("strategy returned a slot-exhausted page, allocating fresh")
		} else {
			addr, stored, err := m.writeFragment(pid, id, data, nil, headFlags)
			if err != nil {
				return err
			}
			m.strategy.RecordUpdated(pid, m.pages[pid], int(addr.slot), 1, stored, 0)
			m.index[id] = addr
			return nil
		}
	}

	if len(data) <= m.dataCap {
		pid, err := m.newPage()
		if err != nil {
			return err
		}
		addr, stored, err := m.writeFragment(pid, id, data, nil, headFlags)
		if err != nil {
			return err
		}
		m.strategy.RecordUpdated(pid, m.pages[pid], int(addr.slot), 1, stored, 0)
		m.index[id] = addr
		return nil
	}

	return m.placeChain(id, data)
}

// placeChain splits a payload too large for one fresh page into a
// link-record chain across freshly allocated pages. Fragments are
// written tail first so each link pointer is known, and RecordUpdated
// hooks fire afterwards in page order starting from the head.
func (m *Manager) placeChain(id ObjectID, data []byte) error {
	prefixCap := m.dataCap - linkPtrSz

	var chunks []int
	remaining := len(data)
	for remaining > m.dataCap {
		chunks = append(chunks, prefixCap)
		remaining -= prefixCap
	}
	chunks = append(chunks, remaining) // terminal fragment

	pids := make([]PageID, len(chunks))
	for i := range chunks {
		pid, err := m.newPage()
		if err != nil {
			return err
		}
		pids[i] = pid
	}

	hooks := make([]touched, len(chunks))
	var next *slotAddr
	end := len(data)
	for i := len(chunks) - 1; i >= 0; i-- {
		frag := data[end-chunks[i] : end]
		end -= chunks[i]

		flags := slotUsed
		owner := ObjectID(0)
		if i == 0 {
			flags |= slotHead
			owner = id
		}

		addr, stored, err := m.writeFragment(pids[i], owner, frag, next, flags)
		if err != nil {
			return err
		}

		links := 0
		if next != nil {
			links = 1
		}
		hooks[i] = touched{pid: pids[i], slot: int(addr.slot), stored: stored, links: links}

		hop := addr
		next = &hop
	}

	for _, h := range hooks {
		m.strategy.RecordUpdated(h.pid, m.pages[h.pid], h.slot, 1, h.stored, h.links)
	}

	m.index[id] = slotAddr{page: hooks[0].pid, slot: uint16(hooks[0].slot)}

	m.log.Debug().Uint64("id", uint64(id)).Int("fragments", len(chunks)).
		Msg("record chained across fresh pages")
	return nil
}

// writeFragment writes one record fragment into the page, prepending a
// continuation pointer when 'next' is non-nil. The caller fires the
// RecordUpdated hook.
func (m *Manager) writeFragment(pid PageID, owner ObjectID, frag []byte, next *slotAddr, flags uint16) (slotAddr, int, error) {
	stored := len(frag)
	if next != nil {
		stored += linkPtrSz
		flags |= slotLink
	}

	pi := m.pages[pid]
	if pi.BytesFreeAfterReservation(stored) < 0 {
		return slotAddr{}, 0, &ContractError{
			Op:     "PageForRecord",
			PageID: pid,
			Detail: fmt.Sprintf("page cannot host %d bytes", stored),
		}
	}

	buf, err := m.readPage(pid)
	if err != nil {
		return slotAddr{}, 0, err
	}
	pg := openPage(buf, m.maxSlots)

	slotNo, ok := pg.freeSlot()
	if !ok {
		return slotAddr{}, 0, fmt.Errorf("%w: page %d directory full but accounting disagrees",
			ErrCorrupt, pid)
	}

	if pg.freeOff()+stored > len(buf) {
		pg.compact(-1)
	}

	off := pg.freeOff()
	if next != nil {
		next.marshalInto(buf[off : off+linkPtrSz])
		copy(buf[off+linkPtrSz:], frag)
	} else {
		copy(buf[off:], frag)
	}

	pg.setSlot(slotNo, slot{
		offset: uint16(off),
		length: uint16(stored),
		flags:  flags,
		owner:  owner,
	})
	pg.setNumRecords(pg.numRecords() + 1)
	pg.setFreeOff(off + stored)

	if err := m.writePage(pid, buf); err != nil {
		return slotAddr{}, 0, err
	}

	pi.recordInserted(slotNo, stored, next != nil)
	return slotAddr{page: pid, slot: uint16(slotNo)}, stored, nil
}

// removeChain walks the chain starting at 'addr' and frees every slot,
// firing negative-delta RecordUpdated hooks per page and reclaiming
// pages that end up empty. The id index is not touched.
func (m *Manager) removeChain(addr slotAddr) error {
	type hop struct {
		addr   slotAddr
		stored int
		link   bool
	}

	var hops []hop
	cur := addr
	for {
		buf, err := m.readPage(cur.page)
		if err != nil {
			return err
		}
		pg := openPage(buf, m.maxSlots)

		s := pg.slot(int(cur.slot))
		if !s.used() {
			return fmt.Errorf("%w: chain points at a free slot (%v)", ErrCorrupt, cur)
		}
		hops = append(hops, hop{addr: cur, stored: int(s.length), link: s.link()})
		if len(hops) > m.pgr.Count() {
			return fmt.Errorf("%w: link-record chain does not terminate", ErrCorrupt)
		}

		if !s.link() {
			break
		}
		next, err := unmarshalSlotAddr(pg.payload(s))
		if err != nil {
			return err
		}
		cur = next
	}

	for _, h := range hops {
		buf, err := m.readPage(h.addr.page)
		if err != nil {
			return err
		}
		pg := openPage(buf, m.maxSlots)

		pg.setSlot(int(h.addr.slot), slot{})
		pg.setNumRecords(pg.numRecords() - 1)
		if err := m.writePage(h.addr.page, buf); err != nil {
			return err
		}

		pi := m.pages[h.addr.page]
		pi.recordRemoved(int(h.addr.slot), h.link)

		links := 0
		if h.link {
			links = -1
		}
		m.strategy.RecordUpdated(h.addr.page, pi, int(h.addr.slot), -1, -h.stored, links)

		if pi.NumRecords() == 0 {
			if err := m.reclaimPage(h.addr.page); err != nil {
				return err
			}
		}
	}
	return nil
}

// newPage brings a page into the pool, preferring reclaimed pages over
// allocating from the pager, and fires the PageInserted hook.
func (m *Manager) newPage() (PageID, error) {
	var pid PageID
	if len(m.free) > 0 {
		pid = m.free[0]
		m.free = m.free[1:]
	} else {
		id, err := m.pgr.Alloc(1)
		if err != nil {
			return 0, err
		}
		pid = PageID(id)
	}

	buf := make([]byte, m.pgr.PageSize())
	pg := openPage(buf, m.maxSlots)
	pg.format()
	if err := m.writePage(pid, buf); err != nil {
		return 0, err
	}

	pi := NewPageInfo(m.pgr.PageSize(), pageOverhead(m.maxSlots), m.maxSlots)
	m.pages[pid] = pi
	m.strategy.PageInserted(pid, pi)

	m.log.Debug().Uint64("page", uint64(pid)).Msg("page entered the pool")
	return pid, nil
}

// reclaimPage removes a fully evacuated page from the pool and parks it
// on the free list for reuse.
func (m *Manager) reclaimPage(pid PageID) error {
	pi := m.pages[pid]
	m.strategy.PageRemoved(pid, pi)
	delete(m.pages, pid)

	buf, err := m.readPage(pid)
	if err != nil {
		return err
	}
	openPage(buf, m.maxSlots).clear()
	if err := m.writePage(pid, buf); err != nil {
		return err
	}

	m.free = append(m.free, pid)
	m.log.Debug().Uint64("page", uint64(pid)).Msg("page reclaimed")
	return nil
}

// scan rebuilds the page table, the id index, and the id counter from
// the pages already in the pager. Head slots carry their object id, so
// no external catalog is needed.
func (m *Manager) scan() error {
	for i := 0; i < m.pgr.Count(); i++ {
		pid := PageID(i)

		buf, err := m.readPage(pid)
		if err != nil {
			return err
		}
		pg := openPage(buf, m.maxSlots)

		if !pg.inUse() {
			m.free = append(m.free, pid)
			continue
		}
		if err := pg.validate(); err != nil {
			return fmt.Errorf("page %d: %w", pid, err)
		}

		pi := NewPageInfo(m.pgr.PageSize(), pageOverhead(m.maxSlots), m.maxSlots)
		for n := 0; n < m.maxSlots; n++ {
			s := pg.slot(n)
			if !s.used() {
				continue
			}
			pi.recordInserted(n, int(s.length), s.link())
			if s.head() {
				m.index[s.owner] = slotAddr{page: pid, slot: uint16(n)}
				if s.owner >= m.nextID {
					m.nextID = s.owner + 1
				}
			}
		}

		m.pages[pid] = pi
		m.strategy.PageInserted(pid, pi)
	}

	if m.pgr.Count() > 0 {
		m.log.Debug().Int("pages", len(m.pages)).Int("records", len(m.index)).
			Msg("rebuilt state from existing pages")
	}
	return nil
}

func (m *Manager) readPage(pid PageID) ([]byte, error) {
	buf, err := m.pgr.Read(int(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to read page %d: %w", pid, err)
	}
	return buf, nil
}

func (m *Manager) writePage(pid PageID, buf []byte) error {
	if err := m.pgr.Write(int(pid), buf); err != nil {
		return fmt.Errorf("failed to write page %d: %w", pid, err)
	}
	return nil
}

func defaultMaxSlots(pageSize int) int {
	n := pageSize / 128
	if n < 4 {
		n = 4
	}
	if n > 256 {
		n = 256
	}
	return n
}
