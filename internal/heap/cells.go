package heap

import "math/big"

// DefaultPageSize provides a default page size for Cells, matching the
// teacher's DefaultIntsPageSize convention.
const DefaultPageSize = 255

// Cells implements the VM's addressable main memory: a paged store of
// *big.Int cells. Pages may not all be the same size, but usually are in
// practice. Adapted from the teacher's internal/mem.Ints, widened from int
// to *big.Int cells.
type Cells struct {
	pagedCore
	pages [][]*big.Int
}

// SetPageSize configures the page size used for future allocations; a zero
// value falls back to DefaultPageSize on first Stor.
func (m *Cells) SetPageSize(n uint64) { m.pageSize = n }

// SetLimit configures the address limit past which Load/Stor error; zero
// means unlimited.
func (m *Cells) SetLimit(n uint64) { m.limit = n }

func zero() *big.Int { return new(big.Int) }

// Size returns an address one position higher than the last position in the
// last page allocated so far.
func (m *Cells) Size() uint64 {
	if i := len(m.bases) - 1; i >= 0 {
		return m.bases[i] + uint64(len(m.pages[i]))
	}
	return 0
}

// Load returns a single cell's value. Unallocated pages read as zero.
func (m *Cells) Load(addr uint64) (*big.Int, error) {
	if err := m.checkLimit(addr, "load"); err != nil {
		return nil, err
	}
	if m.pageSize == 0 || len(m.pages) == 0 {
		return zero(), nil
	}

	pageID := m.findPage(addr)
	base := m.bases[pageID]
	page := m.pages[pageID]
	if i := addr - base; i < uint64(len(page)) {
		if v := page[i]; v != nil {
			return new(big.Int).Set(v), nil
		}
	}
	return zero(), nil
}

// LoadInto reads len(buf) cells starting at addr, zeroing unallocated
// stretches. Returns an error (with no partial load) if the limit would be
// exceeded.
func (m *Cells) LoadInto(addr uint64, buf []*big.Int) error {
	if len(buf) == 0 {
		return nil
	}
	end := addr + uint64(len(buf))
	if err := m.checkLimit(end, "load"); err != nil {
		return err
	}
	for i := range buf {
		buf[i] = zero()
	}
	if m.pageSize == 0 || len(m.pages) == 0 {
		return nil
	}

	for pageID := m.findPage(addr); pageID < len(m.bases); pageID++ {
		base := m.bases[pageID]
		if base >= end {
			break
		}
		page := m.pages[pageID]
		for i, v := range page {
			cellAddr := base + uint64(i)
			if cellAddr < addr || cellAddr >= end || v == nil {
				continue
			}
			buf[cellAddr-addr] = new(big.Int).Set(v)
		}
	}
	return nil
}

// Stor stores values at consecutive addresses starting at addr, allocating
// pages as necessary. No partial store is done if the limit would be
// exceeded.
func (m *Cells) Stor(addr uint64, values ...*big.Int) error {
	if len(values) == 0 {
		return nil
	}
	end := addr + uint64(len(values))
	if err := m.checkLimit(end, "stor"); err != nil {
		return err
	}
	if m.pageSize == 0 {
		m.pageSize = DefaultPageSize
	}

	for pageID := m.findPage(addr); addr < end; pageID++ {
		base, size, page := m.allocPage(pageID, addr)
		if skip := addr - base; skip > 0 {
			if skip >= size {
				continue
			}
			base += skip
			page = page[skip:]
		}
		n := uint64(len(page))
		if remain := end - addr; n > remain {
			n = remain
		}
		for i := uint64(0); i < n; i++ {
			page[i] = new(big.Int).Set(values[0])
			values = values[1:]
		}
		addr += n
	}
	return nil
}

func (m *Cells) allocPage(pageID int, addr uint64) (base, size uint64, page []*big.Int) {
	base, size, isNew := m.pagedCore.allocPage(pageID, addr)
	if isNew {
		page = make([]*big.Int, size)
		if pageID == len(m.bases) {
			m.pages = append(m.pages, page)
		} else {
			m.pages = append(m.pages, nil)
			copy(m.pages[pageID+1:], m.pages[pageID:])
			m.pages[pageID] = page
		}
	} else {
		page = m.pages[pageID]
	}
	return base, size, page
}
