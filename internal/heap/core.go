// Package heap implements the paged, bump-allocated cell store that backs
// the VM's main memory (spec.md §3.2): a mapping from non-negative integer
// addresses to arbitrary-precision integer cells, plus the array (§3.3) and
// hash (§3.4) descriptor conventions laid out on top of it.
//
// The paging scheme here (PagedCore) is adapted from the teacher project's
// internal/mem.PagedCore: address/page bookkeeping is type-agnostic, so the
// allocation math carries over unchanged while the page payload is widened
// from int to *big.Int to satisfy the arbitrary-precision requirement
// (spec.md §9).
package heap

import "fmt"

// pagedCore provides address-to-page bookkeeping common to any paged memory
// model, independent of what a page actually stores.
type pagedCore struct {
	pageSize uint64
	limit    uint64 // 0 means unlimited

	bases []uint64
	sizes []uint64
}

// LimitError indicates that a load or store exceeded the configured memory
// limit.
type LimitError struct {
	Addr uint64
	Op   string
}

func (lim LimitError) Error() string {
	return fmt.Sprintf("memory limit exceeded by %v @%v", lim.Op, lim.Addr)
}

func (m *pagedCore) findPage(addr uint64) int {
	i, j := 0, len(m.bases)
	for i < j {
		h := (i+j)>>1 + 1
		if h < len(m.bases) && m.bases[h] <= addr {
			i = h
		} else {
			j = h - 1
		}
	}
	return i
}

func (m *pagedCore) allocPage(pageID int, addr uint64) (base, size uint64, isNew bool) {
	if pageID == len(m.bases) {
		base = addr / m.pageSize * m.pageSize
		size = m.pageSize
		if i := len(m.bases) - 1; i >= 0 {
			lastEnd := m.bases[i] + m.sizes[i]
			if base < lastEnd {
				size -= lastEnd - base
				base = lastEnd
			}
		}
		m.bases = append(m.bases, base)
		m.sizes = append(m.sizes, size)
		return base, size, true
	}

	base = m.bases[pageID]
	if addr < base {
		size = m.pageSize
		nextBase := base
		base = addr / m.pageSize * m.pageSize
		if gapSize := nextBase - base; size > gapSize {
			size = gapSize
		}
		m.bases = append(m.bases, 0)
		m.sizes = append(m.sizes, 0)
		copy(m.bases[pageID+1:], m.bases[pageID:])
		copy(m.sizes[pageID+1:], m.sizes[pageID:])
		m.bases[pageID] = base
		m.sizes[pageID] = size
		return base, size, true
	}

	return base, m.sizes[pageID], false
}

func (m *pagedCore) checkLimit(addr uint64, op string) error {
	if m.limit != 0 && addr > m.limit {
		return LimitError{addr, op}
	}
	return nil
}
