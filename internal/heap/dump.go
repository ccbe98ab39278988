package heap

import "math/big"

// Dump exposes internal page layout for tests, mirroring the teacher's
// internal/mem Dump helper.
type Dump struct {
	Bases []uint64
	Sizes []uint64
	Pages [][]*big.Int
}

func (m *Cells) Dump() Dump {
	return Dump{Bases: m.bases, Sizes: m.sizes, Pages: m.pages}
}
