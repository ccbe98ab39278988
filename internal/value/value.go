// Package value implements the tagged-integer runtime value encoding that
// every Wsrb value reduces to at run time: a single arbitrary-precision
// signed integer whose low two bits name a Tag.
package value

import "math/big"

// Tag is the low two bits of a wrapped Value.
type Tag uint8

const (
	TagSpecial Tag = 0 // 00
	TagInt     Tag = 1 // 01
	TagArray   Tag = 2 // 10
	TagHash    Tag = 3 // 11
)

func (t Tag) String() string {
	switch t {
	case TagSpecial:
		return "special"
	case TagInt:
		return "integer"
	case TagArray:
		return "array"
	case TagHash:
		return "hash"
	default:
		return "invalid"
	}
}

// Special enumerates the payloads carried by TagSpecial values.
type Special int64

const (
	False        Special = 0
	None         Special = 1 // internal-only sentinel, never user-visible
	True         Special = 2
	Nil          Special = 4
	ClassSpecial Special = 8
	ClassInt     Special = 9
	ClassArray   Special = 10
	ClassHash    Special = 11
)

var (
	tagMask  = big.NewInt(0x3)
	bigFalse = WrapSpecial(False)
	bigNil   = WrapSpecial(Nil)
)

// Wrap packs payload and tag into a single arbitrary-precision wrapped value:
// wrapped = (payload << 2) | tag. math/big's Lsh/Rsh/Or/And operate as if
// values were represented in infinite-precision two's complement, so this
// holds for negative payloads too.
func Wrap(payload *big.Int, tag Tag) *big.Int {
	w := new(big.Int).Lsh(payload, 2)
	w.Or(w, big.NewInt(int64(tag)))
	return w
}

// WrapInt64 is a convenience wrapper for small payloads.
func WrapInt64(payload int64, tag Tag) *big.Int {
	return Wrap(big.NewInt(payload), tag)
}

// TagOf extracts the low two bits of a wrapped value.
func TagOf(w *big.Int) Tag {
	var t big.Int
	t.And(w, tagMask)
	return Tag(t.Int64())
}

// Unwrap extracts the payload of a wrapped value, shifting right by 2. The
// tag is discarded; callers that care about it should check TagOf first.
func Unwrap(w *big.Int) *big.Int {
	return new(big.Int).Rsh(w, 2)
}

// UnwrapAddr extracts the payload of an array/hash-tagged wrapped value as a
// heap address. A payload outside uint64 range yields an undefined result
// (big.Int.Uint64 semantics); no panic is raised.
func UnwrapAddr(w *big.Int) uint64 {
	return Unwrap(w).Uint64()
}

// WrapSpecial wraps a Special enum value as a TagSpecial value.
func WrapSpecial(s Special) *big.Int {
	return WrapInt64(int64(s), TagSpecial)
}

// Int wraps a plain integer payload as a TagInt value.
func Int(n int64) *big.Int {
	return WrapInt64(n, TagInt)
}

// BigInt wraps an arbitrary-precision integer payload as a TagInt value.
func BigInt(n *big.Int) *big.Int {
	return Wrap(n, TagInt)
}

// Array wraps a heap address as a TagArray value.
func Array(addr uint64) *big.Int {
	return WrapInt64(int64(addr), TagArray)
}

// Hash wraps a heap address as a TagHash value.
func Hash(addr uint64) *big.Int {
	return WrapInt64(int64(addr), TagHash)
}

// ClassCodeOf returns the SPECIAL class-code constant for a tag, used by
// is_a? (spec.md §4.5).
func ClassCodeOf(t Tag) Special {
	switch t {
	case TagInt:
		return ClassInt
	case TagArray:
		return ClassArray
	case TagHash:
		return ClassHash
	default:
		return ClassSpecial
	}
}

// IsFalsy reports whether w is exactly NIL or FALSE -- the only two falsy
// values (spec.md §4.3/§4.4). Every other value, including wrapped 0 and
// empty arrays, is truthy.
func IsFalsy(w *big.Int) bool {
	if TagOf(w) != TagSpecial {
		return false
	}
	return w.Cmp(bigFalse) == 0 || w.Cmp(bigNil) == 0
}

// IsTruthy is the complement of IsFalsy.
func IsTruthy(w *big.Int) bool { return !IsFalsy(w) }

// Equal implements == by wrapped-value equality (spec.md §4.3): cross-kind
// equality is always false except by coincidence of encoding, which never
// arises from well-formed programs.
func Equal(a, b *big.Int) bool { return a.Cmp(b) == 0 }

// Compare implements <=> (spec.md §4.3): subtracts the unwrapped operands
// and classifies the result. Both operands must be TagInt; callers enforce
// this at the lowering layer (only Integer defines <=>).
func Compare(a, b *big.Int) int {
	ua, ub := Unwrap(a), Unwrap(b)
	return ua.Cmp(ub)
}
