package physicalplan

import (
	"math"

	"github.com/polarsignals/columnfort/column"
	"github.com/polarsignals/columnfort/errs"
	"github.com/polarsignals/columnfort/query/logicalplan"
	"github.com/polarsignals/columnfort/schema"
)

// epsilon is f64::EPSILON per spec.md §4.6 "Numeric semantics".
const epsilon = 2.220446049250313e-16

// evalPredicate produces a boolean mask of pred over every row of batch,
// evaluated fully vectorized at the Filter call site (per-predicate masks
// combined bitwise, applied once). A column/literal type mismatch yields
// an all-false mask rather than an error.
func evalPredicate(b Batch, pred logicalplan.Predicate) ([]bool, error) {
	n := b.Len()
	switch p := pred.(type) {
	case logicalplan.Eq:
		return evalComparison(b, n, p.Column, p.Value, cmpEq)
	case logicalplan.Gt:
		return evalComparison(b, n, p.Column, p.Value, cmpGt)
	case logicalplan.Lt:
		return evalComparison(b, n, p.Column, p.Value, cmpLt)
	case logicalplan.And:
		left, err := evalPredicate(b, p.Left)
		if err != nil {
			return nil, err
		}
		right, err := evalPredicate(b, p.Right)
		if err != nil {
			return nil, err
		}
		return combineAnd(left, right), nil
	case logicalplan.Or:
		left, err := evalPredicate(b, p.Left)
		if err != nil {
			return nil, err
		}
		right, err := evalPredicate(b, p.Right)
		if err != nil {
			return nil, err
		}
		return combineOr(left, right), nil
	default:
		return nil, errs.Newf(errs.KindUnsupportedType, "physicalplan: unsupported predicate %T", pred)
	}
}

type cmpKind int

const (
	cmpEq cmpKind = iota
	cmpGt
	cmpLt
)

func evalComparison(b Batch, n int, colName string, literal any, kind cmpKind) ([]bool, error) {
	idx, err := b.IndexOf(colName)
	if err != nil {
		return nil, err
	}
	col := b.Columns[idx]
	mask := make([]bool, n)
	physType := col.Type
	for physType.Tag == schema.TypeNullable && physType.Elem != nil {
		physType = *physType.Elem
	}

	if physType.Tag == schema.TypeString {
		lit, ok := literal.(string)
		if !ok {
			return mask, nil // type mismatch: all-false
		}
		for i := 0; i < n; i++ {
			if col.IsNull(i) {
				continue
			}
			v := col.AsJSON(i).(string)
			mask[i] = compareOrdered(kind, stringCompare(v, lit))
		}
		return mask, nil
	}

	if physType.Tag == schema.TypeBoolean {
		if kind != cmpEq {
			return mask, nil
		}
		lit, ok := literal.(bool)
		if !ok {
			return mask, nil
		}
		for i := 0; i < n; i++ {
			if col.IsNull(i) {
				continue
			}
			mask[i] = col.AsJSON(i).(bool) == lit
		}
		return mask, nil
	}

	if !col.Type.Orderable() {
		return mask, nil
	}

	lit, ok := numericLiteral(literal)
	if !ok {
		return mask, nil // type mismatch: all-false
	}

	if canUseSIMD(col, n) {
		evalNumericSIMD(col, lit, kind, mask)
		return mask, nil
	}
	evalNumericScalar(col, n, lit, kind, mask)
	return mask, nil
}

func numericLiteral(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}

func stringCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareOrdered(kind cmpKind, cmp int) bool {
	switch kind {
	case cmpEq:
		return cmp == 0
	case cmpGt:
		return cmp > 0
	case cmpLt:
		return cmp < 0
	default:
		return false
	}
}

// evalNumericScalar is the data-parallel fallback: per-element compare with
// no SIMD involved. It is the path used for every numeric column that
// canUseSIMD rejects.
func evalNumericScalar(col column.Column, n int, lit float64, kind cmpKind, mask []bool) {
	for i := 0; i < n; i++ {
		if col.IsNull(i) {
			continue
		}
		v := col.AsJSON(i).(float64)
		mask[i] = compareNumeric(kind, v, lit)
	}
}

func compareNumeric(kind cmpKind, v, lit float64) bool {
	switch kind {
	case cmpEq:
		return math.Abs(v-lit) <= epsilon
	case cmpGt:
		return v > lit
	case cmpLt:
		return v < lit
	default:
		return false
	}
}
