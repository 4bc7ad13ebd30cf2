package physicalplan

import (
	"fmt"

	"github.com/apache/arrow/go/v12/arrow/memory"
	metro "github.com/dgryski/go-metro"

	"github.com/polarsignals/columnfort/column"
	"github.com/polarsignals/columnfort/errs"
	"github.com/polarsignals/columnfort/schema"
)

// JoinType selects HashJoin's outer-row behavior (spec.md §4.6).
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
	RightJoin
	FullJoin
)

// HashJoin joins left (the probe side) against right (the build side) on
// equal key columns (spec.md §4.6). For each probe row it hashes the join
// key and consults the build map; on a hash hit, keys are compared exactly
// to handle collisions. Outer variants emit the unmatched side with nulls
// for the absent side's columns. A key type mismatch fails the operator.
//
// Tie-break rule: rows are emitted in probe-side order; a probe row that
// matches multiple build rows emits those build rows in their original
// (insertion) order.
func HashJoin(mem memory.Allocator, left Batch, leftKey string, right Batch, rightKey string, joinType JoinType) (Batch, error) {
	if err := left.validate(); err != nil {
		return Batch{}, err
	}
	if err := right.validate(); err != nil {
		return Batch{}, err
	}

	li, err := left.IndexOf(leftKey)
	if err != nil {
		return Batch{}, err
	}
	ri, err := right.IndexOf(rightKey)
	if err != nil {
		return Batch{}, err
	}
	leftKeyCol := left.Columns[li]
	rightKeyCol := right.Columns[ri]
	if leftKeyCol.Type.Tag != rightKeyCol.Type.Tag {
		return Batch{}, errs.Newf(errs.KindSchemaMismatch, "hash join: key type mismatch: left %s vs right %s", leftKeyCol.Type, rightKeyCol.Type)
	}

	outSchema, err := joinSchema(left.Schema, right.Schema)
	if err != nil {
		return Batch{}, err
	}
	builders := make([]*column.Builder, outSchema.Len())
	for i, f := range outSchema.Fields {
		b, err := column.NewBuilder(mem, f.Type)
		if err != nil {
			return Batch{}, err
		}
		builders[i] = b
	}

	// Build the hash map over the build (right) side.
	buildMap := make(map[uint64][]int)
	for i := 0; i < right.Len(); i++ {
		if rightKeyCol.IsNull(i) {
			continue
		}
		h := hashKeyValue(rightKeyCol.HashKey(i))
		buildMap[h] = append(buildMap[h], i)
	}

	nLeft := len(left.Columns)
	appendRow := func(leftRow, rightRow int) error {
		for i := 0; i < nLeft; i++ {
			if leftRow < 0 {
				builders[i].AppendNull()
				continue
			}
			if err := left.Columns[i].AppendRowFrom(leftRow, builders[i]); err != nil {
				return err
			}
		}
		for i := 0; i < len(right.Columns); i++ {
			dst := builders[nLeft+i]
			if rightRow < 0 {
				dst.AppendNull()
				continue
			}
			if err := right.Columns[i].AppendRowFrom(rightRow, dst); err != nil {
				return err
			}
		}
		return nil
	}

	matchedBuildRows := make(map[int]bool)
	for p := 0; p < left.Len(); p++ {
		matched := false
		if !leftKeyCol.IsNull(p) {
			h := hashKeyValue(leftKeyCol.HashKey(p))
			key := leftKeyCol.HashKey(p)
			for _, bi := range buildMap[h] {
				if rightKeyCol.HashKey(bi) != key {
					continue // hash collision, not an actual match
				}
				matched = true
				matchedBuildRows[bi] = true
				if err := appendRow(p, bi); err != nil {
					return Batch{}, err
				}
			}
		}
		if !matched && (joinType == LeftJoin || joinType == FullJoin) {
			if err := appendRow(p, -1); err != nil {
				return Batch{}, err
			}
		}
	}

	if joinType == RightJoin || joinType == FullJoin {
		for bi := 0; bi < right.Len(); bi++ {
			if matchedBuildRows[bi] {
				continue
			}
			if err := appendRow(-1, bi); err != nil {
				return Batch{}, err
			}
		}
	}

	cols := make([]column.Column, len(builders))
	for i, b := range builders {
		cols[i] = b.NewColumn()
	}
	return Batch{Schema: outSchema, Columns: cols}, nil
}

// joinSchema concatenates left's fields with right's, disambiguating any
// name collision by qualifying the right-hand field.
func joinSchema(left, right *schema.Schema) (*schema.Schema, error) {
	fields := make([]schema.Field, 0, left.Len()+right.Len())
	fields = append(fields, left.Fields...)
	for _, f := range right.Fields {
		name := f.Name
		if left.IndexOf(name) >= 0 {
			name = "right." + name
		}
		f.Name = name
		fields = append(fields, f)
	}
	return schema.NewSchema(fields...)
}

// hashKeyValue hashes a HashKey-produced scalar's string form using
// go-metro.
func hashKeyValue(v any) uint64 {
	if v == nil {
		return 0
	}
	return metro.Hash64Str(fmt.Sprintf("%v", v), 0)
}
