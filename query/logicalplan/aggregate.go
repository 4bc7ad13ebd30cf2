package logicalplan

import "fmt"

// AggFunc identifies an aggregate function (spec.md §4.6).
type AggFunc int

const (
	UnknownAggFunc AggFunc = iota
	CountAggFunc
	SumAggFunc
	AvgAggFunc
	MinAggFunc
	MaxAggFunc
)

func (f AggFunc) String() string {
	switch f {
	case CountAggFunc:
		return "count"
	case SumAggFunc:
		return "sum"
	case AvgAggFunc:
		return "avg"
	case MinAggFunc:
		return "min"
	case MaxAggFunc:
		return "max"
	default:
		return "unknown"
	}
}

// Aggregation describes one group-by aggregate: group by GroupBy column
// names, apply Func to Column, and name the result ResultName.
type Aggregation struct {
	GroupBy    []string
	Column     string
	Func       AggFunc
	ResultName string
}

// Validate reports a descriptive error for an incomplete Aggregation.
func (a Aggregation) Validate() error {
	if a.Column == "" {
		return fmt.Errorf("logicalplan: aggregation has no source column")
	}
	if a.Func == UnknownAggFunc {
		return fmt.Errorf("logicalplan: aggregation %q has no function", a.Column)
	}
	return nil
}
