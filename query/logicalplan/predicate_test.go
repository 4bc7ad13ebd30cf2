package logicalplan

import "testing"

// Predicate is a marker interface; this just confirms every concrete node
// satisfies it, catching an accidental missing isPredicate() method at
// compile time.
func TestPredicateNodesSatisfyInterface(t *testing.T) {
	var preds = []Predicate{
		Eq{Column: "a", Value: 1},
		Gt{Column: "a", Value: 1},
		Lt{Column: "a", Value: 1},
		And{Left: Eq{Column: "a", Value: 1}, Right: Gt{Column: "b", Value: 2}},
		Or{Left: Eq{Column: "a", Value: 1}, Right: Gt{Column: "b", Value: 2}},
	}
	for _, p := range preds {
		if p == nil {
			t.Fatal("predicate literal should never be nil")
		}
	}
}
