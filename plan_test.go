package rtree

import "testing"

func TestChooseStrategyPrefersRowidEQ(t *testing.T) {
	constraints := []PlanConstraint{
		{Column: 1, Op: OpGE, Usable: true},
		{Column: 0, Op: OpEQ, Usable: true},
	}
	plan := ChooseStrategy(constraints)
	if plan.Strategy != 1 {
		t.Fatalf("strategy = %d, want 1", plan.Strategy)
	}
	if plan.RowidConsumed != 1 {
		t.Fatalf("RowidConsumed = %d, want 1", plan.RowidConsumed)
	}
	if plan.EstimatedCost != 10 {
		t.Fatalf("EstimatedCost = %v, want 10", plan.EstimatedCost)
	}
}

func TestChooseStrategyIgnoresUnusableRowidEQ(t *testing.T) {
	constraints := []PlanConstraint{
		{Column: 0, Op: OpEQ, Usable: false},
		{Column: 1, Op: OpGE, Usable: true},
	}
	plan := ChooseStrategy(constraints)
	if plan.Strategy != 2 {
		t.Fatalf("strategy = %d, want 2 when rowid EQ is not usable", plan.Strategy)
	}
}

func TestChooseStrategyEncodesScan(t *testing.T) {
	constraints := []PlanConstraint{
		{Column: 1, Op: OpGE, Usable: true},
		{Column: 2, Op: OpLE, Usable: true},
		{Column: 3, Op: OpEQ, Usable: false}, // skipped: not usable
	}
	plan := ChooseStrategy(constraints)
	if plan.Strategy != 2 {
		t.Fatalf("strategy = %d, want 2", plan.Strategy)
	}
	want := []byte{byte(OpGE), 'a', byte(OpLE), 'b'}
	if len(plan.IdxStr) != len(want) {
		t.Fatalf("idxStr = %v, want %v", plan.IdxStr, want)
	}
	for i := range want {
		if plan.IdxStr[i] != want[i] {
			t.Fatalf("idxStr = %v, want %v", plan.IdxStr, want)
		}
	}
	if got := 2_000_000 / float64(1+2); plan.EstimatedCost != got {
		t.Fatalf("EstimatedCost = %v, want %v", plan.EstimatedCost, got)
	}
}

func TestChooseStrategyCostDecreasesWithMoreConstraints(t *testing.T) {
	one := ChooseStrategy([]PlanConstraint{{Column: 1, Op: OpGE, Usable: true}})
	two := ChooseStrategy([]PlanConstraint{
		{Column: 1, Op: OpGE, Usable: true},
		{Column: 2, Op: OpLE, Usable: true},
	})
	if two.EstimatedCost >= one.EstimatedCost {
		t.Fatalf("cost with more constraints (%v) should be lower than with fewer (%v)", two.EstimatedCost, one.EstimatedCost)
	}
}

func TestDecodePlanRoundTrip(t *testing.T) {
	constraints := []PlanConstraint{
		{Column: 1, Op: OpGE, Usable: true},
		{Column: 2, Op: OpLE, Usable: true},
		{Column: 4, Op: OpEQ, Usable: true},
	}
	plan := ChooseStrategy(constraints)
	decoded := DecodePlan(plan.IdxStr)
	if len(decoded) != len(constraints) {
		t.Fatalf("decoded %d constraints, want %d", len(decoded), len(constraints))
	}
	for i, want := range constraints {
		got := decoded[i]
		if got.Column != want.Column || got.Op != want.Op || !got.Usable {
			t.Fatalf("decoded[%d] = %+v, want %+v", i, got, want)
		}
	}
}

func TestDecodePlanEmpty(t *testing.T) {
	if got := DecodePlan(nil); len(got) != 0 {
		t.Fatalf("DecodePlan(nil) = %v, want empty", got)
	}
}
