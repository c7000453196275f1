package rtree

// This file is index selection (spec.md §4.9): turning the planner's
// constraint list into a strategy, an encoded idxStr, and a cost estimate.
// Grounded on the plan/cost shape of the teacher's own Env option
// validation (small, pure, side-effect-free decision functions) since the
// teacher has no query planner of its own to imitate directly.

// ConstraintOp values (constants.go) are shared between PlanConstraint and
// the encoded idxStr.

// PlanConstraint describes one constraint the host planner offered.
type PlanConstraint struct {
	// Column is the coordinate column index, 1-based as seen by the host
	// (column 0 is the rowid column).
	Column int
	Op     ConstraintOp
	Usable bool
}

// Plan is the result of ChooseStrategy: what the cursor should do and what
// the host should report back to its own planner.
type Plan struct {
	Strategy      int // 1 = direct rowid lookup, 2 = tree scan
	IdxStr        []byte
	EstimatedCost float64
	RowidConsumed int // index into constraints of the consumed EQ-on-rowid constraint, or -1
}

// ChooseStrategy implements §4.9: an EQ constraint on the rowid column
// (Column == 0) wins outright with a small fixed cost; otherwise every
// usable coordinate or MATCH constraint is encoded into idxStr and the
// cost falls off with the number of constraints encoded.
func ChooseStrategy(constraints []PlanConstraint) Plan {
	for i, c := range constraints {
		if c.Usable && c.Column == 0 && c.Op == OpEQ {
			return Plan{Strategy: 1, EstimatedCost: 10, RowidConsumed: i}
		}
	}

	var idxStr []byte
	n := 0
	for _, c := range constraints {
		if !c.Usable || c.Column == 0 {
			continue
		}
		idxStr = append(idxStr, byte(c.Op), byte('a'+c.Column-1))
		n++
	}
	return Plan{
		Strategy:      2,
		IdxStr:        idxStr,
		EstimatedCost: 2_000_000 / float64(1+n),
		RowidConsumed: -1,
	}
}

// DecodePlan reverses ChooseStrategy's idxStr encoding back into per-column
// op codes, for the cursor's constraint evaluator (cursor.go) to consume.
func DecodePlan(idxStr []byte) []PlanConstraint {
	out := make([]PlanConstraint, 0, len(idxStr)/2)
	for i := 0; i+1 < len(idxStr); i += 2 {
		op := ConstraintOp(idxStr[i])
		col := int(idxStr[i+1]-'a') + 1
		out = append(out, PlanConstraint{Column: col, Op: op, Usable: true})
	}
	return out
}
