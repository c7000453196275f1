// Package benchmarks measures insertion and scan throughput across split
// policies, over the in-memory storemem backing store, mirroring the teacher's own benchmarks
// package (one file per concern, table-driven where the access pattern
// varies).
package benchmarks

import (
	"fmt"
	"testing"

	"github.com/rtreeindex/rtree"
	"github.com/rtreeindex/rtree/storemem"
)

func benchInsert(b *testing.B, split rtree.SplitPolicy) {
	idx, err := rtree.Create(rtree.Options{Name: "bench", Dims: 2, Split: split, Store: storemem.New()})
	if err != nil {
		b.Fatalf("Create: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x := float64(i % 10000)
		rid := int64(i + 1)
		box := rtree.Rect{x, x + 1, x, x + 1}
		if _, err := idx.Update(rtree.UpdateOp{NewRowid: &rid, Box: box}); err != nil {
			b.Fatalf("Update: %v", err)
		}
	}
}

func BenchmarkInsertQuadratic(b *testing.B) { benchInsert(b, rtree.SplitGuttmanQuadratic) }
func BenchmarkInsertLinear(b *testing.B)    { benchInsert(b, rtree.SplitGuttmanLinear) }
func BenchmarkInsertRStar(b *testing.B)     { benchInsert(b, rtree.SplitRStar) }

// BenchmarkFullScan measures strategy-2 scan throughput over a pre-built
// index of varying size.
func BenchmarkFullScan(b *testing.B) {
	for _, n := range []int{1_000, 10_000, 100_000} {
		n := n
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			idx, err := rtree.Create(rtree.Options{Name: "bench", Dims: 2, Store: storemem.New()})
			if err != nil {
				b.Fatalf("Create: %v", err)
			}
			for i := 0; i < n; i++ {
				x := float64(i % 10000)
				rid := int64(i + 1)
				if _, err := idx.Update(rtree.UpdateOp{NewRowid: &rid, Box: rtree.Rect{x, x + 1, x, x + 1}}); err != nil {
					b.Fatalf("Update: %v", err)
				}
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				cur := idx.NewCursor(2, nil)
				if err := cur.Open(0); err != nil {
					b.Fatalf("Open: %v", err)
				}
				for cur.Valid() {
					_ = cur.Cell()
					if err := cur.Next(); err != nil {
						b.Fatalf("Next: %v", err)
					}
				}
				cur.Close()
			}
		})
	}
}

// BenchmarkConstrainedScan measures strategy-2 scan throughput under a
// selective range constraint, the access pattern a real spatial query
// drives.
func BenchmarkConstrainedScan(b *testing.B) {
	idx, err := rtree.Create(rtree.Options{Name: "bench", Dims: 2, Store: storemem.New()})
	if err != nil {
		b.Fatalf("Create: %v", err)
	}
	const n = 50_000
	for i := 0; i < n; i++ {
		x := float64(i % 10000)
		rid := int64(i + 1)
		if _, err := idx.Update(rtree.UpdateOp{NewRowid: &rid, Box: rtree.Rect{x, x + 1, x, x + 1}}); err != nil {
			b.Fatalf("Update: %v", err)
		}
	}
	constraints := []rtree.Constraint{
		{Column: 0, Op: rtree.OpGE, Value: 100},
		{Column: 1, Op: rtree.OpLE, Value: 200},
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cur := idx.NewCursor(2, constraints)
		if err := cur.Open(0); err != nil {
			b.Fatalf("Open: %v", err)
		}
		for cur.Valid() {
			_ = cur.Cell()
			if err := cur.Next(); err != nil {
				b.Fatalf("Next: %v", err)
			}
		}
		cur.Close()
	}
}
