package rtree

import "github.com/rtreeindex/rtree/spill"

// This file is the optional mmap spill-to-disk overflow for the node
// cache: when wired in, the page of every freshly allocated node (newNode)
// is carved out of a memory-mapped scratch file instead of the Go heap,
// and its slot is freed when the node is released. Pages loaded from the
// Store still live on the Go heap, and released pages are not kept in the
// file.
// Grounded on the teacher's own spill.Buffer/mmap pairing, repurposed here
// for node pages sized to the index's node size rather than raw B+tree
// pages.

// SpillCache backs a pool of scratch page buffers in a memory-mapped file.
// It is opt-in: an Index with no SpillCache simply allocates node pages on
// the Go heap via the pool's usual make([]byte, ...) path.
type SpillCache struct {
	buf *spill.Buffer
}

// OpenSpillCache creates a spill file at path (truncating any existing one)
// sized for the given node size, with room for initialCap pages per growth
// segment.
func OpenSpillCache(path string, nodeSize int, initialCap uint32) (*SpillCache, error) {
	buf, err := spill.New(path, uint32(nodeSize), initialCap)
	if err != nil {
		return nil, ioErr("opening spill cache", err)
	}
	return &SpillCache{buf: buf}, nil
}

// alloc hands back a fresh page-sized slice backed by the spill file and
// the slot needed to release it later.
func (s *SpillCache) alloc() ([]byte, *spill.Slot, error) {
	data, slot, err := s.buf.Allocate()
	if err != nil {
		return nil, nil, ioErr("allocating spill slot", err)
	}
	return data, slot, nil
}

// release returns slot to the free pool; the backing bytes remain mapped
// but are no longer considered live.
func (s *SpillCache) release(slot *spill.Slot) {
	s.buf.Release(slot)
}

// Stats reports the spill file's current occupancy, for diagnostics
// alongside Index.Stats.
func (s *SpillCache) Stats() (capacity, allocated uint32) {
	return s.buf.Capacity(), s.buf.AllocatedCount()
}

// Close closes the spill file. If deleteFile is true the backing file(s)
// are also removed.
func (s *SpillCache) Close(deleteFile bool) error {
	if err := s.buf.Close(deleteFile); err != nil {
		return ioErr("closing spill cache", err)
	}
	return nil
}

// AttachSpillCache wires a spill cache into idx's node pool: subsequent
// newly allocated pages (newNode) are carved out of the spill file instead
// of the Go heap.
func (idx *Index) AttachSpillCache(s *SpillCache) {
	idx.pool.spill = s
}
