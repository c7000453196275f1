// Package storemem is an ephemeral, in-process rtree.Store used by tests
// and quick experiments. It mirrors memorydb.MemDB from
// github.com/jaiminpan/mt-trie's accdb package: a mutex-guarded map
// standing in for a real engine, with no durability guarantees.
package storemem

import (
	"sync"
)

// Store is a map-backed rtree.Store. The zero value is not usable; use New.
type Store struct {
	mu      sync.RWMutex
	nodes   map[int64][]byte
	rowids  map[int64]int64
	parents map[int64]int64
	nextID  int64
}

// New returns an empty Store.
func New() *Store {
	s := &Store{
		nodes:   make(map[int64][]byte),
		rowids:  make(map[int64]int64),
		parents: make(map[int64]int64),
	}
	s.nextID = maxNodeID(s.nodes) + 1
	return s
}

// maxNodeID returns the largest node id already present, or 0 if nodes is
// empty, so nextID never collides with the reserved root id on reconnect.
func maxNodeID(nodes map[int64][]byte) int64 {
	var max int64
	for id := range nodes {
		if id > max {
			max = id
		}
	}
	return max
}

func (s *Store) ReadNode(id int64) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.nodes[id]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, true, nil
}

func (s *Store) WriteNode(id int64, blob []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == 0 {
		id = s.nextID
		s.nextID++
	} else if id >= s.nextID {
		s.nextID = id + 1
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	s.nodes[id] = cp
	return id, nil
}

func (s *Store) DeleteNode(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, id)
	return nil
}

func (s *Store) ReadRowid(rowid int64) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.rowids[rowid]
	return id, ok, nil
}

func (s *Store) WriteRowid(rowid, nodeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowids[rowid] = nodeID
	return nil
}

func (s *Store) DeleteRowid(rowid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rowids, rowid)
	return nil
}

func (s *Store) ReadParent(nodeID int64) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.parents[nodeID]
	return id, ok, nil
}

func (s *Store) WriteParent(nodeID, parentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parents[nodeID] = parentID
	return nil
}

func (s *Store) DeleteParent(nodeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.parents, nodeID)
	return nil
}

func (s *Store) Close() error { return nil }
