// Package storebolt is the default, production rtree.Store: three bbolt
// buckets per index standing in for the node/rowid/parent backing tables of
// spec.md §6. Every Store method runs in its own bbolt transaction
// (db.Update for writes, db.View for reads), so each single call is atomic
// and bbolt serializes writers; the several Store calls made by one
// Index.Update are separate transactions and are not committed as a unit.
package storebolt

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/rtreeindex/rtree"
)

// Store adapts a *bolt.DB to rtree.Store for a single named index. Several
// Stores, each with their own name, can share one *bolt.DB — mirroring the
// teacher's multiple-DBI-per-environment model (dbi.go) where one data file
// hosts many named tables.
type Store struct {
	db     *bolt.DB
	owned  bool
	nodes  []byte
	rowids []byte
	parent []byte
}

// Open opens (creating if necessary) a bbolt file at path and returns a
// Store for the named index within it.
func Open(path, indexName string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storebolt: open %s: %w", path, err)
	}
	s, err := New(db, indexName)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// New wraps an already-open *bolt.DB, creating the three buckets for
// indexName if absent. The caller retains ownership of db.
func New(db *bolt.DB, indexName string) (*Store, error) {
	s := &Store{
		db:     db,
		nodes:  []byte(indexName + "_node"),
		rowids: []byte(indexName + "_rowid"),
		parent: []byte(indexName + "_parent"),
	}
	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{s.nodes, s.rowids, s.parent} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		// Node id 1 is reserved for the root (§6) and is written directly,
		// bypassing NextSequence; seed the bucket's sequence counter past it
		// so the first auto-assigned id (WriteNode with id==0) is 2, not a
		// collision with the root.
		nodes := tx.Bucket(s.nodes)
		if nodes.Sequence() < 1 {
			if err := nodes.SetSequence(1); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storebolt: create buckets: %w", err)
	}
	return s, nil
}

var _ rtree.Store = (*Store)(nil)

func keyOf(id int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

func idOf(b []byte) int64 { return int64(binary.BigEndian.Uint64(b)) }

func (s *Store) ReadNode(id int64) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.nodes).Get(keyOf(id))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil, err
}

func (s *Store) WriteNode(id int64, blob []byte) (int64, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.nodes)
		if id == 0 {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			id = int64(seq)
		}
		return b.Put(keyOf(id), blob)
	})
	return id, err
}

func (s *Store) DeleteNode(id int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.nodes).Delete(keyOf(id))
	})
}

func (s *Store) ReadRowid(rowid int64) (int64, bool, error) {
	var id int64
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.rowids).Get(keyOf(rowid))
		if v != nil {
			id, ok = idOf(v), true
		}
		return nil
	})
	return id, ok, err
}

func (s *Store) WriteRowid(rowid, nodeID int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.rowids).Put(keyOf(rowid), keyOf(nodeID))
	})
}

func (s *Store) DeleteRowid(rowid int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.rowids).Delete(keyOf(rowid))
	})
}

func (s *Store) ReadParent(nodeID int64) (int64, bool, error) {
	var id int64
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.parent).Get(keyOf(nodeID))
		if v != nil {
			id, ok = idOf(v), true
		}
		return nil
	})
	return id, ok, err
}

func (s *Store) WriteParent(nodeID, parentID int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.parent).Put(keyOf(nodeID), keyOf(parentID))
	})
}

func (s *Store) DeleteParent(nodeID int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.parent).Delete(keyOf(nodeID))
	})
}

func (s *Store) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}
