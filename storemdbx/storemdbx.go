//go:build cgo

// Package storemdbx is a second rtree.Store adapter, backed by a real MDBX
// environment via github.com/erigontech/mdbx-go. It exists to let the
// cross-engine compatibility tests (tests/engine_compat_test.go) exercise
// the same index logic against a genuinely different storage engine than
// storebolt, the way the teacher's own tests/compat_test.go cross-checks
// gdbx against mdbx-go byte for byte.
package storemdbx

import (
	"encoding/binary"
	"fmt"

	mdbx "github.com/erigontech/mdbx-go/mdbx"

	"github.com/rtreeindex/rtree"
)

// Store adapts an MDBX environment to rtree.Store, using three named
// sub-databases for the node/rowid/parent tables.
type Store struct {
	env                     *mdbx.Env
	nodeDBI, rowidDBI, parentDBI mdbx.DBI
	nextNode                int64
}

// Open creates or opens an MDBX environment at path and prepares the three
// sub-databases for indexName.
func Open(path, indexName string) (*Store, error) {
	env, err := mdbx.NewEnv(mdbx.Label(indexName))
	if err != nil {
		return nil, fmt.Errorf("storemdbx: new env: %w", err)
	}
	if err := env.SetOption(mdbx.OptMaxDB, 3); err != nil {
		env.Close()
		return nil, fmt.Errorf("storemdbx: set max dbs: %w", err)
	}
	if err := env.Open(path, mdbx.Create, 0o644); err != nil {
		env.Close()
		return nil, fmt.Errorf("storemdbx: open %s: %w", path, err)
	}

	s := &Store{env: env}
	err = env.Update(func(txn *mdbx.Txn) error {
		var err error
		if s.nodeDBI, err = txn.OpenDBI(indexName+"_node", mdbx.Create, nil, nil); err != nil {
			return err
		}
		if s.rowidDBI, err = txn.OpenDBI(indexName+"_rowid", mdbx.Create, nil, nil); err != nil {
			return err
		}
		if s.parentDBI, err = txn.OpenDBI(indexName+"_parent", mdbx.Create, nil, nil); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("storemdbx: open dbis: %w", err)
	}

	max, err := s.maxNodeID()
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("storemdbx: scan max node id: %w", err)
	}
	s.nextNode = max + 1
	return s, nil
}

// maxNodeID returns the largest key in the node table, or 0 if it's empty,
// so a reconnect to an existing index never re-assigns the reserved root id.
func (s *Store) maxNodeID() (int64, error) {
	var max int64
	err := s.env.View(func(txn *mdbx.Txn) error {
		cur, err := txn.OpenCursor(s.nodeDBI)
		if err != nil {
			return err
		}
		defer cur.Close()
		k, _, err := cur.Get(nil, nil, mdbx.Last)
		if mdbx.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		max = idOf(k)
		return nil
	})
	return max, err
}

var _ rtree.Store = (*Store)(nil)

func keyOf(id int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

func idOf(b []byte) int64 { return int64(binary.BigEndian.Uint64(b)) }

func (s *Store) get(dbi mdbx.DBI, key []byte) ([]byte, bool, error) {
	var out []byte
	err := s.env.View(func(txn *mdbx.Txn) error {
		v, err := txn.Get(dbi, key)
		if mdbx.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, out != nil, err
}

func (s *Store) put(dbi mdbx.DBI, key, val []byte) error {
	return s.env.Update(func(txn *mdbx.Txn) error {
		return txn.Put(dbi, key, val, 0)
	})
}

func (s *Store) del(dbi mdbx.DBI, key []byte) error {
	return s.env.Update(func(txn *mdbx.Txn) error {
		err := txn.Del(dbi, key, nil)
		if mdbx.IsNotFound(err) {
			return nil
		}
		return err
	})
}

func (s *Store) ReadNode(id int64) ([]byte, bool, error) { return s.get(s.nodeDBI, keyOf(id)) }

func (s *Store) WriteNode(id int64, blob []byte) (int64, error) {
	if id == 0 {
		id = s.nextNode
		s.nextNode++
	} else if id >= s.nextNode {
		s.nextNode = id + 1
	}
	return id, s.put(s.nodeDBI, keyOf(id), blob)
}

func (s *Store) DeleteNode(id int64) error { return s.del(s.nodeDBI, keyOf(id)) }

func (s *Store) ReadRowid(rowid int64) (int64, bool, error) {
	v, ok, err := s.get(s.rowidDBI, keyOf(rowid))
	if !ok || err != nil {
		return 0, ok, err
	}
	return idOf(v), true, nil
}

func (s *Store) WriteRowid(rowid, nodeID int64) error {
	return s.put(s.rowidDBI, keyOf(rowid), keyOf(nodeID))
}

func (s *Store) DeleteRowid(rowid int64) error { return s.del(s.rowidDBI, keyOf(rowid)) }

func (s *Store) ReadParent(nodeID int64) (int64, bool, error) {
	v, ok, err := s.get(s.parentDBI, keyOf(nodeID))
	if !ok || err != nil {
		return 0, ok, err
	}
	return idOf(v), true, nil
}

func (s *Store) WriteParent(nodeID, parentID int64) error {
	return s.put(s.parentDBI, keyOf(nodeID), keyOf(parentID))
}

func (s *Store) DeleteParent(nodeID int64) error { return s.del(s.parentDBI, keyOf(nodeID)) }

func (s *Store) Close() error {
	s.env.Close()
	return nil
}
