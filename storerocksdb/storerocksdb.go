//go:build cgo

// Package storerocksdb is a third rtree.Store adapter, backed by RocksDB
// via github.com/tecbot/gorocksdb, using one column family per backing
// table. Like storemdbx, its job is to give the cross-engine compatibility
// tests a third genuinely different engine to check identical index
// contents (rowid-to-box maps and row counts) against, mirroring how the teacher's tests/bench_bigval_test.go
// drives gdbx, mdbx-go and gorocksdb side by side.
package storerocksdb

import (
	"encoding/binary"
	"fmt"

	"github.com/tecbot/gorocksdb"

	"github.com/rtreeindex/rtree"
)

// Store adapts a RocksDB handle with three column families to rtree.Store.
type Store struct {
	db                      *gorocksdb.DB
	nodeCF, rowidCF, parentCF *gorocksdb.ColumnFamilyHandle
	wo                      *gorocksdb.WriteOptions
	ro                      *gorocksdb.ReadOptions
	nextNode                int64
}

// Open opens (creating if necessary) a RocksDB database at path with the
// three column families for indexName.
func Open(path, indexName string) (*Store, error) {
	opts := gorocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)
	opts.SetCreateIfMissingColumnFamilies(true)

	cfNames := []string{"default", indexName + "_node", indexName + "_rowid", indexName + "_parent"}
	cfOpts := make([]*gorocksdb.Options, len(cfNames))
	for i := range cfOpts {
		cfOpts[i] = gorocksdb.NewDefaultOptions()
	}

	db, handles, err := gorocksdb.OpenDbColumnFamilies(opts, path, cfNames, cfOpts)
	if err != nil {
		return nil, fmt.Errorf("storerocksdb: open %s: %w", path, err)
	}

	s := &Store{
		db:       db,
		nodeCF:   handles[1],
		rowidCF:  handles[2],
		parentCF: handles[3],
		wo:       gorocksdb.NewDefaultWriteOptions(),
		ro:       gorocksdb.NewDefaultReadOptions(),
	}
	s.nextNode = s.maxNodeID() + 1
	return s, nil
}

// maxNodeID returns the largest key in the node column family, or 0 if it's
// empty, so a reconnect to an existing index never re-assigns the reserved
// root id.
func (s *Store) maxNodeID() int64 {
	it := s.db.NewIteratorCF(s.ro, s.nodeCF)
	defer it.Close()
	it.SeekToLast()
	if !it.Valid() {
		return 0
	}
	k := it.Key()
	defer k.Free()
	return idOf(k.Data())
}

var _ rtree.Store = (*Store)(nil)

func keyOf(id int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

func idOf(b []byte) int64 { return int64(binary.BigEndian.Uint64(b)) }

func (s *Store) get(cf *gorocksdb.ColumnFamilyHandle, key []byte) ([]byte, bool, error) {
	slice, err := s.db.GetCF(s.ro, cf, key)
	if err != nil {
		return nil, false, err
	}
	defer slice.Free()
	if !slice.Exists() {
		return nil, false, nil
	}
	out := make([]byte, slice.Size())
	copy(out, slice.Data())
	return out, true, nil
}

func (s *Store) put(cf *gorocksdb.ColumnFamilyHandle, key, val []byte) error {
	return s.db.PutCF(s.wo, cf, key, val)
}

func (s *Store) del(cf *gorocksdb.ColumnFamilyHandle, key []byte) error {
	return s.db.DeleteCF(s.wo, cf, key)
}

func (s *Store) ReadNode(id int64) ([]byte, bool, error) { return s.get(s.nodeCF, keyOf(id)) }

func (s *Store) WriteNode(id int64, blob []byte) (int64, error) {
	if id == 0 {
		id = s.nextNode
		s.nextNode++
	} else if id >= s.nextNode {
		s.nextNode = id + 1
	}
	return id, s.put(s.nodeCF, keyOf(id), blob)
}

func (s *Store) DeleteNode(id int64) error { return s.del(s.nodeCF, keyOf(id)) }

func (s *Store) ReadRowid(rowid int64) (int64, bool, error) {
	v, ok, err := s.get(s.rowidCF, keyOf(rowid))
	if !ok || err != nil {
		return 0, ok, err
	}
	return idOf(v), true, nil
}

func (s *Store) WriteRowid(rowid, nodeID int64) error {
	return s.put(s.rowidCF, keyOf(rowid), keyOf(nodeID))
}

func (s *Store) DeleteRowid(rowid int64) error { return s.del(s.rowidCF, keyOf(rowid)) }

func (s *Store) ReadParent(nodeID int64) (int64, bool, error) {
	v, ok, err := s.get(s.parentCF, keyOf(nodeID))
	if !ok || err != nil {
		return 0, ok, err
	}
	return idOf(v), true, nil
}

func (s *Store) WriteParent(nodeID, parentID int64) error {
	return s.put(s.parentCF, keyOf(nodeID), keyOf(parentID))
}

func (s *Store) DeleteParent(nodeID int64) error { return s.del(s.parentCF, keyOf(nodeID)) }

func (s *Store) Close() error {
	s.db.Close()
	return nil
}
