package rtree

import "fmt"

// Store is the backing-store adapter boundary (spec.md §4.2, §6): three
// key/value tables per index — node, rowid and parent — exposed as typed
// operations rather than the prepared-statement pairs the original bound to
// a SQL host. Any KV engine that can durably store these three mappings can
// back an Index; see storebolt, storemdbx, storerocksdb and storemem for
// concrete adapters, a shape grounded on the reader/writer split used by
// github.com/jaiminpan/mt-trie's accdb.KeyValueReader/Writer.
type Store interface {
	// ReadNode returns the raw page for node id, or (nil, false, nil) if
	// it does not exist.
	ReadNode(id int64) (blob []byte, ok bool, err error)

	// WriteNode persists blob at id. If id is 0 the adapter allocates a
	// fresh id and returns it; otherwise the returned id equals the
	// argument (insert-or-replace).
	WriteNode(id int64, blob []byte) (assigned int64, err error)

	// DeleteNode removes node id.
	DeleteNode(id int64) error

	// ReadRowid resolves the leaf node id holding rowid.
	ReadRowid(rowid int64) (nodeID int64, ok bool, err error)

	// WriteRowid records rowid -> nodeID (insert-or-replace).
	WriteRowid(rowid, nodeID int64) error

	// DeleteRowid removes the rowid mapping.
	DeleteRowid(rowid int64) error

	// ReadParent resolves the parent node id of nodeID.
	ReadParent(nodeID int64) (parentID int64, ok bool, err error)

	// WriteParent records nodeID -> parentID (insert-or-replace).
	WriteParent(nodeID, parentID int64) error

	// DeleteParent removes the parent mapping for nodeID.
	DeleteParent(nodeID int64) error

	// Close releases any resources (file handles, connections) the
	// adapter owns. Closing a Store does not delete its data.
	Close() error
}

// bootstrap seeds a freshly created index: node id 1 (the root) gets a
// zero-filled page of the configured size (§4.2 "seeds node id 1 with a
// zero-filled page of the configured size").
func bootstrap(s Store, nodeSize int) error {
	if _, ok, err := s.ReadNode(RootNodeID); err != nil {
		return ioErr("checking for existing root", err)
	} else if ok {
		return nil
	}
	page := make([]byte, nodeSize)
	if _, err := s.WriteNode(RootNodeID, page); err != nil {
		return ioErr("seeding root node", err)
	}
	return nil
}

// tableNames mirrors §6's schema-qualified naming convention
// ("<name>_node", "<name>_rowid", "<name>_parent") for adapters that map
// onto namespaced engines (buckets, column families, key prefixes).
type tableNames struct {
	Node, Rowid, Parent string
}

func namesFor(index string) tableNames {
	return tableNames{
		Node:   fmt.Sprintf("%s_node", index),
		Rowid:  fmt.Sprintf("%s_rowid", index),
		Parent: fmt.Sprintf("%s_parent", index),
	}
}
