package memtable

// memtable.go implements the key/value table on top of the skip list.

// Memtable is an ordered key/value table with tombstones.
type Memtable struct {
	list       *skipList
	live       int
	tombstones int
	bytes      int
}

// New creates an empty table ordered by cmp. maxHeight bounds the skip list
// height; zero selects DefaultMaxHeight.
func New(cmp Comparator, maxHeight int) *Memtable {
	return &Memtable{list: newSkipList(cmp, maxHeight)}
}

// HeightFor returns a skip list height suited to about n keys.
func HeightFor(n uint32) int {
	h := 1
	for capacity := uint64(DefaultBranchingFactor); capacity < uint64(n) && h < MaxHeight; capacity *= DefaultBranchingFactor {
		h++
	}
	return max(h, DefaultMaxHeight)
}

// Put stores value under key. The table keeps references to both slices.
func (m *Memtable) Put(key, value []byte) {
	old := m.lookup(key)
	_, created := m.list.upsert(key, &entry{value: value})
	switch {
	case created:
		m.live++
		m.bytes += len(key)
	case old != nil && old.deleted:
		m.tombstones--
		m.live++
	case old != nil:
		m.bytes -= len(old.value)
	}
	m.bytes += len(value)
}

// Delete removes key and reports whether it was present.
func (m *Memtable) Delete(key []byte) bool {
	node := m.list.find(key)
	if node == nil {
		return false
	}
	e := node.entry.Load()
	if e.deleted {
		return false
	}
	node.entry.Store(&entry{deleted: true})
	m.live--
	m.tombstones++
	m.bytes -= len(e.value)
	return true
}

// Get returns the value stored under key.
func (m *Memtable) Get(key []byte) ([]byte, bool) {
	e := m.lookup(key)
	if e == nil || e.deleted {
		return nil, false
	}
	return e.value, true
}

func (m *Memtable) lookup(key []byte) *entry {
	node := m.list.find(key)
	if node == nil {
		return nil
	}
	return node.entry.Load()
}

// Len returns the number of live keys.
func (m *Memtable) Len() int {
	return m.live
}

// Tombstones returns the number of deleted keys still linked in the list.
func (m *Memtable) Tombstones() int {
	return m.tombstones
}

// ApproximateSize returns the key and value bytes held by live entries and
// tombstone keys.
func (m *Memtable) ApproximateSize() int {
	return m.bytes
}

// Compact returns a table holding only the live entries, built with the same
// comparator and the given height.
func (m *Memtable) Compact(maxHeight int) *Memtable {
	out := New(m.list.compare, maxHeight)
	it := m.NewIterator()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if !it.Deleted() {
			out.Put(it.Key(), it.Value())
		}
	}
	return out
}

// Iterator walks every linked node, tombstones included. It observes writes
// made after it was created.
type Iterator struct {
	list *skipList
	node *skipNode
	e    *entry
}

// NewIterator creates a new iterator over the table.
// The iterator is not valid until a Seek method is called.
func (m *Memtable) NewIterator() *Iterator {
	return &Iterator{list: m.list}
}

func (it *Iterator) set(n *skipNode) {
	it.node = n
	it.e = nil
	if n != nil {
		it.e = n.entry.Load()
	}
}

// Valid returns true if the iterator is positioned at a node.
func (it *Iterator) Valid() bool {
	return it.node != nil
}

// Key returns the key at the current position.
func (it *Iterator) Key() []byte {
	if it.node == nil {
		return nil
	}
	return it.node.key
}

// Value returns the value at the current position, nil for a tombstone.
func (it *Iterator) Value() []byte {
	if it.e == nil {
		return nil
	}
	return it.e.value
}

// Deleted reports whether the current position is a tombstone.
func (it *Iterator) Deleted() bool {
	return it.e != nil && it.e.deleted
}

// Next advances to the next position.
func (it *Iterator) Next() {
	if it.node != nil {
		it.set(it.node.getNext(0))
	}
}

// Prev moves to the previous position.
func (it *Iterator) Prev() {
	if it.node != nil {
		it.set(it.list.findLessThan(it.node.key))
	}
}

// Seek positions the iterator at the first entry with key >= target.
func (it *Iterator) Seek(target []byte) {
	it.set(it.list.findGreaterOrEqual(target, nil))
}

// SeekForPrev positions the iterator at the last entry with key <= target.
func (it *Iterator) SeekForPrev(target []byte) {
	it.Seek(target)
	if !it.Valid() {
		it.SeekToLast()
	} else if it.list.compare(it.node.key, target) > 0 {
		it.Prev()
	}
}

// SeekToFirst positions the iterator at the first entry.
func (it *Iterator) SeekToFirst() {
	it.set(it.list.head.getNext(0))
}

// SeekToLast positions the iterator at the last entry.
func (it *Iterator) SeekToLast() {
	it.set(it.list.findLast())
}
