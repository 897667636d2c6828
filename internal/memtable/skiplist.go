// Package memtable implements the ordered in-memory table of the journal
// engine.
//
// The table is a skip list keyed by a caller-supplied comparator:
// - Reads and iteration are safe while a single writer mutates the list
// - Writes require external synchronization
// - Nodes are never unlinked; deletes leave a tombstone that Compact drops
package memtable

import (
	"math/rand"
	"sync/atomic"
)

const (
	// DefaultMaxHeight is the default maximum height for skip list nodes.
	DefaultMaxHeight = 12

	// MaxHeight bounds the height a caller may request.
	MaxHeight = 32

	// DefaultBranchingFactor is the default branching factor.
	// On average, 1/branchingFactor nodes will be promoted to next level.
	DefaultBranchingFactor = 4
)

// Comparator compares two keys and returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
type Comparator func(a, b []byte) int

// entry is the value slot of a node. A nil entry pointer never occurs; a
// deleted key holds an entry with deleted set.
type entry struct {
	value   []byte
	deleted bool
}

// skipNode represents a node in the skip list.
type skipNode struct {
	key   []byte
	entry atomic.Pointer[entry]
	// next[i] is the next node at level i.
	next []atomic.Pointer[skipNode]
}

func newSkipNode(key []byte, height int) *skipNode {
	return &skipNode{
		key:  key,
		next: make([]atomic.Pointer[skipNode], height),
	}
}

func (n *skipNode) getNext(level int) *skipNode {
	return n.next[level].Load()
}

func (n *skipNode) setNext(level int, node *skipNode) {
	n.next[level].Store(node)
}

// skipList orders nodes by key.
type skipList struct {
	head      *skipNode
	maxHeight atomic.Int32 // Current max height
	compare   Comparator
	rng       *rand.Rand

	kMaxHeight  int
	kScaledInvB uint32 // scaled inverse of branching factor
}

func newSkipList(cmp Comparator, maxHeight int) *skipList {
	if maxHeight <= 0 {
		maxHeight = DefaultMaxHeight
	}
	maxHeight = min(maxHeight, MaxHeight)
	sl := &skipList{
		head:        newSkipNode(nil, maxHeight),
		compare:     cmp,
		rng:         rand.New(rand.NewSource(0xDEADBEEF)),
		kMaxHeight:  maxHeight,
		kScaledInvB: uint32(0xFFFFFFFF) / DefaultBranchingFactor,
	}
	sl.maxHeight.Store(1)
	return sl
}

// upsert stores e under key, linking a new node if the key is absent.
// It returns the node and whether it was newly linked.
// REQUIRES: External synchronization.
func (sl *skipList) upsert(key []byte, e *entry) (*skipNode, bool) {
	prev := make([]*skipNode, sl.kMaxHeight)
	x := sl.findGreaterOrEqual(key, prev)
	if x != nil && sl.compare(key, x.key) == 0 {
		x.entry.Store(e)
		return x, false
	}

	height := sl.randomHeight()
	maxH := int(sl.maxHeight.Load())
	if height > maxH {
		for i := maxH; i < height; i++ {
			prev[i] = sl.head
		}
		sl.maxHeight.Store(int32(height))
	}

	node := newSkipNode(key, height)
	node.entry.Store(e)
	// Publish bottom-up so a concurrent reader never sees a half-linked node.
	for i := range height {
		node.setNext(i, prev[i].getNext(i))
		prev[i].setNext(i, node)
	}
	return node, true
}

// find returns the node holding key, or nil.
func (sl *skipList) find(key []byte) *skipNode {
	x := sl.findGreaterOrEqual(key, nil)
	if x != nil && sl.compare(key, x.key) == 0 {
		return x
	}
	return nil
}

// findGreaterOrEqual finds the first node with key >= given key.
// If prev is not nil, fills in prev[level] with the predecessor at each level.
func (sl *skipList) findGreaterOrEqual(key []byte, prev []*skipNode) *skipNode {
	x := sl.head
	level := int(sl.maxHeight.Load()) - 1

	for {
		next := x.getNext(level)
		if next != nil && sl.compare(key, next.key) > 0 {
			x = next
			continue
		}
		if prev != nil {
			prev[level] = x
		}
		if level == 0 {
			return next
		}
		level--
	}
}

// findLessThan returns the last node with key < given key, or nil.
func (sl *skipList) findLessThan(key []byte) *skipNode {
	x := sl.head
	level := int(sl.maxHeight.Load()) - 1

	for {
		next := x.getNext(level)
		if next != nil && sl.compare(next.key, key) < 0 {
			x = next
			continue
		}
		if level == 0 {
			if x == sl.head {
				return nil
			}
			return x
		}
		level--
	}
}

// findLast returns the last node in the list, or nil if it is empty.
func (sl *skipList) findLast() *skipNode {
	x := sl.head
	level := int(sl.maxHeight.Load()) - 1

	for {
		if next := x.getNext(level); next != nil {
			x = next
			continue
		}
		if level == 0 {
			if x == sl.head {
				return nil
			}
			return x
		}
		level--
	}
}

func (sl *skipList) randomHeight() int {
	height := 1
	for height < sl.kMaxHeight && sl.rng.Uint32() < sl.kScaledInvB {
		height++
	}
	return height
}
