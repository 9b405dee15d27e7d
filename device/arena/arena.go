// Package arena keeps fixed records in one growable slice and links them into
// intrusive doubly linked lists by index. Records are named by a Handle that
// carries a generation, so a handle kept after its record was released is
// detected instead of reaching the record's next user.
//
// An Arena is not safe for concurrent use; callers hold their own lock.
package arena

import (
	"errors"
	"fmt"
)

const nilIdx = ^uint32(0)

var ErrStaleHandle = errors.New("ErrStaleHandle")

// Handle is an index plus the generation it was issued under. The zero Handle
// is never valid.
type Handle struct {
	idx uint32
	gen uint32
}

var Nil = Handle{idx: nilIdx}

func (h Handle) IsNil() bool {
	return h.gen == 0
}

func (h Handle) String() string {
	if h.IsNil() {
		return "nil"
	}
	return fmt.Sprintf("%d.%d", h.idx, h.gen)
}

// List is a doubly linked list through arena records. Head is the newest end
// for lists used newest first.
type List struct {
	name string
	head uint32
	tail uint32
	n    int
}

func NewList(name string) *List {
	return &List{name: name, head: nilIdx, tail: nilIdx}
}

func (l *List) Len() int {
	return l.n
}

func (l *List) Name() string {
	return l.name
}

type node[T any] struct {
	val   T
	gen   uint32
	next  uint32
	prev  uint32
	owner *List
}

type Arena[T any] struct {
	nodes  []node[T]
	block  int
	blocks int
	Free   *List
}

// New returns an arena that grows by block records at a time. The first
// block is allocated immediately.
func New[T any](block int) *Arena[T] {
	if block < 1 {
		block = 1
	}
	a := &Arena[T]{
		block: block,
		Free:  NewList("free"),
	}
	a.Grow()
	return a
}

// Grow adds one block of records to the free list.
func (a *Arena[T]) Grow() {
	base := uint32(len(a.nodes))
	for i := 0; i < a.block; i++ {
		a.nodes = append(a.nodes, node[T]{gen: 1, next: nilIdx, prev: nilIdx})
		a.pushBack(a.Free, base+uint32(i))
	}
	a.blocks++
}

func (a *Arena[T]) Cap() int {
	return len(a.nodes)
}

func (a *Arena[T]) Blocks() int {
	return a.blocks
}

// Alloc takes a record from the free list, growing the arena when it is
// empty, and puts it at the head of dst. grew reports a growth.
func (a *Arena[T]) Alloc(dst *List) (h Handle, grew bool) {
	if a.Free.n == 0 {
		a.Grow()
		grew = true
	}
	idx := a.Free.head
	a.unlink(a.Free, idx)
	a.pushFront(dst, idx)
	return Handle{idx: idx, gen: a.nodes[idx].gen}, grew
}

// Release zeroes the record, bumps its generation and returns it to the free
// list. The handle and every copy of it become stale.
func (a *Arena[T]) Release(h Handle) error {
	if !a.Valid(h) {
		return ErrStaleHandle
	}
	n := &a.nodes[h.idx]
	if n.owner != nil {
		a.unlink(n.owner, h.idx)
	}
	var zero T
	n.val = zero
	n.gen++
	if n.gen == 0 {
		n.gen = 1
	}
	a.pushFront(a.Free, h.idx)
	return nil
}

func (a *Arena[T]) Valid(h Handle) bool {
	if h.gen == 0 || int(h.idx) >= len(a.nodes) {
		return false
	}
	n := &a.nodes[h.idx]
	return n.gen == h.gen && n.owner != a.Free
}

// Get returns the record behind h. The pointer is only good until the next
// Grow.
func (a *Arena[T]) Get(h Handle) (*T, error) {
	if !a.Valid(h) {
		return nil, ErrStaleHandle
	}
	return &a.nodes[h.idx].val, nil
}

func (a *Arena[T]) Owner(h Handle) *List {
	if !a.Valid(h) {
		return nil
	}
	return a.nodes[h.idx].owner
}

// MoveFront unlinks h from its list and pushes it at the head of dst.
func (a *Arena[T]) MoveFront(h Handle, dst *List) error {
	if !a.Valid(h) {
		return ErrStaleHandle
	}
	if o := a.nodes[h.idx].owner; o != nil {
		a.unlink(o, h.idx)
	}
	a.pushFront(dst, h.idx)
	return nil
}

func (a *Arena[T]) handle(idx uint32) Handle {
	if idx == nilIdx {
		return Nil
	}
	return Handle{idx: idx, gen: a.nodes[idx].gen}
}

func (a *Arena[T]) Front(l *List) Handle {
	return a.handle(l.head)
}

func (a *Arena[T]) Back(l *List) Handle {
	return a.handle(l.tail)
}

// Next steps from head towards tail.
func (a *Arena[T]) Next(h Handle) Handle {
	if !a.Valid(h) {
		return Nil
	}
	return a.handle(a.nodes[h.idx].next)
}

func (a *Arena[T]) pushFront(l *List, idx uint32) {
	n := &a.nodes[idx]
	n.owner = l
	n.prev = nilIdx
	n.next = l.head
	if l.head != nilIdx {
		a.nodes[l.head].prev = idx
	} else {
		l.tail = idx
	}
	l.head = idx
	l.n++
}

func (a *Arena[T]) pushBack(l *List, idx uint32) {
	n := &a.nodes[idx]
	n.owner = l
	n.next = nilIdx
	n.prev = l.tail
	if l.tail != nilIdx {
		a.nodes[l.tail].next = idx
	} else {
		l.head = idx
	}
	l.tail = idx
	l.n++
}

func (a *Arena[T]) unlink(l *List, idx uint32) {
	n := &a.nodes[idx]
	if n.prev != nilIdx {
		a.nodes[n.prev].next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nilIdx {
		a.nodes[n.next].prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.next = nilIdx
	n.prev = nilIdx
	n.owner = nil
	l.n--
}
