// Package trie builds a minimal deterministic acyclic automaton over sorted byte keys.
//
// Keys are inserted in strictly increasing order. Suffixes are shared as soon as a branch
// can no longer change, so memory stays proportional to the minimized automaton rather than
// to the plain trie. Every accepted key has a rank, its index in sorted key order, which
// callers use to find the data attached to the key.
package trie

import (
	"bytes"
	"encoding/binary"
	"errors"
)

var (
	// ErrUnsorted is returned when keys are not inserted in strictly increasing order.
	ErrUnsorted = errors.New("trie: keys must be inserted in strictly increasing order")
	// ErrEmptyKey is returned for zero length keys.
	ErrEmptyKey = errors.New("trie: empty key")
	// ErrFinished is returned when inserting after Finish.
	ErrFinished = errors.New("trie: builder already finished")
)

type buildNode struct {
	id    int
	final bool
	edges []buildEdge
}

type buildEdge struct {
	label byte
	child *buildNode
}

type pending struct {
	parent *buildNode
	label  byte
	child  *buildNode
}

// Builder constructs a Trie incrementally.
type Builder struct {
	root     *buildNode
	prev     []byte
	path     []pending
	register map[string]*buildNode
	nextID   int
	keys     int
	finished bool
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	b := &Builder{register: make(map[string]*buildNode)}
	b.root = b.newNode()
	return b
}

func (b *Builder) newNode() *buildNode {
	n := &buildNode{id: b.nextID}
	b.nextID++
	return n
}

// Insert adds key, which must sort strictly after the previously inserted key.
func (b *Builder) Insert(key []byte) error {
	if b.finished {
		return ErrFinished
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if b.keys > 0 && bytes.Compare(key, b.prev) <= 0 {
		return ErrUnsorted
	}

	common := 0
	for common < len(key) && common < len(b.prev) && key[common] == b.prev[common] {
		common++
	}
	b.minimize(common)

	node := b.root
	if len(b.path) > 0 {
		node = b.path[len(b.path)-1].child
	}
	for _, c := range key[common:] {
		child := b.newNode()
		node.edges = append(node.edges, buildEdge{label: c, child: child})
		b.path = append(b.path, pending{parent: node, label: c, child: child})
		node = child
	}
	node.final = true

	b.prev = append(b.prev[:0], key...)
	b.keys++
	return nil
}

// minimize replaces the not yet registered nodes below depth with equivalent registered ones.
func (b *Builder) minimize(depth int) {
	for i := len(b.path) - 1; i >= depth; i-- {
		p := b.path[i]
		sig := signature(p.child)
		if canon, ok := b.register[sig]; ok {
			p.parent.edges[len(p.parent.edges)-1].child = canon
		} else {
			b.register[sig] = p.child
		}
	}
	b.path = b.path[:depth]
}

// signature identifies a node by its right language: finality plus labeled edges to canonical children.
func signature(n *buildNode) string {
	buf := make([]byte, 0, 1+len(n.edges)*(1+binary.MaxVarintLen64))
	if n.final {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	for _, e := range n.edges {
		buf = append(buf, e.label)
		buf = binary.AppendUvarint(buf, uint64(e.child.id))
	}
	return string(buf)
}

// Len returns the number of keys inserted so far.
func (b *Builder) Len() int { return b.keys }

// Finish minimizes the remaining branch and returns the compact automaton.
// The builder cannot be used afterwards.
func (b *Builder) Finish() *Trie {
	b.minimize(0)
	b.finished = true
	t := flatten(b.root)
	b.register = nil
	return t
}

// flatten numbers nodes in post order so every edge points to a lower index and the root is last.
func flatten(root *buildNode) *Trie {
	index := make(map[*buildNode]uint32)
	var order []*buildNode
	var visit func(n *buildNode)
	visit = func(n *buildNode) {
		if _, ok := index[n]; ok {
			return
		}
		for _, e := range n.edges {
			visit(e.child)
		}
		index[n] = uint32(len(order))
		order = append(order, n)
	}
	visit(root)

	t := &Trie{
		start: make([]uint32, 0, len(order)+1),
		final: make([]bool, len(order)),
	}
	for i, n := range order {
		t.start = append(t.start, uint32(len(t.labels)))
		t.final[i] = n.final
		for _, e := range n.edges {
			t.labels = append(t.labels, e.label)
			t.targets = append(t.targets, index[e.child])
		}
	}
	t.start = append(t.start, uint32(len(t.labels)))
	t.index()
	return t
}
