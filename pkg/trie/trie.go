package trie

import (
	"encoding/binary"
	"fmt"
	"sort"

	"fortio.org/safecast"
)

// Trie is a read-only minimized automaton in compressed sparse row form.
// Node i owns edges labels[start[i]:start[i+1]], sorted by label. The root is the last node.
type Trie struct {
	start   []uint32
	final   []bool
	labels  []byte
	targets []uint32

	// derived by index
	words []uint32 // keys accepted from each node
	base  []uint32 // keys reachable through earlier sibling edges
	keys  int
}

// Match is a key found as a prefix of some input.
type Match struct {
	// Rank is the key's index in sorted key order.
	Rank int
	// Length is the key length in bytes.
	Length int
}

func (t *Trie) index() {
	n := len(t.final)
	t.words = make([]uint32, n)
	t.base = make([]uint32, len(t.labels))
	for i := 0; i < n; i++ {
		var w uint32
		if t.final[i] {
			w = 1
		}
		for e := t.start[i]; e < t.start[i+1]; e++ {
			t.base[e] = w
			w += t.words[t.targets[e]]
		}
		t.words[i] = w
	}
	if n > 0 {
		t.keys = int(t.words[n-1])
	}
}

func (t *Trie) root() uint32 { return uint32(len(t.final) - 1) }

// Len returns the number of keys.
func (t *Trie) Len() int { return t.keys }

// NumNodes returns the number of automaton states.
func (t *Trie) NumNodes() int { return len(t.final) }

// NumEdges returns the number of transitions.
func (t *Trie) NumEdges() int { return len(t.labels) }

// child follows label c from node n. The returned offset is the edge index.
func (t *Trie) child(n uint32, c byte) (uint32, uint32, bool) {
	lo, hi := t.start[n], t.start[n+1]
	k := sort.Search(int(hi-lo), func(i int) bool { return t.labels[lo+uint32(i)] >= c })
	e := lo + uint32(k)
	if e >= hi || t.labels[e] != c {
		return 0, 0, false
	}
	return t.targets[e], e, true
}

// Exact returns the rank of key if it is in the trie.
func (t *Trie) Exact(key []byte) (int, bool) {
	if len(key) == 0 || t.keys == 0 {
		return 0, false
	}
	n, rank := t.root(), 0
	for _, c := range key {
		next, e, ok := t.child(n, c)
		if !ok {
			return 0, false
		}
		rank += int(t.base[e])
		n = next
	}
	if !t.final[n] {
		return 0, false
	}
	return rank, true
}

// CommonPrefix returns every key that is a prefix of input, shortest first.
func (t *Trie) CommonPrefix(input []byte) []Match {
	var out []Match
	t.prefixes(input, func(m Match) bool {
		out = append(out, m)
		return true
	})
	return out
}

// LongestPrefix returns the longest key that is a prefix of input.
func (t *Trie) LongestPrefix(input []byte) (Match, bool) {
	var best Match
	found := false
	t.prefixes(input, func(m Match) bool {
		best, found = m, true
		return true
	})
	return best, found
}

// prefixes calls fn for each key that prefixes input until fn returns false.
func (t *Trie) prefixes(input []byte, fn func(Match) bool) {
	if t.keys == 0 {
		return
	}
	n, rank := t.root(), 0
	for i, c := range input {
		next, e, ok := t.child(n, c)
		if !ok {
			return
		}
		rank += int(t.base[e])
		n = next
		if t.final[n] && !fn(Match{Rank: rank, Length: i + 1}) {
			return
		}
	}
}

// Walk calls fn with every key in sorted order. The key slice is reused between calls.
func (t *Trie) Walk(fn func(key []byte, rank int) bool) {
	if t.keys == 0 {
		return
	}
	var key []byte
	rank := 0
	var visit func(n uint32) bool
	visit = func(n uint32) bool {
		if t.final[n] {
			if !fn(key, rank) {
				return false
			}
			rank++
		}
		for e := t.start[n]; e < t.start[n+1]; e++ {
			key = append(key, t.labels[e])
			if !visit(t.targets[e]) {
				return false
			}
			key = key[:len(key)-1]
		}
		return true
	}
	visit(t.root())
}

// MarshalBinary encodes the trie as little endian counts followed by the edge offsets,
// final flags, labels and targets.
func (t *Trie) MarshalBinary() ([]byte, error) {
	nodes, err := safecast.Conv[uint32](len(t.final))
	if err != nil {
		return nil, fmt.Errorf("trie: too many nodes: %w", err)
	}
	edges, err := safecast.Conv[uint32](len(t.labels))
	if err != nil {
		return nil, fmt.Errorf("trie: too many edges: %w", err)
	}
	keys, err := safecast.Conv[uint32](t.keys)
	if err != nil {
		return nil, fmt.Errorf("trie: too many keys: %w", err)
	}
	size := 12 + 4*len(t.start) + len(t.final) + len(t.labels) + 4*len(t.targets)
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, nodes)
	buf = binary.LittleEndian.AppendUint32(buf, edges)
	buf = binary.LittleEndian.AppendUint32(buf, keys)
	for _, s := range t.start {
		buf = binary.LittleEndian.AppendUint32(buf, s)
	}
	for _, f := range t.final {
		if f {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	buf = append(buf, t.labels...)
	for _, target := range t.targets {
		buf = binary.LittleEndian.AppendUint32(buf, target)
	}
	return buf, nil
}

// UnmarshalBinary decodes data produced by MarshalBinary and validates the structure.
func (t *Trie) UnmarshalBinary(data []byte) error {
	if len(data) < 12 {
		return fmt.Errorf("trie: truncated header")
	}
	nodes := int(binary.LittleEndian.Uint32(data[0:]))
	edges := int(binary.LittleEndian.Uint32(data[4:]))
	keys := int(binary.LittleEndian.Uint32(data[8:]))
	want := 12 + 4*(nodes+1) + nodes + edges + 4*edges
	if nodes == 0 || len(data) != want {
		return fmt.Errorf("trie: size mismatch: %d nodes, %d edges, %d bytes", nodes, edges, len(data))
	}
	p := data[12:]
	nt := Trie{
		start:   make([]uint32, nodes+1),
		final:   make([]bool, nodes),
		labels:  make([]byte, edges),
		targets: make([]uint32, edges),
	}
	for i := range nt.start {
		nt.start[i] = binary.LittleEndian.Uint32(p)
		p = p[4:]
	}
	for i := range nt.final {
		switch p[i] {
		case 0:
		case 1:
			nt.final[i] = true
		default:
			return fmt.Errorf("trie: bad final flag %d at node %d", p[i], i)
		}
	}
	p = p[nodes:]
	copy(nt.labels, p[:edges])
	p = p[edges:]
	for i := range nt.targets {
		nt.targets[i] = binary.LittleEndian.Uint32(p)
		p = p[4:]
	}

	if nt.start[0] != 0 || int(nt.start[nodes]) != edges {
		return fmt.Errorf("trie: bad edge offsets")
	}
	for i := 0; i < nodes; i++ {
		lo, hi := nt.start[i], nt.start[i+1]
		if lo > hi {
			return fmt.Errorf("trie: bad edge offsets at node %d", i)
		}
		for e := lo; e < hi; e++ {
			if int(nt.targets[e]) >= i {
				return fmt.Errorf("trie: edge %d of node %d does not point to an earlier node", e, i)
			}
			if e > lo && nt.labels[e-1] >= nt.labels[e] {
				return fmt.Errorf("trie: unsorted labels at node %d", i)
			}
		}
	}
	nt.index()
	if nt.keys != keys {
		return fmt.Errorf("trie: header says %d keys, structure has %d", keys, nt.keys)
	}
	if nt.final[nodes-1] {
		return fmt.Errorf("trie: empty key accepted")
	}
	*t = nt
	return nil
}
