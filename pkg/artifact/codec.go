package artifact

import (
	"bytes"
	"fmt"
	"io"

	"fortio.org/safecast"
	"github.com/cespare/xxhash"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/japaniel/dictbuild/pkg/chardef"
	"github.com/japaniel/dictbuild/pkg/dicterr"
	"github.com/japaniel/dictbuild/pkg/lexicon"
	"github.com/japaniel/dictbuild/pkg/matrix"
	"github.com/japaniel/dictbuild/pkg/trie"
)

// Artifact is a compiled dictionary: the surface trie, the entries grouped by trie
// rank, the connection cost matrix and, optionally, the unknown word table.
type Artifact struct {
	Variant string
	Trie    *trie.Trie
	Groups  []trie.Group
	Entries []lexicon.Entry
	Matrix  *matrix.Matrix
	Unknown *chardef.Table
}

// Options control encoding.
type Options struct {
	Compress bool
}

// entryTable is the msgpack form of the entry section. Surfaces are not stored; they
// are recovered from the trie. Features are interned in Pool.
type entryTable struct {
	_msgpack struct{} `msgpack:",as_array"`

	Variant  string
	Pool     []string
	Counts   []uint32
	Left     []uint32
	Right    []uint32
	Cost     []int16
	Features [][]uint32
}

// Encode serializes a. Equal artifacts encode to identical bytes.
func Encode(a *Artifact, opts Options) ([]byte, Header, error) {
	if a == nil || a.Trie == nil || a.Matrix == nil {
		return nil, Header{}, dicterr.Build(dicterr.Pos{}, "incomplete artifact")
	}
	if len(a.Groups) != a.Trie.Len() {
		return nil, Header{}, dicterr.Build(dicterr.Pos{}, "%d entry groups for %d keys", len(a.Groups), a.Trie.Len())
	}
	trieBytes, err := a.Trie.MarshalBinary()
	if err != nil {
		return nil, Header{}, dicterr.Build(dicterr.Pos{}, "encode trie: %v", err)
	}
	table, err := newEntryTable(a)
	if err != nil {
		return nil, Header{}, err
	}
	entryBytes, err := msgpack.Marshal(table)
	if err != nil {
		return nil, Header{}, dicterr.Build(dicterr.Pos{}, "encode entries: %v", err)
	}
	matrixBytes, err := a.Matrix.MarshalBinary()
	if err != nil {
		return nil, Header{}, dicterr.Build(dicterr.Pos{}, "encode matrix: %v", err)
	}
	var unkBytes []byte
	if a.Unknown != nil {
		for _, e := range a.Unknown.Entries {
			if e.LeftID >= a.Matrix.Rows || e.RightID >= a.Matrix.Cols {
				return nil, Header{}, dicterr.Build(e.Pos, "unknown word context ids (%d, %d) outside %dx%d matrix", e.LeftID, e.RightID, a.Matrix.Rows, a.Matrix.Cols)
			}
		}
		if unkBytes, err = a.Unknown.MarshalBinary(); err != nil {
			return nil, Header{}, dicterr.Build(dicterr.Pos{}, "encode unknown words: %v", err)
		}
	}

	body := make([]byte, 0, len(trieBytes)+len(entryBytes)+len(matrixBytes)+len(unkBytes))
	body = append(body, trieBytes...)
	body = append(body, entryBytes...)
	body = append(body, matrixBytes...)
	body = append(body, unkBytes...)

	h := Header{
		Major:      MajorVersion,
		Minor:      MinorVersion,
		HeaderSize: headerSize,
		TrieLen:    uint64(len(trieBytes)),
		EntriesLen: uint64(len(entryBytes)),
		MatrixLen:  uint64(len(matrixBytes)),
		UnknownLen: uint64(len(unkBytes)),
	}
	if h.Entries, err = safecast.Conv[uint32](len(a.Entries)); err != nil {
		return nil, Header{}, dicterr.Build(dicterr.Pos{}, "entry count: %v", err)
	}
	if h.Groups, err = safecast.Conv[uint32](len(a.Groups)); err != nil {
		return nil, Header{}, dicterr.Build(dicterr.Pos{}, "group count: %v", err)
	}
	if h.Rows, err = safecast.Conv[uint32](a.Matrix.Rows); err != nil {
		return nil, Header{}, dicterr.Build(dicterr.Pos{}, "matrix rows: %v", err)
	}
	if h.Cols, err = safecast.Conv[uint32](a.Matrix.Cols); err != nil {
		return nil, Header{}, dicterr.Build(dicterr.Pos{}, "matrix cols: %v", err)
	}

	stored := body
	if opts.Compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, Header{}, dicterr.IO("zstd writer", err)
		}
		stored = enc.EncodeAll(body, nil)
		_ = enc.Close()
		h.Flags |= FlagZstd
	}
	h.StoredLen = uint64(len(stored))
	h.Checksum = xxhash.Sum64(stored)

	out := make([]byte, 0, headerSize+len(stored))
	out = h.append(out)
	out = append(out, stored...)
	return out, h, nil
}

func newEntryTable(a *Artifact) (*entryTable, error) {
	t := &entryTable{
		Variant:  a.Variant,
		Counts:   make([]uint32, len(a.Groups)),
		Left:     make([]uint32, len(a.Entries)),
		Right:    make([]uint32, len(a.Entries)),
		Cost:     make([]int16, len(a.Entries)),
		Features: make([][]uint32, len(a.Entries)),
	}
	next := uint32(0)
	for i, g := range a.Groups {
		if g.First != next || g.Count == 0 {
			return nil, dicterr.Build(dicterr.Pos{}, "entry group %d is not contiguous", i)
		}
		t.Counts[i] = g.Count
		next += g.Count
	}
	if int(next) != len(a.Entries) {
		return nil, dicterr.Build(dicterr.Pos{}, "groups cover %d of %d entries", next, len(a.Entries))
	}

	intern := map[string]uint32{}
	for i, e := range a.Entries {
		if e.LeftID >= a.Matrix.Rows || e.RightID >= a.Matrix.Cols {
			return nil, dicterr.Build(e.Pos, "context ids (%d, %d) outside %dx%d matrix", e.LeftID, e.RightID, a.Matrix.Rows, a.Matrix.Cols)
		}
		t.Left[i] = uint32(e.LeftID)
		t.Right[i] = uint32(e.RightID)
		t.Cost[i] = e.Cost
		ids := make([]uint32, len(e.Features))
		for j, f := range e.Features {
			id, ok := intern[f]
			if !ok {
				id = uint32(len(t.Pool))
				intern[f] = id
				t.Pool = append(t.Pool, f)
			}
			ids[j] = id
		}
		t.Features[i] = ids
	}
	return t, nil
}

// Decode parses an artifact produced by Encode.
func Decode(data []byte) (*Artifact, Header, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, Header{}, err
	}
	stored := data[h.HeaderSize:]
	if uint64(len(stored)) != h.StoredLen {
		return nil, Header{}, dicterr.Corrupt("body is %d bytes, header says %d", len(stored), h.StoredLen)
	}
	if sum := xxhash.Sum64(stored); sum != h.Checksum {
		return nil, Header{}, dicterr.Corrupt("checksum mismatch: %016x != %016x", sum, h.Checksum)
	}
	body := stored
	if h.Compressed() {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, Header{}, dicterr.IO("zstd reader", err)
		}
		body, err = dec.DecodeAll(stored, nil)
		dec.Close()
		if err != nil {
			return nil, Header{}, dicterr.Corrupt("decompress body: %v", err)
		}
	}
	// Newer minors may append sections this reader does not know.
	if n := uint64(len(body)); n < h.bodyLen() || (n != h.bodyLen() && h.Minor <= MinorVersion) {
		return nil, Header{}, dicterr.Corrupt("sections are %d bytes, body is %d", h.bodyLen(), len(body))
	}

	off := h.TrieLen
	trieBytes := body[:off]
	entryBytes := body[off : off+h.EntriesLen]
	off += h.EntriesLen
	matrixBytes := body[off : off+h.MatrixLen]
	off += h.MatrixLen
	unkBytes := body[off : off+h.UnknownLen]

	a := &Artifact{Trie: &trie.Trie{}, Matrix: &matrix.Matrix{}}
	if err := a.Trie.UnmarshalBinary(trieBytes); err != nil {
		return nil, Header{}, dicterr.Corrupt("trie section: %v", err)
	}
	if err := a.Matrix.UnmarshalBinary(matrixBytes); err != nil {
		return nil, Header{}, dicterr.Corrupt("matrix section: %v", err)
	}
	var table entryTable
	if err := msgpack.Unmarshal(entryBytes, &table); err != nil {
		return nil, Header{}, dicterr.Corrupt("entry section: %v", err)
	}
	if err := a.restoreEntries(&table); err != nil {
		return nil, Header{}, err
	}
	if uint64(len(a.Entries)) != uint64(h.Entries) || uint64(len(a.Groups)) != uint64(h.Groups) {
		return nil, Header{}, dicterr.Corrupt("header counts disagree with sections")
	}
	if uint64(a.Matrix.Rows) != uint64(h.Rows) || uint64(a.Matrix.Cols) != uint64(h.Cols) {
		return nil, Header{}, dicterr.Corrupt("header matrix %dx%d disagrees with %dx%d section", h.Rows, h.Cols, a.Matrix.Rows, a.Matrix.Cols)
	}
	if len(unkBytes) > 0 {
		a.Unknown = &chardef.Table{}
		if err := a.Unknown.UnmarshalBinary(unkBytes); err != nil {
			return nil, Header{}, err
		}
		for i, e := range a.Unknown.Entries {
			if e.LeftID >= a.Matrix.Rows || e.RightID >= a.Matrix.Cols {
				return nil, Header{}, dicterr.Corrupt("unknown word %d context ids outside the matrix", i)
			}
		}
	}
	return a, h, nil
}

func (a *Artifact) restoreEntries(t *entryTable) error {
	n := len(t.Left)
	if len(t.Right) != n || len(t.Cost) != n || len(t.Features) != n {
		return dicterr.Corrupt("entry columns have different lengths")
	}
	if len(t.Counts) != a.Trie.Len() {
		return dicterr.Corrupt("%d entry groups for %d keys", len(t.Counts), a.Trie.Len())
	}
	a.Variant = t.Variant
	a.Groups = make([]trie.Group, len(t.Counts))
	next := uint64(0)
	for i, c := range t.Counts {
		if c == 0 || next+uint64(c) > uint64(n) {
			return dicterr.Corrupt("entry group %d out of range", i)
		}
		a.Groups[i] = trie.Group{First: uint32(next), Count: c}
		next += uint64(c)
	}
	if next != uint64(n) {
		return dicterr.Corrupt("groups cover %d of %d entries", next, n)
	}

	a.Entries = make([]lexicon.Entry, n)
	for i := range a.Entries {
		left, right := int(t.Left[i]), int(t.Right[i])
		if left >= a.Matrix.Rows || right >= a.Matrix.Cols {
			return dicterr.Corrupt("entry %d context ids outside the matrix", i)
		}
		features := make([]string, len(t.Features[i]))
		for j, id := range t.Features[i] {
			if int(id) >= len(t.Pool) {
				return dicterr.Corrupt("entry %d feature %d not in pool", i, id)
			}
			features[j] = t.Pool[id]
		}
		a.Entries[i] = lexicon.Entry{LeftID: left, RightID: right, Cost: t.Cost[i], Features: features}
	}
	a.Trie.Walk(func(key []byte, rank int) bool {
		s := string(key)
		g := a.Groups[rank]
		for i := g.First; i < g.First+g.Count; i++ {
			a.Entries[i].Surface = s
		}
		return true
	})
	return nil
}

// Read decodes an artifact from r.
func Read(r io.Reader) (*Artifact, Header, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, Header{}, dicterr.IO("read artifact", err)
	}
	return Decode(buf.Bytes())
}

// String summarizes the artifact for logs.
func (a *Artifact) String() string {
	s := fmt.Sprintf("%s: %d keys, %d entries, %dx%d matrix", a.Variant, a.Trie.Len(), len(a.Entries), a.Matrix.Rows, a.Matrix.Cols)
	if a.Unknown != nil {
		s += fmt.Sprintf(", %d character categories", len(a.Unknown.Def.Categories))
	}
	return s
}
