package chardef

import (
	"errors"
	"io"
	"slices"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/japaniel/dictbuild/pkg/dicterr"
	"github.com/japaniel/dictbuild/pkg/lexicon"
)

// UnkEntry is an unknown word template from unk.def.
type UnkEntry struct {
	Category int
	LeftID   int
	RightID  int
	Cost     int16
	Features []string
	// Pos is kept for diagnostics and is not serialized.
	Pos dicterr.Pos
}

// Table holds the character categories and the unknown word templates of each.
type Table struct {
	Def *CharDef
	// Entries are grouped by category, in file order within a category.
	Entries []UnkEntry

	offsets []int
}

// unkSchema is the unk.def layout: category, left, right, cost, features.
var unkSchema = lexicon.Schema{Name: "unk.def", MinFields: 5}

// ParseUnk reads unk.def records against def. Every record must name a category of def
// and every category needs at least one record.
func ParseUnk(src lexicon.RecordSource, def *CharDef) (*Table, error) {
	var entries []UnkEntry
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		e, _, err := unkSchema.ParseRecord(rec)
		if err != nil {
			return nil, err
		}
		cat, ok := def.Category(e.Surface)
		if !ok {
			return nil, dicterr.Parse(rec.Pos, "category", "undefined category %s", e.Surface)
		}
		entries = append(entries, UnkEntry{
			Category: cat,
			LeftID:   e.LeftID,
			RightID:  e.RightID,
			Cost:     e.Cost,
			Features: e.Features,
			Pos:      e.Pos,
		})
	}
	t, err := NewTable(def, entries)
	if err != nil {
		return nil, err
	}
	for i, c := range def.Categories {
		if len(t.ForCategory(i)) == 0 {
			return nil, dicterr.Build(dicterr.Pos{}, "category %s has no unknown word entry", c.Name)
		}
	}
	return t, nil
}

// NewTable groups entries by category.
func NewTable(def *CharDef, entries []UnkEntry) (*Table, error) {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b UnkEntry) int { return a.Category - b.Category })
	t := &Table{Def: def, Entries: sorted, offsets: make([]int, len(def.Categories)+1)}
	for _, e := range sorted {
		if e.Category < 0 || e.Category >= len(def.Categories) {
			return nil, dicterr.Build(e.Pos, "unknown word category %d out of range", e.Category)
		}
		t.offsets[e.Category+1]++
	}
	for i := 1; i < len(t.offsets); i++ {
		t.offsets[i] += t.offsets[i-1]
	}
	return t, nil
}

// ForCategory returns the templates of category cat.
func (t *Table) ForCategory(cat int) []UnkEntry {
	if cat < 0 || cat+1 >= len(t.offsets) {
		return nil
	}
	return t.Entries[t.offsets[cat]:t.offsets[cat+1]]
}

// ForRune returns the templates of r's primary category.
func (t *Table) ForRune(r rune) []UnkEntry {
	return t.ForCategory(t.Def.Lookup(r)[0])
}

// wireTable is the msgpack form of a Table.
type wireTable struct {
	_msgpack struct{} `msgpack:",as_array"`

	Names  []string
	Invoke []bool
	Group  []bool
	Length []uint32

	Lo        []int32
	Hi        []int32
	RangeCats [][]uint16

	Cat      []uint16
	Left     []uint32
	Right    []uint32
	Cost     []int16
	Features [][]string
}

// MarshalBinary encodes the table. Equal tables encode to identical bytes.
func (t *Table) MarshalBinary() ([]byte, error) {
	w := wireTable{}
	for _, c := range t.Def.Categories {
		w.Names = append(w.Names, c.Name)
		w.Invoke = append(w.Invoke, c.Invoke)
		w.Group = append(w.Group, c.Group)
		w.Length = append(w.Length, uint32(c.Length))
	}
	for _, rg := range t.Def.Ranges {
		w.Lo = append(w.Lo, rg.Lo)
		w.Hi = append(w.Hi, rg.Hi)
		cats := make([]uint16, len(rg.Categories))
		for i, c := range rg.Categories {
			cats[i] = uint16(c)
		}
		w.RangeCats = append(w.RangeCats, cats)
	}
	for _, e := range t.Entries {
		w.Cat = append(w.Cat, uint16(e.Category))
		w.Left = append(w.Left, uint32(e.LeftID))
		w.Right = append(w.Right, uint32(e.RightID))
		w.Cost = append(w.Cost, e.Cost)
		w.Features = append(w.Features, e.Features)
	}
	return msgpack.Marshal(&w)
}

// UnmarshalBinary decodes a table written by MarshalBinary.
func (t *Table) UnmarshalBinary(data []byte) error {
	var w wireTable
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return dicterr.Corrupt("unknown word section: %v", err)
	}
	nc := len(w.Names)
	if len(w.Invoke) != nc || len(w.Group) != nc || len(w.Length) != nc {
		return dicterr.Corrupt("category columns have different lengths")
	}
	nr := len(w.Lo)
	if len(w.Hi) != nr || len(w.RangeCats) != nr {
		return dicterr.Corrupt("range columns have different lengths")
	}
	ne := len(w.Cat)
	if len(w.Left) != ne || len(w.Right) != ne || len(w.Cost) != ne || len(w.Features) != ne {
		return dicterr.Corrupt("unknown entry columns have different lengths")
	}

	def := &CharDef{Categories: make([]Category, nc), Ranges: make([]Range, nr)}
	for i := range def.Categories {
		def.Categories[i] = Category{Name: w.Names[i], Invoke: w.Invoke[i], Group: w.Group[i], Length: int(w.Length[i])}
	}
	for i := range def.Ranges {
		cats := make([]int, len(w.RangeCats[i]))
		for j, c := range w.RangeCats[i] {
			cats[j] = int(c)
		}
		def.Ranges[i] = Range{Lo: w.Lo[i], Hi: w.Hi[i], Categories: cats}
	}
	if err := def.index(); err != nil {
		return err
	}
	entries := make([]UnkEntry, ne)
	for i := range entries {
		if int(w.Cat[i]) >= nc || (i > 0 && w.Cat[i] < w.Cat[i-1]) {
			return dicterr.Corrupt("unknown entry %d has a bad category", i)
		}
		entries[i] = UnkEntry{Category: int(w.Cat[i]), LeftID: int(w.Left[i]), RightID: int(w.Right[i]), Cost: w.Cost[i], Features: w.Features[i]}
	}
	nt, err := NewTable(def, entries)
	if err != nil {
		return dicterr.Corrupt("%v", err)
	}
	*t = *nt
	return nil
}
