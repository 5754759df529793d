// Package chardef compiles the character category and unknown word definitions of a
// MeCab style dictionary (char.def and unk.def). A tokenizer uses them to propose
// entries for text the lexicon does not cover.
package chardef

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/japaniel/dictbuild/pkg/dicterr"
)

// DefaultCategory is the category of characters no range mentions. Every char.def must
// define it.
const DefaultCategory = "DEFAULT"

// Category is one character class of char.def.
type Category struct {
	Name string
	// Invoke proposes unknown words even where known words start.
	Invoke bool
	// Group joins a run of characters of this category into one unknown word.
	Group bool
	// Length is the number of prefix lengths proposed, 0 for none.
	Length int
}

// Range maps the code points Lo..Hi to categories. The first category is the primary
// one; the others are compatible categories.
type Range struct {
	Lo, Hi     rune
	Categories []int
}

// CharDef is a parsed char.def.
type CharDef struct {
	Categories []Category
	Ranges     []Range

	byName map[string]int
	def    int
}

// ParseCharDef reads the char.def format: category lines "NAME INVOKE GROUP LENGTH"
// and range lines "0xLO[..0xHI] CATEGORY [CATEGORY...]". Text after '#' is a comment.
// A range may only name categories defined above it.
func ParseCharDef(r io.Reader, name string) (*CharDef, error) {
	sc := bufio.NewScanner(r)
	d := &CharDef{byName: map[string]int{}}
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		pos := dicterr.Pos{File: name, Line: line}
		var err error
		if strings.HasPrefix(fields[0], "0x") || strings.HasPrefix(fields[0], "0X") {
			err = d.parseRange(pos, fields)
		} else {
			err = d.parseCategory(pos, fields)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, dicterr.IO("read "+name, err)
	}
	def, ok := d.byName[DefaultCategory]
	if !ok {
		return nil, dicterr.Parse(dicterr.Pos{File: name}, "category", "no %s category", DefaultCategory)
	}
	d.def = def
	return d, nil
}

func (d *CharDef) parseCategory(pos dicterr.Pos, fields []string) error {
	if len(fields) != 4 {
		return dicterr.Parse(pos, "category", "want NAME INVOKE GROUP LENGTH, got %d fields", len(fields))
	}
	name := fields[0]
	if _, dup := d.byName[name]; dup {
		return dicterr.Parse(pos, "category", "category %s defined twice", name)
	}
	invoke, err := flag(pos, "invoke", fields[1])
	if err != nil {
		return err
	}
	group, err := flag(pos, "group", fields[2])
	if err != nil {
		return err
	}
	length, err := strconv.Atoi(fields[3])
	if err != nil || length < 0 {
		return dicterr.Parse(pos, "length", "not a length: %q", fields[3])
	}
	d.byName[name] = len(d.Categories)
	d.Categories = append(d.Categories, Category{Name: name, Invoke: invoke, Group: group, Length: length})
	return nil
}

func (d *CharDef) parseRange(pos dicterr.Pos, fields []string) error {
	if len(fields) < 2 {
		return dicterr.Parse(pos, "range", "range without a category")
	}
	lo, hi, found := strings.Cut(fields[0], "..")
	from, err := codePoint(pos, lo)
	if err != nil {
		return err
	}
	to := from
	if found {
		if to, err = codePoint(pos, hi); err != nil {
			return err
		}
	}
	if to < from {
		return dicterr.Parse(pos, "range", "range %s is reversed", fields[0])
	}
	rg := Range{Lo: from, Hi: to}
	for _, c := range fields[1:] {
		id, ok := d.byName[c]
		if !ok {
			return dicterr.Parse(pos, "category", "undefined category %s", c)
		}
		rg.Categories = append(rg.Categories, id)
	}
	d.Ranges = append(d.Ranges, rg)
	return nil
}

func flag(pos dicterr.Pos, op, s string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return false, dicterr.Parse(pos, op, "want 0 or 1, got %q", s)
}

func codePoint(pos dicterr.Pos, s string) (rune, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"), 16, 32)
	if err != nil || v > unicode.MaxRune {
		return 0, dicterr.Parse(pos, "range", "bad code point %q", s)
	}
	return rune(v), nil
}

// Category returns the index of the named category.
func (d *CharDef) Category(name string) (int, bool) {
	id, ok := d.byName[name]
	return id, ok
}

// Lookup returns the categories of r, primary first. Later ranges override earlier
// ones; characters outside every range are DEFAULT.
func (d *CharDef) Lookup(r rune) []int {
	for i := len(d.Ranges) - 1; i >= 0; i-- {
		if rg := d.Ranges[i]; rg.Lo <= r && r <= rg.Hi {
			return rg.Categories
		}
	}
	return []int{d.def}
}

// index rebuilds the name index after decoding.
func (d *CharDef) index() error {
	d.byName = make(map[string]int, len(d.Categories))
	for i, c := range d.Categories {
		if _, dup := d.byName[c.Name]; dup {
			return dicterr.Corrupt("category %s appears twice", c.Name)
		}
		d.byName[c.Name] = i
	}
	def, ok := d.byName[DefaultCategory]
	if !ok {
		return dicterr.Corrupt("no %s category", DefaultCategory)
	}
	d.def = def
	for _, rg := range d.Ranges {
		if rg.Hi < rg.Lo || len(rg.Categories) == 0 {
			return dicterr.Corrupt("bad range %#x..%#x", rg.Lo, rg.Hi)
		}
		for _, c := range rg.Categories {
			if c < 0 || c >= len(d.Categories) {
				return dicterr.Corrupt("range %#x..%#x names category %d", rg.Lo, rg.Hi, c)
			}
		}
	}
	return nil
}
