package matrix

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/japaniel/dictbuild/pkg/dicterr"
	"github.com/japaniel/dictbuild/pkg/lexicon"
)

// Def is a parsed matrix.def: the declared dimensions and the cost triples.
type Def struct {
	Rows    int
	Cols    int
	Pos     dicterr.Pos
	Triples []Triple
	// Dense, when set, holds all Rows*Cols costs row major and Triples is usually empty.
	Dense []int16
}

// ParseDef reads the MeCab matrix.def format: a header line "rows cols" followed by
// "left right cost" lines, whitespace separated. Blank lines are ignored.
func ParseDef(r io.Reader, name string) (*Def, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	def := &Def{}
	line := 0
	header := false
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		pos := dicterr.Pos{File: name, Line: line}
		if !header {
			if len(fields) != 2 {
				return nil, dicterr.Parse(pos, "header", "want 2 fields, got %d", len(fields))
			}
			rows, err := atoi(pos, "rows", fields[0])
			if err != nil {
				return nil, err
			}
			cols, err := atoi(pos, "cols", fields[1])
			if err != nil {
				return nil, err
			}
			def.Rows, def.Cols, def.Pos = rows, cols, pos
			header = true
			continue
		}
		if len(fields) != 3 {
			return nil, dicterr.Parse(pos, "field count", "want 3 fields, got %d", len(fields))
		}
		left, err := atoi(pos, "left id", fields[0])
		if err != nil {
			return nil, err
		}
		right, err := atoi(pos, "right id", fields[1])
		if err != nil {
			return nil, err
		}
		cost, err := lexicon.ParseCost(pos, fields[2])
		if err != nil {
			return nil, err
		}
		def.Triples = append(def.Triples, Triple{Left: left, Right: right, Cost: cost, Pos: pos})
	}
	if err := sc.Err(); err != nil {
		return nil, dicterr.IO("read "+name, err)
	}
	if !header {
		return nil, dicterr.Parse(dicterr.Pos{File: name}, "header", "missing dimensions line")
	}
	return def, nil
}

// Apply declares the header dimensions and adds every triple to b.
func (d *Def) Apply(b *Builder) error {
	if d == nil {
		return nil
	}
	if d.Dense != nil {
		if err := b.SetDense(d.Pos, d.Rows, d.Cols, d.Dense); err != nil {
			return err
		}
	} else if err := b.Declare(d.Pos, d.Rows, d.Cols); err != nil {
		return err
	}
	for _, t := range d.Triples {
		if err := b.Add(t); err != nil {
			return err
		}
	}
	return nil
}

func atoi(pos dicterr.Pos, op, s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, dicterr.Parse(pos, op, "not a number: %q", s)
	}
	if v < 0 {
		return 0, dicterr.Parse(pos, op, "negative value %d", v)
	}
	return v, nil
}
