// Package matrix compiles connection costs between context IDs into a dense table.
package matrix

import (
	"encoding/binary"
	"fmt"
	"math"

	"fortio.org/safecast"

	"github.com/japaniel/dictbuild/pkg/dicterr"
)

// Disconnected is the cost of a transition that no source record defines.
const Disconnected int16 = math.MaxInt16

// DefaultMaxID bounds context IDs when no maximum is configured.
const DefaultMaxID = 8191

// Triple is one connection cost record.
type Triple struct {
	Left  int
	Right int
	Cost  int16
	Pos   dicterr.Pos
}

// Matrix is a dense Rows x Cols table of connection costs, row major.
type Matrix struct {
	Rows  int
	Cols  int
	costs []int16
}

// Cost returns the cost of (left, right), or Disconnected outside the table.
func (m *Matrix) Cost(left, right int) int16 {
	if left < 0 || right < 0 || left >= m.Rows || right >= m.Cols {
		return Disconnected
	}
	return m.costs[left*m.Cols+right]
}

// Connected counts cells holding an explicit cost.
func (m *Matrix) Connected() int {
	n := 0
	for _, c := range m.costs {
		if c != Disconnected {
			n++
		}
	}
	return n
}

// Builder accumulates triples and context IDs, then sizes the table to what it saw.
type Builder struct {
	maxID      int
	rows, cols int
	triples    []Triple

	dense                []int16
	denseRows, denseCols int
}

// NewBuilder returns a Builder rejecting IDs above maxID. maxID <= 0 selects DefaultMaxID.
func NewBuilder(maxID int) *Builder {
	if maxID <= 0 {
		maxID = DefaultMaxID
	}
	return &Builder{maxID: maxID, rows: 1, cols: 1}
}

// MaxID returns the configured bound.
func (b *Builder) MaxID() int { return b.maxID }

// Declare grows the table to at least rows x cols, as announced by a matrix.def header.
func (b *Builder) Declare(pos dicterr.Pos, rows, cols int) error {
	if rows > 0 {
		if err := b.check(pos, "rows", rows-1); err != nil {
			return err
		}
		b.rows = max(b.rows, rows)
	}
	if cols > 0 {
		if err := b.check(pos, "cols", cols-1); err != nil {
			return err
		}
		b.cols = max(b.cols, cols)
	}
	return nil
}

// Observe records an entry's context IDs so the table covers them.
func (b *Builder) Observe(pos dicterr.Pos, left, right int) error {
	if err := b.check(pos, "left id", left); err != nil {
		return err
	}
	if err := b.check(pos, "right id", right); err != nil {
		return err
	}
	b.rows = max(b.rows, left+1)
	b.cols = max(b.cols, right+1)
	return nil
}

// SetDense installs a complete row-major table taken from an existing dictionary.
// Triples added later override its cells.
func (b *Builder) SetDense(pos dicterr.Pos, rows, cols int, costs []int16) error {
	if rows*cols != len(costs) {
		return dicterr.Build(pos, "dense matrix %dx%d has %d cells", rows, cols, len(costs))
	}
	if err := b.Declare(pos, rows, cols); err != nil {
		return err
	}
	b.dense, b.denseRows, b.denseCols = costs, rows, cols
	return nil
}

// Add records an explicit connection cost. Later triples for the same cell win.
func (b *Builder) Add(t Triple) error {
	if err := b.Observe(t.Pos, t.Left, t.Right); err != nil {
		return err
	}
	b.triples = append(b.triples, t)
	return nil
}

func (b *Builder) check(pos dicterr.Pos, op string, id int) error {
	if id < 0 {
		return dicterr.Parse(pos, op, "negative id %d", id)
	}
	if id > b.maxID {
		return dicterr.Range(pos, op, id, b.maxID)
	}
	return nil
}

// Build allocates the table, fills it with Disconnected and applies the triples.
func (b *Builder) Build() *Matrix {
	m := &Matrix{Rows: b.rows, Cols: b.cols, costs: make([]int16, b.rows*b.cols)}
	for i := range m.costs {
		m.costs[i] = Disconnected
	}
	for r := 0; r < b.denseRows; r++ {
		copy(m.costs[r*m.Cols:], b.dense[r*b.denseCols:(r+1)*b.denseCols])
	}
	for _, t := range b.triples {
		m.costs[t.Left*m.Cols+t.Right] = t.Cost
	}
	return m
}

// MarshalBinary writes rows, cols and the costs as little endian.
func (m *Matrix) MarshalBinary() ([]byte, error) {
	rows, err := safecast.Conv[uint32](m.Rows)
	if err != nil {
		return nil, fmt.Errorf("matrix: rows: %w", err)
	}
	cols, err := safecast.Conv[uint32](m.Cols)
	if err != nil {
		return nil, fmt.Errorf("matrix: cols: %w", err)
	}
	buf := make([]byte, 0, 8+2*len(m.costs))
	buf = binary.LittleEndian.AppendUint32(buf, rows)
	buf = binary.LittleEndian.AppendUint32(buf, cols)
	for _, c := range m.costs {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(c))
	}
	return buf, nil
}

// UnmarshalBinary reads data written by MarshalBinary.
func (m *Matrix) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("matrix: truncated header")
	}
	rows := int(binary.LittleEndian.Uint32(data[0:]))
	cols := int(binary.LittleEndian.Uint32(data[4:]))
	if rows == 0 || cols == 0 || len(data) != 8+2*rows*cols {
		return fmt.Errorf("matrix: %dx%d does not match %d bytes", rows, cols, len(data))
	}
	costs := make([]int16, rows*cols)
	p := data[8:]
	for i := range costs {
		costs[i] = int16(binary.LittleEndian.Uint16(p[2*i:]))
	}
	*m = Matrix{Rows: rows, Cols: cols, costs: costs}
	return nil
}
