package lexicon

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/japaniel/dictbuild/pkg/dicterr"
)

// Record is one raw source line split into fields.
type Record struct {
	Pos    dicterr.Pos
	Fields []string
}

// RecordSource yields records lazily. Next returns io.EOF after the last record.
type RecordSource interface {
	Next() (Record, error)
}

// Reader reads MeCab style comma separated records from a stream.
// Fields may be double-quoted to carry commas; "" inside a quoted field is a literal quote.
type Reader struct {
	r    *bufio.Reader
	name string
	line int
	// err is returned by every call after the stream ended or failed.
	err error
}

// NewReader returns a Reader over r. name is used in record positions.
func NewReader(r io.Reader, name string) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024), name: name}
}

// NewDecodingReader is NewReader with the stream decoded from the named text encoding
// (for example "euc-jp" or "shift_jis"). An empty name means UTF-8.
func NewDecodingReader(r io.Reader, name, encodingName string) (*Reader, error) {
	r, err := Decode(r, encodingName)
	if err != nil {
		return nil, err
	}
	return NewReader(r, name), nil
}

// Decode returns r decoded from the named text encoding to UTF-8.
func Decode(r io.Reader, encodingName string) (io.Reader, error) {
	enc, err := LookupEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return r, nil
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// LookupEncoding resolves an encoding label. It returns nil for UTF-8.
func LookupEncoding(label string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", label, err)
	}
	return enc, nil
}

// Next returns the next non-blank record.
func (rd *Reader) Next() (Record, error) {
	for {
		if rd.err != nil {
			return Record{}, rd.err
		}
		line, err := rd.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				rd.err = io.EOF
			} else {
				rd.err = dicterr.IO("read "+rd.name, err)
			}
			if line == "" {
				return Record{}, rd.err
			}
		}
		rd.line++
		if rd.line == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		return Record{
			Pos:    dicterr.Pos{File: rd.name, Line: rd.line},
			Fields: SplitFields(line),
		}, nil
	}
}

// SplitFields splits a line on commas, honoring double-quoted fields.
// An opening quote without a matching close is kept literally.
func SplitFields(line string) []string {
	var fields []string
	for {
		if strings.HasPrefix(line, `"`) {
			if val, rest, ok := quotedField(line); ok {
				fields = append(fields, val)
				if rest == "" {
					return fields
				}
				line = rest[1:]
				continue
			}
		}
		i := strings.IndexByte(line, ',')
		if i < 0 {
			return append(fields, line)
		}
		fields = append(fields, line[:i])
		line = line[i+1:]
	}
}

// quotedField parses a quoted field at the start of s. rest is empty or starts with ','.
func quotedField(s string) (val, rest string, ok bool) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] != '"' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '"' {
			b.WriteByte('"')
			i++
			continue
		}
		if i+1 == len(s) || s[i+1] == ',' {
			return b.String(), s[i+1:], true
		}
		return "", "", false
	}
	return "", "", false
}

// SliceSource is a RecordSource over records already in memory.
type SliceSource struct {
	recs []Record
	i    int
}

// NewSliceSource returns a source yielding recs in order.
func NewSliceSource(recs []Record) *SliceSource { return &SliceSource{recs: recs} }

func (s *SliceSource) Next() (Record, error) {
	if s.i >= len(s.recs) {
		return Record{}, io.EOF
	}
	r := s.recs[s.i]
	s.i++
	return r, nil
}
