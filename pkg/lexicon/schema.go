package lexicon

import (
	"errors"
	"strconv"
	"strings"

	"github.com/japaniel/dictbuild/pkg/dicterr"
)

// Field positions shared by every CSV lexicon schema.
const (
	fieldSurface = iota
	fieldLeftID
	fieldRightID
	fieldCost
	fieldFeatures
)

// EntryParser turns a record into an entry. ok is false when the record is intentionally skipped.
type EntryParser interface {
	ParseRecord(rec Record) (e Entry, ok bool, err error)
}

// Schema describes a CSV lexicon layout: surface, left ID, right ID, cost, then features.
type Schema struct {
	Name string
	// MinFields and MaxFields bound the field count. MaxFields 0 means unbounded.
	MinFields int
	MaxFields int
	// Normalizer, when set, rewrites fields and decides which surfaces are skipped.
	Normalizer *Normalizer
}

// IPADIC is the 13 column layout of mecab-ipadic and mecab-ipadic-NEologd:
// surface, left, right, cost, pos1..pos4, conjugation type, conjugation form, base form, reading, pronunciation.
var IPADIC = Schema{Name: "ipadic", MinFields: 13, MaxFields: 13}

// Generic accepts any row with at least one feature column.
var Generic = Schema{Name: "csv", MinFields: 5}

// ParseRecord implements EntryParser.
func (s Schema) ParseRecord(rec Record) (Entry, bool, error) {
	n := len(rec.Fields)
	if n < s.MinFields || (s.MaxFields > 0 && n > s.MaxFields) {
		return Entry{}, false, dicterr.Parse(rec.Pos, "field count", "got %d fields, %s", n, s.wantFields())
	}
	fields := rec.Fields
	if s.Normalizer != nil {
		fields = s.Normalizer.Fields(fields)
		if s.Normalizer.Skip(fields[fieldSurface]) {
			return Entry{}, false, nil
		}
	}
	surface := fields[fieldSurface]
	if surface == "" {
		return Entry{}, false, dicterr.Parse(rec.Pos, "surface", "empty surface form")
	}
	left, err := parseID(rec.Pos, "left id", fields[fieldLeftID])
	if err != nil {
		return Entry{}, false, err
	}
	right, err := parseID(rec.Pos, "right id", fields[fieldRightID])
	if err != nil {
		return Entry{}, false, err
	}
	cost, err := ParseCost(rec.Pos, fields[fieldCost])
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{
		Surface:  surface,
		LeftID:   left,
		RightID:  right,
		Cost:     cost,
		Features: append([]string(nil), fields[fieldFeatures:]...),
		Pos:      rec.Pos,
	}, true, nil
}

func (s Schema) wantFields() string {
	switch {
	case s.MaxFields == s.MinFields:
		return "want " + strconv.Itoa(s.MinFields)
	case s.MaxFields == 0:
		return "want at least " + strconv.Itoa(s.MinFields)
	}
	return "want " + strconv.Itoa(s.MinFields) + ".." + strconv.Itoa(s.MaxFields)
}

func parseID(pos dicterr.Pos, op, s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, dicterr.Parse(pos, op, "not a number: %q", s)
	}
	if v < 0 {
		return 0, dicterr.Parse(pos, op, "negative id %d", v)
	}
	return v, nil
}

// ParseCost parses a word or connection cost, which must fit in int16.
func ParseCost(pos dicterr.Pos, s string) (int16, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 16)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, dicterr.Parse(pos, "cost", "%s out of int16 range", s)
		}
		return 0, dicterr.Parse(pos, "cost", "not a number: %q", s)
	}
	return int16(v), nil
}
