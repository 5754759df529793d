package lexicon

import (
	"errors"
	"io"
)

// Ingest drains src, parsing each record with p, and returns the entries
// deduplicated and in Compare order. It stops at the first error.
func Ingest(src RecordSource, p EntryParser) ([]Entry, error) {
	entries, err := collect(src, p)
	if err != nil {
		return nil, err
	}
	return Finalize(entries), nil
}

// collect parses records without sorting.
func collect(src RecordSource, p EntryParser) ([]Entry, error) {
	var entries []Entry
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		e, ok, err := p.ParseRecord(rec)
		if err != nil {
			return nil, err
		}
		if ok {
			entries = append(entries, e)
		}
	}
}
