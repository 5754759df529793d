package lexicon

import (
	"slices"
	"strings"

	"github.com/japaniel/dictbuild/pkg/dicterr"
)

// Entry is a single lexicon row. Entries are immutable once ingested.
type Entry struct {
	Surface  string
	LeftID   int
	RightID  int
	Cost     int16
	Features []string
	// Pos is where the entry was read from. It is used for diagnostics only
	// and never takes part in ordering, equality or serialization.
	Pos dicterr.Pos
}

// FeatureString joins the features the way MeCab prints them.
func (e Entry) FeatureString() string {
	return strings.Join(e.Features, ",")
}

// Compare orders entries by surface bytes, then left ID, right ID, cost and features.
// The order is total over everything except Pos, so sorting never depends on input order.
func Compare(a, b Entry) int {
	if c := strings.Compare(a.Surface, b.Surface); c != 0 {
		return c
	}
	if a.LeftID != b.LeftID {
		return cmpInt(a.LeftID, b.LeftID)
	}
	if a.RightID != b.RightID {
		return cmpInt(a.RightID, b.RightID)
	}
	if a.Cost != b.Cost {
		return cmpInt(int(a.Cost), int(b.Cost))
	}
	return slices.Compare(a.Features, b.Features)
}

// Equal reports whether a and b are the same entry, ignoring Pos.
func Equal(a, b Entry) bool { return Compare(a, b) == 0 }

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	return 1
}

// Finalize sorts entries in place and removes identical duplicates, keeping the first
// occurrence's position. The returned slice aliases entries.
func Finalize(entries []Entry) []Entry {
	slices.SortStableFunc(entries, Compare)
	return slices.CompactFunc(entries, Equal)
}

// IsSorted reports whether entries are in Finalize order without duplicates.
func IsSorted(entries []Entry) bool {
	for i := 1; i < len(entries); i++ {
		if Compare(entries[i-1], entries[i]) >= 0 {
			return false
		}
	}
	return true
}
