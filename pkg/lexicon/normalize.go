package lexicon

import (
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Normalizer rewrites ambiguous code points in source fields and filters unwanted surfaces.
// It is safe for concurrent use once built.
type Normalizer struct {
	mapping map[rune]rune
	keys    string
	skip    map[string]struct{}
}

// NewNormalizer builds a Normalizer from a rune mapping and a skip list.
func NewNormalizer(mapping map[rune]rune, skip []string) *Normalizer {
	n := &Normalizer{
		mapping: make(map[rune]rune, len(mapping)),
		skip:    make(map[string]struct{}, len(skip)),
	}
	var keys strings.Builder
	for from, to := range mapping {
		n.mapping[from] = to
		keys.WriteRune(from)
	}
	n.keys = keys.String()
	for _, s := range skip {
		n.skip[s] = struct{}{}
	}
	return n
}

// EUCJPDashes maps the code points that EUC-JP round trips turn ambiguous:
// U+2015 HORIZONTAL BAR to U+2014 EM DASH, and U+FF5E FULLWIDTH TILDE to U+301C WAVE DASH.
var EUCJPDashes = map[rune]rune{
	'―': '—',
	'～': '〜',
}

// NeologdSkipWords are NEologd surfaces with pathological entry counts.
var NeologdSkipWords = []string{"カブシキガイシャ", "タカラヅカカゲキダンキセイ"}

// Field returns s with the mapping applied.
func (n *Normalizer) Field(s string) string {
	if n == nil || n.keys == "" || !strings.ContainsAny(s, n.keys) {
		return s
	}
	out, _, err := transform.String(runes.Map(n.mapRune), s)
	if err != nil {
		return s
	}
	return out
}

// Fields applies Field to every element, copying only when something changes.
func (n *Normalizer) Fields(fields []string) []string {
	var out []string
	for i, f := range fields {
		g := n.Field(f)
		if g == f {
			continue
		}
		if out == nil {
			out = append([]string(nil), fields...)
		}
		out[i] = g
	}
	if out == nil {
		return fields
	}
	return out
}

// Skip reports whether entries with this surface are dropped.
func (n *Normalizer) Skip(surface string) bool {
	if n == nil {
		return false
	}
	_, ok := n.skip[surface]
	return ok
}

func (n *Normalizer) mapRune(r rune) rune {
	if to, ok := n.mapping[r]; ok {
		return to
	}
	return r
}
