package artifact

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/japaniel/dictbuild/pkg/chardef"
	"github.com/japaniel/dictbuild/pkg/lexicon"
)

// DefaultCacheSize is the number of exact lookups a Dictionary remembers.
const DefaultCacheSize = 4096

// Dictionary answers lookups against a loaded artifact. It is safe for concurrent use.
type Dictionary struct {
	art    *Artifact
	header Header
	cache  *lru.Cache[string, []lexicon.Entry]
}

// Hit is a dictionary key found at the start of an input string.
type Hit struct {
	Surface string
	Length  int
	Entries []lexicon.Entry
}

// Stats summarizes a dictionary.
type Stats struct {
	Variant    string
	Version    string
	Compressed bool
	Keys       int
	Entries    int
	Nodes      int
	Edges      int
	Rows       int
	Cols       int
	Connected  int
	// Categories and UnknownEntries are 0 for dictionaries without an unknown word table.
	Categories     int
	UnknownEntries int
}

// Open loads the artifact at path for lookups.
func Open(path string) (*Dictionary, error) {
	a, h, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewDictionary(a, h, DefaultCacheSize)
}

// NewDictionary wraps an artifact. cacheSize <= 0 disables the exact lookup cache.
func NewDictionary(a *Artifact, h Header, cacheSize int) (*Dictionary, error) {
	d := &Dictionary{art: a, header: h}
	if cacheSize > 0 {
		c, err := lru.New[string, []lexicon.Entry](cacheSize)
		if err != nil {
			return nil, err
		}
		d.cache = c
	}
	return d, nil
}

// Artifact returns the underlying artifact.
func (d *Dictionary) Artifact() *Artifact { return d.art }

// Entries returns the entries of trie rank r.
func (d *Dictionary) Entries(rank int) []lexicon.Entry {
	if rank < 0 || rank >= len(d.art.Groups) {
		return nil
	}
	g := d.art.Groups[rank]
	return d.art.Entries[g.First : g.First+g.Count : g.First+g.Count]
}

// Exact returns the entries whose surface is exactly surface.
func (d *Dictionary) Exact(surface string) []lexicon.Entry {
	if d.cache != nil {
		if es, ok := d.cache.Get(surface); ok {
			return es
		}
	}
	var es []lexicon.Entry
	if rank, ok := d.art.Trie.Exact([]byte(surface)); ok {
		es = d.Entries(rank)
	}
	if d.cache != nil {
		d.cache.Add(surface, es)
	}
	return es
}

// CommonPrefix returns every key that starts input, shortest first.
func (d *Dictionary) CommonPrefix(input string) []Hit {
	var hits []Hit
	for _, m := range d.art.Trie.CommonPrefix([]byte(input)) {
		hits = append(hits, d.hit(input, m.Rank, m.Length))
	}
	return hits
}

// LongestPrefix returns the longest key that starts input.
func (d *Dictionary) LongestPrefix(input string) (Hit, bool) {
	m, ok := d.art.Trie.LongestPrefix([]byte(input))
	if !ok {
		return Hit{}, false
	}
	return d.hit(input, m.Rank, m.Length), true
}

func (d *Dictionary) hit(input string, rank, length int) Hit {
	return Hit{Surface: input[:length], Length: length, Entries: d.Entries(rank)}
}

// Cost returns the connection cost from a left context to a right context.
func (d *Dictionary) Cost(left, right int) int16 { return d.art.Matrix.Cost(left, right) }

// Unknown returns the templates proposed for unknown text starting with r, from r's
// primary character category. It returns nil when the dictionary has no unknown word table.
func (d *Dictionary) Unknown(r rune) (category string, entries []chardef.UnkEntry) {
	u := d.art.Unknown
	if u == nil {
		return "", nil
	}
	cat := u.Def.Lookup(r)[0]
	return u.Def.Categories[cat].Name, u.ForCategory(cat)
}

// Stats reports sizes of the loaded dictionary.
func (d *Dictionary) Stats() Stats {
	a := d.art
	s := Stats{
		Variant:    a.Variant,
		Version:    versionString(d.header),
		Compressed: d.header.Compressed(),
		Keys:       a.Trie.Len(),
		Entries:    len(a.Entries),
		Nodes:      a.Trie.NumNodes(),
		Edges:      a.Trie.NumEdges(),
		Rows:       a.Matrix.Rows,
		Cols:       a.Matrix.Cols,
		Connected:  a.Matrix.Connected(),
	}
	if a.Unknown != nil {
		s.Categories = len(a.Unknown.Def.Categories)
		s.UnknownEntries = len(a.Unknown.Entries)
	}
	return s
}
