package builder

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/japaniel/dictbuild/pkg/dicterr"
	"github.com/japaniel/dictbuild/pkg/lexicon"
	"github.com/japaniel/dictbuild/pkg/matrix"
)

// JMdictEntry matches the structure of jmdict-simplified entries.
type JMdictEntry struct {
	Id    string          `json:"id"`
	Kanji []JMdictElement `json:"kanji"`
	Kana  []JMdictElement `json:"kana"`
	Sense []JMdictSense   `json:"sense"`
}

type JMdictElement struct {
	Text   string   `json:"text"`
	Common bool     `json:"common"`
	Tags   []string `json:"tags"`
}

type JMdictSense struct {
	PartOfSpeech []string      `json:"partOfSpeech"`
	Gloss        []JMdictGloss `json:"gloss"`
}

type JMdictGloss struct {
	Text string `json:"text"`
	Lang string `json:"lang"` // defaults to 'eng' if missing
}

// JMdictDefaults are the context IDs and cost given to every JMdict entry, which
// carries none of its own.
type JMdictDefaults struct {
	LeftID  int
	RightID int
	Cost    int16
}

// LoadJMdictSimplified reads a jmdict-simplified file: either the release object
// {"words": [...]} or a bare array of entries.
func LoadJMdictSimplified(path string) ([]JMdictEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dicterr.IO("read jmdict", err)
	}
	pos := dicterr.Pos{File: filepath.Base(path)}

	raw := json.RawMessage(bytes.TrimSpace(data))
	if len(raw) == 0 {
		return nil, dicterr.Parse(pos, "json", "empty file")
	}
	switch raw[0] {
	case '{':
		var wrapper struct {
			Words json.RawMessage `json:"words"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, dicterr.Parse(pos, "json", "%v", err)
		}
		if wrapper.Words == nil {
			return nil, dicterr.Parse(pos, "json", "object has no \"words\" list")
		}
		raw = wrapper.Words
	case '[':
	default:
		return nil, dicterr.Parse(pos, "json", "not a jmdict-simplified object or array")
	}
	var entries []JMdictEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, dicterr.Parse(pos, "json", "%v", err)
	}
	return entries, nil
}

// ToHiragana converts Katakana to Hiragana.
func ToHiragana(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		if r >= 0x30A1 && r <= 0x30F6 {
			runes[i] = r - 0x60
		}
	}
	return string(runes)
}

type jmdictBuilder struct {
	base
}

// NewJMdict builds a dictionary from jmdict-simplified JSON. Every kanji and kana
// spelling becomes an entry whose features are the first part of speech, the reading
// in hiragana and the JMdict id.
func NewJMdict(opts Options) DictionaryBuilder {
	return &jmdictBuilder{base: base{name: "jmdict", opts: opts}}
}

func (b *jmdictBuilder) Ingest(ctx context.Context, src Source) (*Lexicon, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	paths, err := src.files("*.json")
	if err != nil {
		return nil, err
	}
	d := b.opts.JMdict
	var all []lexicon.Entry
	for _, path := range paths {
		words, err := LoadJMdictSimplified(path)
		if err != nil {
			return nil, err
		}
		name := filepath.Base(path)
		for i, w := range words {
			pos := dicterr.Pos{File: name, Line: i + 1}
			entries, err := jmdictEntries(w, d, pos)
			if err != nil {
				return nil, err
			}
			all = append(all, entries...)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return &Lexicon{Variant: b.name, Entries: lexicon.Finalize(all), Matrix: jmdictMatrix(d)}, nil
}

func jmdictEntries(w JMdictEntry, d JMdictDefaults, pos dicterr.Pos) ([]lexicon.Entry, error) {
	if len(w.Kanji) == 0 && len(w.Kana) == 0 {
		return nil, dicterr.Parse(pos, "word", "entry %q has no kanji or kana", w.Id)
	}
	partOfSpeech := "*"
	if len(w.Sense) > 0 && len(w.Sense[0].PartOfSpeech) > 0 {
		partOfSpeech = w.Sense[0].PartOfSpeech[0]
	}
	reading := "*"
	if len(w.Kana) > 0 {
		reading = ToHiragana(w.Kana[0].Text)
	}

	var out []lexicon.Entry
	add := func(surface, reading string) {
		if surface == "" {
			return
		}
		out = append(out, lexicon.Entry{
			Surface:  surface,
			LeftID:   d.LeftID,
			RightID:  d.RightID,
			Cost:     d.Cost,
			Features: []string{partOfSpeech, reading, w.Id},
			Pos:      pos,
		})
	}
	for _, k := range w.Kanji {
		add(k.Text, reading)
	}
	for _, k := range w.Kana {
		add(k.Text, ToHiragana(k.Text))
	}
	if len(out) == 0 {
		return nil, dicterr.Parse(pos, "word", "entry %q has only empty spellings", w.Id)
	}
	return out, nil
}

// jmdictMatrix connects JMdict words to each other and to the sentence boundary
// context 0 at no cost.
func jmdictMatrix(d JMdictDefaults) *matrix.Def {
	pos := dicterr.Pos{File: "jmdict"}
	return &matrix.Def{
		Pos: pos,
		Triples: []matrix.Triple{
			{Left: 0, Right: d.LeftID, Pos: pos},
			{Left: d.RightID, Right: 0, Pos: pos},
			{Left: d.RightID, Right: d.LeftID, Pos: pos},
		},
	}
}
