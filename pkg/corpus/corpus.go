// Package corpus analyzes Japanese text with the kagome IPA dictionary and harvests the
// known words it finds as lexicon entries.
package corpus

import (
	"strings"

	"github.com/ikawaha/kagome-dict/dict"
	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"

	"github.com/japaniel/dictbuild/pkg/dicterr"
	"github.com/japaniel/dictbuild/pkg/lexicon"
	"github.com/japaniel/dictbuild/pkg/matrix"
)

// Token represents a single analyzed unit of text.
type Token struct {
	Surface       string   // The text as it appears (e.g. "行っ")
	BaseForm      string   // The dictionary form (e.g. "行く")
	Reading       string   // The pronunciation (katakana, e.g. "イッ")
	PartsOfSpeech []string // Full kagome feature list, POS first
	PrimaryPOS    string

	// Known is set for tokens found in the dictionary; only those carry context IDs.
	Known   bool
	LeftID  int
	RightID int
	Cost    int16
}

// Sentence represents a sentence containing tokens.
type Sentence struct {
	Text   string
	Tokens []Token
}

// Analyzer handles text segmentation.
type Analyzer struct {
	t *tokenizer.Tokenizer
	d *dict.Dict
}

// NewAnalyzer creates a tokenizer over the bundled IPA dictionary.
func NewAnalyzer() (*Analyzer, error) {
	d := ipa.Dict()
	t, err := tokenizer.New(d, tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Analyzer{t: t, d: d}, nil
}

// Analyze breaks text into tokens with readings and base forms.
func (a *Analyzer) Analyze(text string) ([]Token, error) {
	tokens := a.t.Tokenize(text)
	var result []Token

	for _, token := range tokens {
		if token.Class == tokenizer.DUMMY {
			continue
		}
		if strings.TrimSpace(token.Surface) == "" {
			continue
		}

		// IPA features: POS, three sub-POS, conjugation type and form, base form,
		// reading, pronunciation.
		features := token.Features()

		base := token.Surface
		if len(features) > 6 && features[6] != "*" {
			base = features[6]
		}
		reading := ""
		if len(features) > 7 && features[7] != "*" {
			reading = features[7]
		}
		primaryPOS := ""
		if len(features) > 0 {
			primaryPOS = features[0]
		}

		tok := Token{
			Surface:       token.Surface,
			BaseForm:      base,
			Reading:       reading,
			PartsOfSpeech: features,
			PrimaryPOS:    primaryPOS,
		}
		if token.Class == tokenizer.KNOWN && token.ID >= 0 && token.ID < len(a.d.Morphs) {
			m := a.d.Morphs[token.ID]
			tok.Known = true
			tok.LeftID = int(m.LeftID)
			tok.RightID = int(m.RightID)
			tok.Cost = int16(m.Weight)
		}
		result = append(result, tok)
	}

	return result, nil
}

// AnalyzeDocument splits the text into sentences and tokenizes each sentence.
func (a *Analyzer) AnalyzeDocument(text string) ([]Sentence, error) {
	var result []Sentence
	for _, s := range splitSentences(text) {
		if strings.TrimSpace(s) == "" {
			continue
		}
		tokens, err := a.Analyze(s)
		if err != nil {
			return nil, err
		}
		result = append(result, Sentence{Text: s, Tokens: tokens})
	}
	return result, nil
}

// Harvest analyzes text and returns an entry for every known token, positioned at the
// sentence it came from. The result is not deduplicated.
func (a *Analyzer) Harvest(name, text string) ([]lexicon.Entry, error) {
	sentences, err := a.AnalyzeDocument(text)
	if err != nil {
		return nil, err
	}
	var out []lexicon.Entry
	for i, s := range sentences {
		for _, tok := range s.Tokens {
			if !tok.Known {
				continue
			}
			out = append(out, lexicon.Entry{
				Surface:  tok.Surface,
				LeftID:   tok.LeftID,
				RightID:  tok.RightID,
				Cost:     tok.Cost,
				Features: append([]string(nil), tok.PartsOfSpeech...),
				Pos:      dicterr.Pos{File: name, Line: i + 1},
			})
		}
	}
	return out, nil
}

// ConnectionDef returns the dictionary's connection table as a dense matrix definition.
func (a *Analyzer) ConnectionDef() *matrix.Def {
	c := &a.d.Connection
	rows, cols := int(c.Row), int(c.Col)
	dense := make([]int16, rows*cols)
	for l := 0; l < rows; l++ {
		for r := 0; r < cols; r++ {
			dense[l*cols+r] = c.At(l, r)
		}
	}
	return &matrix.Def{Rows: rows, Cols: cols, Dense: dense, Pos: dicterr.Pos{File: "ipa"}}
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '。' || r == '！' || r == '？' || r == '\n' {
			sentences = append(sentences, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}
	return sentences
}
