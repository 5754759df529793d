package corpus

import (
	"os"
	"strings"
	"testing"
)

func newAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer()
	if err != nil {
		t.Fatalf("Failed to create analyzer: %v", err)
	}
	return a
}

func TestAnalyzeKnownTokensCarryContextIDs(t *testing.T) {
	a := newAnalyzer(t)
	tokens, err := a.Analyze("私は猫が好きです")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	var cat *Token
	for i := range tokens {
		if tokens[i].Surface == "猫" {
			cat = &tokens[i]
		}
	}
	if cat == nil {
		t.Fatalf("expected a 猫 token, got %+v", tokens)
	}
	if !cat.Known || cat.PrimaryPOS != "名詞" {
		t.Fatalf("unexpected token %+v", cat)
	}
	if cat.LeftID <= 0 || cat.RightID <= 0 {
		t.Fatalf("known token lacks context ids: %+v", cat)
	}
	if cat.Reading != "ネコ" {
		t.Errorf("reading = %q", cat.Reading)
	}
}

func TestAnalyzeDocumentSplitsSentences(t *testing.T) {
	content, err := os.ReadFile("testdata/cats.txt")
	if err != nil {
		t.Fatalf("Failed to read test data: %v", err)
	}
	sentences, err := newAnalyzer(t).AnalyzeDocument(string(content))
	if err != nil {
		t.Fatalf("AnalyzeDocument failed: %v", err)
	}
	if len(sentences) != 2 {
		t.Fatalf("expected 2 sentences, got %d", len(sentences))
	}
	for _, s := range sentences {
		if len(s.Tokens) == 0 {
			t.Errorf("Sentence has no tokens: %q", s.Text)
		}
	}
}

func TestHarvestPositionsEntriesBySentence(t *testing.T) {
	a := newAnalyzer(t)
	entries, err := a.Harvest("cats.txt", "私は猫が好きです。\n猫は眠る。")
	if err != nil {
		t.Fatalf("Harvest failed: %v", err)
	}
	lines := map[int]bool{}
	for _, e := range entries {
		if e.Surface == "猫" {
			lines[e.Pos.Line] = true
			if e.Pos.File != "cats.txt" || len(e.Features) == 0 {
				t.Fatalf("unexpected entry %+v", e)
			}
		}
	}
	if !lines[1] || !lines[2] {
		t.Fatalf("expected 猫 in sentences 1 and 2, got %v", lines)
	}
}

func TestConnectionDefIsDense(t *testing.T) {
	def := newAnalyzer(t).ConnectionDef()
	if def.Rows <= 0 || def.Cols <= 0 {
		t.Fatalf("empty connection table %dx%d", def.Rows, def.Cols)
	}
	if len(def.Dense) != def.Rows*def.Cols {
		t.Fatalf("dense table has %d cells, want %d", len(def.Dense), def.Rows*def.Cols)
	}
}

func TestExtractTextDropsFurigana(t *testing.T) {
	f, err := os.Open("testdata/furigana.html")
	if err != nil {
		t.Fatalf("Failed to open test data: %v", err)
	}
	defer f.Close()

	article, err := ExtractText(f, "http://localhost/furigana")
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if !strings.Contains(article.Text, "猫が好き") {
		t.Fatalf("main text missing: %q", article.Text)
	}
	if strings.Contains(article.Text, "漢字かんじ") || strings.Contains(article.Text, "猫ねこ") {
		t.Errorf("output still contains furigana: %q", article.Text)
	}
}

func TestSanitizeRuby(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Simple Ruby",
			input:    "<ruby>漢字<rt>かんじ</rt></ruby>",
			expected: "<ruby>漢字</ruby>",
		},
		{
			name:     "Ruby with RP",
			input:    "<ruby>漢字<rp>(</rp><rt>かんじ</rt><rp>)</rp></ruby>",
			expected: "<ruby>漢字</ruby>",
		},
		{
			name:     "Multiple Ruby",
			input:    "<ruby>私<rt>わたし</rt></ruby>は<ruby>猫<rt>ねこ</rt></ruby>である",
			expected: "<ruby>私</ruby>は<ruby>猫</ruby>である",
		},
		{
			name:     "Attributes in tags",
			input:    "<ruby class='test'>漢字<rt class='reading'>かんじ</rt></ruby>",
			expected: "<ruby class='test'>漢字</ruby>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeRuby([]byte(tt.input))
			if string(result) != tt.expected {
				t.Errorf("got %q, want %q", string(result), tt.expected)
			}
		})
	}
}
