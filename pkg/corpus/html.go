package corpus

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"regexp"

	"github.com/go-shiori/go-readability"
)

// maxHTMLSize bounds documents read by ExtractText.
const maxHTMLSize = 10 * 1024 * 1024

var (
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby removes ruby text (<rt>...</rt>) and ruby parentheses (<rp>...</rp>)
// from HTML content, so furigana does not end up glued to the base text
// ("漢字" would otherwise become "漢字かんじ"). It is safe for Shift_JIS input since
// the tag bytes are ASCII and '<' is never a trailing byte there.
func SanitizeRuby(content []byte) []byte {
	cleaned := reRT.ReplaceAll(content, []byte{})
	cleaned = reRP.ReplaceAll(cleaned, []byte{})
	return cleaned
}

// Article is the readable part of an HTML document.
type Article struct {
	Title string
	Text  string
}

// ExtractText strips ruby annotations from an HTML document and extracts its main text.
// pageURL resolves relative links and may be empty.
func ExtractText(r io.Reader, pageURL string) (Article, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxHTMLSize+1))
	if err != nil {
		return Article{}, err
	}
	if len(body) > maxHTMLSize {
		return Article{}, fmt.Errorf("document exceeds %d bytes", maxHTMLSize)
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return Article{}, fmt.Errorf("parse url %q: %w", pageURL, err)
	}
	article, err := readability.FromReader(bytes.NewReader(SanitizeRuby(body)), u)
	if err != nil {
		return Article{}, fmt.Errorf("extract article: %w", err)
	}
	return Article{Title: article.Title, Text: article.TextContent}, nil
}
