package builder

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/japaniel/dictbuild/pkg/corpus"
	"github.com/japaniel/dictbuild/pkg/dicterr"
	"github.com/japaniel/dictbuild/pkg/lexicon"
)

type corpusBuilder struct {
	base
}

// NewKagomeCorpus builds a dictionary of the words the kagome IPA dictionary finds in a
// corpus of .txt and .html files, with IPA's own context IDs, costs and connection table.
func NewKagomeCorpus(opts Options) DictionaryBuilder {
	return &corpusBuilder{base: base{name: "kagome-corpus", opts: opts}}
}

func isCorpusFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".html", ".htm":
		return true
	}
	return false
}

func (b *corpusBuilder) Ingest(ctx context.Context, src Source) (*Lexicon, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := src.files("*")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, p := range all {
		if isCorpusFile(p) {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return nil, dicterr.IO("find inputs", os.ErrNotExist)
	}

	analyzer, err := corpus.NewAnalyzer()
	if err != nil {
		return nil, dicterr.IO("load kagome dictionary", err)
	}

	harvested := make([][]lexicon.Entry, len(paths))
	errs := make([]error, len(paths))
	var g errgroup.Group
	g.SetLimit(max(b.opts.Workers, 1))
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			harvested[i], errs[i] = harvestFile(analyzer, path)
			return errs[i]
		})
	}
	_ = g.Wait()

	var entries []lexicon.Entry
	for i, es := range harvested {
		// Earliest file's error wins, whatever order the workers finished in.
		if errs[i] != nil {
			return nil, errs[i]
		}
		entries = append(entries, es...)
	}
	klog.V(1).InfoS("harvested corpus", "files", len(paths), "tokens", len(entries))
	return &Lexicon{Variant: b.name, Entries: lexicon.Finalize(entries), Matrix: analyzer.ConnectionDef()}, nil
}

func harvestFile(a *corpus.Analyzer, path string) ([]lexicon.Entry, error) {
	name := filepath.Base(path)
	f, err := os.Open(path)
	if err != nil {
		return nil, dicterr.IO("open corpus", err)
	}
	defer f.Close()

	var text string
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".html" || ext == ".htm" {
		article, err := corpus.ExtractText(f, "")
		if err != nil {
			return nil, dicterr.Parse(dicterr.Pos{File: name}, "html", "%v", err)
		}
		text = article.Text
	} else {
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, dicterr.IO("read corpus", err)
		}
		text = strings.TrimPrefix(string(data), "\ufeff")
	}
	return a.Harvest(name, text)
}
