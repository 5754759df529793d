// Package builder turns lexicon sources into dictionary artifacts. Each dictionary
// variant implements DictionaryBuilder; all of them share the same compile stage.
package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/japaniel/dictbuild/pkg/artifact"
	"github.com/japaniel/dictbuild/pkg/chardef"
	"github.com/japaniel/dictbuild/pkg/dicterr"
	"github.com/japaniel/dictbuild/pkg/lexicon"
	"github.com/japaniel/dictbuild/pkg/matrix"
	"github.com/japaniel/dictbuild/pkg/trie"
)

// DictionaryBuilder builds one dictionary variant.
type DictionaryBuilder interface {
	Name() string
	// Ingest reads the source into a sorted, deduplicated lexicon.
	Ingest(ctx context.Context, src Source) (*Lexicon, error)
	// Compile turns a lexicon into an artifact.
	Compile(ctx context.Context, lex *Lexicon) (*artifact.Artifact, error)
}

// Source locates the raw inputs of a build.
type Source struct {
	Dir string
	// Files, when set, replaces the variant's default file pattern within Dir.
	Files []string
}

func (s Source) String() string {
	if len(s.Files) > 0 {
		return fmt.Sprintf("%s (%d files)", s.Dir, len(s.Files))
	}
	return s.Dir
}

// files returns the explicit file list, or the files in Dir matching pattern.
func (s Source) files(pattern string) ([]string, error) {
	if len(s.Files) > 0 {
		return s.Files, nil
	}
	if s.Dir == "" {
		return nil, dicterr.IO("find inputs", fmt.Errorf("no source directory or files given"))
	}
	paths, err := lexicon.Glob(s.Dir, pattern)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, dicterr.IO("find inputs", fmt.Errorf("no %s files in %s: %w", pattern, s.Dir, os.ErrNotExist))
	}
	return paths, nil
}

// Lexicon is the output of ingestion: entries in lexicon.Finalize order and the
// connection costs, if the source has any.
type Lexicon struct {
	Variant string
	Entries []lexicon.Entry
	Matrix  *matrix.Def
	// Unknown is the char.def and unk.def table of variants that ship one.
	Unknown *chardef.Table
}

// Options are shared by all variants.
type Options struct {
	// MaxID bounds context IDs; 0 selects matrix.DefaultMaxID.
	MaxID int
	// Workers parse input files concurrently.
	Workers int
	// Encoding overrides the variant's default text encoding.
	Encoding string
	JMdict   JMdictDefaults
}

// base carries what every variant shares and provides the common Compile.
type base struct {
	name string
	opts Options
}

func (b base) Name() string { return b.name }

// Compile builds the trie and the matrix concurrently over the immutable entries and
// assembles the artifact once both are done.
func (b base) Compile(ctx context.Context, lex *Lexicon) (*artifact.Artifact, error) {
	return Compile(ctx, b.name, lex, b.opts.MaxID)
}

// Compile is the compile stage shared by every variant. Entries not already in
// lexicon.Finalize order are sorted first. The context is only checked before and after
// the stage.
func Compile(ctx context.Context, variant string, lex *Lexicon, maxID int) (*artifact.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries := lex.Entries
	if !lexicon.IsSorted(entries) {
		entries = lexicon.Finalize(append([]lexicon.Entry(nil), entries...))
	}

	var (
		tr      *trie.Trie
		groups  []trie.Group
		m       *matrix.Matrix
		trieErr error
		matErr  error
	)
	var g errgroup.Group
	g.Go(func() error {
		tr, groups, trieErr = trie.Compile(entries)
		return trieErr
	})
	g.Go(func() error {
		m, matErr = buildMatrix(lex.Matrix, entries, lex.Unknown, maxID)
		return matErr
	})
	_ = g.Wait()
	// Report the trie error first so failures do not depend on scheduling.
	if trieErr != nil {
		return nil, trieErr
	}
	if matErr != nil {
		return nil, matErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	klog.V(2).InfoS("compiled lexicon", "variant", variant, "keys", tr.Len(), "nodes", tr.NumNodes(),
		"entries", len(entries), "rows", m.Rows, "cols", m.Cols)
	return &artifact.Artifact{Variant: variant, Trie: tr, Groups: groups, Entries: entries, Matrix: m, Unknown: lex.Unknown}, nil
}

func buildMatrix(def *matrix.Def, entries []lexicon.Entry, unk *chardef.Table, maxID int) (*matrix.Matrix, error) {
	mb := matrix.NewBuilder(maxID)
	if err := def.Apply(mb); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := mb.Observe(e.Pos, e.LeftID, e.RightID); err != nil {
			return nil, err
		}
	}
	if unk != nil {
		for _, e := range unk.Entries {
			if err := mb.Observe(e.Pos, e.LeftID, e.RightID); err != nil {
				return nil, err
			}
		}
	}
	return mb.Build(), nil
}

// readMatrixDef parses dir/matrix.def. A missing file yields nil unless required.
func readMatrixDef(dir string, required bool) (*matrix.Def, error) {
	if dir == "" {
		if required {
			return nil, dicterr.IO("open matrix.def", fmt.Errorf("no source directory given"))
		}
		return nil, nil
	}
	path := filepath.Join(dir, "matrix.def")
	f, err := os.Open(path)
	if os.IsNotExist(err) && !required {
		return nil, nil
	}
	if err != nil {
		return nil, dicterr.IO("open matrix.def", err)
	}
	defer f.Close()
	return matrix.ParseDef(f, "matrix.def")
}

// readUnknown parses dir/char.def and dir/unk.def in the given encoding. Both files
// must exist.
func readUnknown(dir, encoding string) (*chardef.Table, error) {
	if dir == "" {
		return nil, dicterr.IO("open char.def", fmt.Errorf("no source directory given"))
	}
	cf, err := os.Open(filepath.Join(dir, "char.def"))
	if err != nil {
		return nil, dicterr.IO("open char.def", err)
	}
	defer cf.Close()
	r, err := lexicon.Decode(cf, encoding)
	if err != nil {
		return nil, err
	}
	def, err := chardef.ParseCharDef(r, "char.def")
	if err != nil {
		return nil, err
	}

	uf, err := os.Open(filepath.Join(dir, "unk.def"))
	if err != nil {
		return nil, dicterr.IO("open unk.def", err)
	}
	defer uf.Close()
	src, err := lexicon.NewDecodingReader(uf, "unk.def", encoding)
	if err != nil {
		return nil, err
	}
	return chardef.ParseUnk(src, def)
}
