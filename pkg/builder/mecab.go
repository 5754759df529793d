package builder

import (
	"context"

	"k8s.io/klog/v2"

	"github.com/japaniel/dictbuild/pkg/lexicon"
)

// csvBuilder reads MeCab style CSV lexicons plus an optional matrix.def.
type csvBuilder struct {
	base
	schema        lexicon.Schema
	encoding      string
	pattern       string
	requireMatrix bool
	// unknown reads char.def and unk.def next to the lexicon.
	unknown bool
}

// NewIPADIC builds mecab-ipadic: EUC-JP encoded 13 column CSV files, matrix.def,
// char.def and unk.def.
func NewIPADIC(opts Options) DictionaryBuilder {
	return &csvBuilder{
		base:          base{name: "ipadic", opts: opts},
		schema:        lexicon.IPADIC,
		encoding:      "euc-jp",
		pattern:       "*.csv",
		requireMatrix: true,
		unknown:       true,
	}
}

// NewNeologd builds mecab-ipadic-NEologd seed files: UTF-8, 13 columns, with the
// dash normalization and skip list the upstream build applies. Like ipadic it needs
// matrix.def, char.def and unk.def.
func NewNeologd(opts Options) DictionaryBuilder {
	schema := lexicon.IPADIC
	schema.Name = "ipadic-neologd"
	schema.Normalizer = lexicon.NewNormalizer(lexicon.EUCJPDashes, lexicon.NeologdSkipWords)
	return &csvBuilder{
		base:          base{name: "ipadic-neologd", opts: opts},
		schema:        schema,
		encoding:      "utf-8",
		pattern:       "*.csv",
		requireMatrix: true,
		unknown:       true,
	}
}

// NewCSV builds any lexicon of surface,left,right,cost,features... rows.
func NewCSV(opts Options) DictionaryBuilder {
	return &csvBuilder{
		base:     base{name: "csv", opts: opts},
		schema:   lexicon.Generic,
		encoding: "utf-8",
		pattern:  "*.csv",
	}
}

func (b *csvBuilder) Ingest(ctx context.Context, src Source) (*Lexicon, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	paths, err := src.files(b.pattern)
	if err != nil {
		return nil, err
	}
	encoding := b.encoding
	if b.opts.Encoding != "" {
		encoding = b.opts.Encoding
	}
	klog.V(1).InfoS("reading lexicon", "variant", b.name, "files", len(paths), "encoding", encoding)
	entries, err := lexicon.ReadFiles(ctx, paths, lexicon.ReadOptions{
		Encoding: encoding,
		Parser:   b.schema,
		Workers:  b.opts.Workers,
	})
	if err != nil {
		return nil, err
	}
	def, err := readMatrixDef(src.Dir, b.requireMatrix)
	if err != nil {
		return nil, err
	}
	lex := &Lexicon{Variant: b.name, Entries: entries, Matrix: def}
	if b.unknown {
		if lex.Unknown, err = readUnknown(src.Dir, encoding); err != nil {
			return nil, err
		}
	}
	return lex, nil
}
