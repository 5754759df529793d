package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"fortio.org/safecast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/japaniel/dictbuild/pkg/builder"
	"github.com/japaniel/dictbuild/pkg/config"
	"github.com/japaniel/dictbuild/pkg/db"
	"github.com/japaniel/dictbuild/pkg/metrics"
	"github.com/japaniel/dictbuild/pkg/source"
)

// buildFlags override the configuration file when set on the command line.
type buildFlags struct {
	config        string
	variant       string
	input         string
	output        string
	encoding      string
	maxID         int
	workers       int
	compress      bool
	url           string
	catalog       string
	exportEntries bool
	metrics       string
}

func (f *buildFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.config, "config", "c", "", "TOML configuration file")
	fs.StringVar(&f.variant, "variant", "", "dictionary variant (see 'dictbuild variants')")
	fs.StringVarP(&f.input, "input", "i", "", "source directory or a single source file")
	fs.StringVarP(&f.output, "output", "o", "", "artifact path")
	fs.StringVar(&f.encoding, "encoding", "", "source text encoding, overriding the variant default")
	fs.IntVar(&f.maxID, "max-id", 0, "largest accepted context id")
	fs.IntVar(&f.workers, "workers", 0, "source files parsed concurrently")
	fs.BoolVar(&f.compress, "compress", true, "zstd compress the artifact body")
	fs.StringVar(&f.url, "url", "", "archive to download when the input directory is missing")
	fs.StringVar(&f.catalog, "catalog", "", "sqlite build catalog")
	fs.BoolVar(&f.exportEntries, "export-entries", false, "copy compiled entries into the catalog")
	fs.StringVar(&f.metrics, "metrics", "", "write prometheus metrics to this textfile")
}

func (f *buildFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("variant") {
		cfg.Build.Variant = f.variant
	}
	if fs.Changed("input") {
		cfg.Build.Input = f.input
	}
	if fs.Changed("output") {
		cfg.Build.Output = f.output
	}
	if fs.Changed("encoding") {
		cfg.Build.Encoding = f.encoding
	}
	if fs.Changed("max-id") {
		cfg.Build.MaxID = f.maxID
	}
	if fs.Changed("workers") {
		cfg.Build.Workers = f.workers
	}
	if fs.Changed("compress") {
		cfg.Build.Compress = f.compress
	}
	if fs.Changed("url") {
		cfg.Source.URL = f.url
	}
	if fs.Changed("catalog") {
		cfg.Catalog.Path = f.catalog
	}
	if fs.Changed("export-entries") {
		cfg.Catalog.ExportEntries = f.exportEntries
	}
	if fs.Changed("metrics") {
		cfg.Metrics.Textfile = f.metrics
	}
}

func newBuildCmd() *cobra.Command {
	var f buildFlags
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile a dictionary artifact from lexicon sources",
		Example: `  dictbuild build --variant ipadic --input mecab-ipadic-2.7.0 --output ipadic.bin
  dictbuild build --variant csv --input user.csv --output user.bin --compress=false
  dictbuild build --config dictbuild.toml --catalog builds.db --export-entries`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.config)
			if err != nil {
				return err
			}
			f.apply(cmd.Flags(), &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runBuild(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
	f.register(cmd.Flags())
	return cmd
}

func runBuild(ctx context.Context, w io.Writer, cfg config.Config) error {
	if cfg.Build.Input == "" {
		return fmt.Errorf("no input: pass --input or set [build].input")
	}
	cost, err := safecast.Conv[int16](cfg.JMdict.Cost)
	if err != nil {
		return fmt.Errorf("[jmdict].cost: %w", err)
	}
	b, err := builder.DefaultRegistry().New(cfg.Build.Variant, builder.Options{
		MaxID:    cfg.Build.MaxID,
		Workers:  cfg.Build.Workers,
		Encoding: cfg.Build.Encoding,
		JMdict: builder.JMdictDefaults{
			LeftID:  cfg.JMdict.LeftID,
			RightID: cfg.JMdict.RightID,
			Cost:    cost,
		},
	})
	if err != nil {
		return err
	}

	p := &builder.Pipeline{
		Compress:      cfg.Build.Compress,
		ExportEntries: cfg.Catalog.ExportEntries,
		BatchSize:     cfg.Catalog.BatchSize,
	}
	if url := cfg.Source.URL; url != "" {
		opts := source.Options{Retries: cfg.Source.Retries, Timeout: cfg.Source.Timeout}
		p.Fetch = func(ctx context.Context, dir string) error {
			return source.Ensure(ctx, dir, url, opts)
		}
	}
	if cfg.Catalog.Path != "" {
		conn, err := db.Open(cfg.Catalog.Path)
		if err != nil {
			return fmt.Errorf("failed to open catalog: %w", err)
		}
		defer conn.Close()
		p.Catalog = conn
	}
	if cfg.Metrics.Textfile != "" {
		p.Metrics = metrics.New()
	}

	src := sourceFor(cfg.Build.Input)
	fmt.Fprintf(w, "Building %s dictionary from %s...\n", b.Name(), src)
	res, err := p.Run(ctx, b, src, cfg.Build.Output)
	if p.Metrics != nil {
		if werr := p.Metrics.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			klog.ErrorS(werr, "failed to write metrics", "path", cfg.Metrics.Textfile)
		}
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote %s: %d keys, %d entries, %d bytes in %v\n",
		res.Output, res.Keys, res.Entries, res.Bytes, res.Duration.Round(time.Millisecond))
	if res.BuildID != "" {
		fmt.Fprintf(w, "Build recorded with ID: %s\n", res.BuildID)
	}
	return nil
}

// sourceFor treats a regular file as a one-file source and anything else, a missing
// path included, as a source directory.
func sourceFor(input string) builder.Source {
	if fi, err := os.Stat(input); err == nil && fi.Mode().IsRegular() {
		return builder.Source{Dir: filepath.Dir(input), Files: []string{input}}
	}
	return builder.Source{Dir: input}
}
