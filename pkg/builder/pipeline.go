package builder

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"k8s.io/klog/v2"

	"github.com/japaniel/dictbuild/pkg/artifact"
	"github.com/japaniel/dictbuild/pkg/db"
	"github.com/japaniel/dictbuild/pkg/metrics"
)

// Pipeline runs a builder end to end: ingest, compile, write the artifact, then record
// the build. The zero value writes an uncompressed artifact and records nothing.
type Pipeline struct {
	Compress bool
	// Fetch, when set, is called with the source directory before ingest.
	Fetch func(ctx context.Context, dir string) error
	// Catalog, when set, receives a row for every build, failed ones included.
	Catalog       *sql.DB
	ExportEntries bool
	BatchSize     int
	Metrics       *metrics.Recorder
}

// Result describes a successful build.
type Result struct {
	BuildID  string
	Output   string
	Header   artifact.Header
	Keys     int
	Entries  int
	Bytes    int64
	Duration time.Duration
}

// Run builds src with b and writes the artifact to out. On failure out is untouched.
func (p *Pipeline) Run(ctx context.Context, b DictionaryBuilder, src Source, out string) (Result, error) {
	start := time.Now()
	variant := b.Name()
	res := Result{Output: out}

	art, err := p.build(ctx, b, src, out, &res)
	res.Duration = time.Since(start)
	p.Metrics.BuildDone(variant, err)
	if err != nil {
		klog.ErrorS(err, "build failed", "variant", variant, "source", src.String())
	} else {
		p.Metrics.ObserveArtifact(variant, res.Keys, res.Entries, res.Bytes)
		klog.InfoS("build finished", "variant", variant, "output", out, "keys", res.Keys,
			"entries", res.Entries, "bytes", res.Bytes, "duration", res.Duration)
	}

	if p.Catalog != nil {
		done := p.Metrics.StartStage(variant, metrics.StageCatalog)
		id, cerr := p.record(ctx, variant, src, art, res, start, err)
		done()
		if err != nil {
			return Result{}, err
		}
		if cerr != nil {
			return res, fmt.Errorf("artifact written but catalog update failed: %w", cerr)
		}
		res.BuildID = id
	}
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (p *Pipeline) build(ctx context.Context, b DictionaryBuilder, src Source, out string, res *Result) (*artifact.Artifact, error) {
	variant := b.Name()
	if p.Fetch != nil && src.Dir != "" {
		if err := p.Fetch(ctx, src.Dir); err != nil {
			return nil, fmt.Errorf("fetch source: %w", err)
		}
	}

	done := p.Metrics.StartStage(variant, metrics.StageIngest)
	lex, err := b.Ingest(ctx, src)
	done()
	if err != nil {
		return nil, err
	}
	klog.V(1).InfoS("ingested", "variant", variant, "entries", len(lex.Entries))

	done = p.Metrics.StartStage(variant, metrics.StageCompile)
	art, err := b.Compile(ctx, lex)
	done()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done = p.Metrics.StartStage(variant, metrics.StageSerialize)
	h, err := artifact.Write(out, art, artifact.Options{Compress: p.Compress})
	done()
	if err != nil {
		return nil, err
	}
	res.Header = h
	res.Keys = art.Trie.Len()
	res.Entries = len(art.Entries)
	if fi, err := os.Stat(out); err == nil {
		res.Bytes = fi.Size()
	}
	return art, nil
}

func (p *Pipeline) record(ctx context.Context, variant string, src Source, art *artifact.Artifact, res Result, start time.Time, buildErr error) (string, error) {
	b := db.Build{
		Variant:   variant,
		Source:    src.String(),
		Output:    res.Output,
		Status:    db.StatusOK,
		StartedAt: start,
		Duration:  res.Duration,
	}
	if buildErr != nil {
		b.Status, b.Error = db.StatusFailed, buildErr.Error()
	} else {
		b.Keys, b.Entries, b.Bytes = res.Keys, res.Entries, res.Bytes
		b.Rows, b.Cols = int(res.Header.Rows), int(res.Header.Cols)
		b.Checksum = fmt.Sprintf("%016x", res.Header.Checksum)
	}
	id, err := db.RecordBuild(p.Catalog, b)
	if err != nil {
		return "", err
	}
	if buildErr != nil || !p.ExportEntries {
		return id, nil
	}
	rows := make([]db.EntryRow, len(art.Entries))
	for i, e := range art.Entries {
		rows[i] = db.EntryRow{Seq: i, Surface: e.Surface, LeftID: e.LeftID, RightID: e.RightID, Cost: int(e.Cost), Features: e.FeatureString()}
	}
	if err := db.ExportEntries(ctx, p.Catalog, id, rows, p.BatchSize); err != nil {
		return id, err
	}
	return id, nil
}
