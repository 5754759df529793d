package lexicon

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"k8s.io/klog/v2"

	"github.com/japaniel/dictbuild/pkg/dicterr"
)

// ReadOptions configures ReadFiles.
type ReadOptions struct {
	// Encoding is the source text encoding label; empty means UTF-8.
	Encoding string
	Parser   EntryParser
	// Workers is the number of files parsed concurrently.
	Workers int
}

// fileResult holds one parsed file before reassembly.
type fileResult struct {
	index   int
	entries []Entry
	err     error
}

// ReadFiles parses every file with opts.Parser using a worker pool and returns the union of
// their entries, deduplicated and sorted. Results are consumed in file order, so when several
// files are malformed the error reported is always the one from the earliest file.
func ReadFiles(ctx context.Context, paths []string, opts ReadOptions) ([]Entry, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	ctx, cancel := context.WithCancel(ctx)
	wp := NewWorkerPool(workers, len(paths))
	wp.Start(ctx)
	defer func() {
		cancel()
		wp.Close()
	}()

	resultCh := make(chan fileResult, len(paths))
	for i, path := range paths {
		idx, path := i, path
		job := func(ctx context.Context) error {
			entries, err := readFile(path, opts)
			select {
			case resultCh <- fileResult{index: idx, entries: entries, err: err}:
			case <-ctx.Done():
			}
			return err
		}
		if err := wp.SubmitCtx(ctx, job); err != nil {
			return nil, err
		}
	}

	buffer := make(map[int]fileResult)
	next := 0
	var all []Entry
	for next < len(paths) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-resultCh:
			buffer[res.index] = res
		}
		for {
			res, ok := buffer[next]
			if !ok {
				break
			}
			delete(buffer, next)
			if res.err != nil {
				return nil, res.err
			}
			klog.V(2).InfoS("parsed lexicon file", "file", paths[next], "entries", len(res.entries))
			all = append(all, res.entries...)
			next++
		}
	}
	return Finalize(all), nil
}

func readFile(path string, opts ReadOptions) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dicterr.IO("open lexicon", err)
	}
	defer f.Close()
	rd, err := NewDecodingReader(f, filepath.Base(path), opts.Encoding)
	if err != nil {
		return nil, err
	}
	return collect(rd, opts.Parser)
}

// Glob returns the files in dir matching pattern, sorted by name.
func Glob(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, dicterr.IO("glob "+pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}
