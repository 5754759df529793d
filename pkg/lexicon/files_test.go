package lexicon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/text/encoding/japanese"

	"github.com/japaniel/dictbuild/pkg/dicterr"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestReadFilesMergesAndSorts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.csv", "zebra,1,1,10,NOUN\ncat,1,2,100,NOUN\n")
	writeFile(t, dir, "a.csv", "cats,1,2,120,NOUN\ncat,1,2,100,NOUN\n")
	writeFile(t, dir, "ignored.txt", "not,a,lexicon\n")

	paths, err := Glob(dir, "*.csv")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(paths) != 2 || filepath.Base(paths[0]) != "a.csv" {
		t.Fatalf("unexpected glob result %v", paths)
	}
	entries, err := ReadFiles(context.Background(), paths, ReadOptions{Parser: Generic, Workers: 4})
	if err != nil {
		t.Fatalf("read files: %v", err)
	}
	var surfaces []string
	for _, e := range entries {
		surfaces = append(surfaces, e.Surface)
	}
	want := []string{"cat", "cats", "zebra"}
	if len(surfaces) != len(want) {
		t.Fatalf("got %v, want %v", surfaces, want)
	}
	for i := range want {
		if surfaces[i] != want[i] {
			t.Fatalf("got %v, want %v", surfaces, want)
		}
	}
}

func TestReadFilesReportsEarliestFileError(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	paths = append(paths, writeFile(t, dir, "0.csv", "ok,1,1,1,x\n"))
	paths = append(paths, writeFile(t, dir, "1.csv", "ok,1,1,1,x\nbad,1,1\n"))
	paths = append(paths, writeFile(t, dir, "2.csv", "bad,1\n"))

	for i := 0; i < 10; i++ {
		_, err := ReadFiles(context.Background(), paths, ReadOptions{Parser: Generic, Workers: 3})
		var de *dicterr.Error
		if !errors.As(err, &de) {
			t.Fatalf("expected dicterr, got %v", err)
		}
		if de.Pos.File != "1.csv" || de.Pos.Line != 2 {
			t.Fatalf("expected error at 1.csv:2, got %v", de.Pos)
		}
	}
}

func TestReadFilesDecodesEUCJP(t *testing.T) {
	dir := t.TempDir()
	src, err := japanese.EUCJP.NewEncoder().String("犬,1285,1285,5000,名詞,一般,*,*,*,*,犬,イヌ,イヌ\n")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	p := writeFile(t, dir, "Noun.csv", src)
	entries, err := ReadFiles(context.Background(), []string{p}, ReadOptions{Parser: IPADIC, Encoding: "euc-jp"})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 1 || entries[0].Surface != "犬" || entries[0].Features[7] != "イヌ" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestReadFilesMissingFileIsIOError(t *testing.T) {
	_, err := ReadFiles(context.Background(), []string{filepath.Join(t.TempDir(), "nope.csv")}, ReadOptions{Parser: Generic})
	if !errors.Is(err, dicterr.ErrIO) {
		t.Fatalf("expected io error, got %v", err)
	}
}

func TestLookupEncoding(t *testing.T) {
	for _, label := range []string{"", "utf-8", "UTF8"} {
		if enc, err := LookupEncoding(label); err != nil || enc != nil {
			t.Fatalf("%q: expected nil encoding, got %v %v", label, enc, err)
		}
	}
	for _, label := range []string{"euc-jp", "shift_jis"} {
		if enc, err := LookupEncoding(label); err != nil || enc == nil {
			t.Fatalf("%q: expected encoding, got %v %v", label, enc, err)
		}
	}
	if _, err := LookupEncoding("klingon"); err == nil {
		t.Fatalf("expected error for unknown encoding")
	}
}
