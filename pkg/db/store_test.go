package db

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return db
}

func TestRecordAndGetBuild(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	id, err := RecordBuild(db, Build{
		Variant: "ipadic", Source: "/src/ipadic", Output: "ipa.dict",
		Keys: 10, Entries: 12, Rows: 3, Cols: 4, Bytes: 999, Checksum: "00ff",
		StartedAt: started, Duration: 1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("record build: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated id")
	}

	got, err := GetBuild(db, id)
	if err != nil {
		t.Fatalf("get build: %v", err)
	}
	if got.Status != StatusOK || got.Keys != 10 || got.Entries != 12 || got.Checksum != "00ff" {
		t.Fatalf("unexpected build %+v", got)
	}
	if got.Duration != 1500*time.Millisecond {
		t.Fatalf("duration = %v", got.Duration)
	}
	if !got.StartedAt.Equal(started) {
		t.Fatalf("started_at = %v, want %v", got.StartedAt, started)
	}
}

func TestRecordBuildRejectsDuplicateExplicitID(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	if _, err := RecordBuild(db, Build{ID: "fixed", Variant: "csv"}); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if _, err := RecordBuild(db, Build{ID: "fixed", Variant: "csv"}); err == nil {
		t.Fatal("expected a constraint error for a reused id")
	}
	if _, err := RecordBuild(db, Build{}); err == nil {
		t.Fatal("expected an error for an empty variant")
	}
}

func TestListBuildsNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range []string{"csv", "ipadic", "jmdict"} {
		b := Build{Variant: v, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if v == "jmdict" {
			b.Status, b.Error = StatusFailed, "parse error"
		}
		if _, err := RecordBuild(db, b); err != nil {
			t.Fatalf("record %s: %v", v, err)
		}
	}

	all, err := ListBuilds(db, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].Variant != "jmdict" || all[2].Variant != "csv" {
		t.Fatalf("unexpected order: %+v", all)
	}
	if all[0].Error != "parse error" || all[0].Status != StatusFailed {
		t.Fatalf("failed build not kept: %+v", all[0])
	}

	two, err := ListBuilds(db, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(two) != 2 {
		t.Fatalf("expected 2 builds, got %d", len(two))
	}
}

func TestExportAndLookupEntries(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	id, err := RecordBuild(db, Build{Variant: "csv"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	var rows []EntryRow
	for i := 0; i < 23; i++ {
		rows = append(rows, EntryRow{Seq: i, Surface: fmt.Sprintf("w%02d", i%5), LeftID: i, RightID: i, Cost: -i, Features: "名詞,一般"})
	}
	if err := ExportEntries(context.Background(), db, id, rows, 4); err != nil {
		t.Fatalf("export: %v", err)
	}

	n, err := CountEntries(db, id)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 23 {
		t.Fatalf("expected 23 entries, got %d", n)
	}

	got, err := LookupEntries(db, id, "w03")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(got) != 4 || got[0].Seq != 3 || got[3].Seq != 18 {
		t.Fatalf("unexpected rows %+v", got)
	}
	if got[1].Cost != -8 || got[1].Features != "名詞,一般" {
		t.Fatalf("unexpected row %+v", got[1])
	}
}

func TestExportEntriesFailsOnDuplicateSeq(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	id, err := RecordBuild(db, Build{Variant: "csv"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	rows := []EntryRow{{Seq: 1, Surface: "a"}, {Seq: 1, Surface: "b"}}
	if err := ExportEntries(context.Background(), db, id, rows, 10); err == nil {
		t.Fatal("expected a unique constraint error")
	}
	n, err := CountEntries(db, id)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("failed batch should roll back, found %d rows", n)
	}
}
