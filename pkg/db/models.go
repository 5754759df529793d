package db

import "time"

// Build statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Build is one run of the build pipeline.
type Build struct {
	ID       string
	Variant  string
	Source   string
	Output   string
	Status   string
	Error    string
	Keys     int
	Entries  int
	Rows     int
	Cols     int
	Bytes    int64
	Checksum string

	StartedAt time.Time
	Duration  time.Duration
}

// EntryRow is a compiled entry exported to the catalog.
type EntryRow struct {
	Seq      int
	Surface  string
	LeftID   int
	RightID  int
	Cost     int
	Features string
}
