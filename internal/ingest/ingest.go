// Package ingest defines the feed-source abstraction: one capability
// (fetch -> normalize -> load), multiple providers keyed by name. New sources
// register a factory; call sites select by name and never change.
package ingest

import (
	"context"
	"fmt"
	"sort"

	"github.com/lox/railscore/internal/store"
)

// Params identifies one ingestion run's corridor and range.
type Params struct {
	FromLoc   string   `json:"from_loc"`
	ToLoc     string   `json:"to_loc"`
	FromDate  string   `json:"from_date"`
	ToDate    string   `json:"to_date"`
	FromTime  string   `json:"from_time"`
	ToTime    string   `json:"to_time"`
	Days      string   `json:"days"`
	TocFilter []string `json:"toc_filter,omitempty"`
}

// Result is the typed run summary recorded in the job ledger.
type Result struct {
	Source         string `json:"source"`
	RIDsTotal      int    `json:"rids_total"`
	DetailsFetched int    `json:"details_fetched"`
	DetailsFailed  int    `json:"details_failed"`
	InvalidSkipped int    `json:"invalid_skipped"`
	store.LoadStats
}

// Source is one feed provider. Ingest fetches, normalizes and loads events
// for the given parameters, returning the run summary.
type Source interface {
	Name() string
	Ingest(ctx context.Context, st *store.Store, runID string, params Params) (Result, error)
}

// Factory builds a configured source.
type Factory func() (Source, error)

var sources = map[string]Factory{}

// Register adds a source factory under a name. Last registration wins.
func Register(name string, f Factory) {
	sources[name] = f
}

// New constructs the named source.
func New(name string) (Source, error) {
	f, ok := sources[name]
	if !ok {
		return nil, fmt.Errorf("unknown ingest source %q (have %v)", name, Names())
	}
	return f()
}

// Names lists registered sources, sorted.
func Names() []string {
	names := make([]string, 0, len(sources))
	for n := range sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
