// Package reindex rewrites evidence documents in pages: it scrolls the
// document table, keeps the documents matching a set of typed filters,
// applies transforms and writes the changed ones back with one bulk update
// per page.
package reindex

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kittclouds/cagkit/internal/store"
	"github.com/kittclouds/cagkit/pkg/filter"
)

// DefaultBatchSize is the page size used when BatchSize is not positive.
const DefaultBatchSize = 500

// Report summarises a reindex run. It is also passed to OnPage after every
// page with the running totals.
type Report struct {
	Scanned     int      `json:"scanned"`
	Matched     int      `json:"matched"`
	Updated     int      `json:"updated"`
	Unchanged   int      `json:"unchanged"`
	Conflicts   int      `json:"conflicts"`
	Pages       int      `json:"pages"`
	ConflictIDs []string `json:"conflictIds,omitempty"`
}

// Reindexer holds the configuration for a reindex run.
type Reindexer struct {
	Store      store.Storer
	Filters    []filter.Filter
	Transforms []Transform
	BatchSize  int
	Logger     *zap.Logger

	// OnPage, if set, is called after each page is written.
	OnPage func(Report)
}

// New returns a Reindexer over s with the default batch size.
func New(s store.Storer, transforms ...Transform) *Reindexer {
	return &Reindexer{
		Store:      s,
		Transforms: transforms,
		BatchSize:  DefaultBatchSize,
		Logger:     zap.NewNop(),
	}
}

// Run scrolls every document once. It stops between pages when ctx is
// cancelled and returns the totals gathered so far with ctx.Err().
func (r *Reindexer) Run(ctx context.Context) (Report, error) {
	var report Report
	if r.Store == nil {
		return report, fmt.Errorf("reindex: no store")
	}
	size := r.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		page, err := r.Store.ScrollDocuments(after, size)
		if err != nil {
			return report, fmt.Errorf("reindex: scroll after %q: %w", after, err)
		}
		if len(page) == 0 {
			break
		}
		after = page[len(page)-1].ID

		var changed []*store.Document
		for _, doc := range page {
			report.Scanned++
			if !filter.MatchAll(doc, r.Filters) {
				continue
			}
			report.Matched++
			if r.apply(doc) {
				changed = append(changed, doc)
			} else {
				report.Unchanged++
			}
		}

		if len(changed) > 0 {
			res, err := r.Store.BulkUpdateDocuments(changed)
			if err != nil {
				return report, fmt.Errorf("reindex: bulk update page %d: %w", report.Pages+1, err)
			}
			report.Updated += res.Updated
			report.Conflicts += len(res.Conflicts)
			report.ConflictIDs = append(report.ConflictIDs, res.Conflicts...)
		}
		report.Pages++

		logger.Debug("reindex page written",
			zap.Int("page", report.Pages),
			zap.Int("scanned", report.Scanned),
			zap.Int("updated", report.Updated),
			zap.Int("conflicts", report.Conflicts))
		if r.OnPage != nil {
			r.OnPage(report)
		}

		if len(page) < size {
			break
		}
	}

	logger.Info("reindex complete",
		zap.Int("scanned", report.Scanned),
		zap.Int("matched", report.Matched),
		zap.Int("updated", report.Updated),
		zap.Int("conflicts", report.Conflicts))
	return report, nil
}

// apply runs every transform and reports whether any changed doc.
func (r *Reindexer) apply(doc *store.Document) bool {
	changed := false
	for _, t := range r.Transforms {
		if t(doc) {
			changed = true
		}
	}
	return changed
}
