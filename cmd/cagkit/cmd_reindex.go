package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kittclouds/cagkit/internal/reindex"
	"github.com/kittclouds/cagkit/internal/store"
	"github.com/kittclouds/cagkit/pkg/cag"
	"github.com/kittclouds/cagkit/pkg/filter"
)

var (
	filtersPath string
	batchSize   int
	cagIDs      []string
	setFields   []string
	pollEvery   time.Duration
	pollLimit   int
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Recompute CAG citation fields on evidence documents",
	Long: `Scrolls every document in pages, keeps those matching --filters and
writes cag_reference_count and cag_ids from the edges of the selected CAGs
(all CAGs by default). --set adds fixed fields. The run is recorded as a
job and its progress is polled until it finishes.

Filters file example:

  [{"kind": "terms", "field": "source", "values": ["reuters"]},
   {"kind": "range", "field": "score", "min": 0.5}]`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().StringVarP(&filtersPath, "filters", "f", "", "JSON filters file")
	reindexCmd.Flags().IntVar(&batchSize, "batch-size", 0, "Documents per page (default from config)")
	reindexCmd.Flags().StringSliceVar(&cagIDs, "cag", nil, "CAG ids to count citations from (default: all)")
	reindexCmd.Flags().StringSliceVar(&setFields, "set", nil, "Extra field to set, as name=value (value parsed as JSON when possible)")
	addPollFlags(reindexCmd)
}

func addPollFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&pollEvery, "poll-interval", 0, "Job poll interval (default from config)")
	cmd.Flags().IntVar(&pollLimit, "poll-threshold", 0, "Maximum job polls (default from config)")
}

func waitOptions(cmd *cobra.Command) reindex.WaitOptions {
	opts := reindex.WaitOptions{
		Interval:  cfg.PollInterval(),
		Threshold: cfg.Poll.Threshold,
		Logger:    logger,
	}
	if pollEvery > 0 {
		opts.Interval = pollEvery
	}
	if pollLimit > 0 {
		opts.Threshold = pollLimit
	}
	opts.OnProgress = func(job *store.Job) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s %d/%d\n", job.ID, job.Status, job.Progress, job.Total)
	}
	return opts
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	var filters []filter.Filter
	if filtersPath != "" {
		data, err := os.ReadFile(filtersPath)
		if err != nil {
			return err
		}
		if filters, err = filter.Parse(data); err != nil {
			return fmt.Errorf("%s: %w", filtersPath, err)
		}
	}
	extra, err := parseSetFields(setFields)
	if err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	graphs, err := loadGraphs(s, cagIDs)
	if err != nil {
		return err
	}

	transforms := []reindex.Transform{reindex.ReferenceCounts(graphs)}
	transforms = append(transforms, extra...)
	r := reindex.New(s, transforms...)
	r.Filters = filters
	r.Logger = logger
	r.BatchSize = cfg.Reindex.BatchSize
	if batchSize > 0 {
		r.BatchSize = batchSize
	}

	job, err := reindex.NewJob(s)
	if err != nil {
		return err
	}
	logger.Info("reindex started", zap.String("job", job.ID), zap.Int("cags", len(graphs)))

	report, err := reindex.RunAndWatch(ctx, r, job, waitOptions(cmd))
	if err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Job string `json:"job"`
		reindex.Report
	}{job.ID, report})
}

// loadGraphs loads the named CAGs, or every stored CAG when ids is empty.
func loadGraphs(s store.Storer, ids []string) (map[string]cag.Graph, error) {
	if len(ids) == 0 {
		cags, err := s.ListCAGs()
		if err != nil {
			return nil, err
		}
		for _, c := range cags {
			ids = append(ids, c.ID)
		}
	}

	graphs := make(map[string]cag.Graph, len(ids))
	for _, id := range ids {
		meta, err := s.GetCAG(id)
		if err != nil {
			return nil, err
		}
		if meta == nil {
			return nil, fmt.Errorf("cag %q not found", id)
		}
		g, err := s.LoadGraph(id)
		if err != nil {
			return nil, err
		}
		graphs[id] = g
	}
	return graphs, nil
}

func parseSetFields(pairs []string) ([]reindex.Transform, error) {
	var out []reindex.Transform
	for _, kv := range pairs {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("--set %q: want name=value", kv)
		}
		var value any = raw
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			value = parsed
		}
		out = append(out, reindex.SetField(name, value))
	}
	return out, nil
}
