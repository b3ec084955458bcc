package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hack-pad/hackpadfs"
	hackos "github.com/hack-pad/hackpadfs/os"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kittclouds/cagkit/internal/store"
	"github.com/kittclouds/cagkit/pkg/vector"
)

var suggestK int

var suggestCmd = &cobra.Command{
	Use:   "suggest [cag-id] [text]",
	Short: "Suggest concepts from other CAGs that resemble text",
	Long: `Indexes the concepts of every stored CAG and returns those nearest to
text, leaving out concepts the target CAG already has. The index is cached
next to the database and rebuilt when any CAG changes.`,
	Args: cobra.ExactArgs(2),
	RunE: runSuggest,
}

func init() {
	suggestCmd.Flags().IntVarP(&suggestK, "top", "k", 0, "Number of suggestions (default from config)")
}

func runSuggest(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	fsys, name, err := conceptCache(cfg.Database)
	if err != nil {
		logger.Debug("concept cache disabled", zap.Error(err))
	}
	idx, cached, err := loadConceptIndex(s, cfg.Vector.Dim, fsys, name)
	if err != nil {
		return err
	}

	target, err := s.LoadGraph(args[0])
	if err != nil {
		return err
	}
	var have []string
	for _, n := range target.Nodes {
		have = append(have, conceptKey(n.Concept))
	}
	idx.Exclude(have...)

	k := cfg.Vector.K
	if suggestK > 0 {
		k = suggestK
	}
	matches, err := idx.Search(vector.Embed(args[1], idx.Dim()), k)
	if err != nil {
		return err
	}
	logger.Debug("suggest", zap.Int("indexed", idx.Len()), zap.Bool("cached", cached), zap.Int("matches", len(matches)))

	for _, m := range matches {
		fmt.Fprintf(cmd.OutOrStdout(), "%.3f\t%s\n", m.Score, m.ID)
	}
	return nil
}

// conceptCache returns the filesystem and file name holding the concept
// index for the database at dbPath. In-memory databases have no cache.
func conceptCache(dbPath string) (hackpadfs.FS, string, error) {
	if dbPath == "" || dbPath == ":memory:" {
		return nil, "", errors.New("in-memory database")
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, "", err
	}
	dir := strings.TrimPrefix(filepath.ToSlash(filepath.Dir(abs)), "/")
	if dir == "" {
		dir = "."
	}
	fsys, err := hackos.NewFS().Sub(dir)
	if err != nil {
		return nil, "", err
	}
	return fsys, filepath.Base(abs) + ".concepts.idx", nil
}

// conceptStamp identifies the stored CAGs by id and last update.
func conceptStamp(s store.Storer, dim int) (string, error) {
	cags, err := s.ListCAGs()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "dim=%d", dim)
	for _, c := range cags {
		fmt.Fprintf(&b, ";%s@%d", c.ID, c.UpdatedAt)
	}
	return b.String(), nil
}

// loadConceptIndex returns the cached index on fsys when its stamp still
// matches the store, and otherwise builds and caches a new one. A nil fsys
// always builds. The bool reports whether the cache was used.
func loadConceptIndex(s store.Storer, dim int, fsys hackpadfs.FS, name string) (*vector.Index, bool, error) {
	if dim <= 0 {
		dim = vector.DefaultDim
	}
	stamp, err := conceptStamp(s, dim)
	if err != nil {
		return nil, false, err
	}

	if fsys != nil {
		idx, err := vector.Load(fsys, name)
		switch {
		case err == nil && idx.Stamp() == stamp && idx.Dim() == dim:
			return idx, true, nil
		case err != nil && !errors.Is(err, hackpadfs.ErrNotExist):
			logger.Warn("concept cache unreadable, rebuilding", zap.String("file", name), zap.Error(err))
		}
	}

	idx, err := buildConceptIndex(s, dim)
	if err != nil {
		return nil, false, err
	}
	idx.SetStamp(stamp)
	if fsys != nil {
		if err := idx.Save(fsys, name); err != nil {
			logger.Warn("concept cache not written", zap.String("file", name), zap.Error(err))
		}
	}
	return idx, false, nil
}

// buildConceptIndex embeds the concept of every node in every stored CAG.
// Concepts are keyed case-insensitively and indexed once.
func buildConceptIndex(s store.Storer, dim int) (*vector.Index, error) {
	if dim <= 0 {
		dim = vector.DefaultDim
	}
	idx := vector.NewIndex(dim)

	cags, err := s.ListCAGs()
	if err != nil {
		return nil, err
	}
	for _, c := range cags {
		g, err := s.LoadGraph(c.ID)
		if err != nil {
			return nil, err
		}
		for _, n := range g.Nodes {
			key := conceptKey(n.Concept)
			if key == "" || idx.Has(key) {
				continue
			}
			vec := vector.Embed(n.Concept+" "+n.Label, dim)
			if err := idx.Add(key, vec); err != nil {
				logger.Debug("concept not indexed", zap.String("concept", n.Concept), zap.Error(err))
			}
		}
	}
	return idx, nil
}

func conceptKey(concept string) string {
	return strings.ToLower(strings.TrimSpace(concept))
}
