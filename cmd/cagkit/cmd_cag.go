package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kittclouds/cagkit/pkg/cag"
)

var (
	outputPath string
	topK       int
)

var cagCmd = &cobra.Command{
	Use:   "cag",
	Short: "Import, export, merge and inspect CAG snapshots",
}

var cagImportCmd = &cobra.Command{
	Use:   "import [cag-id] [file]",
	Short: "Merge a CAG JSON file into a stored CAG",
	Long: `Validates the file, merges it into the stored snapshot of the CAG and
saves the result. Nodes and edges are matched by id; a matching edge gains
the union of both reference id lists. Importing the same file twice changes
nothing the second time.`,
	Args: cobra.ExactArgs(2),
	RunE: runCAGImport,
}

var cagExportCmd = &cobra.Command{
	Use:   "export [cag-id]",
	Short: "Write a stored CAG as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runCAGExport,
}

var cagMergeCmd = &cobra.Command{
	Use:   "merge [base-file] [incoming-file]",
	Short: "Merge two CAG JSON files without touching the database",
	Args:  cobra.ExactArgs(2),
	RunE:  runCAGMerge,
}

var cagStatsCmd = &cobra.Command{
	Use:   "stats [cag-id]",
	Short: "Show counts and the most connected concepts of a stored CAG",
	Args:  cobra.ExactArgs(1),
	RunE:  runCAGStats,
}

var cagValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a CAG JSON file for empty, duplicate and dangling ids",
	Args:  cobra.ExactArgs(1),
	RunE:  runCAGValidate,
}

var cagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored CAGs",
	Args:  cobra.NoArgs,
	RunE:  runCAGList,
}

var cagDeleteCmd = &cobra.Command{
	Use:   "delete [cag-id]",
	Short: "Delete a stored CAG",
	Args:  cobra.ExactArgs(1),
	RunE:  runCAGDelete,
}

func init() {
	cagExportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file (default: stdout)")
	cagMergeCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file (default: stdout)")
	cagStatsCmd.Flags().IntVarP(&topK, "top", "k", 5, "Number of central concepts to show")

	cagCmd.AddCommand(cagImportCmd)
	cagCmd.AddCommand(cagExportCmd)
	cagCmd.AddCommand(cagMergeCmd)
	cagCmd.AddCommand(cagStatsCmd)
	cagCmd.AddCommand(cagValidateCmd)
	cagCmd.AddCommand(cagListCmd)
	cagCmd.AddCommand(cagDeleteCmd)
}

func readGraphFile(path string) (cag.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return cag.Graph{}, err
	}
	defer f.Close()
	g, err := cag.Decode(f)
	if err != nil {
		return cag.Graph{}, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// writeGraph encodes g to the --output file, or to the command's stdout.
func writeGraph(cmd *cobra.Command, g cag.Graph) error {
	if outputPath == "" {
		return cag.Encode(cmd.OutOrStdout(), g)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	return encodeAndClose(f, g)
}

// encodeAndClose writes g to wc and closes it. A failed close is reported
// when the write itself succeeded.
func encodeAndClose(wc io.WriteCloser, g cag.Graph) (err error) {
	defer func() {
		if cerr := wc.Close(); err == nil {
			err = cerr
		}
	}()
	return cag.Encode(wc, g)
}

func runCAGImport(cmd *cobra.Command, args []string) error {
	cagID, path := args[0], args[1]
	incoming, err := readGraphFile(path)
	if err != nil {
		return err
	}
	if err := cag.Validate(incoming); err != nil {
		return fmt.Errorf("%s is not a valid CAG:\n%w", path, err)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	stored, err := s.LoadGraph(cagID)
	if err != nil {
		return err
	}
	report := cag.MergeInto(&stored, incoming)
	if err := s.SaveGraph(cagID, stored); err != nil {
		return err
	}

	logger.Info("cag imported",
		zap.String("cag", cagID),
		zap.Int("nodes_added", report.NodesAdded),
		zap.Int("edges_added", report.EdgesAdded),
		zap.Int("edges_merged", report.EdgesMerged),
		zap.Int("references_added", report.ReferencesAdded))
	fmt.Fprintf(cmd.OutOrStdout(), "%s: +%d nodes, +%d edges, %d edges merged (+%d references)\n",
		cagID, report.NodesAdded, report.EdgesAdded, report.EdgesMerged, report.ReferencesAdded)
	return nil
}

func runCAGExport(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	meta, err := s.GetCAG(args[0])
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("cag %q not found", args[0])
	}
	g, err := s.LoadGraph(args[0])
	if err != nil {
		return err
	}
	return writeGraph(cmd, g)
}

func runCAGMerge(cmd *cobra.Command, args []string) error {
	base, err := readGraphFile(args[0])
	if err != nil {
		return err
	}
	incoming, err := readGraphFile(args[1])
	if err != nil {
		return err
	}
	return writeGraph(cmd, cag.Merge(base, incoming))
}

func runCAGStats(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	g, err := s.LoadGraph(args[0])
	if err != nil {
		return err
	}
	sum := cag.Stats(g)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "nodes:      %d\n", sum.Nodes)
	fmt.Fprintf(out, "edges:      %d\n", sum.Edges)
	fmt.Fprintf(out, "references: %d\n", sum.References)
	fmt.Fprintf(out, "orphans:    %d\n", sum.Orphans)

	top := cag.NewTopology(g).TopCentral(topK)
	if len(top) > 0 {
		fmt.Fprintln(out, "central concepts:")
		for _, r := range top {
			fmt.Fprintf(out, "  %-24s %.3f\n", r.ID, r.Score)
		}
	}
	return nil
}

func runCAGValidate(cmd *cobra.Command, args []string) error {
	g, err := readGraphFile(args[0])
	if err != nil {
		return err
	}
	if err := cag.Validate(g); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d nodes, %d edges)\n", args[0], len(g.Nodes), len(g.Edges))
	return nil
}

func runCAGList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	cags, err := s.ListCAGs()
	if err != nil {
		return err
	}
	for _, c := range cags {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.ID, c.Name)
	}
	return nil
}

func runCAGDelete(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteCAG(args[0]); err != nil {
		return err
	}
	logger.Info("cag deleted", zap.String("cag", args[0]))
	return nil
}
