package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show database engine versions and row counts",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	info, err := s.Info()
	if err != nil {
		return err
	}
	cags, err := s.ListCAGs()
	if err != nil {
		return err
	}
	docs, err := s.CountDocuments()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "database:   %s\n", cfg.Database)
	fmt.Fprintf(out, "sqlite:     %s\n", info.SQLiteVersion)
	fmt.Fprintf(out, "sqlite-vec: %s\n", info.VecVersion)
	fmt.Fprintf(out, "cags:       %d\n", len(cags))
	fmt.Fprintf(out, "documents:  %d\n", docs)
	return nil
}
