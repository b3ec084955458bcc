package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kittclouds/cagkit/internal/store"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage evidence documents",
}

var docsLoadCmd = &cobra.Command{
	Use:   "load [file.jsonl]",
	Short: "Upsert documents from a JSON Lines file",
	Long: `Each line is a document object:

  {"id": "d1", "title": "...", "text": "...", "fields": {"source": "reuters"}}

Blank lines are skipped. Existing documents are overwritten and their
version is bumped.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocsLoad,
}

var docsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print a document as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsShow,
}

func init() {
	docsCmd.AddCommand(docsLoadCmd)
	docsCmd.AddCommand(docsShowCmd)
}

func runDocsLoad(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	loaded, line := 0, 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var doc store.Document
		if err := json.Unmarshal([]byte(text), &doc); err != nil {
			return fmt.Errorf("%s:%d: %w", args[0], line, err)
		}
		if doc.ID == "" {
			return fmt.Errorf("%s:%d: document has no id", args[0], line)
		}
		doc.Version = 0
		doc.UpdatedAt = 0
		if err := s.UpsertDocument(&doc); err != nil {
			return fmt.Errorf("%s:%d: %w", args[0], line, err)
		}
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	logger.Info("documents loaded", zap.String("file", args[0]), zap.Int("count", loaded))
	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d documents\n", loaded)
	return nil
}

func runDocsShow(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	doc, err := s.GetDocument(args[0])
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("document %q not found", args[0])
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
