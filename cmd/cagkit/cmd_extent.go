package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kittclouds/cagkit/pkg/extent"
)

var levels int

var extentCmd = &cobra.Command{
	Use:   "extent [min] [max] [value...]",
	Short: "Pad a value range so it sits in the middle third of a level scale",
	Long: `Prints the padded range. Each extra value is printed with the level it
falls in on the padded scale.`,
	Example: `  cagkit extent 0 10          # -10 20
  cagkit extent 0 10 0 5 10   # levels 10, 15 and 20
  cagkit extent -- -1 0       # -2 1`,
	Args: cobra.MinimumNArgs(2),
	RunE: runExtent,
}

func init() {
	extentCmd.Flags().IntVar(&levels, "levels", 0, "Number of levels (default from config)")
}

func runExtent(cmd *cobra.Command, args []string) error {
	lo, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("min: %w", err)
	}
	hi, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("max: %w", err)
	}

	values := make([]float64, 0, len(args)-2)
	for _, arg := range args[2:] {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		values = append(values, v)
	}

	n := cfg.Extent.Levels
	if levels > 0 {
		n = levels
	}
	if n <= 0 {
		n = extent.DefaultLevels
	}
	lo, hi = extent.Expand(lo, hi, n)
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%g %g\n", lo, hi)
	for _, v := range values {
		fmt.Fprintf(w, "%g level %d\n", v, extent.Level(v, lo, hi, n))
	}
	return nil
}
