package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ptannotator3d",
	Short: "Point annotator for large volumetric images",
	Long: "ptannotator3d annotates 3D point locations inside large out-of-core\n" +
		"volumetric images (zarr directory stores) and persists them to a shared\n" +
		"CSV table, one random chunk at a time.",
}

func init() {
	rootCmd.AddCommand(newAnnotateCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newInitConfigCmd())
}

// parseTriple parses "z,y,x" into an integer triple.
func parseTriple(s string) ([3]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return [3]int{}, fmt.Errorf("want 3 comma-separated values, got %q", s)
	}
	var out [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return [3]int{}, fmt.Errorf("bad value %q: %w", p, err)
		}
		out[i] = n
	}
	return out, nil
}
