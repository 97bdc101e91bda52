package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"ptannotator3d/internal/models"
	"ptannotator3d/pkg/store"
)

func newListCmd() *cobra.Command {
	var (
		storePath string
		originStr string
		shapeStr  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List annotations in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := store.NewStore(storePath)
			records, err := st.ReadAll()
			if err != nil {
				return err
			}

			// With a region both flags are required and the output is
			// translated to the chunk-local frame, mirroring what a session
			// would display for that chunk.
			local := false
			if originStr != "" || shapeStr != "" {
				if originStr == "" || shapeStr == "" {
					return fmt.Errorf("--origin and --shape must be given together")
				}
				origin, err := parseTriple(originStr)
				if err != nil {
					return fmt.Errorf("bad --origin: %w", err)
				}
				shape, err := parseTriple(shapeStr)
				if err != nil {
					return fmt.Errorf("bad --shape: %w", err)
				}
				records = store.FilterInRegion(records, models.IVec3(origin), models.IVec3(shape))
				local = true
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			if local {
				t.AppendHeader(table.Row{"Index", "Axis-0 (local)", "Axis-1 (local)", "Axis-2 (local)", "Extra"})
			} else {
				t.AppendHeader(table.Row{"Index", "Axis-0", "Axis-1", "Axis-2", "Extra"})
			}
			for _, rec := range records {
				t.AppendRow(table.Row{
					rec.Index, rec.Pos[0], rec.Pos[1], rec.Pos[2], strings.Join(rec.Extra, ","),
				})
			}
			t.Render()
			fmt.Fprintf(cmd.OutOrStdout(), "%d points\n", len(records))
			return nil
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "annotation table CSV")
	cmd.Flags().StringVar(&originStr, "origin", "", "region origin as z,y,x")
	cmd.Flags().StringVar(&shapeStr, "shape", "", "region shape as z,y,x")
	_ = cmd.MarkFlagRequired("store")

	return cmd
}
