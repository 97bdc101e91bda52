package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ptannotator3d/pkg/volume"
)

// bytes per voxel of the native dtype.
var dtypeSizes = map[string]int{
	"uint8": 1, "int8": 1,
	"uint16": 2, "int16": 2,
	"uint32": 4, "int32": 4, "float32": 4,
	"uint64": 8, "int64": 8, "float64": 8,
}

func newInfoCmd() *cobra.Command {
	var imagePath string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show volume metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vol, err := volume.OpenZarr(imagePath)
			if err != nil {
				return err
			}

			shape := vol.Shape()
			voxels := uint64(shape.Prod())
			size := dtypeSizes[vol.DtypeName()]

			fmt.Fprintf(cmd.OutOrStdout(), "Image:    %s\n", imagePath)
			fmt.Fprintf(cmd.OutOrStdout(), "Shape:    %v (axis-0, axis-1, axis-2)\n", shape)
			fmt.Fprintf(cmd.OutOrStdout(), "Channels: %d\n", vol.Channels())
			fmt.Fprintf(cmd.OutOrStdout(), "Dtype:    %s\n", vol.DtypeName())
			fmt.Fprintf(cmd.OutOrStdout(), "Size:     %s per channel, %s total\n",
				humanize.IBytes(voxels*uint64(size)),
				humanize.IBytes(voxels*uint64(size)*uint64(vol.Channels())))
			return nil
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "zarr image directory")
	_ = cmd.MarkFlagRequired("image")

	return cmd
}
