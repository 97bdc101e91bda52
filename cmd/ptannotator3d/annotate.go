package main

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ptannotator3d/internal/models"
	"ptannotator3d/pkg/config"
	"ptannotator3d/pkg/session"
	"ptannotator3d/pkg/store"
	"ptannotator3d/pkg/visualization"
	"ptannotator3d/pkg/volume"
)

const annotateHelp = `Commands:
  n            commit working set and load the next random chunk
  p Z Y X      place a point at chunk-local coordinates
  w            show the working set
  c            commit the working set without navigating
  s            export the current chunk (slices + working-set CSV)
  h            show this help
  q            commit and quit`

// terminalBridge prints each loaded chunk to the terminal. It stands in for
// a GUI viewer: same payload, text rendering.
type terminalBridge struct {
	out io.Writer
}

func (b *terminalBridge) Present(view *session.ChunkView) {
	mem := uint64(len(view.Chunk.Data)) * 8
	fmt.Fprintf(b.out, "\nChunk at %v, shape %v, %s in memory (%s)\n",
		view.Desc.Origin, view.Desc.Shape, humanize.IBytes(mem), view.Chunk.Dtype)
	if view.CoChunk != nil {
		fmt.Fprintf(b.out, "Colocalisation channel %d loaded\n", view.Desc.CoChannel)
	}
	fmt.Fprintf(b.out, "Contrast estimate [%g, %g]\n", view.Contrast[0], view.Contrast[1])
	fmt.Fprintf(b.out, "Stored points in chunk: %d\n", len(view.StorePoints))
	for _, rec := range view.StorePoints {
		fmt.Fprintf(b.out, "  #%d %v (chunk-local)\n", rec.Index, rec.Pos)
	}
}

func newAnnotateCmd() *cobra.Command {
	var (
		configPath string
		imagePath  string
		storePath  string
		chunkStr   string
		channel    int
		coChannel  int
		seed       int64
	)

	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Interactively annotate random chunks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if imagePath != "" {
				cfg.Image.Path = imagePath
			}
			if storePath != "" {
				cfg.Store.Path = storePath
			}
			if chunkStr != "" {
				shape, err := parseTriple(chunkStr)
				if err != nil {
					return fmt.Errorf("bad --chunk: %w", err)
				}
				cfg.Chunk.Shape = shape
			}
			if cmd.Flags().Changed("channel") {
				cfg.Image.Channel = channel
			}
			if cmd.Flags().Changed("co-channel") {
				cfg.Image.CoChannel = coChannel
			}
			if seed != 0 {
				cfg.Session.Seed = seed
			}
			if cfg.Image.Path == "" || cfg.Store.Path == "" {
				return fmt.Errorf("an image and a store are required (flags or config file)")
			}

			vol, err := volume.OpenZarr(cfg.Image.Path)
			if err != nil {
				return err
			}
			st := store.NewStore(cfg.Store.Path)

			opts := session.Options{
				ChunkShape: models.IVec3(cfg.Chunk.Shape),
				Channel:    cfg.Image.Channel,
				CoChannel:  cfg.Image.CoChannel,
				Prefetch:   cfg.Session.Prefetch,
				Bridge:     &terminalBridge{out: cmd.OutOrStdout()},
			}
			if cfg.Session.Seed != 0 {
				opts.Rand = rand.New(rand.NewSource(cfg.Session.Seed))
			}
			if cfg.Store.BoxOutline {
				opts.BoxLog = store.NewBoxLog(store.BoxLogPathFor(cfg.Store.Path))
			}

			sess, err := session.New(vol, st, opts)
			if err != nil {
				return err
			}

			return runAnnotateLoop(cmd, cfg, sess)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "ptannotator3d.yaml", "configuration file")
	cmd.Flags().StringVar(&imagePath, "image", "", "zarr image directory (overrides config)")
	cmd.Flags().StringVar(&storePath, "store", "", "annotation table CSV (overrides config)")
	cmd.Flags().StringVar(&chunkStr, "chunk", "", "chunk shape as z,y,x (overrides config)")
	cmd.Flags().IntVar(&channel, "channel", 0, "primary channel index (overrides config)")
	cmd.Flags().IntVar(&coChannel, "co-channel", 0, "colocalisation channel index (overrides config)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "fixed random seed (overrides config)")

	return cmd
}

func runAnnotateLoop(cmd *cobra.Command, cfg *config.Config, sess *session.Session) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	fmt.Fprintln(out, annotateHelp)

	var lastView *session.ChunkView
	scanner := bufio.NewScanner(cmd.InOrStdin())
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			fmt.Fprint(out, "> ")
			continue
		}

		switch fields[0] {
		case "n":
			view, err := sess.Next()
			if err != nil {
				fmt.Fprintf(errOut, "error: %v\n", err)
				break
			}
			if !cfg.Display.AutoContrast {
				view.Contrast = [2]float64{cfg.Display.ContrastLow, cfg.Display.ContrastHigh}
			}
			lastView = view

		case "p":
			if len(fields) != 4 {
				fmt.Fprintln(errOut, "usage: p Z Y X")
				break
			}
			var p models.Vec3
			ok := true
			for i := 0; i < 3; i++ {
				v, err := strconv.ParseFloat(fields[1+i], 64)
				if err != nil {
					fmt.Fprintf(errOut, "bad coordinate %q\n", fields[1+i])
					ok = false
					break
				}
				p[i] = v
			}
			if !ok {
				break
			}
			if err := sess.Place(p); err != nil {
				fmt.Fprintf(errOut, "error: %v\n", err)
				break
			}
			fmt.Fprintf(out, "placed %v (%d unsaved)\n", p, len(sess.Working()))

		case "w":
			working := sess.Working()
			fmt.Fprintf(out, "%d unsaved points\n", len(working))
			for _, p := range working {
				fmt.Fprintf(out, "  %v\n", p)
			}

		case "c":
			if err := sess.Commit(); err != nil {
				fmt.Fprintf(errOut, "error: %v\n", err)
				break
			}
			fmt.Fprintln(out, "committed")

		case "s":
			if lastView == nil {
				fmt.Fprintln(errOut, "no chunk loaded")
				break
			}
			base, err := visualization.ExportChunk(cfg.Display.SnapshotDir, "chunk", lastView, sess.Working())
			if err != nil {
				fmt.Fprintf(errOut, "error: %v\n", err)
				break
			}
			fmt.Fprintf(out, "exported to %s\n", base)

		case "h":
			fmt.Fprintln(out, annotateHelp)

		case "q":
			if err := sess.Commit(); err != nil {
				fmt.Fprintf(errOut, "error: %v (unsaved points kept, not quitting)\n", err)
				break
			}
			return nil

		default:
			fmt.Fprintf(errOut, "unknown command %q (h for help)\n", fields[0])
		}
		fmt.Fprint(out, "> ")
	}
	// EOF: commit whatever is left rather than dropping it.
	return sess.Commit()
}
