package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/astromechza/pixelwar/pkg/export"
	"github.com/astromechza/pixelwar/pkg/render"
)

func inspectCmd() *cobra.Command {
	var (
		pngPath string
		scale   int
	)
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Describe an exported canvas document and optionally render it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspect(args[0], pngPath, scale)
		},
	}
	cmd.Flags().StringVar(&pngPath, "png", "", "render the canvas to this file")
	cmd.Flags().IntVar(&scale, "scale", 4, "pixel scale of the --png output")
	return cmd
}

func inspect(path, pngPath string, scale int) error {
	buff, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	doc, name, grid, err := export.Load(buff)
	if err != nil {
		return err
	}
	slog.Info("loaded canvas", "name", name, "width", grid.Width(), "height", grid.Height())
	slog.Info("loaded heads", "heads", doc.Heads())

	changes, err := doc.Changes()
	if err != nil {
		return fmt.Errorf("failed to generate changes: %w", err)
	}
	for i, change := range changes {
		slog.Info("change", "i", fmt.Sprintf("%4d", i), "hash", change.Hash(), "actor", change.ActorID(), "seq", change.ActorSeq(), "dep", change.Dependencies())
	}

	colors := map[string]int{}
	for y := 0; y < grid.Height(); y++ {
		for x := 0; x < grid.Width(); x++ {
			c, _ := grid.Get(x, y)
			colors[c.Hex()]++
		}
	}
	slog.Info("palette", "distinct", len(colors))

	if pngPath == "" {
		return nil
	}
	f, err := os.Create(pngPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := render.PNG(f, grid, render.Options{Scale: scale, Caption: name}); err != nil {
		return err
	}
	slog.Info("rendered", "path", "file://"+pngPath)
	return nil
}
