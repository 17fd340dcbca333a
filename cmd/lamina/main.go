// Command lamina is the headless slicing viewer: it loads STL files or
// lamina scripts and writes slice rasters as PNG images.
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/spf13/cobra"

	"github.com/chazu/lamina/pkg/mesh"
	"github.com/chazu/lamina/pkg/printer"
	"github.com/chazu/lamina/pkg/slice/soft"
	"github.com/chazu/lamina/pkg/viewer"
)

// options are the flags shared by every command.
type options struct {
	printerPath string
	res         string
	widthMM     float64
	zoom        int
	demo        float64
	cells       int
}

// config resolves the printer configuration: defaults, then the JSON file,
// then explicit flags.
func (o *options) config() (printer.Config, error) {
	cfg := printer.Default()
	if o.printerPath != "" {
		var err error
		if cfg, err = printer.Load(o.printerPath); err != nil {
			return printer.Config{}, err
		}
	}
	if o.res != "" {
		r, err := printer.ParseResolution(o.res)
		if err != nil {
			return printer.Config{}, err
		}
		cfg.Resolution = r
	}
	if o.widthMM != 0 {
		cfg.WidthMM = o.widthMM
	}
	if err := cfg.Validate(); err != nil {
		return printer.Config{}, err
	}
	return cfg, nil
}

// loadMesh reads the single STL argument, or builds the demo cube.
func (o *options) loadMesh(args []string) (*mesh.Mesh, error) {
	if o.demo > 0 {
		if len(args) > 0 {
			return nil, errors.New("--demo and an input file are exclusive")
		}
		m := mesh.Cuboid(v3.Vec{X: o.demo, Y: o.demo, Z: o.demo})
		m.Name = fmt.Sprintf("demo cube %gmm", o.demo)
		return m, nil
	}
	switch len(args) {
	case 0:
		m, err := mesh.ReadSTL(os.Stdin)
		if err == nil {
			m.Name = "stdin"
		}
		return m, err
	case 1:
		return mesh.ReadSTLFile(args[0])
	}
	return nil, errors.New("multiple input files are not supported")
}

// newViewer returns an initialized viewer on its own software device.
func newViewer(cfg printer.Config) (*viewer.Viewer, error) {
	v := viewer.New(soft.New(cfg.Resolution.X, cfg.Resolution.Y), cfg)
	if err := v.Init(); err != nil {
		return nil, err
	}
	return v, nil
}

func openOut(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "lamina",
		Short:         "Slice triangle meshes into binary layer images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&o.printerPath, "printer", "", "printer configuration JSON file")
	pf.StringVar(&o.res, "res", "", "output resolution WxH, overrides the printer file")
	pf.Float64Var(&o.widthMM, "width-mm", 0, "bed width in mm, overrides the printer file")
	pf.IntVar(&o.zoom, "zoom", 1, "integer upscale factor for written PNGs")
	pf.Float64Var(&o.demo, "demo", 0, "slice a centered cube of this size in mm instead of a file")
	pf.IntVar(&o.cells, "cells", 0, "marching cubes resolution for scripted models (0 = kernel default)")

	root.AddCommand(
		newInfoCmd(o),
		newSliceCmd(o),
		newStackCmd(o),
		newRunCmd(o),
	)
	return root
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("lamina: ")
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}
