package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/spf13/cobra"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/lamina/pkg/control"
	"github.com/chazu/lamina/pkg/engine"
	"github.com/chazu/lamina/pkg/hull"
	"github.com/chazu/lamina/pkg/kernel/sdfx"
	"github.com/chazu/lamina/pkg/mesh"
	"github.com/chazu/lamina/pkg/printer"
	"github.com/chazu/lamina/pkg/slice"
	"github.com/chazu/lamina/pkg/tessellate"
	"github.com/chazu/lamina/pkg/transform"
	"github.com/chazu/lamina/pkg/viewer"
)

func newInfoCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info [file.stl]",
		Short: "Print mesh statistics and the fitted bounds",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			m, err := o.loadMesh(args)
			if err != nil {
				return err
			}
			return info(cmd.OutOrStdout(), m, cfg)
		},
	}
}

func info(w io.Writer, m *mesh.Mesh, cfg printer.Config) error {
	flipped := m.Orient()
	candidates := hull.Points(m.Vertices, hull.Reduce(m.Vertices))
	frame := transform.NewFrame(candidates, transform.Orientation{}, cfg.GLScale())
	raw := transform.ComputeBounds(m.Vertices, sdf.Identity3d())
	size := raw.Size()

	fmt.Fprintf(w, "name:       %s\n", m.Name)
	fmt.Fprintf(w, "triangles:  %d\n", m.TriangleCount())
	fmt.Fprintf(w, "hull:       %d of %d vertices\n", len(candidates), m.VertexCount())
	fmt.Fprintf(w, "volume:     %.3f mm^3\n", m.SignedVolume())
	fmt.Fprintf(w, "reoriented: %v\n", flipped)
	fmt.Fprintf(w, "size:       %.3f x %.3f x %.3f mm\n", size.X, size.Y, size.Z)
	fmt.Fprintf(w, "printer:    %s, %.1f mm wide\n", cfg.Resolution, cfg.WidthMM)
	b := frame.Bounds
	fmt.Fprintf(w, "world:      x[%.4f, %.4f] y[%.4f, %.4f] z[%.4f, %.4f]\n",
		b.XMin, b.XMax, b.YMin, b.YMax, b.ZMin, b.ZMax)
	return nil
}

func newSliceCmd(o *options) *cobra.Command {
	var frac float64
	var out string
	c := &cobra.Command{
		Use:   "slice [file.stl]",
		Short: "Write one slice as a PNG",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			m, err := o.loadMesh(args)
			if err != nil {
				return err
			}
			r, err := sliceMesh(m, cfg, frac)
			if err != nil {
				return err
			}
			return writeRaster(out, r, o.zoom)
		},
	}
	c.Flags().Float64Var(&frac, "frac", 0.5, "slice height as a fraction of the model height")
	c.Flags().StringVarP(&out, "out", "o", "", "output PNG (default stdout)")
	return c
}

func sliceMesh(m *mesh.Mesh, cfg printer.Config, frac float64) (*slice.Raster, error) {
	v, err := newViewer(cfg)
	if err != nil {
		return nil, err
	}
	defer v.Close()
	if err := v.LoadMesh(m); err != nil {
		return nil, err
	}
	return v.SliceAt(frac)
}

func newStackCmd(o *options) *cobra.Command {
	var layers, jobs int
	var dir string
	c := &cobra.Command{
		Use:   "stack [file.stl]",
		Short: "Write evenly spaced slices as numbered PNGs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			m, err := o.loadMesh(args)
			if err != nil {
				return err
			}
			paths, err := stack(m, cfg, layers, jobs, dir, o.zoom)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d layers to %s\n", len(paths), dir)
			return nil
		},
	}
	c.Flags().IntVarP(&layers, "layers", "n", 100, "number of layers")
	c.Flags().IntVarP(&jobs, "jobs", "j", runtime.NumCPU(), "parallel slicers")
	c.Flags().StringVarP(&dir, "out", "o", ".", "output directory")
	return c
}

// layerFrac is the height of the middle of layer i of n.
func layerFrac(i, n int) float64 {
	return (float64(i) + 0.5) / float64(n)
}

// stack slices m into layers PNG files under dir. Every worker owns a
// viewer, a device and a copy of the mesh; layers are dealt round-robin.
func stack(m *mesh.Mesh, cfg printer.Config, layers, jobs int, dir string, zoom int) ([]string, error) {
	if layers <= 0 {
		return nil, errors.New("layer count must be positive")
	}
	if jobs <= 0 {
		jobs = 1
	}
	if jobs > layers {
		jobs = layers
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	paths := make([]string, layers)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("layer_%04d.png", i))
	}

	var g errgroup.Group
	for w := 0; w < jobs; w++ {
		w := w
		g.Go(func() error {
			v, err := newViewer(cfg)
			if err != nil {
				return err
			}
			defer v.Close()
			own := mesh.New(m.Name, append([]v3.Vec(nil), m.Vertices...))
			if err := v.LoadMesh(own); err != nil {
				return err
			}
			for i := w; i < layers; i += jobs {
				r, err := v.SliceAt(layerFrac(i, layers))
				if err != nil {
					return fmt.Errorf("layer %d: %w", i, err)
				}
				if err := writeRaster(paths[i], r, zoom); err != nil {
					return fmt.Errorf("layer %d: %w", i, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func newRunCmd(o *options) *cobra.Command {
	var stlPath, out string
	c := &cobra.Command{
		Use:   "run script.lam",
		Short: "Evaluate a lamina script and write the final slice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var base *mesh.Mesh
			if stlPath != "" {
				if base, err = mesh.ReadSTLFile(stlPath); err != nil {
					return err
				}
			}
			v, err := newViewer(cfg)
			if err != nil {
				return err
			}
			defer v.Close()
			if err := run(cmd.Context(), cmd.ErrOrStderr(), v, string(source), base, o.cells); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "slice at %.3f: %d pixels covered\n", v.Height(), v.Slice().CoveredCount())
			return writeRaster(out, v.Slice(), o.zoom)
		},
	}
	c.Flags().StringVar(&stlPath, "stl", "", "mesh to load before the script runs")
	c.Flags().StringVarP(&out, "out", "o", "", "output PNG (default stdout)")
	return c
}

// run evaluates source and applies it to v: the optional base mesh is
// loaded first, the script's model replaces it, then the script's
// commands are applied in order. Diagnostics are written to w.
func run(ctx context.Context, w io.Writer, v *viewer.Viewer, source string, base *mesh.Mesh, cells int) error {
	if base != nil {
		if err := v.LoadMesh(base); err != nil {
			return err
		}
	}
	s, evalErrs, err := engine.NewEngine().EvaluateContext(ctx, source)
	if err != nil {
		return err
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			fmt.Fprintf(w, "line %d: %s\n", e.Line, e.Message)
		}
		return fmt.Errorf("script failed with %d errors", len(evalErrs))
	}

	if s.Model != nil {
		res := tessellate.Validate(s.Model)
		for _, f := range res.Warnings {
			fmt.Fprintln(w, f)
		}
		if !res.OK() {
			for _, f := range res.Errors {
				fmt.Fprintln(w, f)
			}
			return fmt.Errorf("model has %d errors", len(res.Errors))
		}
		var opts []sdfx.Option
		if cells > 0 {
			opts = append(opts, sdfx.WithCells(cells))
		}
		m, err := tessellate.Tessellate(s.Model, sdfx.New(opts...))
		if err != nil {
			return err
		}
		if err := v.LoadMesh(m); err != nil {
			return err
		}
	}

	var q control.Queue
	q.Push(s.Commands...)
	return v.Drain(&q)
}

// writeRaster encodes r as a PNG at path, or stdout for "", scaled up by
// zoom with nearest neighbour sampling so pixels stay sharp.
func writeRaster(path string, r *slice.Raster, zoom int) error {
	f, err := openOut(path)
	if err != nil {
		return err
	}
	if err := encodeRaster(f, r, zoom); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func encodeRaster(w io.Writer, r *slice.Raster, zoom int) error {
	var img image.Image = r.Image()
	if zoom > 1 {
		dst := image.NewRGBA(image.Rect(0, 0, r.Width*zoom, r.Height*zoom))
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		img = dst
	}
	return png.Encode(w, img)
}
