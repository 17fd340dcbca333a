package slice

import (
	"bytes"
	"image"
)

// Raster is an RGBA coverage image. Rows are stored bottom-up, the order
// the device reads them back in: Pix[(y*Width+x)*4:] is pixel (x, y) with
// y = 0 at the bottom. A pixel is covered when its alpha is non-zero.
type Raster struct {
	Width  int
	Height int
	Pix    []byte
}

// NewRaster returns an empty raster.
func NewRaster(width, height int) *Raster {
	return &Raster{Width: width, Height: height, Pix: make([]byte, width*height*4)}
}

// Covered reports whether pixel (x, y) is inside the solid.
func (r *Raster) Covered(x, y int) bool {
	if x < 0 || y < 0 || x >= r.Width || y >= r.Height {
		return false
	}
	return r.Pix[(y*r.Width+x)*4+3] != 0
}

// CoveredCount returns the number of covered pixels.
func (r *Raster) CoveredCount() int {
	n := 0
	for i := 3; i < len(r.Pix); i += 4 {
		if r.Pix[i] != 0 {
			n++
		}
	}
	return n
}

// IsEmpty reports whether no pixel is covered.
func (r *Raster) IsEmpty() bool {
	return r.CoveredCount() == 0
}

// Footprint returns the smallest rectangle holding every covered pixel, in
// raster coordinates (y up). It is empty when nothing is covered.
func (r *Raster) Footprint() image.Rectangle {
	var fp image.Rectangle
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			if r.Covered(x, y) {
				fp = fp.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return fp
}

// Image converts the raster to a top-down image for encoding.
func (r *Raster) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	stride := r.Width * 4
	for y := 0; y < r.Height; y++ {
		src := r.Pix[y*stride : (y+1)*stride]
		dst := img.Pix[(r.Height-1-y)*img.Stride:]
		copy(dst[:stride], src)
	}
	return img
}

// Equal reports whether two rasters are bit-identical.
func (r *Raster) Equal(o *Raster) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.Width == o.Width && r.Height == o.Height && bytes.Equal(r.Pix, o.Pix)
}
