// Package output persists extracted chips: rescaled PNGs, optional 16-bit
// TIFFs and a Parquet catalog of what was written.
package output

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"github.com/star/goeschip/internal/chip"
	"github.com/star/goeschip/internal/scene"
)

const (
	nativePrefix = "Native_"
	pngExt       = ".png"
	tiffExt      = ".tif"
)

// Options controls what Dir writes for each chip.
type Options struct {
	// TIFF also writes the chip as 16-bit centi-kelvin samples.
	TIFF bool
	// Resize scales the PNG so its longer edge is Resize pixels. Zero keeps
	// the native size.
	Resize int
}

// Dir writes chip images into a directory.
type Dir struct {
	dir  string
	opts Options
}

// NewDir creates a Dir that writes into dir.
func NewDir(dir string, opts Options) *Dir {
	if opts.Resize < 0 {
		opts.Resize = 0
	}
	return &Dir{dir: dir, opts: opts}
}

// Path returns the output directory.
func (d *Dir) Path() string { return d.dir }

// Written lists the files produced for one chip.
type Written struct {
	Tag  string
	PNG  string
	TIFF string
}

// Write saves c as Native_<tag>.png, plus Native_<tag>.tif when enabled.
// An existing file with the same name is replaced.
func (d *Dir) Write(c *chip.Chip) (Written, error) {
	if c.Data.Empty() {
		return Written{}, chip.ErrEmptyChip
	}
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return Written{}, fmt.Errorf("creating output dir: %w", err)
	}

	tag := c.Tag()
	w := Written{Tag: tag, PNG: filepath.Join(d.dir, nativePrefix+tag+pngExt)}

	if err := writeFile(w.PNG, func(f *bufio.Writer) error { return EncodePNG(f, c, d.opts.Resize) }); err != nil {
		return Written{}, err
	}

	if d.opts.TIFF {
		w.TIFF = filepath.Join(d.dir, nativePrefix+tag+tiffExt)
		if err := writeFile(w.TIFF, func(f *bufio.Writer) error { return EncodeTIFF(f, c) }); err != nil {
			return Written{}, err
		}
	}
	return w, nil
}

// EncodePNG writes c as an 8-bit rescaled grayscale PNG. A positive resize
// scales the longer edge to that many pixels.
func EncodePNG(w io.Writer, c *chip.Chip, resize int) error {
	var img image.Image = chip.Rescale(c.Data)
	if resize > 0 {
		img = resizeGray(img, resize)
	}
	return png.Encode(w, img)
}

// EncodeTIFF writes c as a deflate-compressed 16-bit centi-kelvin TIFF.
func EncodeTIFF(w io.Writer, c *chip.Chip) error {
	return tiff.Encode(w, CentiKelvin(c.Data), &tiff.Options{Compression: tiff.Deflate})
}

func writeFile(path string, encode func(*bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	bw := bufio.NewWriter(f)
	if err := encode(bw); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// resizeGray scales src so that its longer edge is edge pixels.
func resizeGray(src image.Image, edge int) image.Image {
	b := src.Bounds()
	w, h := edge, edge
	if b.Dx() > b.Dy() {
		h = max(1, b.Dy()*edge/b.Dx())
	} else if b.Dy() > b.Dx() {
		w = max(1, b.Dx()*edge/b.Dy())
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// CentiKelvin packs brightness temperatures into 16-bit samples of 0.01 K.
// Masked cells become 0; values are clamped to [1, 65535].
func CentiKelvin(g *scene.Grid) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, g.Cols, g.Rows))
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			v := float64(g.At(r, c))
			if math.IsNaN(v) {
				continue
			}
			ck := math.Max(1, math.Min(math.MaxUint16, math.Round(v*100)))
			img.SetGray16(c, r, color.Gray16{Y: uint16(ck)})
		}
	}
	return img
}

// Entry is a chip image found in the directory.
type Entry struct {
	Tag  string
	Path string
	Size int64
}

// List returns the PNG chips in the directory, newest coverage start first.
func (d *Dir) List() ([]Entry, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing output dir: %w", err)
	}

	var out []Entry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, nativePrefix) || !strings.HasSuffix(name, pngExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Tag:  strings.TrimSuffix(strings.TrimPrefix(name, nativePrefix), pngExt),
			Path: filepath.Join(d.dir, name),
			Size: info.Size(),
		})
	}

	// Tags start with ISO-8601 coverage times, so name order is time order.
	sort.Slice(out, func(i, j int) bool { return out[i].Tag > out[j].Tag })
	return out, nil
}
