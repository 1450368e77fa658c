package scene

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/qri-io/dataset/compression"
	"github.com/star/goeschip/internal/fixedgrid"
)

// MetadataFile is the name of the bundle descriptor inside a scene directory.
const MetadataFile = "scene.json"

// ErrNotBundle is returned when a directory has no scene descriptor.
var ErrNotBundle = errors.New("scene: not a scene bundle")

// Metadata is the bundle descriptor. Attribute names follow the NetCDF
// attributes of ABI Cloud and Moisture Imagery products.
type Metadata struct {
	DatasetName       string               `json:"dataset_name"`
	TimeCoverageStart string               `json:"time_coverage_start"`
	TimeCoverageEnd   string               `json:"time_coverage_end"`
	Projection        ProjectionMeta       `json:"goes_imager_projection"`
	Variables         map[string]*Variable `json:"variables"`
}

// ProjectionMeta mirrors the goes_imager_projection variable attributes.
type ProjectionMeta struct {
	SemiMajorAxis          float64 `json:"semi_major_axis"`
	SemiMinorAxis          float64 `json:"semi_minor_axis"`
	PerspectivePointHeight float64 `json:"perspective_point_height"`
	LongitudeOrigin        float64 `json:"longitude_of_projection_origin"`
	InverseFlattening      float64 `json:"inverse_flattening,omitempty"`
}

// Config converts the attributes into a projection configuration.
func (p ProjectionMeta) Config() fixedgrid.ProjectionConfig {
	return fixedgrid.ProjectionConfig{
		SemiMajorAxis:          p.SemiMajorAxis,
		SemiMinorAxis:          p.SemiMinorAxis,
		PerspectivePointHeight: p.PerspectivePointHeight,
		LongitudeOrigin:        p.LongitudeOrigin,
		InverseFlattening:      p.InverseFlattening,
	}
}

// Variable describes one raw array file. Packed integer data is unpacked as
// value*scale_factor + add_offset, with _FillValue cells becoming NaN.
type Variable struct {
	Path        string          `json:"path"`
	Dtype       Dtype           `json:"dtype"`
	Shape       []int           `json:"shape"`
	ScaleFactor *float64        `json:"scale_factor,omitempty"`
	AddOffset   *float64        `json:"add_offset,omitempty"`
	FillValue   *float64        `json:"_FillValue,omitempty"`
	Compressor  *CompressorMeta `json:"compressor,omitempty"`
}

// CompressorMeta names the byte compression of a variable file ("gzip",
// "zst"). An empty id means the file is stored raw.
type CompressorMeta struct {
	ID string `json:"id"`
}

// Variable names inside a bundle.
const (
	VarX   = "x"
	VarY   = "y"
	VarCMI = "CMI"
)

// Load reads the scene bundle in dir from fsys.
func Load(fsys fs.FS, dir string) (*Scene, error) {
	raw, err := fs.ReadFile(fsys, path.Join(dir, MetadataFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotBundle, dir)
		}
		return nil, fmt.Errorf("reading %s: %w", MetadataFile, err)
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", MetadataFile, err)
	}

	x, err := readVariable(fsys, dir, meta.Variables, VarX, 1)
	if err != nil {
		return nil, err
	}
	y, err := readVariable(fsys, dir, meta.Variables, VarY, 1)
	if err != nil {
		return nil, err
	}
	cmi, err := readVariable(fsys, dir, meta.Variables, VarCMI, 2)
	if err != nil {
		return nil, err
	}

	shape := meta.Variables[VarCMI].Shape
	grid := &Grid{Rows: shape[0], Cols: shape[1], Data: make([]float32, len(cmi))}
	for i, v := range cmi {
		grid.Data[i] = float32(v)
	}

	s := &Scene{
		Name:       meta.DatasetName,
		Start:      meta.TimeCoverageStart,
		End:        meta.TimeCoverageEnd,
		Projection: meta.Projection.Config(),
		X:          x,
		Y:          y,
		CMI:        grid,
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scene %s: %w", dir, err)
	}
	return s, nil
}

func readVariable(fsys fs.FS, dir string, vars map[string]*Variable, name string, rank int) ([]float64, error) {
	v, ok := vars[name]
	if !ok || v == nil {
		return nil, fmt.Errorf("variable %q missing from %s", name, MetadataFile)
	}
	if len(v.Shape) != rank {
		return nil, fmt.Errorf("variable %q: shape %v is not rank %d", name, v.Shape, rank)
	}
	n := 1
	for _, d := range v.Shape {
		if d < 0 {
			return nil, fmt.Errorf("variable %q: negative dimension in %v", name, v.Shape)
		}
		n *= d
	}

	f, err := fsys.Open(path.Join(dir, v.Path))
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	defer f.Close()

	var r io.Reader = f
	if v.Compressor != nil && v.Compressor.ID != "" {
		rc, err := compression.Decompressor(v.Compressor.ID, f)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		defer rc.Close()
		r = rc
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("variable %q: reading: %w", name, err)
	}

	vals, err := v.Dtype.decode(b, n)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	v.unpack(vals)
	return vals, nil
}

// unpack applies fill masking and CF scale/offset in place.
func (v *Variable) unpack(vals []float64) {
	scale, offset := 1.0, 0.0
	if v.ScaleFactor != nil {
		scale = *v.ScaleFactor
	}
	if v.AddOffset != nil {
		offset = *v.AddOffset
	}
	for i, raw := range vals {
		if v.FillValue != nil && raw == *v.FillValue {
			vals[i] = math.NaN()
			continue
		}
		vals[i] = raw*scale + offset
	}
}

// Save writes s as an uncompressed bundle into dir: float64 axes and a
// float32 CMI grid, little-endian.
func Save(dir string, s *Scene) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating bundle dir: %w", err)
	}

	f8, _ := ParseDtype("<f8")
	f4, _ := ParseDtype("<f4")

	meta := Metadata{
		DatasetName:       s.Name,
		TimeCoverageStart: s.Start,
		TimeCoverageEnd:   s.End,
		Projection: ProjectionMeta{
			SemiMajorAxis:          s.Projection.SemiMajorAxis,
			SemiMinorAxis:          s.Projection.SemiMinorAxis,
			PerspectivePointHeight: s.Projection.PerspectivePointHeight,
			LongitudeOrigin:        s.Projection.LongitudeOrigin,
			InverseFlattening:      s.Projection.InverseFlattening,
		},
		Variables: map[string]*Variable{
			VarX:   {Path: "x.bin", Dtype: f8, Shape: []int{len(s.X)}},
			VarY:   {Path: "y.bin", Dtype: f8, Shape: []int{len(s.Y)}},
			VarCMI: {Path: "CMI.bin", Dtype: f4, Shape: []int{s.CMI.Rows, s.CMI.Cols}},
		},
	}

	writes := []struct {
		name string
		data any
	}{
		{"x.bin", s.X},
		{"y.bin", s.Y},
		{"CMI.bin", s.CMI.Data},
	}
	for _, w := range writes {
		var buf bytes.Buffer
		if err := binary.Write(&buf, binary.LittleEndian, w.data); err != nil {
			return fmt.Errorf("encoding %s: %w", w.name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, w.name), buf.Bytes(), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", w.name, err)
		}
	}

	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", MetadataFile, err)
	}
	return os.WriteFile(filepath.Join(dir, MetadataFile), raw, 0644)
}

// Find returns every directory under root in fsys that holds a scene
// bundle, in lexical order.
func Find(fsys fs.FS, root string) ([]string, error) {
	var dirs []string
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == MetadataFile {
			dirs = append(dirs, path.Dir(p))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching for scenes: %w", err)
	}
	sort.Strings(dirs)
	return dirs, nil
}
