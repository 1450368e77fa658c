package output

import (
	"context"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/star/goeschip/internal/chip"
	"github.com/star/goeschip/internal/scene"
)

func testChip(start, source string, rows, cols int) *chip.Chip {
	g := scene.NewGrid(rows, cols)
	for i := range g.Data {
		g.Data[i] = 200 + float32(i%100)
	}
	g.Data[len(g.Data)-1] = float32(math.NaN())
	return &chip.Chip{
		Data:     g,
		Window:   chip.Window{Row0: 10, Row1: 10 + rows, Col0: 20, Col1: 20 + cols},
		Center:   chip.GeoPoint{Lat: 28.3922, Lon: -80.6077},
		ScanX:    -0.0149498,
		ScanY:    0.0822404,
		RowIndex: 10 + rows/2,
		ColIndex: 20 + cols/2,
		Start:    start,
		End:      "2020-01-01T00:09:53.6Z",
		Source:   source,
	}
}

func decodePNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img
}

func TestDirWritePNG(t *testing.T) {
	d := NewDir(t.TempDir(), Options{})
	c := testChip("2020-01-01T00:00:21.6Z", "20200010010018", 12, 16)

	w, err := d.Write(c)
	require.NoError(t, err)
	assert.Equal(t, c.Tag(), w.Tag)
	assert.Equal(t, "Native_Chip_2020-01-01T00:00:21.6Z_2020-01-01T00:09:53.6Z_20200010010018.png", filepath.Base(w.PNG))
	assert.Empty(t, w.TIFF)

	img := decodePNG(t, w.PNG)
	gray, ok := img.(*image.Gray)
	require.True(t, ok, "expected 8-bit grayscale, got %T", img)
	assert.Equal(t, image.Rect(0, 0, 16, 12), gray.Bounds())
	assert.Equal(t, chip.Rescale(c.Data).Pix, gray.Pix)
}

func TestDirWriteTIFF(t *testing.T) {
	d := NewDir(t.TempDir(), Options{TIFF: true})
	c := testChip("2020-01-01T00:00:21.6Z", "", 4, 5)

	w, err := d.Write(c)
	require.NoError(t, err)
	require.NotEmpty(t, w.TIFF)

	f, err := os.Open(w.TIFF)
	require.NoError(t, err)
	defer f.Close()
	img, err := tiff.Decode(f)
	require.NoError(t, err)

	g16, ok := img.(*image.Gray16)
	require.True(t, ok, "expected 16-bit grayscale, got %T", img)
	assert.Equal(t, uint16(20000), g16.Gray16At(0, 0).Y)
	assert.Equal(t, uint16(20100), g16.Gray16At(1, 0).Y)
	assert.Equal(t, uint16(0), g16.Gray16At(4, 3).Y, "masked cell")
}

func TestDirWriteResize(t *testing.T) {
	d := NewDir(t.TempDir(), Options{Resize: 100})
	c := testChip("2020-01-01T00:00:21.6Z", "", 20, 40)

	w, err := d.Write(c)
	require.NoError(t, err)

	img := decodePNG(t, w.PNG)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestDirWriteEmpty(t *testing.T) {
	d := NewDir(t.TempDir(), Options{})
	_, err := d.Write(&chip.Chip{Data: scene.NewGrid(0, 3)})
	assert.ErrorIs(t, err, chip.ErrEmptyChip)
}

func TestDirList(t *testing.T) {
	dir := t.TempDir()
	d := NewDir(dir, Options{TIFF: true})

	for _, start := range []string{"2020-01-01T00:10:21.6Z", "2020-01-01T00:00:21.6Z", "2020-01-01T00:20:21.6Z"} {
		_, err := d.Write(testChip(start, "x", 2, 2))
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644))

	entries, err := d.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "Chip_2020-01-01T00:20:21.6Z_2020-01-01T00:09:53.6Z_x", entries[0].Tag)
	assert.Equal(t, "Chip_2020-01-01T00:00:21.6Z_2020-01-01T00:09:53.6Z_x", entries[2].Tag)
	for _, e := range entries {
		assert.Positive(t, e.Size)
	}

	missing, err := NewDir(filepath.Join(dir, "nope"), Options{}).List()
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestCentiKelvinClamps(t *testing.T) {
	g := scene.NewGrid(1, 4)
	copy(g.Data, []float32{-5, 0.004, 1000, float32(math.NaN())})

	img := CentiKelvin(g)
	assert.Equal(t, uint16(1), img.Gray16At(0, 0).Y)
	assert.Equal(t, uint16(1), img.Gray16At(1, 0).Y)
	assert.Equal(t, uint16(math.MaxUint16), img.Gray16At(2, 0).Y)
	assert.Equal(t, uint16(0), img.Gray16At(3, 0).Y)
}

func TestCatalogFlushAndRead(t *testing.T) {
	dir := t.TempDir()
	cat := NewCatalog(dir)

	path, err := cat.Flush()
	require.NoError(t, err)
	assert.Empty(t, path, "nothing buffered")

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a := testChip("2020-01-01T00:00:21.6Z", "20200010010018", 4, 4)
	b := testChip("2020-01-01T00:10:21.6Z", "20200010020018", 4, 4)
	b.Clamped = true
	b.Window.Truncated = true

	cat.Append(NewRecord(a, "goes-16", Written{PNG: "a.png"}, now))
	cat.Append(NewRecord(b, "goes-16", Written{PNG: "b.png"}, now))
	assert.Equal(t, 2, cat.Pending())

	path, err = cat.Flush()
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, 0, cat.Pending())

	recs, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	got := recs[0]
	assert.Equal(t, a.Tag(), got.Tag)
	assert.Equal(t, "20200010010018", got.Source)
	assert.Equal(t, "goes-16", got.Satellite)
	assert.Equal(t, int32(12), got.Row)
	assert.Equal(t, int32(22), got.Col)
	assert.Equal(t, int32(10), got.Row0)
	assert.Equal(t, int32(24), got.Col1)
	assert.InDelta(t, 200.0, got.MinK, 1e-6)
	assert.InDelta(t, 214.0, got.MaxK, 1e-6)
	assert.InDelta(t, 28.3922, got.CenterLat, 1e-12)
	assert.Equal(t, "2024-03-01T12:00:00Z", got.CreatedAt)
	assert.False(t, got.Clamped)

	assert.True(t, recs[1].Clamped)
	assert.True(t, recs[1].Truncated)
	assert.Equal(t, "b.png", recs[1].PNGPath)
}

func TestSummarize(t *testing.T) {
	if testing.Short() {
		t.Skip("duckdb query skipped in short mode")
	}
	dir := t.TempDir()

	first := []Record{
		{Tag: "t1", Source: "s1", Start: "2020-01-01T00:00:00Z", End: "2020-01-01T00:10:00Z"},
		{Tag: "t2", Source: "s1", Start: "2020-01-01T00:10:00Z", End: "2020-01-01T00:20:00Z", Clamped: true},
	}
	second := []Record{
		{Tag: "t3", Source: "s2", Start: "2020-01-02T00:00:00Z", End: "2020-01-02T00:10:00Z", Truncated: true},
	}
	require.NoError(t, WriteRecords(filepath.Join(dir, "catalog_a.parquet"), first))
	require.NoError(t, WriteRecords(filepath.Join(dir, "catalog_b.parquet"), second))

	sums, err := Summarize(context.Background(), CatalogGlob(dir))
	require.NoError(t, err)
	require.Len(t, sums, 2)

	assert.Equal(t, SourceSummary{
		Source: "s1", Chips: 2, Clamped: 1, Truncated: 0,
		FirstTime: "2020-01-01T00:00:00Z", LastTime: "2020-01-01T00:20:00Z",
	}, sums[0])
	assert.Equal(t, "s2", sums[1].Source)
	assert.Equal(t, int64(1), sums[1].Truncated)

	empty, err := Summarize(context.Background(), CatalogGlob(filepath.Join(dir, "none")))
	require.NoError(t, err)
	assert.Empty(t, empty)
}
