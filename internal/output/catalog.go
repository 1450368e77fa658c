package output

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/star/goeschip/internal/chip"
)

// Record is one catalog row describing a written chip.
type Record struct {
	Tag       string  `parquet:"name=tag, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN"`
	Source    string  `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN"`
	Satellite string  `parquet:"name=satellite, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN"`
	Start     string  `parquet:"name=start_time, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN"`
	End       string  `parquet:"name=end_time, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN"`
	CenterLat float64 `parquet:"name=center_lat, type=DOUBLE"`
	CenterLon float64 `parquet:"name=center_lon, type=DOUBLE"`
	ScanX     float64 `parquet:"name=scan_x, type=DOUBLE"`
	ScanY     float64 `parquet:"name=scan_y, type=DOUBLE"`
	Row       int32   `parquet:"name=row, type=INT32"`
	Col       int32   `parquet:"name=col, type=INT32"`
	Row0      int32   `parquet:"name=row0, type=INT32"`
	Row1      int32   `parquet:"name=row1, type=INT32"`
	Col0      int32   `parquet:"name=col0, type=INT32"`
	Col1      int32   `parquet:"name=col1, type=INT32"`
	MinK      float64 `parquet:"name=min_k, type=DOUBLE"`
	MaxK      float64 `parquet:"name=max_k, type=DOUBLE"`
	Clamped   bool    `parquet:"name=clamped, type=BOOLEAN"`
	Truncated bool    `parquet:"name=truncated, type=BOOLEAN"`
	PNGPath   string  `parquet:"name=png_path, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN"`
	CreatedAt string  `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN"`
}

// NewRecord describes c as written to w. MinK and MaxK are zero when every
// pixel is masked.
func NewRecord(c *chip.Chip, satellite string, w Written, now time.Time) Record {
	lo, hi, _ := c.Data.MinMax()
	return Record{
		Tag:       c.Tag(),
		Source:    c.Source,
		Satellite: satellite,
		Start:     c.Start,
		End:       c.End,
		CenterLat: c.Center.Lat,
		CenterLon: c.Center.Lon,
		ScanX:     c.ScanX,
		ScanY:     c.ScanY,
		Row:       int32(c.RowIndex),
		Col:       int32(c.ColIndex),
		Row0:      int32(c.Window.Row0),
		Row1:      int32(c.Window.Row1),
		Col0:      int32(c.Window.Col0),
		Col1:      int32(c.Window.Col1),
		MinK:      float64(lo),
		MaxK:      float64(hi),
		Clamped:   c.Clamped,
		Truncated: c.Window.Truncated,
		PNGPath:   w.PNG,
		CreatedAt: now.UTC().Format(time.RFC3339),
	}
}

// Catalog buffers records and flushes them to timestamped Parquet files.
// It is safe for concurrent use.
type Catalog struct {
	dir string

	mu      sync.Mutex
	records []Record
	seq     int
}

// NewCatalog creates a Catalog writing into dir.
func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// Append buffers rec until the next Flush.
func (c *Catalog) Append(rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

// Pending returns the number of buffered records.
func (c *Catalog) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Flush writes buffered records to catalog_<time>_<seq>.parquet and clears
// the buffer. It returns "" when nothing was buffered.
func (c *Catalog) Flush() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.records) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", fmt.Errorf("creating catalog dir: %w", err)
	}

	c.seq++
	name := fmt.Sprintf("catalog_%s_%03d.parquet", time.Now().UTC().Format("2006-01-02_15-04-05"), c.seq)
	path := filepath.Join(c.dir, name)
	if err := WriteRecords(path, c.records); err != nil {
		return "", err
	}
	c.records = nil
	return path, nil
}

// WriteRecords writes recs to a ZSTD-compressed Parquet file at path.
func WriteRecords(path string, recs []Record) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("creating parquet file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(Record), 4)
	if err != nil {
		return fmt.Errorf("initializing parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_ZSTD

	for _, rec := range recs {
		if err := pw.Write(rec); err != nil {
			return fmt.Errorf("writing parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalizing parquet file: %w", err)
	}
	return nil
}

// ReadRecords reads every record from a catalog file.
func ReadRecords(path string) ([]Record, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening parquet file: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(Record), 4)
	if err != nil {
		return nil, fmt.Errorf("initializing parquet reader: %w", err)
	}
	defer pr.ReadStop()

	recs := make([]Record, int(pr.GetNumRows()))
	if err := pr.Read(&recs); err != nil {
		return nil, fmt.Errorf("reading parquet records: %w", err)
	}
	return recs, nil
}
