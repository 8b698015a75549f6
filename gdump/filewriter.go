package gdump

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/golang/snappy"
)

const (
	reportExt     = ".json"
	compressedExt = ".json.sz"
)

// FileWriter writes each report as a JSON file in one directory,
// optionally snappy-compressed.
type FileWriter struct {
	dir      string
	compress bool
}

// NewFileWriter creates dir if needed.
func NewFileWriter(dir string, compress bool) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	return &FileWriter{dir: dir, compress: compress}, nil
}

func (w *FileWriter) Dir() string {
	return w.dir
}

// WriteReport writes p to a temporary file and renames it into place,
// so readers never observe a partial report.
func (w *FileWriter) WriteReport(ctx context.Context, p Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext := reportExt
	if w.compress {
		ext = compressedExt
	}
	name := p.Time.UTC().Format("20060102T150405.000") + "-" + p.Kind.String() + "-" + p.ID.String() + ext
	final := filepath.Join(w.dir, name)

	f, err := os.CreateTemp(w.dir, ".report-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary report file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp) // No-op after a successful rename.

	if err := encode(f, p.Report(), w.compress); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close report file: %w", err)
	}

	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("failed to move report into place: %w", err)
	}
	return final, nil
}

func encode(f *os.File, r Report, compress bool) error {
	var out io.Writer = f
	var sw *snappy.Writer
	if compress {
		sw = snappy.NewBufferedWriter(f)
		out = sw
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if sw != nil {
		if err := sw.Close(); err != nil {
			return fmt.Errorf("failed to flush compressed report: %w", err)
		}
	}
	return nil
}

// ReadReport decodes a report written by [FileWriter],
// choosing decompression by file extension.
func ReadReport(path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	var in io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, compressedExt) {
		in = snappy.NewReader(in)
	}

	var r Report
	if err := json.NewDecoder(in).Decode(&r); err != nil {
		return Report{}, fmt.Errorf("failed to decode report %s: %w", path, err)
	}
	return r, nil
}

// ErrNoReports is returned by [LatestReport] for a directory without reports.
var ErrNoReports = errors.New("no reports found")

// LatestReport returns the path of the most recently named report in dir.
// Report file names begin with a UTC timestamp, so name order is time order.
func LatestReport(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read report directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || strings.HasPrefix(n, ".") {
			continue
		}
		if strings.HasSuffix(n, reportExt) || strings.HasSuffix(n, compressedExt) {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return "", ErrNoReports
	}

	slices.Sort(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}
