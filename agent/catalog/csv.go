package catalog

import (
	"context"
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
)

//go:embed data/*.csv
var embeddedData embed.FS

var requiredColumns = []string{"id", "name", "rating", "price_range_low", "price_range_high"}

// CSVSource reads <vertical>.csv files from a file system. A file is parsed
// completely before any provider is returned.
type CSVSource struct {
	fsys fs.FS
}

var _ contractx.CatalogSource = (*CSVSource)(nil)

// NewEmbeddedCSVSource serves the catalogs shipped with the binary.
func NewEmbeddedCSVSource() *CSVSource {
	sub, err := fs.Sub(embeddedData, "data")
	if err != nil {
		panic(err)
	}
	return &CSVSource{fsys: sub}
}

func NewDirCSVSource(dir string) (*CSVSource, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("catalog dir is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog dir %s is not a directory", dir)
	}
	return &CSVSource{fsys: os.DirFS(dir)}, nil
}

func NewFSCSVSource(fsys fs.FS) *CSVSource {
	return &CSVSource{fsys: fsys}
}

func (s *CSVSource) Load(ctx context.Context, vertical string) ([]contractx.Provider, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vertical = strings.TrimSpace(vertical)
	if vertical == "" || strings.ContainsAny(vertical, `/\.`) {
		return nil, fmt.Errorf("%w: invalid vertical %q", contractx.ErrCatalogNotFound, vertical)
	}

	f, err := s.fsys.Open(vertical + ".csv")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", contractx.ErrCatalogNotFound, vertical)
		}
		return nil, fmt.Errorf("open catalog %s: %w", vertical, err)
	}
	defer f.Close()

	providers, err := parseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", vertical, err)
	}
	return providers, nil
}

func parseCSV(r io.Reader) ([]contractx.Provider, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, contractx.ErrCatalogEmpty
		}
		return nil, err
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	field := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var providers []contractx.Provider
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		p := contractx.Provider{
			ID:    field(record, "id"),
			Name:  field(record, "name"),
			Phone: field(record, "phone"),
		}
		if p.Rating, err = parseNumber(field(record, "rating")); err != nil {
			return nil, fmt.Errorf("line %d: rating: %w", line, err)
		}
		if p.PriceRangeLow, err = parseNumber(field(record, "price_range_low")); err != nil {
			return nil, fmt.Errorf("line %d: price_range_low: %w", line, err)
		}
		if p.PriceRangeHigh, err = parseNumber(field(record, "price_range_high")); err != nil {
			return nil, fmt.Errorf("line %d: price_range_high: %w", line, err)
		}
		p.Specialties = splitSpecialties(field(record, "specialties"))
		providers = append(providers, p)
	}
	return providers, nil
}

func parseNumber(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func splitSpecialties(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
