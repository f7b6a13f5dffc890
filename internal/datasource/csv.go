package datasource

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

// Accepted layouts for the time column.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// LoadCSVFile reads one bar file. The header must name at least
// time, open, high, low, close, volume; an optional symbol column
// overrides the symbol argument. Rows keep file order and are sorted by
// the data source on insert.
func LoadCSVFile(path string, symbol string) ([]types.Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataNotFound, err, "failed to open bar file %s", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataParseFailed, err, "failed to read header of %s", path)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}

	for _, required := range []string{"time", "open", "high", "low", "close", "volume"} {
		if _, ok := col[required]; !ok {
			return nil, errors.Newf(errors.ErrCodeDataParseFailed, "bar file %s is missing column %q", path, required)
		}
	}

	var bars []types.Bar

	line := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}

		line++

		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeDataParseFailed, err, "failed to read %s line %d", path, line)
		}

		bar, err := parseBarRecord(record, col, symbol)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeDataParseFailed, err, "invalid bar in %s line %d", path, line)
		}

		bars = append(bars, bar)
	}

	return bars, nil
}

// LoadCSVDir loads every *.csv file in dir, deriving each file's symbol
// from its base name (AAPL.csv -> AAPL).
func LoadCSVDir(dir string) ([]types.Bar, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataNotFound, "failed to list bar files", err)
	}

	if len(paths) == 0 {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "no bar files in %s", dir)
	}

	var bars []types.Bar

	for _, path := range paths {
		symbol := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

		fileBars, err := LoadCSVFile(path, symbol)
		if err != nil {
			return nil, err
		}

		bars = append(bars, fileBars...)
	}

	return bars, nil
}

func parseBarRecord(record []string, col map[string]int, symbol string) (types.Bar, error) {
	field := func(name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(record) {
			return ""
		}

		return strings.TrimSpace(record[idx])
	}

	t, err := parseBarTime(field("time"))
	if err != nil {
		return types.Bar{}, err
	}

	if s := field("symbol"); s != "" {
		symbol = s
	}

	bar := types.Bar{
		Time:   t,
		Symbol: symbol,
	}

	for name, dst := range map[string]*float64{
		"open":   &bar.Open,
		"high":   &bar.High,
		"low":    &bar.Low,
		"close":  &bar.Close,
		"volume": &bar.Volume,
	} {
		value, err := strconv.ParseFloat(field(name), 64)
		if err != nil {
			return types.Bar{}, errors.Newf(errors.ErrCodeDataParseFailed, "column %q is not numeric: %q", name, field(name))
		}

		*dst = value
	}

	return bar, nil
}

func parseBarTime(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, errors.Newf(errors.ErrCodeDataParseFailed, "unrecognized time %q", value)
}
