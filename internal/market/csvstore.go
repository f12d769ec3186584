package market

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/TingdiRen/China-Option-SVIX/internal/logger"
)

// csvColumns is the on-disk column order. The headers keep the upstream
// feed's Chinese field names so snapshot files interoperate with existing
// notebooks and spreadsheets built around them.
var csvColumns = []string{
	"期权代码",
	"期权名称",
	"期权最新价",
	"隐含波动率",
	"时间价值",
	"内在价值",
	"理论价值",
	"到期日",
	"标的名称",
	"ETF最新价",
	"执行价",
}

// CSVStore reads and writes chain snapshots under a data directory, one
// file per underlying, named etf_<code>_data.csv.
type CSVStore struct {
	Dir string
}

// NewCSVStore convenience constructor.
func NewCSVStore(dir string) *CSVStore {
	return &CSVStore{Dir: dir}
}

func (store *CSVStore) path(code string) string {
	return filepath.Join(store.Dir, fmt.Sprintf("etf_%s_data.csv", code))
}

// OptionChain loads the stored snapshot for the given underlying. Columns
// are resolved by header name, so files with reordered or extra columns
// still load.
func (store *CSVStore) OptionChain(code string) ([]ChainRow, error) {
	name := store.path(code)

	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty file", name)
	}

	col := map[string]int{}
	for i, h := range records[0] {
		col[h] = i
	}
	for _, h := range csvColumns {
		if _, ok := col[h]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", name, h)
		}
	}

	rows := make([]ChainRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		row := ChainRow{
			Code:       rec[col["期权代码"]],
			Name:       rec[col["期权名称"]],
			ExpiryDate: rec[col["到期日"]],
			Underlying: rec[col["标的名称"]],
		}

		var convErr error
		num := func(header string) float64 {
			v, err := parseCSVFloat(rec[col[header]])
			if err != nil && convErr == nil {
				convErr = fmt.Errorf("row %d column %q: %w", i+2, header, err)
			}
			return v
		}
		row.Price = num("期权最新价")
		row.ImpliedVol = num("隐含波动率")
		row.TimeValue = num("时间价值")
		row.IntrinsicValue = num("内在价值")
		row.TheoPrice = num("理论价值")
		row.SpotPrice = num("ETF最新价")
		row.Strike = num("执行价")
		if convErr != nil {
			return nil, fmt.Errorf("%s: %w", name, convErr)
		}

		rows = append(rows, row)
	}

	logger.Debugf("loaded %d contracts for %s from %s", len(rows), code, name)
	return rows, nil
}

// WriteChain stores a snapshot for the given underlying, creating the data
// directory if needed. An existing file is overwritten.
func (store *CSVStore) WriteChain(code string, rows []ChainRow) error {
	if err := os.MkdirAll(store.Dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	name := store.path(code)
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvColumns); err != nil {
		f.Close()
		return err
	}
	for _, row := range rows {
		rec := []string{
			row.Code,
			row.Name,
			formatCSVFloat(row.Price),
			formatCSVFloat(row.ImpliedVol),
			formatCSVFloat(row.TimeValue),
			formatCSVFloat(row.IntrinsicValue),
			formatCSVFloat(row.TheoPrice),
			row.ExpiryDate,
			row.Underlying,
			formatCSVFloat(row.SpotPrice),
			formatCSVFloat(row.Strike),
		}
		if err := w.Write(rec); err != nil {
			f.Close()
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	logger.Infof("wrote %d contracts for %s to %s", len(rows), code, name)
	return nil
}

// parseCSVFloat maps the feed's empty markers onto NaN instead of failing
// the whole file.
func parseCSVFloat(s string) (float64, error) {
	if s == "" || s == "-" || s == "N/A" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func formatCSVFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
