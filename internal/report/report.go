// Package report renders run results: the fixed-width stdout table the
// original research workflow used, plus CSV and JSON files per underlying.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/TingdiRen/China-Option-SVIX/internal/engine"
)

// Meta describes one run for the table header and the output files.
type Meta struct {
	Underlying   string  `json:"underlying"`
	CalcDate     string  `json:"calc_date"`
	RiskFreeRate float64 `json:"risk_free_rate"`
}

// Document is the JSON file layout.
type Document struct {
	Meta
	Results []engine.ExpiryResult `json:"results"`
}

// PrintTable writes the per-expiry results as a fixed-width table. Expiries
// that produced no value print a 计算失败 row instead of numbers.
func PrintTable(w io.Writer, meta Meta, results []engine.ExpiryResult) {
	fmt.Fprintf(w, "--- SVIX 计算结果: %s ---\n", meta.Underlying)
	fmt.Fprintf(w, "基于假设：计算日 = %s, 无风险利率 = %.2f%%\n\n", meta.CalcDate, meta.RiskFreeRate*100)

	fmt.Fprintf(w, "%-15s %-15s %-15s %-15s\n", "到期日", "SVIX (%)", "远期价格 (F)", "平值隐波 (%)")
	fmt.Fprintln(w, strings.Repeat("-", 63))

	for _, r := range results {
		if r.Svix == nil || r.ForwardPrice == nil {
			fmt.Fprintf(w, "%-15s %-15s %s\n", r.ExpiryDate, "计算失败", "N/A")
			continue
		}
		atm := "N/A"
		if r.AtmIV != nil {
			atm = strconv.FormatFloat(*r.AtmIV, 'f', 2, 64)
		}
		fmt.Fprintf(w, "%-15s %-15.2f %-15.4f %-15s\n", r.ExpiryDate, *r.Svix, *r.ForwardPrice, atm)
	}

	fmt.Fprintln(w, strings.Repeat("-", 63))
}

// WriteJSON stores the run as svix_<code>.json under outdir.
func WriteJSON(outdir string, meta Meta, results []engine.ExpiryResult) error {
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(Document{Meta: meta, Results: results}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outdir, "svix_"+meta.Underlying+".json"), b, 0644)
}

// WriteCSV stores the run as svix_<code>.csv under outdir.
func WriteCSV(outdir string, meta Meta, results []engine.ExpiryResult) error {
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(outdir, "svix_"+meta.Underlying+".csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	headers := []string{"expiry", "time_to_expiry", "svix", "forward_price", "atm_iv", "status"}
	if err := w.Write(headers); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			r.ExpiryDate,
			strconv.FormatFloat(r.TimeToExpiry, 'f', 6, 64),
			formatOptional(r.Svix, 4),
			formatOptional(r.ForwardPrice, 6),
			formatOptional(r.AtmIV, 4),
			r.Status,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

func formatOptional(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}
