package market

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func sampleRows() []ChainRow {
	return []ChainRow{
		{
			Code: "10009901", Name: "50ETF购8月2750",
			Price: 0.0573, ImpliedVol: 18.53, TimeValue: 0.0573,
			IntrinsicValue: 0, TheoPrice: 0.0565,
			ExpiryDate: "2025-08-27", Underlying: "上证50ETF",
			SpotPrice: 2.748, Strike: 2.750,
		},
		{
			Code: "10009902", Name: "50ETF沽8月2750",
			Price: 0.0601, ImpliedVol: 19.02, TimeValue: 0.0601,
			IntrinsicValue: 0.002, TheoPrice: 0.0611,
			ExpiryDate: "2025-08-27", Underlying: "上证50ETF",
			SpotPrice: 2.748, Strike: 2.750,
		},
	}
}

func TestCSVStoreRoundTrip(t *testing.T) {
	store := NewCSVStore(filepath.Join(t.TempDir(), "data"))

	want := sampleRows()
	if err := store.WriteChain("510050", want); err != nil {
		t.Fatalf("WriteChain returned error: %v", err)
	}

	// The snapshot lands under the feed-compatible file name.
	if _, err := os.Stat(filepath.Join(store.Dir, "etf_510050_data.csv")); err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}

	got, err := store.OptionChain("510050")
	if err != nil {
		t.Fatalf("OptionChain returned error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestCSVStoreHeader(t *testing.T) {
	store := NewCSVStore(t.TempDir())
	if err := store.WriteChain("510300", sampleRows()); err != nil {
		t.Fatalf("WriteChain returned error: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(store.Dir, "etf_510300_data.csv"))
	if err != nil {
		t.Fatal(err)
	}
	first := strings.SplitN(string(raw), "\n", 2)[0]
	want := strings.Join(csvColumns, ",")
	if first != want {
		t.Errorf("header = %q, want %q", first, want)
	}
}

func TestCSVStoreColumnOrderIndependent(t *testing.T) {
	dir := t.TempDir()
	// Same fields, shuffled column order plus an extra column.
	content := "执行价,期权代码,期权名称,期权最新价,隐含波动率,时间价值,内在价值,理论价值,到期日,标的名称,ETF最新价,备注\n" +
		"2.75,10009901,50ETF购8月2750,0.0573,18.53,0.0573,0,0.0565,2025-08-27,上证50ETF,2.748,x\n"
	if err := os.WriteFile(filepath.Join(dir, "etf_510050_data.csv"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rows, err := NewCSVStore(dir).OptionChain("510050")
	if err != nil {
		t.Fatalf("OptionChain returned error: %v", err)
	}
	if len(rows) != 1 || rows[0].Strike != 2.75 || rows[0].Code != "10009901" {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestCSVStoreMissingColumn(t *testing.T) {
	dir := t.TempDir()
	content := "期权代码,期权名称\n10009901,50ETF购8月2750\n"
	if err := os.WriteFile(filepath.Join(dir, "etf_510050_data.csv"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewCSVStore(dir).OptionChain("510050")
	if err == nil || !strings.Contains(err.Error(), "missing column") {
		t.Fatalf("err = %v, want missing column error", err)
	}
}

func TestCSVStoreMissingFile(t *testing.T) {
	if _, err := NewCSVStore(t.TempDir()).OptionChain("510050"); err == nil {
		t.Fatal("expected error for absent snapshot")
	}
}

func TestParseCSVFloatMarkers(t *testing.T) {
	for _, marker := range []string{"", "-", "N/A"} {
		v, err := parseCSVFloat(marker)
		if err != nil {
			t.Fatalf("parseCSVFloat(%q) returned error: %v", marker, err)
		}
		if !math.IsNaN(v) {
			t.Errorf("parseCSVFloat(%q) = %v, want NaN", marker, v)
		}
	}

	if _, err := parseCSVFloat("abc"); err == nil {
		t.Error("expected error for non-numeric value")
	}
}
