package market

import (
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const chainPage1 = `jQuery_callback_1700000000000({"rc":0,"rt":6,"svr":181669437,"lt":1,"full":1,
"data":{"total":3,"diff":[
{"f1":2,"f2":0.0573,"f3":12.55,"f12":"10009901","f13":10,"f14":"50ETF购8月2750",
 "f249":18.53,"f298":0.0573,"f299":0.0,"f300":0.0565,"f301":20250827,
 "f333":"上证50ETF","f334":2.748},
{"f1":2,"f2":0.0601,"f3":-3.21,"f12":"10009902","f13":10,"f14":"50ETF沽8月2750",
 "f249":19.02,"f298":0.0601,"f299":0.002,"f300":0.0611,"f301":20250827,
 "f333":"上证50ETF","f334":2.748},
{"f1":2,"f2":"-","f3":0,"f12":"10009903","f13":10,"f14":"50ETF购9月2800",
 "f249":17.8,"f298":0.041,"f299":0.0,"f300":0.0402,"f301":20250924,
 "f333":"上证50ETF","f334":2.748}
]}});`

const chainPageEmpty = `jQuery_callback_1700000000001({"rc":0,"rt":6,"svr":181669437,"lt":1,"full":1,"data":null});`

func TestEastmoneyOptionChain(t *testing.T) {
	callCount := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++

		q := r.URL.Query()
		if got := q.Get("ut"); got != utToken {
			t.Errorf("ut = %q, want %q", got, utToken)
		}
		if got := q.Get("fs"); got != "m:10+c:510050" {
			t.Errorf("fs = %q, want m:10+c:510050", got)
		}
		if got := q.Get("fields"); got != chainFields {
			t.Errorf("fields = %q, want the chain field list", got)
		}
		if got := q.Get("fid"); got != "f301" {
			t.Errorf("fid = %q, want f301", got)
		}
		if got := r.Header.Get("Referer"); got != chainReferer {
			t.Errorf("Referer = %q, want %q", got, chainReferer)
		}
		if got := r.Header.Get("User-Agent"); got != chainUserAgent {
			t.Errorf("User-Agent = %q, want the browser agent", got)
		}

		if q.Get("pn") == "1" {
			w.Write([]byte(chainPage1))
			return
		}
		w.Write([]byte(chainPageEmpty))
	}))
	defer srv.Close()

	prov := &eastmoneyProvider{
		Client:   srv.Client(),
		BaseURL:  srv.URL, // IMPORTANT
		PageSize: 50,
		MaxPages: 5,
	}

	rows, err := prov.OptionChain("510050")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if callCount != 2 {
		t.Errorf("expected 2 requests (data page + empty page), got %d", callCount)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 contracts, got %d", len(rows))
	}

	first := rows[0]
	if first.Code != "10009901" || first.Name != "50ETF购8月2750" {
		t.Errorf("unexpected first contract: %+v", first)
	}
	if first.Price != 0.0573 {
		t.Errorf("price = %v, want 0.0573", first.Price)
	}
	if first.ImpliedVol != 18.53 {
		t.Errorf("implied vol = %v, want 18.53", first.ImpliedVol)
	}
	if first.ExpiryDate != "2025-08-27" {
		t.Errorf("expiry = %q, want 2025-08-27", first.ExpiryDate)
	}
	if first.SpotPrice != 2.748 {
		t.Errorf("spot = %v, want 2.748", first.SpotPrice)
	}
	if first.Strike != 2.750 {
		t.Errorf("strike = %v, want 2.750", first.Strike)
	}
	if first.Underlying != "上证50ETF" {
		t.Errorf("underlying = %q", first.Underlying)
	}

	// The third contract carries "-" for its premium; it must survive the
	// decode as NaN rather than fail the page.
	if !math.IsNaN(rows[2].Price) {
		t.Errorf("dash premium decoded as %v, want NaN", rows[2].Price)
	}
}

func TestEastmoneyShenzhenMarketSegment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("fs"); got != "m:12+c:159919" {
			t.Errorf("fs = %q, want m:12+c:159919", got)
		}
		w.Write([]byte(chainPageEmpty))
	}))
	defer srv.Close()

	prov := &eastmoneyProvider{
		Client:   srv.Client(),
		BaseURL:  srv.URL,
		PageSize: 50,
		MaxPages: 5,
	}

	rows, err := prov.OptionChain("159919")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected empty chain, got %d rows", len(rows))
	}
}

func TestEastmoneyHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"internal error"}`))
	}))
	defer srv.Close()

	prov := &eastmoneyProvider{
		Client:   srv.Client(),
		BaseURL:  srv.URL,
		PageSize: 50,
		MaxPages: 5,
	}

	if _, err := prov.OptionChain("510050"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

// closeRecorder is a response body that remembers whether Close was called.
type closeRecorder struct {
	io.Reader
	closed bool
}

func (cr *closeRecorder) Close() error {
	cr.closed = true
	return nil
}

// cannedStatus serves the same status and body for every request.
type cannedStatus struct {
	status int
	body   *closeRecorder
}

func (ct *cannedStatus) RoundTrip(*http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: ct.status,
		Header:     make(http.Header),
		Body:       ct.body,
	}, nil
}

func TestEastmoneyErrorStatusClosesBody(t *testing.T) {
	body := &closeRecorder{Reader: strings.NewReader(`{"message":"internal error"}`)}
	prov := &eastmoneyProvider{
		Client: &http.Client{
			Transport: &cannedStatus{status: http.StatusInternalServerError, body: body},
		},
		BaseURL:  "http://feed.invalid",
		PageSize: 50,
		MaxPages: 5,
	}

	if _, err := prov.OptionChain("510050"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if !body.closed {
		t.Error("response body left open on the error status path")
	}
}

func TestEastmoneySkipsUndecodableContracts(t *testing.T) {
	page := `cb({"data":{"total":2,"diff":[
{"f2":0.05,"f12":"10009904","f14":"odd","f249":10,"f298":0,"f299":0,"f300":0,"f301":20250827,"f333":"x","f334":2.7},
{"f2":0.06,"f12":"10009905","f14":"50ETF购8月2800","f249":11,"f298":0,"f299":0,"f300":0,"f301":20250827,"f333":"x","f334":2.7}
]}});`

	callCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount == 1 {
			w.Write([]byte(page))
			return
		}
		w.Write([]byte(chainPageEmpty))
	}))
	defer srv.Close()

	prov := &eastmoneyProvider{
		Client:   srv.Client(),
		BaseURL:  srv.URL,
		PageSize: 50,
		MaxPages: 5,
	}

	rows, err := prov.OptionChain("510050")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected the undecodable contract to be dropped, got %d rows", len(rows))
	}
	if rows[0].Code != "10009905" {
		t.Errorf("kept the wrong contract: %+v", rows[0])
	}
}

func TestStripJSONP(t *testing.T) {
	got, err := stripJSONP([]byte(`jQuery_callback_17({"a":1});`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("payload = %q", got)
	}

	if _, err := stripJSONP([]byte(`{"a":1}`)); err == nil {
		t.Error("expected error for a body without a callback wrapper")
	}
}

func TestMarketID(t *testing.T) {
	cases := map[string]string{
		"510050": "10",
		"510300": "10",
		"159919": "12",
		"159915": "12",
	}
	for code, want := range cases {
		if got := marketID(code); got != want {
			t.Errorf("marketID(%s) = %s, want %s", code, got, want)
		}
	}
}
