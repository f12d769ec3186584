package market

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/TingdiRen/China-Option-SVIX/internal/logger"
)

const (
	eastmoneyBaseURL = "https://push2.eastmoney.com"

	// utToken is the public token the Eastmoney quote site attaches to
	// every clist request. The endpoint rejects calls without it.
	utToken = "8dec03ba335b81bf4ebdf7b29ec27d15"

	// chainFields is the explicit column selection for option chain rows:
	// code and name, last premium, the feed's valuation columns, expiry,
	// and the underlying's name and last price.
	chainFields = "f1,f2,f3,f12,f13,f14,f298,f299,f249,f300,f330,f331,f332,f333,f334,f335,f336,f301"

	// The endpoint serves browsers; a desktop User-Agent and the quote
	// page Referer keep it from returning empty payloads.
	chainUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"
	chainReferer   = "http://quote.eastmoney.com/"
)

// eastmoneyProvider implements Provider against Eastmoney's push2 quote API.
type eastmoneyProvider struct {
	// Client is the HTTP client used for quote requests.
	Client *http.Client

	// BaseURL is the push2 service root. Tests point it at a fake server.
	BaseURL string

	// PageSize is the number of contracts requested per page.
	PageSize int

	// MaxPages caps pagination; chains for one underlying fit comfortably
	// in a few pages.
	MaxPages int
}

// NewEastmoneyProvider constructs a quote provider with the defaults used
// by the command line driver: 50 rows per page, at most 5 pages.
func NewEastmoneyProvider() *eastmoneyProvider {
	logger.Infof("initializing Eastmoney quote provider")

	return &eastmoneyProvider{
		Client: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				DisableCompression:    false, // must be false to enable gzip auto-decompression
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		BaseURL:  eastmoneyBaseURL,
		PageSize: 50,
		MaxPages: 5,
	}
}

// emNumber tolerates the feed's habit of sending "-" or an empty string
// for numeric fields with no value. Missing values decode as NaN and are
// dropped during preprocessing.
type emNumber float64

func (n *emNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "-" || s == "" || s == "null" {
		*n = emNumber(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("numeric field %q: %w", s, err)
	}
	*n = emNumber(v)
	return nil
}

// emChainResp models the JSONP payload of the clist endpoint. A null data
// object marks the page past the end of the chain.
type emChainResp struct {
	Data *struct {
		Total int `json:"total"`
		Diff  []struct {
			Code       string   `json:"f12"`
			Name       string   `json:"f14"`
			Price      emNumber `json:"f2"`
			ImpliedVol emNumber `json:"f249"`
			TimeValue  emNumber `json:"f298"`
			Intrinsic  emNumber `json:"f299"`
			TheoPrice  emNumber `json:"f300"`
			Expiry     emNumber `json:"f301"`
			Underlying string   `json:"f333"`
			SpotPrice  emNumber `json:"f334"`
		} `json:"diff"`
	} `json:"data"`
}

// OptionChain retrieves every listed contract on the given ETF, walking
// the paginated clist endpoint until a page comes back empty.
func (emProv *eastmoneyProvider) OptionChain(code string) ([]ChainRow, error) {
	logger.Infof("fetching option chain for %s", code)

	out := []ChainRow{}

	for page := 1; page <= emProv.MaxPages; page++ {
		rows, err := emProv.fetchPage(code, page)
		if err != nil {
			return nil, fmt.Errorf("option chain %s page %d: %w", code, page, err)
		}
		if len(rows) == 0 {
			logger.Debugf("page %d empty, chain exhausted", page)
			break
		}
		out = append(out, rows...)
	}

	logger.Infof("received %d contracts for %s", len(out), code)
	return out, nil
}

// fetchPage requests one page of the chain and maps the feed columns onto
// ChainRow. Contracts whose name cannot be decoded are skipped.
func (emProv *eastmoneyProvider) fetchPage(code string, page int) ([]ChainRow, error) {
	u, err := url.Parse(emProv.BaseURL + "/api/qt/clist/get")
	if err != nil {
		return nil, err
	}

	ms := time.Now().UnixMilli()

	query := u.Query()
	query.Set("pn", strconv.Itoa(page))
	query.Set("pz", strconv.Itoa(emProv.PageSize))
	query.Set("po", "1")
	query.Set("np", "1")
	query.Set("fltt", "2")
	query.Set("invt", "2")
	query.Set("fid", "f301")
	query.Set("fs", fmt.Sprintf("m:%s+c:%s", marketID(code), code))
	query.Set("fields", chainFields)
	query.Set("ut", utToken)
	query.Set("cb", fmt.Sprintf("jQuery_callback_%d", ms))
	query.Set("_", strconv.FormatInt(ms, 10))
	u.RawQuery = query.Encode()

	logger.Debugf("chain request URL: %s", u.String())

	req, err := http.NewRequest("GET", u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", chainUserAgent)
	req.Header.Set("Referer", chainReferer)

	resp, err := emProv.processGetRequest(req)
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		logger.Errorf("eastmoney chain API error status=%d", resp.StatusCode)
		return nil, fmt.Errorf("eastmoney returned status %d", resp.StatusCode)
	}

	payload, err := stripJSONP(body)
	if err != nil {
		return nil, err
	}

	var chainResp emChainResp
	if err := json.Unmarshal(payload, &chainResp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if chainResp.Data == nil {
		return nil, nil
	}

	logger.Tracef("page %d: %d contracts", page, len(chainResp.Data.Diff))

	rows := make([]ChainRow, 0, len(chainResp.Data.Diff))
	for _, d := range chainResp.Data.Diff {
		strike, err := StrikeFromName(d.Name)
		if err != nil {
			logger.Debugf("skipping contract %s: %v", d.Code, err)
			continue
		}
		expiry, err := expiryFromFeed(float64(d.Expiry))
		if err != nil {
			logger.Debugf("skipping contract %s: bad expiry: %v", d.Code, err)
			continue
		}

		rows = append(rows, ChainRow{
			Code:           d.Code,
			Name:           d.Name,
			Price:          float64(d.Price),
			ImpliedVol:     float64(d.ImpliedVol),
			TimeValue:      float64(d.TimeValue),
			IntrinsicValue: float64(d.Intrinsic),
			TheoPrice:      float64(d.TheoPrice),
			ExpiryDate:     expiry,
			Underlying:     d.Underlying,
			SpotPrice:      float64(d.SpotPrice),
			Strike:         strike,
		})
	}

	return rows, nil
}

// processGetRequest executes an HTTP GET with rate-limit handling.
//
// Behavior:
//   - Retries on HTTP 429, sleeping until the next minute boundary
//   - Returns immediately on success (<400)
//   - Returns an error for other status codes
func (emProv *eastmoneyProvider) processGetRequest(req *http.Request) (*http.Response, error) {
	for {
		resp, err := emProv.Client.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode < 400 {
			return resp, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()

			now := time.Now()
			sleepDuration := time.Until(
				now.Truncate(time.Minute).Add(time.Minute),
			)

			logger.Infof("rate limit hit, sleeping for %s", sleepDuration)
			time.Sleep(sleepDuration)
			continue
		}

		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
}

// marketID maps an ETF code to its Eastmoney market segment: Shenzhen
// funds (159xxx) trade on market 12, Shanghai funds on market 10.
func marketID(code string) string {
	if strings.HasPrefix(code, "159") {
		return "12"
	}
	return "10"
}

// stripJSONP unwraps a jQuery-callback response down to the JSON payload
// between the first '(' and the last ')'.
func stripJSONP(body []byte) ([]byte, error) {
	start := bytes.IndexByte(body, '(')
	end := bytes.LastIndexByte(body, ')')
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("response is not JSONP: %.80s", body)
	}
	return body[start+1 : end], nil
}

// expiryFromFeed converts the feed's numeric YYYYMMDD expiry into an ISO
// date string.
func expiryFromFeed(v float64) (string, error) {
	t, err := time.Parse("20060102", strconv.FormatInt(int64(v), 10))
	if err != nil {
		return "", err
	}
	return t.Format("2006-01-02"), nil
}
