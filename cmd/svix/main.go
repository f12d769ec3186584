package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TingdiRen/China-Option-SVIX/internal/config"
	"github.com/TingdiRen/China-Option-SVIX/internal/engine"
	"github.com/TingdiRen/China-Option-SVIX/internal/logger"
	"github.com/TingdiRen/China-Option-SVIX/internal/market"
	"github.com/TingdiRen/China-Option-SVIX/internal/report"
	"github.com/TingdiRen/China-Option-SVIX/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config, empty for built-in defaults")
	fetch := flag.Bool("fetch", false, "download option chain snapshots into the data dir and exit")
	serve := flag.Bool("serve", false, "serve results over HTTP instead of printing them")
	code := flag.String("code", "", "restrict the run to one configured underlying code")
	verbosity := flag.Int("v", -1, "verbosity: 0 info, 1 debug, 2 trace (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if *verbosity >= 0 {
		logger.SetVerbosity(*verbosity)
	} else {
		logger.SetVerbosity(cfg.Verbosity)
	}

	underlyings, err := selectUnderlyings(cfg, *code)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	if *fetch {
		runFetch(cfg, underlyings)
		return
	}

	prov := newProvider(cfg)
	eng := engine.New(cfg.CalcTime(), cfg.RiskFreeRate)
	eng.Workers = cfg.Workers
	if cfg.Filter != "" {
		f, err := market.NewFilter(cfg.Filter)
		if err != nil {
			logger.Fatalf("filter: %v", err)
		}
		eng.Filter = f
	}

	if *serve {
		runServe(cfg, prov, eng, underlyings)
		return
	}

	runCompute(cfg, prov, eng, underlyings)
}

// selectUnderlyings narrows the configured list to the -code flag when set.
func selectUnderlyings(cfg *config.Config, code string) ([]config.Underlying, error) {
	if code == "" {
		return cfg.Underlyings, nil
	}
	for _, u := range cfg.Underlyings {
		if u.Code == code {
			return []config.Underlying{u}, nil
		}
	}
	return nil, fmt.Errorf("code %s is not among the configured underlyings", code)
}

// newProvider builds the quote source named by the configuration.
func newProvider(cfg *config.Config) market.Provider {
	switch cfg.Source {
	case "csv":
		return market.NewCSVStore(cfg.DataDir)
	case "synthetic":
		synth := market.NewSyntheticProvider(cfg.CalcTime())
		synth.Rate = cfg.RiskFreeRate
		if cfg.Synthetic.Spot > 0 {
			synth.Spot = cfg.Synthetic.Spot
		}
		if cfg.Synthetic.Vol > 0 {
			synth.Vol = cfg.Synthetic.Vol
		}
		if cfg.Synthetic.Rungs > 0 {
			synth.Rungs = cfg.Synthetic.Rungs
		}
		if cfg.Synthetic.Step > 0 {
			synth.Step = cfg.Synthetic.Step
		}
		if len(cfg.Synthetic.ExpiryDays) > 0 {
			synth.ExpiryDays = cfg.Synthetic.ExpiryDays
		}
		return synth
	default:
		return newEastmoney(cfg)
	}
}

func newEastmoney(cfg *config.Config) market.Provider {
	em := market.NewEastmoneyProvider()
	em.PageSize = cfg.Fetch.PageSize
	em.MaxPages = cfg.Fetch.MaxPages
	em.Client.Timeout = time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second
	return em
}

// runFetch pulls one live snapshot per underlying and stores it under the
// data dir, where a later csv-source run picks it up.
func runFetch(cfg *config.Config, underlyings []config.Underlying) {
	em := newEastmoney(cfg)
	store := market.NewCSVStore(cfg.DataDir)

	failed := 0
	for _, u := range underlyings {
		rows, err := em.OptionChain(u.Code)
		if err != nil {
			logger.Errorf("fetch %s (%s): %v", u.Code, u.Name, err)
			failed++
			continue
		}
		if err := store.WriteChain(u.Code, rows); err != nil {
			logger.Errorf("store %s: %v", u.Code, err)
			failed++
			continue
		}
		logger.Infof("fetched %s (%s): %d rows", u.Code, u.Name, len(rows))
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func runServe(cfg *config.Config, prov market.Provider, eng *engine.Engine, underlyings []config.Underlying) {
	names := make(map[string]string, len(underlyings))
	for _, u := range underlyings {
		names[u.Code] = u.Name
	}

	gin.SetMode(gin.ReleaseMode)
	h := server.New(prov, eng, names)
	logger.Infof("serving on %s", cfg.Server.Listen)
	if err := h.Router().Run(cfg.Server.Listen); err != nil {
		logger.Fatalf("server: %v", err)
	}
}

func runCompute(cfg *config.Config, prov market.Provider, eng *engine.Engine, underlyings []config.Underlying) {
	start := time.Now()
	failed := 0
	for _, u := range underlyings {
		rows, err := prov.OptionChain(u.Code)
		if err != nil {
			logger.Errorf("option chain %s (%s): %v", u.Code, u.Name, err)
			failed++
			continue
		}

		results, err := eng.Run(rows)
		if err != nil {
			// A run-level failure is a configuration fault and would
			// repeat for every underlying.
			logger.Fatalf("run %s: %v", u.Code, err)
		}

		meta := report.Meta{Underlying: u.Code, CalcDate: cfg.CalcDate, RiskFreeRate: cfg.RiskFreeRate}
		report.PrintTable(os.Stdout, meta, results)
		fmt.Fprintln(os.Stdout)
		if err := report.WriteCSV(cfg.ReportDir, meta, results); err != nil {
			logger.Errorf("write csv %s: %v", u.Code, err)
		}
		if err := report.WriteJSON(cfg.ReportDir, meta, results); err != nil {
			logger.Errorf("write json %s: %v", u.Code, err)
		}
	}

	logger.Infof("finished %d/%d underlyings in %v, reports in %s",
		len(underlyings)-failed, len(underlyings), time.Since(start), cfg.ReportDir)
	if failed > 0 {
		os.Exit(1)
	}
}
