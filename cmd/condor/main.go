package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"main/internal/broker"
	"main/internal/broker/paper"
	"main/internal/broker/rest"
	"main/internal/engine"
	"main/internal/journal"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/portfolio"
	"main/pkg/exception"
)

type emptyLogger struct{}

func (emptyLogger) Infof(string, ...interface{})  {}
func (emptyLogger) Debugf(string, ...interface{}) {}
func (emptyLogger) Errorf(string, ...interface{}) {}

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	paperMode := flag.Bool("paper", false, "Force the paper broker regardless of config")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=disable)")
	allocatePath := flag.String("allocate", "", "Strategy file for allocation planning mode (skips trading)")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *paperMode {
		loaded.BrokerMode = "paper"
	}

	if *allocatePath != "" {
		if err := runAllocation(*allocatePath, loaded); err != nil {
			log.Fatalf("allocation failed: %v", err)
		}
		return
	}

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "condor",
			ServerAddress:   *pyroscopeAddr,
			Tags: map[string]string{
				"mode": loaded.BrokerMode,
			},
			Logger: emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, loaded); err != nil {
		if errors.Is(err, exception.ErrEmergencyFault) {
			os.Exit(2)
		}
		if !errors.Is(err, context.Canceled) {
			log.Fatalf("session failed: %v", err)
		}
	}
}

func run(ctx context.Context, loaded ops.Loaded) error {
	market, placer, err := buildBroker(ctx, loaded)
	if err != nil {
		return err
	}

	writer, err := journal.NewWriter(loaded.Journal)
	if err != nil {
		return fmt.Errorf("journal writer: %w", err)
	}

	var pg *journal.PGStore
	if loaded.Postgres != nil {
		pg, err = journal.OpenPGStore(*loaded.Postgres)
		if err != nil {
			return fmt.Errorf("postgres event store: %w", err)
		}
		defer pg.Close()
	}

	metrics := obs.NewMetrics()
	e := engine.New(loaded, engine.Deps{
		Market:    market,
		Placer:    placer,
		Writer:    writer,
		Dashboard: journal.NewDashboard(loaded.DashboardPath),
		PG:        pg,
		Metrics:   metrics,
	})

	logs.Infof("condor: starting session mode=%s lots=%dx%d capital=%.0f",
		loaded.BrokerMode, loaded.NumLots, loaded.LotSize, loaded.Risk.Capital)

	summary, err := e.Run(ctx)

	snap := metrics.Snapshot()
	logs.Infof("condor: session done cycles=%d realized_pnl=%.2f emergency=%v journal_drops=%d cycle_avg=%s",
		summary.Cycles, summary.RealizedPnL, summary.Emergency, snap.JournalDrops, snap.CycleLatency.Avg)
	return err
}

// allocationFile is the planning-mode input: candidate strategies and
// their pairwise correlations.
type allocationFile struct {
	Strategies []struct {
		Name           string  `json:"name"`
		ExpectedReturn float64 `json:"expectedReturn"`
	} `json:"strategies"`
	Correlation [][]float64 `json:"correlation"`
}

func runAllocation(path string, loaded ops.Loaded) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file allocationFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse strategy file: %w", err)
	}

	strategies := make([]portfolio.Strategy, len(file.Strategies))
	for i, s := range file.Strategies {
		strategies[i] = portfolio.Strategy{Name: s.Name, ExpectedReturn: s.ExpectedReturn}
	}

	opt, err := portfolio.NewOptimizer(strategies, file.Correlation, loaded.Portfolio)
	if err != nil {
		return err
	}
	weights, err := opt.Allocate(loaded.TargetReturn)
	if err != nil {
		return err
	}

	for i, w := range weights {
		fmt.Printf("%-24s %6.2f%%\n", strategies[i].Name, w*100)
	}
	return nil
}

func buildBroker(ctx context.Context, loaded ops.Loaded) (broker.MarketData, broker.OrderPlacer, error) {
	switch loaded.BrokerMode {
	case "rest":
		client := rest.NewClient(loaded.Rest, &http.Client{Timeout: 15 * time.Second})
		if loaded.Rest.WsURL != "" {
			feed := rest.NewTickFeed(ctx, loaded.Rest)
			if err := feed.Start(ctx); err != nil {
				return nil, nil, fmt.Errorf("start tick feed: %w", err)
			}
			var stream broker.TickStream = feed
			ticks, _, err := stream.SubscribeTicks(ctx, loaded.Rest.Underlying)
			if err != nil {
				return nil, nil, fmt.Errorf("subscribe ticks: %w", err)
			}
			client.AttachTicks(ticks)
		}
		return client, client, nil
	default:
		expiry := time.Now().AddDate(0, 0, loaded.Paper.ExpiryDays)
		if loaded.Paper.ExpiryDays == 0 {
			expiry = time.Now().AddDate(0, 0, 14)
		}
		sim := paper.NewBroker(paper.Config{
			Underlying:   loaded.Paper.Underlying,
			Spot:         loaded.Paper.Spot,
			StrikeStep:   loaded.Paper.StrikeStep,
			ChainWidth:   loaded.Paper.ChainWidth,
			Vol:          loaded.Paper.Vol,
			RiskFreeRate: loaded.Strikes.RiskFreeRate,
			Expiry:       expiry,
			Seed:         loaded.Paper.Seed,
		})
		return sim, sim, nil
	}
}
