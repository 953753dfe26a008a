// Package ops loads and resolves the deployment configuration: the
// JSON file layout (FileConfig) is validated and converted into typed
// runtime settings (Loaded).
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"main/internal/broker/rest"
	"main/internal/execution"
	"main/internal/journal"
	"main/internal/portfolio"
	"main/internal/risk"
	"main/internal/strikes"
)

// FileConfig mirrors the JSON config layout. Durations are plain
// numbers in the unit named by the field.
type FileConfig struct {
	Trading   TradingConfig   `json:"trading"`
	Risk      RiskConfig      `json:"risk"`
	Execution ExecutionConfig `json:"execution"`
	Strikes   StrikesConfig   `json:"strikes"`
	Portfolio PortfolioConfig `json:"portfolio"`
	Journal   JournalConfig   `json:"journal"`
	Broker    BrokerConfig    `json:"broker"`
}

// TradingConfig describes the session schedule and position sizing.
type TradingConfig struct {
	LotSize               int     `json:"lotSize"`
	NumLots               int     `json:"numLots"`
	AnchorTime            string  `json:"anchorTime"`
	SessionStart          string  `json:"sessionStart"`
	SessionEnd            string  `json:"sessionEnd"`
	DataUpdateIntervalSec float64 `json:"dataUpdateIntervalSec"`
	Timezone              string  `json:"timezone"`
}

// RiskConfig describes capital-based thresholds.
type RiskConfig struct {
	Capital     float64 `json:"capital"`
	StopLossPct float64 `json:"stopLossPct"`
	TargetPct   float64 `json:"targetPct"`
	CoolOffSec  int     `json:"coolOffSec"`
}

// ExecutionConfig bounds the order retry loop.
type ExecutionConfig struct {
	MaxRetries       int `json:"maxRetries"`
	RetryBackoffMs   int `json:"retryBackoffMs"`
	AttemptTimeoutMs int `json:"attemptTimeoutMs"`
}

// StrikesConfig tunes selection pricing and the regime mapping.
type StrikesConfig struct {
	RiskFreeRate  float64        `json:"riskFreeRate"`
	DefaultVol    float64        `json:"defaultVol"`
	RegimeLowVol  float64        `json:"regimeLowVol"`
	RegimeHighVol float64        `json:"regimeHighVol"`
	Targets       *TargetsConfig `json:"targets"`
}

// TargetsConfig overrides the per-regime delta targets.
type TargetsConfig struct {
	Low    TargetPair `json:"low"`
	Medium TargetPair `json:"medium"`
	High   TargetPair `json:"high"`
}

// TargetPair is one (short, long) delta-target entry.
type TargetPair struct {
	Short float64 `json:"short"`
	Long  float64 `json:"long"`
}

// PortfolioConfig tunes the allocation optimizer.
type PortfolioConfig struct {
	RiskAversion float64 `json:"riskAversion"`
	BaseVol      float64 `json:"baseVol"`
	MaxWeight    float64 `json:"maxWeight"`
	TargetReturn float64 `json:"targetReturn"`
}

// JournalConfig describes event persistence.
type JournalConfig struct {
	Dir           string            `json:"dir"`
	DashboardPath string            `json:"dashboardPath"`
	Postgres      *journal.PGOption `json:"postgres"`
}

// BrokerConfig selects and configures the broker backend.
type BrokerConfig struct {
	Mode  string            `json:"mode"`
	Rest  rest.Config       `json:"rest"`
	Paper PaperBrokerConfig `json:"paper"`
}

// PaperBrokerConfig shapes the in-process simulator.
type PaperBrokerConfig struct {
	Underlying string  `json:"underlying"`
	Spot       float64 `json:"spot"`
	StrikeStep float64 `json:"strikeStep"`
	ChainWidth int     `json:"chainWidth"`
	Vol        float64 `json:"vol"`
	ExpiryDays int     `json:"expiryDays"`
	Seed       int64   `json:"seed"`
}

// TimeOfDay is a wall-clock minute within the trading day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// At anchors the time-of-day onto a calendar date.
func (t TimeOfDay) At(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour, t.Minute, 0, 0, loc)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	LotSize            int
	NumLots            int
	Anchor             TimeOfDay
	SessionStart       TimeOfDay
	SessionEnd         TimeOfDay
	DataUpdateInterval time.Duration
	Location           *time.Location

	Risk         risk.Config
	Execution    execution.Config
	Strikes      strikes.Config
	Regime       strikes.Thresholds
	Portfolio    portfolio.OptimizerConfig
	TargetReturn float64

	Journal       journal.Config
	DashboardPath string
	Postgres      *journal.PGOption

	BrokerMode string
	Rest       rest.Config
	Paper      PaperBrokerConfig
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Resolve validates the file layout and builds runtime settings.
func Resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Trading.LotSize <= 0 {
		return Loaded{}, fmt.Errorf("trading.lotSize must be > 0")
	}
	if cfg.Trading.NumLots <= 0 {
		return Loaded{}, fmt.Errorf("trading.numLots must be > 0")
	}
	if cfg.Risk.Capital <= 0 {
		return Loaded{}, fmt.Errorf("risk.capital must be > 0")
	}
	if cfg.Risk.StopLossPct < 0 || cfg.Risk.TargetPct < 0 {
		return Loaded{}, fmt.Errorf("risk percentages must be >= 0")
	}
	if cfg.Strikes.DefaultVol <= 0 {
		return Loaded{}, fmt.Errorf("strikes.defaultVol must be > 0")
	}

	loc := time.Local
	if cfg.Trading.Timezone != "" {
		l, err := time.LoadLocation(cfg.Trading.Timezone)
		if err != nil {
			return Loaded{}, fmt.Errorf("trading.timezone: %w", err)
		}
		loc = l
	}

	anchor, err := parseTimeOfDay(cfg.Trading.AnchorTime)
	if err != nil {
		return Loaded{}, fmt.Errorf("trading.anchorTime: %w", err)
	}
	start, err := parseTimeOfDay(cfg.Trading.SessionStart)
	if err != nil {
		return Loaded{}, fmt.Errorf("trading.sessionStart: %w", err)
	}
	end, err := parseTimeOfDay(cfg.Trading.SessionEnd)
	if err != nil {
		return Loaded{}, fmt.Errorf("trading.sessionEnd: %w", err)
	}
	if start.Hour*60+start.Minute >= end.Hour*60+end.Minute {
		return Loaded{}, fmt.Errorf("trading session must start before it ends")
	}

	interval := time.Duration(cfg.Trading.DataUpdateIntervalSec * float64(time.Second))
	if interval <= 0 {
		interval = time.Second
	}

	regimeLow, regimeHigh := cfg.Strikes.RegimeLowVol, cfg.Strikes.RegimeHighVol
	if regimeLow == 0 && regimeHigh == 0 {
		regimeLow, regimeHigh = 0.15, 0.30
	}
	if regimeLow >= regimeHigh {
		return Loaded{}, fmt.Errorf("strikes.regimeLowVol must be below regimeHighVol")
	}

	targets := strikes.DefaultTargets()
	if cfg.Strikes.Targets != nil {
		targets = strikes.TargetTable{
			Low:    strikes.Targets{Short: cfg.Strikes.Targets.Low.Short, Long: cfg.Strikes.Targets.Low.Long},
			Medium: strikes.Targets{Short: cfg.Strikes.Targets.Medium.Short, Long: cfg.Strikes.Targets.Medium.Long},
			High:   strikes.Targets{Short: cfg.Strikes.Targets.High.Short, Long: cfg.Strikes.Targets.High.Long},
		}
	}

	mode := cfg.Broker.Mode
	switch mode {
	case "":
		mode = "paper"
	case "paper", "rest":
	default:
		return Loaded{}, fmt.Errorf("broker.mode must be paper or rest, got %q", mode)
	}
	if mode == "rest" && cfg.Broker.Rest.BaseURL == "" {
		return Loaded{}, fmt.Errorf("broker.rest.baseUrl is required in rest mode")
	}

	journalCfg := journal.DefaultConfig(cfg.Journal.Dir)
	if journalCfg.Dir == "" {
		journalCfg.Dir = "journal"
	}
	dashboardPath := cfg.Journal.DashboardPath
	if dashboardPath == "" {
		dashboardPath = "dashboard.json"
	}

	return Loaded{
		LotSize:            cfg.Trading.LotSize,
		NumLots:            cfg.Trading.NumLots,
		Anchor:             anchor,
		SessionStart:       start,
		SessionEnd:         end,
		DataUpdateInterval: interval,
		Location:           loc,

		Risk: risk.Config{
			Capital:     cfg.Risk.Capital,
			StopLossPct: cfg.Risk.StopLossPct,
			TargetPct:   cfg.Risk.TargetPct,
			CoolOff:     time.Duration(cfg.Risk.CoolOffSec) * time.Second,
		},
		Execution: execution.Config{
			MaxRetries:     cfg.Execution.MaxRetries,
			RetryBackoff:   time.Duration(cfg.Execution.RetryBackoffMs) * time.Millisecond,
			AttemptTimeout: time.Duration(cfg.Execution.AttemptTimeoutMs) * time.Millisecond,
		},
		Strikes: strikes.Config{
			RiskFreeRate: cfg.Strikes.RiskFreeRate,
			DefaultVol:   cfg.Strikes.DefaultVol,
			Targets:      targets,
		},
		Regime: strikes.Thresholds{Low: regimeLow, High: regimeHigh},
		Portfolio: portfolio.OptimizerConfig{
			RiskAversion: cfg.Portfolio.RiskAversion,
			BaseVol:      cfg.Portfolio.BaseVol,
			MaxWeight:    cfg.Portfolio.MaxWeight,
		},
		TargetReturn: cfg.Portfolio.TargetReturn,

		Journal:       journalCfg,
		DashboardPath: dashboardPath,
		Postgres:      cfg.Journal.Postgres,

		BrokerMode: mode,
		Rest:       cfg.Broker.Rest,
		Paper:      cfg.Broker.Paper,
	}, nil
}

func parseTimeOfDay(raw string) (TimeOfDay, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("want HH:MM, got %q", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("want HH:MM, got %q", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("want HH:MM, got %q", raw)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("out of range: %q", raw)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}
