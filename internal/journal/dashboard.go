package journal

import (
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"main/internal/pricing"
)

// DashboardRow is the latest-state snapshot external monitors poll. It
// is overwritten wholesale every cycle; readers never see a torn
// write.
type DashboardRow struct {
	TsNano        int64          `json:"ts"`
	State         string         `json:"state"`
	Spot          float64        `json:"spot"`
	Straddle      float64        `json:"straddle"`
	AvwapStraddle float64        `json:"avwapStraddle"`
	PnL           float64        `json:"pnl"`
	Regime        string         `json:"regime"`
	Greeks        pricing.Greeks `json:"greeks"`
	CoolOff       bool           `json:"coolOff"`
}

// Dashboard writes the snapshot with a temp-file rename so a crash
// mid-write leaves the previous snapshot intact.
type Dashboard struct {
	path string
}

func NewDashboard(path string) *Dashboard {
	return &Dashboard{path: path}
}

// Write replaces the snapshot atomically.
func (d *Dashboard) Write(row DashboardRow) error {
	payload, err := sonic.ConfigFastest.Marshal(row)
	if err != nil {
		return errors.Wrap(err, "marshal dashboard row")
	}
	payload = append(payload, '\n')

	dir := filepath.Dir(d.path)
	tmp, err := os.CreateTemp(dir, ".dashboard-*")
	if err != nil {
		return errors.Wrap(err, "create temp")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write temp")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp")
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return errors.Wrap(err, "rename into place")
	}
	return nil
}
