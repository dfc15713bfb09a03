package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/foundationrisk/soilrisk/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker periodically collects a snapshot and posts alerts for breaches.
// A breach is posted once when it starts and logged when it clears, not
// re-posted on every tick while it persists.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	mu     sync.Mutex
	active map[AlertType]bool
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		active:    make(map[AlertType]bool),
	}
}

// Run checks on every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}

	log := c.logger()
	log.Info("starting coverage checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("coverage checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check runs one collect-and-alert pass and returns every breach found,
// including ones already posted by an earlier pass.
func (c *Checker) Check(ctx context.Context) []Alert {
	log := c.logger()

	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect snapshot", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	fresh, resolved := c.transition(alerts)
	for _, t := range resolved {
		log.Info("monitoring: breach cleared", zap.String("type", string(t)))
	}
	if len(alerts) == 0 {
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	log.Info("monitoring: coverage check complete",
		zap.Float64("soil_coverage", snap.SoilCoverage),
		zap.Int("alerts_active", len(alerts)),
		zap.Int("alerts_new", len(fresh)),
		zap.Int("alerts_sent", sent),
	)
	return alerts
}

// transition records the breaches in alerts as active and reports which are
// new since the last pass and which have cleared.
func (c *Checker) transition(alerts []Alert) (fresh []Alert, resolved []AlertType) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := make(map[AlertType]bool, len(alerts))
	for _, a := range alerts {
		now[a.Type] = true
		if !c.active[a.Type] {
			fresh = append(fresh, a)
		}
	}
	for t := range c.active {
		if !now[t] {
			resolved = append(resolved, t)
		}
	}
	c.active = now
	return fresh, resolved
}

func (c *Checker) logger() *zap.Logger {
	return zap.L().With(zap.String("component", "monitoring.checker"))
}
