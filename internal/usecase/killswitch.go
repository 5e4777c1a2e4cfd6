package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	"TradePilot/pkg/config"
	"TradePilot/pkg/logger"
)

// KillSwitch is the per-session 4-level risk circuit. Evaluation escalates to
// the highest breached rule level and de-escalates only to zero when nothing
// is breached; partial step-downs never happen. Every transition persists
// through the object store and is re-hydrated on session start.
type KillSwitch struct {
	objects domrepo.ObjectStore
	metrics domrepo.Metrics
	log     *logger.Logger
	rules   []config.KillSwitchRule
	path    string

	mu    sync.Mutex
	state models.KillSwitchState
}

func NewKillSwitch(objects domrepo.ObjectStore, metrics domrepo.Metrics, log *logger.Logger, rules []config.KillSwitchRule, sessionID string) *KillSwitch {
	return &KillSwitch{
		objects: objects,
		metrics: metrics,
		log:     log.Component("kill_switch"),
		rules:   rules,
		path:    killSwitchPath(sessionID),
	}
}

func killSwitchPath(sessionID string) string {
	return "killswitch/" + sessionID + ".json"
}

// Level is the synchronized accessor every task reads the circuit through.
func (k *KillSwitch) Level() models.KillSwitchLevel {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state.Level
}

// State returns a copy of the full circuit state.
func (k *KillSwitch) State() models.KillSwitchState {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// Rehydrate loads the persisted state. No stored state means a clean circuit.
// A stale high level is safe: the next evaluation against clean metrics
// de-escalates it to zero.
func (k *KillSwitch) Rehydrate(ctx context.Context) error {
	data, err := k.objects.Get(ctx, k.path)
	if err != nil {
		if errors.Is(err, domrepo.ErrObjectNotFound) {
			return nil
		}
		return fmt.Errorf("load kill switch state: %w", err)
	}

	var state models.KillSwitchState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode kill switch state: %w", err)
	}

	k.mu.Lock()
	k.state = state
	k.mu.Unlock()

	k.metrics.SetKillSwitchLevel(int(state.Level))
	if state.Level > models.KillSwitchNormal {
		k.log.Warn("kill switch re-hydrated above normal",
			logger.String("level", state.Level.String()),
			logger.String("reason", state.Reason))
	}
	return nil
}

// Evaluate applies the rule table to the metrics and returns the resulting
// state plus whether it changed. The transition, persistence and metric
// update happen under one lock, so a level-3 trip is observed exactly once.
func (k *KillSwitch) Evaluate(ctx context.Context, m models.RiskMetrics) (models.KillSwitchState, bool) {
	level, reason := k.breachedLevel(m)
	now := time.Now()

	k.mu.Lock()
	defer k.mu.Unlock()

	cur := k.state.Level
	next := cur
	switch {
	case level > cur:
		next = level
	case level == models.KillSwitchNormal && cur != models.KillSwitchNormal:
		next = models.KillSwitchNormal
		reason = ""
	default:
		return k.state, false
	}

	k.state.Level = next
	k.state.Reason = reason
	k.state.Active = next > models.KillSwitchNormal
	k.state.UpdatedAt = now
	if next > cur {
		k.state.TriggeredAt = now
	}

	k.persistLocked(ctx)
	k.metrics.SetKillSwitchLevel(int(next))

	if next > cur {
		k.log.Warn("kill switch escalated",
			logger.String("from", cur.String()),
			logger.String("to", next.String()),
			logger.String("reason", reason))
	} else {
		k.log.Info("kill switch reset",
			logger.String("from", cur.String()))
	}
	return k.state, true
}

// breachedLevel returns the highest rule level the metrics breach and a
// human-readable account of every breached rule at that level.
func (k *KillSwitch) breachedLevel(m models.RiskMetrics) (models.KillSwitchLevel, string) {
	highest := models.KillSwitchNormal
	var reasons []string
	for _, r := range k.rules {
		value, ok := conditionValue(r.Condition, m)
		if !ok || value <= r.Threshold {
			continue
		}
		level := models.KillSwitchLevel(r.Level)
		if level > highest {
			highest = level
			reasons = reasons[:0]
		}
		if level == highest {
			reasons = append(reasons, fmt.Sprintf("%s %.4f > %.4f", r.Condition, value, r.Threshold))
		}
	}
	return highest, strings.Join(reasons, "; ")
}

func conditionValue(condition string, m models.RiskMetrics) (float64, bool) {
	switch condition {
	case "drawdown":
		return m.Drawdown, true
	case "daily_loss":
		if m.DailyPnL >= 0 || m.PortfolioValue <= 0 {
			return 0, true
		}
		return -m.DailyPnL / m.PortfolioValue, true
	case "exposure":
		return m.Exposure, true
	case "utilization":
		return m.Utilization, true
	default:
		return 0, false
	}
}

func (k *KillSwitch) persistLocked(ctx context.Context) {
	data, err := json.Marshal(k.state)
	if err != nil {
		k.metrics.RecordError("persistence")
		k.log.Error("kill switch state marshal failed", logger.Error(err))
		return
	}
	if err := k.objects.Put(ctx, k.path, data, "application/json", map[string]string{
		"level": k.state.Level.String(),
	}); err != nil {
		k.metrics.RecordError("persistence")
		k.log.Error("kill switch state write failed", logger.Error(err))
	}
}
