package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	domsvc "TradePilot/internal/domain/service"
	"TradePilot/internal/services/sentiment"
	"TradePilot/pkg/config"
	"TradePilot/pkg/logger"
)

// ErrSessionState reports a lifecycle call that is invalid for the session's
// current state.
var ErrSessionState = errors.New("invalid session state")

// OrchestratorDeps bundles the collaborators shared across sessions. The
// per-session pieces (history, risk engine, kill switch) are built inside
// NewOrchestrator.
type OrchestratorDeps struct {
	Config      *config.Config
	Feed        domsvc.MarketFeed
	Executor    domsvc.OrderExecutor
	Predictions *PredictionService
	Sentiment   *sentiment.Analyzer
	Ensemble    *EnsembleEngine
	Performance *PerformanceTracker
	Outcomes    *OutcomeProcessor
	Collector   *SampleCollector
	Samples     domrepo.SampleStore
	Objects     domrepo.ObjectStore
	Metrics     domrepo.Metrics
	Log         *logger.Logger
}

// livePosition pairs an open position with the decision that opened it.
// stopDistance freezes the initial stop offset for trailing updates.
type livePosition struct {
	pos          models.Position
	decision     *models.EnsembleDecision
	stopDistance float64
}

// Orchestrator drives one trading session: the feed consumer plus the four
// periodic tasks, sharing session state under one mutex. Lifecycle is
// STOPPED -> INITIALIZING -> RUNNING -> (STOPPED | EMERGENCY_SHUTDOWN),
// with emergency shutdown settling in STOPPED once positions are closed.
type Orchestrator struct {
	deps    OrchestratorDeps
	cfg     *config.Config
	log     *logger.Logger
	history *MarketHistory
	risk    *RiskEngine
	kill    *KillSwitch

	mu        sync.RWMutex
	session   models.Session
	positions map[string]*livePosition
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewOrchestrator(session models.Session, deps OrchestratorDeps) *Orchestrator {
	cfg := deps.Config
	log := deps.Log.Component("orchestrator")
	session.State = models.StateStopped
	return &Orchestrator{
		deps:      deps,
		cfg:       cfg,
		log:       log,
		history:   NewMarketHistory(cfg.Market.HistorySize),
		risk:      NewRiskEngine(cfg, deps.Log),
		kill:      NewKillSwitch(deps.Objects, deps.Metrics, deps.Log, cfg.Risk.KillSwitchRules, session.ID),
		session:   session,
		positions: make(map[string]*livePosition),
	}
}

// Start moves the session through INITIALIZING into RUNNING: re-hydrate the
// kill switch, reconcile live positions from the executor, warm the windows
// and subscribe the feed. Only a STOPPED session can start.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.session.State != models.StateStopped {
		state := o.session.State
		o.mu.Unlock()
		return fmt.Errorf("session %s is %s, cannot start: %w", o.session.ID, state, ErrSessionState)
	}
	o.session.State = models.StateInitializing
	o.session.StoppedAt = nil
	o.session.StopReason = ""
	o.mu.Unlock()

	if err := o.kill.Rehydrate(ctx); err != nil {
		o.log.Warn("kill switch re-hydration failed", logger.Error(err))
	}
	o.adoptExecutorPositions(ctx)
	o.history.Warm(ctx, o.deps.Samples, o.feedSymbols(), o.log)

	runCtx, cancel := context.WithCancel(context.Background())
	ch, err := o.deps.Feed.Subscribe(runCtx, o.feedSymbols())
	if err != nil {
		cancel()
		o.mu.Lock()
		o.session.State = models.StateStopped
		o.mu.Unlock()
		return fmt.Errorf("subscribe market feed: %w", err)
	}

	o.mu.Lock()
	o.session.State = models.StateRunning
	o.session.StartedAt = time.Now()
	o.cancel = cancel
	o.done = make(chan struct{})
	done := o.done
	o.mu.Unlock()

	go o.run(runCtx, ch, done)
	o.log.Info("session started",
		logger.String("session_id", o.session.ID),
		logger.Strings("symbols", o.sessionSymbols()))
	return nil
}

// Stop halts a running session. Open positions stay with the executor and are
// reconciled on the next start.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.session.State != models.StateRunning {
		state := o.session.State
		o.mu.Unlock()
		return fmt.Errorf("session %s is %s, cannot stop: %w", o.session.ID, state, ErrSessionState)
	}
	now := time.Now()
	o.session.State = models.StateStopped
	o.session.StoppedAt = &now
	o.session.StopReason = "requested"
	cancel := o.cancel
	done := o.done
	o.mu.Unlock()

	cancel()
	if err := o.deps.Feed.Close(); err != nil {
		o.log.Warn("feed close failed", logger.Error(err))
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	o.saveSnapshot(ctx)
	o.log.Info("session stopped", logger.String("session_id", o.session.ID))
	return nil
}

// Session returns a copy of the session record.
func (o *Orchestrator) Session() models.Session {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s := o.session
	s.Symbols = append([]string(nil), o.session.Symbols...)
	return s
}

// Snapshot assembles the full observable state for the control plane and the
// background saver.
func (o *Orchestrator) Snapshot() models.SessionSnapshot {
	o.mu.RLock()
	session := o.session
	session.Symbols = append([]string(nil), o.session.Symbols...)
	positions := make([]models.Position, 0, len(o.positions))
	for _, lp := range o.positions {
		positions = append(positions, lp.pos)
	}
	o.mu.RUnlock()

	return models.SessionSnapshot{
		Session:    session,
		Positions:  positions,
		KillSwitch: o.kill.State(),
		Metrics:    o.risk.Metrics(),
		SavedAt:    time.Now(),
	}
}

func (o *Orchestrator) run(ctx context.Context, ch <-chan models.MarketSample, done chan struct{}) {
	defer close(done)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.consumeFeed(ctx, ch)
	}()

	loops := []struct {
		name     string
		interval time.Duration
		cycle    func(context.Context)
	}{
		{"trading", o.cfg.Engine.TradingInterval, o.tradingCycle},
		{"position", o.cfg.Engine.PositionInterval, o.positionCycle},
		{"risk", o.cfg.Engine.RiskInterval, o.riskCycle},
		{"kill_switch", o.cfg.Engine.KillSwitchInterval, o.killSwitchCycle},
	}
	for _, l := range loops {
		wg.Add(1)
		go func(name string, interval time.Duration, cycle func(context.Context)) {
			defer wg.Done()
			o.loop(ctx, name, interval, cycle)
		}(l.name, l.interval, l.cycle)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.snapshotLoop(ctx)
	}()

	wg.Wait()
}

// loop runs one periodic task, timing every cycle.
func (o *Orchestrator) loop(ctx context.Context, name string, interval time.Duration, cycle func(context.Context)) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			cycle(ctx)
			o.deps.Metrics.RecordCycle(name, time.Since(start).Seconds())
		}
	}
}

func (o *Orchestrator) consumeFeed(ctx context.Context, ch <-chan models.MarketSample) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-ch:
			if !ok {
				return
			}
			o.history.Append(s)
			o.deps.Collector.Add(s)
		}
	}
}

func (o *Orchestrator) tradingCycle(ctx context.Context) {
	for _, symbol := range o.sessionSymbols() {
		if ctx.Err() != nil {
			return
		}
		o.tradeSymbol(ctx, symbol)
	}
}

// tradeSymbol is one symbol's pass through the pipeline: window check,
// sentiment, predictions, ensemble, risk, kill-switch gating, execution.
func (o *Orchestrator) tradeSymbol(ctx context.Context, symbol string) {
	w := o.history.Window(symbol)
	if w.Len() < o.cfg.Market.MinSamples {
		o.log.Debug("window below minimum, skipping",
			logger.String("symbol", symbol),
			logger.Int("samples", w.Len()))
		return
	}

	sent := o.deps.Sentiment.Analyze(w, o.history.RefWindows(o.cfg.Market.ReferenceSymbols, symbol))
	preds := o.deps.Predictions.PredictAll(ctx, symbol, w.Samples)
	d := o.deps.Ensemble.Decide(ctx, symbol, preds, sent, w)

	metricsNow := o.risk.Refresh(o.livePositions())
	assessment := o.risk.Assess(d, metricsNow)
	d.Risk = &assessment
	o.deps.Ensemble.CacheLatest(ctx, d)

	if d.Action == models.DirectionHold {
		return
	}
	if !assessment.Allowed {
		o.log.Info("trade rejected by risk gates",
			logger.String("symbol", symbol),
			logger.String("action", string(d.Action)),
			logger.Strings("reasons", assessment.Reasons))
		return
	}

	size := assessment.MaxSize
	switch level := o.kill.Level(); {
	case level >= models.KillSwitchCaution:
		o.log.Info("new entries halted by kill switch",
			logger.String("symbol", symbol),
			logger.String("level", level.String()))
		return
	case level == models.KillSwitchWarning:
		size *= 0.5
	}
	if size <= 0 {
		return
	}
	if o.hasPosition(symbol) {
		// one live position per symbol
		return
	}

	entry, ok := o.history.LastMid(symbol)
	if !ok || entry <= 0 {
		return
	}

	signal := models.TradeSignal{
		Symbol:     symbol,
		Direction:  d.Action,
		Size:       size,
		EntryPrice: entry,
		StopLoss:   d.StopLoss,
		TakeProfit: d.TakeProfit,
		DecisionID: d.ID,
	}
	dealID, err := o.deps.Executor.OpenPosition(ctx, signal)
	if err != nil {
		o.deps.Metrics.RecordOrder("open", true)
		o.log.Warn("open rejected",
			logger.String("symbol", symbol),
			logger.String("action", string(d.Action)),
			logger.Error(err))
		return
	}
	o.deps.Metrics.RecordOrder("open", false)

	pos := models.Position{
		DealID:       dealID,
		Symbol:       symbol,
		Direction:    d.Action,
		Size:         size,
		EntryPrice:   entry,
		CurrentPrice: entry,
		StopLoss:     d.StopLoss,
		TakeProfit:   d.TakeProfit,
		DecisionID:   d.ID,
		OpenedAt:     time.Now(),
	}
	o.mu.Lock()
	o.positions[dealID] = &livePosition{
		pos:          pos,
		decision:     d,
		stopDistance: stopDistance(pos),
	}
	o.mu.Unlock()

	o.log.Info("position opened",
		logger.String("symbol", symbol),
		logger.String("deal_id", dealID),
		logger.String("direction", string(d.Action)),
		logger.Float64("size", size),
		logger.Float64("entry", entry))
}

// positionCycle refreshes marks, closes what hit a stop, take-profit or risk
// recommendation, and trails stops on winners.
func (o *Orchestrator) positionCycle(ctx context.Context) {
	type closing struct {
		dealID string
		reason string
	}
	type trailing struct {
		dealID  string
		newStop float64
	}
	var toClose []closing
	var toTrail []trailing
	riskNow := o.risk.Metrics()

	o.mu.Lock()
	for dealID, lp := range o.positions {
		if mid, ok := o.history.LastMid(lp.pos.Symbol); ok && mid > 0 {
			lp.pos.UpdatePrice(mid)
		}
		switch {
		case lp.pos.StopHit():
			toClose = append(toClose, closing{dealID, "stop_loss"})
		case lp.pos.TakeProfitHit():
			toClose = append(toClose, closing{dealID, "take_profit"})
		case o.risk.ShouldClose(lp.pos, riskNow):
			toClose = append(toClose, closing{dealID, "risk"})
		default:
			if stop, ok := trailedStop(lp); ok {
				toTrail = append(toTrail, trailing{dealID, stop})
			}
		}
	}
	o.mu.Unlock()

	for _, c := range toClose {
		o.closePosition(ctx, c.dealID, c.reason)
	}
	for _, t := range toTrail {
		ok, err := o.deps.Executor.UpdateStopLoss(ctx, t.dealID, t.newStop)
		if err != nil {
			o.deps.Metrics.RecordOrder("update_stop", true)
			o.log.Warn("stop update failed", logger.String("deal_id", t.dealID), logger.Error(err))
			continue
		}
		o.deps.Metrics.RecordOrder("update_stop", false)
		if !ok {
			continue
		}
		o.mu.Lock()
		if lp, live := o.positions[t.dealID]; live {
			lp.pos.StopLoss = t.newStop
		}
		o.mu.Unlock()
	}
}

// riskCycle reconciles the live set against the executor and refreshes the
// metrics.
func (o *Orchestrator) riskCycle(ctx context.Context) {
	remote, err := o.deps.Executor.GetPositions(ctx)
	if err != nil {
		o.log.Warn("position reconciliation failed", logger.Error(err))
		o.risk.Refresh(o.livePositions())
		return
	}

	known := make(map[string]models.Position, len(remote))
	for _, p := range remote {
		known[p.DealID] = p
	}

	var closed []string
	o.mu.Lock()
	for dealID := range o.positions {
		if _, ok := known[dealID]; !ok {
			closed = append(closed, dealID)
		}
	}
	for dealID, p := range known {
		if _, ok := o.positions[dealID]; !ok {
			cp := p
			o.positions[dealID] = &livePosition{pos: cp, stopDistance: stopDistance(cp)}
			o.log.Info("adopted executor position",
				logger.String("deal_id", dealID),
				logger.String("symbol", cp.Symbol))
		}
	}
	o.mu.Unlock()

	// Positions the executor no longer reports were closed out-of-band.
	for _, dealID := range closed {
		o.finishPosition(ctx, dealID, "external")
	}

	o.risk.Refresh(o.livePositions())
}

func (o *Orchestrator) killSwitchCycle(ctx context.Context) {
	state, changed := o.kill.Evaluate(ctx, o.risk.Metrics())
	if changed && state.Level == models.KillSwitchEmergency {
		o.emergencyShutdown(ctx, state.Reason)
	}
}

// emergencyShutdown closes every open position and stops the session. The
// state check makes it run once even if a second trigger races in.
func (o *Orchestrator) emergencyShutdown(ctx context.Context, reason string) {
	o.mu.Lock()
	if o.session.State != models.StateRunning {
		o.mu.Unlock()
		return
	}
	o.session.State = models.StateEmergencyShutdown
	cancel := o.cancel
	dealIDs := make([]string, 0, len(o.positions))
	for dealID := range o.positions {
		dealIDs = append(dealIDs, dealID)
	}
	o.mu.Unlock()

	o.log.Error("emergency shutdown triggered",
		logger.String("session_id", o.session.ID),
		logger.String("reason", reason),
		logger.Int("open_positions", len(dealIDs)))

	for _, dealID := range dealIDs {
		o.closePosition(ctx, dealID, "emergency")
	}

	now := time.Now()
	o.mu.Lock()
	o.session.State = models.StateStopped
	o.session.StoppedAt = &now
	o.session.StopReason = "kill switch: " + reason
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := o.deps.Feed.Close(); err != nil {
		o.log.Warn("feed close failed", logger.Error(err))
	}
	o.saveSnapshot(context.Background())
}

// closePosition closes through the executor, then books the outcome. Close
// errors leave the position in the live set for the next cycle; an executor
// that already closed it still books the outcome.
func (o *Orchestrator) closePosition(ctx context.Context, dealID, reason string) {
	o.mu.RLock()
	_, live := o.positions[dealID]
	o.mu.RUnlock()
	if !live {
		return
	}

	if _, err := o.deps.Executor.ClosePosition(ctx, dealID); err != nil {
		o.deps.Metrics.RecordOrder("close", true)
		o.log.Warn("close failed",
			logger.String("deal_id", dealID),
			logger.String("reason", reason),
			logger.Error(err))
		return
	}
	o.deps.Metrics.RecordOrder("close", false)
	o.finishPosition(ctx, dealID, reason)
}

// finishPosition removes the deal from the live set and books its outcome.
func (o *Orchestrator) finishPosition(ctx context.Context, dealID, reason string) {
	o.mu.Lock()
	lp, ok := o.positions[dealID]
	if !ok {
		o.mu.Unlock()
		return
	}
	delete(o.positions, dealID)
	o.mu.Unlock()

	now := time.Now()
	o.deps.Outcomes.ProcessClosed(ctx, lp.pos, lp.decision, now)
	o.risk.RecordRealized(lp.pos.PnL, now)

	o.log.Info("position closed",
		logger.String("symbol", lp.pos.Symbol),
		logger.String("deal_id", dealID),
		logger.String("reason", reason),
		logger.Float64("pnl", lp.pos.PnL))
}

func (o *Orchestrator) snapshotLoop(ctx context.Context) {
	interval := o.cfg.Engine.SnapshotInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// detached: a slow store never blocks the loop
			go o.saveSnapshot(ctx)
		}
	}
}

// saveSnapshot persists the session image and the performance tracker state.
// Failures only log.
func (o *Orchestrator) saveSnapshot(ctx context.Context) {
	snap := o.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		o.log.Error("snapshot marshal failed", logger.Error(err))
		return
	}
	path := "sessions/" + snap.Session.ID + "/snapshot.json"
	if err := o.deps.Objects.Put(ctx, path, data, "application/json", map[string]string{
		"state": string(snap.Session.State),
	}); err != nil {
		o.deps.Metrics.RecordError("persistence")
		o.log.Warn("snapshot write failed", logger.Error(err))
	}
	if err := o.deps.Performance.SaveSnapshot(ctx); err != nil {
		o.deps.Metrics.RecordError("persistence")
		o.log.Warn("performance snapshot write failed", logger.Error(err))
	}
}

// adoptExecutorPositions seeds the live set from the executor during
// initialization.
func (o *Orchestrator) adoptExecutorPositions(ctx context.Context) {
	remote, err := o.deps.Executor.GetPositions(ctx)
	if err != nil {
		o.log.Warn("position reconciliation failed", logger.Error(err))
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, p := range remote {
		cp := p
		o.positions[cp.DealID] = &livePosition{pos: cp, stopDistance: stopDistance(cp)}
	}
	if len(remote) > 0 {
		o.log.Info("reconciled executor positions", logger.Int("count", len(remote)))
	}
}

func (o *Orchestrator) sessionSymbols() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]string(nil), o.session.Symbols...)
}

// feedSymbols is the subscribe set: session symbols plus the reference basket.
func (o *Orchestrator) feedSymbols() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range append(o.sessionSymbols(), o.cfg.Market.ReferenceSymbols...) {
		if _, dup := seen[s]; dup || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (o *Orchestrator) livePositions() []models.Position {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]models.Position, 0, len(o.positions))
	for _, lp := range o.positions {
		out = append(out, lp.pos)
	}
	return out
}

func (o *Orchestrator) hasPosition(symbol string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, lp := range o.positions {
		if lp.pos.Symbol == symbol {
			return true
		}
	}
	return false
}

func stopDistance(p models.Position) float64 {
	if p.StopLoss <= 0 {
		return 0
	}
	return math.Abs(p.EntryPrice - p.StopLoss)
}

// trailedStop proposes a tightened stop for a profitable position: the mark
// price minus the original stop offset, moving only toward the market.
func trailedStop(lp *livePosition) (float64, bool) {
	if lp.stopDistance <= 0 || lp.pos.PnL <= 0 || lp.pos.CurrentPrice <= 0 {
		return 0, false
	}
	if lp.pos.Direction == models.DirectionBuy {
		stop := lp.pos.CurrentPrice - lp.stopDistance
		if stop > lp.pos.StopLoss {
			return stop, true
		}
		return 0, false
	}
	stop := lp.pos.CurrentPrice + lp.stopDistance
	if lp.pos.StopLoss > 0 && stop < lp.pos.StopLoss {
		return stop, true
	}
	return 0, false
}
