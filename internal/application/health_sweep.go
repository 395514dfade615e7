package application

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"rpc-failover/internal/domain/entity"

	"go.uber.org/zap"
)

// probePayload is the standard JSON-RPC request used as a liveness probe for
// every chain, regardless of chain family.
var probePayload = []byte(`{"jsonrpc":"2.0","method":"eth_blockNumber","params":[],"id":1}`)

const defaultMaxConcurrentProbes = 5

// probeTarget is one (chain, endpoint) pair scheduled for a sweep probe.
type probeTarget struct {
	chainID int64
	url     entity.RPCURL
	timeout time.Duration
}

// Start launches the periodic background health sweep. Calling Start on a
// running service is a no-op.
func (s *failoverService) Start(ctx context.Context) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	if s.sweepCancel != nil {
		s.logger.Debug("Health sweep already running")
		return
	}

	interval := s.cfg.HealthCheckInterval
	if interval <= 0 {
		s.logger.Info("Health sweep disabled (interval <= 0)")
		return
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.sweepCancel = cancel
	s.sweepDone = done

	s.logger.Info("Starting health sweep", zap.Duration("interval", interval))
	go s.runSweepLoop(sweepCtx, interval, done)
}

// Stop halts the background sweep and waits for any in-flight probes to finish.
func (s *failoverService) Stop() {
	s.sweepMu.Lock()
	cancel := s.sweepCancel
	done := s.sweepDone
	s.sweepCancel = nil
	s.sweepDone = nil
	s.sweepMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("Health sweep stopped")
}

func (s *failoverService) runSweepLoop(ctx context.Context, interval time.Duration, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runSweep(ctx)
		case <-ctx.Done():
			s.logger.Debug("Health sweep loop exiting")
			return
		}
	}
}

// runSweep probes every endpoint of every initialized chain in bounded
// batches. Each batch is awaited to completion before the next starts. Probe
// failures only feed health bookkeeping; the sweep never propagates errors.
func (s *failoverService) runSweep(ctx context.Context) {
	targets := s.probeTargets()
	if len(targets) == 0 {
		return
	}

	batchSize := s.cfg.MaxConcurrentProbes
	if batchSize <= 0 {
		batchSize = defaultMaxConcurrentProbes
	}

	s.logger.Debug("Running health sweep",
		zap.Int("targets", len(targets)),
		zap.Int("batchSize", batchSize))

	for start := 0; start < len(targets); start += batchSize {
		if ctx.Err() != nil {
			return
		}
		end := min(start+batchSize, len(targets))

		var wg sync.WaitGroup
		for _, target := range targets[start:end] {
			wg.Add(1)
			go func(t probeTarget) {
				defer wg.Done()
				s.probe(ctx, t)
			}(target)
		}
		wg.Wait()
	}
}

// probeTargets snapshots every (chain, endpoint) pair with its resolved probe
// timeout.
func (s *failoverService) probeTargets() []probeTarget {
	s.mu.RLock()
	chainIDs := make([]int64, 0, len(s.chains))
	urlsByChain := make(map[int64][]entity.RPCURL, len(s.chains))
	for chainID, st := range s.chains {
		chainIDs = append(chainIDs, chainID)
		urlsByChain[chainID] = append([]entity.RPCURL(nil), st.urls...)
	}
	s.mu.RUnlock()

	var targets []probeTarget
	for _, chainID := range chainIDs {
		timeout := s.cfg.Timeout
		if settings := s.chainCfg.TimeoutSettings(chainID); settings.RPCTimeout > 0 {
			timeout = settings.RPCTimeout
		}
		for _, u := range urlsByChain[chainID] {
			targets = append(targets, probeTarget{chainID: chainID, url: u, timeout: timeout})
		}
	}
	return targets
}

// probe issues one liveness request and routes the outcome through the same
// MarkRateLimited/UpdateHealth paths as the main request flow.
func (s *failoverService) probe(ctx context.Context, t probeTarget) {
	res, err := s.transport.Call(ctx, t.url, probePayload, t.timeout)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if entity.IsRateLimitMessage(err.Error()) {
			s.MarkRateLimited(t.url)
			return
		}
		s.logger.Debug("Probe failed",
			zap.Int64("chainId", t.chainID), zap.String("url", t.url.String()), zap.Error(err))
		s.UpdateHealth(t.chainID, t.url, false, nil)
		return
	}

	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode == http.StatusForbidden {
		s.MarkRateLimited(t.url)
		return
	}
	if res.StatusCode != 0 && res.StatusCode != http.StatusOK {
		s.logger.Debug("Probe returned non-OK status",
			zap.Int64("chainId", t.chainID),
			zap.String("url", t.url.String()),
			zap.Int("statusCode", res.StatusCode))
		s.UpdateHealth(t.chainID, t.url, false, nil)
		return
	}

	var rpcResp entity.JSONRPCResponse
	if uerr := json.Unmarshal(res.Body, &rpcResp); uerr != nil {
		s.UpdateHealth(t.chainID, t.url, false, nil)
		return
	}
	if rpcResp.Error != nil {
		if rpcResp.Error.IsRateLimit() {
			s.MarkRateLimited(t.url)
			return
		}
		s.UpdateHealth(t.chainID, t.url, false, nil)
		return
	}
	if rpcResp.Jsonrpc != "2.0" || rpcResp.Result == nil {
		s.UpdateHealth(t.chainID, t.url, false, nil)
		return
	}

	latencyMs := res.Latency.Milliseconds()
	s.UpdateHealth(t.chainID, t.url, true, &latencyMs)
}
