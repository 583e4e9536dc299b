package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"SignalFuse/internal/domain/models"
	domrepo "SignalFuse/internal/domain/repository"
	"SignalFuse/internal/domain/service"
)

// CollectResult holds the signals that arrived and one failure marker per
// producer that did not deliver.
type CollectResult struct {
	Signals  []models.SubsystemSignal
	Failures map[string]string
}

// SignalCollector runs every producer for a horizon concurrently and joins
// all of them before returning.
type SignalCollector struct {
	timeout time.Duration
	metrics domrepo.Metrics
}

func NewSignalCollector(timeout time.Duration, metrics domrepo.Metrics) *SignalCollector {
	return &SignalCollector{timeout: timeout, metrics: metrics}
}

func (c *SignalCollector) Collect(ctx context.Context, producers []service.SignalProducer, in service.ProducerInput) CollectResult {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	type item struct {
		id  string
		sig models.SubsystemSignal
		err error
	}
	ch := make(chan item, len(producers))
	var wg sync.WaitGroup

	for _, p := range producers {
		wg.Add(1)
		go func(p service.SignalProducer) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					ch <- item{id: p.ID(), err: fmt.Errorf("producer panic: %v", r)}
				}
			}()
			sig, err := p.Produce(ctx, in)
			ch <- item{id: p.ID(), sig: sig, err: err}
		}(p)
	}

	go func() { wg.Wait(); close(ch) }()

	res := CollectResult{Failures: map[string]string{}}
	for it := range ch {
		if it.err == nil && it.sig.Horizon != "" && it.sig.Horizon != in.Horizon {
			it.err = fmt.Errorf("horizon mismatch: produced %s for %s", it.sig.Horizon, in.Horizon)
		}
		if it.err != nil {
			res.Failures[it.id] = it.err.Error()
			if c.metrics != nil {
				c.metrics.RecordProducerFailure(it.id)
			}
			continue
		}
		// the producer's registered id is authoritative
		it.sig.SourceID = it.id
		it.sig.Horizon = in.Horizon
		res.Signals = append(res.Signals, it.sig)
	}

	// arrival order is scheduling noise
	sort.Slice(res.Signals, func(i, j int) bool { return res.Signals[i].SourceID < res.Signals[j].SourceID })
	if len(res.Failures) == 0 {
		res.Failures = nil
	}
	return res
}
