package translate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikkoParkkola/translate-browser-extension-sub004/batch"
)

// Translator is the external translate boundary. Implementations send the
// batch over the extension's messaging channel and return translations in
// the same order and length.
type Translator interface {
	Translate(ctx context.Context, texts []string, p Params) ([]string, error)
}

// Func adapts a function to Translator.
type Func func(ctx context.Context, texts []string, p Params) ([]string, error)

// Translate implements Translator.
func (f Func) Translate(ctx context.Context, texts []string, p Params) ([]string, error) {
	return f(ctx, texts, p)
}

// WriteFunc applies translated texts back to a batch's nodes and returns
// how many nodes were written and how many failed. The pipeline supplies
// this; it is where the session-guard and DOM writer live.
type WriteFunc func(ctx context.Context, b batch.Batch, texts []string) (written, failed int)

// Result aggregates a pass's outcome.
type Result struct {
	Translated int
	Failed     int
}

func (r *Result) add(other Result) {
	r.Translated += other.Translated
	r.Failed += other.Failed
}

// Config for the Executor.
type Config struct {
	Translator Translator
	Write      WriteFunc
	// BackoffBase is the first transient-retry delay, doubled per
	// attempt. Default: 250ms.
	BackoffBase time.Duration
	// BackoffMax caps the delay. Default: 4s.
	BackoffMax time.Duration
	// Breaker optionally guards the boundary; nil disables it.
	Breaker *Breaker
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.BackoffBase <= 0 {
		c.BackoffBase = 250 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 4 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Executor drives batches across the translate boundary.
type Executor struct {
	cfg Config
}

// NewExecutor creates an Executor.
func NewExecutor(cfg Config) *Executor {
	cfg.defaults()
	return &Executor{cfg: cfg}
}

// TranslateBatch sends one batch, retrying transient failures up to
// maxRetries times with doubling capped backoff. Permanent failures fail
// the whole batch immediately. On success the translations pass through
// the batch's glossary restores and are handed to the write callback.
func (e *Executor) TranslateBatch(ctx context.Context, b batch.Batch, p Params, maxRetries int) Result {
	if len(b.Texts) == 0 {
		return Result{}
	}
	if e.cfg.Breaker != nil && !e.cfg.Breaker.Allow() {
		e.cfg.Logger.Warn("translate: breaker open, failing batch fast", "nodes", len(b.Nodes))
		return Result{Failed: len(b.Nodes)}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		out, err := e.cfg.Translator.Translate(ctx, b.Texts, p)
		if err == nil && len(out) != len(b.Texts) {
			err = &ErrMalformedResult{Want: len(b.Texts), Got: len(out)}
		}
		if err == nil {
			if e.cfg.Breaker != nil {
				e.cfg.Breaker.RecordSuccess()
			}
			for i, restore := range b.Restores {
				if restore != nil {
					out[i] = restore(out[i])
				}
			}
			written, failed := e.cfg.Write(ctx, b, out)
			return Result{Translated: written, Failed: failed}
		}
		lastErr = err

		if Classify(err) == ClassPermanent {
			e.cfg.Logger.Warn("translate: permanent failure, not retrying",
				"nodes", len(b.Nodes), "error", err)
			return Result{Failed: len(b.Nodes)}
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < maxRetries {
			wait := e.cfg.BackoffBase * (1 << uint(attempt))
			if wait > e.cfg.BackoffMax {
				wait = e.cfg.BackoffMax
			}
			e.cfg.Logger.Warn("translate: retrying batch",
				"attempt", attempt+1,
				"max_retries", maxRetries,
				"backoff_ms", wait.Milliseconds(),
				"error", err)
			select {
			case <-ctx.Done():
				return Result{Failed: len(b.Nodes)}
			case <-time.After(wait):
			}
		}
	}

	if e.cfg.Breaker != nil {
		e.cfg.Breaker.RecordFailure()
	}
	e.cfg.Logger.Error("translate: batch failed after retries",
		"nodes", len(b.Nodes), "error", lastErr)
	return Result{Failed: len(b.Nodes)}
}

// Run drives a set of batches with at most parallel outstanding calls.
// Batches partition their nodes disjointly, so concurrent writes never
// touch the same node. Used by the initial full-page pass with parallel=2;
// dynamic and deferred paths call TranslateBatch directly.
func (e *Executor) Run(ctx context.Context, batches []batch.Batch, p Params, maxRetries, parallel int) Result {
	if parallel <= 1 || len(batches) <= 1 {
		var total Result
		for _, b := range batches {
			total.add(e.TranslateBatch(ctx, b, p, maxRetries))
		}
		return total
	}

	var mu sync.Mutex
	var total Result
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, b := range batches {
		g.Go(func() error {
			r := e.TranslateBatch(gctx, b, p, maxRetries)
			mu.Lock()
			total.add(r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures are counted
	return total
}
