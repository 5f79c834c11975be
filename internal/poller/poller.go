package poller

import (
	"context"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/ZHOUKAILIAN/smart-ingredients/internal/analysis"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/logging"
)

// DefaultInterval is the delay between a non-terminal round and the next one.
// It is also the shortest delay a Poller accepts.
const DefaultInterval = 1200 * time.Millisecond

// Fetcher performs a single status request.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (analysis.StatusResponse, error)
}

// Poller turns an analysis id into a sequence of status snapshots.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	clock    Clock
	logger   *zap.Logger
}

// Option customises Poller construction.
type Option func(*Poller)

// WithInterval lengthens the delay between rounds. Values below
// DefaultInterval are ignored.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d >= DefaultInterval {
			p.interval = d
		}
	}
}

// WithClock injects the timer source (used in tests).
func WithClock(clock Clock) Option {
	return func(p *Poller) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithLogger sets the logger used for round tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New builds a Poller on top of fetcher.
func New(fetcher Fetcher, opts ...Option) *Poller {
	p := &Poller{
		fetcher:  fetcher,
		interval: DefaultInterval,
		clock:    systemClock{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("poller")
	return p
}

// Interval returns the delay between rounds.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Poll returns a lazy sequence of snapshots for id. Nothing is requested until
// the sequence is ranged over, and every range starts a fresh session.
//
// The sequence ends after a terminal snapshot, after a single
// (zero Status, *analysis.PollError) pair when a round fails, when ctx is
// cancelled, or when the consumer stops ranging. An empty id yields nothing.
func (p *Poller) Poll(ctx context.Context, id string) iter.Seq2[analysis.Status, error] {
	return func(yield func(analysis.Status, error) bool) {
		emit := func(s analysis.Status) bool { return yield(s, nil) }
		if err := p.run(ctx, id, emit, func(State) {}); err != nil {
			yield(analysis.Status{}, err)
		}
	}
}

// run drives one session. emit returning false stops the session as a
// cancellation. The returned error is always a *analysis.PollError.
func (p *Poller) run(ctx context.Context, id string, emit func(analysis.Status) bool, observe func(State)) error {
	if id == "" {
		observe(StateCompleted)
		return nil
	}

	logger := logging.WithAnalysis(p.logger, id)
	var text string
	for round := 1; ; round++ {
		if ctx.Err() != nil {
			observe(StateCancelled)
			return nil
		}

		observe(StateWaitingResponse)
		resp, err := p.fetcher.Fetch(ctx, id)
		if ctx.Err() != nil {
			// Late responses and cancellation-induced failures are dropped.
			observe(StateCancelled)
			return nil
		}
		if err != nil {
			observe(StateFailed)
			return &analysis.PollError{AnalysisID: id, Round: round, Err: err}
		}

		if resp.OCRText != "" {
			text = resp.OCRText
		}
		snapshot := analysis.Status{
			AnalysisID: id,
			Kind:       resp.Kind(),
			OCRText:    text,
			Round:      round,
			Terminal:   resp.Terminal(),
		}
		logger.Debug("status round",
			zap.Int("round", round),
			zap.String("status", string(snapshot.Kind)),
			zap.Bool("terminal", snapshot.Terminal),
			zap.Bool("has_text", snapshot.HasText()))

		if snapshot.Terminal {
			if !emit(snapshot) {
				observe(StateCancelled)
				return nil
			}
			observe(StateCompleted)
			return nil
		}
		if !emit(snapshot) {
			observe(StateCancelled)
			return nil
		}

		observe(StateScheduled)
		timer := p.clock.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			observe(StateCancelled)
			return nil
		case <-timer.C():
		}
	}
}
