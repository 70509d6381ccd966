// Package monitor orchestrates scan sessions: it feeds raw events through
// the filter and aggregator, applies the threshold gate, and when the gate
// fires drives summarization, the classifier call, and persistence.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/ptnguyen/devsentry/internal/config"
	"github.com/ptnguyen/devsentry/internal/eventlog"
	"github.com/ptnguyen/devsentry/internal/hardware"
	"github.com/ptnguyen/devsentry/internal/model"
	"github.com/ptnguyen/devsentry/internal/scan"
	"github.com/ptnguyen/devsentry/internal/storage"
	"github.com/ptnguyen/devsentry/internal/summarize"
)

// Classifier is the remote anomaly classifier. Implementations never return
// an error; failures arrive as erred results.
type Classifier interface {
	Classify(ctx context.Context, digestText string) model.ClassificationResult
}

// VerdictCache is an optional digest-keyed verdict cache.
type VerdictCache interface {
	Get(ctx context.Context, digestText string) (*model.ClassificationResult, bool)
	Put(ctx context.Context, digestText string, res model.ClassificationResult)
}

// HardwareCollector takes the hardware snapshot stored with a session.
type HardwareCollector func(logger *zap.Logger) hardware.Snapshot

// Runner executes scan sessions. One Runner may serve many sessions,
// sequentially or concurrently; every session owns its own state, so the
// fires-once gate invariant is per session.
type Runner struct {
	cfg        *config.Config
	classifier Classifier
	cache      VerdictCache   // nil disables caching
	store      *storage.Store // nil disables persistence
	collectHW  HardwareCollector
	logger     *zap.Logger
}

// NewRunner creates a runner. cache and store may be nil.
func NewRunner(cfg *config.Config, classifier Classifier, cache VerdictCache, store *storage.Store, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		classifier: classifier,
		cache:      cache,
		store:      store,
		collectHW:  hardware.Collect,
		logger:     logger,
	}
}

// Outcome reports one finished scan session.
type Outcome struct {
	Session   *scan.Session
	Digest    *summarize.Digest
	Hardware  hardware.Snapshot
	SessionID int64 // 0 when persistence is disabled
	FromCache bool
}

// RunOnce executes a single scan session over src and hands the finished
// session to persistence. Classifier unavailability is not an error; only
// source read failures and context cancellation abort the run.
func (r *Runner) RunOnce(ctx context.Context, src eventlog.Source) (*Outcome, error) {
	filter := scan.NewSourceFilter(r.cfg.EventLog.TargetSources, r.cfg.EventLog.TargetEventIDs)
	if filter.Empty() {
		r.logger.Warn("event filter matches nothing; detection is effectively disabled")
	}
	session := scan.NewSession(filter, r.cfg.EventLog.MaxEventsToRead)

	if err := r.collect(ctx, session, src); err != nil {
		return nil, err
	}
	session.Finish()

	r.logger.Info("scan collection finished",
		zap.Int("examined", session.Examined()),
		zap.Int("matched", session.MatchCount()),
		zap.Bool("cap_reached", session.CapReached()))

	out := &Outcome{Session: session, Hardware: r.collectHW(r.logger)}

	if session.Evaluate(r.cfg.LLM.CheckThreshold, r.cfg.LLM.Enabled) {
		r.classify(ctx, session, out)
	} else {
		r.logger.Info("classification not warranted",
			zap.Int("matched", session.MatchCount()),
			zap.Int("threshold", r.cfg.LLM.CheckThreshold),
			zap.Bool("llm_enabled", r.cfg.LLM.Enabled))
	}

	if err := r.persist(session, out); err != nil {
		// Storage trouble must not discard the session's verdict.
		r.logger.Error("persisting session failed", zap.Error(err))
	}
	return out, nil
}

func (r *Runner) collect(ctx context.Context, session *scan.Session, src eventlog.Source) error {
	for {
		ev, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading event source: %w", err)
		}
		if !session.Offer(ev) {
			r.logger.Info("scan cap reached",
				zap.Int("max_events_to_read", r.cfg.EventLog.MaxEventsToRead))
			return nil
		}
	}
}

// classify builds the digest and obtains the session's single result, from
// the cache when possible, otherwise from the classifier.
func (r *Runner) classify(ctx context.Context, session *scan.Session, out *Outcome) {
	r.logger.Warn("match count crossed threshold, classifying",
		zap.Int("matched", session.MatchCount()),
		zap.Int("threshold", r.cfg.LLM.CheckThreshold))

	digest := summarize.Build(session.Matched(), r.cfg.LLM.MaxLogDetails)
	out.Digest = &digest
	text := digest.Text()

	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, text); ok {
			r.logger.Info("verdict served from cache", zap.Bool("abnormal", cached.IsAbnormal))
			session.AwaitResponse()
			session.SetResult(*cached)
			out.FromCache = true
			return
		}
	}

	session.AwaitResponse()
	res := r.classifier.Classify(ctx, text)
	session.SetResult(res)

	switch {
	case res.Erred:
		r.logger.Error("could not classify this session", zap.String("detail", res.ErrorDetail))
	case res.IsAbnormal:
		r.logger.Warn("abnormal pattern suspected",
			zap.Strings("matched_keywords", res.MatchedKeywords))
	default:
		r.logger.Info("classifier found no abnormal pattern")
	}

	if r.cache != nil {
		r.cache.Put(ctx, text, res)
	}
}

func (r *Runner) persist(session *scan.Session, out *Outcome) error {
	if r.store == nil {
		return nil
	}

	id, err := r.store.BeginSession(session.StartedAt())
	if err != nil {
		return err
	}
	out.SessionID = id

	analysis, abnormal := "", false
	llmPerformed := false
	if res := session.Result(); res != nil {
		llmPerformed = !out.FromCache
		if !res.Erred {
			analysis = res.RawResponse
			abnormal = res.IsAbnormal
		}
	}

	if _, err := r.store.StoreEvents(id, session.Matched(), analysis, abnormal); err != nil {
		return err
	}
	if _, err := r.store.StoreHardware(id, out.Hardware.Devices); err != nil {
		return err
	}
	return r.store.EndSession(id, storage.SessionClose{
		EndedAt:        time.Now(),
		EventsFound:    session.MatchCount(),
		EventsExamined: session.Examined(),
		CapReached:     session.CapReached(),
		HWDevicesFound: len(out.Hardware.Devices),
		LLMPerformed:   llmPerformed,
		Summary:        r.summaryLine(session, out, abnormal),
	})
}

func (r *Runner) summaryLine(session *scan.Session, out *Outcome, abnormal bool) string {
	s := fmt.Sprintf("events found: %d, devices found: %d", session.MatchCount(), len(out.Hardware.Devices))
	if session.CapReached() {
		s += ", scan cap reached"
	}
	res := session.Result()
	switch {
	case res == nil && !r.cfg.LLM.Enabled:
		s += ", llm analysis disabled"
	case res == nil:
		s += ", below llm threshold"
	case res.Erred:
		s += ", llm analysis failed"
	case abnormal:
		s += ", abnormal pattern detected"
	default:
		s += ", no abnormal pattern"
	}
	if out.FromCache {
		s += " (cached verdict)"
	}
	return s
}

// SourceOpener opens a fresh event source for one scan session. The second
// return value, when non-nil, releases the source after the session.
type SourceOpener func() (eventlog.Source, func() error, error)

// Poll runs scan sessions on the given interval until ctx is cancelled.
// openSource is called per tick so each session reads a fresh view of the
// log. Per-session failures are logged, never fatal to the loop.
func (r *Runner) Poll(ctx context.Context, interval time.Duration, openSource SourceOpener) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.runTick(ctx, openSource)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) runTick(ctx context.Context, openSource SourceOpener) {
	src, closeFn, err := openSource()
	if err != nil {
		r.logger.Error("opening event source failed", zap.Error(err))
		return
	}
	if closeFn != nil {
		defer closeFn()
	}
	if _, err := r.RunOnce(ctx, src); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("scan session failed", zap.Error(err))
	}
}
