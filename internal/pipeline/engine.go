// Package pipeline runs parse, match and format over a set of files with a
// bounded pool of workers.
package pipeline

import (
	"context"
	"path/filepath"
	"slices"
	"sync"

	"github.com/mhmtszr/concurrent-swiss-map"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/Digital-Shane/title-resolve/internal/format"
	"github.com/Digital-Shane/title-resolve/internal/log"
	"github.com/Digital-Shane/title-resolve/internal/match"
	"github.com/Digital-Shane/title-resolve/internal/media"
)

// DefaultWorkers bounds concurrent matches when Config.Workers is unset.
const DefaultWorkers = 8

// Matcher resolves parsed tokens. *match.Matcher implements it.
type Matcher interface {
	Match(ctx context.Context, t media.Tokens, locale string) match.Outcome
}

// Prober reads stream details for technical placeholders.
type Prober interface {
	Probe(ctx context.Context, path string) (media.Technical, error)
}

// Config wires an Engine.
type Config struct {
	Paths     []string
	Workers   int
	Locale    string
	Matcher   Matcher
	Formatter *format.Formatter
	// Prober is optional; it only runs when a template needs it.
	Prober Prober
	// Parse defaults to media.ParsePath.
	Parse func(path string) media.Tokens
}

// Summary captures the state of a run at a point in time.
type Summary struct {
	Total       int
	Processed   int
	Resolved    int
	Failed      int
	Skipped     int
	WorkerLimit int
	LastItem    string
	Done        bool
	Canceled    bool
}

// Event is an update emitted by the engine. Result is set when a file
// finished.
type Event struct {
	Summary Summary
	Result  *Result
	Err     error
}

// Engine resolves files concurrently. Files are dispatched in sorted path
// order but complete in any order; Results is always sorted by path.
type Engine struct {
	paths     []string
	workers   int
	locale    string
	matcher   Matcher
	formatter *format.Formatter
	prober    Prober
	parse     func(string) media.Tokens
	logger    *logrus.Entry

	results *csmap.CsMap[string, Result]

	summaryMu sync.RWMutex
	summary   Summary
}

// New constructs an engine with defaults applied. Paths are cleaned,
// deduplicated and sorted.
func New(cfg Config) *Engine {
	paths := lo.Uniq(lo.Map(cfg.Paths, func(p string, _ int) string { return filepath.Clean(p) }))
	slices.Sort(paths)

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	formatter := cfg.Formatter
	if formatter == nil {
		formatter = format.New("", "")
	}
	parse := cfg.Parse
	if parse == nil {
		parse = media.ParsePath
	}

	return &Engine{
		paths:     paths,
		workers:   workers,
		locale:    cfg.Locale,
		matcher:   cfg.Matcher,
		formatter: formatter,
		prober:    cfg.Prober,
		parse:     parse,
		logger:    log.For("pipeline"),
		results:   csmap.Create[string, Result](),
		summary:   Summary{Total: len(paths), WorkerLimit: workers},
	}
}

// Start begins processing and returns a stream of progress events. The
// channel is closed when the run ends; callers must drain it.
func (e *Engine) Start(ctx context.Context) <-chan Event {
	events := make(chan Event, 128)
	go e.run(ctx, events)
	return events
}

// Run processes every file and returns the results sorted by path. After
// cancellation the results completed so far are returned.
func (e *Engine) Run(ctx context.Context) []Result {
	for range e.Start(ctx) {
	}
	return e.Results()
}

// Results returns a snapshot of the finished files sorted by path.
func (e *Engine) Results() []Result {
	out := make([]Result, 0, e.results.Count())
	e.results.Range(func(_ string, r Result) bool {
		out = append(out, r)
		return false
	})
	slices.SortFunc(out, func(a, b Result) int {
		switch {
		case a.Path < b.Path:
			return -1
		case a.Path > b.Path:
			return 1
		}
		return 0
	})
	return out
}

// SummarySnapshot returns the latest progress summary.
func (e *Engine) SummarySnapshot() Summary {
	e.summaryMu.RLock()
	defer e.summaryMu.RUnlock()
	return e.summary
}

func (e *Engine) run(ctx context.Context, events chan<- Event) {
	defer close(events)

	workCh := make(chan string)
	resultCh := make(chan Result)
	var wg sync.WaitGroup

	for i := 0; i < min(e.workers, len(e.paths)); i++ {
		wg.Add(1)
		go e.worker(ctx, &wg, workCh, resultCh)
	}

	go func() {
		defer close(workCh)
		for _, path := range e.paths {
			select {
			case workCh <- path:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	e.emit(ctx, events, Event{})
	for res := range resultCh {
		e.store(res)
		e.emit(ctx, events, Event{Result: &res})
	}

	e.summaryMu.Lock()
	e.summary.Done = true
	e.summary.Canceled = ctx.Err() != nil
	e.summaryMu.Unlock()

	// The final event is always delivered so consumers see Done.
	events <- Event{Summary: e.SummarySnapshot(), Err: ctx.Err()}
}

func (e *Engine) worker(ctx context.Context, wg *sync.WaitGroup, workCh <-chan string, resultCh chan<- Result) {
	defer wg.Done()

	for path := range workCh {
		if ctx.Err() != nil {
			return
		}
		res := e.process(ctx, path)
		if res.State == StateFailed && res.Kind == KindCanceled {
			// interrupted, not completed
			continue
		}
		resultCh <- res
	}
}

// process runs parse, match and format for one file.
func (e *Engine) process(ctx context.Context, path string) Result {
	res := Result{Path: path, Tokens: e.parse(path)}
	logger := e.logger.WithField("file", filepath.Base(path))

	if res.Tokens.Kind == media.KindUnknown {
		res.State, res.Kind = StateSkipped, KindUnknown
		res.Reason = "not recognized as a movie or episode"
		logger.Debug("skipped unrecognized file")
		return res
	}

	res.Outcome = e.matcher.Match(ctx, res.Tokens, e.locale)
	if res.Outcome.Status != match.Matched {
		outcomeResult(&res)
		logger.WithFields(logrus.Fields{"state": res.State, "kind": res.Kind, "reason": res.Reason}).Debug("not resolved")
		return res
	}

	if e.prober != nil && e.formatter.NeedsTechnical() {
		tech, err := e.prober.Probe(ctx, path)
		if err != nil {
			logger.WithError(err).Warn("technical probe failed")
		}
		res.Technical = tech
	}

	rec := format.Record{
		Movie:     res.Outcome.Movie,
		Series:    res.Outcome.Series,
		Episode:   res.Outcome.Episode,
		Technical: res.Technical,
	}
	target, err := e.formatter.Format(rec, res.Tokens.Ext)
	if err != nil {
		res.State, res.Err, res.Kind, res.Reason = StateFailed, err, FailureKind(err), err.Error()
		logger.WithError(err).Debug("format failed")
		return res
	}

	res.State, res.Target = StateResolved, target
	logger.WithFields(logrus.Fields{"target": target, "confidence": res.Outcome.Confidence}).Debug("resolved")
	return res
}

func (e *Engine) store(res Result) {
	e.results.Store(res.Path, res)

	e.summaryMu.Lock()
	defer e.summaryMu.Unlock()
	e.summary.Processed++
	e.summary.LastItem = filepath.Base(res.Path)
	switch res.State {
	case StateResolved:
		e.summary.Resolved++
	case StateSkipped:
		e.summary.Skipped++
	default:
		e.summary.Failed++
	}
}

func (e *Engine) emit(ctx context.Context, events chan<- Event, ev Event) {
	ev.Summary = e.SummarySnapshot()
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}
