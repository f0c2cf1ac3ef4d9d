// Package orchestration schedules concurrent download tasks across
// exchanges, bounding global and per-exchange parallelism.
package orchestration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/YoshitsuguKoike/candlelake/internal/app"
	"github.com/YoshitsuguKoike/candlelake/internal/ingest"
)

// Task statuses, in lifecycle order.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Data types a task can download.
const (
	DataOHLCV   = "ohlcv"
	DataFunding = "funding"
	DataBoth    = "both"
)

// Request describes one download job.
type Request struct {
	Exchange    string
	Market      string
	Symbol      string
	DataType    string // ohlcv, funding or both; default ohlcv
	Timeframe   string // default 1m
	StartDate   string // ISO-8601; ignored when FullHistory is set
	FullHistory bool
}

// Task is the tracked state of a submitted request.
type Task struct {
	ID       string
	Key      string
	Request  Request
	Status   string
	Message  string
	Saved    int
	Started  time.Time
	Finished time.Time
	Err      error
}

// ClientFactory builds an exchange client for an (exchange, market) pair.
type ClientFactory func(exchange, market string) (ingest.MarketClient, error)

// clientEntry lazily initializes one shared client per (exchange, market).
// The once runs outside the orchestrator lock so a slow LoadMarkets never
// blocks task submission.
type clientEntry struct {
	once   sync.Once
	client ingest.MarketClient
	err    error
}

// Deps are the shared collaborators every task uses.
type Deps struct {
	Factory    ClientFactory
	Pipeline   *ingest.Pipeline
	Log        app.Logger
	MaxWorkers int // global parallelism, default 20
	SlotsPer   int // per-exchange parallelism, default 5
}

// Orchestrator runs download tasks with a global worker pool and
// per-exchange slots. Identical in-flight tasks are deduplicated.
type Orchestrator struct {
	deps Deps

	mu         sync.Mutex
	tasks      map[string]*Task // key -> latest task
	byID       map[string]*Task
	semaphores map[string]chan struct{}
	clients    map[string]*clientEntry

	workers chan struct{}
	wg      sync.WaitGroup

	printer *message.Printer
}

// New creates an Orchestrator. Zero or negative limits fall back to the
// defaults (20 workers, 5 slots per exchange).
func New(deps Deps) *Orchestrator {
	if deps.MaxWorkers <= 0 {
		deps.MaxWorkers = 20
	}
	if deps.SlotsPer <= 0 {
		deps.SlotsPer = 5
	}
	if deps.Log == nil {
		deps.Log = app.NewDefaultLogger()
	}
	return &Orchestrator{
		deps:       deps,
		tasks:      make(map[string]*Task),
		byID:       make(map[string]*Task),
		semaphores: make(map[string]chan struct{}),
		clients:    make(map[string]*clientEntry),
		workers:    make(chan struct{}, deps.MaxWorkers),
		printer:    message.NewPrinter(language.English),
	}
}

// TaskKey is the dedup identity of a request.
func TaskKey(r Request) string {
	return fmt.Sprintf("%s:%s:%s:%s", strings.ToLower(r.Exchange), strings.ToLower(r.Market), r.Symbol, r.DataType)
}

// Submit queues a request and returns its task. When an identical task is
// already pending or running, that task is returned instead of starting a
// second download.
func (o *Orchestrator) Submit(ctx context.Context, r Request) (*Task, error) {
	if r.Exchange == "" || r.Symbol == "" {
		return nil, fmt.Errorf("exchange and symbol are required")
	}
	if r.Market == "" {
		r.Market = "spot"
	}
	if r.DataType == "" {
		r.DataType = DataOHLCV
	}
	if r.Timeframe == "" {
		r.Timeframe = "1m"
	}
	switch r.DataType {
	case DataOHLCV, DataFunding, DataBoth:
	default:
		return nil, fmt.Errorf("unknown data type %q", r.DataType)
	}

	key := TaskKey(r)

	o.mu.Lock()
	if existing, ok := o.tasks[key]; ok {
		switch existing.Status {
		case StatusPending, StatusRunning:
			o.mu.Unlock()
			o.deps.Log.Info("task %s already in flight as %s, skipping duplicate", key, existing.ID)
			return existing, nil
		}
	}
	task := &Task{
		ID:      ulid.Make().String(),
		Key:     key,
		Request: r,
		Status:  StatusPending,
		Started: time.Now().UTC(),
	}
	o.tasks[key] = task
	o.byID[task.ID] = task
	entry := o.clientFor(r)
	sem := o.slotFor(r.Exchange)
	o.mu.Unlock()

	o.wg.Add(1)
	go o.run(ctx, task, entry, sem)
	return task, nil
}

// clientFor returns the lazy client entry for a request; callers hold o.mu.
func (o *Orchestrator) clientFor(r Request) *clientEntry {
	key := strings.ToLower(r.Exchange) + ":" + strings.ToLower(r.Market)
	entry, ok := o.clients[key]
	if !ok {
		entry = &clientEntry{}
		o.clients[key] = entry
	}
	return entry
}

// slotFor returns the per-exchange semaphore; callers hold o.mu.
func (o *Orchestrator) slotFor(exchange string) chan struct{} {
	key := strings.ToLower(exchange)
	sem, ok := o.semaphores[key]
	if !ok {
		sem = make(chan struct{}, o.deps.SlotsPer)
		o.semaphores[key] = sem
	}
	return sem
}

func (o *Orchestrator) run(ctx context.Context, task *Task, entry *clientEntry, sem chan struct{}) {
	defer o.wg.Done()
	// Whatever happens below, a task never ends in a non-terminal status.
	defer o.finalize(task)

	select {
	case o.workers <- struct{}{}:
	case <-ctx.Done():
		o.setStatus(task, StatusFailed, "cancelled before start")
		return
	}
	defer func() { <-o.workers }()

	// Still pending until the exchange slot is acquired; the message tells
	// the two queueing stages apart.
	o.setStatus(task, StatusPending, "waiting for exchange slot")
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		o.setStatus(task, StatusFailed, "cancelled while waiting for exchange slot")
		return
	}
	defer func() { <-sem }()

	o.setStatus(task, StatusRunning, "fetching data")

	entry.once.Do(func() {
		client, err := o.deps.Factory(task.Request.Exchange, task.Request.Market)
		if err != nil {
			entry.err = err
			return
		}
		if _, err := client.LoadMarkets(); err != nil {
			entry.err = fmt.Errorf("load markets failed: %w", err)
			return
		}
		entry.client = client
	})
	if entry.err != nil {
		o.setErr(task, entry.err)
		o.setStatus(task, StatusFailed, fmt.Sprintf("client init failed: %v", entry.err))
		o.deps.Log.Error("task %s failed: %v", task.ID, entry.err)
		return
	}

	ing := ingest.NewIngestor(entry.client, task.Request.Exchange, task.Request.Market,
		o.deps.Pipeline.Writer(), o.deps.Pipeline.Manifest(), o.deps.Log)

	r := task.Request
	if r.DataType == DataOHLCV || r.DataType == DataBoth {
		startDate := r.StartDate
		if r.FullHistory {
			startDate = ""
		}
		saved, err := ing.DownloadOHLCV(ctx, r.Symbol, ingest.DownloadOptions{
			Timeframe: r.Timeframe,
			StartDate: startDate,
			Progress: func(total int) {
				o.progress(task, total)
			},
		})
		// Progress callbacks already report absolute totals; make the
		// final count authoritative either way.
		o.setSaved(task, saved)
		if err != nil {
			o.setErr(task, err)
			o.setStatus(task, StatusFailed, fmt.Sprintf("download failed: %v", err))
			o.deps.Log.Error("task %s failed: %v", task.ID, err)
			return
		}
	}

	if (r.DataType == DataFunding || r.DataType == DataBoth) && ingest.IsDerivativeMarket(r.Market) {
		saved, err := ing.DownloadFundingRates(ctx, r.Symbol)
		o.addSaved(task, saved)
		if err != nil {
			o.setErr(task, err)
			o.setStatus(task, StatusFailed, fmt.Sprintf("funding download failed: %v", err))
			o.deps.Log.Error("task %s failed: %v", task.ID, err)
			return
		}
	}

	o.verifyAndComplete(ctx, task)
}

// verifyAndComplete runs the post-download integrity check. Verification
// problems never fail a task; they downgrade the completion message.
func (o *Orchestrator) verifyAndComplete(ctx context.Context, task *Task) {
	r := task.Request
	if r.DataType == DataFunding {
		o.setStatus(task, StatusCompleted, "finished")
		return
	}

	report := o.deps.Pipeline.VerifyIntegrity(ctx, strings.ToLower(r.Exchange), r.Symbol, strings.ToLower(r.Market), r.Timeframe)
	switch report.Status {
	case ingest.StatusSuccess:
		o.setStatus(task, StatusCompleted, "finished (verified)")
	case ingest.StatusWarning:
		o.deps.Log.Warn("task %s verification warning: %s", task.ID, report.Message)
		o.setStatus(task, StatusCompleted, fmt.Sprintf("finished with warnings: %s", report.Message))
	default:
		if report.Message == "no files found to verify" {
			// Nothing downloaded and nothing pre-existing; not an error.
			o.deps.Log.Warn("task %s: %s", task.ID, report.Message)
			o.setStatus(task, StatusCompleted, "finished (no data)")
			return
		}
		o.deps.Log.Error("task %s verification error: %s", task.ID, report.Message)
		o.setStatus(task, StatusCompleted, fmt.Sprintf("finished, verification error: %s", report.Message))
	}
}

// finalize forces a terminal status on tasks whose goroutine unwound
// without reaching one.
func (o *Orchestrator) finalize(task *Task) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch task.Status {
	case StatusCompleted, StatusFailed:
	default:
		task.Status = StatusFailed
		task.Message = "terminated unexpectedly"
		task.Finished = time.Now().UTC()
	}
}

func (o *Orchestrator) setStatus(task *Task, status, msg string) {
	o.mu.Lock()
	task.Status = status
	task.Message = msg
	if status == StatusCompleted || status == StatusFailed {
		task.Finished = time.Now().UTC()
	}
	o.mu.Unlock()
	o.deps.Log.Info("task %s [%s] %s: %s", task.ID, task.Key, status, msg)
}

func (o *Orchestrator) addSaved(task *Task, n int) {
	o.mu.Lock()
	task.Saved += n
	o.mu.Unlock()
}

func (o *Orchestrator) setSaved(task *Task, n int) {
	o.mu.Lock()
	task.Saved = n
	o.mu.Unlock()
}

func (o *Orchestrator) setErr(task *Task, err error) {
	o.mu.Lock()
	task.Err = err
	o.mu.Unlock()
}

func (o *Orchestrator) progress(task *Task, total int) {
	o.mu.Lock()
	task.Saved = total
	o.mu.Unlock()
	o.deps.Log.Info("task %s: %s", task.ID, o.printer.Sprintf("Fetched %d candles", total))
}

// Wait blocks until every submitted task reaches a terminal status.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Tasks returns a snapshot of all known tasks.
func (o *Orchestrator) Tasks() []Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Task, 0, len(o.byID))
	for _, t := range o.byID {
		out = append(out, *t)
	}
	return out
}

// Get returns the task with the given ID.
func (o *Orchestrator) Get(id string) (Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.byID[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}
