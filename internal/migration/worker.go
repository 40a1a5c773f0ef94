package migration

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrRunAlreadyActive is returned by Start when a run is already in
// progress.
var ErrRunAlreadyActive = fmt.Errorf("migration run already in progress")

// ErrNoRunActive is returned by Stop when nothing is running.
var ErrNoRunActive = fmt.Errorf("no migration run in progress")

// ProgressEvent reports one in-flight sheet's cumulative rows done,
// out of the batch's total sheet count. JobID identifies the run this
// event belongs to, for callers observing more than one Worker.
type ProgressEvent struct {
	JobID       string
	SheetIndex  int
	TotalSheets int
	SheetName   string
	RowsDone    int
}

// MigrateFunc runs one sheet's migration, invoking onProgress with the
// cumulative rows done as it goes.
type MigrateFunc func(pair *SheetPair, onProgress func(rowsDone int)) error

// Worker drives a migration run as a single background goroutine,
// publishing progress on a buffered channel pair rather than a
// polled state struct (progress holds 256 events and any event sent
// while it is full is dropped; done holds the one Report) — adapted from the teacher's LoopManager
// (goroutine + stopChan + mutex-guarded active record) with the
// active-record polling replaced by push channels, since a migration
// run's progress is a finite stream the caller wants to observe as it
// happens, not a status to poll.
type Worker struct {
	mu      sync.Mutex
	running bool
	stop    chan struct{}

	progress chan ProgressEvent
	done     chan Report
}

// NewWorker creates an idle migration worker. Progress and Done return
// the channels Start will publish to; they are created once and reused
// across runs so callers can range over them before the first Start.
func NewWorker() *Worker {
	return &Worker{
		progress: make(chan ProgressEvent, 256),
		done:     make(chan Report, 1),
	}
}

// Progress returns the channel every ProgressEvent is published on.
func (w *Worker) Progress() <-chan ProgressEvent { return w.progress }

// Done returns the channel the batch's final Report is published on,
// exactly once per Start call.
func (w *Worker) Done() <-chan Report { return w.done }

// Start scans sourceDir for JSON sheet pairs, orders them by
// dependency, and migrates each in turn on a background goroutine,
// returning immediately. migrate is bound by the caller to whichever
// writer connection the run should use. The returned job id tags every
// ProgressEvent and the final Report for this run.
func (w *Worker) Start(ctx context.Context, sourceDir string, migrate MigrateFunc) (string, error) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return "", ErrRunAlreadyActive
	}

	sheets, err := ScanJSONFolder(sourceDir)
	if err != nil {
		w.mu.Unlock()
		return "", err
	}
	order := OrderSheetsByDependency(sheets)

	jobID := uuid.New().String()
	w.running = true
	w.stop = make(chan struct{})
	stop := w.stop
	w.mu.Unlock()

	go w.run(ctx, jobID, stop, sheets, order, migrate)
	return jobID, nil
}

// Stop signals the in-progress run to abandon any sheets not yet
// started. The sheet currently migrating still finishes its
// transaction — migration never leaves a sheet half-written, and
// cancellation aborts the caller's intent to continue, not a
// transaction already open.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return ErrNoRunActive
	}
	close(w.stop)
	return nil
}

func (w *Worker) run(ctx context.Context, jobID string, stop chan struct{}, sheets map[string]*SheetPair, order []string, migrate MigrateFunc) {
	report := Report{JobID: jobID}

	for i, name := range order {
		select {
		case <-stop:
			w.finish(report)
			return
		case <-ctx.Done():
			w.finish(report)
			return
		default:
		}

		pair := sheets[name]
		err := migrate(pair, func(rowsDone int) {
			select {
			case w.progress <- ProgressEvent{JobID: jobID, SheetIndex: i, TotalSheets: len(order), SheetName: name, RowsDone: rowsDone}:
			default:
				// Slow consumer: drop intermediate ticks rather than block
				// the migration transaction on channel backpressure.
			}
		})

		if err != nil {
			report.SheetsFailed++
			report.FailedSheets = append(report.FailedSheets, FailedSheet{SheetName: name, Error: err.Error()})
			log.Error("sheet migration failed", "job_id", jobID, "sheet", name, "error", err)
			continue
		}
		report.SheetsMigrated++
		report.LinkedSheetsFound = append(report.LinkedSheetsFound, pair.Dependencies...)
	}

	w.finish(report)
}

func (w *Worker) finish(report Report) {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	w.done <- report
}
