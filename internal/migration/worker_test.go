package migration

import (
	"context"
	"testing"
	"time"
)

func TestWorker_StartRunsAllSheetsAndPublishesReport(t *testing.T) {
	dir := t.TempDir()
	meta := `{"sheet_name": "Widgets", "columns": [{"header":"Name","data_type":"String","validator":"String"}]}`
	writeJSONPair(t, dir, "Widgets", `[["a"],["b"]]`, meta)

	conn := openMigrationTestConn(t)
	w := NewWorker()

	migrate := func(pair *SheetPair, onProgress func(int)) error {
		return MigrateSheetFromJSON(conn, pair, 0, onProgress)
	}

	jobID, err := w.Start(context.Background(), dir, migrate)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if jobID == "" {
		t.Fatal("expected Start to return a non-empty job id")
	}

	var sawProgress bool
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-w.Progress():
			sawProgress = true
			if ev.JobID != jobID {
				t.Errorf("ProgressEvent.JobID = %q, want %q", ev.JobID, jobID)
			}
		case report := <-w.Done():
			if report.SheetsMigrated != 1 {
				t.Errorf("report.SheetsMigrated = %d, want 1", report.SheetsMigrated)
			}
			if report.SheetsFailed != 0 {
				t.Errorf("report.SheetsFailed = %d, want 0", report.SheetsFailed)
			}
			if report.JobID != jobID {
				t.Errorf("report.JobID = %q, want %q", report.JobID, jobID)
			}
			if !sawProgress {
				t.Error("expected at least one progress event before completion")
			}
			return
		case <-timeout:
			t.Fatal("timed out waiting for worker to finish")
		}
	}
}

func TestWorker_StartTwiceFailsWhileActive(t *testing.T) {
	dir := t.TempDir()
	meta := `{"sheet_name": "Widgets", "columns": [{"header":"Name","data_type":"String","validator":"String"}]}`
	writeJSONPair(t, dir, "Widgets", `[["a"]]`, meta)

	conn := openMigrationTestConn(t)
	w := NewWorker()

	block := make(chan struct{})
	migrate := func(pair *SheetPair, onProgress func(int)) error {
		<-block
		return MigrateSheetFromJSON(conn, pair, 0, onProgress)
	}

	if _, err := w.Start(context.Background(), dir, migrate); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if _, err := w.Start(context.Background(), dir, migrate); err != ErrRunAlreadyActive {
		t.Errorf("second Start error = %v, want ErrRunAlreadyActive", err)
	}

	close(block)
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for worker to finish")
	}
}

func TestWorker_StopWithNoActiveRunFails(t *testing.T) {
	w := NewWorker()
	if err := w.Stop(); err != ErrNoRunActive {
		t.Errorf("Stop error = %v, want ErrNoRunActive", err)
	}
}

func TestWorker_StopAbandonsRemainingSheets(t *testing.T) {
	dir := t.TempDir()
	metaA := `{"sheet_name": "First", "columns": [{"header":"Name","data_type":"String","validator":"String"}]}`
	metaB := `{"sheet_name": "Second", "columns": [{"header":"Name","data_type":"String","validator":"String"}]}`
	writeJSONPair(t, dir, "First", `[["a"]]`, metaA)
	writeJSONPair(t, dir, "Second", `[["b"]]`, metaB)

	conn := openMigrationTestConn(t)
	w := NewWorker()

	reached := make(chan struct{}, 1)
	release := make(chan struct{})
	migrate := func(pair *SheetPair, onProgress func(int)) error {
		reached <- struct{}{}
		<-release
		return MigrateSheetFromJSON(conn, pair, 0, onProgress)
	}

	if _, err := w.Start(context.Background(), dir, migrate); err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-reached
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	close(release)

	select {
	case report := <-w.Done():
		if report.SheetsMigrated+report.SheetsFailed >= 2 {
			t.Errorf("expected the stop signal to abandon at least one sheet, report=%+v", report)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for worker to finish after Stop")
	}
}
