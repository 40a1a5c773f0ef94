package daemon

import (
	"os"
	"testing"
	"time"
)

func TestWriteReadRemovePID(t *testing.T) {
	d := New(t.TempDir(), "0.1.0-test")

	if _, err := d.ReadPID(); err == nil {
		t.Fatal("expected error reading PID before it is written")
	}

	if err := d.WritePID(); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	pid, err := d.ReadPID()
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("ReadPID = %d, want %d", pid, os.Getpid())
	}

	if err := d.RemovePID(); err != nil {
		t.Fatalf("RemovePID: %v", err)
	}
	if _, err := d.ReadPID(); err == nil {
		t.Error("expected error reading PID after removal")
	}
}

func TestWriteReadRemoveState(t *testing.T) {
	d := New(t.TempDir(), "0.1.0-test")
	state := &State{
		PID:         12345,
		StartTime:   time.Now(),
		Version:     "0.1.0-test",
		GatewayHost: "127.0.0.1",
		GatewayPort: 8765,
	}
	if err := d.WriteState(state); err != nil {
		t.Fatalf("WriteState: %v", err)
	}

	got, err := d.ReadState()
	if err != nil {
		t.Fatalf("ReadState: %v", err)
	}
	if got.PID != state.PID || got.GatewayPort != state.GatewayPort || got.GatewayHost != state.GatewayHost {
		t.Errorf("ReadState = %+v, want %+v", got, state)
	}

	if err := d.RemoveState(); err != nil {
		t.Fatalf("RemoveState: %v", err)
	}
	if _, err := d.ReadState(); err == nil {
		t.Error("expected error reading state after removal")
	}
}

func TestIsRunning_NoPIDFile(t *testing.T) {
	d := New(t.TempDir(), "0.1.0-test")
	if d.IsRunning() {
		t.Error("IsRunning should be false with no PID file")
	}
}

func TestIsRunning_OwnProcess(t *testing.T) {
	d := New(t.TempDir(), "0.1.0-test")
	if err := d.WritePID(); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	if !d.IsRunning() {
		t.Error("IsRunning should be true for this process's own PID")
	}
}

func TestStatus_CleansUpStalePIDFile(t *testing.T) {
	d := New(t.TempDir(), "0.1.0-test")
	// PID 999999999 is above any real pid_max, so signal(0) finds no process.
	if err := os.WriteFile(d.PIDPath(), []byte("999999999"), 0644); err != nil {
		t.Fatalf("write stale pid: %v", err)
	}
	if err := d.WriteState(&State{PID: 999999999}); err != nil {
		t.Fatalf("WriteState: %v", err)
	}

	status := d.Status()
	if status.Running {
		t.Error("Status.Running should be false for a stale PID")
	}
	if _, err := os.Stat(d.PIDPath()); !os.IsNotExist(err) {
		t.Error("expected stale PID file to be removed by Status")
	}
}

func TestStatus_RunningProcess(t *testing.T) {
	d := New(t.TempDir(), "0.1.0-test")
	if err := d.WritePID(); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	state := &State{
		PID:         os.Getpid(),
		StartTime:   time.Now().Add(-time.Minute),
		Version:     "0.1.0-test",
		GatewayHost: "127.0.0.1",
		GatewayPort: 8765,
	}
	if err := d.WriteState(state); err != nil {
		t.Fatalf("WriteState: %v", err)
	}

	status := d.Status()
	if !status.Running {
		t.Fatal("Status.Running should be true for this process")
	}
	if status.PID != os.Getpid() {
		t.Errorf("Status.PID = %d, want %d", status.PID, os.Getpid())
	}
	if status.GatewayPort != 8765 {
		t.Errorf("Status.GatewayPort = %d, want 8765", status.GatewayPort)
	}
	if status.Uptime <= 0 {
		t.Error("expected a positive uptime")
	}
}

func TestPIDPathAndStatePath(t *testing.T) {
	dir := t.TempDir()
	d := New(dir, "0.1.0-test")
	if got := d.PIDPath(); got != dir+"/"+PIDFileName {
		t.Errorf("PIDPath = %q", got)
	}
	if got := d.StatePath(); got != dir+"/"+StateFileName {
		t.Errorf("StatePath = %q", got)
	}
}
