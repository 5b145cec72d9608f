package capture_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fieldmesh/beacon/internal/capture"
)

func TestCreatePipe_CreatesFIFO(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipes", "btbr")

	if err := capture.CreatePipe(path); err != nil {
		t.Fatalf("CreatePipe: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat pipe: %v", err)
	}
	if info.Mode()&os.ModeNamedPipe == 0 {
		t.Errorf("mode = %v, want named pipe", info.Mode())
	}
}

func TestCreatePipe_RemovesStaleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipe")

	if err := os.WriteFile(path, []byte("stale"), 0o600); err != nil {
		t.Fatalf("seed stale file: %v", err)
	}

	if err := capture.CreatePipe(path); err != nil {
		t.Fatalf("CreatePipe: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat pipe: %v", err)
	}
	if info.Mode()&os.ModeNamedPipe == 0 {
		t.Errorf("stale regular file was not replaced with a FIFO")
	}
}

func TestProcessor_ReadsRecordsAndInvokesHandler(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "btle")

	records := make(chan []byte, 8)
	proc := capture.NewProcessor("btle", path, 4, func(record []byte) error {
		cp := make([]byte, len(record))
		copy(cp, record)
		records <- cp
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := proc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer proc.Stop()

	writer, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open pipe for write: %v", err)
	}
	defer writer.Close()

	want := []byte{1, 2, 3, 4}
	if _, err := writer.Write(want); err != nil {
		t.Fatalf("write record: %v", err)
	}

	select {
	case got := <-records:
		if string(got) != string(want) {
			t.Errorf("record = %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for processor to read record")
	}
}

func TestSupervisor_RestartsOnUnexpectedExit(t *testing.T) {
	// A subprocess that exits immediately; the supervisor should notice and
	// respawn it repeatedly until Stop is called.
	sup := capture.NewSupervisor("test", []string{"true"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Give the supervisor one poll cycle (1s) and some slack to restart the
	// process at least once without panicking or deadlocking.
	time.Sleep(1500 * time.Millisecond)

	sup.Stop()
}

func TestSupervisor_StopTerminatesLongRunningProcess(t *testing.T) {
	sup := capture.NewSupervisor("test", []string{"sleep", "30"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		sup.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Stop did not return in time")
	}
}
