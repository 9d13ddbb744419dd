package internal

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestWithSpinner(t *testing.T) {
	VerboseMode = false

	err := WithSpinner("Test operation", func() error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestWithSpinnerWithError(t *testing.T) {
	VerboseMode = false

	expectedErr := errors.New("test error")
	err := WithSpinner("Test operation", func() error {
		time.Sleep(50 * time.Millisecond)
		return expectedErr
	})

	if err != expectedErr {
		t.Errorf("Expected error %v, got %v", expectedErr, err)
	}
}

func TestWithSpinnerVerboseMode(t *testing.T) {
	VerboseMode = true
	defer func() { VerboseMode = false }()

	operationCalled := false
	err := WithSpinner("Test operation", func() error {
		operationCalled = true
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if !operationCalled {
		t.Error("Operation should still be called in verbose mode")
	}
}

func TestNewProgress(t *testing.T) {
	p := NewProgress("Extracting ks.users")

	if p.label != "Extracting ks.users" {
		t.Errorf("Expected label 'Extracting ks.users', got '%s'", p.label)
	}

	if len(p.frames) == 0 {
		t.Error("Expected frames to be populated")
	}

	if p.interval != 100*time.Millisecond {
		t.Errorf("Expected interval 100ms, got %v", p.interval)
	}

	if !p.counting {
		t.Error("Expected progress to count rows")
	}
}

func TestProgressStartStop(t *testing.T) {
	VerboseMode = false
	var buf bytes.Buffer
	p := NewProgress("Test")
	p.writer = &buf

	p.Start()
	if !p.active {
		t.Error("Progress should be active after Start()")
	}

	p.Start()
	if !p.active {
		t.Error("Progress should still be active after second Start()")
	}

	p.Stop()
	if p.active {
		t.Error("Progress should not be active after Stop()")
	}

	p.Stop()
}

func TestProgressCountsConcurrently(t *testing.T) {
	p := NewProgress("Test")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.Add(1)
			}
		}()
	}
	wg.Wait()

	if p.Count() != 800 {
		t.Errorf("Expected count 800, got %d", p.Count())
	}
}

func TestProgressSuccessReportsCount(t *testing.T) {
	VerboseMode = false
	var buf bytes.Buffer
	p := NewProgress("Inserting")
	p.writer = &buf

	p.Start()
	p.Add(42)
	p.Success("Inserted ks.users")

	if !strings.Contains(buf.String(), "Inserted ks.users (42 rows)") {
		t.Errorf("Expected success line with row count, got %q", buf.String())
	}
}

func TestProgressVerboseModeIsSilent(t *testing.T) {
	VerboseMode = true
	defer func() { VerboseMode = false }()

	var buf bytes.Buffer
	p := NewProgress("Test")
	p.writer = &buf

	p.Start()
	if p.active {
		t.Error("Progress should not start in verbose mode")
	}
	p.Error("failed")

	if buf.Len() != 0 {
		t.Errorf("Expected no output in verbose mode, got %q", buf.String())
	}
}

func TestLogLevelSettings(t *testing.T) {
	originalVerboseMode := VerboseMode
	defer func() { VerboseMode = originalVerboseMode }()

	SetLogLevel("debug")
	if !VerboseMode {
		t.Error("VerboseMode should be true when log level is debug")
	}

	VerboseMode = false
	SetLogLevel("info")
	if VerboseMode {
		t.Error("VerboseMode should be false when log level is info")
	}

	VerboseMode = false
	SetLogLevel("warn")
	if VerboseMode {
		t.Error("VerboseMode should be false when log level is warn")
	}

	VerboseMode = false
	SetLogLevel("error")
	if VerboseMode {
		t.Error("VerboseMode should be false when log level is error")
	}

	VerboseMode = false
	SetLogLevel("unknown")
	if VerboseMode {
		t.Error("VerboseMode should be false for unknown log level")
	}
}

func TestWithRunTagsLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf, "info")
	defer SetLogOutput(os.Stdout, "info")

	id := WithRun()
	Logger.Info("hello")

	if !strings.Contains(buf.String(), "run="+id) {
		t.Errorf("Expected log line tagged with run id %s, got %q", id, buf.String())
	}
}
