package internal

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Progress is a terminal spinner that can also report a running row count.
type Progress struct {
	frames   []string
	interval time.Duration
	label    string
	counting bool
	writer   io.Writer
	count    atomic.Int64

	mu     sync.Mutex
	active bool
	done   chan struct{}
	exited chan struct{}
}

// NewProgress returns a spinner that shows label followed by the row count.
func NewProgress(label string) *Progress {
	return &Progress{
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		interval: 100 * time.Millisecond,
		label:    label,
		counting: true,
		writer:   os.Stdout,
	}
}

// Start begins drawing. It is a no-op in verbose mode or when already active.
func (p *Progress) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active || VerboseMode {
		return
	}
	p.active = true
	p.done = make(chan struct{})
	p.exited = make(chan struct{})

	go p.loop(p.done, p.exited)
}

func (p *Progress) loop(done, exited chan struct{}) {
	defer close(exited)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	frame := 0
	for {
		p.draw(frame)
		frame++
		select {
		case <-done:
			fmt.Fprint(p.writer, "\r\033[K")
			return
		case <-ticker.C:
		}
	}
}

func (p *Progress) draw(frame int) {
	spin := p.frames[frame%len(p.frames)]
	if p.counting {
		fmt.Fprintf(p.writer, "\r%s %s: %d rows", spin, p.label, p.count.Load())
		return
	}
	fmt.Fprintf(p.writer, "\r%s %s", spin, p.label)
}

// Add increments the row count.
func (p *Progress) Add(n int64) {
	p.count.Add(n)
}

// Count returns the rows counted so far.
func (p *Progress) Count() int64 {
	return p.count.Load()
}

// Stop clears the spinner line.
func (p *Progress) Stop() {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	p.active = false
	close(p.done)
	exited := p.exited
	p.mu.Unlock()
	<-exited
}

func (p *Progress) Success(message string) {
	p.Stop()
	if VerboseMode {
		return
	}
	if p.counting {
		fmt.Fprintf(p.writer, "\r✅ %s (%d rows)\n", message, p.count.Load())
		return
	}
	fmt.Fprintf(p.writer, "\r✅ %s\n", message)
}

func (p *Progress) Error(message string) {
	p.Stop()
	if !VerboseMode {
		fmt.Fprintf(p.writer, "\r❌ %s\n", message)
	}
}

// WithSpinner runs operation behind a spinner unless verbose mode is on.
func WithSpinner(message string, operation func() error) error {
	if VerboseMode {
		return operation()
	}
	p := NewProgress(message)
	p.counting = false
	p.Start()

	if err := operation(); err != nil {
		p.Error(fmt.Sprintf("Failed: %s", message))
		return err
	}
	p.Success(message)
	return nil
}
