package report

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"spreadwatch/internal/model"
)

// JSONSink writes cycles as JSON lines.
type JSONSink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONSink writes to out, or stdout when out is nil.
func NewJSONSink(out io.Writer) *JSONSink {
	if out == nil {
		out = os.Stdout
	}
	return &JSONSink{out: out}
}

func (s *JSONSink) Name() string { return SinkJSON }

// Write appends cycle as one JSON line.
func (s *JSONSink) Write(_ context.Context, cycle model.Cycle) error {
	line, err := json.Marshal(cycle)
	if err != nil {
		return fmt.Errorf("marshal cycle: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	writer := bufio.NewWriter(s.out)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write cycle: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
