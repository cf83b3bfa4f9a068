package sheets

import (
	"context"
	"sync"

	"github.com/Veraticus/trifetch/internal/model"
	"github.com/Veraticus/trifetch/internal/service"
)

// MockWriter records Write calls in memory. It satisfies service.ReportWriter.
type MockWriter struct {
	err   error
	calls []WriteCall
	mu    sync.Mutex
}

// WriteCall is one recorded Write.
type WriteCall struct {
	Err     error
	Summary *service.ReportSummary
	Rows    []model.ReportRow
}

func NewMockWriter() *MockWriter {
	return &MockWriter{}
}

func (m *MockWriter) Write(_ context.Context, rows []model.ReportRow, summary *service.ReportSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, WriteCall{Rows: rows, Summary: summary, Err: m.err})
	return m.err
}

// FailWith makes every later Write return err. Nil restores success.
func (m *MockWriter) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Calls returns a snapshot of the recorded calls.
func (m *MockWriter) Calls() []WriteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WriteCall(nil), m.calls...)
}

// Last returns the most recent call, if any.
func (m *MockWriter) Last() (WriteCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return WriteCall{}, false
	}
	return m.calls[len(m.calls)-1], true
}
