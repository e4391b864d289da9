package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/brandshield/internal/repository"
)

type fakeResult struct {
	rowsAffected int64
	err          error
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, r.err }

// Executor インターフェースに対するモック実装
type mockExecutor struct {
	mu     sync.Mutex
	calls  int
	query  string
	args   []interface{}
	result sql.Result
	err    error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.query = query
	m.args = args
	return m.result, m.err
}

func (m *mockExecutor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func lastLogEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	return entry
}

func TestNewCleanupJob_DefaultRetention(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockExecutor{}, newTestLogger(&buf))

	if job == nil {
		t.Fatal("NewCleanupJob は nil を返してはならない")
	}
	if job.Retention != time.Hour {
		t.Errorf("Retention = %v, want 1h", job.Retention)
	}
}

func TestCleanupJob_Run_ExecutesPurgeQuery(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 2}}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if mock.calls != 1 {
		t.Fatalf("ExecContext called %d times, want 1", mock.calls)
	}
	if !strings.Contains(mock.query, "DELETE FROM local_storage") {
		t.Errorf("query should delete from local_storage, got %q", mock.query)
	}
	if len(mock.args) != 3 {
		t.Fatalf("args count = %d, want 3", len(mock.args))
	}
	if mock.args[1] != repository.KeyLastActivity {
		t.Errorf("activity key arg = %v, want %q", mock.args[1], repository.KeyLastActivity)
	}
	// 判定は保存された値（エポックミリ秒）で行い、updated_atは使わない
	if strings.Contains(mock.query, "updated_at") {
		t.Errorf("query should compare the stored lastActivity value, got %q", mock.query)
	}
	if !strings.Contains(mock.query, "value::bigint") {
		t.Errorf("query should read lastActivity as epoch milliseconds, got %q", mock.query)
	}
}

func TestCleanupJob_Run_CustomRetention(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewCleanupJob(mock, newTestLogger(&buf))
	job.Retention = 90 * time.Minute
	now := time.UnixMilli(10_000_000)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := now.Add(-90 * time.Minute).UnixMilli()
	if mock.args[2] != want {
		t.Errorf("cutoff arg = %v, want %d", mock.args[2], want)
	}
}

func TestCleanupJob_Run_LogsDeletedCount(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 2}}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	entry := lastLogEntry(t, &buf)
	if entry["deleted_count"] != float64(2) {
		t.Errorf("deleted_count = %v, want 2", entry["deleted_count"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("log entry should contain duration_ms")
	}
}

func TestCleanupJob_Run_ZeroRowsIsNotError(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 0}}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if entry := lastLogEntry(t, &buf); entry["deleted_count"] != float64(0) {
		t.Errorf("deleted_count = %v, want 0", entry["deleted_count"])
	}
}

func TestCleanupJob_Run_ReturnsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{err: errors.New("connection refused")}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should return error on DB failure")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error should wrap cause, got %v", err)
	}
	if entry := lastLogEntry(t, &buf); entry["level"] != "ERROR" {
		t.Errorf("level = %v, want ERROR", entry["level"])
	}
}

func TestCleanupJob_Run_ReturnsErrorOnRowsAffectedFailure(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{err: errors.New("driver does not support")}}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("Run() should return error when RowsAffected fails")
	}
}

func TestCleanupJob_RunEvery_RunsImmediatelyAndStops(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		job.RunEvery(ctx, 5*time.Millisecond)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for mock.callCount() < 2 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("ExecContext called %d times, want at least 2", mock.callCount())
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunEvery did not return after context cancellation")
	}
}
