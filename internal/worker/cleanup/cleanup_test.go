package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// mockDeleter はExpiredSessionDeleterのモック実装。
type mockDeleter struct {
	calls          atomic.Int32
	deleteExpiredF func(ctx context.Context) (int64, error)
}

func (m *mockDeleter) DeleteExpired(ctx context.Context) (int64, error) {
	m.calls.Add(1)
	if m.deleteExpiredF != nil {
		return m.deleteExpiredF(ctx)
	}
	return 0, nil
}

type mockRecorder struct {
	counts []int64
}

func (m *mockRecorder) RecordSessionsCleaned(count int64) {
	m.counts = append(m.counts, count)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestCleanupJob_Run_RecordsAndLogsDeletedCount(t *testing.T) {
	var buf bytes.Buffer
	deleter := &mockDeleter{deleteExpiredF: func(ctx context.Context) (int64, error) { return 3, nil }}
	rec := &mockRecorder{}
	job := NewCleanupJob(deleter, rec, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(rec.counts) != 1 || rec.counts[0] != 3 {
		t.Errorf("記録された件数 = %v, want [3]", rec.counts)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("ログがJSONではない: %v", err)
	}
	if entry["deleted_count"] != float64(3) {
		t.Errorf("deleted_count = %v, want 3", entry["deleted_count"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("duration_msがログに含まれていない")
	}
}

func TestCleanupJob_Run_NothingToDelete_IsNotError(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockDeleter{}, nil, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Errorf("対象がない場合もエラーにならないこと: %v", err)
	}
}

func TestCleanupJob_Run_Error(t *testing.T) {
	var buf bytes.Buffer
	deleter := &mockDeleter{deleteExpiredF: func(ctx context.Context) (int64, error) {
		return 0, errors.New("connection refused")
	}}
	rec := &mockRecorder{}
	job := NewCleanupJob(deleter, rec, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("エラーを返すべき")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("元のエラーがラップされていない: %v", err)
	}
	if len(rec.counts) != 0 {
		t.Error("失敗時は件数を記録しない")
	}
	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Errorf("ERRORログが出力されていない: %s", buf.String())
	}
}

func TestCleanupJob_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	deleter := &mockDeleter{}
	job := NewCleanupJob(deleter, nil, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for deleter.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("定期実行されていない: calls = %d", deleter.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("キャンセル後にStartが戻らない")
	}
}
