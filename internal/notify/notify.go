// Package notify はERRORログを管理者へ通知する送信先と非同期キューを提供する。
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Reporter は通知1件を送信する。
type Reporter interface {
	Report(ctx context.Context, subject, body string) error
}

// MultiReporter は複数の送信先へ順に送信する。
// 1つが失敗しても残りには送信し、エラーはまとめて返す。
type MultiReporter []Reporter

// Report は全ての送信先へ通知を送る。
func (m MultiReporter) Report(ctx context.Context, subject, body string) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(ctx, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type message struct {
	subject string
	body    string
}

// Queue は通知をバッファし、バックグラウンドで送信する。
// バッファが満杯の場合は通知を破棄し、ログ出力の呼び出し元をブロックしない。
type Queue struct {
	reporter Reporter
	timeout  time.Duration
	ch       chan message
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewQueue は送信ゴルーチンを起動したQueueを返す。
func NewQueue(reporter Reporter, size int, timeout time.Duration) *Queue {
	q := &Queue{
		reporter: reporter,
		timeout:  timeout,
		ch:       make(chan message, size),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Enqueue は通知をキューに積む。満杯またはClose済みの場合は破棄する。
func (q *Queue) Enqueue(subject, body string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- message{subject: subject, body: body}:
	default:
		// ERRORで記録すると再び通知対象になるためWARNに留める
		slog.Warn("エラー通知キューが満杯のため破棄しました", slog.String("subject", subject))
	}
}

// Close は新規受付を止め、キューに残った通知を送信し終えるまで待つ。
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()
	for m := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.reporter.Report(ctx, m.subject, m.body); err != nil {
			slog.Warn("エラー通知の送信に失敗しました",
				slog.String("subject", m.subject),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}
}
