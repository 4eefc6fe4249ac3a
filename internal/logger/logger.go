// Package logger はJSON構造化ログとエラー通知用のslogハンドラーを提供する。
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// AccessLogMessage はアクセスログのメッセージ。
// 500応答は発生源のERRORログで通知済みのため、AlertHandlerは転送しない。
const AccessLogMessage = "http_request"

// AlertSink はERROR以上のログを受け取る通知キュー。
// Enqueueはブロックしてはならない。
type AlertSink interface {
	Enqueue(subject, body string)
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// sinkが指定された場合はERROR以上のレコードをsinkにも転送する。
func Setup(w io.Writer, sink AlertSink) *slog.Logger {
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	if sink != nil {
		handler = NewAlertHandler(handler, sink)
	}
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer, sink AlertSink) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	logger := Setup(w, sink)
	slog.SetDefault(logger)
	return logger
}

// AlertHandler はslog.Handlerをラップし、ERROR以上のレコードをAlertSinkへ転送する。
type AlertHandler struct {
	inner  slog.Handler
	sink   AlertSink
	attrs  []slog.Attr
	prefix string
}

// NewAlertHandler は新しいAlertHandlerを生成する。
func NewAlertHandler(inner slog.Handler, sink AlertSink) *AlertHandler {
	return &AlertHandler{inner: inner, sink: sink}
}

// Enabled は内側のハンドラーに委譲する。
func (h *AlertHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle はレコードを内側のハンドラーに渡し、対象であれば通知キューに積む。
func (h *AlertHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.inner.Handle(ctx, r)

	if r.Level >= slog.LevelError && r.Message != AccessLogMessage {
		h.sink.Enqueue(
			fmt.Sprintf("[microblog] %s: %s", r.Level, r.Message),
			h.formatBody(r),
		)
	}
	return err
}

// WithAttrs は属性を引き継いだ新しいハンドラーを返す。
func (h *AlertHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	next.inner = h.inner.WithAttrs(attrs)
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	return next
}

// WithGroup はグループ名を引き継いだ新しいハンドラーを返す。
func (h *AlertHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.inner = h.inner.WithGroup(name)
	next.prefix = h.prefix + name + "."
	return next
}

func (h *AlertHandler) clone() *AlertHandler {
	return &AlertHandler{
		inner:  h.inner,
		sink:   h.sink,
		attrs:  append([]slog.Attr(nil), h.attrs...),
		prefix: h.prefix,
	}
}

// formatBody は通知本文を "key=value" の行で組み立てる。
func (h *AlertHandler) formatBody(r slog.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "time=%s\nlevel=%s\nmsg=%s\n", r.Time.UTC().Format("2006-01-02T15:04:05Z07:00"), r.Level, r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&b, "%s=%v\n", a.Key, a.Value.Resolve())
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, "%s%s=%v\n", h.prefix, a.Key, a.Value.Resolve())
		return true
	})
	return b.String()
}
