package notify

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/mail.v2"
)

// MailConfig はSMTP送信の設定。
type MailConfig struct {
	Server   string
	Port     int
	UseTLS   bool
	Username string
	Password string
	From     string
	To       []string
}

// mailSender はmail.Dialerのうち送信に使う部分。
type mailSender interface {
	DialAndSend(m ...*mail.Message) error
}

// MailReporter は管理者宛てにエラー通知メールを送る。
type MailReporter struct {
	sender mailSender
	from   string
	to     []string
}

// NewMailReporter はSMTPダイアラーを構成したMailReporterを返す。
// Fromが空の場合は no-reply@<Server> を使う。
func NewMailReporter(cfg MailConfig) *MailReporter {
	d := mail.NewDialer(cfg.Server, cfg.Port, cfg.Username, cfg.Password)
	d.Timeout = 20 * time.Second
	if cfg.UseTLS {
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}

	from := cfg.From
	if from == "" {
		from = "no-reply@" + cfg.Server
	}
	return &MailReporter{sender: d, from: from, to: cfg.To}
}

// Report は通知メールを送信する。
func (r *MailReporter) Report(ctx context.Context, subject, body string) error {
	if len(r.to) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", r.from)
	m.SetHeader("To", r.to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := r.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("send error mail: %w", err)
	}
	return nil
}
