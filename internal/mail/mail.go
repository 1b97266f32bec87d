// Package mail はメール送信の抽象化と実装を提供します。
package mail

import (
	"context"
	"log"
)

// Message は送信するメール1通分の内容です。
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender はメールを送信できる実装が満たすインターフェースです。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender は送信せずにログへ出力するだけの Sender です。ローカル開発用。
type LogSender struct {
	logger *log.Logger
}

// NewLogSender は LogSender を作成します。
func NewLogSender(logger *log.Logger) *LogSender {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSender{logger: logger}
}

// Send はメール内容をログへ書き出します。
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Printf("mail to=%s subject=%q\n%s", msg.To, msg.Subject, msg.Body)
	return nil
}
