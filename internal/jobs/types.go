package jobs

import "github.com/yourusername/account-portal/internal/mail"

const (
	taskTypeMail = "mail:deliver"
	queueMail    = "mail"
)

// TaskPayload はメール配送ジョブのペイロードです。
type TaskPayload struct {
	ID      string       `json:"id"`
	Message mail.Message `json:"message"`
}
