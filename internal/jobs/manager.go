// Package jobs は Asynq を使ったメール配送キューを提供します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/yourusername/account-portal/internal/mail"
)

// Manager はメール配送ジョブの投入とワーカーの起動を担います。
// mail.Sender を満たすので、同期送信の代わりにそのまま差し替えられます。
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	sender mail.Sender
	logger *log.Logger
}

// NewManager は Manager を初期化します。sender はワーカー側で実際の送信に使います。
func NewManager(redisURL string, sender mail.Sender, logger *log.Logger) (*Manager, error) {
	if sender == nil {
		return nil, errors.New("sender is nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				queueMail: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client: client,
		server: server,
		mux:    mux,
		sender: sender,
		logger: logger,
	}
	mux.HandleFunc(taskTypeMail, manager.handleMailTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Printf("asynq server stopped with error: %v", err)
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	return m.client.Close()
}

// Send はメールを配送キューに積みます。実際の送信はワーカーが行います。
func (m *Manager) Send(ctx context.Context, msg mail.Message) error {
	_, err := m.Enqueue(ctx, &TaskPayload{
		ID:      uuid.NewString(),
		Message: msg,
	})
	return err
}

// Enqueue はジョブをキューに投入します。送信失敗時の再試行はしません。
func (m *Manager) Enqueue(ctx context.Context, payload *TaskPayload) (string, error) {
	task, err := newMailTask(payload)
	if err != nil {
		return "", err
	}
	info, err := m.client.EnqueueContext(ctx, task, asynq.TaskID(payload.ID), asynq.MaxRetry(0))
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func newMailTask(payload *TaskPayload) (*asynq.Task, error) {
	if payload == nil {
		return nil, fmt.Errorf("payload is nil")
	}
	if payload.ID == "" {
		return nil, fmt.Errorf("payload.ID is required")
	}
	if payload.Message.To == "" {
		return nil, fmt.Errorf("payload.Message.To is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskTypeMail, body, asynq.Queue(queueMail)), nil
}

func (m *Manager) handleMailTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid mail payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := m.sender.Send(ctx, payload.Message); err != nil {
		m.logger.Printf("mail delivery failed id=%s to=%s: %v", payload.ID, payload.Message.To, err)
		return err
	}
	return nil
}
