package mail

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"
)

func TestVerificationMessage(t *testing.T) {
	link := "http://localhost:3000/verify-email?uid=abc&token=xyz"
	msg, err := VerificationMessage("alice@example.com", "alice", link)
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, verificationSubject, msg.Subject)
	assert.Contains(t, msg.Body, "alice 様")
	assert.Contains(t, msg.Body, link, "link must not be escaped")
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	sender := NewLogSender(log.New(&buf, "", 0))

	err := sender.Send(context.Background(), Message{To: "bob@example.com", Subject: "hi", Body: "body"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "to=bob@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sender.Send(ctx, Message{To: "bob@example.com"}), context.Canceled)
}

func TestNewSMTPSenderValidation(t *testing.T) {
	_, err := NewSMTPSender(SMTPConfig{From: "noreply@app.com"})
	assert.Error(t, err)

	_, err = NewSMTPSender(SMTPConfig{Host: "smtp.example.com"})
	assert.Error(t, err)

	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", From: "noreply@app.com"})
	require.NoError(t, err)
	assert.Equal(t, 587, s.cfg.Port)
}

func TestSMTPSenderSend(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{
		Host:     "smtp.example.com",
		Port:     2525,
		Username: "user",
		Password: "pass",
		From:     "noreply@app.com",
	})
	require.NoError(t, err)

	var got *gomail.Msg
	s.send = func(ctx context.Context, msg *gomail.Msg) error {
		got = msg
		return nil
	}

	err = s.Send(context.Background(), Message{To: "carol@example.com", Subject: "確認", Body: "line1\nline2"})
	require.NoError(t, err)
	require.NotNil(t, got)

	from, err := got.GetSender(false)
	require.NoError(t, err)
	assert.Equal(t, "noreply@app.com", from)
	to, err := got.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"carol@example.com"}, to)
	assert.Equal(t, []string{"確認"}, got.GetGenHeader(gomail.HeaderSubject))

	parts := got.GetParts()
	require.Len(t, parts, 1)
	body, err := parts[0].GetContent()
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", string(body))
}

func TestSMTPSenderSendError(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", From: "noreply@app.com"})
	require.NoError(t, err)

	boom := errors.New("connection refused")
	s.send = func(context.Context, *gomail.Msg) error { return boom }

	err = s.Send(context.Background(), Message{To: "dave@example.com"})
	assert.ErrorIs(t, err, boom)

	assert.Error(t, s.Send(context.Background(), Message{To: "  "}))
	assert.Error(t, s.Send(context.Background(), Message{To: "not an address"}))
}
