package mail

import (
	"bytes"
	"text/template"
)

const verificationSubject = "ご登録メールアドレスの確認"

var verificationBody = template.Must(template.New("verification").Parse(
	`{{.Username}} 様

ご登録ありがとうございます。
以下のリンクを開いてメールアドレスを確認してください。

{{.Link}}

このメールに心当たりがない場合は破棄してください。
`))

// VerificationMessage は確認リンク付きのメールを組み立てます。
func VerificationMessage(to, username, link string) (Message, error) {
	var body bytes.Buffer
	err := verificationBody.Execute(&body, struct {
		Username string
		Link     string
	}{Username: username, Link: link})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: verificationSubject,
		Body:    body.String(),
	}, nil
}
