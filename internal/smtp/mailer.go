package smtp

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/cradoe/fundsrail/assets"

	"github.com/wneessen/go-mail"

	htmlTemplate "html/template"
	textTemplate "text/template"
)

const defaultTimeout = 10 * time.Second

var templateFuncs = map[string]any{
	"upper": strings.ToUpper,
	"formatTime": func(t time.Time) string {
		return t.UTC().Format("02 Jan 2006 15:04 MST")
	},
}

type MailClient interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type MailerInterface interface {
	Send(ctx context.Context, recipient string, data any, patterns ...string) error
}

type Mailer struct {
	client     MailClient
	from       string
	retryDelay time.Duration
}

func NewMailer(host string, port int, username, password, from string) (*Mailer, error) {
	client, err := mail.NewClient(
		host,
		mail.WithTimeout(defaultTimeout),
		mail.WithPort(port),
		mail.WithUsername(username),
		mail.WithPassword(password),
		mail.WithTLSPolicy(mail.NoTLS),
	)
	if err != nil {
		return nil, err
	}

	return &Mailer{
		client:     client,
		from:       from,
		retryDelay: 2 * time.Second,
	}, nil
}

func NewMailerWithClient(client MailClient, from string) *Mailer {
	return &Mailer{client: client, from: from}
}

func (m *Mailer) Send(ctx context.Context, recipient string, data any, patterns ...string) error {
	files := make([]string, len(patterns))
	for i := range patterns {
		files[i] = "emails/" + patterns[i]
	}

	msg := mail.NewMsg()

	if err := msg.To(recipient); err != nil {
		return err
	}

	if err := msg.From(m.from); err != nil {
		return err
	}

	ts, err := textTemplate.New("").Funcs(templateFuncs).ParseFS(assets.EmbeddedFiles, files...)
	if err != nil {
		return err
	}

	subject := new(bytes.Buffer)
	if err := ts.ExecuteTemplate(subject, "subject", data); err != nil {
		return err
	}

	msg.Subject(subject.String())

	plainBody := new(bytes.Buffer)
	if err := ts.ExecuteTemplate(plainBody, "plainBody", data); err != nil {
		return err
	}

	msg.SetBodyString(mail.TypeTextPlain, plainBody.String())

	if ts.Lookup("htmlBody") != nil {
		ts, err := htmlTemplate.New("").Funcs(templateFuncs).ParseFS(assets.EmbeddedFiles, files...)
		if err != nil {
			return err
		}

		htmlBody := new(bytes.Buffer)
		if err := ts.ExecuteTemplate(htmlBody, "htmlBody", data); err != nil {
			return err
		}

		msg.AddAlternativeString(mail.TypeTextHTML, htmlBody.String())
	}

	var sendErr error
	for i := 1; i <= 3; i++ {
		sendErr = m.client.DialAndSendWithContext(ctx, msg)
		if sendErr == nil {
			return nil
		}

		if i != 3 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.retryDelay):
			}
		}
	}

	return sendErr
}
