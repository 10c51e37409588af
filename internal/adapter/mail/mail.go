package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/textproto"
	"sort"

	"gopkg.in/gomail.v2"

	"github.com/polkiloo/jobber/internal/broker"
	"github.com/polkiloo/jobber/internal/messaging"
)

// Mailer renders and sends one email job.
type Mailer interface {
	Send(ctx context.Context, job messaging.EmailJob) error
}

var subjects = map[messaging.EmailTemplate]string{
	messaging.TemplateVerifyEmail:            "Verify your email",
	messaging.TemplateForgotPassword:         "Reset your password",
	messaging.TemplateResetPasswordSuccess:   "Your password was changed",
	messaging.TemplateOffer:                  "You received a custom offer",
	messaging.TemplateOrderPlaced:            "Your order has been placed",
	messaging.TemplateOrderReceipt:           "Order receipt",
	messaging.TemplateOrderDelivered:         "Your order has been delivered",
	messaging.TemplateOrderExtension:         "Delivery extension requested",
	messaging.TemplateOrderExtensionApproval: "Delivery extension update",
}

var bodyTemplate = template.Must(template.New("body").Parse(`<html><body>
<h2>{{.Subject}}</h2>
<table>{{range .Fields}}<tr><td>{{.Key}}</td><td>{{.Value}}</td></tr>{{end}}</table>
<p><a href="{{.ClientURL}}">{{.ClientURL}}</a></p>
</body></html>`))

type field struct {
	Key, Value string
}

// Subject returns the subject line used for template.
func Subject(t messaging.EmailTemplate) string {
	if s, ok := subjects[t]; ok {
		return s
	}
	return string(t)
}

func render(job messaging.EmailJob, clientURL string) (string, error) {
	keys := make([]string, 0, len(job.Locals))
	for k := range job.Locals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, field{Key: k, Value: job.Locals[k]})
	}

	var buf bytes.Buffer
	err := bodyTemplate.Execute(&buf, struct {
		Subject   string
		Fields    []field
		ClientURL string
	}{Subject(job.Template), fields, clientURL})
	if err != nil {
		return "", fmt.Errorf("render %s: %w", job.Template, err)
	}
	return buf.String(), nil
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer delivers emails through an SMTP relay.
type SMTPMailer struct {
	sender    sender
	from      string
	clientURL string
	logger    *slog.Logger
}

// NewSMTPMailer creates a mailer using gomail's dialer.
func NewSMTPMailer(host string, port int, user, password, from, clientURL string, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{
		sender:    gomail.NewDialer(host, port, user, password),
		from:      from,
		clientURL: clientURL,
		logger:    logger,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, job messaging.EmailJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := render(job, m.clientURL)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", job.ReceiverEmail)
	msg.SetHeader("Subject", Subject(job.Template))
	msg.SetBody("text/html", body)

	if err := m.sender.DialAndSend(msg); err != nil {
		err = fmt.Errorf("send %s email: %w", job.Template, err)
		if rejected(err) {
			return broker.Permanent(err)
		}
		return err
	}
	m.logger.Info("email sent", slog.String("template", string(job.Template)), slog.String("to", job.ReceiverEmail))
	return nil
}

// rejected reports a permanent SMTP failure (5xx reply). Retrying the same
// message will be refused again.
func rejected(err error) bool {
	var reply *textproto.Error
	return errors.As(err, &reply) && reply.Code >= 500 && reply.Code < 600
}

// LogMailer only logs rendered emails; used when SMTP is not configured.
type LogMailer struct {
	clientURL string
	logger    *slog.Logger
}

// NewLogMailer creates a mailer that never leaves the process.
func NewLogMailer(clientURL string, logger *slog.Logger) *LogMailer {
	return &LogMailer{clientURL: clientURL, logger: logger}
}

func (m *LogMailer) Send(_ context.Context, job messaging.EmailJob) error {
	body, err := render(job, m.clientURL)
	if err != nil {
		return err
	}
	m.logger.Info("email not sent, smtp disabled",
		slog.String("template", string(job.Template)),
		slog.String("to", job.ReceiverEmail),
		slog.Int("body_bytes", len(body)))
	return nil
}
