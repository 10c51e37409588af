package mail

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/jobber/internal/config"
)

// Module provides the mailer; SMTP is used when SMTP_HOST is set.
var Module = fx.Provide(newMailer)

type mailerParams struct {
	fx.In

	Config *config.Config
	Logger *slog.Logger
}

func newMailer(p mailerParams) Mailer {
	cfg := p.Config
	if cfg.SMTPHost == "" {
		return NewLogMailer(cfg.ClientURL, p.Logger)
	}
	return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SenderEmail, cfg.ClientURL, p.Logger)
}
