package notifier

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/rs/zerolog"
)

// HTMLSender sends a multipart email. *mailer.Mailer satisfies it.
type HTMLSender interface {
	SendHTML(to []string, subject, textBody, htmlBody string) error
}

const passwordResetSubject = "Reset your password"

var passwordResetHTML = template.Must(template.New("password_reset").Parse(`<p>Hi,</p>
<p>We received a request to reset the password for your account.</p>
<p>If you made this request, use the link below to choose a new password:</p>
<p><a href="{{.URL}}">Reset your password</a></p>
<p>This link expires in {{.ExpiresIn}}.</p>
<p>If you did not request a password reset, you can ignore this email and your password will stay the same.</p>
`))

// EmailNotifier delivers password reset links by email.
type EmailNotifier struct {
	sender HTMLSender
	logger *zerolog.Logger
}

func NewEmailNotifier(sender HTMLSender, logger *zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{sender: sender, logger: logger}
}

// SendPasswordReset emails resetURL to the recipient. SMTP delivery cannot be
// interrupted, so when ctx ends first the call returns ctx.Err() and the
// delivery finishes in the background.
func (n *EmailNotifier) SendPasswordReset(ctx context.Context, to, resetURL string, expiresIn time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var html bytes.Buffer
	if err := passwordResetHTML.Execute(&html, struct {
		URL       string
		ExpiresIn string
	}{URL: resetURL, ExpiresIn: humanizeDuration(expiresIn)}); err != nil {
		return fmt.Errorf("failed to render password reset email: %w", err)
	}

	text := fmt.Sprintf(
		"You requested a password reset. Open this link to choose a new password: %s\nThe link expires in %s.",
		resetURL, humanizeDuration(expiresIn),
	)

	done := make(chan error, 1)
	go func() {
		done <- n.sender.SendHTML([]string{to}, passwordResetSubject, text, html.String())
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		n.logger.Warn().Err(ctx.Err()).Msg("password reset email still in flight after deadline")
		return ctx.Err()
	}
}

// LogNotifier is used when no SMTP server is configured. It records that a
// reset was requested, and includes the link itself only when includeURL is
// set, which the service does outside production.
type LogNotifier struct {
	logger     *zerolog.Logger
	includeURL bool
}

func NewLogNotifier(logger *zerolog.Logger, includeURL bool) *LogNotifier {
	return &LogNotifier{logger: logger, includeURL: includeURL}
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, _, resetURL string, expiresIn time.Duration) error {
	event := n.logger.Info().Dur("expires_in", expiresIn)
	if n.includeURL {
		event = event.Str("reset_url", resetURL)
	}
	event.Msg("smtp not configured; password reset link not emailed")
	return nil
}

func humanizeDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
