package utils

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"
)

// Transport delivers one rendered message. Implementations must return a
// *RecipientRejectedError when the provider refuses the address itself
// (suppressed, bounced, complained) so callers can tell that apart from a
// transient failure.
type Transport interface {
	Send(to, subject, html string) error
}

// RecipientRejectedError marks a provider-level rejection of the recipient.
// Retrying will not help; the condition is specific to the address.
type RecipientRejectedError struct {
	Email  string
	Reason string
}

func (e *RecipientRejectedError) Error() string {
	return fmt.Sprintf("recipient %s rejected: %s", e.Email, e.Reason)
}

// IsRecipientRejected reports whether err is a recipient-level rejection.
func IsRecipientRejected(err error) bool {
	var rejected *RecipientRejectedError
	return errors.As(err, &rejected)
}

// Mailer is the SMTP transport.
type Mailer struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

func NewMailer(host string, port int, username, password, fromEmail, fromName string) *Mailer {
	return &Mailer{
		Host:      host,
		Port:      port,
		Username:  username,
		Password:  password,
		FromEmail: fromEmail,
		FromName:  fromName,
	}
}

func (m *Mailer) Send(to, subject, html string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", fmt.Sprintf("%s <%s>", m.FromName, m.FromEmail))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html)

	d := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	if err := d.DialAndSend(msg); err != nil {
		if isRejectionCode(err) {
			return &RecipientRejectedError{Email: to, Reason: err.Error()}
		}
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}

// 550/551/553 are the SMTP replies servers use for unknown, suppressed or
// policy-blocked mailboxes.
func isRejectionCode(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "550") ||
		strings.Contains(msg, "551") ||
		strings.Contains(msg, "553")
}
