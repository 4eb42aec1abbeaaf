package adapters

import (
	"context"
	"fmt"
	"net/smtp"
)

// SMTPSink implements Sink by submitting mail through an SMTP relay. No
// pack example imports a third-party mail client (gomail, sendgrid-go,
// etc.) — net/smtp is the only grounded option here.
type SMTPSink struct {
	addr string
	from string
	auth smtp.Auth
}

// NewSMTPSink constructs a Sink targeting the relay at addr (host:port).
// auth is optional; pass nil for an unauthenticated relay.
func NewSMTPSink(addr, from, username, password, host string) *SMTPSink {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPSink{addr: addr, from: from, auth: auth}
}

// Send submits a plain-text message. The context is not consulted —
// net/smtp.SendMail has no context-aware variant — so Send returns only when
// SendMail does; a context deadline does not interrupt it.
func (s *SMTPSink) Send(_ context.Context, to []string, subject, body string) error {
	msg := fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s\r\n", joinAddrs(to), subject, body)
	return smtp.SendMail(s.addr, s.auth, s.from, to, []byte(msg))
}

func joinAddrs(addrs []string) string {
	out := ""
	for i, a := range addrs {
		if i > 0 {
			out += ", "
		}
		out += a
	}
	return out
}
