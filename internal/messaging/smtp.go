package messaging

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SMTPConfig configures the email transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
}

// SMTPSender sends plain text mail. It is used for interviewer handles that
// are email addresses.
type SMTPSender struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now  func() time.Time
}

// NewSMTPSender builds a sender from cfg.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Subject == "" {
		cfg.Subject = "Interview scheduling"
	}
	return &SMTPSender{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

// Send implements Sender. net/smtp has no context support, so the call runs
// in a goroutine and Send returns early when ctx is done.
func (s *SMTPSender) Send(ctx context.Context, handle, text string) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	msg := s.compose(handle, text)

	done := make(chan error, 1)
	go func() {
		done <- s.send(addr, auth, s.cfg.From, []string{handle}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return &DeliveryError{Transport: "smtp", Handle: handle, Err: err}
		}
		return nil
	case <-ctx.Done():
		return &DeliveryError{Transport: "smtp", Handle: handle, Err: ctx.Err()}
	}
}

func (s *SMTPSender) compose(to, text string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", s.cfg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", s.now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(text, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
