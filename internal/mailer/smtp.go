package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"time"

	"welcomemat/internal/observability"

	"github.com/google/uuid"
)

// SMTPConfig holds the relay settings.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTPSender delivers through an SMTP relay, upgrading to STARTTLS when offered.
type SMTPSender struct {
	cfg  SMTPConfig
	tls  *tls.Config
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	d := &net.Dialer{}
	return &SMTPSender{
		cfg:  cfg,
		tls:  &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		dial: d.DialContext,
	}
}

// Send honours ctx for the dial and, through the connection deadline, the whole exchange.
func (s *SMTPSender) Send(ctx context.Context, to, subject, plain, html string) error {
	defer observability.TrackMail(ProviderSMTP)()

	if s.cfg.Host == "" || s.cfg.From == "" {
		return errors.New("mailer: missing SMTP configuration")
	}
	from, err := mail.ParseAddress(s.cfg.From)
	if err != nil {
		return fmt.Errorf("mailer: bad sender address: %w", err)
	}
	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("mailer: bad recipient address: %w", err)
	}

	msg, err := buildMessage(from, rcpt, subject, plain, html, time.Now())
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)
	conn, err := s.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("mailer: dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("mailer: smtp handshake: %w", err)
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(s.tls.Clone()); err != nil {
			return fmt.Errorf("mailer: starttls: %w", err)
		}
	}
	if s.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("mailer: auth: %w", err)
		}
	}
	if err := c.Mail(from.Address); err != nil {
		return fmt.Errorf("mailer: MAIL FROM: %w", err)
	}
	if err := c.Rcpt(rcpt.Address); err != nil {
		return fmt.Errorf("mailer: RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("mailer: DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("mailer: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mailer: end DATA: %w", err)
	}
	return c.Quit()
}

// buildMessage renders a multipart/alternative RFC 5322 message.
func buildMessage(from, to *mail.Address, subject, plain, html string, now time.Time) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", plain},
		{"text/html; charset=utf-8", html},
	}
	for _, p := range parts {
		if p.content == "" {
			continue
		}
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Type", p.contentType)
		hdr.Set("Content-Transfer-Encoding", "quoted-printable")
		pw, err := mw.CreatePart(hdr)
		if err != nil {
			return nil, fmt.Errorf("mailer: create part: %w", err)
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("mailer: encode part: %w", err)
		}
		if err := qp.Close(); err != nil {
			return nil, fmt.Errorf("mailer: encode part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("mailer: close multipart: %w", err)
	}

	var msg bytes.Buffer
	header := [][2]string{
		{"From", from.String()},
		{"To", to.String()},
		{"Subject", mime.QEncoding.Encode("utf-8", subject)},
		{"Date", now.Format(time.RFC1123Z)},
		{"Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(from.Address))},
		{"MIME-Version", "1.0"},
		{"Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", mw.Boundary())},
	}
	for _, h := range header {
		fmt.Fprintf(&msg, "%s: %s\r\n", h[0], h[1])
	}
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func domainOf(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == '@' {
			return addr[i+1:]
		}
	}
	return "localhost"
}
