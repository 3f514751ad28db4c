// Package mailer delivers rendered reports over SMTP.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Message is one outgoing mail.
type Message struct {
	From        string
	To          []string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Attachment is a file carried by a Message.
type Attachment struct {
	Name string
	Data []byte
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Options configures the SMTP sender.
type Options struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"`
	From     string `yaml:"from"`
	To       []string `yaml:"to"`
	// SubjectPrefix tags report subjects, e.g. "[Nevsky]".
	SubjectPrefix string        `yaml:"subject_prefix"`
	Timeout       time.Duration `yaml:"timeout"`
}

// knownHosts maps mailbox domains to their submission servers for when host is not configured.
var knownHosts = map[string]string{
	"gmail.com":     "smtp.gmail.com",
	"yandex.ru":     "smtp.yandex.ru",
	"ya.ru":         "smtp.yandex.ru",
	"yandex.com":    "smtp.yandex.com",
	"outlook.com":   "smtp.office365.com",
	"office365.com": "smtp.office365.com",
	"hotmail.com":   "smtp.office365.com",
	"live.com":      "smtp.office365.com",
	"mail.ru":       "smtp.mail.ru",
	"bk.ru":         "smtp.mail.ru",
	"inbox.ru":      "smtp.mail.ru",
	"list.ru":       "smtp.mail.ru",
}

// Resolve fills Host and Port from the user's mailbox domain when they are unset, and From from
// User.
func (o Options) Resolve() Options {
	if o.Host == "" {
		if at := strings.LastIndex(o.User, "@"); at >= 0 {
			o.Host = knownHosts[strings.ToLower(o.User[at+1:])]
		}
	}
	if o.Port == 0 && o.Host != "" {
		o.Port = 587
	}
	if o.From == "" {
		o.From = o.User
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	return o
}

// Configured reports whether every field needed to send is present.
func (o Options) Configured() bool {
	o = o.Resolve()
	return o.Host != "" && o.Port > 0 && o.User != "" && o.Password != "" && o.From != "" && len(o.To) > 0
}

// SMTPSender submits messages with STARTTLS and PLAIN auth.
type SMTPSender struct {
	opts Options
}

func NewSMTPSender(o Options) (*SMTPSender, error) {
	o = o.Resolve()
	if !o.Configured() {
		return nil, errors.New("NewSMTPSender: host, user, password, from and recipients are required")
	}
	return &SMTPSender{opts: o}, nil
}

func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if m.From == "" {
		m.From = s.opts.From
	}
	if len(m.To) == 0 {
		m.To = s.opts.To
	}
	body, err := Compose(m, time.Now())
	if err != nil {
		return fmt.Errorf("Send: %w", err)
	}

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	dialer := net.Dialer{Timeout: s.opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("Send: dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(s.opts.Timeout))
	}

	c, err := smtp.NewClient(conn, s.opts.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("Send: smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(tlsConfig(s.opts.Host)); err != nil {
			return fmt.Errorf("Send: starttls: %w", err)
		}
	}
	if err := c.Auth(smtp.PlainAuth("", s.opts.User, s.opts.Password, s.opts.Host)); err != nil {
		return fmt.Errorf("Send: auth: %w", err)
	}
	if err := c.Mail(m.From); err != nil {
		return fmt.Errorf("Send: mail from: %w", err)
	}
	for _, to := range m.To {
		if err := c.Rcpt(to); err != nil {
			return fmt.Errorf("Send: rcpt %s: %w", to, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("Send: data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("Send: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("Send: close body: %w", err)
	}
	return c.Quit()
}

// Compose renders m as a multipart/mixed MIME message: the HTML body first, then attachments.
func Compose(m Message, now time.Time) ([]byte, error) {
	if len(m.To) == 0 {
		return nil, errors.New("message has no recipients")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := []struct{ k, v string }{
		{"From", m.From},
		{"To", strings.Join(m.To, ", ")},
		{"Subject", mime.QEncoding.Encode("utf-8", m.Subject)},
		{"Date", now.Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", `multipart/mixed; boundary="` + mw.Boundary() + `"`},
	}
	var head bytes.Buffer
	for _, h := range header {
		fmt.Fprintf(&head, "%s: %s\r\n", h.k, h.v)
	}
	head.WriteString("\r\n")

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=utf-8"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, err
	}
	if err := writeBase64(part, []byte(m.HTML)); err != nil {
		return nil, err
	}

	for _, a := range m.Attachments {
		ctype := mime.TypeByExtension(filepath.Ext(a.Name))
		if ctype == "" {
			ctype = "application/octet-stream"
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {mime.FormatMediaType(ctype, map[string]string{"name": a.Name})},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": a.Name})},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, err
		}
		if err := writeBase64(part, a.Data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return append(head.Bytes(), buf.Bytes()...), nil
}

// writeBase64 wraps encoded lines at 76 characters.
func writeBase64(w io.Writer, data []byte) error {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 76 {
		if _, err := fmt.Fprintf(w, "%s\r\n", enc[:76]); err != nil {
			return err
		}
		enc = enc[76:]
	}
	_, err := fmt.Fprintf(w, "%s\r\n", enc)
	return err
}

func tlsConfig(host string) *tls.Config {
	return &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
}

// SplitAddresses parses a comma or semicolon separated recipient list.
func SplitAddresses(s string) []string {
	var out []string
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
