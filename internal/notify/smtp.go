package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"gopkg.in/gomail.v2"

	"portfolioapi/pkg/domain"
)

// SMTPConfig configures SMTPMailer. From defaults to Username and To falls
// back to From.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// SMTPMailer emails the site owner about each contact message.
type SMTPMailer struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
	send   func(...*gomail.Message) error
}

// NewSMTPMailer validates credentials and prepares a dialer. Connections are
// opened per message.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	cfg.Username = strings.TrimSpace(cfg.Username)
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("smtp username and password are required")
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if strings.TrimSpace(cfg.From) == "" {
		cfg.From = cfg.Username
	}
	if strings.TrimSpace(cfg.To) == "" {
		cfg.To = cfg.From
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &SMTPMailer{cfg: cfg, dialer: d, send: d.DialAndSend}, nil
}

func (m *SMTPMailer) Name() string { return "smtp" }

// NotifyContact sends the HTML notification. gomail has no context support,
// so a cancelled ctx abandons the wait but not the in-flight dial.
func (m *SMTPMailer) NotifyContact(ctx context.Context, msg domain.ContactMessage) error {
	return m.deliver(ctx, m.contactMessage(msg))
}

// SendTest mails a plain-text probe to the configured sender.
func (m *SMTPMailer) SendTest(ctx context.Context) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.From)
	msg.SetHeader("Subject", "Portfolio Email Test")
	msg.SetBody("text/plain", "This is a test email from your portfolio application.")
	return m.deliver(ctx, msg)
}

// Verify opens and closes an authenticated SMTP session.
func (m *SMTPMailer) Verify() error {
	conn, err := m.dialer.Dial()
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	return conn.Close()
}

func (m *SMTPMailer) deliver(ctx context.Context, msg *gomail.Message) error {
	done := make(chan error, 1)
	go func() { done <- m.send(msg) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}

func (m *SMTPMailer) contactMessage(c domain.ContactMessage) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.To)
	msg.SetHeader("Reply-To", c.Email)
	msg.SetHeader("Subject", "New Contact Form Submission: "+c.Subject)
	msg.SetBody("text/plain", renderContactText(c))
	msg.AddAlternative("text/html", renderContactHTML(c))
	return msg
}

func renderContactText(c domain.ContactMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\nEmail: %s\nSubject: %s\n\n%s\n", c.Name, c.Email, c.Subject, c.Message)
	b.WriteString("\nThis email was sent from your portfolio contact form.\n")
	return b.String()
}

// renderContactHTML escapes every user-supplied field before embedding it.
func renderContactHTML(c domain.ContactMessage) string {
	esc := html.EscapeString
	body := strings.ReplaceAll(esc(c.Message), "\n", "<br>")
	var b strings.Builder
	b.WriteString(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">`)
	b.WriteString(`<h2 style="color: #21808d;">New Contact Form Submission</h2>`)
	b.WriteString(`<div style="background: #f9f9f9; padding: 20px; border-radius: 8px;">`)
	fmt.Fprintf(&b, `<p><strong>Name:</strong> %s</p>`, esc(c.Name))
	fmt.Fprintf(&b, `<p><strong>Email:</strong> %s</p>`, esc(c.Email))
	fmt.Fprintf(&b, `<p><strong>Subject:</strong> %s</p>`, esc(c.Subject))
	b.WriteString(`<p><strong>Message:</strong></p>`)
	fmt.Fprintf(&b, `<div style="background: white; padding: 15px; border-radius: 4px; margin-top: 10px;">%s</div>`, body)
	b.WriteString(`</div>`)
	b.WriteString(`<p style="color: #666; font-size: 12px; margin-top: 20px;">This email was sent from your portfolio contact form.</p>`)
	b.WriteString(`</div>`)
	return b.String()
}

// MaskAddress hides most of the local part, e.g. "jan***@gmail.com".
func MaskAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "NOT SET"
	}
	local, domainPart, ok := strings.Cut(addr, "@")
	if !ok {
		return "***"
	}
	if len(local) > 3 {
		local = local[:3]
	}
	return local + "***@" + domainPart
}
