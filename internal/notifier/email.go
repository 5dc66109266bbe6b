package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/good-yellow-bee/beacon/internal/channels"
	"github.com/good-yellow-bee/beacon/internal/models"
)

// EmailConfig holds SMTP configuration read from channel settings.
type EmailConfig struct {
	Host       string   // SMTP server host
	Port       int      // SMTP server port (465 for implicit TLS, otherwise STARTTLS when offered)
	Username   string   // SMTP username (optional)
	Password   string   // SMTP password (optional)
	From       string   // From address
	Recipients []string // Email recipients
}

// EmailConfigFromChannel parses email settings: host, port (default 587),
// username, password, from and to (comma separated).
func EmailConfigFromChannel(ch channels.Channel) (EmailConfig, error) {
	config := EmailConfig{
		Host:       ch.Setting("host"),
		Port:       587,
		Username:   ch.Setting("username"),
		Password:   ch.Setting("password"),
		From:       ch.Setting("from"),
		Recipients: splitList(ch.Setting("to")),
	}
	if p := ch.Setting("port"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return EmailConfig{}, misconfigured("channel %q: invalid port %q", ch.Name, p)
		}
		config.Port = port
	}
	if err := config.Validate(); err != nil {
		return EmailConfig{}, misconfigured("channel %q: %v", ch.Name, err)
	}
	return config, nil
}

// Validate validates the email configuration.
func (c *EmailConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("SMTP port is required")
	}
	if c.From == "" {
		return fmt.Errorf("from address is required")
	}
	if len(c.Recipients) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	return nil
}

// EmailSender delivers alerts over SMTP.
type EmailSender struct {
	templates   *Templates
	dialTimeout time.Duration
	// tlsConfig overrides the TLS settings derived from the host; used in tests.
	tlsConfig *tls.Config
}

// NewEmailSender creates an email sender.
func NewEmailSender() (*EmailSender, error) {
	templates, err := LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	return &EmailSender{
		templates:   templates,
		dialTimeout: 30 * time.Second,
	}, nil
}

// Kind returns models.ChannelEmail.
func (e *EmailSender) Kind() models.ChannelKind {
	return models.ChannelEmail
}

// Send sends an alert to all configured recipients.
func (e *EmailSender) Send(ctx context.Context, alert *models.Alert, ch channels.Channel) error {
	config, err := EmailConfigFromChannel(ch)
	if err != nil {
		return err
	}

	data := AlertToTemplateData(alert)

	htmlBody, err := e.templates.RenderHTML(data)
	if err != nil {
		return fmt.Errorf("failed to render HTML template: %w", err)
	}

	plainBody, err := e.templates.RenderPlain(data)
	if err != nil {
		return fmt.Errorf("failed to render plain template: %w", err)
	}

	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Priority)), alert.Title)
	msg := buildMIMEMessage(config, subject, plainBody, htmlBody)

	return e.sendMail(ctx, config, msg)
}

// Check connects to the SMTP server and issues NOOP.
func (e *EmailSender) Check(ctx context.Context, ch channels.Channel) error {
	config, err := EmailConfigFromChannel(ch)
	if err != nil {
		return err
	}

	client, err := e.connect(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if err := client.Noop(); err != nil {
		return fmt.Errorf("SMTP NOOP failed: %w", err)
	}
	return client.Quit()
}

// buildMIMEMessage builds a MIME multipart message with HTML and plain text.
func buildMIMEMessage(config EmailConfig, subject, plainBody, htmlBody string) []byte {
	boundary := fmt.Sprintf("----=_Part_%d", time.Now().UnixNano())

	var msg strings.Builder

	// Headers
	msg.WriteString(fmt.Sprintf("From: %s\r\n", config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(config.Recipients, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", sanitizeHeader(subject)))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	msg.WriteString("\r\n")

	// Plain text part
	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(plainBody)
	msg.WriteString("\r\n")

	// HTML part
	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	msg.WriteString("\r\n")

	// End boundary
	msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return []byte(msg.String())
}

// sanitizeHeader strips line breaks so rendered titles cannot inject headers.
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// sendMail sends the email via SMTP.
func (e *EmailSender) sendMail(ctx context.Context, config EmailConfig, msg []byte) error {
	client, err := e.connect(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if config.Username != "" && config.Password != "" {
		auth := sasl.NewPlainClient("", config.Username, config.Password)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(extractEmail(config.From), nil); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	for _, rcpt := range config.Recipients {
		if err := client.Rcpt(extractEmail(rcpt), nil); err != nil {
			return fmt.Errorf("failed to add recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data: %w", err)
	}

	return client.Quit()
}

// connect dials the server. Port 465 uses implicit TLS. On other ports the
// EHLO reply is checked for STARTTLS and, when the server offers it, the
// connection is redialed with the upgrade done before any credentials are sent.
func (e *EmailSender) connect(ctx context.Context, config EmailConfig) (*smtp.Client, error) {
	addr := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))

	tlsConfig := e.tlsConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: config.Host}
	}

	if config.Port == 465 {
		conn, err := e.dial(ctx, addr, tlsConfig)
		if err != nil {
			return nil, err
		}
		return smtp.NewClient(conn), nil
	}

	conn, err := e.dial(ctx, addr, nil)
	if err != nil {
		return nil, err
	}
	client := smtp.NewClient(conn)
	if ok, _ := client.Extension("STARTTLS"); !ok {
		return client, nil
	}
	client.Close()

	conn, err = e.dial(ctx, addr, nil)
	if err != nil {
		return nil, err
	}
	client, err = smtp.NewClientStartTLS(conn, tlsConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("STARTTLS failed: %w", err)
	}
	return client, nil
}

// dial opens a TCP connection, wrapped in TLS when tlsConfig is set, bounded
// by the dial timeout and the context deadline.
func (e *EmailSender) dial(ctx context.Context, addr string, tlsConfig *tls.Config) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: e.dialTimeout}

	var conn net.Conn
	var err error
	if tlsConfig != nil {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: tlsConfig}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	return conn, nil
}

// extractEmail extracts the email address from a "Name <email>" format.
func extractEmail(addr string) string {
	if start := strings.Index(addr, "<"); start != -1 {
		if end := strings.Index(addr, ">"); end > start {
			return addr[start+1 : end]
		}
	}
	return strings.TrimSpace(addr)
}
