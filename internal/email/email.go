// Package email delivers ticket emails with an inline QR code and wallet
// links over SMTP.
package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/inbucket/html2text"
	"github.com/wneessen/go-mail"

	"wallet-ticket-service/internal/config"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

type Client struct {
	cfg       config.EmailConfig
	templates *template.Template
	logger    *slog.Logger
}

// TicketData fills the ticket email template.
type TicketData struct {
	Name            string
	Code            string
	GoogleWalletURL string
	AppleWalletURL  string
}

func NewClient(cfg config.EmailConfig) (*Client, error) {
	templates, err := template.ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("email templates: %w", err)
	}

	return &Client{
		cfg:       cfg,
		templates: templates,
		logger:    slog.With("component", "email"),
	}, nil
}

// buildMessage renders the ticket email. The QR PNG is embedded inline and
// referenced from the HTML as cid:qrcode.png.
func (c *Client) buildMessage(to string, data TicketData, qrPNG []byte) (*mail.Msg, error) {
	var html bytes.Buffer
	if err := c.templates.ExecuteTemplate(&html, "ticket.html.tmpl", data); err != nil {
		return nil, fmt.Errorf("render ticket email: %w", err)
	}

	text, err := html2text.FromString(html.String(), html2text.Options{OmitLinks: false})
	if err != nil {
		return nil, fmt.Errorf("ticket email text alternative: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(c.cfg.From); err != nil {
		return nil, err
	}
	if err := msg.To(to); err != nil {
		return nil, err
	}
	msg.Subject(c.cfg.Subject)
	msg.SetBodyString(mail.TypeTextPlain, text)
	msg.AddAlternativeString(mail.TypeTextHTML, html.String())
	if err := msg.EmbedReader("qrcode.png", bytes.NewReader(qrPNG),
		mail.WithFileContentType(mail.ContentType("image/png"))); err != nil {
		return nil, fmt.Errorf("embed qr code: %w", err)
	}
	return msg, nil
}

// SendTicket mails the ticket to one recipient.
func (c *Client) SendTicket(to string, data TicketData, qrPNG []byte) error {
	msg, err := c.buildMessage(to, data, qrPNG)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(c.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if c.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(c.cfg.Username),
			mail.WithPassword(c.cfg.Password),
		)
	}

	client, err := mail.NewClient(c.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSend(msg); err != nil {
		return fmt.Errorf("send ticket email: %w", err)
	}

	c.logger.Info("Ticket email sent", "to", to)
	return nil
}
