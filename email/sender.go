package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/gomail.v2"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

const (
	TemplateQuoteFollowup  = "quote_followup.html"
	TemplateInvoicePayment = "invoice_payment.html"
)

// TemplateData is what the reminder templates render.
type TemplateData struct {
	ClientName       string
	OrganisationName string
	Number           string
	Title            string
	Days             int
	Amount           float64
	Currency         string
	DueDate          string
}

type Message struct {
	FromName string
	ReplyTo  string
	To       string
	Subject  string
	Template string
	Data     TemplateData
}

type Sender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Retry    time.Duration
}

// Render executes the message template.
func Render(msg Message) (string, error) {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, msg.Template, msg.Data); err != nil {
		return "", fmt.Errorf("template execution error: %w", err)
	}
	return body.String(), nil
}

// Send renders the template and sends the email
func (s *Sender) Send(msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("no recipient address")
	}

	body, err := Render(msg)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.From, msg.FromName)
	m.SetHeader("To", msg.To)
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(s.Host, s.Port, s.Username, s.Password)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send error: %w", err)
	}

	return nil
}

// SendWithRetry retries email sending with exponential backoff for up to
// s.Retry. Rendering and addressing errors are not retried.
func (s *Sender) SendWithRetry(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("no recipient address")
	}
	if _, err := Render(msg); err != nil {
		return err
	}

	operation := func() error {
		return s.Send(msg)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = s.Retry

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}
