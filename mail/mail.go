package mail

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/matcornic/hermes/v2"
	"github.com/pkg/errors"
	"gopkg.in/gomail.v2"

	"github.com/quantonganh/postbox"
)

// Dialer opens a connection to a mail transport
type Dialer interface {
	Dial() (gomail.SendCloser, error)
}

// Settings holds the values rendered into every email
type Settings struct {
	ProductName      string
	From             string
	Host             string
	ConfirmURLFormat string
}

// NewSettings extracts mail settings from config
func NewSettings(config *postbox.Config) Settings {
	s := Settings{
		ProductName:      config.Newsletter.Product.Name,
		From:             config.Newsletter.From,
		Host:             config.Newsletter.Host,
		ConfirmURLFormat: config.Newsletter.ConfirmURLFormat,
	}
	if s.ConfirmURLFormat == "" {
		s.ConfirmURLFormat = postbox.DefaultConfirmURLFormat
	}
	return s
}

// Mailer composes emails with hermes and sends them through a Dialer
type Mailer struct {
	Settings
	dialer Dialer
}

// Ensure Mailer implements postbox.ConfirmationRequester
var _ postbox.ConfirmationRequester = (*Mailer)(nil)

// NewMailer returns new mailer
func NewMailer(settings Settings, dialer Dialer) *Mailer {
	if dialer == nil {
		dialer = NoopDialer{}
	}
	return &Mailer{
		Settings: settings,
		dialer:   dialer,
	}
}

// RequestConfirmation sends the email containing the confirmation link for action
func (m *Mailer) RequestConfirmation(email postbox.Email, action postbox.Action, token postbox.Token) error {
	var (
		subject string
		intro   string
		button  string
	)
	switch action {
	case postbox.ActionSubscribe:
		subject = fmt.Sprintf("Confirm your subscription to %s", m.ProductName)
		intro = fmt.Sprintf("Welcome to %s! Please confirm that you want to receive an email for every new post.", m.ProductName)
		button = "Confirm your subscription"
	case postbox.ActionUnsubscribe:
		subject = fmt.Sprintf("Confirm to unsubscribe from %s", m.ProductName)
		intro = fmt.Sprintf("We received a request to stop sending you new posts of %s.", m.ProductName)
		button = "Unsubscribe"
	default:
		return errors.Errorf("unknown action %q", action)
	}

	body := hermes.Email{
		Body: hermes.Body{
			Title:  subject,
			Intros: []string{intro},
			Actions: []hermes.Action{
				{
					Button: hermes.Button{
						Color: "#22BC66",
						Text:  button,
						Link:  m.confirmLink(email, action, token),
					},
				},
			},
			Outros: []string{
				"If you did not request this, just ignore this email.",
			},
		},
	}

	msg, err := m.newMessage(string(email), subject, body)
	if err != nil {
		return err
	}

	return m.send(msg)
}

func (m *Mailer) confirmLink(email postbox.Email, action postbox.Action, token postbox.Token) string {
	r := strings.NewReplacer(
		"{host}", m.Host,
		"{email}", url.PathEscape(string(email)),
		"{token}", url.QueryEscape(token.String()),
		"{action}", string(action),
	)
	return r.Replace(m.ConfirmURLFormat)
}

func (m *Mailer) hermes() hermes.Hermes {
	return hermes.Hermes{
		Product: hermes.Product{
			Name: m.ProductName,
			Link: "https://" + m.Host,
		},
	}
}

func (m *Mailer) newMessage(to, subject string, email hermes.Email) (*gomail.Message, error) {
	h := m.hermes()

	html, err := h.GenerateHTML(email)
	if err != nil {
		return nil, errors.Errorf("failed to generate HTML email: %v", err)
	}
	text, err := h.GeneratePlainText(email)
	if err != nil {
		return nil, errors.Errorf("failed to generate plain text email: %v", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", text)
	msg.AddAlternative("text/html", html)

	return msg, nil
}

func (m *Mailer) send(msg *gomail.Message) error {
	s, err := m.dialer.Dial()
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	defer s.Close()

	if err := gomail.Send(s, msg); err != nil {
		return errors.Errorf("failed to send mail to %s: %v", msg.GetHeader("To"), err)
	}

	return nil
}

// NoopDialer drops every message, for deployments without a mail transport
type NoopDialer struct{}

// Dial returns a sender that discards messages
func (NoopDialer) Dial() (gomail.SendCloser, error) {
	return noopSendCloser{}, nil
}

type noopSendCloser struct{}

func (noopSendCloser) Send(string, []string, io.WriterTo) error { return nil }

func (noopSendCloser) Close() error { return nil }
