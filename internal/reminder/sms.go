package reminder

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/reminders/internal/model"
)

// SMSGateway sends reminders as email to a carrier's email-to-SMS gateway,
// e.g. 5555555555@txt.example.net.
type SMSGateway struct {
	addr     string
	from     string
	to       string
	user     string
	password string
	now      func() time.Time
}

// NewSMSGateway builds a sender from delivery settings. password may be
// empty when the relay accepts unauthenticated mail.
func NewSMSGateway(cfg model.DeliveryConfig, password string) (*SMSGateway, error) {
	if cfg.Phone == "" || cfg.GatewayDomain == "" {
		return nil, errors.New("sms delivery needs delivery.phone and delivery.gateway_domain")
	}
	if cfg.SMTPAddr == "" {
		return nil, errors.New("sms delivery needs delivery.smtp_addr")
	}
	from := cfg.SMTPFrom
	if from == "" {
		from = cfg.SMTPUser
	}
	if from == "" {
		return nil, errors.New("sms delivery needs delivery.smtp_from")
	}
	return &SMSGateway{
		addr:     cfg.SMTPAddr,
		from:     from,
		to:       digits(cfg.Phone) + "@" + cfg.GatewayDomain,
		user:     cfg.SMTPUser,
		password: password,
		now:      time.Now,
	}, nil
}

// Recipient is the gateway address reminders are sent to.
func (g *SMSGateway) Recipient() string {
	return g.to
}

// Send delivers text as a plain-text message.
func (g *SMSGateway) Send(ctx context.Context, text string) error {
	msg, err := g.compose(text)
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", g.addr)
	if err != nil {
		return fmt.Errorf("connecting to smtp relay %s: %w", g.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	host, _, _ := net.SplitHostPort(g.addr)
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("starting smtp session: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("starting tls: %w", err)
		}
	}
	if g.password != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", g.user, g.password, host)); err != nil {
				return fmt.Errorf("authenticating as %s: %w", g.user, err)
			}
		}
	}

	if err := c.Mail(g.from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(g.to); err != nil {
		return fmt.Errorf("smtp RCPT TO %s: %w", g.to, err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing message: %w", err)
	}
	return c.Quit()
}

// compose renders the RFC 5322 message. Gateways turn the body into the
// SMS text, so no subject is set.
func (g *SMSGateway) compose(text string) ([]byte, error) {
	var h mail.Header
	h.SetDate(g.now())
	h.SetAddressList("From", []*mail.Address{{Address: g.from}})
	h.SetAddressList("To", []*mail.Address{{Address: g.to}})
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generating message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}
	if _, err := w.Write([]byte(text)); err != nil {
		return nil, fmt.Errorf("writing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message writer: %w", err)
	}
	return buf.Bytes(), nil
}

func digits(phone string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
}
