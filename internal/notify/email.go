package notify

import (
	"context"
	"fmt"
	"net"
	"time"

	"roomplane/internal/store"

	"github.com/wneessen/go-mail"
)

const defaultSendTimeout = 20 * time.Second

// deliverFunc hands a finished message to the relay.
type deliverFunc func(ctx context.Context, m *mail.Msg) error

// EmailSender sends plain-text mail through an SMTP relay. STARTTLS is used when the server offers it.
type EmailSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	timeout  time.Duration
	deliver  deliverFunc
}

// EmailOption configures an EmailSender.
type EmailOption func(*EmailSender)

// WithSendTimeout bounds one delivery, from dial to the final QUIT.
func WithSendTimeout(d time.Duration) EmailOption {
	return func(s *EmailSender) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewEmailSender creates an SMTP sender. Auth is skipped when username is empty.
func NewEmailSender(host string, port int, username, password, from string, opts ...EmailOption) *EmailSender {
	s := &EmailSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		timeout:  defaultSendTimeout,
	}
	s.deliver = s.dialAndSend
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Channel implements Sender.
func (s *EmailSender) Channel() string { return ChannelEmail }

// Send implements Sender.
func (s *EmailSender) Send(ctx context.Context, to store.Subscriber, msg Message) error {
	if to.Email == "" {
		return ErrNoAddress
	}
	m, err := s.message(to.Email, msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.deliver(ctx, m); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

func (s *EmailSender) message(to string, msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat("Tarteel", s.from); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", s.from, err)
	}
	if err := m.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

func (s *EmailSender) dialAndSend(ctx context.Context, m *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(s.timeout),
		mail.WithDialContextFunc(deadlineDialer),
	}
	if s.username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.username),
			mail.WithPassword(s.password),
		)
	}
	client, err := mail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, m)
}

// deadlineDialer carries the context deadline onto the connection so a relay that stops
// answering mid-conversation cannot hold the job.
func deadlineDialer(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}
