package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"roomplane/internal/store"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	twapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// WhatsAppSender sends messages through the Twilio Messages API.
type WhatsAppSender struct {
	accountSID string
	from       string
	api        *twapi.ApiService
}

type whatsAppConfig struct {
	httpClient *http.Client
	baseURL    *url.URL
}

// WhatsAppOption configures a WhatsAppSender.
type WhatsAppOption func(*whatsAppConfig)

// WithTwilioBaseURL sends API calls to another host, e.g. a test server or a regional proxy.
func WithTwilioBaseURL(u string) WhatsAppOption {
	return func(c *whatsAppConfig) {
		if parsed, err := url.Parse(u); err == nil {
			c.baseURL = parsed
		}
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(hc *http.Client) WhatsAppOption {
	return func(c *whatsAppConfig) { c.httpClient = hc }
}

// NewWhatsAppSender creates a sender for the given Twilio account. from is a "whatsapp:+..." address.
func NewWhatsAppSender(accountSID, authToken, from string, opts ...WhatsAppOption) *WhatsAppSender {
	cfg := &whatsAppConfig{httpClient: &http.Client{Timeout: defaultSendTimeout}}
	for _, opt := range opts {
		opt(cfg)
	}

	hc := cfg.httpClient
	if cfg.baseURL != nil {
		cp := *hc
		cp.Transport = &rebaseTransport{base: cfg.baseURL, next: hc.Transport}
		hc = &cp
	}

	rest := &twclient.Client{
		Credentials: twclient.NewCredentials(accountSID, authToken),
		HTTPClient:  hc,
	}
	rest.SetAccountSid(accountSID)

	tw := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username:   accountSID,
		Password:   authToken,
		AccountSid: accountSID,
		Client:     rest,
	})
	return &WhatsAppSender{accountSID: accountSID, from: from, api: tw.Api}
}

// Channel implements Sender.
func (s *WhatsAppSender) Channel() string { return ChannelWhatsApp }

// Send implements Sender. The Twilio client takes no context, so a cancelled ctx abandons the
// call; the HTTP client timeout still bounds it.
func (s *WhatsAppSender) Send(ctx context.Context, to store.Subscriber, msg Message) error {
	if to.Phone == "" {
		return ErrNoAddress
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twapi.CreateMessageParams{}
	params.SetPathAccountSid(s.accountSID)
	params.SetFrom(s.from)
	params.SetTo("whatsapp:" + E164(to.Phone))
	params.SetBody(msg.Body)

	done := make(chan error, 1)
	go func() {
		_, err := s.api.CreateMessage(params)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err == nil {
			return nil
		}
		var te *twclient.TwilioRestError
		if errors.As(err, &te) {
			return fmt.Errorf("twilio error %d: %s", te.Code, te.Message)
		}
		return fmt.Errorf("twilio request failed: %w", err)
	}
}

// rebaseTransport rewrites every request onto base, keeping path and query.
type rebaseTransport struct {
	base *url.URL
	next http.RoundTripper
}

func (t *rebaseTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = t.base.Scheme
	r.URL.Host = t.base.Host
	r.Host = t.base.Host
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(r)
}

