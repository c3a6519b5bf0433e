// Package whatsapp speaks the Twilio WhatsApp API: outbound sends over
// REST and inbound webhook form parsing with TwiML replies.
package whatsapp

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"secondbrain/internal/log"
)

const addressPrefix = "whatsapp:"

type Config struct {
	AccountSID string
	AuthToken  string
	// From is the sandbox or business number, e.g. "+14155238886".
	From    string
	BaseURL string
	Timeout time.Duration
}

// Client implements domain.Messenger over the Twilio Messages endpoint.
type Client struct {
	cfg    Config
	client *http.Client
	logger log.Logger
}

func NewClient(cfg Config, logger log.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

// Send delivers body to the given number. The whatsapp: channel prefix is
// added when missing, so callers pass bare numbers.
func (c *Client) Send(ctx context.Context, to, body string) error {
	form := url.Values{
		"From": {withPrefix(c.cfg.From)},
		"To":   {withPrefix(to)},
		"Body": {body},
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("send whatsapp message: status %d: %s", resp.StatusCode, payload)
	}
	c.logger.Info("whatsapp message sent", "to", to)
	return nil
}

func withPrefix(number string) string {
	if strings.HasPrefix(number, addressPrefix) {
		return number
	}
	return addressPrefix + number
}

// Inbound is one webhook delivery from Twilio.
type Inbound struct {
	// From is the sender's bare number, the channel prefix stripped.
	From string
	Body string
}

// ParseInbound reads the webhook form. Twilio posts
// application/x-www-form-urlencoded with From and Body fields.
func ParseInbound(r *http.Request) (Inbound, error) {
	if err := r.ParseForm(); err != nil {
		return Inbound{}, fmt.Errorf("parse webhook form: %w", err)
	}
	from := strings.TrimPrefix(r.PostForm.Get("From"), addressPrefix)
	if from == "" {
		return Inbound{}, fmt.Errorf("webhook without From field")
	}
	return Inbound{From: from, Body: r.PostForm.Get("Body")}, nil
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// TwiML renders the synchronous webhook reply. An empty body produces an
// empty <Response/>, which tells Twilio to send nothing.
func TwiML(body string) []byte {
	out, _ := xml.Marshal(twimlResponse{Message: body})
	return append([]byte(xml.Header), out...)
}
