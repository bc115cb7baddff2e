package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/review-reply-service/internal/domain"
	"github.com/helixir/review-reply-service/internal/httpclient"
	"github.com/helixir/review-reply-service/internal/observability"
)

const (
	// DefaultTwilioBaseURL is the Twilio REST API root.
	DefaultTwilioBaseURL = "https://api.twilio.com"
	// DefaultTwilioTimeout is the default request timeout.
	DefaultTwilioTimeout = 30 * time.Second

	twilioName = "twilio"
	// twilioDateLayout is the RFC 2822 format Twilio uses for date fields.
	twilioDateLayout = time.RFC1123Z
)

// TwilioConfig holds Twilio SMS settings.
type TwilioConfig struct {
	BaseURL     string
	AccountSID  string
	AuthToken   string
	FromNumber  string
	OwnerNumber string
	Timeout     time.Duration
	RateLimit   float64
}

// Twilio implements Channel over the Twilio Messages REST resource.
type Twilio struct {
	config     TwilioConfig
	httpClient *httpclient.Client
	logger     zerolog.Logger
}

// Ensure Twilio implements Channel.
var _ Channel = (*Twilio)(nil)

type twilioMessage struct {
	SID       string `json:"sid"`
	From      string `json:"from"`
	To        string `json:"to"`
	Body      string `json:"body"`
	Direction string `json:"direction"`
	DateSent  string `json:"date_sent"`
	Status    string `json:"status"`
}

type twilioMessageList struct {
	Messages []twilioMessage `json:"messages"`
}

type twilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
}

// NewTwilio creates a Twilio channel. Every credential and both numbers are required.
func NewTwilio(cfg TwilioConfig, metrics *observability.Metrics, logger zerolog.Logger) (*Twilio, error) {
	switch {
	case cfg.AccountSID == "" || cfg.AuthToken == "":
		return nil, domain.NewConfigurationError("REVIEWREPLY_MESSAGING_TWILIO_ACCOUNT_SID", "Twilio account SID and auth token are required")
	case cfg.FromNumber == "":
		return nil, domain.NewConfigurationError("messaging.twilio.from_number", "sender number is required")
	case cfg.OwnerNumber == "":
		return nil, domain.NewConfigurationError("messaging.owner_address", "owner number is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTwilioBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTwilioTimeout
	}

	return &Twilio{
		config: cfg,
		httpClient: httpclient.New(httpclient.Config{
			Name:              twilioName,
			Timeout:           cfg.Timeout,
			RateLimit:         cfg.RateLimit,
			BurstSize:         1,
			BasicAuthUser:     cfg.AccountSID,
			BasicAuthPassword: cfg.AuthToken,
		}, metrics, logger),
		logger: logger.With().Str("component", "messaging").Str("channel", twilioName).Logger(),
	}, nil
}

// Name returns "twilio".
func (t *Twilio) Name() string { return twilioName }

func (t *Twilio) messagesURL() string {
	return fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.config.BaseURL, url.PathEscape(t.config.AccountSID))
}

// Send posts an SMS to the owner and returns the message SID.
func (t *Twilio) Send(ctx context.Context, body string) (string, error) {
	form := url.Values{}
	form.Set("To", t.config.OwnerNumber)
	form.Set("From", t.config.FromNumber)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.messagesURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var msg twilioMessage
	if err := t.do(req, &msg); err != nil {
		return "", err
	}

	t.logger.Info().Str("sid", msg.SID).Str("status", msg.Status).Msg("approval request sent")
	return msg.SID, nil
}

// PollLatestInbound lists the newest message from the owner to the sender number.
func (t *Twilio) PollLatestInbound(ctx context.Context) (*domain.InboundMessage, error) {
	q := url.Values{}
	q.Set("From", t.config.OwnerNumber)
	q.Set("To", t.config.FromNumber)
	q.Set("PageSize", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.messagesURL()+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	var list twilioMessageList
	if err := t.do(req, &list); err != nil {
		return nil, err
	}
	if len(list.Messages) == 0 {
		return nil, nil
	}

	m := list.Messages[0]
	in := &domain.InboundMessage{ID: m.SID, From: m.From, Body: m.Body}
	if m.DateSent != "" {
		ts, err := time.Parse(twilioDateLayout, m.DateSent)
		if err != nil {
			t.logger.Warn().Err(err).Str("sid", m.SID).Msg("unparseable date_sent")
		} else {
			in.Timestamp = ts.UTC()
		}
	}
	return in, nil
}

// do executes req and decodes a 2xx JSON body into out.
func (t *Twilio) do(req *http.Request, out any) error {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return domain.NewExternalAPIError(twilioName, 0, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewExternalAPIError(twilioName, resp.StatusCode, "reading response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr twilioError
		msg := string(body)
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			msg = fmt.Sprintf("%d: %s", apiErr.Code, apiErr.Message)
		}
		return domain.NewExternalAPIError(twilioName, resp.StatusCode, msg, nil)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding twilio response: %w", err)
	}
	return nil
}
