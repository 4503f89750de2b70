// Package twilio connects parley to WhatsApp through the Twilio Messaging API.
package twilio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/patrickmn/go-cache"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

const whatsappPrefix = "whatsapp:"

// DefaultMenuTTL is how long a numbered menu stays answerable.
const DefaultMenuTTL = 24 * time.Hour

// MessageCreator is the slice of the Twilio REST API the sender uses.
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Opts holds configuration for the Twilio sender.
type Opts struct {
	AccountSID string
	AuthToken  string
	From       string
	API        MessageCreator
	Logger     *slog.Logger
	MenuTTL    time.Duration
}

// Option defines a configuration option for the Twilio sender.
type Option func(*Opts)

func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFrom sets the sending WhatsApp number, with or without the "whatsapp:" prefix.
func WithFrom(from string) Option {
	return func(o *Opts) { o.From = from }
}

// WithAPI injects the message API, bypassing credentials. Used by tests.
func WithAPI(api MessageCreator) Option {
	return func(o *Opts) { o.API = api }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Opts) { o.Logger = logger }
}

// WithMenuTTL overrides DefaultMenuTTL.
func WithMenuTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.MenuTTL = ttl }
}

// sentMenu is the last menu sent to a recipient.
type sentMenu struct {
	contextID string
	items     []domain.MenuItem
}

// Sender implements ports.Sender over Twilio WhatsApp messages.
// Menus are rendered as numbered text; a numeric reply is mapped back to the
// chosen item by ResolveMenuReply.
type Sender struct {
	api    MessageCreator
	from   string
	logger *slog.Logger
	menus  *cache.Cache
}

// NewSender creates a Twilio sender.
func NewSender(opts ...Option) (*Sender, error) {
	cfg := Opts{MenuTTL: DefaultMenuTTL}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.From == "" {
		return nil, fmt.Errorf("from number must be provided")
	}
	if cfg.API == nil {
		if cfg.AccountSID == "" || cfg.AuthToken == "" {
			return nil, fmt.Errorf("account SID and auth token must be provided")
		}
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
		cfg.API = client.Api
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}

	return &Sender{
		api:    cfg.API,
		from:   Address(cfg.From),
		logger: cfg.Logger,
		menus:  cache.New(cfg.MenuTTL, cfg.MenuTTL/2),
	}, nil
}

// Address adds the "whatsapp:" channel prefix when missing.
func Address(number string) string {
	if strings.HasPrefix(number, whatsappPrefix) {
		return number
	}
	return whatsappPrefix + number
}

// SendText sends a plain message. The returned context id is the message SID.
func (s *Sender) SendText(ctx context.Context, sessionKey, text string) (string, error) {
	return s.send(ctx, sessionKey, text)
}

// SendMenu sends the prompt followed by numbered options.
func (s *Sender) SendMenu(ctx context.Context, sessionKey, prompt string, items []domain.MenuItem) (string, error) {
	sid, err := s.send(ctx, sessionKey, RenderMenu(prompt, items))
	if err != nil {
		// The recipient never saw this menu; the previous one is stale either way.
		s.menus.Delete(Address(sessionKey))
		return "", err
	}
	s.menus.SetDefault(Address(sessionKey), sentMenu{contextID: sid, items: items})
	return sid, nil
}

func (s *Sender) send(ctx context.Context, sessionKey, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(Address(sessionKey))
	params.SetFrom(s.from)
	params.SetBody(body)

	msg, err := s.api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("failed to send message to %s: %w", sessionKey, err)
	}
	if msg == nil || msg.Sid == nil {
		return "", fmt.Errorf("twilio returned no message sid for %s", sessionKey)
	}

	s.logger.Debug("Twilio message sent", "session", sessionKey, "sid", *msg.Sid)
	return *msg.Sid, nil
}

// RenderMenu formats a menu as WhatsApp text.
func RenderMenu(prompt string, items []domain.MenuItem) string {
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n")
	for i, item := range items {
		fmt.Fprintf(&b, "\n%d. %s", i+1, item.Label)
		if item.Description != "" {
			fmt.Fprintf(&b, " (%s)", item.Description)
		}
	}
	return b.String()
}

// ResolveMenuReply turns a numeric or label text reply to the last menu sent to
// sessionKey into the button event a native quick reply would have produced.
// Other events are returned unchanged.
func (s *Sender) ResolveMenuReply(sessionKey string, ev domain.InboundEvent) domain.InboundEvent {
	if ev.Kind != domain.KindText {
		return ev
	}
	v, ok := s.menus.Get(Address(sessionKey))
	if !ok {
		return ev
	}
	menu := v.(sentMenu)

	choice := strings.TrimSpace(ev.Payload)
	for i, item := range menu.items {
		if choice == fmt.Sprint(i+1) || strings.EqualFold(choice, item.Label) {
			ev.Kind = domain.KindButton
			ev.Payload = item.Value
			ev.ContextID = menu.contextID
			return ev
		}
	}
	return ev
}
