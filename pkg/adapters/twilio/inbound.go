package twilio

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/twilio/twilio-go/client"
)

// ParseInbound maps a Twilio WhatsApp webhook form to the session key (the sender's
// address) and a normalized event.
func ParseInbound(form url.Values) (string, domain.InboundEvent, error) {
	from := form.Get("From")
	if from == "" {
		return "", domain.InboundEvent{}, fmt.Errorf("missing From")
	}

	ev := domain.InboundEvent{
		MessageID:  form.Get("MessageSid"),
		ContextID:  form.Get("OriginalRepliedMessageSid"),
		ReceivedAt: time.Now(),
	}
	if ev.MessageID == "" {
		ev.MessageID = form.Get("SmsMessageSid")
	}

	switch {
	case form.Get("ButtonPayload") != "":
		ev.Kind = domain.KindButton
		ev.Payload = form.Get("ButtonPayload")

	case form.Get("ListId") != "":
		ev.Kind = domain.KindInteractive
		ev.Payload = form.Get("ListId")

	case form.Get("Latitude") != "" && form.Get("Longitude") != "":
		lat, err := strconv.ParseFloat(form.Get("Latitude"), 64)
		if err != nil {
			return "", domain.InboundEvent{}, fmt.Errorf("invalid Latitude: %w", err)
		}
		lng, err := strconv.ParseFloat(form.Get("Longitude"), 64)
		if err != nil {
			return "", domain.InboundEvent{}, fmt.Errorf("invalid Longitude: %w", err)
		}
		ev.Kind = domain.KindLocation
		ev.Payload = fmt.Sprintf("%g,%g", lat, lng)
		ev.Data = map[string]any{"latitude": lat, "longitude": lng}
		if addr := form.Get("Address"); addr != "" {
			ev.Data["address"] = addr
		}
		if label := form.Get("Label"); label != "" {
			ev.Data["label"] = label
		}

	case mediaCount(form) > 0:
		contentType := form.Get("MediaContentType0")
		ev.Kind = mediaKind(contentType)
		ev.Payload = form.Get("MediaUrl0")
		ev.Data = map[string]any{"media_url": ev.Payload, "content_type": contentType}
		if body := form.Get("Body"); body != "" {
			ev.Data["caption"] = body
		}

	default:
		ev.Kind = domain.KindText
		ev.Payload = form.Get("Body")
	}

	return from, ev, nil
}

func mediaCount(form url.Values) int {
	n, err := strconv.Atoi(form.Get("NumMedia"))
	if err != nil {
		return 0
	}
	return n
}

// mediaKind classifies a media attachment. WhatsApp voice notes arrive as audio/ogg.
func mediaKind(contentType string) domain.EventKind {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return domain.KindImage
	case strings.HasPrefix(contentType, "audio/ogg"):
		return domain.KindVoice
	case strings.HasPrefix(contentType, "audio/"):
		return domain.KindAudio
	default:
		return domain.KindText
	}
}

// SignatureValidator checks the X-Twilio-Signature header of webhook requests.
type SignatureValidator struct {
	validator client.RequestValidator
}

// NewSignatureValidator creates a validator for the account's auth token.
func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{validator: client.NewRequestValidator(authToken)}
}

// Validate reports whether signature matches the full request URL and form.
func (v *SignatureValidator) Validate(fullURL string, form url.Values, signature string) bool {
	params := make(map[string]string, len(form))
	for k := range form {
		params[k] = form.Get(k)
	}
	return v.validator.Validate(fullURL, params, signature)
}
