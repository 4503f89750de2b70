package dispatch

import (
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/reply"
)

// Supported re-prompt languages.
const (
	LangEnglish = "en"
	LangHindi   = "hi"
)

// RepromptText returns the explanation sent when a reply is rejected.
// Unknown languages fall back to English.
func RepromptText(lang, expected, reason string) string {
	hi := lang == LangHindi

	switch expected {
	case domain.ReplyText:
		if hi {
			return "अमान्य विकल्प!! कृपया लिख कर अपना सवाल या टिप्पणी भेजिए।"
		}
		return "Sorry, we are expecting a text response from you."
	case domain.ReplyButton, domain.ReplyCommunity:
		if reason == reply.ReasonWrongMenu {
			if hi {
				return "आपने ग़लत मेनू से विकल्प चुना है।"
			}
			return "You have chosen the option from the wrong menu."
		}
		if hi {
			return "आपने हमें जो भेजा है वो इन विकल्पों में से एक नहीं है। आपको दिए गए विकल्पों में से ही कोई विकल्प का चुनाव करना है।"
		}
		return "Sorry, we are expecting a button response from you."
	case domain.ReplyAudio:
		if hi {
			return "माफ़ कीजिये, कृपया ऑडियो रिकॉर्ड करके अपनी बात बताएं।"
		}
		return "Sorry, we are expecting an audio response from you."
	case domain.ReplyAudioText:
		if hi {
			return "माफ़ कीजिये, अपनी बात लिखित में या फिर ऑडियो रिकॉर्ड करके बताएं।"
		}
		return "Sorry, please write your message or record it as audio."
	case domain.ReplyImage:
		if hi {
			return "माफ़ कीजिये, कृपया फोटो अपलोड कर अपनी बात रखें।"
		}
		return "Sorry, we are expecting an image response from you."
	case domain.ReplyLocation:
		if hi {
			return "माफ़ कीजिये, कृपया अपना स्थान भेजें।"
		}
		return "Sorry, we are expecting a location response from you."
	}

	if hi {
		return "अमान्य विकल्प!!"
	}
	return "Sorry, we are expecting a different input."
}
