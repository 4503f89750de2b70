package domain

// Reserved transition targets.
const (
	// TargetFinish ends the flow and archives the session.
	TargetFinish = "finish"
	// TargetDefault is a reserved no-op target: the engine halts the cycle without error.
	TargetDefault = "defaultSMJ"
)

// Reserved match events.
const (
	// EventAny matches any event not matched explicitly.
	EventAny = "*"
	// EventNoMatch is the fallback used when neither an explicit event nor EventAny matched.
	EventNoMatch = "nomatch"
	// EventSuccess is the synthetic event used for silent states and plain text replies.
	EventSuccess = "success"
)

// Expected reply types recorded on a Session after a prompt.
const (
	ReplyText      = "text"
	ReplyButton    = "button"
	ReplyCommunity = "community"
	ReplyImage     = "image"
	ReplyAudio     = "audio"
	ReplyAudioText = "audio_text"
	ReplyLocation  = "location"
)
