package guardrails

// ReasonCode is the machine-readable cause of a denied verdict.
type ReasonCode string

const (
	ReasonPromptTooLong     ReasonCode = "prompt_too_long"
	ReasonSecretsInPrompt   ReasonCode = "secrets_in_prompt"
	ReasonDisallowedRequest ReasonCode = "disallowed_request"
	ReasonToxicContent      ReasonCode = "toxic_content"
	ReasonOutputTooLong     ReasonCode = "output_too_long"
	ReasonSecretsInOutput   ReasonCode = "secrets_in_output"
	ReasonDisallowedOutput  ReasonCode = "disallowed_output"
	ReasonToxicOutput       ReasonCode = "toxic_output"
)

const (
	// RateLimitedMessage is shown when the caller exceeds the request window.
	RateLimitedMessage = "You've sent too many messages. Please wait a moment before trying again."
	// UnavailableMessage is shown when the model or search collaborator fails.
	UnavailableMessage = "I'm having trouble connecting right now. Please check your connection and try again."

	defaultRefusal = "I can't help with that request. Please try asking something else."
)

var refusalMessages = map[ReasonCode]string{
	ReasonPromptTooLong:     "Your message is too long. Please keep it under 20,000 characters.",
	ReasonSecretsInPrompt:   "Your message appears to contain sensitive information like API keys or passwords. Please remove them before continuing.",
	ReasonDisallowedRequest: "I can't help with that request. If you share what you're trying to achieve at a high level, I can suggest a safer alternative.",
	ReasonToxicContent:      "Your message contains inappropriate or harmful language. Please rephrase your question respectfully.",
	ReasonSecretsInOutput:   "The response contained sensitive information and has been blocked for your safety.",
	ReasonDisallowedOutput:  "The response contained inappropriate content and has been blocked.",
	ReasonToxicOutput:       "The response contained inappropriate content and has been blocked for your safety.",
	ReasonOutputTooLong:     "The response was too long. Please try asking a more specific question.",
}

// MessageFor maps a reason code to the text shown to the user. Unknown codes
// get a generic decline.
func MessageFor(reason ReasonCode) string {
	if msg, ok := refusalMessages[reason]; ok {
		return msg
	}
	return defaultRefusal
}

type reasonKind int

const (
	reasonTooLong reasonKind = iota
	reasonSecrets
	reasonDisallowed
	reasonToxic
)

var reasonByChannel = map[Channel][4]ReasonCode{
	ChannelPrompt: {ReasonPromptTooLong, ReasonSecretsInPrompt, ReasonDisallowedRequest, ReasonToxicContent},
	ChannelOutput: {ReasonOutputTooLong, ReasonSecretsInOutput, ReasonDisallowedOutput, ReasonToxicOutput},
}

func deny(channel Channel, kind reasonKind, rule string) Verdict {
	codes, ok := reasonByChannel[channel]
	if !ok {
		codes = reasonByChannel[ChannelPrompt]
	}
	return Verdict{Allowed: false, Reason: codes[kind], Rule: rule}
}
