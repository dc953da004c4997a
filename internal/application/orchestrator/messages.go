package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/medconnect-auth/internal/domain"
)

// messageFor converts an error from a backend call into the message shown
// on the flow. Unrecognised errors keep their text.
func messageFor(err error) *domain.FlowMessage {
	msg := func(kind domain.MessageKind, text string, next domain.Suggestion) *domain.FlowMessage {
		return &domain.FlowMessage{Kind: kind, Text: text, Suggestion: next, IsError: true}
	}
	switch {
	case errors.Is(err, domain.ErrUnsupportedDomain):
		return msg(domain.MsgUnsupportedDomain, "This email domain is not supported. Use a personal or professional address from a supported provider.", domain.SuggestRetry)
	case errors.Is(err, domain.ErrValidation):
		return msg(domain.MsgValidation, "Please check the highlighted field and try again.", domain.SuggestRetry)
	case errors.Is(err, domain.ErrAccountNotFound):
		return msg(domain.MsgAccountNotFound, "No account found for this email. Taking you to sign up.", domain.SuggestSwitchToSignUp)
	case errors.Is(err, domain.ErrAccountAlreadyExists):
		return msg(domain.MsgAccountAlreadyExists, "An account with this email already exists. Taking you to sign in.", domain.SuggestSwitchToSignIn)
	case errors.Is(err, domain.ErrInvalidCredentials):
		return msg(domain.MsgInvalidCredentials, "Incorrect email or password.", domain.SuggestResetPassword)
	case errors.Is(err, domain.ErrEmailNotConfirmed):
		return msg(domain.MsgEmailNotConfirmed, "Your email is not confirmed yet. Check your inbox for the confirmation link.", domain.SuggestCheckInbox)
	case errors.Is(err, domain.ErrAttemptsExhausted):
		return msg(domain.MsgAttemptsExhausted, "Too many incorrect attempts. Request a new code.", domain.SuggestResend)
	case errors.Is(err, domain.ErrInvalidOrExpiredCode):
		return msg(domain.MsgInvalidOrExpiredCode, "The code is invalid or has expired.", domain.SuggestResend)
	case errors.Is(err, domain.ErrChannelDelivery):
		return msg(domain.MsgChannelDelivery, "We could not deliver the code. Please try again.", domain.SuggestRetry)
	case errors.Is(err, domain.ErrCooldownActive):
		return msg(domain.MsgCooldownActive, "Please wait before requesting another code.", domain.SuggestNone)
	}
	return msg(domain.MsgUnknown, err.Error(), domain.SuggestRetry)
}

func validationMessage(field, text string) *domain.FlowMessage {
	return &domain.FlowMessage{
		Kind:       domain.MsgValidation,
		Text:       text,
		Suggestion: domain.SuggestRetry,
		IsError:    true,
		Field:      field,
	}
}

func codeSentMessage(target string, requested, used domain.Channel) *domain.FlowMessage {
	text := fmt.Sprintf("We sent a 6-digit code to %s.", maskTarget(target))
	if used != requested {
		text = fmt.Sprintf("WhatsApp was unavailable, so we sent a 6-digit code by SMS to %s.", maskTarget(target))
	}
	return &domain.FlowMessage{Kind: domain.MsgCodeSent, Text: text, Suggestion: domain.SuggestEnterCode}
}

func orgDetailsMessage() *domain.FlowMessage {
	return &domain.FlowMessage{
		Kind:       domain.MsgOrgDetailsRequired,
		Text:       "Code confirmed. Complete your organization details to finish signing up.",
		Suggestion: domain.SuggestCompleteProfile,
		IsError:    true,
		Field:      "organization",
	}
}

func maskTarget(target string) string {
	if local, dom, ok := strings.Cut(target, "@"); ok {
		return maskMiddle(local, 1, 1) + "@" + dom
	}
	return maskMiddle(target, 3, 4)
}

func maskMiddle(s string, head, tail int) string {
	if len(s) <= head+tail {
		if len(s) <= 1 {
			return s
		}
		return s[:1] + strings.Repeat("*", len(s)-1)
	}
	return s[:head] + strings.Repeat("*", len(s)-head-tail) + s[len(s)-tail:]
}
