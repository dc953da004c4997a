package orchestrator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/medconnect-auth/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestMessageFor_Suggestions(t *testing.T) {
	tests := []struct {
		err  error
		kind domain.MessageKind
		next domain.Suggestion
	}{
		{fmt.Errorf("x: %w", domain.ErrInvalidCredentials), domain.MsgInvalidCredentials, domain.SuggestResetPassword},
		{domain.ErrEmailNotConfirmed, domain.MsgEmailNotConfirmed, domain.SuggestCheckInbox},
		{domain.ErrAccountNotFound, domain.MsgAccountNotFound, domain.SuggestSwitchToSignUp},
		{domain.ErrAccountAlreadyExists, domain.MsgAccountAlreadyExists, domain.SuggestSwitchToSignIn},
		{domain.ErrCodeExpired, domain.MsgInvalidOrExpiredCode, domain.SuggestResend},
		{domain.ErrInvalidCode, domain.MsgInvalidOrExpiredCode, domain.SuggestResend},
		{domain.ErrAttemptsExhausted, domain.MsgAttemptsExhausted, domain.SuggestResend},
		{domain.ErrUnsupportedDomain, domain.MsgUnsupportedDomain, domain.SuggestRetry},
		{domain.ErrChannelDelivery, domain.MsgChannelDelivery, domain.SuggestRetry},
		{errors.New("teapot"), domain.MsgUnknown, domain.SuggestRetry},
	}
	for _, tc := range tests {
		t.Run(string(tc.kind), func(t *testing.T) {
			m := messageFor(tc.err)
			assert.Equal(t, tc.kind, m.Kind)
			assert.Equal(t, tc.next, m.Suggestion)
			assert.True(t, m.IsError)
		})
	}
}

func TestMaskTarget(t *testing.T) {
	assert.Equal(t, "d****r@gmail.com", maskTarget("doctor@gmail.com"))
	assert.Equal(t, "a*@gmail.com", maskTarget("ab@gmail.com"))
	assert.Equal(t, "+86*******7996", maskTarget("+8613138607996"))
	assert.Equal(t, "1*", maskTarget("12"))
}

func TestCodeSentMessage_MentionsFallback(t *testing.T) {
	m := codeSentMessage("+971501234567", domain.ChannelWhatsApp, domain.ChannelWhatsApp)
	assert.NotContains(t, m.Text, "SMS")
	assert.False(t, m.IsError)

	m = codeSentMessage("+971501234567", domain.ChannelWhatsApp, domain.ChannelSMS)
	assert.Contains(t, m.Text, "SMS")
	assert.Equal(t, domain.SuggestEnterCode, m.Suggestion)
}
