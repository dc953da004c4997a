// Package channel picks the delivery channel for phone verification.
package channel

import (
	"strings"

	"github.com/medconnect-auth/internal/domain"
)

// Selector routes a phone number to WhatsApp or SMS by calling code.
type Selector struct {
	smsOnly  []string
	whatsApp []string
}

// NewSelector builds a Selector. Calling codes are given without "+".
func NewSelector(smsOnlyCodes, whatsAppCodes []string) *Selector {
	return &Selector{
		smsOnly:  normalize(smsOnlyCodes),
		whatsApp: normalize(whatsAppCodes),
	}
}

// Select returns override unchanged when it is sms or whatsapp. Otherwise
// SMS-only markets get sms and every other number gets whatsapp.
func (s *Selector) Select(phoneE164 string, override domain.Channel) domain.Channel {
	if override == domain.ChannelSMS || override == domain.ChannelWhatsApp {
		return override
	}
	digits := strings.TrimPrefix(strings.TrimSpace(phoneE164), "+")
	sms := longestMatch(digits, s.smsOnly)
	wa := longestMatch(digits, s.whatsApp)
	if sms > 0 && sms >= wa {
		return domain.ChannelSMS
	}
	return domain.ChannelWhatsApp
}

func longestMatch(digits string, codes []string) int {
	best := 0
	for _, c := range codes {
		if len(c) > best && strings.HasPrefix(digits, c) {
			best = len(c)
		}
	}
	return best
}

func normalize(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimPrefix(strings.TrimSpace(c), "+")
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
