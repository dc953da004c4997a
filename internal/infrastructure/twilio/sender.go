// Package twilio delivers SMS through the Twilio Messages API.
package twilio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/medconnect-auth/internal/config"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type Sender struct {
	api        messageCreator
	fromNumber string
}

func NewSender(cfg *config.Config) (*Sender, error) {
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" {
		return nil, fmt.Errorf("twilio credentials are not configured")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.TwilioAccountSID,
		Password: cfg.TwilioAuthToken,
	})
	return &Sender{api: client.Api, fromNumber: cfg.TwilioFromNumber}, nil
}

// SendSMS sends message to an E.164 number. The Twilio client has no
// context support, so ctx is only checked before the call.
func (s *Sender) SendSMS(ctx context.Context, to, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.fromNumber)
	params.SetBody(message)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	if resp != nil && resp.Sid != nil {
		slog.Info("sms queued", "provider", "twilio", "sid", *resp.Sid)
	}
	return nil
}
