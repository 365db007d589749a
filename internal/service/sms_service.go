package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/p2hgit/p2h_api/internal/config"
	"github.com/p2hgit/p2h_api/internal/models"
)

// SMSSender sends a short booking confirmation to the client's phone.
type SMSSender interface {
	SendBookingConfirmation(ctx context.Context, b *models.Booking) error
}

// messageCreator is the subset of the Twilio REST client used here.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSMS sends SMS through Twilio.
type TwilioSMS struct {
	api  messageCreator
	from string
}

// NewTwilioSMS returns a Twilio sender, or a NopSMS when credentials are missing.
func NewTwilioSMS(cfg *config.SMSConfig) SMSSender {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.FromNumber == "" {
		log.Warn().Msg("Twilio not configured - SMS confirmations disabled")
		return NopSMS{}
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSMS{api: client.Api, from: cfg.FromNumber}
}

// SendBookingConfirmation texts the reference ID and slot to the client.
// Bookings without a phone number are skipped.
func (s *TwilioSMS) SendBookingConfirmation(ctx context.Context, b *models.Booking) error {
	if b.ClientPhone == nil || strings.TrimSpace(*b.ClientPhone) == "" {
		return nil
	}
	to := normalizeIndianPhone(*b.ClientPhone)

	body := fmt.Sprintf("Your consultation %s is confirmed.", b.ReferenceID)
	if b.Date != nil {
		body += fmt.Sprintf(" %s", b.Date.Format("02 Jan 2006"))
	}
	if b.TimeSlot != "" {
		body += fmt.Sprintf(" at %s", b.TimeSlot)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send to %s: %w", to, err)
	}
	if resp.Sid != nil {
		log.Info().Str("reference_id", b.ReferenceID).Str("sid", *resp.Sid).Msg("Confirmation SMS sent")
	}
	return nil
}

// normalizeIndianPhone turns 10-digit local numbers into E.164.
func normalizeIndianPhone(phone string) string {
	p := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(phone))
	switch {
	case strings.HasPrefix(p, "+"):
		return p
	case len(p) == 12 && strings.HasPrefix(p, "91"):
		return "+" + p
	case len(p) == 11 && strings.HasPrefix(p, "0"):
		return "+91" + p[1:]
	case len(p) == 10:
		return "+91" + p
	}
	return p
}

// NopSMS drops every message.
type NopSMS struct{}

func (NopSMS) SendBookingConfirmation(ctx context.Context, b *models.Booking) error { return nil }
