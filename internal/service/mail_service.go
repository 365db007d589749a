package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/p2hgit/p2h_api/internal/config"
	"github.com/p2hgit/p2h_api/internal/models"
	"github.com/p2hgit/p2h_api/internal/utils"
)

// Mailer sends booking emails. Failures are reported to the caller, which
// logs them; they never roll back a booking.
type Mailer interface {
	SendBookingConfirmation(ctx context.Context, b *models.Booking) error
	SendRecoveryAlert(ctx context.Context, b *models.Booking) error
}

// sesAPI is the subset of the SES v2 client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESMailer sends email through Amazon SES v2.
type SESMailer struct {
	client      sesAPI
	from        string
	adminNotify string
}

// NewSESMailer loads AWS credentials from the environment and returns a
// mailer. It returns a NopMailer when no sender address is configured.
func NewSESMailer(ctx context.Context, cfg *config.MailConfig) (Mailer, error) {
	if cfg.FromEmail == "" {
		log.Warn().Msg("SES_FROM_EMAIL not set - confirmation emails disabled")
		return &NopMailer{}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSESMailer(sesv2.NewFromConfig(awsCfg), cfg.FromEmail, cfg.AdminNotifyEmail), nil
}

func newSESMailer(client sesAPI, from, adminNotify string) *SESMailer {
	return &SESMailer{client: client, from: from, adminNotify: adminNotify}
}

// SendBookingConfirmation emails the client their booking summary.
func (m *SESMailer) SendBookingConfirmation(ctx context.Context, b *models.Booking) error {
	if b.ClientEmail == "" {
		return errors.New("booking has no client email")
	}
	html, err := render(confirmationTmpl, newEmailView(b))
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Your consultation is confirmed - %s", b.ReferenceID)
	return m.send(ctx, b.ClientEmail, subject, html)
}

// SendRecoveryAlert tells the admin inbox a payment arrived without booking details.
func (m *SESMailer) SendRecoveryAlert(ctx context.Context, b *models.Booking) error {
	if m.adminNotify == "" {
		return nil
	}
	html, err := render(recoveryTmpl, newEmailView(b))
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Payment needs booking details - %s", b.ReferenceID)
	return m.send(ctx, m.adminNotify, subject, html)
}

func (m *SESMailer) send(ctx context.Context, to, subject, html string) error {
	_, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.from),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(html), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", to, err)
	}
	log.Info().Str("to", to).Str("subject", subject).Msg("Email sent")
	return nil
}

type emailView struct {
	Name        string
	ReferenceID string
	Services    string
	Date        string
	TimeSlot    string
	Amount      string
	PaymentID   string
	Email       string
}

func newEmailView(b *models.Booking) emailView {
	v := emailView{
		Name:        b.ClientName,
		ReferenceID: b.ReferenceID,
		Services:    strings.Join(b.Services, ", "),
		TimeSlot:    b.TimeSlot,
		Amount:      formatINR(b.Amount),
		Email:       b.ClientEmail,
	}
	if v.Services == "" {
		v.Services = b.ConsultationType
	}
	if b.Date != nil {
		v.Date = b.Date.In(utils.IST).Format("Monday, 2 January 2006")
	}
	if b.PaymentID != nil {
		v.PaymentID = *b.PaymentID
	}
	return v
}

// formatINR renders whole rupees without decimals and anything else with paise.
func formatINR(d decimal.Decimal) string {
	if d.Equal(d.Truncate(0)) {
		return "₹" + d.StringFixed(0)
	}
	return "₹" + d.StringFixed(2)
}

func render(t *template.Template, v emailView) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<p>Dear {{.Name}},</p>
<p>Thank you for booking with us. Your consultation is confirmed.</p>
<table>
<tr><td>Reference</td><td><strong>{{.ReferenceID}}</strong></td></tr>
<tr><td>Services</td><td>{{.Services}}</td></tr>
{{if .Date}}<tr><td>Date</td><td>{{.Date}}</td></tr>{{end}}
{{if .TimeSlot}}<tr><td>Time</td><td>{{.TimeSlot}}</td></tr>{{end}}
<tr><td>Amount paid</td><td>{{.Amount}}</td></tr>
</table>
<p>Please keep your reference ID handy when contacting us.</p>`))

var recoveryTmpl = template.Must(template.New("recovery").Parse(`<p>A payment was received without booking details.</p>
<table>
<tr><td>Reference</td><td>{{.ReferenceID}}</td></tr>
<tr><td>Payment ID</td><td>{{.PaymentID}}</td></tr>
<tr><td>Amount</td><td>{{.Amount}}</td></tr>
<tr><td>Payer email</td><td>{{.Email}}</td></tr>
</table>
<p>Open the admin console and complete the booking.</p>`))

// NopMailer drops every email.
type NopMailer struct{}

func (NopMailer) SendBookingConfirmation(ctx context.Context, b *models.Booking) error { return nil }
func (NopMailer) SendRecoveryAlert(ctx context.Context, b *models.Booking) error       { return nil }
