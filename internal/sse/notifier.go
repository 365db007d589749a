package sse

import (
	"time"

	"github.com/p2hgit/p2h_api/internal/models"
)

// BookingNotifier is the interface services use to emit booking events.
type BookingNotifier interface {
	NotifyBookingCreated(b *models.Booking)
	NotifyBookingStatusChanged(b *models.Booking)
	NotifyPaymentRecovered(b *models.Booking)
}

// HubNotifier implements BookingNotifier using the SSE Hub.
type HubNotifier struct {
	hub *Hub
}

// NewHubNotifier creates a notifier backed by the given Hub.
func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) NotifyBookingCreated(b *models.Booking) {
	n.broadcast(EventBookingCreated, b)
}

func (n *HubNotifier) NotifyBookingStatusChanged(b *models.Booking) {
	n.broadcast(EventBookingStatusChanged, b)
}

func (n *HubNotifier) NotifyPaymentRecovered(b *models.Booking) {
	n.broadcast(EventPaymentRecovered, b)
}

func (n *HubNotifier) broadcast(eventType EventType, b *models.Booking) {
	n.hub.Broadcast(bookingToEvent(eventType, b))
}

func bookingToEvent(eventType EventType, b *models.Booking) *BookingEvent {
	return &BookingEvent{
		Event:         eventType,
		BookingID:     b.ID,
		ReferenceID:   b.ReferenceID,
		ClientName:    b.ClientName,
		ClientEmail:   b.ClientEmail,
		Status:        string(b.Status),
		PaymentID:     b.PaymentID,
		OrderID:       b.OrderID,
		PaymentStatus: b.PaymentStatus,
		Amount:        b.Amount.String(),
		Services:      b.Services,
		Timestamp:     time.Now(),
	}
}

// NopNotifier is a no-op implementation for when SSE is not needed.
type NopNotifier struct{}

func (n *NopNotifier) NotifyBookingCreated(b *models.Booking)       {}
func (n *NopNotifier) NotifyBookingStatusChanged(b *models.Booking) {}
func (n *NopNotifier) NotifyPaymentRecovered(b *models.Booking)     {}
