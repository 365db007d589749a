package handler

import (
	"context"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/p2hgit/p2h_api/pkg/razorpay"
)

// WebhookProcessor applies verified gateway events.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, event *razorpay.WebhookEvent) error
}

// WebhookVerifier checks the X-Razorpay-Signature header.
type WebhookVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

// WebhookHandler handles incoming Razorpay webhooks.
type WebhookHandler struct {
	processor WebhookProcessor
	verifier  WebhookVerifier
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(processor WebhookProcessor, verifier WebhookVerifier) *WebhookHandler {
	return &WebhookHandler{processor: processor, verifier: verifier}
}

// HandleRazorpay handles POST /webhook/razorpay
func (h *WebhookHandler) HandleRazorpay(c *gin.Context) {
	// 1. Read the raw body; the signature covers exact bytes
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(400, gin.H{"error": "Invalid body"})
		return
	}

	// 2. Verify signature
	if !h.verifier.VerifyWebhookSignature(body, c.GetHeader("X-Razorpay-Signature")) {
		log.Warn().Str("ip", c.ClientIP()).Msg("Razorpay webhook signature mismatch")
		c.JSON(401, gin.H{"error": "Invalid signature"})
		return
	}

	// 3. Parse payload
	var event razorpay.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(400, gin.H{"error": "Invalid JSON"})
		return
	}

	// 4. Process event; a non-2xx makes Razorpay retry
	if err := h.processor.HandleWebhook(c.Request.Context(), &event); err != nil {
		log.Error().Err(err).Str("event", event.Event).Msg("Failed to process Razorpay webhook")
		c.JSON(500, gin.H{"error": "Processing failed"})
		return
	}

	c.JSON(200, gin.H{"received": true})
}
