package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2hgit/p2h_api/internal/catalog"
	"github.com/p2hgit/p2h_api/internal/models"
	"github.com/p2hgit/p2h_api/internal/service"
	"github.com/p2hgit/p2h_api/internal/sse"
	"github.com/p2hgit/p2h_api/internal/utils"
	"github.com/p2hgit/p2h_api/pkg/razorpay"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case []byte:
			buf.Write(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

// stubs

type stubQuoter struct {
	quote *service.Quote
	err   error
}

func (s *stubQuoter) Resolve(context.Context, service.ResolveRequest) (*service.Quote, error) {
	return s.quote, s.err
}

type stubDiscountChecker struct {
	ids []string
}

func (s *stubDiscountChecker) Validate(_ context.Context, code string, total decimal.Decimal, ids []string) service.ValidationResult {
	s.ids = ids
	if code != "SAVE10" {
		return service.ValidationResult{Message: "Invalid discount code"}
	}
	return service.ValidationResult{
		Valid:          true,
		DiscountAmount: total.Div(decimal.NewFromInt(10)),
		Message:        "Discount applied successfully",
	}
}

type stubBookings struct {
	intent  *service.BookingIntent
	booking *models.Booking
	err     error
}

func (s *stubBookings) CreateIntent(context.Context, models.BookingDetails) (*service.BookingIntent, error) {
	return s.intent, s.err
}

func (s *stubBookings) GetByReference(context.Context, string) (*models.Booking, error) {
	return s.booking, s.err
}

type stubPayments struct {
	result service.VerifyPaymentResult
	status service.PaymentStatusResult
}

func (s *stubPayments) VerifyAndReconcile(context.Context, service.VerifyPaymentRequest) service.VerifyPaymentResult {
	return s.result
}

func (s *stubPayments) PaymentStatus(context.Context, string, string) service.PaymentStatusResult {
	return s.status
}

type stubWebhook struct {
	events []*razorpay.WebhookEvent
	err    error
}

func (s *stubWebhook) HandleWebhook(_ context.Context, e *razorpay.WebhookEvent) error {
	s.events = append(s.events, e)
	return s.err
}

type stubVerifier struct{ secret string }

func (v stubVerifier) VerifyWebhookSignature(body []byte, sig string) bool {
	return razorpay.Sign(body, v.secret) == sig
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }
func (p stubPinger) Ping(context.Context) error        { return p.err }

// tests

func TestHandleError_Mapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{utils.ErrEmptySelection, 400, "EMPTY_SELECTION"},
		{utils.ErrPricingUnavailable, 422, "PRICING_UNAVAILABLE"},
		{fmt.Errorf("%w: This discount code has expired", utils.ErrDiscountInvalid), 400, "DISCOUNT_INVALID"},
		{utils.ErrBookingNotFound, 404, "BOOKING_NOT_FOUND"},
		{fmt.Errorf("%w: booking is cancelled", utils.ErrIllegalTransition), 409, "ILLEGAL_STATUS_TRANSITION"},
		{fmt.Errorf("%w: boom", utils.ErrGatewayUnavailable), 502, "GATEWAY_UNAVAILABLE"},
		{fmt.Errorf("%w: insert", utils.ErrPersistence), 500, "PERSISTENCE_FAILURE"},
		{errors.New("surprise"), 500, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			r := gin.New()
			r.GET("/", func(c *gin.Context) { handleError(c, tc.err) })
			w, env := doJSON(t, r, http.MethodGet, "/", nil, nil)
			assert.Equal(t, tc.status, w.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.code, env.Error.Code)
		})
	}
}

func TestHandleError_DetailMessage(t *testing.T) {
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		handleError(c, fmt.Errorf("%w: This discount code has expired", utils.ErrDiscountInvalid))
	})
	_, env := doJSON(t, r, http.MethodGet, "/", nil, nil)
	assert.Equal(t, "This discount code has expired", env.Message)
}

func TestPricingHandler_Quote(t *testing.T) {
	quote := &service.Quote{
		FinalPrice: decimal.NewFromInt(2200),
		Payable:    decimal.NewFromInt(2200),
		Currency:   "INR",
	}
	h := NewPricingHandler(&stubQuoter{quote: quote}, &stubDiscountChecker{}, catalog.NewMapper())
	r := gin.New()
	r.POST("/quote", h.Quote)

	w, env := doJSON(t, r, http.MethodPost, "/quote", gin.H{"services": []string{"consultation"}}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Quote resolved", env.Message)

	var got service.Quote
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "2200", got.Payable.String())
}

func TestPricingHandler_QuoteEmptySelection(t *testing.T) {
	h := NewPricingHandler(&stubQuoter{err: utils.ErrEmptySelection}, &stubDiscountChecker{}, catalog.NewMapper())
	r := gin.New()
	r.POST("/quote", h.Quote)

	w, env := doJSON(t, r, http.MethodPost, "/quote", gin.H{"services": []string{}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "EMPTY_SELECTION", env.Error.Code)
}

func TestPricingHandler_ValidateDiscount(t *testing.T) {
	checker := &stubDiscountChecker{}
	h := NewPricingHandler(&stubQuoter{}, checker, catalog.NewMapper())
	r := gin.New()
	r.POST("/validate", h.ValidateDiscount)

	w, env := doJSON(t, r, http.MethodPost, "/validate", gin.H{
		"code": "SAVE10", "amount": 2200, "services": []string{"consultation"},
	}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var got struct {
		Valid          bool            `json:"valid"`
		DiscountAmount decimal.Decimal `json:"discountAmount"`
		FinalAmount    decimal.Decimal `json:"finalAmount"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.True(t, got.Valid)
	assert.Equal(t, "220", got.DiscountAmount.String())
	assert.Equal(t, "1980", got.FinalAmount.String())
	assert.Contains(t, checker.ids, "consultation")

	w, _ = doJSON(t, r, http.MethodPost, "/validate", gin.H{"code": "SAVE10", "amount": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/validate", gin.H{"amount": 100}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBookingHandler_Create(t *testing.T) {
	intent := &service.BookingIntent{
		Booking:  &models.Booking{ReferenceID: "P2H-ABC123"},
		OrderID:  "order_1",
		Amount:   198000,
		Currency: "INR",
		KeyID:    "rzp_test_key",
	}
	h := NewBookingHandler(&stubBookings{intent: intent})
	r := gin.New()
	r.POST("/bookings", h.Create)

	w, env := doJSON(t, r, http.MethodPost, "/bookings", gin.H{
		"clientName": "Asha", "clientEmail": "asha@example.com", "services": []string{"consultation"},
	}, nil)
	assert.Equal(t, http.StatusCreated, w.Code)

	var got service.BookingIntent
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "order_1", got.OrderID)
	assert.Equal(t, int64(198000), got.Amount)

	w, env = doJSON(t, r, http.MethodPost, "/bookings", gin.H{"clientName": "Asha"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_FIELD", env.Error.Code)
}

func TestBookingHandler_CreatePricingUnavailable(t *testing.T) {
	h := NewBookingHandler(&stubBookings{err: utils.ErrPricingUnavailable})
	r := gin.New()
	r.POST("/bookings", h.Create)

	w, env := doJSON(t, r, http.MethodPost, "/bookings", gin.H{
		"clientName": "Asha", "clientEmail": "asha@example.com",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "PRICING_UNAVAILABLE", env.Error.Code)
}

func TestBookingHandler_Get(t *testing.T) {
	h := NewBookingHandler(&stubBookings{booking: &models.Booking{
		ReferenceID: "P2H-ABC123",
		ClientName:  "Asha",
		ClientEmail: "asha@example.com",
		Status:      models.BookingConfirmed,
	}})
	r := gin.New()
	r.GET("/bookings/:referenceId", h.Get)

	w, env := doJSON(t, r, http.MethodGet, "/bookings/P2H-ABC123", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"status":"confirmed"`)
	assert.NotContains(t, string(env.Data), "asha@example.com")

	h = NewBookingHandler(&stubBookings{err: utils.ErrBookingNotFound})
	r = gin.New()
	r.GET("/bookings/:referenceId", h.Get)
	w, _ = doJSON(t, r, http.MethodGet, "/bookings/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaymentHandler_Verify(t *testing.T) {
	body := gin.H{
		"razorpay_payment_id": "pay_1",
		"razorpay_order_id":   "order_1",
		"razorpay_signature":  "sig",
	}
	cases := []struct {
		name   string
		result service.VerifyPaymentResult
		status int
		code   string
	}{
		{"confirmed", service.VerifyPaymentResult{Success: true, Verified: true, EmailSent: true}, 200, ""},
		{"unverified", service.VerifyPaymentResult{Error: utils.ErrPaymentUnverified.Error()}, 400, "PAYMENT_UNVERIFIED"},
		{"closed", service.VerifyPaymentResult{Verified: true, Error: utils.ErrIllegalTransition.Error() + ": booking is cancelled"}, 409, "BOOKING_CLOSED"},
		{"persistence", service.VerifyPaymentResult{Verified: true, Error: utils.ErrPersistence.Error()}, 500, "PERSISTENCE_FAILURE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewPaymentHandler(&stubPayments{result: tc.result})
			r := gin.New()
			r.POST("/verify", h.Verify)
			w, env := doJSON(t, r, http.MethodPost, "/verify", body, nil)
			assert.Equal(t, tc.status, w.Code)
			if tc.code != "" {
				require.NotNil(t, env.Error)
				assert.Equal(t, tc.code, env.Error.Code)
			}
		})
	}
}

func TestPaymentHandler_Status(t *testing.T) {
	amount := decimal.NewFromInt(2200)
	h := NewPaymentHandler(&stubPayments{status: service.PaymentStatusResult{
		Status: service.StatusCaptured, Amount: &amount, Currency: "INR",
	}})
	r := gin.New()
	r.GET("/status", h.Status)

	w, env := doJSON(t, r, http.MethodGet, "/status?order_id=order_1", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), service.StatusCaptured)

	w, _ = doJSON(t, r, http.MethodGet, "/status", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookHandler(t *testing.T) {
	const secret = "whsec"
	payload := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","status":"captured","amount":220000}}}}`)

	processor := &stubWebhook{}
	h := NewWebhookHandler(processor, stubVerifier{secret: secret})
	r := gin.New()
	r.POST("/webhook", h.HandleRazorpay)

	w, _ := doJSON(t, r, http.MethodPost, "/webhook", payload, map[string]string{"X-Razorpay-Signature": "bad"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, processor.events)

	sig := razorpay.Sign(payload, secret)
	w, _ = doJSON(t, r, http.MethodPost, "/webhook", payload, map[string]string{"X-Razorpay-Signature": sig})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
	require.Len(t, processor.events, 1)
	assert.Equal(t, "payment.captured", processor.events[0].Event)
	assert.Equal(t, "pay_1", processor.events[0].PaymentEntity().ID)

	processor.err = utils.ErrPersistence
	w, _ = doJSON(t, r, http.MethodPost, "/webhook", payload, map[string]string{"X-Razorpay-Signature": sig})
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	bad := []byte(`{not json`)
	w, _ = doJSON(t, r, http.MethodPost, "/webhook", bad, map[string]string{"X-Razorpay-Signature": razorpay.Sign(bad, secret)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthHandler(t *testing.T) {
	r := gin.New()
	r.GET("/health", NewHealthHandler(stubPinger{}, stubPinger{err: errors.New("down")}).GetHealth)
	w, env := doJSON(t, r, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"redis":"disconnected"`)

	r = gin.New()
	r.GET("/health", NewHealthHandler(stubPinger{err: errors.New("down")}, nil).GetHealth)
	w, _ = doJSON(t, r, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSSEHandler_RejectsMissingOrBadToken(t *testing.T) {
	h := NewSSEHandler(sse.NewHub(), nil)
	r := gin.New()
	r.GET("/sse", h.Stream)

	w, env := doJSON(t, r, http.MethodGet, "/sse", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	utils.SetJWTSecret("test-secret")
	w, env = doJSON(t, r, http.MethodGet, "/sse?token=garbage", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", env.Error.Code)
}

func TestLastEventID(t *testing.T) {
	cases := []struct {
		header string
		query  string
		want   uint64
	}{
		{"", "", 0},
		{"42", "", 42},
		{"", "7", 7},
		{"9", "7", 9},
		{"abc", "", 0},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/sse?lastEventId="+tc.query, nil)
		if tc.header != "" {
			c.Request.Header.Set("Last-Event-ID", tc.header)
		}
		assert.Equal(t, tc.want, lastEventID(c), "header=%q query=%q", tc.header, tc.query)
	}
}
