package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/eventreg/internal/authorization"
	checkindomain "github.com/smallbiznis/eventreg/internal/checkin/domain"
	"github.com/smallbiznis/eventreg/internal/config"
	"github.com/smallbiznis/eventreg/internal/observability"
	obscontext "github.com/smallbiznis/eventreg/internal/observability/context"
	orderdomain "github.com/smallbiznis/eventreg/internal/order/domain"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"github.com/smallbiznis/eventreg/internal/pricing"
	settlementdomain "github.com/smallbiznis/eventreg/internal/settlement/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testAdminToken = "s3cret-admin-token"

type fakeOrders struct {
	orderdomain.Service

	checkoutResult *orderdomain.CheckoutResult
	checkoutErr    error
	order          *orderdomain.Order
	lastCheckout   orderdomain.CheckoutRequest
}

func (f *fakeOrders) Checkout(_ context.Context, req orderdomain.CheckoutRequest) (*orderdomain.CheckoutResult, error) {
	f.lastCheckout = req
	return f.checkoutResult, f.checkoutErr
}

func (f *fakeOrders) GetOrder(_ context.Context, id uuid.UUID) (*orderdomain.Order, []orderdomain.Registration, error) {
	if f.order == nil || f.order.ID != id {
		return nil, nil, orderdomain.ErrOrderNotFound
	}
	return f.order, nil, nil
}

type fakePayments struct {
	err error
}

func (f *fakePayments) IngestWebhook(context.Context, string, []byte, http.Header) error {
	return f.err
}

type fakeSettlement struct {
	settlementdomain.Service

	lastTransition settlementdomain.TransitionRequest
	result         *settlementdomain.TransitionResult
	err            error
}

func (f *fakeSettlement) Transition(_ context.Context, req settlementdomain.TransitionRequest) (*settlementdomain.TransitionResult, error) {
	f.lastTransition = req
	return f.result, f.err
}

type fakeCheckIn struct {
	checkindomain.Service

	lastReq checkindomain.CheckInRequest
	result  *checkindomain.CheckInResult
	err     error
}

func (f *fakeCheckIn) CheckIn(_ context.Context, req checkindomain.CheckInRequest) (*checkindomain.CheckInResult, error) {
	f.lastReq = req
	return f.result, f.err
}

type fakeAuthz struct {
	err error
}

func (f *fakeAuthz) Authorize(context.Context, string, string, string, string) error {
	return f.err
}

type testServer struct {
	engine     *gin.Engine
	orders     *fakeOrders
	payments   *fakePayments
	settlement *fakeSettlement
	checkIn    *fakeCheckIn
	authz      *fakeAuthz
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminToken), bcrypt.MinCost)
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	ts := &testServer{
		engine:     engine,
		orders:     &fakeOrders{},
		payments:   &fakePayments{},
		settlement: &fakeSettlement{},
		checkIn:    &fakeCheckIn{},
		authz:      &fakeAuthz{},
	}
	srv := NewServer(Params{
		Engine:        engine,
		Config:        config.Config{AdminTokenHash: string(hash)},
		Log:           zap.NewNop(),
		OrderSvc:      ts.orders,
		PaymentSvc:    ts.payments,
		SettlementSvc: ts.settlement,
		CheckInSvc:    ts.checkIn,
		AuthzSvc:      ts.authz,
	})
	srv.RegisterRoutes()
	return ts
}

func (ts *testServer) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func adminHeaders(actor string) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + testAdminToken}
	if actor != "" {
		h[HeaderActor] = actor
	}
	return h
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestCheckoutCreatesOrder(t *testing.T) {
	ts := newTestServer(t)
	orderID := uuid.New()
	ts.orders.checkoutResult = &orderdomain.CheckoutResult{
		Order: orderdomain.Order{ID: orderID, OrderNumber: "EVT-0001", Status: orderdomain.OrderStatusPending},
	}

	rec := ts.do(http.MethodPost, "/v1/checkout", map[string]any{
		"event_id":    uuid.NewString(),
		"buyer_name":  "Ayu",
		"buyer_email": "ayu@example.com",
		"provider":    " Midtrans ",
	}, nil)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "midtrans", ts.orders.lastCheckout.Provider)
	assert.Contains(t, rec.Body.String(), "EVT-0001")
}

func TestCheckoutValidationErrorsAreUnprocessable(t *testing.T) {
	ts := newTestServer(t)
	verr := &orderdomain.ValidationError{}
	verr.Add("items[0].participants[0].email", "must be a valid email")
	ts.orders.checkoutErr = verr

	rec := ts.do(http.MethodPost, "/v1/checkout", map[string]any{"provider": "stripe"}, nil)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "items[0].participants[0].email", payload.Errors[0].Field)
	assert.Equal(t, "invalid_email", payload.Errors[0].Code)
}

func TestCheckoutProviderUnavailableReturnsOrder(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.checkoutResult = &orderdomain.CheckoutResult{
		Order: orderdomain.Order{ID: uuid.New(), OrderNumber: "EVT-0002", Status: orderdomain.OrderStatusPending},
	}
	ts.orders.checkoutErr = fmt.Errorf("%w: dial tcp: timeout", paymentdomain.ErrProviderUnavailable)

	rec := ts.do(http.MethodPost, "/v1/checkout", map[string]any{"provider": "stripe"}, nil)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Error errorPayload      `json:"error"`
		Order orderdomain.Order `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "EVT-0002", body.Order.OrderNumber)
	assert.Equal(t, "provider_unavailable", body.Error.Code)
}

func TestCheckoutConflicts(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.checkoutErr = pricing.ErrCapacityExceeded

	rec := ts.do(http.MethodPost, "/v1/checkout", map[string]any{"provider": "stripe"}, nil)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "capacity_exceeded", decodeError(t, rec).Code)
}

func TestPaymentWebhookStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"applied", nil, http.StatusOK},
		{"already terminal", settlementdomain.ErrAlreadyTerminal, http.StatusOK},
		{"mismatch", settlementdomain.ErrReconciliationMismatch, http.StatusAccepted},
		{"bad signature", paymentdomain.ErrInvalidSignature, http.StatusUnauthorized},
		{"unknown provider", paymentdomain.ErrProviderNotFound, http.StatusNotFound},
		{"store failure", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.payments.err = tc.err

			rec := ts.do(http.MethodPost, "/webhooks/midtrans", map[string]any{"order_id": "EVT-0001"}, nil)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)
	path := "/admin/orders/" + uuid.NewString() + "/transition"

	rec := ts.do(http.MethodPost, path, map[string]any{"target": "paid"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, path, map[string]any{"target": "paid"}, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTransitionOrderIsManual(t *testing.T) {
	ts := newTestServer(t)
	order := &orderdomain.Order{ID: uuid.New(), OrganizerID: uuid.New(), Status: orderdomain.OrderStatusPaid}
	ts.orders.order = order
	ts.settlement.result = &settlementdomain.TransitionResult{
		Order: orderdomain.Order{ID: order.ID, Status: orderdomain.OrderStatusRefunded},
		From:  orderdomain.OrderStatusPaid,
	}

	rec := ts.do(http.MethodPost, "/admin/orders/"+order.ID.String()+"/transition",
		map[string]any{"target": "refunded", "reason": "event cancelled"},
		adminHeaders("admin:ops-7"),
	)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := ts.settlement.lastTransition
	assert.Equal(t, settlementdomain.SourceManual, got.Source)
	assert.Equal(t, orderdomain.OrderStatusRefunded, got.Target)
	assert.Equal(t, "admin:ops-7", got.Actor)
	assert.Equal(t, "event cancelled", got.Reason)
	require.NotNil(t, got.OrderID)
	assert.Equal(t, order.ID, *got.OrderID)
}

func TestTransitionOrderErrors(t *testing.T) {
	ts := newTestServer(t)
	order := &orderdomain.Order{ID: uuid.New(), OrganizerID: uuid.New()}
	ts.orders.order = order
	path := "/admin/orders/" + order.ID.String() + "/transition"

	rec := ts.do(http.MethodPost, path, map[string]any{"target": "pending"}, adminHeaders(""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.settlement.err = settlementdomain.ErrAlreadyTerminal
	rec = ts.do(http.MethodPost, path, map[string]any{"target": "cancelled"}, adminHeaders(""))
	assert.Equal(t, http.StatusConflict, rec.Code)

	ts.authz.err = authorization.ErrForbidden
	rec = ts.do(http.MethodPost, path, map[string]any{"target": "refunded"}, adminHeaders("organizer:"+order.OrganizerID.String()))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodPost, "/admin/orders/"+uuid.NewString()+"/transition", map[string]any{"target": "paid"}, adminHeaders(""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckInOutcomes(t *testing.T) {
	ts := newTestServer(t)
	regID := uuid.New()
	ts.checkIn.result = &checkindomain.CheckInResult{
		Registration: orderdomain.Registration{ID: regID, RegistrationNumber: "EVT-0001-01"},
		CheckedInAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	rec := ts.do(http.MethodPost, "/v1/checkins", map[string]any{"ticket_code": "abc.def"}, adminHeaders("scanner:gate-a"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "gate-a", ts.checkIn.lastReq.ScannerID)
	assert.Equal(t, "abc.def", ts.checkIn.lastReq.TicketCode)

	ts.checkIn.err = checkindomain.ErrAlreadyCheckedIn
	rec = ts.do(http.MethodPost, "/v1/checkins", map[string]any{"registration_id": regID.String(), "method": "manual"}, adminHeaders("scanner:gate-a"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_checked_in", decodeError(t, rec).Code)

	ts.checkIn.err = checkindomain.ErrNotPaid
	rec = ts.do(http.MethodPost, "/v1/checkins", map[string]any{"registration_id": regID.String()}, adminHeaders(""))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/checkins", map[string]any{}, adminHeaders(""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/checkins", map[string]any{"ticket_code": "abc.def"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMapErrorWrappedSentinels(t *testing.T) {
	status, payload := mapError(fmt.Errorf("settle: %w", settlementdomain.ErrReviewAlreadyResolved))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "review_already_resolved", payload.Code)

	status, _ = mapError(fmt.Errorf("find: %w", checkindomain.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, status)

	status, payload = mapError(checkindomain.ErrInvalidTicketCode)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_ticket_code", payload.Code)

	status, payload = mapError(orderdomain.ErrPaymentInProgress)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "payment_in_progress", payload.Code)

	status, _ = mapError(checkindomain.ErrSigningKeyMissing)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, _ = mapError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestOrganizerParamScopesRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	organizerID := uuid.New()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/admin/organizers/"+organizerID.String()+"/payouts", nil)
	c.Params = gin.Params{{Key: "organizer_id", Value: organizerID.String()}}

	got, err := organizerParam(c)
	require.NoError(t, err)
	assert.Equal(t, organizerID, got)
	assert.Equal(t, organizerID.String(), obscontext.OrganizerIDFromContext(c.Request.Context()))

	c.Params = gin.Params{{Key: "organizer_id", Value: "not-a-uuid"}}
	_, err = organizerParam(c)
	assert.Error(t, err)
}

func TestRegisterGinUsesReleaseModeInProduction(t *testing.T) {
	t.Cleanup(func() { gin.SetMode(gin.TestMode) })

	engine := registerGin(config.Config{Environment: "production"}, observability.Config{})
	require.NotNil(t, engine)
	assert.Equal(t, gin.ReleaseMode, gin.Mode())
}
