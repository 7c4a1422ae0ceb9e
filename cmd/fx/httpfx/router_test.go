package httpfx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eventreg/internal/config"
	"eventreg/internal/domain"
	"eventreg/internal/gateway"
	"eventreg/internal/modules/cancellation"
	"eventreg/internal/modules/ledger"
	"eventreg/internal/modules/notification"
	"eventreg/internal/modules/payment"
	"eventreg/internal/modules/pricing"
	"eventreg/internal/modules/registration"
	"eventreg/internal/modules/webhook"
	"eventreg/internal/pkg/jwt"
	"eventreg/internal/repository"
	"eventreg/internal/testutil"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

// TestPaidRegistrationLifecycle drives register, payment webhook, status and
// cancellation through the assembled router.
func TestPaidRegistrationLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	fixture := testutil.NewFixture(t, db)
	log := testutil.Logger()
	gw := &testutil.MockGateway{}
	t.Cleanup(func() { gw.AssertExpectations(t) })

	hub := notification.NewHub(log)
	regs := registration.NewService(db, ledger.NewService(db, log), hub, log)
	txns := repository.NewTransactionRepository(db)
	tenants := repository.NewTenantRepository(db)
	jwtService := jwt.New("test-secret", time.Hour)

	paySvc := payment.NewService(db, gw, pricing.NewService(db), regs, payment.Options{
		SuccessURL: "https://app.example/ok",
		CancelURL:  "https://app.example/cancel",
	}, log)
	hookSvc := webhook.NewService(db, gw, txns, repository.NewProcessedEventRepository(db), tenants, regs, log)

	router := ProvideRouter(RouterParams{
		Config:       &config.Config{AppEnv: "test"},
		Logger:       log,
		JWT:          jwtService,
		Tenants:      tenants,
		Payment:      payment.NewHandler(paySvc, log),
		Cancellation: cancellation.NewHandler(cancellation.NewService(db, gw, txns, regs, log)),
		Webhook:      webhook.NewHandler(hookSvc, gw, log),
		Notification: notification.NewHandler(hub, nil, log),
	})

	token, err := jwtService.GenerateToken("alice", fixture.Tenant.ID, nil)
	require.NoError(t, err)

	call := func(method, path string, body any, headers map[string]string) (int, apiResponse) {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		var out apiResponse
		_ = json.Unmarshal(w.Body.Bytes(), &out)
		return w.Code, out
	}
	auth := map[string]string{"Authorization": "Bearer " + token}

	code, _ := call(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, code)

	opt := fixture.Option(t, 10, 1000)

	gw.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(&gateway.CheckoutSession{ID: "cs_1", URL: "https://pay.example/cs_1", Status: gateway.SessionOpen}, nil).Once()
	code, res := call(http.MethodPost, "/api/v1/events/"+fixture.Event.ID+"/registrations",
		payment.RegisterRequest{RegistrationOptionID: opt.ID}, auth)
	require.Equal(t, http.StatusCreated, code)

	var registered payment.RegisterResult
	require.NoError(t, json.Unmarshal(res.Data, &registered))
	assert.Equal(t, "https://pay.example/cs_1", registered.CheckoutURL)
	assert.Equal(t, domain.RegistrationPending, registered.Registration.Status)
	require.NotNil(t, registered.Transaction)

	gw.On("ParseEvent", mock.Anything, "sig").Return(gateway.Event{
		ID:        "evt_1",
		Kind:      gateway.EventSessionCompleted,
		Type:      "checkout.session.completed",
		SessionID: "cs_1",
		Metadata: gateway.Metadata{
			RegistrationID: registered.Registration.ID,
			TransactionID:  registered.Transaction.ID,
		},
	}, nil).Once()
	gw.On("GetCheckoutSession", mock.Anything, "acct_test", "cs_1").Return(&gateway.CheckoutSession{
		ID:              "cs_1",
		Status:          gateway.SessionComplete,
		PaymentStatus:   gateway.PaymentPaid,
		PaymentIntentID: "pi_1",
		ChargeID:        "ch_1",
	}, nil).Once()
	code, _ = call(http.MethodPost, "/api/v1/webhooks/payment", map[string]string{"id": "evt_1"},
		map[string]string{"Stripe-Signature": "sig"})
	require.Equal(t, http.StatusOK, code)

	code, res = call(http.MethodGet, "/api/v1/events/"+fixture.Event.ID+"/registration-status", nil, auth)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(res.Data), `"status":"CONFIRMED"`)

	gw.On("CreateRefund", mock.Anything, mock.MatchedBy(func(req gateway.RefundRequest) bool {
		return req.ChargeID == "ch_1" && req.Amount == 1000
	})).Return(&gateway.Refund{ID: "re_1", Status: "succeeded"}, nil).Once()
	code, res = call(http.MethodPost, "/api/v1/registrations/"+registered.Registration.ID+"/cancel",
		cancellation.Request{Reason: "cannot make it"}, auth)
	require.Equal(t, http.StatusOK, code)

	var cancelled cancellation.Result
	require.NoError(t, json.Unmarshal(res.Data, &cancelled))
	assert.Equal(t, int64(1000), cancelled.RefundAmount)

	var stored domain.RegistrationOption
	fixture.Reload(t, &stored, opt.ID)
	assert.Zero(t, stored.ReservedSpots)
	assert.Zero(t, stored.ConfirmedSpots)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	log := testutil.Logger()
	gw := &testutil.MockGateway{}
	regs := registration.NewService(db, ledger.NewService(db, log), nil, log)
	txns := repository.NewTransactionRepository(db)
	tenants := repository.NewTenantRepository(db)
	hub := notification.NewHub(log)

	router := ProvideRouter(RouterParams{
		Config:       &config.Config{AppEnv: "test"},
		Logger:       log,
		JWT:          jwt.New("test-secret", time.Hour),
		Tenants:      tenants,
		Payment:      payment.NewHandler(payment.NewService(db, gw, pricing.NewService(db), regs, payment.Options{}, log), log),
		Cancellation: cancellation.NewHandler(cancellation.NewService(db, gw, txns, regs, log)),
		Webhook:      webhook.NewHandler(webhook.NewService(db, gw, txns, repository.NewProcessedEventRepository(db), tenants, regs, log), gw, log),
		Notification: notification.NewHandler(hub, nil, log),
	})

	for _, path := range []string{
		"/api/v1/events/e1/registrations",
		"/api/v1/registrations/r1/cancel",
		"/api/v1/registrations/r1/cancel-pending",
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ws/registrations", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
