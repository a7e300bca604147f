package handlers

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"inbox-tollbooth-go/internal/config"
	"inbox-tollbooth-go/internal/ledger"
	"inbox-tollbooth-go/internal/metrics"
	"inbox-tollbooth-go/internal/models"
	"inbox-tollbooth-go/internal/scheduler"
	"inbox-tollbooth-go/internal/store"
	"inbox-tollbooth-go/internal/toll"
	"inbox-tollbooth-go/internal/whitelist"
)

const testSecret = "whsec_test_secret"

// Prometheus collectors register globally, so the package shares one set
var testMetrics = metrics.NewMetrics()

// stubMailbox satisfies the mailbox interface for webhook tests
type stubMailbox struct{}

func (stubMailbox) ListNewMessages(ctx context.Context, query string, maxResults int64) ([]string, error) {
	return nil, nil
}
func (stubMailbox) GetMessage(ctx context.Context, id string) (*models.EmailMessage, error) {
	return &models.EmailMessage{ID: id}, nil
}
func (stubMailbox) EnsureLabel(ctx context.Context, name string) (string, error) {
	return "label-" + name, nil
}
func (stubMailbox) ArchiveAndLabel(ctx context.Context, id, labelID string) error { return nil }
func (stubMailbox) UnarchiveAndLabel(ctx context.Context, id, removeLabelID, addLabelID string) error {
	return nil
}
func (stubMailbox) SendNotification(ctx context.Context, to, subject, htmlBody string) error {
	return nil
}
func (stubMailbox) HasSentTo(ctx context.Context, address string) (bool, error) { return false, nil }
func (stubMailbox) Close() error                                                { return nil }

// stubLedger tracks credits and debits in memory
type stubLedger struct {
	balances map[string]int64
	credits  int
	debits   int
}

func (s *stubLedger) FindOrCreateCustomer(ctx context.Context, email string) (string, error) {
	return "cus_" + email, nil
}
func (s *stubLedger) Balance(ctx context.Context, customerID string) (int64, error) {
	return s.balances[customerID], nil
}
func (s *stubLedger) Debit(ctx context.Context, customerID string, amountCents int64, tag string) error {
	s.debits++
	s.balances[customerID] += amountCents
	return nil
}
func (s *stubLedger) Credit(ctx context.Context, customerID string, amountCents int64, tag string) error {
	s.credits++
	s.balances[customerID] -= amountCents
	return nil
}
func (s *stubLedger) CreateTopUpSession(ctx context.Context, params ledger.TopUpParams) (*ledger.TopUpSession, error) {
	return &ledger.TopUpSession{ID: "cs_stub", URL: "https://example.com"}, nil
}

type webhookEnv struct {
	router *gin.Engine
	store  *store.Store
	ledger *stubLedger
}

func newWebhookEnv(t *testing.T) *webhookEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.TollRecord{}, &models.WebhookEvent{}))

	st := store.New(db)
	lg := &stubLedger{balances: make(map[string]int64)}
	tollCfg := &config.TollConfig{Amount: 0.25, AwaitingLabel: "Awaiting Toll", PaidLabel: "Toll Paid"}
	wl := whitelist.New("me@mydomain.com", nil, stubMailbox{})
	engine := toll.NewEngine(st, stubMailbox{}, lg, wl, toll.NewTemplates(tollCfg), tollCfg)
	sched := scheduler.NewScheduler(&config.SchedulerConfig{IntervalMinutes: 60}, stubMailbox{}, engine, testMetrics)

	h := NewHandlers(db, st, engine, sched, testMetrics, testSecret)
	router := gin.New()
	h.SetupRoutes(router)

	return &webhookEnv{router: router, store: st, ledger: lg}
}

func signedRequest(t *testing.T, payload []byte) *http.Request {
	t.Helper()
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, testSecret)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))

	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	return req
}

func topUpPayload(eventID, messageID, customerID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"api_version": "2023-10-16",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_live_1",
				"amount_total": 134,
				"metadata": {
					"sessionType": "inbox_toll_topup",
					"messageId": %q,
					"senderCustomerId": %q,
					"senderEmail": "stranger@elsewhere.com",
					"tollAmountAtTopUp": "0.25"
				}
			}
		}
	}`, eventID, messageID, customerID))
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newWebhookEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe",
		bytes.NewReader(topUpPayload("evt_w1", "msg-w1", "cus_w1")))
	req.Header.Set("Stripe-Signature", "t=123,v1=deadbeef")

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, env.ledger.credits)
}

func TestWebhookCompletesTopUp(t *testing.T) {
	env := newWebhookEnv(t)
	customerID := "cus_w2"
	record := &models.TollRecord{
		ID:               uuid.NewString(),
		GmailMessageID:   "msg-w2",
		SenderEmail:      "stranger@elsewhere.com",
		StripeCustomerID: &customerID,
	}
	require.NoError(t, env.store.CreateRecord(record))

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, signedRequest(t, topUpPayload("evt_w2", "msg-w2", customerID)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.ledger.credits)
	assert.Equal(t, 1, env.ledger.debits)

	got, err := env.store.FindByID(record.ID)
	require.NoError(t, err)
	assert.True(t, got.TollPaid)
}

func TestWebhookDuplicateDeliveryIsIdempotent(t *testing.T) {
	env := newWebhookEnv(t)
	customerID := "cus_w3"
	require.NoError(t, env.store.CreateRecord(&models.TollRecord{
		ID:               uuid.NewString(),
		GmailMessageID:   "msg-w3",
		SenderEmail:      "stranger@elsewhere.com",
		StripeCustomerID: &customerID,
	}))

	payload := topUpPayload("evt_w3", "msg-w3", customerID)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, signedRequest(t, payload))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 1, env.ledger.credits)
	assert.Equal(t, 1, env.ledger.debits)
}

func TestWebhookOrphanedEventIsAcknowledged(t *testing.T) {
	env := newWebhookEnv(t)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, signedRequest(t, topUpPayload("evt_w4", "msg-unknown", "cus_w4")))

	// 200 so Stripe stops redelivering; credit stands, nothing was debited
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.ledger.credits)
	assert.Equal(t, 0, env.ledger.debits)
}

func TestWebhookIgnoresOtherSessionTypes(t *testing.T) {
	env := newWebhookEnv(t)

	payload := []byte(`{
		"id": "evt_w5",
		"api_version": "2023-10-16",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_other",
				"amount_total": 500,
				"metadata": {"sessionType": "something_else"}
			}
		}
	}`)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, signedRequest(t, payload))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.ledger.credits)
}
