package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/gateway"
	"github.com/leonepay/internal/models"
	"github.com/leonepay/internal/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:engine_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	err = db.AutoMigrate(
		&models.PaymentTransaction{},
		&models.TransactionLog{},
		&models.GatewayConfig{},
		&models.Refund{},
		&models.LimitLedger{},
		&models.WebhookReceipt{},
	)
	if err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testMoney(s string) models.Money {
	return models.NewMoneyFromDecimal(dec(s))
}

// fakeAdapter is a scriptable gateway adapter.
type fakeAdapter struct {
	typ           string
	sendResult    *gateway.PaymentResult
	sendErr       error
	statusResult  *gateway.StatusResult
	statusErr     error
	webhookSecret string
	sendCalls     int
}

func (f *fakeAdapter) Type() string          { return f.typ }
func (f *fakeAdapter) WebhookSecret() string { return f.webhookSecret }

func (f *fakeAdapter) FormatIdentifier(raw string) (string, error) {
	return raw, nil
}

func (f *fakeAdapter) ValidateAccount(identifier string) error {
	return nil
}

func (f *fakeAdapter) SendPayment(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentResult, error) {
	f.sendCalls++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.sendResult, nil
}

func (f *fakeAdapter) CheckStatus(ctx context.Context, providerRef string) (*gateway.StatusResult, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.statusResult, nil
}

func (f *fakeAdapter) ParseWebhook(payload []byte) (*gateway.WebhookEvent, error) {
	return parseTestWebhook(payload)
}

// parseTestWebhook decodes the fake adapter's callback shape.
func parseTestWebhook(payload []byte) (*gateway.WebhookEvent, error) {
	var body struct {
		Reference   string `json:"reference"`
		ProviderRef string `json:"provider_ref"`
		Status      string `json:"status"`
		Amount      string `json:"amount"`
		Message     string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, err
	}
	if body.Status == "" {
		return nil, fmt.Errorf("missing status")
	}
	event := &gateway.WebhookEvent{
		Reference:   body.Reference,
		ProviderRef: body.ProviderRef,
		Status:      body.Status,
		Message:     body.Message,
	}
	if body.Amount != "" {
		amount, err := decimal.NewFromString(body.Amount)
		if err != nil {
			return nil, err
		}
		event.Amount = models.NewMoneyFromDecimal(amount)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err == nil {
		event.Raw = raw
	}
	return event, nil
}

// fakeRefundAdapter adds refund capability.
type fakeRefundAdapter struct {
	fakeAdapter
	refundRef string
	refundErr error
}

func (f *fakeRefundAdapter) Refund(ctx context.Context, providerRef string, amount models.Money) (string, error) {
	if f.refundErr != nil {
		return "", f.refundErr
	}
	return f.refundRef, nil
}

// captureScheduler records scheduling calls.
type captureScheduler struct {
	mu      sync.Mutex
	expires []uint
	retries []uint
	polls   []uint
}

func (s *captureScheduler) ScheduleExpire(id uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expires = append(s.expires, id)
	return nil
}

func (s *captureScheduler) ScheduleRetryDispatch(id uint, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries = append(s.retries, id)
	return nil
}

func (s *captureScheduler) ScheduleStatusPoll(id uint, delay time.Duration, attempt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls = append(s.polls, id)
	return nil
}

// testEnv bundles a wired orchestrator over a fresh database.
type testEnv struct {
	db           *gorm.DB
	orchestrator *TransactionOrchestrator
	registry     *gateway.Registry
	scheduler    *captureScheduler
	txRepo       repository.TransactionRepository
	logRepo      repository.TransactionLogRepository
	ledgerRepo   repository.LimitLedgerRepository
	refundRepo   repository.RefundRepository
	receiptRepo  repository.WebhookReceiptRepository
	gatewayRepo  repository.GatewayConfigRepository
	limits       *LimitEnforcer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	env := &testEnv{
		db:          db,
		registry:    gateway.NewRegistry(),
		scheduler:   &captureScheduler{},
		txRepo:      repository.NewTransactionRepository(db),
		logRepo:     repository.NewTransactionLogRepository(db),
		ledgerRepo:  repository.NewLimitLedgerRepository(db),
		refundRepo:  repository.NewRefundRepository(db),
		receiptRepo: repository.NewWebhookReceiptRepository(db),
		gatewayRepo: repository.NewGatewayConfigRepository(db),
	}
	env.limits = NewLimitEnforcer(env.ledgerRepo)
	env.orchestrator = NewTransactionOrchestrator(OrchestratorOptions{
		DB:              db,
		Transactions:    env.txRepo,
		Logs:            env.logRepo,
		GatewayConfigs:  env.gatewayRepo,
		Refunds:         env.refundRepo,
		Limits:          env.limits,
		Fees:            NewFeeCalculator(),
		Registry:        env.registry,
		Scheduler:       env.scheduler,
		Risk:            NewAmountThresholdScorer("5000", "20000", "100000"),
		CallbackBaseURL: "https://engine.example.com",
	})
	return env
}

func (e *testEnv) seedGateway(t *testing.T, cfg models.GatewayConfig) *models.GatewayConfig {
	t.Helper()
	if cfg.Currency == "" {
		cfg.Currency = constants.CurrencyDefault
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = 900
	}
	if cfg.RetryDelaySeconds == 0 {
		cfg.RetryDelaySeconds = 60
	}
	cfg.IsActive = true
	if err := e.gatewayRepo.Create(&cfg); err != nil {
		t.Fatalf("seed gateway: %v", err)
	}
	return &cfg
}

func (e *testEnv) initiate(t *testing.T, gatewayType, phone, amount string) *models.PaymentTransaction {
	t.Helper()
	txn, err := e.orchestrator.InitiatePayment(context.Background(), InitiatePaymentInput{
		ClientID:    1,
		PayerPhone:  phone,
		Amount:      testMoney(amount),
		GatewayType: gatewayType,
		Purpose:     "school fees",
	})
	if err != nil {
		t.Fatalf("InitiatePayment() error = %v", err)
	}
	return txn
}

func (e *testEnv) ledgerRow(t *testing.T, phone, gatewayType string) *models.LimitLedger {
	t.Helper()
	var row models.LimitLedger
	err := e.db.Where("payer_phone = ? AND gateway_type = ?", phone, gatewayType).First(&row).Error
	if err != nil {
		t.Fatalf("load ledger row: %v", err)
	}
	return &row
}
