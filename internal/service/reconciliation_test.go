package service

import (
	"context"
	"testing"
	"time"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/models"
)

func newReconciliationEnv(t *testing.T) (*testEnv, *ReconciliationEngine, *fakeAdapter) {
	t.Helper()
	env := newTestEnv(t)
	env.seedGateway(t, orangeConfig())
	adapter := &fakeAdapter{typ: constants.GatewayOrangeMoney}
	registerFake(env, adapter)
	engine := NewReconciliationEngine(env.txRepo, env.logRepo, env.limits)
	return env, engine, adapter
}

// settledPayment completes a payment under the given provider ref.
func settledPayment(t *testing.T, env *testEnv, adapter *fakeAdapter, phone, amount, providerRef string) *models.PaymentTransaction {
	t.Helper()
	adapter.sendResult = completedResult(providerRef)
	txn := env.initiate(t, constants.GatewayOrangeMoney, phone, amount)
	updated, err := env.orchestrator.ProcessPayment(context.Background(), txn.ID, ProcessOptions{PayerPIN: "1234", Actor: "client:1"})
	if err != nil {
		t.Fatalf("ProcessPayment() error = %v", err)
	}
	if updated.Status != constants.TxStatusCompleted {
		t.Fatalf("status = %s, want completed", updated.Status)
	}
	return updated
}

func TestReconcileMatchesStatement(t *testing.T) {
	env, engine, adapter := newReconciliationEnv(t)
	ctx := context.Background()

	first := settledPayment(t, env, adapter, testPhone, "100", "OM-R1")
	second := settledPayment(t, env, adapter, "23276000002", "250", "OM-R2")

	records := []ProviderRecord{
		{ProviderRef: "OM-R1", Amount: testMoney("100")},
		{ProviderRef: "OM-R2", Amount: testMoney("250")},
	}
	report, err := engine.Reconcile(ctx, constants.GatewayOrangeMoney, time.Now(), records, "ops@leonepay")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.Matched != 2 {
		t.Errorf("matched = %d, want 2", report.Matched)
	}
	if len(report.AmountMismatches) != 0 || len(report.MissingInEngine) != 0 || len(report.MissingInProvider) != 0 {
		t.Errorf("unexpected discrepancies: %+v", report)
	}

	stored, _ := env.txRepo.GetByID(first.ID)
	if !stored.IsReconciled || stored.ReconciledAt == nil || stored.ReconciledBy != "ops@leonepay" {
		t.Errorf("transaction not marked reconciled: %+v", stored)
	}

	logs, _ := env.logRepo.ListByTransaction(second.ID)
	last := logs[len(logs)-1]
	if last.Action != constants.TxActionReconcile {
		t.Errorf("last action = %s, want reconcile", last.Action)
	}

	// A rerun of the same statement only reports already-reconciled rows.
	rerun, err := engine.Reconcile(ctx, constants.GatewayOrangeMoney, time.Now(), records, "ops@leonepay")
	if err != nil {
		t.Fatalf("Reconcile() rerun error = %v", err)
	}
	if rerun.Matched != 0 || rerun.AlreadyReconciled != 2 {
		t.Errorf("rerun = %+v, want 0 matched / 2 already reconciled", rerun)
	}
}

func TestReconcileAmountMismatch(t *testing.T) {
	env, engine, adapter := newReconciliationEnv(t)

	txn := settledPayment(t, env, adapter, testPhone, "100", "OM-R1")

	report, err := engine.Reconcile(context.Background(), constants.GatewayOrangeMoney, time.Now(), []ProviderRecord{
		{ProviderRef: "OM-R1", Amount: testMoney("90")},
	}, "ops@leonepay")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(report.AmountMismatches) != 1 {
		t.Fatalf("mismatches = %d, want 1", len(report.AmountMismatches))
	}
	diff := report.AmountMismatches[0]
	if diff.EngineAmount != "100.00" || diff.ProviderAmount != "90.00" {
		t.Errorf("discrepancy = %+v", diff)
	}

	// Mismatches are reported, never auto-corrected.
	stored, _ := env.txRepo.GetByID(txn.ID)
	if stored.IsReconciled {
		t.Error("mismatched transaction must not be marked reconciled")
	}
	if stored.Amount.String() != "100.00" {
		t.Errorf("amount = %s, engine record must stay untouched", stored.Amount.String())
	}
}

func TestReconcileMissingRows(t *testing.T) {
	env, engine, adapter := newReconciliationEnv(t)

	engineOnly := settledPayment(t, env, adapter, testPhone, "100", "OM-R1")

	report, err := engine.Reconcile(context.Background(), constants.GatewayOrangeMoney, time.Now(), []ProviderRecord{
		{ProviderRef: "OM-GHOST", Amount: testMoney("40")},
	}, "ops@leonepay")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(report.MissingInEngine) != 1 || report.MissingInEngine[0] != "OM-GHOST" {
		t.Errorf("missing_in_engine = %v, want [OM-GHOST]", report.MissingInEngine)
	}
	if len(report.MissingInProvider) != 1 || report.MissingInProvider[0] != engineOnly.Reference {
		t.Errorf("missing_in_provider = %v, want [%s]", report.MissingInProvider, engineOnly.Reference)
	}
}

func TestReconcileScopedToGatewayAndDay(t *testing.T) {
	env, engine, adapter := newReconciliationEnv(t)

	settledPayment(t, env, adapter, testPhone, "100", "OM-R1")

	// An afrimoney statement sees none of the orange rows.
	report, err := engine.Reconcile(context.Background(), constants.GatewayAfrimoney, time.Now(), nil, "ops@leonepay")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.Matched != 0 || len(report.MissingInProvider) != 0 {
		t.Errorf("report = %+v, want empty", report)
	}

	// Yesterday's window misses today's settlement.
	report, err = engine.Reconcile(context.Background(), constants.GatewayOrangeMoney, time.Now().Add(-48*time.Hour), nil, "ops@leonepay")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(report.MissingInProvider) != 0 {
		t.Errorf("missing_in_provider = %v, want empty outside the day window", report.MissingInProvider)
	}
}

func TestMarkReconciled(t *testing.T) {
	env, engine, adapter := newReconciliationEnv(t)
	ctx := context.Background()

	txn := settledPayment(t, env, adapter, testPhone, "100", "OM-R1")

	changed, err := engine.MarkReconciled(ctx, txn.ID, "ops@leonepay")
	if err != nil {
		t.Fatalf("MarkReconciled() error = %v", err)
	}
	if !changed {
		t.Fatal("MarkReconciled() = false, want true")
	}
	stored, _ := env.txRepo.GetByID(txn.ID)
	if !stored.IsReconciled || stored.ReconciledBy != "ops@leonepay" {
		t.Errorf("not marked reconciled: %+v", stored)
	}

	// Already reconciled: no-op reporting false, not an error.
	changed, err = engine.MarkReconciled(ctx, txn.ID, "ops@leonepay")
	if err != nil {
		t.Fatalf("second MarkReconciled() error = %v", err)
	}
	if changed {
		t.Error("second MarkReconciled() = true, want false")
	}

	// Non-completed transaction: same no-op contract.
	live := env.initiate(t, constants.GatewayOrangeMoney, "23276000003", "50")
	changed, err = engine.MarkReconciled(ctx, live.ID, "ops@leonepay")
	if err != nil {
		t.Fatalf("MarkReconciled(initiated) error = %v", err)
	}
	if changed {
		t.Error("MarkReconciled(initiated) = true, want false")
	}
}

func TestBulkMarkReconciled(t *testing.T) {
	env, engine, adapter := newReconciliationEnv(t)

	first := settledPayment(t, env, adapter, testPhone, "100", "OM-R1")
	second := settledPayment(t, env, adapter, "23276000002", "200", "OM-R2")
	live := env.initiate(t, constants.GatewayOrangeMoney, "23276000003", "50")

	count, err := engine.BulkMarkReconciled(context.Background(), []uint{first.ID, second.ID, live.ID, 9999}, "ops@leonepay")
	if err != nil {
		t.Fatalf("BulkMarkReconciled() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestReconcileFallsBackToEngineReference(t *testing.T) {
	env, engine, adapter := newReconciliationEnv(t)

	txn := settledPayment(t, env, adapter, testPhone, "100", "OM-R1")

	report, err := engine.Reconcile(context.Background(), constants.GatewayOrangeMoney, time.Now(), []ProviderRecord{
		{Reference: txn.Reference, Amount: testMoney("100")},
	}, "ops@leonepay")
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.Matched != 1 {
		t.Errorf("matched = %d, want 1", report.Matched)
	}
}
