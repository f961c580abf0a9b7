package service

import (
	"errors"
	"testing"
	"time"

	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/models"
	"github.com/leonepay/internal/repository"
)

const testPhone = "23276123456"

func limitConfig(daily, monthly string) *models.GatewayConfig {
	return &models.GatewayConfig{
		GatewayType:  constants.GatewayOrangeMoney,
		DailyLimit:   testMoney(daily),
		MonthlyLimit: testMoney(monthly),
	}
}

func TestReserveWithinDailyCap(t *testing.T) {
	db := newTestDB(t)
	enforcer := NewLimitEnforcer(repository.NewLimitLedgerRepository(db))
	cfg := limitConfig("100", "0")
	now := time.Now()

	if err := enforcer.Reserve(db, cfg, testPhone, testMoney("60"), now); err != nil {
		t.Fatalf("first Reserve() error = %v", err)
	}
	if err := enforcer.Reserve(db, cfg, testPhone, testMoney("40"), now); err != nil {
		t.Fatalf("second Reserve() error = %v", err)
	}
}

func TestReserveDailyCapCountsReservations(t *testing.T) {
	db := newTestDB(t)
	enforcer := NewLimitEnforcer(repository.NewLimitLedgerRepository(db))
	cfg := limitConfig("100", "0")
	now := time.Now()

	if err := enforcer.Reserve(db, cfg, testPhone, testMoney("60"), now); err != nil {
		t.Fatalf("first Reserve() error = %v", err)
	}
	// 60 is still only reserved, not completed; a second 60 must fail.
	err := enforcer.Reserve(db, cfg, testPhone, testMoney("60"), now)
	if !errors.Is(err, ErrDailyLimitExceeded) {
		t.Fatalf("second Reserve() error = %v, want ErrDailyLimitExceeded", err)
	}
}

func TestReleaseFreesDailyHeadroom(t *testing.T) {
	db := newTestDB(t)
	enforcer := NewLimitEnforcer(repository.NewLimitLedgerRepository(db))
	cfg := limitConfig("100", "0")
	now := time.Now()

	if err := enforcer.Reserve(db, cfg, testPhone, testMoney("60"), now); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if err := enforcer.Release(db, cfg.GatewayType, testPhone, testMoney("60"), now); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := enforcer.Reserve(db, cfg, testPhone, testMoney("90"), now); err != nil {
		t.Fatalf("Reserve() after release error = %v", err)
	}
}

func TestCommitKeepsUsageCounted(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewLimitLedgerRepository(db)
	enforcer := NewLimitEnforcer(repo)
	cfg := limitConfig("100", "0")
	now := time.Now()

	if err := enforcer.Reserve(db, cfg, testPhone, testMoney("60"), now); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if err := enforcer.Commit(db, cfg.GatewayType, testPhone, testMoney("60"), now); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	ledger, err := repo.GetForUpdate(testPhone, cfg.GatewayType, enforcer.DayKey(now))
	if err != nil {
		t.Fatalf("GetForUpdate() error = %v", err)
	}
	if !ledger.ReservedAmount.Decimal.IsZero() {
		t.Errorf("reserved = %s, want 0", ledger.ReservedAmount.String())
	}
	if ledger.CompletedAmount.String() != "60.00" {
		t.Errorf("completed = %s, want 60.00", ledger.CompletedAmount.String())
	}

	// Committed usage still counts against the cap.
	err = enforcer.Reserve(db, cfg, testPhone, testMoney("50"), now)
	if !errors.Is(err, ErrDailyLimitExceeded) {
		t.Errorf("Reserve() after commit error = %v, want ErrDailyLimitExceeded", err)
	}
}

func TestMonthlyCapSpansDays(t *testing.T) {
	db := newTestDB(t)
	enforcer := NewLimitEnforcer(repository.NewLimitLedgerRepository(db))
	cfg := limitConfig("100", "150")

	day1 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	if err := enforcer.Reserve(db, cfg, testPhone, testMoney("100"), day1); err != nil {
		t.Fatalf("day1 Reserve() error = %v", err)
	}
	if err := enforcer.Commit(db, cfg.GatewayType, testPhone, testMoney("100"), day1); err != nil {
		t.Fatalf("day1 Commit() error = %v", err)
	}

	// Day 2 has full daily headroom, but the month only has 50 left.
	err := enforcer.Reserve(db, cfg, testPhone, testMoney("60"), day2)
	if !errors.Is(err, ErrMonthlyLimitExceeded) {
		t.Fatalf("day2 Reserve() error = %v, want ErrMonthlyLimitExceeded", err)
	}
	if err := enforcer.Reserve(db, cfg, testPhone, testMoney("50"), day2); err != nil {
		t.Fatalf("day2 Reserve(50) error = %v", err)
	}
}

func TestZeroCapsAreUncapped(t *testing.T) {
	db := newTestDB(t)
	enforcer := NewLimitEnforcer(repository.NewLimitLedgerRepository(db))
	cfg := limitConfig("0", "0")
	now := time.Now()

	if err := enforcer.Reserve(db, cfg, testPhone, testMoney("1000000"), now); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
}

func TestLedgerIsolatedPerGateway(t *testing.T) {
	db := newTestDB(t)
	enforcer := NewLimitEnforcer(repository.NewLimitLedgerRepository(db))
	now := time.Now()

	orange := limitConfig("100", "0")
	afri := &models.GatewayConfig{
		GatewayType: constants.GatewayAfrimoney,
		DailyLimit:  testMoney("100"),
	}

	if err := enforcer.Reserve(db, orange, testPhone, testMoney("100"), now); err != nil {
		t.Fatalf("orange Reserve() error = %v", err)
	}
	// A full orange day leaves the afrimoney cap untouched.
	if err := enforcer.Reserve(db, afri, testPhone, testMoney("100"), now); err != nil {
		t.Fatalf("afrimoney Reserve() error = %v", err)
	}
}

func TestReleaseClampsAtZero(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewLimitLedgerRepository(db)
	enforcer := NewLimitEnforcer(repo)
	cfg := limitConfig("100", "0")
	now := time.Now()

	if err := enforcer.Reserve(db, cfg, testPhone, testMoney("10"), now); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	// Releasing more than reserved must not drive the ledger negative.
	if err := enforcer.Release(db, cfg.GatewayType, testPhone, testMoney("50"), now); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	ledger, err := repo.GetForUpdate(testPhone, cfg.GatewayType, enforcer.DayKey(now))
	if err != nil {
		t.Fatalf("GetForUpdate() error = %v", err)
	}
	if ledger.ReservedAmount.Decimal.IsNegative() {
		t.Errorf("reserved = %s, want >= 0", ledger.ReservedAmount.String())
	}
}
