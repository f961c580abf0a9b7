package service

import (
	"errors"
	"testing"

	"github.com/leonepay/internal/models"
)

func feeSchedule(percentage, fixed, min, max string) *models.GatewayConfig {
	return &models.GatewayConfig{
		GatewayType:   "orange_money",
		FeePercentage: testMoney(percentage),
		FixedFee:      testMoney(fixed),
		MinFee:        testMoney(min),
		MaxFee:        testMoney(max),
	}
}

func TestCalculatePercentagePlusFixed(t *testing.T) {
	calc := NewFeeCalculator()

	fee, net, err := calc.Calculate(feeSchedule("2", "10", "0", "0"), testMoney("100"))
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if fee.String() != "12.00" {
		t.Errorf("fee = %s, want 12.00", fee.String())
	}
	if net.String() != "88.00" {
		t.Errorf("net = %s, want 88.00", net.String())
	}
}

func TestCalculateMinFeeClamp(t *testing.T) {
	calc := NewFeeCalculator()

	// 2% + 10 on 100 is 12, but the floor lifts it to 20.
	fee, net, err := calc.Calculate(feeSchedule("2", "10", "20", "0"), testMoney("100"))
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if fee.String() != "20.00" {
		t.Errorf("fee = %s, want 20.00", fee.String())
	}
	if net.String() != "80.00" {
		t.Errorf("net = %s, want 80.00", net.String())
	}
}

func TestCalculateMaxFeeClamp(t *testing.T) {
	calc := NewFeeCalculator()

	fee, _, err := calc.Calculate(feeSchedule("2.9", "2", "0", "100"), testMoney("10000"))
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if fee.String() != "100.00" {
		t.Errorf("fee = %s, want 100.00", fee.String())
	}
}

func TestCalculateRoundsToTwoDecimals(t *testing.T) {
	calc := NewFeeCalculator()

	fee, net, err := calc.Calculate(feeSchedule("1.5", "0", "0", "0"), testMoney("33.33"))
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	// 33.33 * 1.5% = 0.49995, rounds to 0.50.
	if fee.String() != "0.50" {
		t.Errorf("fee = %s, want 0.50", fee.String())
	}
	if net.String() != "32.83" {
		t.Errorf("net = %s, want 32.83", net.String())
	}
}

func TestCalculateFeeConsumesAmount(t *testing.T) {
	calc := NewFeeCalculator()

	_, _, err := calc.Calculate(feeSchedule("0", "50", "0", "0"), testMoney("50"))
	if !errors.Is(err, ErrFeeExceedsAmount) {
		t.Errorf("Calculate() error = %v, want ErrFeeExceedsAmount", err)
	}
	_, _, err = calc.Calculate(feeSchedule("0", "60", "0", "0"), testMoney("50"))
	if !errors.Is(err, ErrFeeExceedsAmount) {
		t.Errorf("Calculate() error = %v, want ErrFeeExceedsAmount", err)
	}
}

func TestCalculateRejectsNonPositiveAmount(t *testing.T) {
	calc := NewFeeCalculator()

	_, _, err := calc.Calculate(feeSchedule("1", "0", "0", "0"), testMoney("0"))
	if !errors.Is(err, ErrAmountInvalid) {
		t.Errorf("Calculate() error = %v, want ErrAmountInvalid", err)
	}
	_, _, err = calc.Calculate(feeSchedule("1", "0", "0", "0"), testMoney("-5"))
	if !errors.Is(err, ErrAmountInvalid) {
		t.Errorf("Calculate() error = %v, want ErrAmountInvalid", err)
	}
}

func TestCalculateZeroScheduleFailsClosed(t *testing.T) {
	calc := NewFeeCalculator()

	// A free gateway yields a zero fee, never an error.
	fee, net, err := calc.Calculate(feeSchedule("0", "0", "0", "0"), testMoney("100"))
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if !fee.Decimal.IsZero() {
		t.Errorf("fee = %s, want 0", fee.String())
	}
	if net.String() != "100.00" {
		t.Errorf("net = %s, want 100.00", net.String())
	}
}

func TestCheckBounds(t *testing.T) {
	calc := NewFeeCalculator()
	cfg := &models.GatewayConfig{
		MinAmount: testMoney("10"),
		MaxAmount: testMoney("10000"),
	}

	if err := calc.CheckBounds(cfg, testMoney("10")); err != nil {
		t.Errorf("CheckBounds(10) error = %v", err)
	}
	if err := calc.CheckBounds(cfg, testMoney("10000")); err != nil {
		t.Errorf("CheckBounds(10000) error = %v", err)
	}
	if err := calc.CheckBounds(cfg, testMoney("9.99")); !errors.Is(err, ErrAmountOutOfRange) {
		t.Errorf("CheckBounds(9.99) error = %v, want ErrAmountOutOfRange", err)
	}
	if err := calc.CheckBounds(cfg, testMoney("10000.01")); !errors.Is(err, ErrAmountOutOfRange) {
		t.Errorf("CheckBounds(10000.01) error = %v, want ErrAmountOutOfRange", err)
	}

	// Zero bounds are uncapped.
	open := &models.GatewayConfig{}
	if err := calc.CheckBounds(open, testMoney("999999")); err != nil {
		t.Errorf("CheckBounds(unbounded) error = %v", err)
	}
}
