// Command seed populates the gateway configuration table with the
// default Sierra Leone payment rails for a fresh deployment.
package main

import (
	"flag"

	"github.com/shopspring/decimal"

	"github.com/leonepay/internal/config"
	"github.com/leonepay/internal/constants"
	"github.com/leonepay/internal/logger"
	"github.com/leonepay/internal/models"
	"github.com/leonepay/internal/repository"
)

func money(v int64) models.Money {
	return models.NewMoneyFromDecimal(decimal.NewFromInt(v))
}

func moneyStr(v string) models.Money {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return models.NewMoneyFromDecimal(d)
}

func defaultGateways() []models.GatewayConfig {
	return []models.GatewayConfig{
		{
			GatewayType:   constants.GatewayOrangeMoney,
			DisplayName:   "Orange Money",
			Currency:      constants.CurrencyDefault,
			MinAmount:     money(1),
			MaxAmount:     money(10000),
			DailyLimit:    money(25000),
			MonthlyLimit:  money(250000),
			FeePercentage: moneyStr("1.5"),
			FixedFee:      money(0),
			MinFee:        money(1),
			MaxFee:        money(100),
			Settings: models.JSON{
				"api_base_url":   "https://api.orange.sl/money",
				"merchant_code":  "CHANGE_ME",
				"api_key":        "CHANGE_ME",
				"webhook_secret": "CHANGE_ME",
				"pin_length":     4,
			},
			IsActive:  true,
			SortOrder: 1,
		},
		{
			GatewayType:   constants.GatewayAfrimoney,
			DisplayName:   "Afrimoney",
			Currency:      constants.CurrencyDefault,
			MinAmount:     money(1),
			MaxAmount:     money(10000),
			DailyLimit:    money(25000),
			MonthlyLimit:  money(250000),
			FeePercentage: moneyStr("1.5"),
			FixedFee:      money(0),
			MinFee:        money(1),
			MaxFee:        money(100),
			Settings: models.JSON{
				"api_base_url":   "https://partner.afrimoney.sl",
				"partner_id":     "CHANGE_ME",
				"partner_secret": "CHANGE_ME",
				"webhook_secret": "CHANGE_ME",
				"pin_length":     4,
			},
			IsActive:  true,
			SortOrder: 2,
		},
		{
			GatewayType:   constants.GatewayBankTransfer,
			DisplayName:   "Bank Transfer",
			Currency:      constants.CurrencyDefault,
			MinAmount:     money(50),
			MaxAmount:     money(500000),
			FeePercentage: moneyStr("0.5"),
			FixedFee:      money(10),
			MaxFee:        money(500),
			Settings: models.JSON{
				"api_base_url":   "https://gateway.bank.example.sl",
				"client_id":      "CHANGE_ME",
				"client_secret":  "CHANGE_ME",
				"webhook_secret": "CHANGE_ME",
			},
			IsActive:  true,
			SortOrder: 3,
		},
		{
			GatewayType:   constants.GatewayCard,
			DisplayName:   "Card",
			Currency:      constants.CurrencyDefault,
			MinAmount:     money(10),
			MaxAmount:     money(100000),
			FeePercentage: moneyStr("2.9"),
			FixedFee:      money(2),
			Settings: models.JSON{
				"api_base_url":   "https://cards.example.com",
				"secret_key":     "CHANGE_ME",
				"webhook_secret": "CHANGE_ME",
			},
			IsActive:  true,
			SortOrder: 4,
		},
		{
			GatewayType:   constants.GatewayCash,
			DisplayName:   "Cash at Agent",
			Currency:      constants.CurrencyDefault,
			MinAmount:     money(1),
			MaxAmount:     money(5000),
			DailyLimit:    money(10000),
			FeePercentage: money(0),
			FixedFee:      money(1),
			Settings: models.JSON{
				"confirm_secret": "CHANGE_ME",
			},
			IsActive:  false,
			SortOrder: 5,
		},
	}
}

func main() {
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()

	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns: cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns: cfg.Database.Pool.MaxIdleConns,
	}); err != nil {
		stdLog.Fatalf("database init failed: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("database migration failed: %v", err)
	}

	repo := repository.NewGatewayConfigRepository(models.DB)
	created := 0
	for _, gc := range defaultGateways() {
		existing, err := repo.GetByType(gc.GatewayType)
		if err != nil {
			stdLog.Fatalf("lookup %s failed: %v", gc.GatewayType, err)
		}
		if existing != nil {
			logger.Infow("gateway_seed_skipped", "gateway_type", gc.GatewayType)
			continue
		}
		gateway := gc
		if err := repo.Create(&gateway); err != nil {
			stdLog.Fatalf("create %s failed: %v", gc.GatewayType, err)
		}
		logger.Infow("gateway_seed_created", "gateway_type", gc.GatewayType)
		created++
	}
	logger.Infow("gateway_seed_done", "created", created)
}
