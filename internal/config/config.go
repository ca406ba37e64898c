package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type Config struct {
	Port                     string
	AllowedOrigin            string
	DatabaseURL              string
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	CounterDBPath            string
	AuthSecret               string
	AccessTokenTTLMinutes    int
	SnapshotTTLSeconds       int
	TaxRate                  decimal.Decimal
	LoyaltyPointUnit         decimal.Decimal
	InvoicePrefix            string
	PurchaseOrderPrefix      string
	DeliveryNotePrefix       string
	SerializeDocumentNumbers bool
	CompensateOnFailure      bool
	LogLevel                 string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	snapshotTTL, err := strconv.Atoi(getEnv("SNAPSHOT_TTL_SECONDS", "30"))
	if err != nil || snapshotTTL < 1 {
		snapshotTTL = 30
	}

	// TAX_RATE_PERCENT is a display figure only; 18 means 18%.
	taxPercent, err := decimal.NewFromString(getEnv("TAX_RATE_PERCENT", "18"))
	if err != nil || taxPercent.IsNegative() {
		taxPercent = decimal.NewFromInt(18)
	}
	loyaltyUnit, err := decimal.NewFromString(getEnv("LOYALTY_POINT_UNIT", "10"))
	if err != nil || !loyaltyUnit.IsPositive() {
		loyaltyUnit = decimal.NewFromInt(10)
	}

	cfg := Config{
		Port:                     getEnv("PORT", "8080"),
		AllowedOrigin:            getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  redisDB,
		CounterDBPath:            os.Getenv("COUNTER_DB_PATH"),
		AuthSecret:               strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:    tokenTTL,
		SnapshotTTLSeconds:       snapshotTTL,
		TaxRate:                  taxPercent.Div(decimal.NewFromInt(100)),
		LoyaltyPointUnit:         loyaltyUnit,
		InvoicePrefix:            getEnv("INVOICE_PREFIX", "INV"),
		PurchaseOrderPrefix:      getEnv("PURCHASE_ORDER_PREFIX", "PO"),
		DeliveryNotePrefix:       getEnv("DELIVERY_NOTE_PREFIX", "DN"),
		SerializeDocumentNumbers: getBool("SERIALIZE_DOCUMENT_NUMBERS", false),
		CompensateOnFailure:      getBool("COMPENSATE_ON_FAILURE", false),
		LogLevel:                 strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return val
}
