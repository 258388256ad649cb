package core

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Expense TransactionType = "expense"
	Revenue TransactionType = "revenue"
)

type (
	TransactionType string

	// Category is one of the seven fixed expense categories.
	Category string

	// PaymentMethod is one of the seven canonical lowercase account keys.
	PaymentMethod string

	// MonthKey identifies one monthly ledger record.
	MonthKey struct {
		Year  int
		Month int
	}

	// Transaction is a single income or expense entry. Immutable once
	// created; removed by id, never edited.
	Transaction struct {
		ID            string          `json:"id"`
		Type          TransactionType `json:"type"`
		Amount        Money           `json:"amount"`
		Category      Category        `json:"category"`
		Description   string          `json:"description"`
		PaymentMethod PaymentMethod   `json:"payment_method"`
		Timestamp     int64           `json:"timestamp"`
		CreatedAt     string          `json:"created_at"`
	}
)

const (
	CategoryHabits      Category = "Habits"
	CategoryHouse       Category = "House"
	CategoryTravels     Category = "Travels"
	CategoryFood        Category = "Food"
	CategoryInvestments Category = "Investments"
	CategoryTransport   Category = "Transport"
	CategoryOther       Category = "Other"
)

const (
	MethodCash    PaymentMethod = "cash"
	MethodITA     PaymentMethod = "ita"
	MethodUSA     PaymentMethod = "usa"
	MethodNonna   PaymentMethod = "nonna"
	MethodN26     PaymentMethod = "n26"
	MethodRevolut PaymentMethod = "revolut"
	MethodPayPal  PaymentMethod = "paypal"
)

// Categories lists the closed category set in display order.
var Categories = []Category{
	CategoryHabits,
	CategoryHouse,
	CategoryTravels,
	CategoryFood,
	CategoryInvestments,
	CategoryTransport,
	CategoryOther,
}

// PaymentMethods lists the closed payment-method set.
var PaymentMethods = []PaymentMethod{
	MethodCash,
	MethodITA,
	MethodUSA,
	MethodNonna,
	MethodN26,
	MethodRevolut,
	MethodPayPal,
}

// legacyMethodKeys maps historical spellings found in old records to their
// canonical lowercase key. "casht" was a recurring typo in early data.
var legacyMethodKeys = map[string]PaymentMethod{
	"casht": MethodCash,
}

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrEmptyDescription     = errors.New("empty description")
	ErrDescriptionTooLong   = errors.New("description too long (max 200 characters)")
	ErrInvalidType          = errors.New("invalid transaction type")
	ErrUnknownCategory      = errors.New("unknown category")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrInvalidMonth         = errors.New("invalid month")
	ErrInvalidYear          = errors.New("invalid year")
)

// MonthKeyOf truncates a calendar date to its year/month key.
func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: int(t.Month())}
}

func (k MonthKey) Validate() error {
	if k.Year < 1970 || k.Year > 9999 {
		return ErrInvalidYear
	}
	if k.Month < 1 || k.Month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%d/%d", k.Year, k.Month)
}

// ParseType validates a transaction type string.
func ParseType(s string) (TransactionType, error) {
	switch TransactionType(strings.ToLower(strings.TrimSpace(s))) {
	case Expense:
		return Expense, nil
	case Revenue:
		return Revenue, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// ParseCategory matches a string against the closed category set,
// tolerating case differences but nothing else.
func ParseCategory(s string) (Category, error) {
	trimmed := strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(trimmed, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// ParsePaymentMethod lower-cases a payment-method string and matches it
// against the canonical set, applying the legacy typo mapping first.
// Unknown keys are rejected.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	lowered := strings.ToLower(strings.TrimSpace(s))
	if canonical, ok := legacyMethodKeys[lowered]; ok {
		return canonical, nil
	}
	for _, m := range PaymentMethods {
		if lowered == string(m) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, s)
}

// NormalizePaymentMethod is the forgiving variant used when reversing or
// migrating historical records: unknown keys fall back to cash so that
// malformed transactions written before normalization stay deletable.
func NormalizePaymentMethod(s string) PaymentMethod {
	m, err := ParsePaymentMethod(s)
	if err != nil {
		return MethodCash
	}
	return m
}

func (t Transaction) Validate() error {
	if t.Type != Expense && t.Type != Revenue {
		return ErrInvalidType
	}
	if t.Amount.Cents <= 0 {
		return ErrInvalidAmount
	}
	if _, err := ParseCategory(string(t.Category)); err != nil {
		return err
	}
	if _, err := ParsePaymentMethod(string(t.PaymentMethod)); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return ErrDescriptionTooLong
	}
	return nil
}

// NewTransactionID builds a month-unique id from the transaction timestamp
// plus a random suffix, so two entries created in the same millisecond
// never collide.
func NewTransactionID(timestampMs int64) string {
	suffix := make([]byte, 5)
	if _, err := rand.Read(suffix); err != nil {
		return fmt.Sprintf("%d_%d", timestampMs, time.Now().UnixNano())
	}
	return fmt.Sprintf("%d_%s", timestampMs, hex.EncodeToString(suffix))
}
