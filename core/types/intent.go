package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// IntentType classifies what the upstream interpreter believes the user asked
// for. UNKNOWN intents bypass policy and are surfaced as errors by the
// gateway.
type IntentType string

const (
	IntentPayment            IntentType = "PAYMENT"
	IntentBalanceInquiry     IntentType = "BALANCE_INQUIRY"
	IntentTransactionHistory IntentType = "TRANSACTION_HISTORY"
	IntentUnknown            IntentType = "UNKNOWN"
)

// Valid reports whether the intent type is one of the supported values.
func (t IntentType) Valid() bool {
	switch t {
	case IntentPayment, IntentBalanceInquiry, IntentTransactionHistory, IntentUnknown:
		return true
	default:
		return false
	}
}

// DefaultCurrency is assumed whenever the interpreter omits a currency code.
const DefaultCurrency = "INR"

// PaymentIntent is the structured request unit handed to the authorization
// core by the interpreter. Amount uses the zero value to mean "absent"; the
// policy engine treats a PAYMENT intent without a positive amount as missing
// a required field.
type PaymentIntent struct {
	IntentID        string          `json:"intent_id"`
	Type            IntentType      `json:"intent_type"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	MerchantVPA     string          `json:"merchant_vpa"`
	ConfidenceScore float64         `json:"confidence_score"`
	OriginalText    string          `json:"original_text"`
}

// Normalized returns a copy with trimmed identifiers and the default currency
// applied. The receiver is not mutated.
func (p PaymentIntent) Normalized() PaymentIntent {
	clone := p
	clone.IntentID = strings.TrimSpace(p.IntentID)
	clone.MerchantVPA = strings.TrimSpace(p.MerchantVPA)
	clone.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if clone.Currency == "" {
		clone.Currency = DefaultCurrency
	}
	return clone
}

// Validate checks the intent shape. It does not enforce the PAYMENT-specific
// required fields; those produce a policy denial rather than a validation
// error so the caller still receives a complete decision envelope.
func (p PaymentIntent) Validate() error {
	if !p.Type.Valid() {
		return fmt.Errorf("types: unsupported intent type %q", string(p.Type))
	}
	if p.Amount.IsNegative() {
		return fmt.Errorf("types: intent amount must not be negative")
	}
	if p.ConfidenceScore < 0 || p.ConfidenceScore > 1 {
		return fmt.Errorf("types: confidence score %.2f outside [0,1]", p.ConfidenceScore)
	}
	return nil
}

// MissingPaymentFields lists the required PAYMENT fields that are absent. The
// result is empty for non-payment intents.
func (p PaymentIntent) MissingPaymentFields() []string {
	if p.Type != IntentPayment {
		return nil
	}
	missing := make([]string, 0, 2)
	if !p.Amount.IsPositive() {
		missing = append(missing, "amount")
	}
	if strings.TrimSpace(p.MerchantVPA) == "" {
		missing = append(missing, "merchant_vpa")
	}
	return missing
}
