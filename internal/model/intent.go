// Package model holds the data shapes shared across every component of the
// orchestration core: the payment intent, stage results, routes and scores,
// worker descriptors/state, and the typed error kinds they all return.
package model

import (
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var structValidator = validator.New()

// PaymentType enumerates the kind of payment an intent represents.
type PaymentType string

const (
	PaymentPersonalRemittance PaymentType = "personal_remittance"
	PaymentBusinessPayout     PaymentType = "business_payout"
	PaymentMerchantSettlement PaymentType = "merchant_settlement"
)

// PaymentMethod is a hint toward the preferred disbursement rail.
type PaymentMethod string

const (
	MethodMobileMoney PaymentMethod = "mobile_money"
	MethodBankPayout  PaymentMethod = "bank_payout"
	MethodCard        PaymentMethod = "card"
)

// PartyDescriptor identifies either side of a payment.
type PartyDescriptor struct {
	Name    string
	Phone   string
	Country string `validate:"required,iso3166_1_alpha2"`
}

// Preferences are the optional routing hints an intent can carry.
type Preferences struct {
	PriorityCost      bool
	PrioritySpeed     bool
	MaxDeliveryMinutes int
	MaxFee            decimal.Decimal
	HasMaxDeliveryMinutes bool
	HasMaxFee             bool
}

// PaymentIntent is the immutable input to the orchestration core (§3).
type PaymentIntent struct {
	ReferenceID    string `validate:"required"`
	Amount         decimal.Decimal
	SourceCurrency string `validate:"required,len=3"` // ISO 4217
	DestCurrency   string `validate:"required,len=3"`
	PaymentType    PaymentType
	PaymentMethod  PaymentMethod
	Sender         PartyDescriptor `validate:"required"`
	Recipient      PartyDescriptor `validate:"required"`
	Preferences    Preferences
	HasPreferences bool
}

// Corridor returns the (source, destination) currency pair used to key
// risk patterns, trusted/regulated corridor sets and route discovery.
func (i PaymentIntent) Corridor() (string, string) {
	return i.SourceCurrency, i.DestCurrency
}

// CountryCorridor returns the (sender, recipient) country pair, used by
// the Factory's routing policy for trusted/regulated corridor matching.
func (i PaymentIntent) CountryCorridor() (string, string) {
	return i.Sender.Country, i.Recipient.Country
}

// Validate enforces the structural invariants from §3: a unique-looking
// reference id, 3-letter currency codes, and populated parties, checked via
// struct tags; then the business rules a tag can't express (amount sign).
// It does not perform business validation beyond that (that is the
// create_payment / validate_payment stages' job) — only the shape an intent
// must have before it is allowed to enter the pipeline at all.
func (i PaymentIntent) Validate() error {
	if err := structValidator.Struct(i); err != nil {
		return NewError(ErrValidationFailed, "", err.Error(), err)
	}
	if i.Amount.IsZero() || i.Amount.IsNegative() {
		return NewError(ErrValidationFailed, "", "amount must be positive", nil)
	}
	return nil
}
