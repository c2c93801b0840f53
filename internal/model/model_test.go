package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKind_Retriable(t *testing.T) {
	tests := []struct {
		name     string
		kind     ErrorKind
		expected bool
	}{
		{"adapter transient is retriable", ErrAdapterTransient, true},
		{"stage timeout is retriable", ErrStageTimeout, true},
		{"busy is retriable", ErrBusy, true},
		{"validation failed is not retriable", ErrValidationFailed, false},
		{"cancelled is not retriable", ErrCancelled, false},
		{"adapter permanent is not retriable", ErrAdapterPermanent, false},
		{"circuit open is not retriable", ErrCircuitOpen, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.Retriable())
		})
	}
}

type unrelatedError struct{}

func (unrelatedError) Error() string { return "boom" }

func TestError_KindOf(t *testing.T) {
	err := NewError(ErrNoViableRoute, "optimize_route", "no candidates survived filtering", nil)
	assert.Equal(t, ErrNoViableRoute, KindOf(err))
	assert.Equal(t, ErrInternal, KindOf(unrelatedError{}))
}

func TestPaymentIntent_Validate(t *testing.T) {
	valid := PaymentIntent{
		ReferenceID:    "ref-1",
		Amount:         decimal.NewFromInt(100),
		SourceCurrency: "USD",
		DestCurrency:   "KES",
		Sender:         PartyDescriptor{Country: "NG"},
		Recipient:      PartyDescriptor{Country: "KE"},
	}
	require.NoError(t, valid.Validate())

	missingRef := valid
	missingRef.ReferenceID = ""
	assert.Error(t, missingRef.Validate())

	zeroAmount := valid
	zeroAmount.Amount = decimal.Zero
	assert.Error(t, zeroAmount.Validate())

	negAmount := valid
	negAmount.Amount = decimal.NewFromInt(-1)
	assert.Error(t, negAmount.Validate())

	missingCurrency := valid
	missingCurrency.DestCurrency = ""
	assert.Error(t, missingCurrency.Validate())

	missingCountry := valid
	missingCountry.Recipient.Country = ""
	assert.Error(t, missingCountry.Validate())
}

func TestWorkflowContext_AllOK(t *testing.T) {
	ctx := NewWorkflowContext("wf-1", PaymentIntent{ReferenceID: "ref-1"})
	ctx.Record(Succeeded(StageCreatePayment, nil, "ok", time.Millisecond, 1))
	assert.True(t, ctx.AllOK(StageCreatePayment))
	assert.False(t, ctx.AllOK(StageCreatePayment, StageValidatePayment))

	ctx.Record(Failed(StageValidatePayment, ErrValidationFailed, "bad", time.Millisecond, 1))
	assert.False(t, ctx.AllOK(StageValidatePayment))

	_, attempted := ctx.Result(StageOptimizeRoute)
	assert.False(t, attempted)
}

func TestError_Is(t *testing.T) {
	err := NewError(ErrCircuitOpen, "execute_mmo", "breaker open", nil)
	target := NewError(ErrCircuitOpen, "", "", nil)
	assert.ErrorIs(t, err, target)

	other := NewError(ErrBusy, "", "", nil)
	assert.False(t, err.Is(other))
}
