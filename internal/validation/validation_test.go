package validation

import (
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

func TestMinorUnits(t *testing.T) {
	got, err := MinorUnits(decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, int64(100), got)

	got, err = MinorUnits(decimal.NewFromInt(-5))
	require.NoError(t, err)
	assert.Equal(t, int64(-5), got)

	_, err = MinorUnits(decimal.RequireFromString("10.5"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = MinorUnits(decimal.NewFromInt(math.MaxInt64).Add(decimal.NewFromInt(1)))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	got, err = MinorUnits(decimal.RequireFromString("100.00"))
	require.NoError(t, err)
	assert.Equal(t, int64(100), got)
}

func TestWalletIDCanonicalises(t *testing.T) {
	id := uuid.NewString()
	got, err := WalletID(strings.ToUpper(id))
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = WalletID("not-a-uuid")
	assert.ErrorIs(t, err, ledger.ErrInvalidOperation)
}

func TestStruct(t *testing.T) {
	type req struct {
		ReceiverID string `validate:"required,uuid4"`
		Key        string `validate:"omitempty,max=4"`
	}
	assert.NoError(t, Struct(req{ReceiverID: uuid.NewString()}))

	err := Struct(req{ReceiverID: "x", Key: "toolong"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInvalidOperation)
	assert.Contains(t, err.Error(), "ReceiverID failed uuid4")
	assert.Contains(t, err.Error(), "Key failed max")
}
