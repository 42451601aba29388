package cashdrawer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileEmptyCountIsShort(t *testing.T) {
	res, err := Reconcile(1000000, 150000, Count{})
	require.NoError(t, err)

	assert.Equal(t, int64(1150000), res.Expected)
	assert.Equal(t, int64(0), res.Actual)
	assert.Equal(t, int64(-1150000), res.Variance)
	assert.Equal(t, Short, res.Classification)
}

func TestReconcileEmptyDrawerWithNothingExpected(t *testing.T) {
	res, err := Reconcile(0, 0, Count{})
	require.NoError(t, err)
	assert.Equal(t, Balanced, res.Classification)
	assert.Equal(t, int64(0), res.Variance)
}

func TestReconcileBalancedAndShort(t *testing.T) {
	balanced := Count{Notes: map[int64]int{100000: 11, 50000: 1}}
	res, err := Reconcile(1000000, 150000, balanced)
	require.NoError(t, err)
	assert.Equal(t, int64(1150000), res.Actual)
	assert.Equal(t, int64(0), res.Variance)
	assert.Equal(t, Balanced, res.Classification)

	short := Count{Notes: map[int64]int{100000: 11}}
	res, err = Reconcile(1000000, 150000, short)
	require.NoError(t, err)
	assert.Equal(t, int64(-50000), res.Variance)
	assert.Equal(t, Short, res.Classification)
}

func TestReconcileOverWithCoins(t *testing.T) {
	count := Count{
		Notes:      map[int64]int{50000: 2},
		Coins:      map[int64]int{500: 3, 100: 5},
		LooseCoins: 200,
	}
	res, err := Reconcile(100000, 0, count)
	require.NoError(t, err)
	assert.Equal(t, int64(102200), res.Actual)
	assert.Equal(t, int64(2200), res.Variance)
	assert.Equal(t, Over, res.Classification)
}

func TestCountValidate(t *testing.T) {
	assert.ErrorIs(t, Count{Notes: map[int64]int{75000: 1}}.Validate(), ErrInvalidCount)
	assert.ErrorIs(t, Count{Notes: map[int64]int{1000: -1}}.Validate(), ErrInvalidCount)
	assert.ErrorIs(t, Count{Coins: map[int64]int{50: 1}}.Validate(), ErrInvalidCount)
	assert.ErrorIs(t, Count{LooseCoins: -5}.Validate(), ErrInvalidCount)
	assert.NoError(t, Count{Notes: map[int64]int{1000: 0}}.Validate())

	_, err := Reconcile(-1, 0, Count{})
	assert.ErrorIs(t, err, ErrInvalidCount)
}

func TestCountForSumsToAmount(t *testing.T) {
	c := CountFor(1150700)
	assert.Equal(t, int64(1150700), c.Actual())
	assert.Equal(t, 11, c.Notes[100000])
	assert.Equal(t, 1, c.Notes[50000])
	assert.Equal(t, int64(700), c.LooseCoins)
}

func TestCountDecodesFromJSON(t *testing.T) {
	var c Count
	err := json.Unmarshal([]byte(`{"notes":{"100000":2,"2000":3},"loose_coins":500}`), &c)
	require.NoError(t, err)
	assert.Equal(t, int64(206500), c.Actual())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Over, Classify(1))
	assert.Equal(t, Short, Classify(-1))
	assert.Equal(t, Balanced, Classify(0))
}
