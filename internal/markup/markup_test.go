package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSellingPrice(t *testing.T) {
	assert.Equal(t, int64(13000), DeriveSellingPrice(10000, 30))
	assert.Equal(t, int64(10000), DeriveSellingPrice(10000, 0))
	assert.Equal(t, int64(0), DeriveSellingPrice(0, 50))
	assert.Equal(t, int64(3750), DeriveSellingPrice(2500, 50))
}

func TestComputeProfit(t *testing.T) {
	p := ComputeProfit(10000, 13000)
	assert.Equal(t, int64(3000), p.ProfitAmount)
	assert.InDelta(t, 23.08, p.ProfitMargin, 0.001)

	zero := ComputeProfit(500, 0)
	assert.Equal(t, int64(-500), zero.ProfitAmount)
	assert.Equal(t, 0.0, zero.ProfitMargin)
}

func TestDeriveDiscountedPrice(t *testing.T) {
	assert.Equal(t, int64(10400), DeriveDiscountedPrice(13000, 20))
	assert.Equal(t, int64(13000), DeriveDiscountedPrice(13000, 0))
	assert.Equal(t, int64(0), DeriveDiscountedPrice(13000, 100))
}

func tiers() []PriceTier {
	return []PriceTier{
		{TierID: "silver", Name: "Silver", DiscountPercentage: 5},
		{TierID: "gold", Name: "Gold", DiscountPercentage: 20},
	}
}

func TestNewFormDerivesEverything(t *testing.T) {
	f, err := NewForm("", 10000, 30, tiers())
	require.NoError(t, err)

	assert.Equal(t, ProductGoods, f.ProductType)
	assert.Equal(t, int64(13000), f.SellingPrice)
	assert.Equal(t, int64(3000), f.ProfitAmount)
	assert.Equal(t, int64(12350), f.Tiers[0].Price)
	assert.Equal(t, int64(10400), f.Tiers[1].Price)
}

func TestNewFormRejectsBadInput(t *testing.T) {
	_, err := NewForm(ProductGoods, -1, 10, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewForm(ProductGoods, 100, -1, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewForm("bundle", 100, 10, nil)
	assert.ErrorIs(t, err, ErrInvalidProductType)

	_, err = NewForm(ProductGoods, 100, 10, []PriceTier{{TierID: "x", DiscountPercentage: 101}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSetCostAndMarkupRefreshDerivedFields(t *testing.T) {
	f, err := NewForm(ProductGoods, 10000, 30, tiers())
	require.NoError(t, err)

	f, err = f.SetCost(20000)
	require.NoError(t, err)
	assert.Equal(t, int64(26000), f.SellingPrice)
	assert.Equal(t, int64(6000), f.ProfitAmount)
	assert.Equal(t, int64(20800), f.Tiers[1].Price)

	f, err = f.SetMarkup(50)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), f.SellingPrice)
	assert.InDelta(t, 33.33, f.ProfitMargin, 0.001)
}

func TestSetSellingPriceDoesNotBackSolveMarkup(t *testing.T) {
	f, err := NewForm(ProductGoods, 10000, 30, tiers())
	require.NoError(t, err)

	edited, err := f.SetSellingPrice(15000)
	require.NoError(t, err)
	assert.Equal(t, 30.0, edited.MarkupPercentage)
	assert.Equal(t, int64(15000), edited.SellingPrice)
	assert.Equal(t, int64(5000), edited.ProfitAmount)
	assert.Equal(t, int64(12000), edited.Tiers[1].Price)

	// receiver untouched
	assert.Equal(t, int64(13000), f.SellingPrice)
	assert.Equal(t, int64(10400), f.Tiers[1].Price)

	// the next markup edit overwrites the manual price
	again, err := edited.SetMarkup(30)
	require.NoError(t, err)
	assert.Equal(t, int64(13000), again.SellingPrice)
}

func TestSetTierDiscount(t *testing.T) {
	f, err := NewForm(ProductGoods, 10000, 30, tiers())
	require.NoError(t, err)

	next, err := f.SetTierDiscount("gold", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(11700), next.Tiers[1].Price)
	assert.Equal(t, int64(10400), f.Tiers[1].Price)

	_, err = f.SetTierDiscount("platinum", 10)
	assert.ErrorIs(t, err, ErrUnknownTier)

	_, err = f.SetTierDiscount("gold", 120)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestProductTypeAndStockCap(t *testing.T) {
	f, err := NewForm(ProductGoods, 1000, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, f.StockCap(7))

	svc, err := f.SetProductType(ProductService)
	require.NoError(t, err)
	assert.Equal(t, ServiceStockCap, svc.StockCap(0))
	assert.Equal(t, int64(1100), svc.SellingPrice)
	assert.False(t, svc.ProductType.TracksStock())

	_, err = f.SetProductType("digital")
	assert.ErrorIs(t, err, ErrInvalidProductType)
}
