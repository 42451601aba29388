// Package markup derives selling prices, profit and tiered prices from a cost
// basis. Form holds the state of a product pricing form; its setters refresh the
// derived fields in one direction only and never back-solve the markup.
package markup

import (
	"errors"
	"fmt"
	"slices"

	"bedagang/backend/internal/money"
)

var (
	ErrInvalidInput       = errors.New("invalid pricing input")
	ErrUnknownTier        = errors.New("price tier not found")
	ErrInvalidProductType = errors.New("invalid product type")
)

type ProductType string

const (
	ProductGoods   ProductType = "goods"
	ProductService ProductType = "service"
)

// ServiceStockCap is the quantity a service line may reach in a cart. Services
// carry no stock of their own.
const ServiceStockCap = 999

func (p ProductType) Valid() bool {
	return p == ProductGoods || p == ProductService
}

// TracksStock reports whether sales of this type decrement inventory.
func (p ProductType) TracksStock() bool {
	return p != ProductService
}

type Profit struct {
	ProfitAmount int64   `json:"profit_amount"`
	ProfitMargin float64 `json:"profit_margin"`
}

type PriceTier struct {
	TierID             string  `json:"tier_id"`
	Name               string  `json:"name"`
	DiscountPercentage float64 `json:"discount_percentage"`
	Price              int64   `json:"price"`
}

type Form struct {
	ProductType      ProductType `json:"product_type"`
	Cost             int64       `json:"cost"`
	MarkupPercentage float64     `json:"markup_percentage"`
	SellingPrice     int64       `json:"selling_price"`
	Profit
	Tiers []PriceTier `json:"tiers"`
}

// DeriveSellingPrice returns cost × (1 + markup/100).
func DeriveSellingPrice(cost int64, markupPct float64) int64 {
	return money.Scale(cost, markupPct)
}

// ComputeProfit returns selling − cost and that amount as a percentage of the
// selling price, or a zero margin when nothing is charged.
func ComputeProfit(cost int64, sellingPrice int64) Profit {
	amount := sellingPrice - cost
	return Profit{
		ProfitAmount: amount,
		ProfitMargin: money.Ratio(amount, sellingPrice),
	}
}

// DeriveDiscountedPrice returns base × (1 − pct/100).
func DeriveDiscountedPrice(basePrice int64, discountPct float64) int64 {
	return money.Scale(basePrice, -discountPct)
}

// NewForm builds a form from cost and markup and derives everything else.
func NewForm(productType ProductType, cost int64, markupPct float64, tiers []PriceTier) (Form, error) {
	if productType == "" {
		productType = ProductGoods
	}
	if !productType.Valid() {
		return Form{}, fmt.Errorf("%w: %q", ErrInvalidProductType, productType)
	}
	if cost < 0 || markupPct < 0 {
		return Form{}, fmt.Errorf("%w: cost %d markup %.2f", ErrInvalidInput, cost, markupPct)
	}
	for _, t := range tiers {
		if !money.ValidPercent(t.DiscountPercentage) {
			return Form{}, fmt.Errorf("%w: tier %s discount %.2f", ErrInvalidInput, t.TierID, t.DiscountPercentage)
		}
	}
	f := Form{
		ProductType:      productType,
		Cost:             cost,
		MarkupPercentage: markupPct,
		Tiers:            slices.Clone(tiers),
	}
	return f.fromMarkup(), nil
}

func (f Form) SetCost(cost int64) (Form, error) {
	if cost < 0 {
		return f, fmt.Errorf("%w: cost %d", ErrInvalidInput, cost)
	}
	next := f.clone()
	next.Cost = cost
	return next.fromMarkup(), nil
}

func (f Form) SetMarkup(markupPct float64) (Form, error) {
	if markupPct < 0 {
		return f, fmt.Errorf("%w: markup %.2f", ErrInvalidInput, markupPct)
	}
	next := f.clone()
	next.MarkupPercentage = markupPct
	return next.fromMarkup(), nil
}

func (f Form) SetProductType(productType ProductType) (Form, error) {
	if !productType.Valid() {
		return f, fmt.Errorf("%w: %q", ErrInvalidProductType, productType)
	}
	next := f.clone()
	next.ProductType = productType
	return next.fromMarkup(), nil
}

// SetSellingPrice overrides the derived selling price. Profit and tier prices
// follow the new price; the markup keeps its last entered value.
func (f Form) SetSellingPrice(price int64) (Form, error) {
	if price < 0 {
		return f, fmt.Errorf("%w: selling price %d", ErrInvalidInput, price)
	}
	next := f.clone()
	next.SellingPrice = price
	next.Profit = ComputeProfit(next.Cost, price)
	next.refreshTiers()
	return next, nil
}

// SetTierDiscount changes one tier's discount and re-derives that tier's price.
func (f Form) SetTierDiscount(tierID string, discountPct float64) (Form, error) {
	if !money.ValidPercent(discountPct) {
		return f, fmt.Errorf("%w: discount %.2f", ErrInvalidInput, discountPct)
	}
	idx := slices.IndexFunc(f.Tiers, func(t PriceTier) bool { return t.TierID == tierID })
	if idx < 0 {
		return f, fmt.Errorf("%w: %s", ErrUnknownTier, tierID)
	}
	next := f.clone()
	next.Tiers[idx].DiscountPercentage = discountPct
	next.Tiers[idx].Price = DeriveDiscountedPrice(next.SellingPrice, discountPct)
	return next, nil
}

// StockCap is the highest cart quantity for a product of this form's type with
// the given on-hand stock.
func (f Form) StockCap(onHand int) int {
	if !f.ProductType.TracksStock() {
		return ServiceStockCap
	}
	return onHand
}

func (f Form) fromMarkup() Form {
	f.SellingPrice = DeriveSellingPrice(f.Cost, f.MarkupPercentage)
	f.Profit = ComputeProfit(f.Cost, f.SellingPrice)
	f.refreshTiers()
	return f
}

func (f *Form) refreshTiers() {
	for i := range f.Tiers {
		f.Tiers[i].Price = DeriveDiscountedPrice(f.SellingPrice, f.Tiers[i].DiscountPercentage)
	}
}

func (f Form) clone() Form {
	f.Tiers = slices.Clone(f.Tiers)
	return f
}
