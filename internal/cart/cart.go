// Package cart prices a point-of-sale cart. A Cart is a plain serializable value;
// every mutation returns a new Cart and leaves the receiver untouched, so callers
// only apply a result once they decide to commit it.
package cart

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"bedagang/backend/internal/money"
)

var (
	ErrInsufficientStock  = errors.New("quantity exceeds available stock")
	ErrQuantityOutOfRange = errors.New("quantity out of range")
	ErrLineNotFound       = errors.New("cart line not found")
	ErrInvalidCart        = errors.New("invalid cart")
)

type VoucherKind string

const (
	VoucherPercentage  VoucherKind = "percentage"
	VoucherFixedAmount VoucherKind = "fixed_amount"
)

type Line struct {
	ID             string `json:"id"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	UnitPrice      int64  `json:"unit_price"`
	Quantity       int    `json:"quantity"`
	StockAvailable int    `json:"stock_available"`
}

// Tier is a membership tier. Only the customer's own tier applies to a cart.
type Tier struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	DiscountPercentage float64 `json:"discount_percentage"`
}

type Voucher struct {
	Code            string      `json:"code"`
	Kind            VoucherKind `json:"kind"`
	Value           float64     `json:"value"`
	MinimumPurchase int64       `json:"minimum_purchase"`
}

type Cart struct {
	Lines   []Line   `json:"lines"`
	Member  *Tier    `json:"member,omitempty"`
	Voucher *Voucher `json:"voucher,omitempty"`
}

// ProductRef is what AddLine needs to know about a catalog product.
type ProductRef struct {
	ID             string
	SKU            string
	Name           string
	UnitPrice      int64
	StockAvailable int
}

type Totals struct {
	Subtotal        int64 `json:"subtotal"`
	MemberDiscount  int64 `json:"member_discount"`
	VoucherDiscount int64 `json:"voucher_discount"`
	VoucherApplied  bool  `json:"voucher_applied"`
	Discount        int64 `json:"discount"`
	Total           int64 `json:"total"`
}

// ComputeTotals derives subtotal, discount and total. Member and voucher
// discounts are both taken off the same pre-discount subtotal and added together,
// so two 20% reductions give 40% off. Voucher eligibility is judged against that
// same subtotal. The total never drops below zero.
func ComputeTotals(c Cart) Totals {
	var t Totals
	for _, line := range c.Lines {
		t.Subtotal += line.UnitPrice * int64(line.Quantity)
	}

	if c.Member != nil {
		t.MemberDiscount = money.PercentOf(t.Subtotal, c.Member.DiscountPercentage)
	}

	if v := c.Voucher; v != nil && t.Subtotal >= v.MinimumPurchase {
		t.VoucherApplied = true
		switch v.Kind {
		case VoucherPercentage:
			t.VoucherDiscount = money.PercentOf(t.Subtotal, v.Value)
		default:
			t.VoucherDiscount = money.FromFloat(v.Value)
		}
	}

	t.Discount = t.MemberDiscount + t.VoucherDiscount
	t.Total = max(0, t.Subtotal-t.Discount)
	return t
}

// Totals is a shorthand for ComputeTotals(c).
func (c Cart) Totals() Totals {
	return ComputeTotals(c)
}

// AddLine increments the line for ref by one, or appends it at quantity 1.
// The line's price and stock are refreshed from ref. If the new quantity would
// exceed the stock the cart is returned unchanged with ErrInsufficientStock.
func (c Cart) AddLine(ref ProductRef) (Cart, error) {
	if strings.TrimSpace(ref.ID) == "" || ref.UnitPrice < 0 {
		return c, ErrInvalidCart
	}

	idx := c.indexOf(ref.ID)
	qty := 1
	if idx >= 0 {
		qty = c.Lines[idx].Quantity + 1
	}
	if qty > ref.StockAvailable {
		return c, fmt.Errorf("%w: %s has %d available", ErrInsufficientStock, ref.SKU, ref.StockAvailable)
	}

	next := c.clone()
	line := Line{
		ID:             ref.ID,
		SKU:            ref.SKU,
		Name:           ref.Name,
		UnitPrice:      ref.UnitPrice,
		Quantity:       qty,
		StockAvailable: ref.StockAvailable,
	}
	if idx >= 0 {
		next.Lines[idx] = line
	} else {
		next.Lines = append(next.Lines, line)
	}
	return next, nil
}

// ChangeQuantity moves a line's quantity by delta. The result must stay within
// [1, StockAvailable]; otherwise nothing changes. Use RemoveLine to drop a line.
func (c Cart) ChangeQuantity(lineID string, delta int) (Cart, error) {
	idx := c.indexOf(lineID)
	if idx < 0 {
		return c, ErrLineNotFound
	}
	qty := c.Lines[idx].Quantity + delta
	if qty < 1 || qty > c.Lines[idx].StockAvailable {
		return c, ErrQuantityOutOfRange
	}

	next := c.clone()
	next.Lines[idx].Quantity = qty
	return next, nil
}

func (c Cart) RemoveLine(lineID string) (Cart, error) {
	idx := c.indexOf(lineID)
	if idx < 0 {
		return c, ErrLineNotFound
	}
	next := c.clone()
	next.Lines = slices.Delete(next.Lines, idx, idx+1)
	return next, nil
}

// Clear empties the cart, dropping member and voucher as well.
func (c Cart) Clear() Cart {
	return Cart{Lines: []Line{}}
}

func (c Cart) WithMember(tier *Tier) Cart {
	next := c.clone()
	if tier != nil {
		t := *tier
		next.Member = &t
	} else {
		next.Member = nil
	}
	return next
}

func (c Cart) WithVoucher(v *Voucher) Cart {
	next := c.clone()
	if v != nil {
		vc := *v
		next.Voucher = &vc
	} else {
		next.Voucher = nil
	}
	return next
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// ItemCount is the sum of line quantities.
func (c Cart) ItemCount() int {
	n := 0
	for _, line := range c.Lines {
		n += line.Quantity
	}
	return n
}

// Validate checks a cart received from outside the engine.
func (c Cart) Validate() error {
	seen := make(map[string]struct{}, len(c.Lines))
	for _, line := range c.Lines {
		if strings.TrimSpace(line.ID) == "" {
			return fmt.Errorf("%w: line without id", ErrInvalidCart)
		}
		if _, dup := seen[line.ID]; dup {
			return fmt.Errorf("%w: duplicate line %s", ErrInvalidCart, line.ID)
		}
		seen[line.ID] = struct{}{}
		if line.UnitPrice < 0 {
			return fmt.Errorf("%w: negative price on %s", ErrInvalidCart, line.ID)
		}
		if line.Quantity < 1 || line.Quantity > line.StockAvailable {
			return fmt.Errorf("%w: line %s quantity %d (stock %d)", ErrQuantityOutOfRange, line.ID, line.Quantity, line.StockAvailable)
		}
	}
	if c.Member != nil && !money.ValidPercent(c.Member.DiscountPercentage) {
		return fmt.Errorf("%w: member discount %.2f", ErrInvalidCart, c.Member.DiscountPercentage)
	}
	if c.Voucher != nil {
		return c.Voucher.Validate()
	}
	return nil
}

func (v Voucher) Validate() error {
	if v.Kind != VoucherPercentage && v.Kind != VoucherFixedAmount {
		return fmt.Errorf("%w: voucher kind %q", ErrInvalidCart, v.Kind)
	}
	if v.Value < 0 || v.MinimumPurchase < 0 || (v.Kind == VoucherPercentage && v.Value > 100) {
		return fmt.Errorf("%w: voucher %s", ErrInvalidCart, v.Code)
	}
	return nil
}

func (c Cart) indexOf(lineID string) int {
	return slices.IndexFunc(c.Lines, func(l Line) bool { return l.ID == lineID })
}

func (c Cart) clone() Cart {
	next := Cart{Lines: slices.Clone(c.Lines), Member: c.Member, Voucher: c.Voucher}
	if next.Lines == nil {
		next.Lines = []Line{}
	}
	return next
}
