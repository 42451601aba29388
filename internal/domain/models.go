package domain

import (
	"time"

	"bedagang/backend/internal/cart"
	"bedagang/backend/internal/cashdrawer"
	"bedagang/backend/internal/markup"
	"bedagang/backend/internal/shift"
)

type Product struct {
	ID               string             `json:"id"`
	SKU              string             `json:"sku"`
	Name             string             `json:"name"`
	Category         string             `json:"category"`
	ProductType      markup.ProductType `json:"product_type"`
	CostPrice        int64              `json:"cost_price"`
	MarkupPercentage float64            `json:"markup_percentage"`
	SellingPrice     int64              `json:"selling_price"`
	ProfitAmount     int64              `json:"profit_amount"`
	ProfitMargin     float64            `json:"profit_margin"`
	Tiers            []markup.PriceTier `json:"tiers"`
	Active           bool               `json:"active"`
	Stock            int                `json:"stock"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// ApplyPricing copies the derived fields of a pricing form onto the product.
func (p *Product) ApplyPricing(f markup.Form) {
	p.ProductType = f.ProductType
	p.CostPrice = f.Cost
	p.MarkupPercentage = f.MarkupPercentage
	p.SellingPrice = f.SellingPrice
	p.ProfitAmount = f.ProfitAmount
	p.ProfitMargin = f.ProfitMargin
	p.Tiers = f.Tiers
}

// CartRef is what a cart line needs from this product at the given stock.
func (p Product) CartRef(stock int) cart.ProductRef {
	if !p.ProductType.TracksStock() {
		stock = markup.ServiceStockCap
	}
	return cart.ProductRef{
		ID:             p.ID,
		SKU:            p.SKU,
		Name:           p.Name,
		UnitPrice:      p.SellingPrice,
		StockAvailable: stock,
	}
}

type TierDiscount struct {
	TierID             string  `json:"tier_id" validate:"required"`
	DiscountPercentage float64 `json:"discount_percentage" validate:"gte=0,lte=100"`
}

type PricingRequest struct {
	ProductType      markup.ProductType `json:"product_type" validate:"omitempty,oneof=goods service"`
	CostPrice        int64              `json:"cost_price" validate:"gte=0"`
	MarkupPercentage float64            `json:"markup_percentage" validate:"gte=0"`
	SellingPrice     *int64             `json:"selling_price,omitempty" validate:"omitempty,gte=0"`
	TierDiscounts    []TierDiscount     `json:"tier_discounts" validate:"dive"`
}

type ProductCreateRequest struct {
	StoreID      string `json:"store_id"`
	SKU          string `json:"sku" validate:"required,max=64"`
	Name         string `json:"name" validate:"required,max=160"`
	Category     string `json:"category" validate:"required,max=64"`
	InitialStock int    `json:"initial_stock" validate:"gte=0"`
	PricingRequest
}

type ProductPricingUpdate struct {
	ProductType      *markup.ProductType `json:"product_type,omitempty" validate:"omitempty,oneof=goods service"`
	CostPrice        *int64              `json:"cost_price,omitempty" validate:"omitempty,gte=0"`
	MarkupPercentage *float64            `json:"markup_percentage,omitempty" validate:"omitempty,gte=0"`
	SellingPrice     *int64              `json:"selling_price,omitempty" validate:"omitempty,gte=0"`
	TierDiscounts    []TierDiscount      `json:"tier_discounts,omitempty" validate:"dive"`
}

type ProductPriceHistory struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku"`
	OldCost   int64     `json:"old_cost"`
	NewCost   int64     `json:"new_cost"`
	OldPrice  int64     `json:"old_price"`
	NewPrice  int64     `json:"new_price"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}

type StockAdjustmentRequest struct {
	StoreID    string `json:"store_id"`
	SKU        string `json:"sku" validate:"required"`
	Delta      int    `json:"delta" validate:"ne=0"`
	Reason     string `json:"reason" validate:"required,max=200"`
	ManagerPIN string `json:"manager_pin" validate:"required"`
}

type StockAdjustment struct {
	ID           string    `json:"id"`
	StoreID      string    `json:"store_id"`
	SKU          string    `json:"sku"`
	Delta        int       `json:"delta"`
	Reason       string    `json:"reason"`
	ResultingQty int       `json:"resulting_qty"`
	AdjustedBy   string    `json:"adjusted_by"`
	CreatedAt    time.Time `json:"created_at"`
}

type TierCreateRequest struct {
	ID                 string  `json:"id" validate:"required,max=40"`
	Name               string  `json:"name" validate:"required,max=80"`
	DiscountPercentage float64 `json:"discount_percentage" validate:"gte=0,lte=100"`
}

type Member struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	TierID    string    `json:"tier_id"`
	CreatedAt time.Time `json:"created_at"`
}

type MemberCreateRequest struct {
	Name   string `json:"name" validate:"required,max=120"`
	Phone  string `json:"phone" validate:"omitempty,max=32"`
	TierID string `json:"tier_id" validate:"required"`
}

type Voucher struct {
	Code            string           `json:"code"`
	Kind            cart.VoucherKind `json:"kind"`
	Value           float64          `json:"value"`
	MinimumPurchase int64            `json:"minimum_purchase"`
	Active          bool             `json:"active"`
	ValidUntil      *time.Time       `json:"valid_until,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Usable reports whether the voucher can be redeemed at the given time.
func (v Voucher) Usable(at time.Time) bool {
	if !v.Active {
		return false
	}
	return v.ValidUntil == nil || at.Before(*v.ValidUntil)
}

func (v Voucher) Engine() cart.Voucher {
	return cart.Voucher{
		Code:            v.Code,
		Kind:            v.Kind,
		Value:           v.Value,
		MinimumPurchase: v.MinimumPurchase,
	}
}

type VoucherCreateRequest struct {
	Code            string           `json:"code" validate:"required,max=32"`
	Kind            cart.VoucherKind `json:"kind" validate:"required,oneof=percentage fixed_amount"`
	Value           float64          `json:"value" validate:"gt=0"`
	MinimumPurchase int64            `json:"minimum_purchase" validate:"gte=0"`
	ValidUntil      *time.Time       `json:"valid_until,omitempty"`
}

type CartRequest struct {
	Cart cart.Cart `json:"cart"`
}

type CartAddLineRequest struct {
	StoreID string    `json:"store_id"`
	Cart    cart.Cart `json:"cart"`
	SKU     string    `json:"sku" validate:"required"`
}

type CartQuantityRequest struct {
	Cart   cart.Cart `json:"cart"`
	LineID string    `json:"line_id" validate:"required"`
	Delta  int       `json:"delta" validate:"ne=0"`
}

type CartRemoveLineRequest struct {
	Cart   cart.Cart `json:"cart"`
	LineID string    `json:"line_id" validate:"required"`
}

type CartMemberRequest struct {
	Cart     cart.Cart `json:"cart"`
	MemberID *string   `json:"member_id"`
}

type CartVoucherRequest struct {
	Cart cart.Cart `json:"cart"`
	Code *string   `json:"code"`
}

type CartResponse struct {
	Cart   cart.Cart   `json:"cart"`
	Totals cart.Totals `json:"totals"`
}

type HoldCartRequest struct {
	StoreID    string    `json:"store_id"`
	TerminalID string    `json:"terminal_id" validate:"required"`
	Note       string    `json:"note" validate:"max=200"`
	Cart       cart.Cart `json:"cart"`
}

type HeldCart struct {
	ID              string    `json:"id"`
	StoreID         string    `json:"store_id"`
	TerminalID      string    `json:"terminal_id"`
	CashierUsername string    `json:"cashier_username"`
	Note            string    `json:"note"`
	Cart            cart.Cart `json:"cart"`
	HeldAt          time.Time `json:"held_at"`
}

type HoldCartResponse struct {
	HeldCart HeldCart    `json:"held_cart"`
	Totals   cart.Totals `json:"totals"`
}

type HeldCartListResponse struct {
	Items []HeldCart `json:"items"`
}

type CheckoutLine struct {
	SKU string `json:"sku" validate:"required"`
	Qty int    `json:"qty" validate:"gte=1"`
}

type CheckoutRequest struct {
	StoreID          string         `json:"store_id"`
	TerminalID       string         `json:"terminal_id" validate:"required"`
	IdempotencyKey   string         `json:"idempotency_key" validate:"required,max=128"`
	Tender           shift.Tender   `json:"tender" validate:"required,oneof=cash card ewallet"`
	PaymentReference string         `json:"payment_reference,omitempty"`
	CashReceived     int64          `json:"cash_received" validate:"gte=0"`
	Lines            []CheckoutLine `json:"lines" validate:"required,min=1,dive"`
	MemberID         string         `json:"member_id,omitempty"`
	VoucherCode      string         `json:"voucher_code,omitempty"`
}

type CheckoutResponse struct {
	TransactionID   string       `json:"transaction_id"`
	Status          string       `json:"status"`
	Tender          shift.Tender `json:"tender"`
	Subtotal        int64        `json:"subtotal"`
	MemberDiscount  int64        `json:"member_discount"`
	VoucherDiscount int64        `json:"voucher_discount"`
	VoucherCode     string       `json:"voucher_code,omitempty"`
	VoucherApplied  bool         `json:"voucher_applied"`
	Discount        int64        `json:"discount"`
	Total           int64        `json:"total"`
	CashReceived    int64        `json:"cash_received"`
	Change          int64        `json:"change"`
	ItemCount       int          `json:"item_count"`
	ShiftID         string       `json:"shift_id"`
	Duplicate       bool         `json:"duplicate"`
	CreatedAt       string       `json:"created_at"`
}

type CheckoutLookupResponse struct {
	Found    bool              `json:"found"`
	Checkout *CheckoutResponse `json:"checkout,omitempty"`
}

type TransactionLine struct {
	ProductID   string `json:"product_id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Qty         int    `json:"qty"`
	UnitPrice   int64  `json:"unit_price"`
	UnitCost    int64  `json:"unit_cost"`
	TracksStock bool   `json:"tracks_stock"`
}

type Transaction struct {
	ID               string
	StoreID          string
	TerminalID       string
	ShiftID          string
	IdempotencyKey   string
	Cashier          string
	Tender           shift.Tender
	PaymentReference string
	MemberID         string
	VoucherCode      string
	Subtotal         int64
	MemberDiscount   int64
	VoucherDiscount  int64
	VoucherApplied   bool
	Discount         int64
	Total            int64
	CashReceived     int64
	Change           int64
	Status           string
	CreatedAt        time.Time
	Items            []TransactionLine
}

func (t Transaction) ItemCount() int {
	n := 0
	for _, item := range t.Items {
		n += item.Qty
	}
	return n
}

type ShiftOpenRequest struct {
	StoreID      string `json:"store_id"`
	TerminalID   string `json:"terminal_id" validate:"required"`
	OpeningFloat int64  `json:"opening_float" validate:"gte=0"`
}

type ShiftCountRequest struct {
	StoreID    string           `json:"store_id"`
	TerminalID string           `json:"terminal_id" validate:"required"`
	Count      cashdrawer.Count `json:"count"`
	Notes      string           `json:"notes" validate:"max=500"`
}

type ShiftHandoverRequest struct {
	StoreID    string `json:"store_id"`
	TerminalID string `json:"terminal_id" validate:"required"`
	To         string `json:"to" validate:"required"`
	Amount     int64  `json:"amount" validate:"gte=0"`
	PIN        string `json:"pin" validate:"required"`
}

type ShiftResponse struct {
	Shift shift.Shift `json:"shift"`
}

type ShiftReconcileResponse struct {
	ShiftID        string            `json:"shift_id"`
	Reconciliation cashdrawer.Result `json:"reconciliation"`
}

type ShiftCloseResponse struct {
	Shift          shift.Shift       `json:"shift"`
	Reconciliation cashdrawer.Result `json:"reconciliation"`
}

type ShiftListResponse struct {
	Shifts []shift.Shift `json:"shifts"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Password string `json:"password" validate:"required,min=8"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	HasPIN    bool      `json:"has_pin"`
	CreatedAt time.Time `json:"created_at"`
}

type PINSetRequest struct {
	PIN string `json:"pin" validate:"required,numeric,min=6,max=8"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	PINHash   string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	TxStatusPaid = "paid"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)
