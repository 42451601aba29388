package store

import (
	"context"
	"errors"
	"time"

	"bedagang/backend/internal/cart"
	"bedagang/backend/internal/domain"
	"bedagang/backend/internal/shift"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrAlreadyExists      = errors.New("already exists")
	ErrShiftAlreadyOpen   = errors.New("shift already open for terminal")
	// ErrConflict means the stored record moved on since it was read.
	ErrConflict = errors.New("concurrent update")
)

type Repository interface {
	ListProducts(ctx context.Context, storeID string) ([]domain.Product, error)
	CreateProduct(ctx context.Context, storeID string, product domain.Product, initialStock int) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error
	ListPriceHistory(ctx context.Context, sku string, limit int) ([]domain.ProductPriceHistory, error)
	GetStockMap(ctx context.Context, storeID string, skus []string) (map[string]int, error)
	AdjustStock(ctx context.Context, adj domain.StockAdjustment) (*domain.StockAdjustment, error)

	CreateTier(ctx context.Context, tier cart.Tier) (*cart.Tier, error)
	ListTiers(ctx context.Context) ([]cart.Tier, error)
	GetTier(ctx context.Context, id string) (*cart.Tier, error)
	CreateMember(ctx context.Context, member domain.Member) (*domain.Member, error)
	ListMembers(ctx context.Context, limit int) ([]domain.Member, error)
	GetMember(ctx context.Context, id string) (*domain.Member, error)
	CreateVoucher(ctx context.Context, voucher domain.Voucher) (*domain.Voucher, error)
	ListVouchers(ctx context.Context) ([]domain.Voucher, error)
	GetVoucher(ctx context.Context, code string) (*domain.Voucher, error)

	CreateHeldCart(ctx context.Context, held domain.HeldCart) (*domain.HeldCart, error)
	ListHeldCarts(ctx context.Context, storeID string, terminalID string, limit int) ([]domain.HeldCart, error)
	PopHeldCart(ctx context.Context, holdID string) (*domain.HeldCart, error)
	DeleteHeldCart(ctx context.Context, holdID string) error

	FindTransactionByIdempotency(ctx context.Context, key string) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	// CreateCheckout commits a sale in one step: it decrements stock for
	// stock-tracked lines, records the sale on the still-active shift and stores
	// the transaction. A known idempotency key returns the stored transaction
	// untouched.
	CreateCheckout(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)

	NextShiftNumber(ctx context.Context, storeID string, terminalID string) (int, error)
	// CreateShift fails with ErrShiftAlreadyOpen while the terminal has an
	// active shift.
	CreateShift(ctx context.Context, s shift.Shift) (*shift.Shift, error)
	GetActiveShift(ctx context.Context, storeID string, terminalID string) (*shift.Shift, error)
	GetShift(ctx context.Context, id string) (*shift.Shift, error)
	ListShifts(ctx context.Context, storeID string, terminalID string, limit int) ([]shift.Shift, error)
	// SaveShiftTransition stores a closed or handed-over shift. It fails with
	// ErrConflict unless the stored shift is still active with the same
	// transaction count the caller read.
	SaveShiftTransition(ctx context.Context, s shift.Shift) (*shift.Shift, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
	UpdateUserPIN(ctx context.Context, username string, pinHash string) error
}
