package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bedagang/backend/internal/cart"
	"bedagang/backend/internal/cashdrawer"
	"bedagang/backend/internal/domain"
	"bedagang/backend/internal/shift"
	"bedagang/backend/internal/store"
)

var _ store.Repository = (*Store)(nil)

func openShift(t *testing.T, s *Store, terminal string) shift.Shift {
	t.Helper()
	ctx := context.Background()
	n, err := s.NextShiftNumber(ctx, DefaultStoreID, terminal)
	require.NoError(t, err)
	sh, err := shift.Open(shift.OpenParams{
		ID: "shift-" + terminal, StoreID: DefaultStoreID, TerminalID: terminal,
		Operator: "cashier", OpeningFloat: 100000, Number: n,
	}, time.Now())
	require.NoError(t, err)
	created, err := s.CreateShift(ctx, sh)
	require.NoError(t, err)
	return *created
}

func saleTx(sh shift.Shift, key string, qty int) domain.Transaction {
	return domain.Transaction{
		StoreID:        sh.StoreID,
		TerminalID:     sh.TerminalID,
		ShiftID:        sh.ID,
		IdempotencyKey: key,
		Tender:         shift.TenderCash,
		Total:          int64(qty) * 2600,
		Items:          []domain.TransactionLine{{SKU: "SKU-KOPI-01", Qty: qty, UnitPrice: 2600, TracksStock: true}},
	}
}

func TestSeededCatalog(t *testing.T) {
	s := NewSeeded(Seed{AdminPassword: "x", CashierPassword: "y"})
	ctx := context.Background()

	products, err := s.ListProducts(ctx, DefaultStoreID)
	require.NoError(t, err)
	require.NotEmpty(t, products)

	kopi, err := s.GetProductBySKU(ctx, "SKU-KOPI-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2600), kopi.SellingPrice)
	assert.Len(t, kopi.Tiers, 3)

	v, err := s.GetVoucher(ctx, "diskon10")
	require.NoError(t, err)
	assert.Equal(t, int64(50000), v.MinimumPurchase)
}

func TestOneActiveShiftPerTerminal(t *testing.T) {
	s := NewSeeded(Seed{})
	ctx := context.Background()
	first := openShift(t, s, "T1")
	assert.Equal(t, 1, first.Number)

	dup, err := shift.Open(shift.OpenParams{ID: "other", StoreID: DefaultStoreID, TerminalID: "T1", Operator: "x", Number: 2}, time.Now())
	require.NoError(t, err)
	_, err = s.CreateShift(ctx, dup)
	assert.ErrorIs(t, err, store.ErrShiftAlreadyOpen)

	openShift(t, s, "T2")
}

func TestCreateCheckoutIsAtomicAndIdempotent(t *testing.T) {
	s := NewSeeded(Seed{})
	ctx := context.Background()
	sh := openShift(t, s, "T1")

	tx, err := s.CreateCheckout(ctx, saleTx(sh, "k1", 2))
	require.NoError(t, err)
	assert.NotEmpty(t, tx.ID)

	again, err := s.CreateCheckout(ctx, saleTx(sh, "k1", 2))
	require.NoError(t, err)
	assert.Equal(t, tx.ID, again.ID)

	stock, err := s.GetStockMap(ctx, DefaultStoreID, []string{"SKU-KOPI-01"})
	require.NoError(t, err)
	assert.Equal(t, 118, stock["SKU-KOPI-01"])

	active, err := s.GetActiveShift(ctx, DefaultStoreID, "T1")
	require.NoError(t, err)
	assert.Equal(t, 1, active.TotalTransactions)
	assert.Equal(t, int64(5200), active.CashSales)

	_, err = s.CreateCheckout(ctx, saleTx(sh, "k2", 500))
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	stock, _ = s.GetStockMap(ctx, DefaultStoreID, []string{"SKU-KOPI-01"})
	assert.Equal(t, 118, stock["SKU-KOPI-01"])
	active, _ = s.GetActiveShift(ctx, DefaultStoreID, "T1")
	assert.Equal(t, 1, active.TotalTransactions, "failed checkout leaves shift untouched")
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	s := NewSeeded(Seed{})
	ctx := context.Background()
	sh := openShift(t, s, "T1")

	var wg sync.WaitGroup
	results := make(chan error, 30)
	for i := range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateCheckout(ctx, saleTx(sh, fmt.Sprintf("k-%d", i), 5))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, store.ErrInsufficientStock)
		}
	}
	assert.Equal(t, 24, ok)

	stock, _ := s.GetStockMap(ctx, DefaultStoreID, []string{"SKU-KOPI-01"})
	assert.Equal(t, 0, stock["SKU-KOPI-01"])
	active, _ := s.GetActiveShift(ctx, DefaultStoreID, "T1")
	assert.Equal(t, 24, active.TotalTransactions)
}

func TestSaveShiftTransitionGuards(t *testing.T) {
	s := NewSeeded(Seed{})
	ctx := context.Background()
	sh := openShift(t, s, "T1")

	stale := sh
	_, err := s.CreateCheckout(ctx, saleTx(sh, "k1", 1))
	require.NoError(t, err)

	closedStale, _, err := stale.Close(cashdrawer.Count{}, "", time.Now())
	require.NoError(t, err)
	_, err = s.SaveShiftTransition(ctx, closedStale)
	assert.ErrorIs(t, err, store.ErrConflict)

	fresh, err := s.GetActiveShift(ctx, DefaultStoreID, "T1")
	require.NoError(t, err)
	closed, _, err := fresh.Close(cashdrawer.CountFor(fresh.ExpectedCash()), "", time.Now())
	require.NoError(t, err)
	saved, err := s.SaveShiftTransition(ctx, closed)
	require.NoError(t, err)
	assert.Equal(t, shift.StatusClosed, saved.Status)

	_, err = s.GetActiveShift(ctx, DefaultStoreID, "T1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.SaveShiftTransition(ctx, closed)
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.CreateCheckout(ctx, saleTx(sh, "k2", 1))
	assert.ErrorIs(t, err, shift.ErrNotActive)

	next, err := s.NextShiftNumber(ctx, DefaultStoreID, "T1")
	require.NoError(t, err)
	assert.Equal(t, 2, next)
}

func TestAdjustStock(t *testing.T) {
	s := NewSeeded(Seed{})
	ctx := context.Background()

	adj, err := s.AdjustStock(ctx, domain.StockAdjustment{StoreID: DefaultStoreID, SKU: "SKU-GULA-01", Delta: -20, Reason: "rusak"})
	require.NoError(t, err)
	assert.Equal(t, 100, adj.ResultingQty)

	_, err = s.AdjustStock(ctx, domain.StockAdjustment{StoreID: DefaultStoreID, SKU: "SKU-GULA-01", Delta: -101, Reason: "x"})
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	_, err = s.AdjustStock(ctx, domain.StockAdjustment{StoreID: DefaultStoreID, SKU: "SVC-CUCI-01", Delta: 1, Reason: "x"})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestHeldCartPopRemoves(t *testing.T) {
	s := NewSeeded(Seed{})
	ctx := context.Background()
	held, err := s.CreateHeldCart(ctx, domain.HeldCart{
		StoreID: DefaultStoreID, TerminalID: "T1",
		Cart: saleCart(),
	})
	require.NoError(t, err)

	list, err := s.ListHeldCarts(ctx, DefaultStoreID, "T1", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	popped, err := s.PopHeldCart(ctx, held.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, popped.Cart.ItemCount())

	_, err = s.PopHeldCart(ctx, held.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func saleCart() cart.Cart {
	return cart.Cart{Lines: []cart.Line{
		{ID: "prd-sku-kopi-01", SKU: "SKU-KOPI-01", Name: "Kopi Sachet", UnitPrice: 2600, Quantity: 2, StockAvailable: 120},
	}}
}
