package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"bedagang/backend/internal/cart"
	"bedagang/backend/internal/domain"
	"bedagang/backend/internal/markup"
	"bedagang/backend/internal/shift"
	"bedagang/backend/internal/store"
	"bedagang/backend/internal/xid"
)

const DefaultStoreID = "main-store"

type Store struct {
	mu                 sync.RWMutex
	products           map[string]domain.Product
	inventory          map[string]map[string]int
	stockAdjustments   []domain.StockAdjustment
	priceHistoryBySKU  map[string][]domain.ProductPriceHistory
	tiersByID          map[string]cart.Tier
	membersByID        map[string]domain.Member
	vouchersByCode     map[string]domain.Voucher
	heldCartsByID      map[string]domain.HeldCart
	transactionsByID   map[string]*domain.Transaction
	transactionsByIdem map[string]*domain.Transaction
	shiftsByID         map[string]shift.Shift
	activeShiftByKey   map[string]string
	auditLogs          []domain.AuditLog
	usersByUsername    map[string]domain.UserAccount
}

// Seed configures the demo data NewSeeded loads. Empty passwords fall back to
// development defaults with a warning.
type Seed struct {
	AdminPassword   string
	CashierPassword string
	Logger          *zerolog.Logger
}

func New() *Store {
	return &Store{
		products:           make(map[string]domain.Product),
		inventory:          map[string]map[string]int{DefaultStoreID: {}},
		stockAdjustments:   make([]domain.StockAdjustment, 0, 32),
		priceHistoryBySKU:  make(map[string][]domain.ProductPriceHistory),
		tiersByID:          make(map[string]cart.Tier),
		membersByID:        make(map[string]domain.Member),
		vouchersByCode:     make(map[string]domain.Voucher),
		heldCartsByID:      make(map[string]domain.HeldCart),
		transactionsByID:   make(map[string]*domain.Transaction),
		transactionsByIdem: make(map[string]*domain.Transaction),
		shiftsByID:         make(map[string]shift.Shift),
		activeShiftByKey:   make(map[string]string),
		auditLogs:          make([]domain.AuditLog, 0, 128),
		usersByUsername:    make(map[string]domain.UserAccount),
	}
}

func NewSeeded(seed Seed) *Store {
	s := New()
	now := time.Now().UTC()

	tiers := []cart.Tier{
		{ID: "silver", Name: "Silver", DiscountPercentage: 5},
		{ID: "gold", Name: "Gold", DiscountPercentage: 10},
		{ID: "platinum", Name: "Platinum", DiscountPercentage: 15},
	}
	for _, t := range tiers {
		s.tiersByID[t.ID] = t
	}

	for _, p := range []struct {
		sku, name, category string
		kind                markup.ProductType
		cost                int64
		markupPct           float64
	}{
		{"SKU-MIE-01", "Mie Goreng Instan", "grocery", markup.ProductGoods, 2800, 25},
		{"SKU-TELUR-01", "Telur 10 Butir", "grocery", markup.ProductGoods, 23000, 15},
		{"SKU-SUSU-01", "Susu UHT 1L", "dairy", markup.ProductGoods, 14500, 30},
		{"SKU-ROTI-01", "Roti Tawar", "bakery", markup.ProductGoods, 13500, 30},
		{"SKU-KOPI-01", "Kopi Sachet", "beverage", markup.ProductGoods, 2000, 30},
		{"SKU-GULA-01", "Gula 1kg", "grocery", markup.ProductGoods, 15500, 12},
		{"SKU-TEH-01", "Teh Celup", "beverage", markup.ProductGoods, 7500, 30},
		{"SKU-AIR-01", "Air Mineral 600ml", "beverage", markup.ProductGoods, 3000, 30},
		{"SKU-SABUN-01", "Sabun Mandi", "household", markup.ProductGoods, 5500, 35},
		{"SVC-CUCI-01", "Jasa Cuci Setrika 1kg", "service", markup.ProductService, 4000, 75},
	} {
		form, err := markup.NewForm(p.kind, p.cost, p.markupPct, tierPrices(tiers))
		if err != nil {
			panic(fmt.Sprintf("seed product %s: %v", p.sku, err))
		}
		product := domain.Product{
			ID:        "prd-" + strings.ToLower(p.sku),
			SKU:       p.sku,
			Name:      p.name,
			Category:  p.category,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		product.ApplyPricing(form)
		s.products[p.sku] = product
		if p.kind.TracksStock() {
			s.inventory[DefaultStoreID][p.sku] = 120
		}
	}

	for _, m := range []domain.Member{
		{ID: "mbr-0001", Name: "Rina Wijaya", Phone: "081200000001", TierID: "gold"},
		{ID: "mbr-0002", Name: "Agus Santoso", Phone: "081200000002", TierID: "silver"},
	} {
		m.CreatedAt = now
		s.membersByID[m.ID] = m
	}

	for _, v := range []domain.Voucher{
		{Code: "DISKON10", Kind: cart.VoucherPercentage, Value: 10, MinimumPurchase: 50000},
		{Code: "HEMAT5K", Kind: cart.VoucherFixedAmount, Value: 5000, MinimumPurchase: 30000},
	} {
		v.Active = true
		v.CreatedAt = now
		s.vouchersByCode[v.Code] = v
	}

	s.usersByUsername = seedUsers(seed)
	return s
}

func tierPrices(tiers []cart.Tier) []markup.PriceTier {
	out := make([]markup.PriceTier, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, markup.PriceTier{TierID: t.ID, Name: t.Name, DiscountPercentage: t.DiscountPercentage})
	}
	return out
}

// seedUsers builds the dev/demo accounts. The memory store is never used when
// DATABASE_URL is set.
func seedUsers(seed Seed) map[string]domain.UserAccount {
	adminPwd := cmp.Or(seed.AdminPassword, "admin123")
	cashierPwd := cmp.Or(seed.CashierPassword, "cashier123")
	if (seed.AdminPassword == "" || seed.CashierPassword == "") && seed.Logger != nil {
		seed.Logger.Warn().Msg("memory store using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			panic(fmt.Sprintf("hash seed password for %s: %v", u.username, err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func (s *Store) ListProducts(_ context.Context, storeID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		p = cloneProduct(p)
		p.Stock = s.inventory[storeID][p.SKU]
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmp.Compare(a.Name, b.Name)
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, storeID string, product domain.Product, initialStock int) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || initialStock < 0 || !product.ProductType.Valid() {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.SKU]; exists {
		return nil, fmt.Errorf("%w: sku %s", store.ErrAlreadyExists, product.SKU)
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.Active = true
	product.Stock = 0
	s.products[product.SKU] = cloneProduct(product)

	if product.ProductType.TracksStock() {
		stock := s.storeStock(storeID)
		stock[product.SKU] = initialStock
		product.Stock = initialStock
	}
	return &product, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[sku]
	if !exists {
		return nil, store.ErrNotFound
	}
	out := cloneProduct(product)
	return &out, nil
}

func (s *Store) GetProductsBySKUs(_ context.Context, skus []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(skus))
	for _, sku := range skus {
		if p, ok := s.products[sku]; ok && p.Active {
			result[sku] = cloneProduct(p)
		}
	}
	return result, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || !product.ProductType.Valid() {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.SKU]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.ID = existing.ID
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	product.Stock = 0
	s.products[product.SKU] = cloneProduct(product)
	return &product, nil
}

func (s *Store) CreatePriceHistory(_ context.Context, entry domain.ProductPriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	s.priceHistoryBySKU[entry.SKU] = append(s.priceHistoryBySKU[entry.SKU], entry)
	return nil
}

func (s *Store) ListPriceHistory(_ context.Context, sku string, limit int) ([]domain.ProductPriceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Clone(s.priceHistoryBySKU[sku])
	if result == nil {
		return []domain.ProductPriceHistory{}, nil
	}
	slices.SortFunc(result, func(a, b domain.ProductPriceHistory) int {
		return newestFirst(a.ChangedAt, b.ChangedAt, a.ID, b.ID)
	})
	return truncate(result, limit), nil
}

func (s *Store) GetStockMap(_ context.Context, storeID string, skus []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stockMap := make(map[string]int, len(skus))
	storeStock := s.inventory[storeID]
	for _, sku := range skus {
		stockMap[sku] = storeStock[sku]
	}
	return stockMap, nil
}

func (s *Store) AdjustStock(_ context.Context, adj domain.StockAdjustment) (*domain.StockAdjustment, error) {
	if adj.SKU == "" || adj.StoreID == "" || adj.Delta == 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[adj.SKU]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !product.ProductType.TracksStock() {
		return nil, fmt.Errorf("%w: %s does not track stock", store.ErrInvalidTransaction, adj.SKU)
	}
	stock := s.storeStock(adj.StoreID)
	next := stock[adj.SKU] + adj.Delta
	if next < 0 {
		return nil, fmt.Errorf("%w: %s has %d", store.ErrInsufficientStock, adj.SKU, stock[adj.SKU])
	}
	stock[adj.SKU] = next

	if adj.ID == "" {
		adj.ID = xid.New("adj")
	}
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = time.Now().UTC()
	}
	adj.ResultingQty = next
	s.stockAdjustments = append(s.stockAdjustments, adj)
	return &adj, nil
}

func (s *Store) CreateTier(_ context.Context, tier cart.Tier) (*cart.Tier, error) {
	if strings.TrimSpace(tier.ID) == "" || strings.TrimSpace(tier.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tiersByID[tier.ID]; exists {
		return nil, fmt.Errorf("%w: tier %s", store.ErrAlreadyExists, tier.ID)
	}
	s.tiersByID[tier.ID] = tier
	return &tier, nil
}

func (s *Store) ListTiers(_ context.Context) ([]cart.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tiers := make([]cart.Tier, 0, len(s.tiersByID))
	for _, t := range s.tiersByID {
		tiers = append(tiers, t)
	}
	slices.SortFunc(tiers, func(a, b cart.Tier) int {
		return cmp.Or(cmp.Compare(a.DiscountPercentage, b.DiscountPercentage), cmp.Compare(a.ID, b.ID))
	})
	return tiers, nil
}

func (s *Store) GetTier(_ context.Context, id string) (*cart.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tier, ok := s.tiersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &tier, nil
}

func (s *Store) CreateMember(_ context.Context, member domain.Member) (*domain.Member, error) {
	if strings.TrimSpace(member.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tiersByID[member.TierID]; !ok {
		return nil, fmt.Errorf("%w: tier %s", store.ErrNotFound, member.TierID)
	}
	if member.ID == "" {
		member.ID = xid.New("mbr")
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}
	s.membersByID[member.ID] = member
	return &member, nil
}

func (s *Store) ListMembers(_ context.Context, limit int) ([]domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]domain.Member, 0, len(s.membersByID))
	for _, m := range s.membersByID {
		members = append(members, m)
	}
	slices.SortFunc(members, func(a, b domain.Member) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return truncate(members, limit), nil
}

func (s *Store) GetMember(_ context.Context, id string) (*domain.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	member, ok := s.membersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &member, nil
}

func (s *Store) CreateVoucher(_ context.Context, voucher domain.Voucher) (*domain.Voucher, error) {
	voucher.Code = strings.ToUpper(strings.TrimSpace(voucher.Code))
	if voucher.Code == "" {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vouchersByCode[voucher.Code]; exists {
		return nil, fmt.Errorf("%w: voucher %s", store.ErrAlreadyExists, voucher.Code)
	}
	if voucher.CreatedAt.IsZero() {
		voucher.CreatedAt = time.Now().UTC()
	}
	s.vouchersByCode[voucher.Code] = voucher
	return &voucher, nil
}

func (s *Store) ListVouchers(_ context.Context) ([]domain.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vouchers := make([]domain.Voucher, 0, len(s.vouchersByCode))
	for _, v := range s.vouchersByCode {
		vouchers = append(vouchers, v)
	}
	slices.SortFunc(vouchers, func(a, b domain.Voucher) int {
		return cmp.Compare(a.Code, b.Code)
	})
	return vouchers, nil
}

func (s *Store) GetVoucher(_ context.Context, code string) (*domain.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	voucher, ok := s.vouchersByCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &voucher, nil
}

func (s *Store) CreateHeldCart(_ context.Context, held domain.HeldCart) (*domain.HeldCart, error) {
	if held.StoreID == "" || held.TerminalID == "" || held.Cart.IsEmpty() {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if held.ID == "" {
		held.ID = xid.New("hold")
	}
	if held.HeldAt.IsZero() {
		held.HeldAt = time.Now().UTC()
	}
	s.heldCartsByID[held.ID] = cloneHeldCart(held)
	saved := cloneHeldCart(held)
	return &saved, nil
}

func (s *Store) ListHeldCarts(_ context.Context, storeID string, terminalID string, limit int) ([]domain.HeldCart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.HeldCart, 0, len(s.heldCartsByID))
	for _, held := range s.heldCartsByID {
		if storeID != "" && held.StoreID != storeID {
			continue
		}
		if terminalID != "" && held.TerminalID != terminalID {
			continue
		}
		result = append(result, cloneHeldCart(held))
	}
	slices.SortFunc(result, func(a, b domain.HeldCart) int {
		return newestFirst(a.HeldAt, b.HeldAt, a.ID, b.ID)
	})
	return truncate(result, limit), nil
}

func (s *Store) PopHeldCart(_ context.Context, holdID string) (*domain.HeldCart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, exists := s.heldCartsByID[holdID]
	if !exists {
		return nil, store.ErrNotFound
	}
	delete(s.heldCartsByID, holdID)
	return &held, nil
}

func (s *Store) DeleteHeldCart(_ context.Context, holdID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.heldCartsByID[holdID]; !exists {
		return store.ErrNotFound
	}
	delete(s.heldCartsByID, holdID)
	return nil
}

func (s *Store) FindTransactionByIdempotency(_ context.Context, key string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) CreateCheckout(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.IdempotencyKey == "" || len(tx.Items) == 0 || tx.ShiftID == "" {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.transactionsByIdem[tx.IdempotencyKey]; ok {
		return cloneTransaction(existing), nil
	}

	current, ok := s.shiftsByID[tx.ShiftID]
	if !ok || current.StoreID != tx.StoreID || current.TerminalID != tx.TerminalID {
		return nil, fmt.Errorf("%w: shift %s", store.ErrNotFound, tx.ShiftID)
	}
	updatedShift, err := current.RecordSale(tx.Tender, tx.Total)
	if err != nil {
		return nil, err
	}

	stock := s.storeStock(tx.StoreID)
	for _, item := range tx.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidTransaction
		}
		if _, exists := s.products[item.SKU]; !exists {
			return nil, fmt.Errorf("%w: sku %s", store.ErrNotFound, item.SKU)
		}
		if item.TracksStock && stock[item.SKU] < item.Qty {
			return nil, fmt.Errorf("%w: %s has %d", store.ErrInsufficientStock, item.SKU, stock[item.SKU])
		}
	}

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if tx.Status == "" {
		tx.Status = domain.TxStatusPaid
	}

	for _, item := range tx.Items {
		if item.TracksStock {
			stock[item.SKU] -= item.Qty
		}
	}
	s.shiftsByID[updatedShift.ID] = updatedShift

	saved := cloneTransaction(&tx)
	s.transactionsByID[tx.ID] = saved
	s.transactionsByIdem[tx.IdempotencyKey] = saved
	return cloneTransaction(saved), nil
}

func (s *Store) NextShiftNumber(_ context.Context, storeID string, terminalID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	highest := 0
	for _, sh := range s.shiftsByID {
		if sh.StoreID == storeID && sh.TerminalID == terminalID {
			highest = max(highest, sh.Number)
		}
	}
	return highest + 1, nil
}

func (s *Store) CreateShift(_ context.Context, sh shift.Shift) (*shift.Shift, error) {
	if strings.TrimSpace(sh.ID) == "" || !sh.IsActive() {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := shiftMapKey(sh.StoreID, sh.TerminalID)
	if _, exists := s.activeShiftByKey[key]; exists {
		return nil, store.ErrShiftAlreadyOpen
	}
	if _, exists := s.shiftsByID[sh.ID]; exists {
		return nil, fmt.Errorf("%w: shift %s", store.ErrAlreadyExists, sh.ID)
	}
	s.shiftsByID[sh.ID] = sh
	s.activeShiftByKey[key] = sh.ID
	return &sh, nil
}

func (s *Store) GetActiveShift(_ context.Context, storeID string, terminalID string) (*shift.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shiftID, exists := s.activeShiftByKey[shiftMapKey(storeID, terminalID)]
	if !exists {
		return nil, store.ErrNotFound
	}
	sh, exists := s.shiftsByID[shiftID]
	if !exists || !sh.IsActive() {
		return nil, store.ErrNotFound
	}
	return &sh, nil
}

func (s *Store) GetShift(_ context.Context, id string) (*shift.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sh, ok := s.shiftsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sh, nil
}

func (s *Store) ListShifts(_ context.Context, storeID string, terminalID string, limit int) ([]shift.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]shift.Shift, 0, 32)
	for _, sh := range s.shiftsByID {
		if storeID != "" && sh.StoreID != storeID {
			continue
		}
		if terminalID != "" && sh.TerminalID != terminalID {
			continue
		}
		result = append(result, sh)
	}
	slices.SortFunc(result, func(a, b shift.Shift) int {
		return newestFirst(a.StartTime, b.StartTime, a.ID, b.ID)
	})
	return truncate(result, limit), nil
}

func (s *Store) SaveShiftTransition(_ context.Context, sh shift.Shift) (*shift.Shift, error) {
	if sh.IsActive() {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.shiftsByID[sh.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !stored.IsActive() || stored.TotalTransactions != sh.TotalTransactions {
		return nil, fmt.Errorf("%w: shift %s", store.ErrConflict, sh.ID)
	}
	s.shiftsByID[sh.ID] = sh
	delete(s.activeShiftByKey, shiftMapKey(sh.StoreID, sh.TerminalID))
	return &sh, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return truncate(result, limit), nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("%w: user %s", store.ErrAlreadyExists, username)
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	return s.updateUser(username, password, func(u *domain.UserAccount) { u.Password = password })
}

func (s *Store) UpdateUserPIN(_ context.Context, username string, pinHash string) error {
	return s.updateUser(username, pinHash, func(u *domain.UserAccount) { u.PINHash = pinHash })
}

func (s *Store) updateUser(username string, value string, apply func(*domain.UserAccount)) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(value) == "" {
		return store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	apply(&user)
	s.usersByUsername[username] = user
	return nil
}

// storeStock returns the stock map for storeID, creating it. Callers hold mu.
func (s *Store) storeStock(storeID string) map[string]int {
	stock, ok := s.inventory[storeID]
	if !ok {
		stock = make(map[string]int)
		s.inventory[storeID] = stock
	}
	return stock
}

func shiftMapKey(storeID string, terminalID string) string {
	return storeID + "::" + terminalID
}

func newestFirst(a, b time.Time, aID, bID string) int {
	if c := b.Compare(a); c != 0 {
		return c
	}
	return cmp.Compare(bID, aID)
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	dup.Tiers = slices.Clone(src.Tiers)
	return dup
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Items = slices.Clone(src.Items)
	return &dup
}

func cloneHeldCart(src domain.HeldCart) domain.HeldCart {
	dup := src
	dup.Cart = src.Cart.WithMember(src.Cart.Member).WithVoucher(src.Cart.Voucher)
	return dup
}
