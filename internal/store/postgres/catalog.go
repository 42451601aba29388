package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bedagang/backend/internal/cart"
	"bedagang/backend/internal/domain"
	"bedagang/backend/internal/store"
	"bedagang/backend/internal/xid"
)

const productColumns = `
	p.id, p.sku, p.name, p.category, p.product_type, p.cost_price, p.markup_percentage,
	p.selling_price, p.profit_amount, p.profit_margin, p.tiers, p.active, p.created_at, p.updated_at`

func scanProduct(row rowScanner, extra ...any) (domain.Product, error) {
	var p domain.Product
	var tiersRaw []byte
	dest := []any{
		&p.ID, &p.SKU, &p.Name, &p.Category, &p.ProductType, &p.CostPrice, &p.MarkupPercentage,
		&p.SellingPrice, &p.ProfitAmount, &p.ProfitMargin, &tiersRaw, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.Product{}, err
	}
	if len(tiersRaw) > 0 {
		if err := json.Unmarshal(tiersRaw, &p.Tiers); err != nil {
			return domain.Product{}, fmt.Errorf("decode tiers for %s: %w", p.SKU, err)
		}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`, COALESCE(i.qty, 0)
		FROM products p
		LEFT JOIN inventory_stocks i ON i.sku = p.sku AND i.store_id = $1
		WHERE p.active = true
		ORDER BY p.category, p.name
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var stock int
		p, err := scanProduct(rows, &stock)
		if err != nil {
			return nil, err
		}
		p.Stock = stock
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, storeID string, product domain.Product, initialStock int) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || initialStock < 0 || !product.ProductType.Valid() {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	tiersJSON, err := json.Marshal(product.Tiers)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO products (
			id, sku, name, category, product_type, cost_price, markup_percentage,
			selling_price, profit_amount, profit_margin, tiers, active, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,true,now(),now())
		RETURNING created_at, updated_at
	`, product.ID, product.SKU, product.Name, product.Category, product.ProductType, product.CostPrice,
		product.MarkupPercentage, product.SellingPrice, product.ProfitAmount, product.ProfitMargin, tiersJSON,
	).Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku %s", store.ErrAlreadyExists, product.SKU)
		}
		return nil, err
	}

	product.Active = true
	product.Stock = 0
	if product.ProductType.TracksStock() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_stocks (store_id, sku, qty, updated_at)
			VALUES ($1,$2,$3,now())
		`, storeID, product.SKU, initialStock); err != nil {
			return nil, err
		}
		product.Stock = initialStock
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()
	return &product, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		WHERE p.sku = $1
	`, sku))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(skus))
	if len(skus) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		WHERE p.active = true AND p.sku = ANY($1)
	`, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.SKU] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || !product.ProductType.Valid() {
		return nil, store.ErrInvalidTransaction
	}
	tiersJSON, err := json.Marshal(product.Tiers)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, product_type = $4, cost_price = $5, markup_percentage = $6,
			selling_price = $7, profit_amount = $8, profit_margin = $9, tiers = $10, active = $11,
			updated_at = now()
		WHERE sku = $1
		RETURNING id, created_at, updated_at
	`, product.SKU, product.Name, product.Category, product.ProductType, product.CostPrice,
		product.MarkupPercentage, product.SellingPrice, product.ProfitAmount, product.ProfitMargin,
		tiersJSON, product.Active,
	).Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product.Stock = 0
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()
	return &product, nil
}

func (s *Store) CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error {
	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_price_history (id, sku, old_cost, new_cost, old_price, new_price, changed_by, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.SKU, entry.OldCost, entry.NewCost, entry.OldPrice, entry.NewPrice, entry.ChangedBy, entry.ChangedAt)
	return err
}

func (s *Store) ListPriceHistory(ctx context.Context, sku string, limit int) ([]domain.ProductPriceHistory, error) {
	limit = limitOr(limit, 100)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, old_cost, new_cost, old_price, new_price, changed_by, changed_at
		FROM product_price_history
		WHERE sku = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2
	`, sku, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.ProductPriceHistory, 0, limit)
	for rows.Next() {
		var h domain.ProductPriceHistory
		if err := rows.Scan(&h.ID, &h.SKU, &h.OldCost, &h.NewCost, &h.OldPrice, &h.NewPrice, &h.ChangedBy, &h.ChangedAt); err != nil {
			return nil, err
		}
		h.ChangedAt = h.ChangedAt.UTC()
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) GetStockMap(ctx context.Context, storeID string, skus []string) (map[string]int, error) {
	stockMap := make(map[string]int, len(skus))
	if len(skus) == 0 {
		return stockMap, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, qty
		FROM inventory_stocks
		WHERE store_id = $1 AND sku = ANY($2)
	`, storeID, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var sku string
		var qty int
		if err := rows.Scan(&sku, &qty); err != nil {
			return nil, err
		}
		stockMap[sku] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, sku := range skus {
		if _, ok := stockMap[sku]; !ok {
			stockMap[sku] = 0
		}
	}
	return stockMap, nil
}

func (s *Store) AdjustStock(ctx context.Context, adj domain.StockAdjustment) (*domain.StockAdjustment, error) {
	if adj.SKU == "" || adj.StoreID == "" || adj.Delta == 0 {
		return nil, store.ErrInvalidTransaction
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := scanProduct(tx.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		WHERE p.sku = $1
	`, adj.SKU))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if !p.ProductType.TracksStock() {
		return nil, fmt.Errorf("%w: %s does not track stock", store.ErrInvalidTransaction, adj.SKU)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_stocks (store_id, sku, qty, updated_at)
		VALUES ($1,$2,0,now())
		ON CONFLICT (store_id, sku) DO NOTHING
	`, adj.StoreID, adj.SKU); err != nil {
		return nil, err
	}

	var current int
	if err := tx.QueryRowContext(ctx, `
		SELECT qty FROM inventory_stocks
		WHERE store_id = $1 AND sku = $2
		FOR UPDATE
	`, adj.StoreID, adj.SKU).Scan(&current); err != nil {
		return nil, err
	}
	next := current + adj.Delta
	if next < 0 {
		return nil, fmt.Errorf("%w: %s has %d", store.ErrInsufficientStock, adj.SKU, current)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE inventory_stocks SET qty = $3, updated_at = now()
		WHERE store_id = $1 AND sku = $2
	`, adj.StoreID, adj.SKU, next); err != nil {
		return nil, err
	}

	if adj.ID == "" {
		adj.ID = xid.New("adj")
	}
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = time.Now().UTC()
	}
	adj.ResultingQty = next
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stock_adjustments (id, store_id, sku, delta, reason, resulting_qty, adjusted_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, adj.ID, adj.StoreID, adj.SKU, adj.Delta, adj.Reason, adj.ResultingQty, adj.AdjustedBy, adj.CreatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &adj, nil
}

func (s *Store) CreateTier(ctx context.Context, tier cart.Tier) (*cart.Tier, error) {
	if strings.TrimSpace(tier.ID) == "" || strings.TrimSpace(tier.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO membership_tiers (id, name, discount_percentage, created_at)
		VALUES ($1,$2,$3,now())
	`, tier.ID, tier.Name, tier.DiscountPercentage)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: tier %s", store.ErrAlreadyExists, tier.ID)
		}
		return nil, err
	}
	return &tier, nil
}

func (s *Store) ListTiers(ctx context.Context) ([]cart.Tier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, discount_percentage
		FROM membership_tiers
		ORDER BY discount_percentage, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tiers := make([]cart.Tier, 0, 8)
	for rows.Next() {
		var t cart.Tier
		if err := rows.Scan(&t.ID, &t.Name, &t.DiscountPercentage); err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tiers, nil
}

func (s *Store) GetTier(ctx context.Context, id string) (*cart.Tier, error) {
	var t cart.Tier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, discount_percentage FROM membership_tiers WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.DiscountPercentage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) CreateMember(ctx context.Context, member domain.Member) (*domain.Member, error) {
	if strings.TrimSpace(member.Name) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if _, err := s.GetTier(ctx, member.TierID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: tier %s", store.ErrNotFound, member.TierID)
		}
		return nil, err
	}
	if member.ID == "" {
		member.ID = xid.New("mbr")
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, name, phone, tier_id, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, member.ID, member.Name, member.Phone, member.TierID, member.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: member %s", store.ErrAlreadyExists, member.ID)
		}
		return nil, err
	}
	return &member, nil
}

func (s *Store) ListMembers(ctx context.Context, limit int) ([]domain.Member, error) {
	limit = limitOr(limit, 200)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, tier_id, created_at
		FROM members
		ORDER BY name, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]domain.Member, 0, 32)
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Phone, &m.TierID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

func (s *Store) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	var m domain.Member
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, tier_id, created_at FROM members WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.Phone, &m.TierID, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func (s *Store) CreateVoucher(ctx context.Context, voucher domain.Voucher) (*domain.Voucher, error) {
	voucher.Code = strings.ToUpper(strings.TrimSpace(voucher.Code))
	if voucher.Code == "" {
		return nil, store.ErrInvalidTransaction
	}
	if voucher.CreatedAt.IsZero() {
		voucher.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vouchers (code, kind, value, minimum_purchase, active, valid_until, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, voucher.Code, voucher.Kind, voucher.Value, voucher.MinimumPurchase, voucher.Active,
		nullTime(voucher.ValidUntil), voucher.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: voucher %s", store.ErrAlreadyExists, voucher.Code)
		}
		return nil, err
	}
	return &voucher, nil
}

func scanVoucher(row rowScanner) (domain.Voucher, error) {
	var v domain.Voucher
	var validUntil sql.NullTime
	if err := row.Scan(&v.Code, &v.Kind, &v.Value, &v.MinimumPurchase, &v.Active, &validUntil, &v.CreatedAt); err != nil {
		return domain.Voucher{}, err
	}
	v.ValidUntil = timePtr(validUntil)
	v.CreatedAt = v.CreatedAt.UTC()
	return v, nil
}

func (s *Store) ListVouchers(ctx context.Context) ([]domain.Voucher, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, kind, value, minimum_purchase, active, valid_until, created_at
		FROM vouchers
		ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vouchers := make([]domain.Voucher, 0, 16)
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		vouchers = append(vouchers, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vouchers, nil
}

func (s *Store) GetVoucher(ctx context.Context, code string) (*domain.Voucher, error) {
	v, err := scanVoucher(s.db.QueryRowContext(ctx, `
		SELECT code, kind, value, minimum_purchase, active, valid_until, created_at
		FROM vouchers
		WHERE code = $1
	`, strings.ToUpper(strings.TrimSpace(code))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}
