package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"bedagang/backend/internal/cache"
	"bedagang/backend/internal/cart"
	"bedagang/backend/internal/domain"
	"bedagang/backend/internal/markup"
	"bedagang/backend/internal/store"
)

// CalculatePricing runs the pricing form for a product that is not saved yet.
// Every membership tier gets a price at its default discount unless the request
// overrides it.
func (s *Service) CalculatePricing(ctx context.Context, req domain.PricingRequest) (markup.Form, error) {
	tiers, err := s.ListTiers(ctx)
	if err != nil {
		return markup.Form{}, err
	}
	return buildForm(req, tiers)
}

func buildForm(req domain.PricingRequest, tiers []cart.Tier) (markup.Form, error) {
	form, err := markup.NewForm(req.ProductType, req.CostPrice, req.MarkupPercentage, tierPrices(tiers))
	if err != nil {
		return markup.Form{}, err
	}
	if req.SellingPrice != nil {
		if form, err = form.SetSellingPrice(*req.SellingPrice); err != nil {
			return markup.Form{}, err
		}
	}
	return applyTierDiscounts(form, req.TierDiscounts)
}

func applyTierDiscounts(form markup.Form, discounts []domain.TierDiscount) (markup.Form, error) {
	var err error
	for _, d := range discounts {
		if form, err = form.SetTierDiscount(strings.TrimSpace(d.TierID), d.DiscountPercentage); err != nil {
			return markup.Form{}, err
		}
	}
	return form, nil
}

func tierPrices(tiers []cart.Tier) []markup.PriceTier {
	out := make([]markup.PriceTier, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, markup.PriceTier{TierID: t.ID, Name: t.Name, DiscountPercentage: t.DiscountPercentage})
	}
	return out
}

// mergeTiers keeps the discounts saved on a product and adds tiers created
// after it was priced at their default discount.
func mergeTiers(saved []markup.PriceTier, tiers []cart.Tier) []markup.PriceTier {
	out := slices.Clone(saved)
	for _, t := range tiers {
		if slices.ContainsFunc(saved, func(p markup.PriceTier) bool { return p.TierID == t.ID }) {
			continue
		}
		out = append(out, markup.PriceTier{TierID: t.ID, Name: t.Name, DiscountPercentage: t.DiscountPercentage})
	}
	return out
}

func (s *Service) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, s.storeOrDefault(storeID))
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	storeID := s.storeOrDefault(req.StoreID)
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.SKU == "" || req.Name == "" || req.Category == "" || req.InitialStock < 0 {
		return domain.Product{}, store.ErrInvalidTransaction
	}

	form, err := s.CalculatePricing(ctx, req.PricingRequest)
	if err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		SKU:      req.SKU,
		Name:     req.Name,
		Category: req.Category,
		Active:   true,
	}
	product.ApplyPricing(form)

	created, err := s.repo.CreateProduct(ctx, storeID, product, req.InitialStock)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, storeID, "product_create", "product", created.SKU,
		fmt.Sprintf("type=%s,cost=%d,markup=%.2f,price=%d,stock=%d",
			created.ProductType, created.CostPrice, created.MarkupPercentage, created.SellingPrice, created.Stock))
	return *created, nil
}

// UpdateProductPricing edits the pricing form of a saved product. A manually
// entered selling price survives edits that change neither product type, cost
// nor markup.
func (s *Service) UpdateProductPricing(ctx context.Context, sku string, req domain.ProductPricingUpdate) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return domain.Product{}, store.ErrInvalidTransaction
	}
	existing, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}

	tiers, err := s.ListTiers(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	form, err := markup.NewForm(existing.ProductType, existing.CostPrice, existing.MarkupPercentage, mergeTiers(existing.Tiers, tiers))
	if err != nil {
		return domain.Product{}, err
	}
	if form, err = form.SetSellingPrice(existing.SellingPrice); err != nil {
		return domain.Product{}, err
	}
	if req.ProductType != nil && *req.ProductType != existing.ProductType {
		if form, err = form.SetProductType(*req.ProductType); err != nil {
			return domain.Product{}, err
		}
	}
	if req.CostPrice != nil {
		if form, err = form.SetCost(*req.CostPrice); err != nil {
			return domain.Product{}, err
		}
	}
	if req.MarkupPercentage != nil {
		if form, err = form.SetMarkup(*req.MarkupPercentage); err != nil {
			return domain.Product{}, err
		}
	}
	if req.SellingPrice != nil {
		if form, err = form.SetSellingPrice(*req.SellingPrice); err != nil {
			return domain.Product{}, err
		}
	}
	if form, err = applyTierDiscounts(form, req.TierDiscounts); err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	updated.ApplyPricing(form)
	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	if existing.CostPrice != saved.CostPrice || existing.SellingPrice != saved.SellingPrice {
		if err := s.repo.CreatePriceHistory(ctx, domain.ProductPriceHistory{
			SKU:       saved.SKU,
			OldCost:   existing.CostPrice,
			NewCost:   saved.CostPrice,
			OldPrice:  existing.SellingPrice,
			NewPrice:  saved.SellingPrice,
			ChangedBy: actorName(ctx),
			ChangedAt: s.now().UTC(),
		}); err != nil {
			s.log.Warn().Err(err).Str("sku", saved.SKU).Msg("price history write failed")
		}
	}

	s.logAudit(ctx, s.defaultStoreID, "product_pricing_update", "product", saved.SKU,
		fmt.Sprintf("cost=%d->%d,price=%d->%d", existing.CostPrice, saved.CostPrice, existing.SellingPrice, saved.SellingPrice))
	return *saved, nil
}

func (s *Service) ListProductPriceHistory(ctx context.Context, sku string, limit int) ([]domain.ProductPriceHistory, error) {
	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return nil, store.ErrInvalidTransaction
	}
	if _, err := s.repo.GetProductBySKU(ctx, sku); err != nil {
		return nil, err
	}
	return s.repo.ListPriceHistory(ctx, sku, limit)
}

func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockAdjustment, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.StockAdjustment{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Reason = strings.TrimSpace(req.Reason)
	if req.SKU == "" || req.Reason == "" || req.Delta == 0 {
		return domain.StockAdjustment{}, store.ErrInvalidTransaction
	}

	adj, err := s.repo.AdjustStock(ctx, domain.StockAdjustment{
		StoreID:    s.storeOrDefault(req.StoreID),
		SKU:        req.SKU,
		Delta:      req.Delta,
		Reason:     req.Reason,
		AdjustedBy: actorName(ctx),
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		return domain.StockAdjustment{}, err
	}

	s.logAudit(ctx, adj.StoreID, "stock_adjust", "product", adj.SKU,
		fmt.Sprintf("delta=%d,result=%d,reason=%s", adj.Delta, adj.ResultingQty, adj.Reason))
	return *adj, nil
}

func (s *Service) CreateTier(ctx context.Context, req domain.TierCreateRequest) (cart.Tier, error) {
	if err := requireAdmin(ctx); err != nil {
		return cart.Tier{}, err
	}

	tier := cart.Tier{
		ID:                 strings.ToLower(strings.TrimSpace(req.ID)),
		Name:               strings.TrimSpace(req.Name),
		DiscountPercentage: req.DiscountPercentage,
	}
	if tier.ID == "" || tier.Name == "" || tier.DiscountPercentage < 0 || tier.DiscountPercentage > 100 {
		return cart.Tier{}, store.ErrInvalidTransaction
	}

	created, err := s.repo.CreateTier(ctx, tier)
	if err != nil {
		return cart.Tier{}, err
	}
	s.invalidate(ctx, cache.KeyTiers)
	s.logAudit(ctx, "", "tier_create", "tier", created.ID, fmt.Sprintf("discount=%.2f", created.DiscountPercentage))
	return *created, nil
}

func (s *Service) ListTiers(ctx context.Context) ([]cart.Tier, error) {
	return cached(ctx, s, cache.KeyTiers, func() ([]cart.Tier, error) {
		return s.repo.ListTiers(ctx)
	})
}

func (s *Service) CreateMember(ctx context.Context, req domain.MemberCreateRequest) (domain.Member, error) {
	name := strings.TrimSpace(req.Name)
	tierID := strings.ToLower(strings.TrimSpace(req.TierID))
	if name == "" || tierID == "" {
		return domain.Member{}, store.ErrInvalidTransaction
	}

	created, err := s.repo.CreateMember(ctx, domain.Member{
		Name:      name,
		Phone:     strings.TrimSpace(req.Phone),
		TierID:    tierID,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.Member{}, err
	}
	s.logAudit(ctx, "", "member_create", "member", created.ID, "tier="+created.TierID)
	return *created, nil
}

func (s *Service) ListMembers(ctx context.Context, limit int) ([]domain.Member, error) {
	return s.repo.ListMembers(ctx, limit)
}

// memberTier resolves the tier a member's cart discount comes from.
func (s *Service) memberTier(ctx context.Context, memberID string) (*cart.Tier, error) {
	member, err := s.repo.GetMember(ctx, strings.TrimSpace(memberID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: member %s", store.ErrNotFound, memberID)
		}
		return nil, err
	}
	tiers, err := s.ListTiers(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tiers {
		if t.ID == member.TierID {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: tier %s", store.ErrNotFound, member.TierID)
}

func (s *Service) CreateVoucher(ctx context.Context, req domain.VoucherCreateRequest) (domain.Voucher, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Voucher{}, err
	}

	voucher := domain.Voucher{
		Code:            strings.ToUpper(strings.TrimSpace(req.Code)),
		Kind:            req.Kind,
		Value:           req.Value,
		MinimumPurchase: req.MinimumPurchase,
		Active:          true,
		ValidUntil:      req.ValidUntil,
		CreatedAt:       s.now().UTC(),
	}
	if err := voucher.Engine().Validate(); err != nil || voucher.Code == "" || voucher.Value <= 0 {
		return domain.Voucher{}, store.ErrInvalidTransaction
	}

	created, err := s.repo.CreateVoucher(ctx, voucher)
	if err != nil {
		return domain.Voucher{}, err
	}
	s.invalidate(ctx, cache.KeyVouchers, cache.KeyVoucher(created.Code))
	s.logAudit(ctx, "", "voucher_create", "voucher", created.Code,
		fmt.Sprintf("kind=%s,value=%.2f,min=%d", created.Kind, created.Value, created.MinimumPurchase))
	return *created, nil
}

func (s *Service) ListVouchers(ctx context.Context) ([]domain.Voucher, error) {
	return cached(ctx, s, cache.KeyVouchers, func() ([]domain.Voucher, error) {
		return s.repo.ListVouchers(ctx)
	})
}

func (s *Service) GetVoucher(ctx context.Context, code string) (domain.Voucher, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Voucher{}, store.ErrInvalidTransaction
	}
	return cached(ctx, s, cache.KeyVoucher(code), func() (domain.Voucher, error) {
		v, err := s.repo.GetVoucher(ctx, code)
		if err != nil {
			return domain.Voucher{}, err
		}
		return *v, nil
	})
}

// usableVoucher returns the engine voucher for code or ErrVoucherUnavailable
// when it exists but cannot be redeemed now.
func (s *Service) usableVoucher(ctx context.Context, code string) (*cart.Voucher, error) {
	v, err := s.GetVoucher(ctx, code)
	if err != nil {
		return nil, err
	}
	if !v.Usable(s.now()) {
		return nil, fmt.Errorf("%w: %s", ErrVoucherUnavailable, v.Code)
	}
	engine := v.Engine()
	return &engine, nil
}
