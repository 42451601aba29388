package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bedagang/backend/internal/cart"
	"bedagang/backend/internal/domain"
	"bedagang/backend/internal/store"
)

func cartResponse(c cart.Cart) domain.CartResponse {
	return domain.CartResponse{Cart: c, Totals: c.Totals()}
}

func (s *Service) QuoteCart(_ context.Context, req domain.CartRequest) (domain.CartResponse, error) {
	if err := req.Cart.Validate(); err != nil {
		return domain.CartResponse{}, err
	}
	return cartResponse(req.Cart), nil
}

// AddCartLine adds one unit of sku with the catalog's current price and stock.
func (s *Service) AddCartLine(ctx context.Context, req domain.CartAddLineRequest) (domain.CartResponse, error) {
	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	if sku == "" {
		return domain.CartResponse{}, store.ErrInvalidTransaction
	}
	product, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.CartResponse{}, err
	}
	if !product.Active {
		return domain.CartResponse{}, fmt.Errorf("%w: sku %s", store.ErrNotFound, sku)
	}
	stock, err := s.repo.GetStockMap(ctx, s.storeOrDefault(req.StoreID), []string{sku})
	if err != nil {
		return domain.CartResponse{}, err
	}

	next, err := req.Cart.AddLine(product.CartRef(stock[sku]))
	if err != nil {
		return domain.CartResponse{}, err
	}
	return cartResponse(next), nil
}

func (s *Service) ChangeCartQuantity(_ context.Context, req domain.CartQuantityRequest) (domain.CartResponse, error) {
	next, err := req.Cart.ChangeQuantity(req.LineID, req.Delta)
	if err != nil {
		return domain.CartResponse{}, err
	}
	return cartResponse(next), nil
}

func (s *Service) RemoveCartLine(_ context.Context, req domain.CartRemoveLineRequest) (domain.CartResponse, error) {
	next, err := req.Cart.RemoveLine(req.LineID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	return cartResponse(next), nil
}

// SetCartMember attaches the member's tier to the cart, or detaches it when
// no member id is given.
func (s *Service) SetCartMember(ctx context.Context, req domain.CartMemberRequest) (domain.CartResponse, error) {
	if req.MemberID == nil || strings.TrimSpace(*req.MemberID) == "" {
		return cartResponse(req.Cart.WithMember(nil)), nil
	}
	tier, err := s.memberTier(ctx, *req.MemberID)
	if err != nil {
		return domain.CartResponse{}, err
	}
	return cartResponse(req.Cart.WithMember(tier)), nil
}

func (s *Service) SetCartVoucher(ctx context.Context, req domain.CartVoucherRequest) (domain.CartResponse, error) {
	if req.Code == nil || strings.TrimSpace(*req.Code) == "" {
		return cartResponse(req.Cart.WithVoucher(nil)), nil
	}
	voucher, err := s.usableVoucher(ctx, *req.Code)
	if err != nil {
		return domain.CartResponse{}, err
	}
	return cartResponse(req.Cart.WithVoucher(voucher)), nil
}

func (s *Service) HoldCart(ctx context.Context, req domain.HoldCartRequest) (domain.HoldCartResponse, error) {
	storeID := s.storeOrDefault(req.StoreID)
	terminalID := strings.TrimSpace(req.TerminalID)
	if terminalID == "" || req.Cart.IsEmpty() {
		return domain.HoldCartResponse{}, store.ErrInvalidTransaction
	}
	if err := req.Cart.Validate(); err != nil {
		return domain.HoldCartResponse{}, err
	}

	saved, err := s.repo.CreateHeldCart(ctx, domain.HeldCart{
		StoreID:         storeID,
		TerminalID:      terminalID,
		CashierUsername: actorName(ctx),
		Note:            strings.TrimSpace(req.Note),
		Cart:            req.Cart,
		HeldAt:          s.now().UTC(),
	})
	if err != nil {
		return domain.HoldCartResponse{}, err
	}
	s.logAudit(ctx, storeID, "cart_hold", "held_cart", saved.ID, fmt.Sprintf("items=%d", saved.Cart.ItemCount()))
	return domain.HoldCartResponse{HeldCart: *saved, Totals: saved.Cart.Totals()}, nil
}

func (s *Service) ListHeldCarts(ctx context.Context, storeID string, terminalID string) (domain.HeldCartListResponse, error) {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return domain.HeldCartListResponse{}, store.ErrInvalidTransaction
	}

	items, err := s.repo.ListHeldCarts(ctx, s.storeOrDefault(storeID), terminalID, 200)
	if err != nil {
		return domain.HeldCartListResponse{}, err
	}
	return domain.HeldCartListResponse{Items: items}, nil
}

// ResumeHeldCart removes the held cart and returns it re-checked against the
// catalog. When the catalog cannot be read the hold is restored.
func (s *Service) ResumeHeldCart(ctx context.Context, holdID string) (domain.HoldCartResponse, error) {
	holdID = strings.TrimSpace(holdID)
	if holdID == "" {
		return domain.HoldCartResponse{}, store.ErrInvalidTransaction
	}

	held, err := s.repo.PopHeldCart(ctx, holdID)
	if err != nil {
		return domain.HoldCartResponse{}, err
	}
	refreshed, err := s.refreshCart(ctx, held.StoreID, held.Cart)
	if err != nil {
		if _, restoreErr := s.repo.CreateHeldCart(context.WithoutCancel(ctx), *held); restoreErr != nil {
			s.log.Error().Err(restoreErr).Str("hold_id", held.ID).Msg("held cart restore failed")
		}
		return domain.HoldCartResponse{}, err
	}
	held.Cart = refreshed

	s.logAudit(ctx, held.StoreID, "cart_resume", "held_cart", held.ID, fmt.Sprintf("items=%d", held.Cart.ItemCount()))
	return domain.HoldCartResponse{HeldCart: *held, Totals: held.Cart.Totals()}, nil
}

func (s *Service) DiscardHeldCart(ctx context.Context, holdID string) error {
	holdID = strings.TrimSpace(holdID)
	if holdID == "" {
		return store.ErrInvalidTransaction
	}

	held, err := s.repo.PopHeldCart(ctx, holdID)
	if err != nil {
		return err
	}
	s.logAudit(ctx, held.StoreID, "cart_discard", "held_cart", held.ID, "discarded")
	return nil
}

// refreshCart reprices lines and reloads their stock. Lines whose product is
// gone or out of stock are dropped, quantities are clamped to the stock left,
// and a voucher that can no longer be redeemed is removed.
func (s *Service) refreshCart(ctx context.Context, storeID string, c cart.Cart) (cart.Cart, error) {
	skus := make([]string, 0, len(c.Lines))
	for _, line := range c.Lines {
		skus = append(skus, line.SKU)
	}
	products, err := s.repo.GetProductsBySKUs(ctx, skus)
	if err != nil {
		return c, err
	}
	stock, err := s.repo.GetStockMap(ctx, storeID, skus)
	if err != nil {
		return c, err
	}

	next := c.Clear().WithMember(c.Member)
	for _, line := range c.Lines {
		product, ok := products[line.SKU]
		if !ok || !product.Active {
			continue
		}
		ref := product.CartRef(stock[line.SKU])
		if ref.StockAvailable < 1 {
			continue
		}
		line.UnitPrice = ref.UnitPrice
		line.StockAvailable = ref.StockAvailable
		line.Quantity = min(line.Quantity, ref.StockAvailable)
		next.Lines = append(next.Lines, line)
	}

	if c.Voucher != nil {
		voucher, err := s.usableVoucher(ctx, c.Voucher.Code)
		if err != nil && !errors.Is(err, ErrVoucherUnavailable) && !errors.Is(err, store.ErrNotFound) {
			return c, err
		}
		next = next.WithVoucher(voucher)
	}

	if err := next.Validate(); err != nil {
		return c, err
	}
	return next, nil
}
