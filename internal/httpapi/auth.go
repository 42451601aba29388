package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"bedagang/backend/internal/domain"
	"bedagang/backend/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

type AuthManager struct {
	secret     []byte
	tokenTTL   time.Duration
	managerPIN string
	users      UserStore
	log        zerolog.Logger
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

// NewAuthManager hashes managerPIN once. An empty PIN disables manager
// approval altogether.
func NewAuthManager(secret string, tokenTTL time.Duration, managerPIN string, users UserStore, logger zerolog.Logger) (*AuthManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth secret required")
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	hashedPIN := ""
	if pin := strings.TrimSpace(managerPIN); pin != "" {
		hash, err := hashPassword(pin)
		if err != nil {
			return nil, fmt.Errorf("hash manager pin: %w", err)
		}
		hashedPIN = hash
	}

	return &AuthManager{
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		managerPIN: hashedPIN,
		users:      users,
		log:        logger,
	}, nil
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	user, err := a.users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
		return domain.LoginResponse{}, err
	}

	if !isPasswordHash(user.Password) {
		// Accounts provisioned by hand may still carry a plain password.
		if subtle.ConstantTimeCompare([]byte(user.Password), []byte(req.Password)) != 1 || req.Password == "" {
			return domain.LoginResponse{}, ErrInvalidCredentials
		}
		if hashed, err := hashPassword(req.Password); err == nil {
			if err := a.users.UpdateUserPassword(ctx, username, hashed); err != nil {
				a.log.Warn().Err(err).Str("username", username).Msg("password upgrade failed")
			}
		}
	} else if !verifyPassword(user.Password, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !user.Active {
		return domain.LoginResponse{}, ErrInactiveAccount
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, user.Role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        user.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer("bedagang"))
	if err != nil || !token.Valid {
		return domain.Actor{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, ErrInvalidToken
	}
	return domain.Actor{Username: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(username, role string, expiresAt time.Time) (string, error) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "bedagang",
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) ValidateManagerPIN(pin string) bool {
	input := strings.TrimSpace(pin)
	if input == "" || !isPasswordHash(a.managerPIN) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.managerPIN), []byte(input)) == nil
}

func (a *AuthManager) CreateCashier(ctx context.Context, req domain.CashierCreateRequest) (domain.CashierUser, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 3 || strings.ContainsAny(username, " \t\r\n") {
		return domain.CashierUser{}, fmt.Errorf("%w: username must be at least 3 characters without spaces", store.ErrInvalidTransaction)
	}
	if len(req.Password) < 8 {
		return domain.CashierUser{}, fmt.Errorf("%w: password must be at least 8 characters", store.ErrInvalidTransaction)
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.CashierUser{}, errors.New("failed to hash password")
	}
	now := time.Now().UTC()
	if err := a.users.CreateUser(ctx, domain.UserAccount{
		Username:  username,
		Password:  passwordHash,
		Role:      domain.RoleCashier,
		Active:    true,
		CreatedAt: now,
	}); err != nil {
		return domain.CashierUser{}, err
	}

	return domain.CashierUser{
		Username:  username,
		Role:      domain.RoleCashier,
		Active:    true,
		CreatedAt: now,
	}, nil
}

func (a *AuthManager) ListCashiers(ctx context.Context) ([]domain.CashierUser, error) {
	users, err := a.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]domain.CashierUser, 0, len(users))
	for _, user := range users {
		if user.Role != domain.RoleCashier {
			continue
		}
		result = append(result, domain.CashierUser{
			Username:  user.Username,
			Role:      user.Role,
			Active:    user.Active,
			HasPIN:    user.PINHash != "",
			CreatedAt: user.CreatedAt,
		})
	}
	return result, nil
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
