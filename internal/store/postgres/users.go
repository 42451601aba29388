package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bedagang/backend/internal/domain"
	"bedagang/backend/internal/store"
	"bedagang/backend/internal/xid"
)

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action,
		entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	limit = limitOr(limit, 200)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR store_id = $1) AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, storeID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, 64)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(
			&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, pin_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,true,$5)
	`, user.Username, user.Password, user.PINHash, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s", store.ErrAlreadyExists, user.Username)
		}
		return err
	}
	return nil
}

func scanUser(row rowScanner) (domain.UserAccount, error) {
	var user domain.UserAccount
	if err := row.Scan(&user.Username, &user.Password, &user.PINHash, &user.Role, &user.Active, &user.CreatedAt); err != nil {
		return domain.UserAccount{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT username, password, pin_hash, role, active, created_at
		FROM users
		WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, pin_hash, role, active, created_at
		FROM users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	return s.updateUser(ctx, `UPDATE users SET password = $2 WHERE username = $1`, username, password)
}

func (s *Store) UpdateUserPIN(ctx context.Context, username string, pinHash string) error {
	return s.updateUser(ctx, `UPDATE users SET pin_hash = $2 WHERE username = $1`, username, pinHash)
}

func (s *Store) updateUser(ctx context.Context, query string, username string, value string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(value) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, query, username, value)
	if err != nil {
		return err
	}
	if err := affectedOne(res); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}
