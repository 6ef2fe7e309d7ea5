package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// DirectoryRepository implements port.RoleResolver and port.UserDirectory
// over the profiles and user_roles tables
type DirectoryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *sqlite.DB, logger *zap.Logger) *DirectoryRepository {
	return &DirectoryRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert stores a profile and replaces its roles
func (r *DirectoryRepository) Upsert(ctx context.Context, contact entity.Contact, roles ...domainwf.Role) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		exec := r.db.Executor(ctx)

		_, err := exec.ExecContext(ctx, `
			INSERT INTO profiles (user_id, name, email, lark_open_id, manager_id)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				name = excluded.name,
				email = excluded.email,
				lark_open_id = excluded.lark_open_id,
				manager_id = excluded.manager_id
		`, contact.UserID, contact.Name, contact.Email, contact.LarkOpenID, contact.ManagerID)
		if err != nil {
			r.logger.Error("Failed to upsert profile", zap.String("user_id", contact.UserID), zap.Error(err))
			return fmt.Errorf("failed to upsert profile: %w", err)
		}

		if _, err := exec.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ?`, contact.UserID); err != nil {
			return fmt.Errorf("failed to clear roles: %w", err)
		}
		for role := range domainwf.NewRoleSet(roles...) {
			if _, err := exec.ExecContext(ctx,
				`INSERT INTO user_roles (user_id, role) VALUES (?, ?)`, contact.UserID, string(role)); err != nil {
				return fmt.Errorf("failed to insert role: %w", err)
			}
		}
		return nil
	})
}

// RolesOf returns the user's roles; unknown users hold none
func (r *DirectoryRepository) RolesOf(ctx context.Context, userID string) (domainwf.RoleSet, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `SELECT role FROM user_roles WHERE user_id = ?`, userID)
	if err != nil {
		r.logger.Error("Failed to load roles", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	defer rows.Close()

	var roles []domainwf.Role
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, domainwf.Role(role))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return domainwf.NewRoleSet(roles...), nil
}

// IsManagerOf reports whether managerID is the submitter's linked manager
func (r *DirectoryRepository) IsManagerOf(ctx context.Context, managerID, submitterID string) (bool, error) {
	if managerID == "" {
		return false, nil
	}

	var linked string
	err := r.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT manager_id FROM profiles WHERE user_id = ?`, submitterID).Scan(&linked)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		r.logger.Error("Failed to load manager link", zap.String("user_id", submitterID), zap.Error(err))
		return false, fmt.Errorf("failed to load manager link: %w", err)
	}
	return linked == managerID, nil
}

// Contact returns the user's contact or nil when unknown
func (r *DirectoryRepository) Contact(ctx context.Context, userID string) (*entity.Contact, error) {
	var c entity.Contact
	err := r.db.Executor(ctx).QueryRowContext(ctx, `
		SELECT user_id, name, email, lark_open_id, manager_id
		FROM profiles WHERE user_id = ?
	`, userID).Scan(&c.UserID, &c.Name, &c.Email, &c.LarkOpenID, &c.ManagerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to load contact", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to load contact: %w", err)
	}
	return &c, nil
}

// DirectReports returns the ids of users managed by managerID, sorted
func (r *DirectoryRepository) DirectReports(ctx context.Context, managerID string) ([]string, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx,
		`SELECT user_id FROM profiles WHERE manager_id = ? ORDER BY user_id`, managerID)
	if err != nil {
		r.logger.Error("Failed to load direct reports", zap.String("manager_id", managerID), zap.Error(err))
		return nil, fmt.Errorf("failed to load direct reports: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Verify interface compliance
var (
	_ port.RoleResolver  = (*DirectoryRepository)(nil)
	_ port.UserDirectory = (*DirectoryRepository)(nil)
)
