package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Directory implements port.RoleResolver and port.UserDirectory
type Directory struct {
	db     *DB
	logger *zap.Logger
}

// NewDirectory creates a new directory
func NewDirectory(db *DB, logger *zap.Logger) *Directory {
	return &Directory{db: db, logger: logger}
}

// Upsert stores a profile and replaces its roles
func (d *Directory) Upsert(ctx context.Context, contact entity.Contact, roles ...domainwf.Role) error {
	return d.db.WithTransaction(ctx, func(ctx context.Context) error {
		q := d.db.Querier(ctx)

		_, err := q.Exec(ctx, `
			INSERT INTO profiles (user_id, name, email, lark_open_id, manager_id)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id) DO UPDATE SET
				name = EXCLUDED.name,
				email = EXCLUDED.email,
				lark_open_id = EXCLUDED.lark_open_id,
				manager_id = EXCLUDED.manager_id
		`, contact.UserID, contact.Name, contact.Email, contact.LarkOpenID, contact.ManagerID)
		if err != nil {
			d.logger.Error("Failed to upsert profile", zap.String("user_id", contact.UserID), zap.Error(err))
			return fmt.Errorf("failed to upsert profile: %w", err)
		}

		if _, err := q.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, contact.UserID); err != nil {
			return fmt.Errorf("failed to clear roles: %w", err)
		}
		for role := range domainwf.NewRoleSet(roles...) {
			if _, err := q.Exec(ctx, `INSERT INTO user_roles (user_id, role) VALUES ($1, $2)`, contact.UserID, string(role)); err != nil {
				return fmt.Errorf("failed to insert role: %w", err)
			}
		}
		return nil
	})
}

// RolesOf returns the user's roles; unknown users hold none
func (d *Directory) RolesOf(ctx context.Context, userID string) (domainwf.RoleSet, error) {
	rows, err := d.db.Querier(ctx).Query(ctx, `SELECT role FROM user_roles WHERE user_id = $1`, userID)
	if err != nil {
		d.logger.Error("Failed to load roles", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan roles: %w", err)
	}

	roles := make([]domainwf.Role, 0, len(names))
	for _, n := range names {
		roles = append(roles, domainwf.Role(n))
	}
	return domainwf.NewRoleSet(roles...), nil
}

// IsManagerOf reports whether managerID is the submitter's linked manager
func (d *Directory) IsManagerOf(ctx context.Context, managerID, submitterID string) (bool, error) {
	if managerID == "" {
		return false, nil
	}

	var linked string
	err := d.db.Querier(ctx).QueryRow(ctx, `SELECT manager_id FROM profiles WHERE user_id = $1`, submitterID).Scan(&linked)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		d.logger.Error("Failed to load manager link", zap.String("user_id", submitterID), zap.Error(err))
		return false, fmt.Errorf("failed to load manager link: %w", err)
	}
	return linked == managerID, nil
}

// Contact returns the user's contact or nil when unknown
func (d *Directory) Contact(ctx context.Context, userID string) (*entity.Contact, error) {
	var c entity.Contact
	err := d.db.Querier(ctx).QueryRow(ctx, `
		SELECT user_id, name, email, lark_open_id, manager_id
		FROM profiles WHERE user_id = $1
	`, userID).Scan(&c.UserID, &c.Name, &c.Email, &c.LarkOpenID, &c.ManagerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		d.logger.Error("Failed to load contact", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to load contact: %w", err)
	}
	return &c, nil
}

// DirectReports returns the ids of users managed by managerID, sorted
func (d *Directory) DirectReports(ctx context.Context, managerID string) ([]string, error) {
	rows, err := d.db.Querier(ctx).Query(ctx, `SELECT user_id FROM profiles WHERE manager_id = $1 ORDER BY user_id`, managerID)
	if err != nil {
		d.logger.Error("Failed to load direct reports", zap.String("manager_id", managerID), zap.Error(err))
		return nil, fmt.Errorf("failed to load direct reports: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan user ids: %w", err)
	}
	return ids, nil
}

// Verify interface compliance
var (
	_ port.RoleResolver  = (*Directory)(nil)
	_ port.UserDirectory = (*Directory)(nil)
)
