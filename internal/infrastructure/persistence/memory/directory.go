package memory

import (
	"context"
	"sort"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Directory implements port.RoleResolver and port.UserDirectory in memory
type Directory struct {
	db *DB
}

// NewDirectory creates a directory over db
func NewDirectory(db *DB) *Directory {
	return &Directory{db: db}
}

// AddUser registers a user with roles and an optional manager
func (d *Directory) AddUser(contact entity.Contact, roles ...domainwf.Role) {
	d.db.mu.Lock()
	defer d.db.mu.Unlock()

	c := contact
	d.db.contacts[contact.UserID] = &c
	d.db.roles[contact.UserID] = domainwf.NewRoleSet(roles...)
}

// RolesOf returns the user's roles; unknown users hold none
func (d *Directory) RolesOf(_ context.Context, userID string) (domainwf.RoleSet, error) {
	d.db.mu.RLock()
	defer d.db.mu.RUnlock()

	roles := make(domainwf.RoleSet)
	for r := range d.db.roles[userID] {
		roles[r] = true
	}
	return roles, nil
}

// IsManagerOf reports whether managerID is the submitter's linked manager
func (d *Directory) IsManagerOf(_ context.Context, managerID, submitterID string) (bool, error) {
	d.db.mu.RLock()
	defer d.db.mu.RUnlock()

	c, ok := d.db.contacts[submitterID]
	return ok && managerID != "" && c.ManagerID == managerID, nil
}

// Contact returns a copy of the user's contact or nil
func (d *Directory) Contact(_ context.Context, userID string) (*entity.Contact, error) {
	d.db.mu.RLock()
	defer d.db.mu.RUnlock()

	c, ok := d.db.contacts[userID]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

// DirectReports returns the ids of users managed by managerID, sorted
func (d *Directory) DirectReports(_ context.Context, managerID string) ([]string, error) {
	d.db.mu.RLock()
	defer d.db.mu.RUnlock()

	var ids []string
	for id, c := range d.db.contacts {
		if c.ManagerID == managerID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Verify interface compliance
var (
	_ port.RoleResolver  = (*Directory)(nil)
	_ port.UserDirectory = (*Directory)(nil)
)
