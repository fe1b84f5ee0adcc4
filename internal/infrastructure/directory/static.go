package directory

import (
	"context"
	"fmt"

	"github.com/formdesk/flowengine/internal/application/port"
	"github.com/formdesk/flowengine/internal/config"
)

// StaticDirectory resolves users and roles from configuration. It stands in
// for the surrounding identity system; swapping in an LDAP or SSO backed
// implementation only requires satisfying port.UserDirectory.
type StaticDirectory struct {
	byTenantRole map[string][]port.User
	byTenantID   map[string]port.User
}

// NewStaticDirectory builds the lookup tables from configured users
func NewStaticDirectory(users []config.DirectoryUser) *StaticDirectory {
	d := &StaticDirectory{
		byTenantRole: make(map[string][]port.User),
		byTenantID:   make(map[string]port.User),
	}
	for _, u := range users {
		pu := port.User{ID: u.ID, Name: u.Name, Email: u.Email}
		d.byTenantID[u.TenantID+"/"+u.ID] = pu
		for _, role := range u.Roles {
			key := u.TenantID + "/" + role
			d.byTenantRole[key] = append(d.byTenantRole[key], pu)
		}
	}
	return d
}

// UsersWithRole returns all users holding the role in the tenant
func (d *StaticDirectory) UsersWithRole(ctx context.Context, tenantID, role string) ([]port.User, error) {
	return d.byTenantRole[tenantID+"/"+role], nil
}

// GetUser returns a single user by id
func (d *StaticDirectory) GetUser(ctx context.Context, tenantID, userID string) (*port.User, error) {
	if u, ok := d.byTenantID[tenantID+"/"+userID]; ok {
		return &u, nil
	}
	return nil, fmt.Errorf("user %s not found in tenant %s", userID, tenantID)
}

var _ port.UserDirectory = (*StaticDirectory)(nil)
