package auth

import (
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/wordgrove/groveapi/internal/db/models"
)

//go:embed model.conf
var casbinModelContent string

// InitEnforcer creates a Casbin enforcer with the embedded RBAC model and the
// static role→route policy set. The roles are a closed set, so policies live
// in code rather than behind a storage adapter; the enforcer exists to keep
// the route/role matrix declarative and keyMatch-based rather than scattered
// through handler code.
func InitEnforcer() (casbin.IEnforcer, error) {
	m, err := model.NewModelFromString(casbinModelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	// keyMatch("/student", "/student/*") is false, so each area lists its
	// bare dashboard path alongside the wildcard.
	policies := [][]string{
		{string(models.RoleStudent), "/student", "*"},
		{string(models.RoleStudent), "/student/*", "*"},
		{string(models.RoleParent), "/parent", "*"},
		{string(models.RoleParent), "/parent/*", "*"},
		{string(models.RoleTeacher), "/teacher", "*"},
		{string(models.RoleTeacher), "/teacher/*", "*"},
		// Admins can reach every role area.
		{string(models.RoleAdmin), "/*", "*"},
	}
	for _, p := range policies {
		if _, err := enforcer.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("add policy %v: %w", p, err)
		}
	}

	return enforcer, nil
}
