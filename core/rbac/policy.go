package rbac

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const matrixModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj
`

// Policy is the permission matrix: an in-memory casbin enforcer loaded
// once from the fixed role table. Lookups are side-effect-free.
type Policy struct {
	enforcer *casbin.Enforcer
}

func NewPolicy(roles []Role) (*Policy, error) {
	m, err := model.NewModelFromString(matrixModel)
	if err != nil {
		return nil, fmt.Errorf("rbac: model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac: enforcer: %w", err)
	}
	for _, role := range roles {
		for _, perm := range role.Permissions {
			if _, err := enforcer.AddPolicy(role.Name, string(perm)); err != nil {
				return nil, fmt.Errorf("rbac: policy %s/%s: %w", role.Name, perm, err)
			}
		}
	}
	return &Policy{enforcer: enforcer}, nil
}

func MustPolicy(roles []Role) *Policy {
	p, err := NewPolicy(roles)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Policy) Allowed(role string, perm Permission) bool {
	if p == nil || p.enforcer == nil || role == "" {
		return false
	}
	ok, err := p.enforcer.Enforce(role, string(perm))
	return err == nil && ok
}
