package authz

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"

	"feedbackdesk/internal/domain"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// Capabilities guarded at the route level.
const (
	ObjFeedback = "feedback"
	ObjLLM      = "llm"
	ObjDigest   = "digest"
	ObjHealth   = "health"

	ActRead    = "read"
	ActWrite   = "write"
	ActAnalyze = "analyze"
	ActPreview = "preview"
)

const defaultPolicy = `
p, MEMBER, feedback, read
p, MEMBER, feedback, write
p, ADMIN, llm, analyze
p, ADMIN, digest, preview
p, ADMIN, health, read
g, ADMIN, MEMBER
`

type Enforcer struct {
	e *casbin.Enforcer
}

func NewEnforcer() (*Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("load casbin model: %w", err)
	}
	e, err := casbin.NewEnforcer(m, stringadapter.NewAdapter(defaultPolicy))
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	return &Enforcer{e: e}, nil
}

// Allowed reports whether role may perform act on obj.
func (e *Enforcer) Allowed(role domain.Role, obj, act string) (bool, error) {
	ok, err := e.e.Enforce(string(role), obj, act)
	if err != nil {
		return false, fmt.Errorf("enforce %s %s %s: %w", role, obj, act, err)
	}
	return ok, nil
}
