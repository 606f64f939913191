// Package authz maps user roles to dashboard resources with casbin.
package authz

import (
	"errors"
	"fmt"

	casbin "github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"medication-adherence-monitor/internal/domain/user"
)

var ErrForbidden = errors.New("forbidden")

type Resource string

const (
	ResourceSchedule          Resource = "schedule"
	ResourceAdherence         Resource = "adherence"
	ResourceMedicines         Resource = "medicines"
	ResourceDoses             Resource = "doses"
	ResourceProfile           Resource = "profile"
	ResourceDevice            Resource = "device"
	ResourceCaretakers        Resource = "caretakers"
	ResourceDoctors           Resource = "doctors"
	ResourceCaretakerRequests Resource = "caretaker_requests"
	ResourceCaretakerOverview Resource = "caretaker_overview"
	ResourceDoctorOverview    Resource = "doctor_overview"
	ResourceAdminOverview     Resource = "admin_overview"
)

type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch(r.obj, p.obj) && keyMatch(r.act, p.act)
`

var policies = [][]string{
	{string(user.RolePatient), string(ResourceSchedule), string(ActionRead)},
	{string(user.RolePatient), string(ResourceAdherence), string(ActionRead)},
	{string(user.RolePatient), string(ResourceMedicines), "*"},
	{string(user.RolePatient), string(ResourceDoses), string(ActionWrite)},
	{string(user.RolePatient), string(ResourceProfile), "*"},
	{string(user.RolePatient), string(ResourceDevice), string(ActionWrite)},
	{string(user.RolePatient), string(ResourceCaretakers), string(ActionWrite)},
	{string(user.RolePatient), string(ResourceDoctors), string(ActionWrite)},

	{string(user.RoleCaretaker), string(ResourceCaretakerRequests), string(ActionWrite)},
	{string(user.RoleCaretaker), string(ResourceCaretakerOverview), string(ActionRead)},

	{string(user.RoleDoctor), string(ResourceDoctorOverview), string(ActionRead)},

	{string(user.RoleAdmin), "*", "*"},
}

// Authorizer answers role/resource/action questions from an in-memory policy.
type Authorizer struct {
	enforcer *casbin.Enforcer
}

func New() (*Authorizer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse authz model: %w", err)
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}

	if _, err := e.AddPolicies(policies); err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}

	return &Authorizer{enforcer: e}, nil
}

func (a *Authorizer) Allowed(role user.Role, obj Resource, act Action) (bool, error) {
	return a.enforcer.Enforce(string(role), string(obj), string(act))
}

// Authorize returns ErrForbidden when role may not perform act on obj.
func (a *Authorizer) Authorize(role user.Role, obj Resource, act Action) error {
	ok, err := a.Allowed(role, obj, act)
	if err != nil {
		return fmt.Errorf("failed to enforce policy: %w", err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
