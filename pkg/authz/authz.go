// Package authz holds the role policy checked before every mutating operation.
package authz

import (
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/tutorly/service-learning/pkg/auth"
	"github.com/tutorly/service-learning/pkg/domain"
)

//go:embed model.conf
var modelText string

const (
	ObjectBooking = "booking"
	ObjectPayment = "payment"
	ObjectSession = "session"
	ObjectDispute = "dispute"
	ObjectPayout  = "payout"
	ObjectCatalog = "catalog"
)

const (
	ActionCreate      = "create"
	ActionView        = "view"
	ActionList        = "list"
	ActionCancel      = "cancel"
	ActionRefund      = "refund"
	ActionExpire      = "expire"
	ActionPay         = "pay"
	ActionSettle      = "settle"
	ActionReconcile   = "reconcile"
	ActionStart       = "start"
	ActionEnd         = "end"
	ActionMaterialize = "materialize"
	ActionOpen        = "open"
	ActionResolve     = "resolve"
	ActionDelete      = "delete"
	ActionRequest     = "request"
	ActionSend        = "send"
	ActionBalance     = "balance"
	ActionManage      = "manage"
)

var defaultPolicies = [][]string{
	{auth.RoleStudent, ObjectBooking, ActionCreate},
	{auth.RoleStudent, ObjectBooking, ActionCancel},
	{auth.RoleAdmin, ObjectBooking, ActionCancel},
	{auth.RoleAdmin, ObjectBooking, ActionRefund},
	{auth.RoleSystem, ObjectBooking, ActionExpire},
	{auth.RoleSystem, ObjectBooking, ActionCancel},
	{auth.RoleStudent, ObjectBooking, ActionView},
	{auth.RoleTeacher, ObjectBooking, ActionView},
	{auth.RoleAdmin, ObjectBooking, ActionView},
	{auth.RoleAdmin, ObjectBooking, ActionList},

	{auth.RoleStudent, ObjectPayment, ActionPay},
	{auth.RoleStudent, ObjectPayment, ActionCreate},
	{auth.RoleSystem, ObjectPayment, ActionSettle},
	{auth.RoleAdmin, ObjectPayment, ActionReconcile},
	{auth.RoleAdmin, ObjectPayment, ActionList},
	{auth.RoleStudent, ObjectPayment, ActionView},
	{auth.RoleAdmin, ObjectPayment, ActionView},

	{auth.RoleTeacher, ObjectSession, ActionStart},
	{auth.RoleTeacher, ObjectSession, ActionEnd},
	{auth.RoleAdmin, ObjectSession, ActionMaterialize},
	{auth.RoleStudent, ObjectSession, ActionView},
	{auth.RoleTeacher, ObjectSession, ActionView},
	{auth.RoleAdmin, ObjectSession, ActionView},

	{auth.RoleStudent, ObjectDispute, ActionOpen},
	{auth.RoleTeacher, ObjectDispute, ActionOpen},
	{auth.RoleStudent, ObjectDispute, ActionDelete},
	{auth.RoleTeacher, ObjectDispute, ActionDelete},
	{auth.RoleAdmin, ObjectDispute, ActionResolve},
	{auth.RoleAdmin, ObjectDispute, ActionList},

	{auth.RoleTeacher, ObjectPayout, ActionRequest},
	{auth.RoleTeacher, ObjectPayout, ActionCancel},
	{auth.RoleTeacher, ObjectPayout, ActionBalance},
	{auth.RoleAdmin, ObjectPayout, ActionCancel},
	{auth.RoleAdmin, ObjectPayout, ActionSend},
	{auth.RoleAdmin, ObjectPayout, ActionBalance},
	{auth.RoleAdmin, ObjectPayout, ActionList},

	{auth.RoleTeacher, ObjectCatalog, ActionManage},
}

// Authorizer checks an actor's role against the policy table.
type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
}

// New builds an Authorizer from the embedded model and the default policy set.
func New() (*Authorizer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("load authz model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	if _, err := enforcer.AddPolicies(defaultPolicies); err != nil {
		return nil, fmt.Errorf("seed policies: %w", err)
	}
	return &Authorizer{enforcer: enforcer}, nil
}

// MustNew is New for wiring code and tests where a bad embedded model is a programming error.
func MustNew() *Authorizer {
	a, err := New()
	if err != nil {
		panic(err)
	}
	return a
}

// Authorize returns a ForbiddenError when the actor's role may not perform action on object.
func (a *Authorizer) Authorize(actor auth.Actor, object, action string) error {
	if actor.Role == "" {
		return domain.NewUnauthorizedError("missing actor")
	}
	ok, err := a.enforcer.Enforce(actor.Role, object, action)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewForbiddenError(fmt.Sprintf("role %s may not %s %s", actor.Role, action, object))
	}
	return nil
}
