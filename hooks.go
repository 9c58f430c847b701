package authcore

import (
	"context"
	"fmt"
)

// Operation names an engine operation for hooks, audit events and error logs.
type Operation string

const (
	OpLogin                     Operation = "login"
	OpLoginRemembered           Operation = "login_remembered"
	OpLogout                    Operation = "logout"
	OpChangePassword            Operation = "change_password"
	OpResetPassword             Operation = "reset_password"
	OpForgottenPassword         Operation = "forgotten_password"
	OpForgottenPasswordComplete Operation = "forgotten_password_complete"
	OpRegister                  Operation = "register"
	OpActivate                  Operation = "activate"
	OpDeactivate                Operation = "deactivate"
	OpUpdateUser                Operation = "update_user"
	OpDeleteUser                Operation = "delete_user"
	OpAddMember                 Operation = "add_member"
	OpRemoveMember              Operation = "remove_member"
	OpCreateGroup               Operation = "create_group"
	OpUpdateGroup               Operation = "update_group"
	OpDeleteGroup               Operation = "delete_group"
)

// HookPoint is where in an operation a hook runs.
type HookPoint uint8

const (
	// BeforeVerify runs before any credential or store access.
	BeforeVerify HookPoint = iota
	// AfterSuccess runs once the operation committed.
	AfterSuccess
	// AfterFailure runs with the public error of a failed operation.
	AfterFailure
)

func (p HookPoint) String() string {
	switch p {
	case BeforeVerify:
		return "before_verify"
	case AfterSuccess:
		return "after_success"
	case AfterFailure:
		return "after_failure"
	default:
		return fmt.Sprintf("hook_point(%d)", uint8(p))
	}
}

// HookEvent describes the operation a hook observes. Err is set only for AfterFailure and
// is always one of the exported sentinels.
type HookEvent struct {
	Operation Operation
	Point     HookPoint
	Identity  string
	UserID    string
	Err       error
}

// Hook observes an operation. It cannot change the outcome.
type Hook func(ctx context.Context, ev HookEvent)

type hookKey struct {
	op    Operation
	point HookPoint
}

type hookRegistry map[hookKey][]Hook

func (r hookRegistry) add(op Operation, point HookPoint, fn Hook) {
	if fn == nil {
		return
	}
	k := hookKey{op: op, point: point}
	r[k] = append(r[k], fn)
}

// freeze copies the registry so later Builder calls cannot reach a built Engine.
func (r hookRegistry) freeze() hookRegistry {
	out := make(hookRegistry, len(r))
	for k, fns := range r {
		out[k] = append([]Hook(nil), fns...)
	}
	return out
}

func (e *Engine) runHooks(ctx context.Context, point HookPoint, ev HookEvent) {
	fns := e.hooks[hookKey{op: ev.Operation, point: point}]
	if len(fns) == 0 {
		return
	}
	ev.Point = point
	for _, fn := range fns {
		e.runHook(ctx, fn, ev)
	}
}

func (e *Engine) runHook(ctx context.Context, fn Hook, ev HookEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("authcore: hook panicked", "op", string(ev.Operation), "point", ev.Point.String(), "panic", r)
		}
	}()
	fn(ctx, ev)
}
