package authcore

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/internal"
)

// Register creates an account and joins it to req.Groups, or to the default group when
// none are given.
//
// With Activation.Manual the account starts inactive. With Activation.Email it starts
// inactive with an activation code that is sent through the Notifier when one is
// configured and returned otherwise.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	ev := HookEvent{Operation: OpRegister, Identity: e.identityOf(req)}
	e.runHooks(ctx, BeforeVerify, ev)

	res, err := e.register(ctx, req)
	if res != nil {
		ev.UserID = res.User.ID
	}

	if err = e.finish(ctx, ev, err, nil); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) identityOf(req RegisterRequest) string {
	if e.config.Identity.Field == "username" {
		return req.Username
	}
	return req.Email
}

func (e *Engine) register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	identity := e.identityOf(req)
	if identity == "" {
		return nil, ErrInvalidInput
	}
	if err := e.checkPasswordPolicy(req.Password); err != nil {
		return nil, err
	}

	checks := []struct {
		field Field
		value string
	}{
		{FieldIdentity, identity},
		{FieldEmail, req.Email},
		{FieldUsername, req.Username},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		exists, err := e.store.Exists(ctx, c.field, c.value)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrDuplicateIdentity
		}
	}

	groupIDs, err := e.registrationGroups(ctx, req.Groups)
	if err != nil {
		return nil, err
	}

	digest, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:         uuid.NewString(),
		Credential: Credential{Identity: identity, Digest: digest},
		Username:   req.Username,
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Active:     !e.config.Activation.Manual && !e.config.Activation.Email,
		CreatedAt:  e.now().UTC(),
	}
	if e.config.Activation.Email {
		code, err := internal.NewActivationCode()
		if err != nil {
			return nil, err
		}
		user.ActivationCode = code
	}

	if err := e.store.Create(ctx, user, groupIDs); err != nil {
		return nil, err
	}

	res := &RegisterResult{User: user}
	if !e.config.Activation.Email {
		return res, nil
	}

	if e.notifier != nil {
		err := e.notify(ctx, e.config.Templates.Activate, user, map[string]string{
			"identity":   user.Identity,
			"id":         user.ID,
			"activation": user.ActivationCode,
		})
		if err != nil {
			e.logger.Warn("authcore: send activation", "user_id", user.ID, "error", err)
			res.ActivationCode = user.ActivationCode
			return res, nil
		}
		res.Delivered = true
		return res, nil
	}

	res.ActivationCode = user.ActivationCode
	return res, nil
}

// registrationGroups resolves refs, falling back to the default group when it exists.
func (e *Engine) registrationGroups(ctx context.Context, refs []string) ([]string, error) {
	if len(refs) > 0 {
		return e.resolveGroupIDs(ctx, refs)
	}
	if e.config.Identity.DefaultGroup == "" {
		return nil, nil
	}

	g, err := e.store.FindGroupByName(ctx, e.config.Identity.DefaultGroup)
	if errors.Is(err, ErrNotFound) {
		e.logger.Debug("authcore: default group missing", "group", e.config.Identity.DefaultGroup)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []string{g.ID}, nil
}

// Activate marks userID active and clears its activation code.
func (e *Engine) Activate(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	ev := HookEvent{Operation: OpActivate, UserID: userID}
	e.runHooks(ctx, BeforeVerify, ev)

	var err error
	if userID == "" {
		err = ErrNotFound
	} else {
		err = e.store.SetActive(ctx, userID, true, "")
	}

	return e.finish(ctx, ev, err, nil)
}

// ActivateByCode activates the account holding code and returns its id.
func (e *Engine) ActivateByCode(ctx context.Context, code string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	ev := HookEvent{Operation: OpActivate}
	e.runHooks(ctx, BeforeVerify, ev)

	var (
		userID string
		err    error
	)
	if code == "" {
		err = ErrNotFound
	} else {
		userID, err = e.store.ActivateByCode(ctx, code)
	}
	ev.UserID = userID

	if err = e.finish(ctx, ev, err, nil); err != nil {
		return "", err
	}
	return userID, nil
}

// Deactivate marks userID inactive and returns the fresh activation code stored with it.
func (e *Engine) Deactivate(ctx context.Context, userID string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	ev := HookEvent{Operation: OpDeactivate, UserID: userID}
	e.runHooks(ctx, BeforeVerify, ev)

	code, err := internal.NewActivationCode()
	if err == nil {
		if userID == "" {
			err = ErrNotFound
		} else {
			err = e.store.SetActive(ctx, userID, false, code)
		}
	}
	if err == nil {
		e.destroySessions(ctx, userID)
	}

	if err = e.finish(ctx, ev, err, nil); err != nil {
		return "", err
	}
	return code, nil
}

// UpdateUser applies the non-nil fields of upd. A new password is policy-checked and
// hashed; an identity, email or username already taken returns [ErrDuplicateIdentity]
// and nothing changes.
func (e *Engine) UpdateUser(ctx context.Context, userID string, upd UserUpdate) (*User, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	ev := HookEvent{Operation: OpUpdateUser, UserID: userID}
	e.runHooks(ctx, BeforeVerify, ev)

	user, err := e.updateUser(ctx, userID, upd)
	if user != nil {
		ev.Identity = user.Identity
	}

	if err = e.finish(ctx, ev, err, nil); err != nil {
		return nil, err
	}
	return user, nil
}

func (e *Engine) updateUser(ctx context.Context, userID string, upd UserUpdate) (*User, error) {
	user, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if upd.Identity != nil {
		if *upd.Identity == "" {
			return nil, ErrInvalidInput
		}
		user.Identity = *upd.Identity
	}
	if upd.Username != nil {
		user.Username = *upd.Username
	}
	if upd.Email != nil {
		user.Email = *upd.Email
	}
	if upd.FirstName != nil {
		user.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		user.LastName = *upd.LastName
	}
	if upd.Active != nil {
		user.Active = *upd.Active
	}

	passwordChanged := upd.Password != nil
	if passwordChanged {
		if err := e.checkPasswordPolicy(*upd.Password); err != nil {
			return nil, err
		}
		digest, err := e.digestFor(user, *upd.Password)
		if err != nil {
			return nil, err
		}
		user.Digest = digest
	}

	if err := e.store.Save(ctx, user); err != nil {
		return nil, err
	}
	if passwordChanged {
		e.revokeRemembered(ctx, user.ID)
	}
	return user, nil
}

// DeleteUser removes userID with its memberships and revokes its tokens.
func (e *Engine) DeleteUser(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	ev := HookEvent{Operation: OpDeleteUser, UserID: userID}
	e.runHooks(ctx, BeforeVerify, ev)

	err := e.store.Delete(ctx, userID)
	if err == nil {
		e.destroySessions(ctx, userID)
		e.revokeRemembered(ctx, userID)
		e.revokeRecovery(ctx, userID)
	}

	return e.finish(ctx, ev, err, nil)
}

// IdentityExists reports whether value is a registered identity. Empty values are never
// registered.
func (e *Engine) IdentityExists(ctx context.Context, value string) (bool, error) {
	return e.exists(ctx, FieldIdentity, value)
}

func (e *Engine) EmailExists(ctx context.Context, value string) (bool, error) {
	return e.exists(ctx, FieldEmail, value)
}

func (e *Engine) UsernameExists(ctx context.Context, value string) (bool, error) {
	return e.exists(ctx, FieldUsername, value)
}

func (e *Engine) exists(ctx context.Context, field Field, value string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	if value == "" {
		return false, nil
	}
	ok, err := e.store.Exists(ctx, field, value)
	if err != nil {
		return false, e.publicError(ctx, "exists", err)
	}
	return ok, nil
}

// User returns the account with id userID.
func (e *Engine) User(ctx context.Context, userID string) (*User, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	user, err := e.store.FindByID(ctx, userID)
	if err != nil {
		return nil, e.publicError(ctx, "user", err)
	}
	return user, nil
}

// Users lists accounts, restricted to members of groupRefs when any are given.
func (e *Engine) Users(ctx context.Context, groupRefs ...string) ([]User, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	var groupIDs []string
	if len(groupRefs) > 0 {
		ids, err := e.resolveGroupIDs(ctx, groupRefs)
		if err != nil {
			return nil, e.publicError(ctx, "users", err)
		}
		groupIDs = ids
	}

	users, err := e.store.ListUsers(ctx, groupIDs)
	if err != nil {
		return nil, e.publicError(ctx, "users", err)
	}
	return users, nil
}
