package otpgate

import (
	"context"
	"strings"

	"github.com/MrEthical07/otpgate/identity"
)

// ProvisionAccount creates a verified account directly, for operator bootstrap
// such as the first admin. It applies the same validation and hashing as
// signup. The account still signs in through Authenticate and a code.
func (e *Engine) ProvisionAccount(ctx context.Context, req ProvisionRequest) (identity.Account, error) {
	if err := e.ready(); err != nil {
		return identity.Account{}, err
	}

	email := identity.NormalizeEmail(req.Email)
	phone := identity.NormalizePhone(req.Phone)
	fullName := strings.TrimSpace(req.FullName)

	role := req.Role
	if role == "" {
		role = identity.RoleUser
	}
	if !role.Valid() {
		return identity.Account{}, invalidField("role", "must be user or admin")
	}

	if err := validateEmail(email); err != nil {
		return identity.Account{}, err
	}
	if err := validatePhone(phone); err != nil {
		return identity.Account{}, err
	}
	if err := validateFullName(fullName); err != nil {
		return identity.Account{}, err
	}
	if err := e.validatePassword(req.Password); err != nil {
		return identity.Account{}, err
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		return identity.Account{}, internalError(err)
	}

	account := identity.Account{
		ID:            identity.NewAccountID(),
		Email:         email,
		Phone:         phone,
		FullName:      fullName,
		PasswordHash:  hash,
		Role:          role,
		EmailVerified: true,
		CreatedAt:     e.now().UTC(),
	}
	if err := e.identities.Create(ctx, account); err != nil {
		err = mapIdentityError(err)
		e.emitAudit(ctx, auditEventAccountProvisioned, false, "", email, "", err, nil)
		return identity.Account{}, err
	}

	e.emitAudit(ctx, auditEventAccountProvisioned, true, account.ID, email, "", nil, func() map[string]string {
		return map[string]string{"role": string(role)}
	})

	return account, nil
}
