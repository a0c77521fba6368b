package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role is the single authorization role embedded in access tokens.
type Role string

const (
	RoleNone     Role = "NONE"
	RoleAdmin    Role = "ADMIN"
	RoleSupport  Role = "SUPPORT"
	RoleAuthor   Role = "AUTHOR"
	RoleEmployer Role = "EMPLOYER"
)

// ParseRole maps a case-insensitive role name to a Role. An empty string is
// RoleNone.
func ParseRole(s string) (Role, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return RoleNone, true
	}
	switch r := Role(s); r {
	case RoleNone, RoleAdmin, RoleSupport, RoleAuthor, RoleEmployer:
		return r, true
	}
	return "", false
}

// Provider identifies an external identity provider.
type Provider string

const (
	ProviderNone     Provider = "NONE"
	ProviderVK       Provider = "VK"
	ProviderYandex   Provider = "YANDEX"
	ProviderGoogle   Provider = "GOOGLE"
	ProviderTelegram Provider = "TELEGRAM"
)

// ParseProvider maps a case-insensitive provider name to a Provider.
func ParseProvider(s string) (Provider, bool) {
	switch p := Provider(strings.ToUpper(strings.TrimSpace(s))); p {
	case ProviderNone, ProviderVK, ProviderYandex, ProviderGoogle, ProviderTelegram:
		return p, true
	}
	return "", false
}

// Account represents a row in the `accounts` table. The session flows only
// mutate the credential, lockout, refresh and confirmation fields.
type Account struct {
	ID             string    `json:"id" db:"id"`
	Email          string    `json:"email" db:"email"`
	Username       string    `json:"username" db:"username"`
	PasswordHash   string    `json:"-" db:"password_hash"`
	EmailConfirmed bool      `json:"email_confirmed" db:"email_confirmed"`
	Role           Role      `json:"role" db:"role"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`

	FailedAttemptCount int        `json:"failed_attempt_count" db:"failed_attempt_count"`
	LockoutEnabled     bool       `json:"lockout_enabled" db:"lockout_enabled"`
	LockoutUntil       *time.Time `json:"lockout_until,omitempty" db:"lockout_until"`

	// RefreshTokenFingerprint and RefreshTokenExpiry are set and cleared
	// together; at most one refresh token is live per account.
	RefreshTokenFingerprint *string    `json:"-" db:"refresh_token_fingerprint"`
	RefreshTokenExpiry      *time.Time `json:"refresh_token_expiry,omitempty" db:"refresh_token_expiry"`

	ConfirmationCode *string `json:"-" db:"confirmation_code"`

	ExternalIdentityIDs ExternalIDs `json:"external_identity_ids,omitempty" db:"external_ids"`
}

// ExternalIDs maps a provider to the subject id it reported at link time.
type ExternalIDs map[Provider]string

// ExternalID returns the linked subject id for p, or "" when unlinked.
func (a *Account) ExternalID(p Provider) string {
	if a.ExternalIdentityIDs == nil {
		return ""
	}
	return a.ExternalIdentityIDs[p]
}

// LinkExternalID records id for p.
func (a *Account) LinkExternalID(p Provider, id string) {
	if a.ExternalIdentityIDs == nil {
		a.ExternalIdentityIDs = ExternalIDs{}
	}
	a.ExternalIdentityIDs[p] = id
}

// SetRefreshToken stores the fingerprint of the one live refresh token.
func (a *Account) SetRefreshToken(fingerprint string, expiry time.Time) {
	a.RefreshTokenFingerprint = &fingerprint
	a.RefreshTokenExpiry = &expiry
}

// ClearRefreshToken revokes the live refresh token, if any.
func (a *Account) ClearRefreshToken() {
	a.RefreshTokenFingerprint = nil
	a.RefreshTokenExpiry = nil
}

// PendingCode returns the unconsumed confirmation code or "".
func (a *Account) PendingCode() string {
	if a.ConfirmationCode == nil {
		return ""
	}
	return *a.ConfirmationCode
}

func (a *Account) SetConfirmationCode(code string) {
	a.ConfirmationCode = &code
}

func (a *Account) ClearConfirmationCode() {
	a.ConfirmationCode = nil
}

// NormalizeEmail is the lookup form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Value stores the map as a JSONB document.
func (e ExternalIDs) Value() (driver.Value, error) {
	if len(e) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(map[Provider]string(e))
}

// Scan reads a JSONB document written by Value.
func (e *ExternalIDs) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*e = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("external ids: unsupported type %T", src)
	}
	out := ExternalIDs{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("external ids: %w", err)
	}
	if len(out) == 0 {
		out = nil
	}
	*e = out
	return nil
}
