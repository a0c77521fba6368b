package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-identity-go/pkg/utilities"
)

// Kind separates access tokens from refresh tokens so neither can be
// replayed as the other.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const (
	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// ErrInvalidToken covers every decode failure: bad signature, wrong
// issuer/audience, expiry, malformed claims.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the typed payload of every token this service signs.
type Claims struct {
	Role entity.Role `json:"role,omitempty"`
	Kind Kind        `json:"kind"`
	jwt.RegisteredClaims
}

// Descriptor is a freshly signed token plus the fields callers need without
// decoding it again.
type Descriptor struct {
	Token     string
	SubjectID string
	Kind      Kind
	Role      entity.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Config struct {
	Secret     []byte
	Issuer     string
	Audience   string
	Algorithm  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Leeway tolerates clock skew on exp, nbf and iat in DecodeValid.
	Leeway     time.Duration
}

// Signer issues and decodes HMAC-signed JWTs. It holds no mutable state and
// is safe for concurrent use.
type Signer struct {
	secret     []byte
	issuer     string
	audience   string
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
	now        func() time.Time
}

func NewSigner(cfg Config, now func() time.Time) (*Signer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token: empty signing secret")
	}
	if cfg.Leeway < 0 {
		return nil, errors.New("token: negative leeway")
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("token: unsupported algorithm %q", alg)
	}
	if now == nil {
		now = time.Now
	}
	s := &Signer{
		secret:     cfg.Secret,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		method:     method,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		leeway:     cfg.Leeway,
		now:        now,
	}
	if s.accessTTL <= 0 {
		s.accessTTL = DefaultAccessTTL
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = DefaultRefreshTTL
	}
	return s, nil
}

func (s *Signer) AccessTTL() time.Duration  { return s.accessTTL }
func (s *Signer) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccess signs a short-lived token carrying the account role.
func (s *Signer) IssueAccess(accountID string, role entity.Role) (Descriptor, error) {
	return s.issue(accountID, role, KindAccess, s.accessTTL)
}

// IssueRefresh signs a long-lived token that can only be exchanged for a new
// pair.
func (s *Signer) IssueRefresh(accountID string) (Descriptor, error) {
	return s.issue(accountID, "", KindRefresh, s.refreshTTL)
}

func (s *Signer) issue(sub string, role entity.Role, kind Kind, ttl time.Duration) (Descriptor, error) {
	// JWT times have second precision; truncate so the descriptor matches
	// what a decoder will see.
	now := s.now().Truncate(time.Second)
	exp := now.Add(ttl)
	claims := Claims{
		Role: role,
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        utilities.NewSnowflakeID(),
			Issuer:    s.issuer,
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return Descriptor{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return Descriptor{
		Token:     signed,
		SubjectID: sub,
		Kind:      kind,
		Role:      role,
		IssuedAt:  now,
		ExpiresAt: exp,
	}, nil
}

// DecodeValid fully validates a token: signature, issuer, audience and
// expiry, allowing the configured leeway on the time based claims.
func (s *Signer) DecodeValid(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(s.leeway),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}
	return s.parse(tokenString, opts...)
}

// DecodeExpired checks the signature, issuer and audience but not the time
// based claims. It exists to recover the subject of an expired access token.
func (s *Signer) DecodeExpired(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString,
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, err
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}
	if s.audience != "" && !slices.Contains(claims.Audience, s.audience) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}
	return claims, nil
}

func (s *Signer) parse(tokenString string, opts ...jwt.ParserOption) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if claims.Kind != KindAccess && claims.Kind != KindRefresh {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidToken, claims.Kind)
	}
	return claims, nil
}

// Fingerprint is the stored form of a refresh token.
func Fingerprint(tokenString string) string {
	sum := sha256.Sum256([]byte(tokenString))
	return hex.EncodeToString(sum[:])
}

// MatchesFingerprint compares a presented token with a stored fingerprint in
// constant time.
func MatchesFingerprint(tokenString, fingerprint string) bool {
	got := Fingerprint(tokenString)
	return subtle.ConstantTimeCompare([]byte(got), []byte(fingerprint)) == 1
}
