package api

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"kata-board/domain"
)

const (
	defaultJWKSCacheTTL = 15 * time.Minute
	defaultRoleClaim    = "role"
	envJWKSCacheTTL     = "JWKS_CACHE_TTL"
)

var (
	errMissingSubject = errors.New("missing sub")
	errMissingRole    = errors.New("missing role claim")
)

// Auth validates incoming JWT tokens and resolves the caller's cc and role.
type Auth struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	RoleClaim  string
	TestMode   bool
	TestSecret []byte

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates an Auth that verifies RS256 tokens against jwks. An empty
// roleClaim means "role".
func NewAuth(jwks *keyfunc.JWKS, audience, issuer, roleClaim string) *Auth {
	a := &Auth{JWKS: jwks, Audience: audience, Issuer: issuer, RoleClaim: roleClaimOrDefault(roleClaim)}
	a.keyCacheTTL = parseCacheTTL()
	a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	return a
}

// NewTestAuth creates an Auth that accepts HS256 tokens signed with secret
// (AUTH0_TEST_MODE=1). It panics on an empty secret.
func NewTestAuth(secret []byte, roleClaim string) *Auth {
	if len(secret) == 0 {
		panic("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
	}
	return &Auth{
		RoleClaim:  roleClaimOrDefault(roleClaim),
		TestMode:   true,
		TestSecret: secret,
		parser:     jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}
}

func roleClaimOrDefault(claim string) string {
	if claim == "" {
		return defaultRoleClaim
	}
	return claim
}

func parseCacheTTL() time.Duration {
	ttl := defaultJWKSCacheTTL
	if raw := os.Getenv(envJWKSCacheTTL); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			panic("invalid JWKS_CACHE_TTL")
		}
		ttl = parsed
	}
	return ttl
}

// IdentityFromAuthHeader resolves the caller from the Authorization header.
func (a *Auth) IdentityFromAuthHeader(h string) (domain.Actor, error) {
	if h == "" {
		return domain.Actor{}, errMissingAuthorization
	}
	token, err := bearerTokenFromString(h)
	if err != nil {
		return domain.Actor{}, err
	}
	return a.IdentityFromBearer(token)
}

// IdentityFromBearer verifies a compact JWT. The sub claim is the user's cc.
func (a *Auth) IdentityFromBearer(token string) (domain.Actor, error) {
	if token == "" {
		return domain.Actor{}, errBadAuthorization
	}

	var parsedToken *jwt.Token
	var err error
	if a.TestMode {
		parsedToken, err = a.parser.Parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.TestSecret, nil
		})
	} else {
		parsedToken, err = a.parser.Parse(token, func(t *jwt.Token) (any, error) {
			return a.keyForToken(t)
		})
	}
	if err != nil {
		return domain.Actor{}, err
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Actor{}, errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return domain.Actor{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return domain.Actor{}, errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return domain.Actor{}, errors.New("token used before issued")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return domain.Actor{}, errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
		return domain.Actor{}, errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return domain.Actor{}, errMissingSubject
	}
	role := roleFromClaim(claims[a.roleClaim()])
	if role == "" {
		return domain.Actor{}, errMissingRole
	}
	return domain.Actor{CC: sub, Role: role}, nil
}

func (a *Auth) roleClaim() string {
	if a.RoleClaim == "" {
		return defaultRoleClaim
	}
	return a.RoleClaim
}

// roleFromClaim accepts a plain string or a list of roles, in which case the
// first non-empty entry wins.
func roleFromClaim(v any) string {
	switch r := v.(type) {
	case string:
		return strings.TrimSpace(r)
	case []any:
		for _, item := range r {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
