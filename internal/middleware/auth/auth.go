// Package auth resolves the caller's role and draft session from a bearer
// token signed with HS256.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"capex/internal/core"
	"capex/internal/log"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// DevSessionHeader names the draft session when token checks are disabled.
const DevSessionHeader = "X-Session-ID"

// Claims is the token payload. The subject is the draft session.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Role    core.Role
}

type ctxKey struct{}

func IntoContext(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// GenerateToken signs a token for subject with role, valid for ttl.
func GenerateToken(secret string, role core.Role, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	if _, err := core.ParseRole(string(role)); err != nil {
		return "", err
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("empty subject")
	}
	now := time.Now()
	claims := &Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken verifies tokenStr and returns its principal.
func ParseToken(secret, tokenStr string) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	role, err := core.ParseRole(claims.Role)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return Principal{Subject: claims.Subject, Role: role}, nil
}

// ErrorWriter writes an error response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, msg string)

func plainError(w http.ResponseWriter, _ *http.Request, status int, msg string) {
	http.Error(w, msg, status)
}

// Authenticator puts the caller's Principal into the request context.
type Authenticator struct {
	secret   string
	onError  ErrorWriter
	logger   *log.Logger
	disabled bool
}

// New returns an authenticator. An empty secret disables token checks:
// every caller is an admin and the session comes from DevSessionHeader.
func New(secret string, onError ErrorWriter) *Authenticator {
	if onError == nil {
		onError = plainError
	}
	a := &Authenticator{
		secret:   secret,
		onError:  onError,
		logger:   log.WithComponent(log.ComponentAuth),
		disabled: secret == "",
	}
	if a.disabled {
		a.logger.Warn("Token checks disabled, every caller is an admin")
	}
	return a
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.disabled {
			session := strings.TrimSpace(r.Header.Get(DevSessionHeader))
			if session == "" {
				session = "local"
			}
			next.ServeHTTP(w, r.WithContext(IntoContext(r.Context(), Principal{Subject: session, Role: core.RoleAdmin})))
			return
		}

		tokenStr, ok := bearer(r.Header.Get("Authorization"))
		if !ok {
			a.onError(w, r, http.StatusUnauthorized, ErrMissingToken.Error())
			return
		}
		p, err := ParseToken(a.secret, tokenStr)
		if err != nil {
			a.logger.WarnContext(r.Context(), "Rejected token", log.FieldError, err, log.FieldPath, r.URL.Path)
			a.onError(w, r, http.StatusUnauthorized, ErrInvalidToken.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(IntoContext(r.Context(), p)))
	})
}

func bearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// RequireRole lets through callers holding one of roles.
func (a *Authenticator) RequireRole(roles ...core.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				a.onError(w, r, http.StatusUnauthorized, ErrMissingToken.Error())
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			a.logger.WarnContext(r.Context(), "Forbidden",
				log.FieldRole, p.Role,
				log.FieldSession, p.Subject,
				log.FieldPath, r.URL.Path)
			a.onError(w, r, http.StatusForbidden, "forbidden")
		})
	}
}
