// middleware/auth/auth.go
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/joeydtaylor/steeze-assets/pkg/config"
	"go.uber.org/fx"
)

type Role struct {
	Name string `json:"name"`
}

type AuthenticationSource struct {
	Provider string `json:"provider"`
}

type User struct {
	Username             string               `json:"username"`
	AuthenticationSource AuthenticationSource `json:"authenticationSource"`
	Role                 Role                 `json:"role"`
}

type contextKey struct{ name string }

var userCtxKey = &contextKey{"user"}

const DefaultAdminRole = "admin"

// Options configures admin token verification.
type Options struct {
	Secret    []byte        // HS256 signing key; empty disables bearer auth
	Issuer    string        // required iss when set
	AdminRole string        // default: "admin"
	Leeway    time.Duration // clock skew allowance; default 60s
	DevBypass bool          // trust X-Dev-* headers (never in prod)
}

type Middleware struct {
	secret    []byte
	issuer    string
	adminRole string
	leeway    time.Duration
	devBypass bool
}

func New(o Options) *Middleware {
	if o.AdminRole == "" {
		o.AdminRole = DefaultAdminRole
	}
	if o.Leeway <= 0 {
		o.Leeway = 60 * time.Second
	}
	return &Middleware{
		secret:    o.Secret,
		issuer:    o.Issuer,
		adminRole: o.AdminRole,
		leeway:    o.Leeway,
		devBypass: o.DevBypass,
	}
}

// ProvideAuthentication builds the middleware from the [auth] config section.
func ProvideAuthentication(cfg config.Config) *Middleware {
	return New(Options{
		Secret:    []byte(cfg.Auth.JWTSecret),
		Issuer:    cfg.Auth.JWTIssuer,
		DevBypass: cfg.Auth.DevBypass,
	})
}

var Module = fx.Options(
	fx.Provide(ProvideAuthentication),
)

// Middleware attaches the caller to the request context. Requests without
// credentials continue unauthenticated; a bad bearer token is rejected.
func (m *Middleware) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.devBypass {
				if u := devUserFromHeaders(r); u.Username != "" {
					next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u)))
					return
				}
			}

			raw, ok := bearer(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			u, err := m.validateToken(raw)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u)))
		})
	}
}

// RequireAdmin rejects unauthenticated callers with 401 and non-admins with 403.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case !m.IsAuthenticated(r.Context()):
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		case !m.IsAdmin(r.Context()):
			http.Error(w, "Forbidden", http.StatusForbidden)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func bearer(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	return tok, tok != ""
}

func withUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userCtxKey, u)
}

// Dev-only user injection via headers when dev bypass is on.
func devUserFromHeaders(r *http.Request) User {
	user := r.Header.Get("X-Dev-User")
	if user == "" {
		return User{}
	}
	return User{
		Username:             user,
		AuthenticationSource: AuthenticationSource{Provider: "dev"},
		Role:                 Role{Name: r.Header.Get("X-Dev-Role")},
	}
}

// -------------------- predicates --------------------

func (m *Middleware) GetUser(ctx context.Context) User {
	if user, ok := ctx.Value(userCtxKey).(User); ok {
		return user
	}
	return User{}
}

func (m *Middleware) IsAdmin(ctx context.Context) bool {
	u, ok := ctx.Value(userCtxKey).(User)
	return ok && u.Username != "" && u.Role.Name == m.adminRole
}

func (m *Middleware) IsAuthenticated(ctx context.Context) bool {
	u, ok := ctx.Value(userCtxKey).(User)
	return ok && u.Username != ""
}
