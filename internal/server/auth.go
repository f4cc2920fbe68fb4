package server

import (
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"internfunnel/internal/apperr"
	"internfunnel/internal/engine/auth"
)

const authCookie = "auth_token"

type Principal struct {
	Username string
	Role     string
	Source   string
}

// Actor is the event-log actor for admin writes.
func (p Principal) Actor() string {
	return "admin:" + p.Username
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func actorFromContext(ctx context.Context) string {
	if p, ok := principalFromContext(ctx); ok && p.Username != "" {
		return p.Actor()
	}
	return "admin"
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func dashboardPrefix(basePath string) string {
	return path.Join("/", basePath, "dashboard")
}

// requestToken prefers the Authorization header over the cookie.
func requestToken(req *http.Request) (string, string) {
	if token, ok := bearerToken(req.Header.Get("Authorization")); ok {
		return token, "bearer"
	}
	if c, err := req.Cookie(authCookie); err == nil && c.Value != "" {
		return c.Value, "cookie"
	}
	return "", ""
}

// newAuthMiddleware guards every route under the dashboard prefix. The
// rest of the API is public.
func newAuthMiddleware(basePath string, svc auth.Service) func(http.Handler) http.Handler {
	prefix := dashboardPrefix(basePath)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := req.URL.Path
			if p != prefix && !strings.HasPrefix(p, prefix+"/") {
				next.ServeHTTP(w, req)
				return
			}
			if req.Method == http.MethodOptions {
				next.ServeHTTP(w, req)
				return
			}
			token, source := requestToken(req)
			if token == "" {
				respondStatusError(w, apperr.Unauthorized("Unauthorized"))
				return
			}
			claims, err := svc.Verify(token)
			if err != nil {
				respondStatusError(w, err)
				return
			}
			ctx := withPrincipal(req.Context(), Principal{Username: claims.Username, Role: claims.Role, Source: source})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

type loginOutput struct {
	SetCookie http.Cookie `header:"Set-Cookie"`
	Body      LoginResponse
}

type logoutOutput struct {
	SetCookie http.Cookie `header:"Set-Cookie"`
	Body      SuccessResponse
}

func (h handlers) cookie(value string, expires time.Time) http.Cookie {
	c := http.Cookie{
		Name:     authCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		return c
	}
	c.Expires = expires
	c.MaxAge = int(time.Until(expires).Seconds())
	if c.MaxAge <= 0 {
		c.MaxAge = int(auth.TokenTTL.Seconds())
	}
	return c
}

func registerAuth(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Log in to the admin dashboard",
		Tags:        []string{"auth"},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest
	}) (*loginOutput, error) {
		token, exp, err := h.auth.Login(strings.TrimSpace(input.Body.Username), input.Body.Password)
		if err != nil {
			if apperr.Is(err, apperr.KindUnauthorized) {
				h.logger.Warn("admin login rejected", "username", input.Body.Username)
			}
			return nil, handleError(err)
		}
		h.logger.Info("admin login", "username", input.Body.Username)
		return &loginOutput{
			SetCookie: h.cookie(token, exp),
			Body: LoginResponse{
				Success:   true,
				Token:     token,
				ExpiresAt: exp.UTC().Format(time.RFC3339),
			},
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "logout",
		Method:      http.MethodPost,
		Path:        "/auth/logout",
		Summary:     "Clear the admin session cookie",
		Tags:        []string{"auth"},
	}, func(ctx context.Context, _ *struct{}) (*logoutOutput, error) {
		return &logoutOutput{
			SetCookie: h.cookie("", time.Time{}),
			Body:      SuccessResponse{Success: true, Message: "Logged out"},
		}, nil
	})
}
