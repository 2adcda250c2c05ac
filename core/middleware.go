package core

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

// Cookie names of the credential pair.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

const sessionName = "tabfer_session"
const sessionMaxAge = 18000 // 5h

const ctxUserKey = "auth_user"

// RequestLoggingMiddleware logs one line per request: id, method, path,
// status, and elapsed time.
func RequestLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()
		c.Set("request_id", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)

		c.Next()

		log.Printf("%s %s %s completed in %.4fs with status code %d",
			requestID, c.Request.Method, c.Request.URL.Path,
			time.Since(start).Seconds(), c.Writer.Status())
	}
}

// OriginRefererMiddleware validates Origin/Referer against allowed list and sets CORS headers.
func OriginRefererMiddleware(cfg Config) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.ToLower(o)] = struct{}{}
	}

	isAllowed := func(origin string) bool {
		if origin == "" {
			// Same-origin navigation (no Origin header) is allowed.
			return true
		}
		if len(allowed) == 0 {
			return false
		}
		origin = strings.ToLower(origin)
		_, ok := allowed[origin]
		return ok
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		referer := c.GetHeader("Referer")
		if origin == "" && referer != "" {
			if u, err := url.Parse(referer); err == nil {
				origin = u.Scheme + "://" + u.Host
			}
		}

		// Preflight handling
		if c.Request.Method == http.MethodOptions && origin != "" {
			if !isAllowed(origin) {
				respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
				c.Abort()
				return
			}
			setCORSHeaders(c, origin)
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}

		if !isAllowed(origin) {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
			c.Abort()
			return
		}
		if origin != "" {
			setCORSHeaders(c, origin)
		}
		c.Next()
	}
}

func setCORSHeaders(c *gin.Context, origin string) {
	c.Header("Access-Control-Allow-Origin", origin)
	c.Header("Vary", "Origin")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Headers", "Content-Type, X-CSRF-Token")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
}

// CSRFMiddleware issues and validates a per-session CSRF token.
func CSRFMiddleware(cfg Config, store *sessions.CookieStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := store.Get(c.Request, sessionName)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "session error")
			c.Abort()
			return
		}

		token, _ := session.Values["csrf_token"].(string)
		if token == "" {
			token, err = generateCSRFToken()
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to issue csrf token")
				c.Abort()
				return
			}
			session.Values["csrf_token"] = token
			applySessionOptions(cfg, session)
			if err := session.Save(c.Request, c.Writer); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to persist session")
				c.Abort()
				return
			}
		}

		if !isSafeMethod(c.Request.Method) && !csrfExemptPath(c.Request.URL.Path) {
			header := c.GetHeader("X-CSRF-Token")
			if header == "" || header != token {
				respondError(c, http.StatusForbidden, "FORBIDDEN", "invalid csrf token")
				c.Abort()
				return
			}
		}

		// Expose token so frontend can read and reuse.
		c.Writer.Header().Set("X-CSRF-Token", token)
		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

// Authentication endpoints intentionally skip CSRF validation: login and
// register run before a session exists, and verify/logout are driven purely
// by the HTTP-only credential cookies.
func csrfExemptPath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/authentication/")
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func applySessionOptions(cfg Config, session *sessions.Session) {
	if session.Options == nil {
		session.Options = &sessions.Options{}
	}
	session.Options.Path = "/"
	session.Options.MaxAge = sessionMaxAge
	session.Options.HttpOnly = true
	session.Options.Secure = cfg.CookieSecure
	session.Options.SameSite = sameSiteFromString(cfg.CookieSameSite)
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

// setAuthCookies transports a freshly issued token pair as HTTP-only cookies.
func setAuthCookies(c *gin.Context, cfg Config, pair TokenPair) {
	setAuthCookie(c, cfg, AccessTokenCookie, pair.AccessToken, int(cfg.AccessTokenTTL.Seconds()))
	setAuthCookie(c, cfg, RefreshTokenCookie, pair.RefreshToken, int(cfg.RefreshTokenTTL.Seconds()))
}

// clearAuthCookies is the whole of logout: tokens stay cryptographically
// valid until natural expiry, invalidation happens only client-side.
func clearAuthCookies(c *gin.Context, cfg Config) {
	setAuthCookie(c, cfg, AccessTokenCookie, "", -1)
	setAuthCookie(c, cfg, RefreshTokenCookie, "", -1)
}

func setAuthCookie(c *gin.Context, cfg Config, name, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: sameSiteFromString(cfg.CookieSameSite),
	})
}

// AuthRequired verifies the access-token cookie and resolves the principal
// before the handler runs. Error mapping mirrors the verify endpoint:
// missing cookie 401, expired 403, malformed 400, vanished account 404.
func AuthRequired(authService *AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken, err := c.Cookie(AccessTokenCookie)
		if err != nil || accessToken == "" {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			c.Abort()
			return
		}
		refreshToken, _ := c.Cookie(RefreshTokenCookie)

		user, err := authService.VerifySession(c.Request.Context(), accessToken, refreshToken)
		if err != nil {
			status, code, message := authErrorStatus(err)
			respondError(c, status, code, message)
			c.Abort()
			return
		}

		c.Set(ctxUserKey, user)
		c.Next()
	}
}

// authErrorStatus maps the credential error taxonomy to transport codes.
func authErrorStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "UNAUTHORIZED", "authentication required"
	case errors.Is(err, ErrExpiredCredential):
		return http.StatusForbidden, "TOKEN_EXPIRED", "access token has expired"
	case errors.Is(err, ErrMalformedCredential):
		return http.StatusBadRequest, "INVALID_TOKEN", "invalid token"
	case errors.Is(err, ErrPrincipalNotFound):
		return http.StatusNotFound, "NOT_FOUND", "user not found"
	default:
		return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "verification failed"
	}
}

// currentUser returns the principal stashed by AuthRequired.
func currentUser(c *gin.Context) (*User, bool) {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*User)
	return u, ok
}

// AdminOnly ensures the resolved principal has the admin role. Must run
// after AuthRequired.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := currentUser(c)
		if !ok || u.Role != RoleAdmin {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "admin privileges required")
			c.Abort()
			return
		}
		c.Next()
	}
}
