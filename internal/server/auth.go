package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/lingua-bot/internal/memory"
	"github.com/xaenox/lingua-bot/internal/models"
)

type contextKey string

const callerContextKey contextKey = "caller"

const (
	sessionCookie = "session_id"
	sessionMaxAge = 30 * 24 * time.Hour
)

var errMissingSubject = errors.New("token missing user identifier")

// Auth turns requests into memory callers. Bearer tokens are HS256 JWTs
// whose "sub" (or "user_id") claim is the user id; everyone else is
// anonymous and bound to a session cookie.
type Auth struct {
	secret        []byte
	secureCookies bool
	logger        *zap.Logger
}

func NewAuth(secret string, secureCookies bool, logger *zap.Logger) *Auth {
	return &Auth{
		secret:        []byte(secret),
		secureCookies: secureCookies,
		logger:        logger.Named("auth"),
	}
}

// userID validates tokenString and returns its subject.
func (a *Auth) userID(tokenString string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("authentication is not configured")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		userID, _ = claims["user_id"].(string)
	}
	if models.IsAnonymous(userID) {
		return "", errMissingSubject
	}
	return userID, nil
}

// Middleware attaches a memory.Caller to every request context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := memory.Caller{SessionID: a.session(w, r)}

		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			userID, err := a.userID(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				a.logger.Warn("Invalid JWT token", zap.Error(err))
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			caller.UserID = userID
		}

		ctx := context.WithValue(r.Context(), callerContextKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// session returns the session id from the cookie, issuing a new one when
// the request has none.
func (a *Auth) session(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if _, err := uuid.Parse(cookie.Value); err == nil {
			return cookie.Value
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(sessionMaxAge / time.Second),
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// CallerFromContext returns the caller attached by Middleware.
func CallerFromContext(ctx context.Context) memory.Caller {
	if caller, ok := ctx.Value(callerContextKey).(memory.Caller); ok {
		return caller
	}
	return memory.Caller{UserID: models.AnonymousUserID}
}
