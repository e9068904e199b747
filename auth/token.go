package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Surya1712/VideoTubes/apperror"
	"github.com/Surya1712/VideoTubes/httputil"
)

type contextKey string

// UserIDKey is the context key used to store the authenticated user ID.
const UserIDKey contextKey = "user_id"

const (
	accessTokenTTL  = 24 * time.Hour
	refreshTokenTTL = 10 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// ExtractUserID returns the user ID from the request context, if present.
func ExtractUserID(r *http.Request) (string, bool) {
	uid, ok := r.Context().Value(UserIDKey).(string)
	return uid, ok && uid != ""
}

// GenerateAccessToken creates a signed short-lived JWT for the user.
func GenerateAccessToken(userID, secret string) string {
	return signToken(userID, secret, tokenTypeAccess, accessTokenTTL)
}

// GenerateRefreshToken creates the long-lived JWT stored on the user row.
func GenerateRefreshToken(userID, secret string) string {
	return signToken(userID, secret, tokenTypeRefresh, refreshTokenTTL)
}

func signToken(userID, secret, tokenType string, ttl time.Duration) string {
	claims := jwt.MapClaims{
		"sub": userID,
		"tt":  tokenType,
		"exp": time.Now().Add(ttl).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, _ := token.SignedString([]byte(secret))
	return s
}

// ParseToken validates a JWT of the expected type and returns its subject.
func ParseToken(tokenStr, secret, expectedType string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid claims")
	}
	if tt, _ := claims["tt"].(string); tt != expectedType {
		return "", fmt.Errorf("wrong token type")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("missing subject")
	}
	return sub, nil
}

// userIDFromRequest parses the Bearer access token, returning "" when
// the request carries no usable credential.
func userIDFromRequest(r *http.Request, secret string) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	uid, err := ParseToken(strings.TrimPrefix(authHeader, "Bearer "), secret, tokenTypeAccess)
	if err != nil {
		return ""
	}
	return uid
}

// Middleware requires a valid access token and puts the user ID into the
// context.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := userIDFromRequest(r, h.JWTSecret)
		if userID == "" {
			httputil.WriteError(w, apperror.Unauthorized("Unauthorized request"))
			return
		}
		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth injects the user ID into the context if a valid access
// token is present, but does not reject unauthenticated requests.
func (h *Handler) OptionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if userID := userIDFromRequest(r, h.JWTSecret); userID != "" {
			r = r.WithContext(context.WithValue(r.Context(), UserIDKey, userID))
		}
		next(w, r)
	}
}
