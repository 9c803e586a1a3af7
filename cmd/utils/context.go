package utils

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const UserIDKey contextKey = "userID"

// AuthHeader is the custom token header used by the API clients.
const AuthHeader = "X-Auth-Token"

func GetUserIDFromContext(ctx context.Context) (uint, error) {
	userID, ok := ctx.Value(UserIDKey).(uint)
	if !ok {
		return 0, errors.New("user ID not found in context")
	}
	return userID, nil
}

func parseToken(tokenString string) (uint, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(os.Getenv("SECRET_KEY")), nil
	})
	if err != nil || !token.Valid {
		return 0, errors.New("invalid token")
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, errors.New("invalid user ID in token")
	}
	return uint(userID), nil
}

// AuthMiddleware rejects requests without a valid token and stores the
// authenticated user's ID in the request context.
func AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get(AuthHeader)
		if tokenString == "" {
			WriteError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		userID, err := parseToken(tokenString)
		if err != nil {
			WriteError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// OptionalAuthMiddleware parses the token when present. Absent or invalid
// tokens leave the request anonymous instead of rejecting it.
func OptionalAuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get(AuthHeader)
		if tokenString != "" {
			if userID, err := parseToken(tokenString); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), UserIDKey, userID))
			}
		}
		next.ServeHTTP(w, r)
	}
}
