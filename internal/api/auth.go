package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const adminContextKey = contextKey("admin")

const roleAdmin = "admin"

// Claims represents the JWT payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// generateToken creates a new admin JWT.
func (s *Server) generateToken(user string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.opts.TokenTTL)
	claims := &Claims{
		Role: roleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	return signed, expiresAt, err
}

// parseToken validates a token string and returns its claims.
func (s *Server) parseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Role != roleAdmin {
		return nil, fmt.Errorf("token is not an admin token")
	}
	return claims, nil
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// tokenFromRequest reads the bearer token, falling back to the token cookie.
func tokenFromRequest(r *http.Request) string {
	if t := bearerToken(r); t != "" {
		return t
	}
	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value
	}
	return ""
}

// isAdmin reports whether the request carries a valid admin token.
func (s *Server) isAdmin(r *http.Request) bool {
	if v, ok := r.Context().Value(adminContextKey).(string); ok && v != "" {
		return true
	}
	t := tokenFromRequest(r)
	if t == "" || len(s.jwtSecret) == 0 {
		return false
	}
	_, err := s.parseToken(t)
	return err == nil
}

// requireAuthHandler applies the admin JWT check to a handler.
func (s *Server) requireAuthHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := tokenFromRequest(r)
		if tokenString == "" {
			respondError(w, http.StatusUnauthorized, "missing authentication token")
			return
		}

		claims, err := s.parseToken(tokenString)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid authentication token")
			return
		}

		ctx := context.WithValue(r.Context(), adminContextKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireCron accepts the cron secret in X-Cron-Secret or as a bearer token.
func (s *Server) requireCron(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Cron-Secret")
		if got == "" {
			got = bearerToken(r)
		}
		if s.opts.CronSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.CronSecret)) != 1 {
			respondError(w, http.StatusUnauthorized, "invalid cron secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if s.opts.AdminPasswordHash == "" || len(s.jwtSecret) == 0 {
			respondError(w, http.StatusServiceUnavailable, "admin login is not configured")
			return
		}

		userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.opts.AdminUser)) == 1
		passErr := bcrypt.CompareHashAndPassword([]byte(s.opts.AdminPasswordHash), []byte(req.Password))
		if !userOK || passErr != nil {
			s.logger.Warn("admin login rejected", "user", req.Username)
			respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		token, expiresAt, err := s.generateToken(req.Username)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to generate token")
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     "token",
			Value:    token,
			Path:     "/",
			Expires:  expiresAt,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"token":     token,
			"expiresAt": expiresAt.UTC(),
		})
	}
}
