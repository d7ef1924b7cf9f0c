package api

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"log/slog"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"github.com/garnizeh/campuscare/internal/alerts"
	"github.com/garnizeh/campuscare/internal/metrics"
)

// package-level logger used by middleware and helpers; can be set via SetLogger from caller
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger installs a logger for the api package. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// statusRecorder captures the response status. It keeps Hijack working so
// websocket upgrades pass through the middleware chain.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func record(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w}
}

func (r *statusRecorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := record(w)
		next.ServeHTTP(rec, r)
		// path only: the console websocket carries its JWT in the access_token query
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			slog.Int("status", rec.code()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// MetricsMiddleware records request counts and latencies by route template.
func MetricsMiddleware(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := record(w)
			next.ServeHTTP(rec, r)
			route := "unmatched"
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			m.ObserveHTTP(r.Method, route, rec.code(), time.Since(start))
		})
	}
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Idempotency-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic", slog.Any("err", err), slog.String("path", r.URL.Path))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// JWTAuthMiddlewareWithSecret validates HMAC-signed bearer tokens and puts the
// caller identity on the request context. Browsers cannot set headers on
// websocket handshakes, so an access_token query parameter is accepted too.
func JWTAuthMiddlewareWithSecret(secret string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := ""
			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				if _, err := fmt.Sscanf(authHeader, "Bearer %s", &tokenString); err != nil {
					logger.Warn("failed to parse Authorization header", slog.Any("err", err))
				}
			} else if q := r.URL.Query().Get("access_token"); q != "" {
				tokenString = q
			} else {
				http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
				return
			}

			if tokenString == "" {
				http.Error(w, "Invalid Authorization header", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}

				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			if claims, ok := token.Claims.(jwt.MapClaims); ok {
				if id, ok := identityFromClaims(claims); ok {
					r = r.WithContext(alerts.WithIdentity(r.Context(), id))
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// identityFromClaims reads the subject (or user_id) and the profile claims the
// identity provider embeds in its tokens.
func identityFromClaims(c jwt.MapClaims) (alerts.Identity, bool) {
	str := func(k string) string {
		switch v := c[k].(type) {
		case string:
			return strings.TrimSpace(v)
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
		return ""
	}
	id := alerts.Identity{
		UserID:     str("sub"),
		Email:      str("email"),
		Name:       str("name"),
		RollNumber: str("roll_number"),
		UserType:   str("user_type"),
	}
	if id.UserID == "" {
		id.UserID = str("user_id")
	}
	return id, id.UserID != ""
}
