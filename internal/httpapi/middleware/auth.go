package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Keys lists the accepted API keys. Public keys may run sweeps; admin keys
// may also read the server configuration.
type Keys struct {
	Public []string
	Admin  []string
}

func readAuth(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func hasKey(given string, set []string) bool {
	if given == "" {
		return false
	}
	found := 0
	for _, k := range set {
		found |= subtle.ConstantTimeCompare([]byte(given), []byte(k))
	}
	return found == 1
}

// RequireAny allows requests that present either a public or admin key.
// With no keys configured every request is allowed.
func RequireAny(keys Keys) func(http.Handler) http.Handler {
	return require(len(keys.Public)+len(keys.Admin) > 0, func(k string) (bool, int) {
		if hasKey(k, keys.Public) || hasKey(k, keys.Admin) {
			return true, 0
		}
		return false, http.StatusUnauthorized
	})
}

// RequireAdmin only permits requests that present an admin key. With no
// admin keys configured every request is allowed.
func RequireAdmin(keys Keys) func(http.Handler) http.Handler {
	return require(len(keys.Admin) > 0, func(k string) (bool, int) {
		switch {
		case hasKey(k, keys.Admin):
			return true, 0
		case k == "":
			return false, http.StatusUnauthorized
		default:
			return false, http.StatusForbidden
		}
	})
}

func require(enabled bool, check func(key string) (bool, int)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, status := check(readAuth(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			msg := "unauthorized"
			if status == http.StatusForbidden {
				msg = "forbidden"
			}
			writeJSONError(w, status, msg)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
