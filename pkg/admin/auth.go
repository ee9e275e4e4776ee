package admin

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns the bcrypt hash to store as admin.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// adminAuth checks the bearer password on mutating routes.
type adminAuth struct {
	envPass string // from CHANRELAY_ADMIN_PASS, always wins
	hash    []byte // bcrypt hash from config.yml
}

func (aa *adminAuth) enabled() bool {
	return aa.envPass != "" || len(aa.hash) > 0
}

// checkPassword verifies a password.
// Priority: env var > stored hash
func (aa *adminAuth) checkPassword(password string) bool {
	if aa.envPass != "" {
		return subtle.ConstantTimeCompare([]byte(password), []byte(aa.envPass)) == 1
	}
	return bcrypt.CompareHashAndPassword(aa.hash, []byte(password)) == nil
}

// middleware requires "Authorization: Bearer <password>" when a password is
// configured.
func (aa *adminAuth) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !aa.enabled() {
			next.ServeHTTP(w, r)
			return
		}
		parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || !aa.checkPassword(parts[1]) {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
