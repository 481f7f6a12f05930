package auth

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminCreds is the bootstrap admin identity from config; it works even on a
// fresh database with no users row yet.
type AdminCreds struct {
	User     string
	PassHash string // bcrypt
}

// POST /auth/login  { "username": "...", "password": "..." }
//
// Credentials come from the users table; the configured admin is checked
// first so a fresh install can log in and seed accounts.
func LoginHandler(db *sql.DB, a *AuthService, admin AdminCreds) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		role, ok := authenticate(r, db, admin, req.Username, req.Password)
		if !ok {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		tok, err := a.IssueJWT(req.Username, role)
		if err != nil {
			http.Error(w, "issue token", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": tok})
	}
}

func authenticate(r *http.Request, db *sql.DB, admin AdminCreds, username, password string) (string, bool) {
	if username == admin.User {
		if bcrypt.CompareHashAndPassword([]byte(admin.PassHash), []byte(password)) == nil {
			return "admin", true
		}
		return "", false
	}
	var hash, role string
	err := db.QueryRowContext(r.Context(),
		`SELECT password_hash, role FROM users WHERE username=$1`, username).Scan(&hash, &role)
	if errors.Is(err, sql.ErrNoRows) || isUsersTableMissing(err) {
		return "", false
	}
	if err != nil {
		return "", false
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", false
	}
	return role, true
}

func isUsersTableMissing(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table: users") || // sqlite
		strings.Contains(msg, `relation "users" does not exist`) // postgres
}
