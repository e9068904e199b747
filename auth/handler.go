// Package auth implements the user account surface: registration, login,
// token refresh, profile, password change, avatar/cover upload, watch
// history and channel profiles — plus the JWT middleware the rest of the
// API mounts.
package auth

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Surya1712/VideoTubes/apperror"
	"github.com/Surya1712/VideoTubes/db"
	"github.com/Surya1712/VideoTubes/httputil"
	"github.com/Surya1712/VideoTubes/media"
)

const maxPasswordLen = 72 // bcrypt truncates at 72 bytes

// maxImageUpload caps avatar/cover multipart uploads (8 MB).
const maxImageUpload = 8 << 20

// Handler holds dependencies for the user endpoints.
type Handler struct {
	DB        *db.CompatDB
	Media     media.Store
	JWTSecret string
}

// User is the profile shape returned to clients. The credential hash and
// refresh token never leave the server.
type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	FullName   string `json:"fullName"`
	Avatar     string `json:"avatar"`
	CoverImage string `json:"coverImage"`
	CreatedAt  string `json:"createdAt"`
}

func (h *Handler) loadUser(r *http.Request, userID string) (User, error) {
	var u User
	err := h.DB.QueryRowContext(r.Context(), `
		SELECT id, username, email, full_name, avatar_url, cover_url, created_at
		FROM users WHERE id = ?
	`, userID).Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.Avatar, &u.CoverImage, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, apperror.NotFound("User")
	}
	return u, err
}

// HandleRegister creates a new user account from a multipart form:
// fullName, email, username, password, avatar (file, required) and
// coverImage (file, optional).
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImageUpload); err != nil {
		httputil.WriteError(w, apperror.Validation("Invalid multipart form"))
		return
	}
	fullName := strings.TrimSpace(r.FormValue("fullName"))
	email := strings.TrimSpace(r.FormValue("email"))
	username := strings.TrimSpace(strings.ToLower(r.FormValue("username")))
	password := r.FormValue("password")

	switch {
	case fullName == "" || email == "" || username == "" || password == "":
		httputil.WriteError(w, apperror.Validation("All fields are required"))
		return
	case len(username) < 3:
		httputil.WriteError(w, apperror.Validation("Username must be at least 3 characters"))
		return
	case !strings.Contains(email, "@") || len(email) < 5:
		httputil.WriteError(w, apperror.Validation("A valid email address is required"))
		return
	case len(password) < 8 || len(password) > maxPasswordLen:
		httputil.WriteError(w, apperror.Validation("Password must be between 8 and 72 characters"))
		return
	}

	avatar, err := h.uploadImage(r, "avatar")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cover, err := h.uploadOptionalImage(r, "coverImage")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	userID := uuid.New().String()
	_, err = h.DB.ExecContext(r.Context(), `
		INSERT INTO users (id, username, email, full_name, password_hash,
		                   avatar_url, avatar_key, cover_url, cover_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, userID, username, email, fullName, string(hash),
		avatar.URL, avatar.Key, cover.URL, cover.Key)
	if err != nil {
		// Orphaned uploads are removed best-effort; the account does not exist.
		h.removeObject(r, avatar.Key)
		h.removeObject(r, cover.Key)
		if isUniqueViolation(err) {
			httputil.WriteError(w, apperror.Conflict("Username or email already exists"))
			return
		}
		httputil.WriteError(w, err)
		return
	}

	user, err := h.loadUser(r, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 201, user, "User registered successfully")
}

// HandleLogin authenticates by username or email and issues a token pair.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperror.Validation("Invalid request body"))
		return
	}
	login := strings.TrimSpace(strings.ToLower(req.Username))
	if login == "" {
		login = strings.TrimSpace(strings.ToLower(req.Email))
	}
	if login == "" || req.Password == "" {
		httputil.WriteError(w, apperror.Validation("Username or email and password are required"))
		return
	}

	var userID, hash string
	err := h.DB.QueryRowContext(r.Context(),
		`SELECT id, password_hash FROM users WHERE username = ? OR email = ?`,
		login, login,
	).Scan(&userID, &hash)
	if err != nil || len(req.Password) > maxPasswordLen ||
		bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		httputil.WriteError(w, apperror.Unauthorized("Invalid credentials"))
		return
	}

	access, refresh, err := h.issueTokenPair(r, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	user, err := h.loadUser(r, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, map[string]interface{}{
		"user":         user,
		"accessToken":  access,
		"refreshToken": refresh,
	}, "User logged in successfully")
}

// issueTokenPair mints an access+refresh pair and persists the refresh
// token on the user row so it can be invalidated and rotated.
func (h *Handler) issueTokenPair(r *http.Request, userID string) (access, refresh string, err error) {
	access = GenerateAccessToken(userID, h.JWTSecret)
	refresh = GenerateRefreshToken(userID, h.JWTSecret)
	_, err = h.DB.ExecContext(r.Context(),
		`UPDATE users SET refresh_token = ?, updated_at = `+h.DB.NowUTC()+` WHERE id = ?`,
		refresh, userID)
	if err != nil {
		return "", "", fmt.Errorf("store refresh token: %w", err)
	}
	return access, refresh, nil
}

// HandleLogout clears the stored refresh token.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(UserIDKey).(string)
	if _, err := h.DB.ExecContext(r.Context(),
		`UPDATE users SET refresh_token = '', updated_at = `+h.DB.NowUTC()+` WHERE id = ?`,
		userID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, map[string]interface{}{}, "User logged out successfully")
}

// HandleRefreshToken rotates the token pair. The presented refresh token
// must be valid AND match the one stored for the user; a reused or
// superseded token is rejected.
func (h *Handler) HandleRefreshToken(w http.ResponseWriter, r *http.Request) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		httputil.WriteError(w, apperror.Unauthorized("Refresh token is required"))
		return
	}

	userID, err := ParseToken(req.RefreshToken, h.JWTSecret, tokenTypeRefresh)
	if err != nil {
		httputil.WriteError(w, apperror.Unauthorized("Invalid or expired refresh token"))
		return
	}

	var stored string
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT refresh_token FROM users WHERE id = ?`, userID).Scan(&stored); err != nil {
		httputil.WriteError(w, apperror.Unauthorized("Invalid or expired refresh token"))
		return
	}
	if stored == "" || stored != req.RefreshToken {
		httputil.WriteError(w, apperror.Unauthorized("Refresh token has been revoked"))
		return
	}

	access, refresh, err := h.issueTokenPair(r, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, map[string]string{
		"accessToken":  access,
		"refreshToken": refresh,
	}, "Access token refreshed")
}

// HandleCurrentUser returns the authenticated user's profile.
func (h *Handler) HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(UserIDKey).(string)
	user, err := h.loadUser(r, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, user, "Current user fetched successfully")
}

// HandleChangePassword verifies the old password and stores the new one.
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(UserIDKey).(string)
	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperror.Validation("Invalid request body"))
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		httputil.WriteError(w, apperror.Validation("Old and new password are required"))
		return
	}
	if len(req.NewPassword) < 8 || len(req.NewPassword) > maxPasswordLen {
		httputil.WriteError(w, apperror.Validation("Password must be between 8 and 72 characters"))
		return
	}

	var hash string
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT password_hash FROM users WHERE id = ?`, userID).Scan(&hash); err != nil {
		httputil.WriteError(w, apperror.NotFound("User"))
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.OldPassword)) != nil {
		httputil.WriteError(w, apperror.Validation("Old password is incorrect"))
		return
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if _, err := h.DB.ExecContext(r.Context(),
		`UPDATE users SET password_hash = ?, updated_at = `+h.DB.NowUTC()+` WHERE id = ?`,
		string(newHash), userID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, map[string]interface{}{}, "Password changed successfully")
}

// HandleUpdateAccount updates fullName and/or email.
func (h *Handler) HandleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(UserIDKey).(string)
	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	var req struct {
		FullName string `json:"fullName"`
		Email    string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperror.Validation("Invalid request body"))
		return
	}
	fullName := strings.TrimSpace(req.FullName)
	email := strings.TrimSpace(req.Email)
	if fullName == "" && email == "" {
		httputil.WriteError(w, apperror.Validation("At least one of fullName or email is required"))
		return
	}
	if email != "" && (!strings.Contains(email, "@") || len(email) < 5) {
		httputil.WriteError(w, apperror.Validation("A valid email address is required"))
		return
	}

	_, err := h.DB.ExecContext(r.Context(), `
		UPDATE users SET
			full_name = CASE WHEN ? = '' THEN full_name ELSE ? END,
			email     = CASE WHEN ? = '' THEN email     ELSE ? END,
			updated_at = `+h.DB.NowUTC()+`
		WHERE id = ?
	`, fullName, fullName, email, email, userID)
	if err != nil {
		if isUniqueViolation(err) {
			httputil.WriteError(w, apperror.Conflict("Email already in use"))
			return
		}
		httputil.WriteError(w, err)
		return
	}

	user, err := h.loadUser(r, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, user, "Account details updated successfully")
}

// HandleUpdateAvatar replaces the user's avatar image and deletes the
// previous object from the media host.
func (h *Handler) HandleUpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, "avatar", "avatar_url", "avatar_key", "Avatar updated successfully")
}

// HandleUpdateCoverImage replaces the user's cover image.
func (h *Handler) HandleUpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, "coverImage", "cover_url", "cover_key", "Cover image updated successfully")
}

func (h *Handler) replaceImage(w http.ResponseWriter, r *http.Request, field, urlCol, keyCol, message string) {
	userID := r.Context().Value(UserIDKey).(string)
	if err := r.ParseMultipartForm(maxImageUpload); err != nil {
		httputil.WriteError(w, apperror.Validation("Invalid multipart form"))
		return
	}

	var oldKey string
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT `+keyCol+` FROM users WHERE id = ?`, userID).Scan(&oldKey); err != nil {
		httputil.WriteError(w, apperror.NotFound("User"))
		return
	}

	obj, err := h.uploadImage(r, field)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if _, err := h.DB.ExecContext(r.Context(),
		`UPDATE users SET `+urlCol+` = ?, `+keyCol+` = ?, updated_at = `+h.DB.NowUTC()+` WHERE id = ?`,
		obj.URL, obj.Key, userID); err != nil {
		h.removeObject(r, obj.Key)
		httputil.WriteError(w, err)
		return
	}
	h.removeObject(r, oldKey)

	user, err := h.loadUser(r, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, user, message)
}

// uploadImage reads a required image file field and stores it.
func (h *Handler) uploadImage(r *http.Request, field string) (media.Object, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return media.Object{}, apperror.Validationf("%s file is required", field)
	}
	defer file.Close()
	return h.storeImage(r, file, header, field)
}

// uploadOptionalImage is uploadImage for a field that may be absent.
func (h *Handler) uploadOptionalImage(r *http.Request, field string) (media.Object, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return media.Object{}, nil
	}
	defer file.Close()
	return h.storeImage(r, file, header, field)
}

func (h *Handler) storeImage(r *http.Request, file multipart.File, header *multipart.FileHeader, field string) (media.Object, error) {
	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return media.Object{}, apperror.Validationf("%s must be an image", field)
	}
	obj, err := h.Media.Upload(r.Context(), "images", file, header.Size, contentType, header.Filename)
	if err != nil {
		return media.Object{}, apperror.Upstream("Failed to upload "+field, err)
	}
	return obj, nil
}

func (h *Handler) removeObject(r *http.Request, key string) {
	if key == "" || h.Media == nil {
		return
	}
	// Best effort: a stale object on the media host is not a request failure.
	_ = h.Media.Remove(r.Context(), key)
}

// isUniqueViolation detects duplicate-key errors from both dialects.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE") || strings.Contains(msg, "duplicate key")
}
