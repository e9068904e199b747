package auth

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/go-chi/chi/v5"
	_ "modernc.org/sqlite"

	"github.com/Surya1712/VideoTubes/db"
	"github.com/Surya1712/VideoTubes/media"
)

// --- helpers ---

type fakeStore struct {
	uploads int
	removed []string
}

func (f *fakeStore) Upload(ctx context.Context, folder string, r io.Reader, size int64, contentType, filename string) (media.Object, error) {
	f.uploads++
	key := folder + "/" + filename
	return media.Object{URL: "/storage/test/" + key, Key: key}, nil
}

func (f *fakeStore) Remove(ctx context.Context, key string) error {
	f.removed = append(f.removed, key)
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *fakeStore) {
	t.Helper()
	raw, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	raw.SetMaxOpenConns(1)
	if err := db.RunMigrations(raw, db.DialectSQLite); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	store := &fakeStore{}
	return &Handler{
		DB:        db.NewCompatDB(raw, db.DialectSQLite),
		Media:     store,
		JWTSecret: "test-secret",
	}, store
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	return m
}

// multipartBody builds a register-style form with an image part per
// given file field.
func multipartBody(t *testing.T, fields map[string]string, files ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	for _, field := range files {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+field+`.png"`)
		hdr.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write([]byte("png-bytes"))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func registerUser(t *testing.T, h *Handler, username string) string {
	t.Helper()
	body, contentType := multipartBody(t, map[string]string{
		"fullName": "Test " + username,
		"email":    username + "@test.com",
		"username": username,
		"password": "password123",
	}, "avatar")
	req := httptest.NewRequest("POST", "/api/v1/users/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.HandleRegister(rec, req)
	if rec.Code != 201 {
		t.Fatalf("register failed: %d %s", rec.Code, rec.Body.String())
	}
	data := decodeJSON(t, rec)["data"].(map[string]interface{})
	return data["id"].(string)
}

func authedRequest(method, url string, body interface{}, userID string) *http.Request {
	var b []byte
	if body != nil {
		b, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(context.WithValue(req.Context(), UserIDKey, userID))
	}
	return req
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// --- register ---

func TestRegisterAndLogin(t *testing.T) {
	h, _ := newTestHandler(t)
	registerUser(t, h, "alice")

	req := authedRequest("POST", "/api/v1/users/login",
		map[string]string{"username": "alice", "password": "password123"}, "")
	rec := httptest.NewRecorder()
	h.HandleLogin(rec, req)
	if rec.Code != 200 {
		t.Fatalf("login = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	data := decodeJSON(t, rec)["data"].(map[string]interface{})
	if data["accessToken"] == "" || data["refreshToken"] == "" {
		t.Fatal("expected a token pair")
	}
	user := data["user"].(map[string]interface{})
	if user["username"] != "alice" {
		t.Fatalf("username = %v", user["username"])
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	h, _ := newTestHandler(t)
	registerUser(t, h, "alice")

	body, contentType := multipartBody(t, map[string]string{
		"fullName": "Another Alice",
		"email":    "other@test.com",
		"username": "alice",
		"password": "password123",
	}, "avatar")
	req := httptest.NewRequest("POST", "/api/v1/users/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.HandleRegister(rec, req)
	if rec.Code != 409 {
		t.Fatalf("duplicate register = %d, want 409", rec.Code)
	}
}

func TestRegisterMissingAvatar(t *testing.T) {
	h, _ := newTestHandler(t)
	body, contentType := multipartBody(t, map[string]string{
		"fullName": "Bob",
		"email":    "bob@test.com",
		"username": "bob",
		"password": "password123",
	})
	req := httptest.NewRequest("POST", "/api/v1/users/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.HandleRegister(rec, req)
	if rec.Code != 400 {
		t.Fatalf("register without avatar = %d, want 400", rec.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	h, _ := newTestHandler(t)
	registerUser(t, h, "alice")

	req := authedRequest("POST", "/api/v1/users/login",
		map[string]string{"username": "alice", "password": "wrong-password"}, "")
	rec := httptest.NewRecorder()
	h.HandleLogin(rec, req)
	if rec.Code != 401 {
		t.Fatalf("login = %d, want 401", rec.Code)
	}
}

// --- refresh token rotation ---

func TestRefreshTokenRotation(t *testing.T) {
	h, _ := newTestHandler(t)
	registerUser(t, h, "alice")

	req := authedRequest("POST", "/api/v1/users/login",
		map[string]string{"username": "alice", "password": "password123"}, "")
	rec := httptest.NewRecorder()
	h.HandleLogin(rec, req)
	first := decodeJSON(t, rec)["data"].(map[string]interface{})["refreshToken"].(string)

	req = authedRequest("POST", "/api/v1/users/refresh-token",
		map[string]string{"refreshToken": first}, "")
	rec = httptest.NewRecorder()
	h.HandleRefreshToken(rec, req)
	if rec.Code != 200 {
		t.Fatalf("refresh = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	// The first token was rotated out; replaying it must fail.
	req = authedRequest("POST", "/api/v1/users/refresh-token",
		map[string]string{"refreshToken": first}, "")
	rec = httptest.NewRecorder()
	h.HandleRefreshToken(rec, req)
	if rec.Code != 401 {
		t.Fatalf("replayed refresh = %d, want 401", rec.Code)
	}
}

func TestAccessTokenRejectedAsRefresh(t *testing.T) {
	h, _ := newTestHandler(t)
	userID := registerUser(t, h, "alice")

	access := GenerateAccessToken(userID, h.JWTSecret)
	req := authedRequest("POST", "/api/v1/users/refresh-token",
		map[string]string{"refreshToken": access}, "")
	rec := httptest.NewRecorder()
	h.HandleRefreshToken(rec, req)
	if rec.Code != 401 {
		t.Fatalf("access-as-refresh = %d, want 401", rec.Code)
	}
}

// --- middleware ---

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	h, _ := newTestHandler(t)
	called := false
	next := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	rec := httptest.NewRecorder()
	next.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/users/current-user", nil))
	if rec.Code != 401 || called {
		t.Fatalf("code = %d called = %v, want 401 and not called", rec.Code, called)
	}
}

func TestMiddlewarePassesValidToken(t *testing.T) {
	h, _ := newTestHandler(t)
	userID := registerUser(t, h, "alice")

	var seen string
	next := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Context().Value(UserIDKey).(string)
	}))
	req := httptest.NewRequest("GET", "/api/v1/users/current-user", nil)
	req.Header.Set("Authorization", "Bearer "+GenerateAccessToken(userID, h.JWTSecret))
	next.ServeHTTP(httptest.NewRecorder(), req)
	if seen != userID {
		t.Fatalf("context user = %q, want %q", seen, userID)
	}
}

// --- password change ---

func TestChangePassword(t *testing.T) {
	h, _ := newTestHandler(t)
	userID := registerUser(t, h, "alice")

	req := authedRequest("POST", "/api/v1/users/change-password",
		map[string]string{"oldPassword": "password123", "newPassword": "newpassword456"}, userID)
	rec := httptest.NewRecorder()
	h.HandleChangePassword(rec, req)
	if rec.Code != 200 {
		t.Fatalf("change password = %d: %s", rec.Code, rec.Body.String())
	}

	req = authedRequest("POST", "/api/v1/users/login",
		map[string]string{"username": "alice", "password": "newpassword456"}, "")
	rec = httptest.NewRecorder()
	h.HandleLogin(rec, req)
	if rec.Code != 200 {
		t.Fatalf("login with new password = %d", rec.Code)
	}
}

func TestChangePasswordWrongOld(t *testing.T) {
	h, _ := newTestHandler(t)
	userID := registerUser(t, h, "alice")

	req := authedRequest("POST", "/api/v1/users/change-password",
		map[string]string{"oldPassword": "nope", "newPassword": "newpassword456"}, userID)
	rec := httptest.NewRecorder()
	h.HandleChangePassword(rec, req)
	if rec.Code != 400 {
		t.Fatalf("change password = %d, want 400", rec.Code)
	}
}

// --- avatar replacement ---

func TestUpdateAvatarRemovesOldObject(t *testing.T) {
	h, store := newTestHandler(t)
	userID := registerUser(t, h, "alice")

	body, contentType := multipartBody(t, nil, "avatar")
	req := httptest.NewRequest("PATCH", "/api/v1/users/avatar", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(context.WithValue(req.Context(), UserIDKey, userID))
	rec := httptest.NewRecorder()
	h.HandleUpdateAvatar(rec, req)
	if rec.Code != 200 {
		t.Fatalf("update avatar = %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.removed) != 1 {
		t.Fatalf("removed objects = %d, want 1 (the old avatar)", len(store.removed))
	}
}

// --- channel profile ---

func TestChannelProfile(t *testing.T) {
	h, _ := newTestHandler(t)
	aliceID := registerUser(t, h, "alice")
	bobID := registerUser(t, h, "bob")

	ctx := context.Background()
	if _, err := h.DB.ExecContext(ctx,
		`INSERT INTO subscriptions (id, subscriber_id, channel_id) VALUES ('s1', ?, ?)`,
		bobID, aliceID); err != nil {
		t.Fatal(err)
	}

	req := withChiParam(authedRequest("GET", "/api/v1/users/c/alice", nil, bobID), "username", "alice")
	rec := httptest.NewRecorder()
	h.HandleChannelProfile(rec, req)
	if rec.Code != 200 {
		t.Fatalf("channel profile = %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeJSON(t, rec)["data"].(map[string]interface{})
	if data["subscribersCount"].(float64) != 1 {
		t.Fatalf("subscribersCount = %v, want 1", data["subscribersCount"])
	}
	if data["isSubscribed"] != true {
		t.Fatal("expected isSubscribed for the subscribed caller")
	}
}

func TestChannelProfileUnknown(t *testing.T) {
	h, _ := newTestHandler(t)
	req := withChiParam(authedRequest("GET", "/api/v1/users/c/ghost", nil, ""), "username", "ghost")
	rec := httptest.NewRecorder()
	h.HandleChannelProfile(rec, req)
	if rec.Code != 404 {
		t.Fatalf("unknown channel = %d, want 404", rec.Code)
	}
}
