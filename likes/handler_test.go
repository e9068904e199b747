package likes

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Surya1712/VideoTubes/auth"
	"github.com/Surya1712/VideoTubes/db"
)

func newTestHandler(t *testing.T) *Handler {
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
	return &Handler{DB: db.NewCompatDB(raw, db.DialectSQLite)}
}

func insertUser(t *testing.T, d *db.CompatDB, username string) string {
	t.Helper()
	id := uuid.New().String()
	if _, err := d.ExecContext(context.Background(), `
		INSERT INTO users (id, username, email, full_name, password_hash)
		VALUES (?, ?, ?, ?, 'x')
	`, id, username, username+"@test.com", "Test "+username); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}

func insertVideo(t *testing.T, d *db.CompatDB, ownerID string) string {
	t.Helper()
	id := uuid.New().String()
	if _, err := d.ExecContext(context.Background(), `
		INSERT INTO videos (id, owner_id, title, video_url) VALUES (?, ?, 'clip', '/v.mp4')
	`, id, ownerID); err != nil {
		t.Fatalf("insert video: %v", err)
	}
	return id
}

func toggleRequest(userID, param, id string) *http.Request {
	req := httptest.NewRequest("POST", "/api/v1/likes/toggle", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, userID))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(param, id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	return m["data"].(map[string]interface{})
}

func TestToggleVideoLikeDoubleToggle(t *testing.T) {
	h := newTestHandler(t)
	owner := insertUser(t, h.DB, "alice")
	videoID := insertVideo(t, h.DB, owner)

	rec := httptest.NewRecorder()
	h.HandleToggleVideoLike(rec, toggleRequest(owner, "videoId", videoID))
	if rec.Code != 200 {
		t.Fatalf("first toggle = %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeData(t, rec)
	if data["isLiked"] != true || data["likesCount"].(float64) != 1 {
		t.Fatalf("after like: %v", data)
	}

	rec = httptest.NewRecorder()
	h.HandleToggleVideoLike(rec, toggleRequest(owner, "videoId", videoID))
	data = decodeData(t, rec)
	if data["isLiked"] != false || data["likesCount"].(float64) != 0 {
		t.Fatalf("after unlike: %v", data)
	}

	var rows int
	h.DB.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM likes WHERE video_id = ?`, videoID).Scan(&rows)
	if rows != 0 {
		t.Fatalf("like rows = %d, want 0 after double toggle", rows)
	}
}

func TestToggleLikeMissingTarget(t *testing.T) {
	h := newTestHandler(t)
	user := insertUser(t, h.DB, "alice")

	rec := httptest.NewRecorder()
	h.HandleToggleVideoLike(rec, toggleRequest(user, "videoId", uuid.New().String()))
	if rec.Code != 404 {
		t.Fatalf("missing video = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.HandleToggleCommentLike(rec, toggleRequest(user, "commentId", "garbage"))
	if rec.Code != 400 {
		t.Fatalf("bad comment id = %d, want 400", rec.Code)
	}
}

func TestToggleTweetLike(t *testing.T) {
	h := newTestHandler(t)
	user := insertUser(t, h.DB, "alice")
	tweetID := uuid.New().String()
	h.DB.ExecContext(context.Background(),
		`INSERT INTO tweets (id, owner_id, content) VALUES (?, ?, 'hello')`, tweetID, user)

	rec := httptest.NewRecorder()
	h.HandleToggleTweetLike(rec, toggleRequest(user, "tweetId", tweetID))
	data := decodeData(t, rec)
	if data["tweetId"] != tweetID || data["isLiked"] != true {
		t.Fatalf("tweet toggle: %v", data)
	}
}

func TestLikedVideosOrder(t *testing.T) {
	h := newTestHandler(t)
	owner := insertUser(t, h.DB, "alice")
	v1 := insertVideo(t, h.DB, owner)
	v2 := insertVideo(t, h.DB, owner)

	ctx := context.Background()
	h.DB.ExecContext(ctx,
		`INSERT INTO likes (id, user_id, video_id, created_at) VALUES (?, ?, ?, '2026-01-01T00:00:00Z')`,
		uuid.New().String(), owner, v1)
	h.DB.ExecContext(ctx,
		`INSERT INTO likes (id, user_id, video_id, created_at) VALUES (?, ?, ?, '2026-02-01T00:00:00Z')`,
		uuid.New().String(), owner, v2)

	req := httptest.NewRequest("GET", "/api/v1/likes/videos", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, owner))
	rec := httptest.NewRecorder()
	h.HandleLikedVideos(rec, req)
	if rec.Code != 200 {
		t.Fatalf("liked videos = %d", rec.Code)
	}
	data := decodeData(t, rec)
	docs := data["docs"].([]interface{})
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want 2", len(docs))
	}
	first := docs[0].(map[string]interface{})
	if first["id"] != v2 {
		t.Fatal("expected most recently liked video first")
	}
}
