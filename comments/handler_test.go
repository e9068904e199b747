package comments

import (
	"bytes"
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

func jsonRequest(method string, body interface{}, userID string) *http.Request {
	var b []byte
	if body != nil {
		b, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, "/api/v1/comments", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, userID))
	}
	return req
}

func withParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	return m["data"]
}

func addComment(t *testing.T, h *Handler, userID, videoID, content, parentID string) string {
	t.Helper()
	body := map[string]string{"content": content}
	if parentID != "" {
		body["parentCommentId"] = parentID
	}
	rec := httptest.NewRecorder()
	h.HandleAddComment(rec, withParams(jsonRequest("POST", body, userID), "videoId", videoID))
	if rec.Code != 201 {
		t.Fatalf("add comment = %d: %s", rec.Code, rec.Body.String())
	}
	return decodeData(t, rec).(map[string]interface{})["id"].(string)
}

func TestAddCommentMissingVideo(t *testing.T) {
	h := newTestHandler(t)
	user := insertUser(t, h.DB, "alice")

	rec := httptest.NewRecorder()
	h.HandleAddComment(rec, withParams(jsonRequest("POST",
		map[string]string{"content": "hi"}, user), "videoId", uuid.New().String()))
	if rec.Code != 404 {
		t.Fatalf("missing video = %d, want 404", rec.Code)
	}
}

func TestListCommentsTopLevelOnly(t *testing.T) {
	h := newTestHandler(t)
	user := insertUser(t, h.DB, "alice")
	videoID := insertVideo(t, h.DB, user)

	top := addComment(t, h, user, videoID, "top level", "")
	addComment(t, h, user, videoID, "a reply", top)

	rec := httptest.NewRecorder()
	h.HandleListComments(rec, withParams(jsonRequest("GET", nil, ""), "videoId", videoID))
	if rec.Code != 200 {
		t.Fatalf("list = %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeData(t, rec).(map[string]interface{})
	docs := data["docs"].([]interface{})
	if len(docs) != 1 {
		t.Fatalf("top-level docs = %d, want 1", len(docs))
	}
	if docs[0].(map[string]interface{})["replyCount"].(float64) != 1 {
		t.Fatal("expected replyCount 1 on the top-level comment")
	}
}

func TestListReplies(t *testing.T) {
	h := newTestHandler(t)
	user := insertUser(t, h.DB, "alice")
	videoID := insertVideo(t, h.DB, user)
	top := addComment(t, h, user, videoID, "top", "")
	addComment(t, h, user, videoID, "reply one", top)
	addComment(t, h, user, videoID, "reply two", top)

	rec := httptest.NewRecorder()
	h.HandleListReplies(rec, withParams(jsonRequest("GET", nil, ""),
		"videoId", videoID, "commentId", top))
	data := decodeData(t, rec).(map[string]interface{})
	if data["totalDocs"].(float64) != 2 {
		t.Fatalf("replies = %v, want 2", data["totalDocs"])
	}
}

func TestReplyDepthLimit(t *testing.T) {
	h := newTestHandler(t)
	user := insertUser(t, h.DB, "alice")
	videoID := insertVideo(t, h.DB, user)
	top := addComment(t, h, user, videoID, "top", "")
	reply := addComment(t, h, user, videoID, "reply", top)

	rec := httptest.NewRecorder()
	h.HandleAddComment(rec, withParams(jsonRequest("POST",
		map[string]string{"content": "reply to reply", "parentCommentId": reply}, user),
		"videoId", videoID))
	if rec.Code != 400 {
		t.Fatalf("nested reply = %d, want 400", rec.Code)
	}
}

func TestReplyWrongVideo(t *testing.T) {
	h := newTestHandler(t)
	user := insertUser(t, h.DB, "alice")
	v1 := insertVideo(t, h.DB, user)
	v2 := insertVideo(t, h.DB, user)
	top := addComment(t, h, user, v1, "on v1", "")

	rec := httptest.NewRecorder()
	h.HandleAddComment(rec, withParams(jsonRequest("POST",
		map[string]string{"content": "cross-video reply", "parentCommentId": top}, user),
		"videoId", v2))
	if rec.Code != 400 {
		t.Fatalf("cross-video reply = %d, want 400", rec.Code)
	}
}

func TestUpdateCommentOwnerOnly(t *testing.T) {
	h := newTestHandler(t)
	owner := insertUser(t, h.DB, "alice")
	stranger := insertUser(t, h.DB, "bob")
	videoID := insertVideo(t, h.DB, owner)
	commentID := addComment(t, h, owner, videoID, "original", "")

	rec := httptest.NewRecorder()
	h.HandleUpdateComment(rec, withParams(jsonRequest("PATCH",
		map[string]string{"content": "hijacked"}, stranger), "commentId", commentID))
	if rec.Code != 403 {
		t.Fatalf("stranger update = %d, want 403", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.HandleUpdateComment(rec, withParams(jsonRequest("PATCH",
		map[string]string{"content": "edited"}, owner), "commentId", commentID))
	if rec.Code != 200 {
		t.Fatalf("owner update = %d: %s", rec.Code, rec.Body.String())
	}
	if decodeData(t, rec).(map[string]interface{})["content"] != "edited" {
		t.Fatal("content not updated")
	}
}

func TestDeleteCommentCascadesReplies(t *testing.T) {
	h := newTestHandler(t)
	owner := insertUser(t, h.DB, "alice")
	videoID := insertVideo(t, h.DB, owner)
	top := addComment(t, h, owner, videoID, "top", "")
	reply := addComment(t, h, owner, videoID, "reply", top)

	ctx := context.Background()
	h.DB.ExecContext(ctx, `INSERT INTO likes (id, user_id, comment_id) VALUES (?, ?, ?)`,
		uuid.New().String(), owner, top)
	h.DB.ExecContext(ctx, `INSERT INTO likes (id, user_id, comment_id) VALUES (?, ?, ?)`,
		uuid.New().String(), owner, reply)

	rec := httptest.NewRecorder()
	h.HandleDeleteComment(rec, withParams(jsonRequest("DELETE", nil, owner), "commentId", top))
	if rec.Code != 200 {
		t.Fatalf("delete = %d: %s", rec.Code, rec.Body.String())
	}

	var comments, likes int
	h.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments`).Scan(&comments)
	h.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM likes`).Scan(&likes)
	if comments != 0 || likes != 0 {
		t.Fatalf("comments = %d likes = %d, want 0/0 after cascade", comments, likes)
	}
}
