// Package tweets implements the short text posts attached to a channel.
package tweets

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Surya1712/VideoTubes/apperror"
	"github.com/Surya1712/VideoTubes/auth"
	"github.com/Surya1712/VideoTubes/db"
	"github.com/Surya1712/VideoTubes/httputil"
)

const maxTweetLen = 500

// Handler holds dependencies for tweet endpoints.
type Handler struct {
	DB *db.CompatDB
}

type tweetDoc struct {
	ID         string      `json:"id"`
	Content    string      `json:"content"`
	CreatedAt  string      `json:"createdAt"`
	UpdatedAt  string      `json:"updatedAt"`
	Owner      interface{} `json:"owner"`
	LikesCount int         `json:"likesCount"`
	IsLiked    bool        `json:"isLiked"`
}

func readContent(w http.ResponseWriter, r *http.Request) (string, bool) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperror.Validation("Invalid request body"))
		return "", false
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		httputil.WriteError(w, apperror.Validation("Tweet content is required"))
		return "", false
	}
	if len(content) > maxTweetLen {
		httputil.WriteError(w, apperror.Validationf("Tweet must be at most %d characters", maxTweetLen))
		return "", false
	}
	return content, true
}

func (h *Handler) loadTweetDoc(r *http.Request, callerID, tweetID string) (tweetDoc, error) {
	var d tweetDoc
	var ownerID, username, fullName, avatar string
	var liked int
	err := h.DB.QueryRowContext(r.Context(), `
		SELECT t.id, t.content, t.created_at, t.updated_at,
		       u.id, u.username, u.full_name, u.avatar_url,
		       (SELECT COUNT(*) FROM likes l WHERE l.tweet_id = t.id),
		       (SELECT COUNT(*) FROM likes l WHERE l.tweet_id = t.id AND l.user_id = ?)
		FROM tweets t
		JOIN users u ON t.owner_id = u.id
		WHERE t.id = ?
	`, callerID, tweetID).Scan(&d.ID, &d.Content, &d.CreatedAt, &d.UpdatedAt,
		&ownerID, &username, &fullName, &avatar, &d.LikesCount, &liked)
	if err == sql.ErrNoRows {
		return tweetDoc{}, apperror.NotFound("Tweet")
	}
	if err != nil {
		return tweetDoc{}, err
	}
	d.IsLiked = liked > 0
	d.Owner = map[string]string{
		"id": ownerID, "username": username,
		"fullName": fullName, "avatar": avatar,
	}
	return d, nil
}

// HandleCreateTweet serves POST /tweets.
func (h *Handler) HandleCreateTweet(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)
	content, ok := readContent(w, r)
	if !ok {
		return
	}

	tweetID := uuid.New().String()
	if _, err := h.DB.ExecContext(r.Context(),
		`INSERT INTO tweets (id, owner_id, content) VALUES (?, ?, ?)`,
		tweetID, userID, content); err != nil {
		httputil.WriteError(w, err)
		return
	}

	doc, err := h.loadTweetDoc(r, userID, tweetID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 201, doc, "Tweet created successfully")
}

func (h *Handler) loadTweetOwner(r *http.Request, tweetID string) (string, error) {
	if uuid.Validate(tweetID) != nil {
		return "", apperror.Validation("Invalid tweet ID")
	}
	var ownerID string
	err := h.DB.QueryRowContext(r.Context(),
		`SELECT owner_id FROM tweets WHERE id = ?`, tweetID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return "", apperror.NotFound("Tweet")
	}
	return ownerID, err
}

// HandleUpdateTweet serves PATCH /tweets/{tweetId}, owner-only.
func (h *Handler) HandleUpdateTweet(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)
	tweetID := chi.URLParam(r, "tweetId")

	ownerID, err := h.loadTweetOwner(r, tweetID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if ownerID != userID {
		httputil.WriteError(w, apperror.Forbidden("You are not authorized to update this tweet"))
		return
	}

	content, ok := readContent(w, r)
	if !ok {
		return
	}

	if _, err := h.DB.ExecContext(r.Context(),
		`UPDATE tweets SET content = ?, updated_at = `+h.DB.NowUTC()+` WHERE id = ?`,
		content, tweetID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	doc, err := h.loadTweetDoc(r, userID, tweetID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, doc, "Tweet updated successfully")
}

// HandleDeleteTweet serves DELETE /tweets/{tweetId}, owner-only. The
// tweet's likes are removed with it.
func (h *Handler) HandleDeleteTweet(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)
	tweetID := chi.URLParam(r, "tweetId")

	ownerID, err := h.loadTweetOwner(r, tweetID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if ownerID != userID {
		httputil.WriteError(w, apperror.Forbidden("You are not authorized to delete this tweet"))
		return
	}

	if _, err := h.DB.ExecContext(r.Context(),
		`DELETE FROM likes WHERE tweet_id = ?`, tweetID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if _, err := h.DB.ExecContext(r.Context(),
		`DELETE FROM tweets WHERE id = ?`, tweetID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, map[string]string{"tweetId": tweetID},
		"Tweet deleted successfully")
}

// HandleUserTweets serves GET /tweets/user/{userId}, newest first.
func (h *Handler) HandleUserTweets(w http.ResponseWriter, r *http.Request) {
	callerID, _ := auth.ExtractUserID(r)
	userID := chi.URLParam(r, "userId")
	if uuid.Validate(userID) != nil {
		httputil.WriteError(w, apperror.Validation("Invalid user ID"))
		return
	}

	page, limit, offset := httputil.PageParams(r, 10)
	var total int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM tweets WHERE owner_id = ?`, userID).Scan(&total); err != nil {
		httputil.WriteError(w, err)
		return
	}

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT t.id, t.content, t.created_at, t.updated_at,
		       u.id, u.username, u.full_name, u.avatar_url,
		       (SELECT COUNT(*) FROM likes l WHERE l.tweet_id = t.id),
		       (SELECT COUNT(*) FROM likes l WHERE l.tweet_id = t.id AND l.user_id = ?)
		FROM tweets t
		JOIN users u ON t.owner_id = u.id
		WHERE t.owner_id = ?
		ORDER BY t.created_at DESC
		LIMIT ? OFFSET ?
	`, callerID, userID, limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer rows.Close()

	docs := make([]tweetDoc, 0)
	for rows.Next() {
		var d tweetDoc
		var ownerID, username, fullName, avatar string
		var liked int
		if err := rows.Scan(&d.ID, &d.Content, &d.CreatedAt, &d.UpdatedAt,
			&ownerID, &username, &fullName, &avatar, &d.LikesCount, &liked); err != nil {
			httputil.WriteError(w, err)
			return
		}
		d.IsLiked = liked > 0
		d.Owner = map[string]string{
			"id": ownerID, "username": username,
			"fullName": fullName, "avatar": avatar,
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, httputil.NewPage(docs, total, page, limit),
		"Tweets fetched successfully")
}
