// Package likes implements the like toggles for videos, comments and
// tweets, plus the caller's liked-videos listing.
package likes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Surya1712/VideoTubes/apperror"
	"github.com/Surya1712/VideoTubes/auth"
	"github.com/Surya1712/VideoTubes/db"
	"github.com/Surya1712/VideoTubes/httputil"
)

// Handler holds dependencies for like endpoints.
type Handler struct {
	DB *db.CompatDB
}

// likeTarget describes one toggleable target kind.
type likeTarget struct {
	table    string // table the target row lives in
	column   string // likes column referencing it
	label    string // JSON field name in the response
	name     string // human name for errors and messages
	urlParam string
}

var (
	videoTarget   = likeTarget{"videos", "video_id", "videoId", "Video", "videoId"}
	commentTarget = likeTarget{"comments", "comment_id", "commentId", "Comment", "commentId"}
	tweetTarget   = likeTarget{"tweets", "tweet_id", "tweetId", "Tweet", "tweetId"}
)

// HandleToggleVideoLike serves POST /likes/toggle/v/{videoId}.
func (h *Handler) HandleToggleVideoLike(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, videoTarget)
}

// HandleToggleCommentLike serves POST /likes/toggle/c/{commentId}.
func (h *Handler) HandleToggleCommentLike(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, commentTarget)
}

// HandleToggleTweetLike serves POST /likes/toggle/t/{tweetId}.
func (h *Handler) HandleToggleTweetLike(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, tweetTarget)
}

// toggle is the shared two-state check-then-write toggle. There is no
// unique constraint backing it, so two concurrent toggles by the same
// user can both insert; the API contract accepts that race rather than
// serializing writes.
func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, t likeTarget) {
	userID := r.Context().Value(auth.UserIDKey).(string)
	targetID := chi.URLParam(r, t.urlParam)
	if uuid.Validate(targetID) != nil {
		httputil.WriteError(w, apperror.Validation("Invalid "+t.name+" ID"))
		return
	}

	var exists int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM `+t.table+` WHERE id = ?`, targetID).Scan(&exists); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if exists == 0 {
		httputil.WriteError(w, apperror.NotFound(t.name))
		return
	}

	var liked int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM likes WHERE user_id = ? AND `+t.column+` = ?`,
		userID, targetID).Scan(&liked); err != nil {
		httputil.WriteError(w, err)
		return
	}

	isLiked := liked == 0
	if isLiked {
		if _, err := h.DB.ExecContext(r.Context(),
			`INSERT INTO likes (id, user_id, `+t.column+`) VALUES (?, ?, ?)`,
			uuid.New().String(), userID, targetID); err != nil {
			httputil.WriteError(w, err)
			return
		}
	} else {
		if _, err := h.DB.ExecContext(r.Context(),
			`DELETE FROM likes WHERE user_id = ? AND `+t.column+` = ?`,
			userID, targetID); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	var count int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM likes WHERE `+t.column+` = ?`, targetID).Scan(&count); err != nil {
		httputil.WriteError(w, err)
		return
	}

	message := t.name + " unliked successfully"
	if isLiked {
		message = t.name + " liked successfully"
	}
	httputil.WriteData(w, 200, map[string]interface{}{
		t.label:      targetID,
		"isLiked":    isLiked,
		"likesCount": count,
	}, message)
}

// HandleLikedVideos serves GET /likes/videos: videos the caller liked,
// most recently liked first.
func (h *Handler) HandleLikedVideos(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)
	page, limit, offset := httputil.PageParams(r, 10)

	var total int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM likes l JOIN videos v ON l.video_id = v.id WHERE l.user_id = ?`,
		userID).Scan(&total); err != nil {
		httputil.WriteError(w, err)
		return
	}

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT v.id, v.title, v.description, v.video_url, v.thumbnail_url,
		       v.duration, v.views, v.created_at, l.created_at,
		       u.id, u.username, u.full_name, u.avatar_url
		FROM likes l
		JOIN videos v ON l.video_id = v.id
		JOIN users u ON v.owner_id = u.id
		WHERE l.user_id = ?
		ORDER BY l.created_at DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer rows.Close()

	docs := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, title, description, videoURL, thumbURL, createdAt, likedAt string
		var ownerID, username, fullName, avatar string
		var duration float64
		var views int64
		if err := rows.Scan(&id, &title, &description, &videoURL, &thumbURL,
			&duration, &views, &createdAt, &likedAt,
			&ownerID, &username, &fullName, &avatar); err != nil {
			httputil.WriteError(w, err)
			return
		}
		docs = append(docs, map[string]interface{}{
			"id": id, "title": title, "description": description,
			"videoFile": videoURL, "thumbnail": thumbURL,
			"duration": duration, "views": views,
			"createdAt": createdAt, "likedAt": likedAt,
			"owner": map[string]string{
				"id": ownerID, "username": username,
				"fullName": fullName, "avatar": avatar,
			},
		})
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, httputil.NewPage(docs, total, page, limit),
		"Liked videos fetched successfully")
}
