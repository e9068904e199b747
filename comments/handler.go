// Package comments implements single-level threaded comments on videos.
package comments

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

const maxCommentLen = 2000

// Handler holds dependencies for comment endpoints.
type Handler struct {
	DB *db.CompatDB
}

type commentDoc struct {
	ID         string      `json:"id"`
	Content    string      `json:"content"`
	VideoID    string      `json:"videoId"`
	ParentID   *string     `json:"parentCommentId,omitempty"`
	CreatedAt  string      `json:"createdAt"`
	UpdatedAt  string      `json:"updatedAt"`
	Owner      interface{} `json:"owner"`
	LikesCount int         `json:"likesCount"`
	IsLiked    bool        `json:"isLiked"`
	ReplyCount int         `json:"replyCount"`
}

type ownerDoc struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar"`
}

func (h *Handler) videoExists(r *http.Request, videoID string) error {
	if uuid.Validate(videoID) != nil {
		return apperror.Validation("Invalid video ID")
	}
	var n int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM videos WHERE id = ?`, videoID).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("Video")
	}
	return nil
}

// queryCommentDocs runs the annotated comment select. The tail holds
// everything after WHERE, including any ORDER BY and LIMIT.
func (h *Handler) queryCommentDocs(r *http.Request, callerID, tail string, args ...interface{}) ([]commentDoc, error) {
	queryArgs := append([]interface{}{callerID}, args...)
	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT c.id, c.content, c.video_id, c.parent_id, c.created_at, c.updated_at,
		       u.id, u.username, u.full_name, u.avatar_url,
		       (SELECT COUNT(*) FROM likes l WHERE l.comment_id = c.id),
		       (SELECT COUNT(*) FROM likes l WHERE l.comment_id = c.id AND l.user_id = ?),
		       (SELECT COUNT(*) FROM comments x WHERE x.parent_id = c.id)
		FROM comments c
		JOIN users u ON c.owner_id = u.id
		WHERE `+tail, queryArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]commentDoc, 0)
	for rows.Next() {
		var d commentDoc
		var o ownerDoc
		var parent sql.NullString
		var liked int
		if err := rows.Scan(&d.ID, &d.Content, &d.VideoID, &parent, &d.CreatedAt, &d.UpdatedAt,
			&o.ID, &o.Username, &o.FullName, &o.Avatar,
			&d.LikesCount, &liked, &d.ReplyCount); err != nil {
			return nil, err
		}
		if parent.Valid {
			d.ParentID = &parent.String
		}
		d.IsLiked = liked > 0
		d.Owner = o
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// HandleListComments serves GET /comments/{videoId}: the video's
// top-level comments, newest first.
func (h *Handler) HandleListComments(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoId")
	callerID, _ := auth.ExtractUserID(r)

	if err := h.videoExists(r, videoID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	page, limit, offset := httputil.PageParams(r, 10)
	var total int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM comments WHERE video_id = ? AND parent_id IS NULL`,
		videoID).Scan(&total); err != nil {
		httputil.WriteError(w, err)
		return
	}

	docs, err := h.queryCommentDocs(r, callerID,
		`c.video_id = ? AND c.parent_id IS NULL ORDER BY c.created_at DESC LIMIT ? OFFSET ?`,
		videoID, limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, httputil.NewPage(docs, total, page, limit),
		"Comments fetched successfully")
}

// HandleListReplies serves GET /comments/{videoId}/replies/{commentId}.
func (h *Handler) HandleListReplies(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoId")
	commentID := chi.URLParam(r, "commentId")
	callerID, _ := auth.ExtractUserID(r)

	if err := h.videoExists(r, videoID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if uuid.Validate(commentID) != nil {
		httputil.WriteError(w, apperror.Validation("Invalid comment ID"))
		return
	}

	page, limit, offset := httputil.PageParams(r, 10)
	var total int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM comments WHERE parent_id = ? AND video_id = ?`,
		commentID, videoID).Scan(&total); err != nil {
		httputil.WriteError(w, err)
		return
	}

	docs, err := h.queryCommentDocs(r, callerID,
		`c.parent_id = ? AND c.video_id = ? ORDER BY c.created_at DESC LIMIT ? OFFSET ?`,
		commentID, videoID, limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, httputil.NewPage(docs, total, page, limit),
		"Replies fetched successfully")
}

// HandleAddComment serves POST /comments/{videoId}. A parentCommentId
// makes it a reply; replies to replies are rejected so threads stay one
// level deep.
func (h *Handler) HandleAddComment(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)
	videoID := chi.URLParam(r, "videoId")

	if err := h.videoExists(r, videoID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	var req struct {
		Content         string `json:"content"`
		ParentCommentID string `json:"parentCommentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperror.Validation("Invalid request body"))
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		httputil.WriteError(w, apperror.Validation("Comment content is required"))
		return
	}
	if len(content) > maxCommentLen {
		httputil.WriteError(w, apperror.Validationf("Comment must be at most %d characters", maxCommentLen))
		return
	}

	var parentID interface{}
	if req.ParentCommentID != "" {
		if uuid.Validate(req.ParentCommentID) != nil {
			httputil.WriteError(w, apperror.Validation("Invalid parent comment ID"))
			return
		}
		var parentVideo string
		var parentParent sql.NullString
		err := h.DB.QueryRowContext(r.Context(),
			`SELECT video_id, parent_id FROM comments WHERE id = ?`,
			req.ParentCommentID).Scan(&parentVideo, &parentParent)
		if err == sql.ErrNoRows {
			httputil.WriteError(w, apperror.NotFound("Parent comment"))
			return
		}
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if parentVideo != videoID {
			httputil.WriteError(w, apperror.Validation("Parent comment belongs to a different video"))
			return
		}
		if parentParent.Valid {
			httputil.WriteError(w, apperror.Validation("Replies can only be one level deep"))
			return
		}
		parentID = req.ParentCommentID
	}

	commentID := uuid.New().String()
	if _, err := h.DB.ExecContext(r.Context(), `
		INSERT INTO comments (id, video_id, owner_id, parent_id, content)
		VALUES (?, ?, ?, ?, ?)
	`, commentID, videoID, userID, parentID, content); err != nil {
		httputil.WriteError(w, err)
		return
	}

	docs, err := h.queryCommentDocs(r, userID, `c.id = ?`, commentID)
	if err != nil || len(docs) == 0 {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 201, docs[0], "Comment added successfully")
}

func (h *Handler) loadCommentOwner(r *http.Request, commentID string) (string, error) {
	if uuid.Validate(commentID) != nil {
		return "", apperror.Validation("Invalid comment ID")
	}
	var ownerID string
	err := h.DB.QueryRowContext(r.Context(),
		`SELECT owner_id FROM comments WHERE id = ?`, commentID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return "", apperror.NotFound("Comment")
	}
	return ownerID, err
}

// HandleUpdateComment serves PATCH /comments/c/{commentId}, owner-only.
func (h *Handler) HandleUpdateComment(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)
	commentID := chi.URLParam(r, "commentId")

	ownerID, err := h.loadCommentOwner(r, commentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if ownerID != userID {
		httputil.WriteError(w, apperror.Forbidden("You are not authorized to update this comment"))
		return
	}

	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperror.Validation("Invalid request body"))
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		httputil.WriteError(w, apperror.Validation("Comment content is required"))
		return
	}
	if len(content) > maxCommentLen {
		httputil.WriteError(w, apperror.Validationf("Comment must be at most %d characters", maxCommentLen))
		return
	}

	if _, err := h.DB.ExecContext(r.Context(),
		`UPDATE comments SET content = ?, updated_at = `+h.DB.NowUTC()+` WHERE id = ?`,
		content, commentID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	docs, err := h.queryCommentDocs(r, userID, `c.id = ?`, commentID)
	if err != nil || len(docs) == 0 {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, docs[0], "Comment updated successfully")
}

// HandleDeleteComment serves DELETE /comments/c/{commentId}, owner-only.
// Likes on the comment, its replies and the replies' likes go with it.
func (h *Handler) HandleDeleteComment(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)
	commentID := chi.URLParam(r, "commentId")

	ownerID, err := h.loadCommentOwner(r, commentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if ownerID != userID {
		httputil.WriteError(w, apperror.Forbidden("You are not authorized to delete this comment"))
		return
	}

	// Likes first: the reply subquery needs the reply rows still present.
	if _, err := h.DB.ExecContext(r.Context(), `
		DELETE FROM likes WHERE comment_id = ? OR comment_id IN
		(SELECT id FROM comments WHERE parent_id = ?)
	`, commentID, commentID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if _, err := h.DB.ExecContext(r.Context(),
		`DELETE FROM comments WHERE id = ? OR parent_id = ?`,
		commentID, commentID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteData(w, 200, map[string]string{"commentId": commentID},
		"Comment deleted successfully")
}
