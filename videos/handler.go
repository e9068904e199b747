// Package videos implements the video surface: listing with
// search/filter/sort, multipart publish, detail view with its
// view-count/watch-history side effect, owner-only mutation, cascade
// delete and the publish toggle.
package videos

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Surya1712/VideoTubes/apperror"
	"github.com/Surya1712/VideoTubes/auth"
	"github.com/Surya1712/VideoTubes/db"
	"github.com/Surya1712/VideoTubes/httputil"
	"github.com/Surya1712/VideoTubes/media"
)

// maxVideoUpload caps a multipart publish request (video + thumbnail).
const maxVideoUpload = 200 << 20

// Handler holds dependencies for video endpoints.
type Handler struct {
	DB    *db.CompatDB
	Media media.Store
}

// listSortColumns is the allowlist for public listing sort keys. Callers
// never reach arbitrary column names.
var listSortColumns = map[string]string{
	"createdAt": "v.created_at",
	"views":     "v.views",
	"duration":  "v.duration",
	"title":     "v.title",
}

// ownSortColumns is the allowlist for the owner's own-videos listing.
var ownSortColumns = map[string]string{
	"createdAt":   "v.created_at",
	"views":       "v.views",
	"title":       "v.title",
	"isPublished": "v.is_published",
}

func orderClause(r *http.Request, allowed map[string]string) string {
	col, ok := allowed[r.URL.Query().Get("sortBy")]
	if !ok {
		return "v.created_at DESC"
	}
	if r.URL.Query().Get("sortType") == "asc" {
		return col + " ASC"
	}
	return col + " DESC"
}

// videoDoc is the JSON shape of one video row with its owner profile.
type videoDoc struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	VideoFile   string      `json:"videoFile"`
	Thumbnail   string      `json:"thumbnail"`
	Duration    float64     `json:"duration"`
	Views       int64       `json:"views"`
	IsPublished bool        `json:"isPublished"`
	CreatedAt   string      `json:"createdAt"`
	UpdatedAt   string      `json:"updatedAt"`
	Owner       interface{} `json:"owner"`
}

type ownerDoc struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Avatar   string `json:"avatar"`
}

const videoSelectColumns = `
	v.id, v.title, v.description, v.video_url, v.thumbnail_url,
	v.duration, v.views, v.is_published, v.created_at, v.updated_at,
	u.id, u.username, u.full_name, u.avatar_url`

func scanVideoDocs(rows *sql.Rows) ([]videoDoc, error) {
	docs := make([]videoDoc, 0)
	for rows.Next() {
		var d videoDoc
		var o ownerDoc
		var published int
		if err := rows.Scan(&d.ID, &d.Title, &d.Description, &d.VideoFile, &d.Thumbnail,
			&d.Duration, &d.Views, &published, &d.CreatedAt, &d.UpdatedAt,
			&o.ID, &o.Username, &o.FullName, &o.Avatar); err != nil {
			return nil, err
		}
		d.IsPublished = published == 1
		d.Owner = o
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// HandleListVideos serves GET /videos: published videos only, with
// optional substring search, owner filter, allowlisted sort and
// pagination.
func (h *Handler) HandleListVideos(w http.ResponseWriter, r *http.Request) {
	page, limit, offset := httputil.PageParams(r, 10)

	where := []string{"v.is_published = 1"}
	args := []interface{}{}

	if query := strings.TrimSpace(r.URL.Query().Get("query")); query != "" {
		pattern := "%" + db.EscapeLike(strings.ToLower(query)) + "%"
		where = append(where, `(LOWER(v.title) LIKE ? ESCAPE '\' OR LOWER(v.description) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if ownerID := r.URL.Query().Get("userId"); ownerID != "" {
		if uuid.Validate(ownerID) != nil {
			httputil.WriteError(w, apperror.Validation("Invalid userId"))
			return
		}
		where = append(where, "v.owner_id = ?")
		args = append(args, ownerID)
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM videos v WHERE `+whereSQL, args...).Scan(&total); err != nil {
		httputil.WriteError(w, err)
		return
	}

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT `+videoSelectColumns+`
		FROM videos v
		JOIN users u ON v.owner_id = u.id
		WHERE `+whereSQL+`
		ORDER BY `+orderClause(r, listSortColumns)+`
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer rows.Close()

	docs, err := scanVideoDocs(rows)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, httputil.NewPage(docs, total, page, limit),
		"Videos fetched successfully")
}

// HandlePublishVideo serves POST /videos: a multipart form carrying
// title, description, isPublished, videoFile and thumbnail. Both
// binaries go to the media host before the row is written.
func (h *Handler) HandlePublishVideo(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)
	if err := r.ParseMultipartForm(maxVideoUpload); err != nil {
		httputil.WriteError(w, apperror.Validation("Invalid multipart form"))
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	description := strings.TrimSpace(r.FormValue("description"))
	if title == "" {
		httputil.WriteError(w, apperror.Validation("Title is required"))
		return
	}
	if description == "" {
		httputil.WriteError(w, apperror.Validation("Description is required"))
		return
	}
	published := r.FormValue("isPublished") != "false"

	videoObj, duration, err := h.uploadVideoFile(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	thumbObj, err := h.uploadThumbnail(r, true)
	if err != nil {
		h.removeObject(r, videoObj.Key)
		httputil.WriteError(w, err)
		return
	}

	videoID := uuid.New().String()
	isPublished := 0
	if published {
		isPublished = 1
	}
	_, err = h.DB.ExecContext(r.Context(), `
		INSERT INTO videos (id, owner_id, title, description, video_url, video_key,
		                    thumbnail_url, thumbnail_key, duration, views, is_published)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`, videoID, userID, title, description, videoObj.URL, videoObj.Key,
		thumbObj.URL, thumbObj.Key, duration, isPublished)
	if err != nil {
		h.removeObject(r, videoObj.Key)
		h.removeObject(r, thumbObj.Key)
		httputil.WriteError(w, err)
		return
	}

	doc, err := h.loadVideoDoc(r, videoID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 201, doc, "Video uploaded successfully")
}

func (h *Handler) uploadVideoFile(r *http.Request) (media.Object, float64, error) {
	file, header, err := r.FormFile("videoFile")
	if err != nil {
		return media.Object{}, 0, apperror.Validation("Video file is required")
	}
	defer file.Close()
	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") {
		return media.Object{}, 0, apperror.Validation("videoFile must be a video")
	}
	obj, err := h.Media.Upload(r.Context(), "videos", file, header.Size, contentType, header.Filename)
	if err != nil {
		return media.Object{}, 0, apperror.Upstream("Failed to upload video file", err)
	}
	// Duration is reported by the client; the media host stores bytes only.
	var duration float64
	if v := strings.TrimSpace(r.FormValue("duration")); v != "" {
		json.Unmarshal([]byte(v), &duration)
	}
	return obj, duration, nil
}

func (h *Handler) uploadThumbnail(r *http.Request, required bool) (media.Object, error) {
	file, header, err := r.FormFile("thumbnail")
	if err != nil {
		if required {
			return media.Object{}, apperror.Validation("Thumbnail file is required")
		}
		return media.Object{}, nil
	}
	defer file.Close()
	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return media.Object{}, apperror.Validation("thumbnail must be an image")
	}
	obj, err := h.Media.Upload(r.Context(), "thumbnails", file, header.Size, contentType, header.Filename)
	if err != nil {
		return media.Object{}, apperror.Upstream("Failed to upload thumbnail", err)
	}
	return obj, nil
}

func (h *Handler) removeObject(r *http.Request, key string) {
	if key == "" || h.Media == nil {
		return
	}
	_ = h.Media.Remove(r.Context(), key)
}

func (h *Handler) loadVideoDoc(r *http.Request, videoID string) (videoDoc, error) {
	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT `+videoSelectColumns+`
		FROM videos v
		JOIN users u ON v.owner_id = u.id
		WHERE v.id = ?
	`, videoID)
	if err != nil {
		return videoDoc{}, err
	}
	defer rows.Close()
	docs, err := scanVideoDocs(rows)
	if err != nil {
		return videoDoc{}, err
	}
	if len(docs) == 0 {
		return videoDoc{}, apperror.NotFound("Video")
	}
	return docs[0], nil
}

// videoMeta is the slice of a video row mutation handlers need.
type videoMeta struct {
	ID           string
	OwnerID      string
	VideoKey     string
	ThumbnailKey string
	IsPublished  bool
}

func (h *Handler) loadVideoMeta(r *http.Request, videoID string) (videoMeta, error) {
	if uuid.Validate(videoID) != nil {
		return videoMeta{}, apperror.Validation("Invalid video ID")
	}
	var m videoMeta
	var published int
	err := h.DB.QueryRowContext(r.Context(), `
		SELECT id, owner_id, video_key, thumbnail_key, is_published
		FROM videos WHERE id = ?
	`, videoID).Scan(&m.ID, &m.OwnerID, &m.VideoKey, &m.ThumbnailKey, &published)
	if err == sql.ErrNoRows {
		return videoMeta{}, apperror.NotFound("Video")
	}
	if err != nil {
		return videoMeta{}, err
	}
	m.IsPublished = published == 1
	return m, nil
}

// HandleGetVideo serves GET /videos/{videoId}. An unpublished video is
// visible only to its owner. When an authenticated non-owner fetches a
// video, the view counter is incremented and the video is set-inserted
// into the caller's watch history. The response carries the
// pre-increment view count.
func (h *Handler) HandleGetVideo(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoId")
	callerID, _ := auth.ExtractUserID(r)

	meta, err := h.loadVideoMeta(r, videoID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !meta.IsPublished && meta.OwnerID != callerID {
		httputil.WriteError(w, apperror.Forbidden("Video is not published"))
		return
	}

	doc, err := h.loadVideoDoc(r, videoID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var likesCount, isLiked, subscribersCount, isSubscribed int
	err = h.DB.QueryRowContext(r.Context(), `
		SELECT (SELECT COUNT(*) FROM likes l WHERE l.video_id = ?),
		       (SELECT COUNT(*) FROM likes l WHERE l.video_id = ? AND l.user_id = ?),
		       (SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = ?),
		       (SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = ? AND s.subscriber_id = ?)
	`, videoID, videoID, callerID, meta.OwnerID, meta.OwnerID, callerID).
		Scan(&likesCount, &isLiked, &subscribersCount, &isSubscribed)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if callerID != "" && callerID != meta.OwnerID {
		if _, err := h.DB.ExecContext(r.Context(),
			`UPDATE videos SET views = views + 1 WHERE id = ?`, videoID); err != nil {
			httputil.WriteError(w, err)
			return
		}
		if _, err := h.DB.ExecContext(r.Context(), `
			INSERT INTO watch_history (user_id, video_id) VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, callerID, videoID); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	httputil.WriteData(w, 200, map[string]interface{}{
		"id": doc.ID, "title": doc.Title, "description": doc.Description,
		"videoFile": doc.VideoFile, "thumbnail": doc.Thumbnail,
		"duration": doc.Duration, "views": doc.Views,
		"isPublished": doc.IsPublished,
		"createdAt":   doc.CreatedAt, "updatedAt": doc.UpdatedAt,
		"owner":            doc.Owner,
		"likesCount":       likesCount,
		"isLiked":          isLiked > 0,
		"subscribersCount": subscribersCount,
		"isSubscribed":     isSubscribed > 0,
	}, "Video details fetched successfully")
}

// HandleUpdateVideo serves PATCH /videos/{videoId}: owner-only update of
// title, description and/or thumbnail. Accepts multipart (for a new
// thumbnail) or plain JSON.
func (h *Handler) HandleUpdateVideo(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)
	videoID := chi.URLParam(r, "videoId")

	meta, err := h.loadVideoMeta(r, videoID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if meta.OwnerID != userID {
		httputil.WriteError(w, apperror.Forbidden("You are not authorized to update this video"))
		return
	}

	var title, description string
	var thumbObj media.Object
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(maxVideoUpload); err != nil {
			httputil.WriteError(w, apperror.Validation("Invalid multipart form"))
			return
		}
		title = strings.TrimSpace(r.FormValue("title"))
		description = strings.TrimSpace(r.FormValue("description"))
		thumbObj, err = h.uploadThumbnail(r, false)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
	} else {
		httputil.MaxBody(r, httputil.DefaultBodyLimit)
		var req struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, apperror.Validation("Invalid request body"))
			return
		}
		title = strings.TrimSpace(req.Title)
		description = strings.TrimSpace(req.Description)
	}

	if title == "" && description == "" && thumbObj.Key == "" {
		httputil.WriteError(w, apperror.Validation("At least one of title, description or thumbnail is required"))
		return
	}

	_, err = h.DB.ExecContext(r.Context(), `
		UPDATE videos SET
			title         = CASE WHEN ? = '' THEN title       ELSE ? END,
			description   = CASE WHEN ? = '' THEN description ELSE ? END,
			thumbnail_url = CASE WHEN ? = '' THEN thumbnail_url ELSE ? END,
			thumbnail_key = CASE WHEN ? = '' THEN thumbnail_key ELSE ? END,
			updated_at    = `+h.DB.NowUTC()+`
		WHERE id = ?
	`, title, title, description, description,
		thumbObj.URL, thumbObj.URL, thumbObj.Key, thumbObj.Key, videoID)
	if err != nil {
		h.removeObject(r, thumbObj.Key)
		httputil.WriteError(w, err)
		return
	}
	if thumbObj.Key != "" {
		h.removeObject(r, meta.ThumbnailKey)
	}

	doc, err := h.loadVideoDoc(r, videoID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, doc, "Video updated successfully")
}

// HandleDeleteVideo serves DELETE /videos/{videoId}: owner-only. The
// video's likes, its comments (and their likes), every watch-history
// reference and both media objects are removed as independent parallel
// deletes. The cascade is best-effort, not one transaction: a partial
// failure can leave orphan rows, which later queries simply never join.
func (h *Handler) HandleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)
	videoID := chi.URLParam(r, "videoId")

	meta, err := h.loadVideoMeta(r, videoID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if meta.OwnerID != userID {
		httputil.WriteError(w, apperror.Forbidden("You are not authorized to delete this video"))
		return
	}

	// Snapshot comment IDs up front so the comment-likes delete does not
	// depend on the comments delete ordering.
	commentIDs := make([]interface{}, 0)
	rows, err := h.DB.QueryContext(r.Context(),
		`SELECT id FROM comments WHERE video_id = ?`, videoID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	for rows.Next() {
		var id string
		if rows.Scan(&id) == nil {
			commentIDs = append(commentIDs, id)
		}
	}
	rows.Close()

	g, ctx := errgroup.WithContext(r.Context())
	exec := func(query string, args ...interface{}) {
		g.Go(func() error {
			_, err := h.DB.ExecContext(ctx, query, args...)
			return err
		})
	}
	exec(`DELETE FROM videos WHERE id = ?`, videoID)
	exec(`DELETE FROM likes WHERE video_id = ?`, videoID)
	exec(`DELETE FROM comments WHERE video_id = ?`, videoID)
	exec(`DELETE FROM watch_history WHERE video_id = ?`, videoID)
	if len(commentIDs) > 0 {
		placeholders := strings.Repeat("?, ", len(commentIDs)-1) + "?"
		exec(`DELETE FROM likes WHERE comment_id IN (`+placeholders+`)`, commentIDs...)
	}
	if err := g.Wait(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.removeObject(r, meta.VideoKey)
	h.removeObject(r, meta.ThumbnailKey)

	httputil.WriteData(w, 200, map[string]string{"videoId": videoID},
		"Video deleted successfully")
}

// HandleTogglePublish serves PATCH /videos/toggle/publish/{videoId}.
func (h *Handler) HandleTogglePublish(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)
	videoID := chi.URLParam(r, "videoId")

	meta, err := h.loadVideoMeta(r, videoID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if meta.OwnerID != userID {
		httputil.WriteError(w, apperror.Forbidden("You are not authorized to modify this video"))
		return
	}

	newState := 1
	if meta.IsPublished {
		newState = 0
	}
	if _, err := h.DB.ExecContext(r.Context(),
		`UPDATE videos SET is_published = ?, updated_at = `+h.DB.NowUTC()+` WHERE id = ?`,
		newState, videoID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	message := "Video unpublished successfully"
	if newState == 1 {
		message = "Video published successfully"
	}
	httputil.WriteData(w, 200, map[string]interface{}{
		"videoId":     videoID,
		"isPublished": newState == 1,
	}, message)
}

// HandleUserVideos serves GET /videos/user: the caller's own videos,
// including unpublished ones, for the management screen.
func (h *Handler) HandleUserVideos(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)
	page, limit, offset := httputil.PageParams(r, 10)

	var total int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM videos v WHERE v.owner_id = ?`, userID).Scan(&total); err != nil {
		httputil.WriteError(w, err)
		return
	}

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT `+videoSelectColumns+`
		FROM videos v
		JOIN users u ON v.owner_id = u.id
		WHERE v.owner_id = ?
		ORDER BY `+orderClause(r, ownSortColumns)+`
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer rows.Close()

	docs, err := scanVideoDocs(rows)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, httputil.NewPage(docs, total, page, limit),
		"User videos fetched successfully")
}
