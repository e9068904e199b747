// Package playlists implements user playlists with set semantics on
// membership: adding a video twice keeps a single row.
package playlists

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

// Handler holds dependencies for playlist endpoints.
type Handler struct {
	DB *db.CompatDB
}

type playlistMeta struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	CreatedAt   string
	UpdatedAt   string
}

func (h *Handler) loadPlaylist(r *http.Request, playlistID string) (playlistMeta, error) {
	if uuid.Validate(playlistID) != nil {
		return playlistMeta{}, apperror.Validation("Invalid playlist ID")
	}
	var m playlistMeta
	err := h.DB.QueryRowContext(r.Context(), `
		SELECT id, owner_id, name, description, created_at, updated_at
		FROM playlists WHERE id = ?
	`, playlistID).Scan(&m.ID, &m.OwnerID, &m.Name, &m.Description, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return playlistMeta{}, apperror.NotFound("Playlist")
	}
	return m, err
}

// HandleCreatePlaylist serves POST /playlists.
func (h *Handler) HandleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)

	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperror.Validation("Invalid request body"))
		return
	}
	name := strings.TrimSpace(req.Name)
	description := strings.TrimSpace(req.Description)
	if name == "" || description == "" {
		httputil.WriteError(w, apperror.Validation("Name and description are required"))
		return
	}

	playlistID := uuid.New().String()
	if _, err := h.DB.ExecContext(r.Context(),
		`INSERT INTO playlists (id, owner_id, name, description) VALUES (?, ?, ?, ?)`,
		playlistID, userID, name, description); err != nil {
		httputil.WriteError(w, err)
		return
	}

	m, err := h.loadPlaylist(r, playlistID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 201, map[string]interface{}{
		"id": m.ID, "name": m.Name, "description": m.Description,
		"owner": m.OwnerID, "createdAt": m.CreatedAt, "updatedAt": m.UpdatedAt,
	}, "Playlist created successfully")
}

// HandleUpdatePlaylist serves PATCH /playlists/{playlistId}, owner-only.
func (h *Handler) HandleUpdatePlaylist(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)

	m, err := h.loadPlaylist(r, chi.URLParam(r, "playlistId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if m.OwnerID != userID {
		httputil.WriteError(w, apperror.Forbidden("You are not authorized to update this playlist"))
		return
	}

	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperror.Validation("Invalid request body"))
		return
	}
	name := strings.TrimSpace(req.Name)
	description := strings.TrimSpace(req.Description)
	if name == "" && description == "" {
		httputil.WriteError(w, apperror.Validation("Name or description is required"))
		return
	}

	if _, err := h.DB.ExecContext(r.Context(), `
		UPDATE playlists SET
			name        = CASE WHEN ? = '' THEN name        ELSE ? END,
			description = CASE WHEN ? = '' THEN description ELSE ? END,
			updated_at  = `+h.DB.NowUTC()+`
		WHERE id = ?
	`, name, name, description, description, m.ID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	m, err = h.loadPlaylist(r, m.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, map[string]interface{}{
		"id": m.ID, "name": m.Name, "description": m.Description,
		"owner": m.OwnerID, "createdAt": m.CreatedAt, "updatedAt": m.UpdatedAt,
	}, "Playlist updated successfully")
}

// HandleDeletePlaylist serves DELETE /playlists/{playlistId}, owner-only.
func (h *Handler) HandleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)

	m, err := h.loadPlaylist(r, chi.URLParam(r, "playlistId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if m.OwnerID != userID {
		httputil.WriteError(w, apperror.Forbidden("You are not authorized to delete this playlist"))
		return
	}

	err = db.WithTx(r.Context(), h.DB, func(conn *db.CompatConn) error {
		if _, err := conn.ExecContext(r.Context(),
			`DELETE FROM playlist_videos WHERE playlist_id = ?`, m.ID); err != nil {
			return err
		}
		_, err := conn.ExecContext(r.Context(), `DELETE FROM playlists WHERE id = ?`, m.ID)
		return err
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, map[string]string{"playlistId": m.ID},
		"Playlist deleted successfully")
}

func (h *Handler) ownedPlaylistAndVideo(w http.ResponseWriter, r *http.Request) (playlistMeta, string, bool) {
	userID := r.Context().Value(auth.UserIDKey).(string)
	videoID := chi.URLParam(r, "videoId")

	m, err := h.loadPlaylist(r, chi.URLParam(r, "playlistId"))
	if err != nil {
		httputil.WriteError(w, err)
		return playlistMeta{}, "", false
	}
	if m.OwnerID != userID {
		httputil.WriteError(w, apperror.Forbidden("You are not authorized to modify this playlist"))
		return playlistMeta{}, "", false
	}
	if uuid.Validate(videoID) != nil {
		httputil.WriteError(w, apperror.Validation("Invalid video ID"))
		return playlistMeta{}, "", false
	}
	var n int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM videos WHERE id = ?`, videoID).Scan(&n); err != nil {
		httputil.WriteError(w, err)
		return playlistMeta{}, "", false
	}
	if n == 0 {
		httputil.WriteError(w, apperror.NotFound("Video"))
		return playlistMeta{}, "", false
	}
	return m, videoID, true
}

// HandleAddVideo serves PATCH /playlists/add/{videoId}/{playlistId}.
// The composite primary key plus ON CONFLICT DO NOTHING gives the add
// set semantics: a repeated add keeps exactly one row.
func (h *Handler) HandleAddVideo(w http.ResponseWriter, r *http.Request) {
	m, videoID, ok := h.ownedPlaylistAndVideo(w, r)
	if !ok {
		return
	}

	if _, err := h.DB.ExecContext(r.Context(), `
		INSERT INTO playlist_videos (playlist_id, video_id, position)
		VALUES (?, ?, (SELECT COUNT(*) FROM playlist_videos WHERE playlist_id = ?))
		ON CONFLICT DO NOTHING
	`, m.ID, videoID, m.ID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if _, err := h.DB.ExecContext(r.Context(),
		`UPDATE playlists SET updated_at = `+h.DB.NowUTC()+` WHERE id = ?`, m.ID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, map[string]string{
		"playlistId": m.ID,
		"videoId":    videoID,
	}, "Video added to playlist successfully")
}

// HandleRemoveVideo serves PATCH /playlists/remove/{videoId}/{playlistId}.
func (h *Handler) HandleRemoveVideo(w http.ResponseWriter, r *http.Request) {
	m, videoID, ok := h.ownedPlaylistAndVideo(w, r)
	if !ok {
		return
	}

	if _, err := h.DB.ExecContext(r.Context(),
		`DELETE FROM playlist_videos WHERE playlist_id = ? AND video_id = ?`,
		m.ID, videoID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if _, err := h.DB.ExecContext(r.Context(),
		`UPDATE playlists SET updated_at = `+h.DB.NowUTC()+` WHERE id = ?`, m.ID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, map[string]string{
		"playlistId": m.ID,
		"videoId":    videoID,
	}, "Video removed from playlist successfully")
}

// HandleGetPlaylist serves GET /playlists/{playlistId}. Member videos
// are filtered to those the caller may see: published, or owned by the
// caller.
func (h *Handler) HandleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	callerID, _ := auth.ExtractUserID(r)

	m, err := h.loadPlaylist(r, chi.URLParam(r, "playlistId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT v.id, v.title, v.description, v.video_url, v.thumbnail_url,
		       v.duration, v.views, v.created_at,
		       u.id, u.username, u.full_name, u.avatar_url
		FROM playlist_videos pv
		JOIN videos v ON pv.video_id = v.id
		JOIN users u ON v.owner_id = u.id
		WHERE pv.playlist_id = ? AND (v.is_published = 1 OR v.owner_id = ?)
		ORDER BY pv.position, pv.added_at
	`, m.ID, callerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer rows.Close()

	videos := make([]map[string]interface{}, 0)
	var totalViews int64
	for rows.Next() {
		var id, title, description, videoURL, thumbURL, createdAt string
		var ownerID, username, fullName, avatar string
		var duration float64
		var views int64
		if err := rows.Scan(&id, &title, &description, &videoURL, &thumbURL,
			&duration, &views, &createdAt,
			&ownerID, &username, &fullName, &avatar); err != nil {
			httputil.WriteError(w, err)
			return
		}
		totalViews += views
		videos = append(videos, map[string]interface{}{
			"id": id, "title": title, "description": description,
			"videoFile": videoURL, "thumbnail": thumbURL,
			"duration": duration, "views": views, "createdAt": createdAt,
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

	var owner map[string]string
	var username, fullName, avatar string
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT username, full_name, avatar_url FROM users WHERE id = ?`,
		m.OwnerID).Scan(&username, &fullName, &avatar); err == nil {
		owner = map[string]string{
			"id": m.OwnerID, "username": username,
			"fullName": fullName, "avatar": avatar,
		}
	}

	httputil.WriteData(w, 200, map[string]interface{}{
		"id":          m.ID,
		"name":        m.Name,
		"description": m.Description,
		"owner":       owner,
		"videos":      videos,
		"totalVideos": len(videos),
		"totalViews":  totalViews,
		"createdAt":   m.CreatedAt,
		"updatedAt":   m.UpdatedAt,
	}, "Playlist fetched successfully")
}

// HandleUserPlaylists serves GET /playlists/user/{userId}: the user's
// playlists with totals computed over published member videos and the
// first video's thumbnail as cover.
func (h *Handler) HandleUserPlaylists(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if uuid.Validate(userID) != nil {
		httputil.WriteError(w, apperror.Validation("Invalid user ID"))
		return
	}

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT p.id, p.name, p.description, p.created_at, p.updated_at,
		       (SELECT COUNT(*) FROM playlist_videos pv
		        JOIN videos v ON pv.video_id = v.id
		        WHERE pv.playlist_id = p.id AND v.is_published = 1),
		       (SELECT COALESCE(SUM(v.views), 0) FROM playlist_videos pv
		        JOIN videos v ON pv.video_id = v.id
		        WHERE pv.playlist_id = p.id AND v.is_published = 1),
		       COALESCE((SELECT v.thumbnail_url FROM playlist_videos pv
		        JOIN videos v ON pv.video_id = v.id
		        WHERE pv.playlist_id = p.id AND v.is_published = 1
		        ORDER BY pv.position, pv.added_at LIMIT 1), '')
		FROM playlists p
		WHERE p.owner_id = ?
		ORDER BY p.updated_at DESC
	`, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer rows.Close()

	docs := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, name, description, createdAt, updatedAt, thumbnail string
		var totalVideos int
		var totalViews int64
		if err := rows.Scan(&id, &name, &description, &createdAt, &updatedAt,
			&totalVideos, &totalViews, &thumbnail); err != nil {
			httputil.WriteError(w, err)
			return
		}
		docs = append(docs, map[string]interface{}{
			"id":          id,
			"name":        name,
			"description": description,
			"totalVideos": totalVideos,
			"totalViews":  totalViews,
			"thumbnail":   thumbnail,
			"createdAt":   createdAt,
			"updatedAt":   updatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, docs, "Playlists fetched successfully")
}
