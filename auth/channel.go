package auth

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Surya1712/VideoTubes/apperror"
	"github.com/Surya1712/VideoTubes/httputil"
)

// HandleChannelProfile returns a channel page by username: profile
// fields, subscriber counts and whether the caller subscribes to it.
func (h *Handler) HandleChannelProfile(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(strings.ToLower(chi.URLParam(r, "username")))
	if username == "" {
		httputil.WriteError(w, apperror.Validation("Username is required"))
		return
	}
	callerID, _ := ExtractUserID(r)

	var (
		u                 User
		subscriberCount   int
		subscribedToCount int
		isSubscribed      int
	)
	err := h.DB.QueryRowContext(r.Context(), `
		SELECT u.id, u.username, u.email, u.full_name, u.avatar_url, u.cover_url, u.created_at,
		       (SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id),
		       (SELECT COUNT(*) FROM subscriptions s WHERE s.subscriber_id = u.id),
		       (SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id AND s.subscriber_id = ?)
		FROM users u WHERE u.username = ?
	`, callerID, username).Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.Avatar, &u.CoverImage,
		&u.CreatedAt, &subscriberCount, &subscribedToCount, &isSubscribed)
	if err == sql.ErrNoRows {
		httputil.WriteError(w, apperror.NotFound("Channel"))
		return
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteData(w, 200, map[string]interface{}{
		"id":                   u.ID,
		"username":             u.Username,
		"fullName":             u.FullName,
		"avatar":               u.Avatar,
		"coverImage":           u.CoverImage,
		"createdAt":            u.CreatedAt,
		"subscribersCount":     subscriberCount,
		"channelsSubscribedTo": subscribedToCount,
		"isSubscribed":         isSubscribed > 0,
	}, "Channel profile fetched successfully")
}

// HandleWatchHistory lists the caller's watched videos, most recent
// first, joined to each video's owner profile.
func (h *Handler) HandleWatchHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(UserIDKey).(string)
	page, limit, offset := httputil.PageParams(r, 20)

	var total int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM watch_history WHERE user_id = ?`, userID).Scan(&total); err != nil {
		httputil.WriteError(w, err)
		return
	}

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT v.id, v.title, v.description, v.thumbnail_url, v.duration, v.views,
		       v.created_at, wh.watched_at,
		       u.id, u.username, u.full_name, u.avatar_url
		FROM watch_history wh
		JOIN videos v ON wh.video_id = v.id
		JOIN users u ON v.owner_id = u.id
		WHERE wh.user_id = ?
		ORDER BY wh.watched_at DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer rows.Close()

	docs := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, title, description, thumbnail, createdAt, watchedAt string
		var ownerID, ownerUsername, ownerFullName, ownerAvatar string
		var duration float64
		var views int64
		if err := rows.Scan(&id, &title, &description, &thumbnail, &duration, &views,
			&createdAt, &watchedAt,
			&ownerID, &ownerUsername, &ownerFullName, &ownerAvatar); err != nil {
			continue
		}
		docs = append(docs, map[string]interface{}{
			"id": id, "title": title, "description": description,
			"thumbnail": thumbnail, "duration": duration, "views": views,
			"createdAt": createdAt, "watchedAt": watchedAt,
			"owner": map[string]interface{}{
				"id": ownerID, "username": ownerUsername,
				"fullName": ownerFullName, "avatar": ownerAvatar,
			},
		})
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, httputil.NewPage(docs, total, page, limit),
		"Watch history fetched successfully")
}
