// Package dashboard implements the channel owner's management view.
package dashboard

import (
	"net/http"

	"github.com/Surya1712/VideoTubes/auth"
	"github.com/Surya1712/VideoTubes/db"
	"github.com/Surya1712/VideoTubes/httputil"
)

// Handler holds dependencies for dashboard endpoints.
type Handler struct {
	DB *db.CompatDB
}

var sortColumns = map[string]string{
	"createdAt": "v.created_at",
	"views":     "v.views",
	"title":     "v.title",
}

// HandleStats serves GET /dashboard/stats. Subscriber and video totals
// come from two independent queries; a mid-flight write can make them
// reflect different instants, which the contract accepts.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)

	var totalSubscribers int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM subscriptions WHERE channel_id = ?`,
		userID).Scan(&totalSubscribers); err != nil {
		httputil.WriteError(w, err)
		return
	}

	var totalVideos int
	var totalViews, totalLikes int64
	if err := h.DB.QueryRowContext(r.Context(), `
		SELECT COUNT(*),
		       COALESCE(SUM(v.views), 0),
		       COALESCE(SUM((SELECT COUNT(*) FROM likes l WHERE l.video_id = v.id)), 0)
		FROM videos v
		WHERE v.owner_id = ?
	`, userID).Scan(&totalVideos, &totalViews, &totalLikes); err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteData(w, 200, map[string]interface{}{
		"totalSubscribers": totalSubscribers,
		"totalVideos":      totalVideos,
		"totalViews":       totalViews,
		"totalLikes":       totalLikes,
	}, "Channel stats fetched successfully")
}

// HandleVideos serves GET /dashboard/videos: the caller's published
// videos with per-video like counts.
func (h *Handler) HandleVideos(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)
	page, limit, offset := httputil.PageParams(r, 10)

	var total int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM videos WHERE owner_id = ? AND is_published = 1`,
		userID).Scan(&total); err != nil {
		httputil.WriteError(w, err)
		return
	}

	order := "v.created_at DESC"
	if col, ok := sortColumns[r.URL.Query().Get("sortBy")]; ok {
		order = col + " DESC"
		if r.URL.Query().Get("sortType") == "asc" {
			order = col + " ASC"
		}
	}

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT v.id, v.title, v.description, v.thumbnail_url, v.duration,
		       v.views, v.is_published, v.created_at, v.updated_at,
		       (SELECT COUNT(*) FROM likes l WHERE l.video_id = v.id)
		FROM videos v
		WHERE v.owner_id = ? AND v.is_published = 1
		ORDER BY `+order+`
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer rows.Close()

	docs := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, title, description, thumbnail, createdAt, updatedAt string
		var duration float64
		var views int64
		var published, likesCount int
		if err := rows.Scan(&id, &title, &description, &thumbnail, &duration,
			&views, &published, &createdAt, &updatedAt, &likesCount); err != nil {
			httputil.WriteError(w, err)
			return
		}
		docs = append(docs, map[string]interface{}{
			"id": id, "title": title, "description": description,
			"thumbnail": thumbnail, "duration": duration,
			"views": views, "isPublished": published == 1,
			"likesCount": likesCount,
			"createdAt":  createdAt, "updatedAt": updatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, httputil.NewPage(docs, total, page, limit),
		"Channel videos fetched successfully")
}
