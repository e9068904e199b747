// Package subscriptions implements channel subscriptions: the toggle,
// the status probe, a channel's subscriber list and a user's subscribed
// channels.
package subscriptions

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Surya1712/VideoTubes/apperror"
	"github.com/Surya1712/VideoTubes/auth"
	"github.com/Surya1712/VideoTubes/db"
	"github.com/Surya1712/VideoTubes/httputil"
)

// Handler holds dependencies for subscription endpoints.
type Handler struct {
	DB *db.CompatDB
}

func (h *Handler) channelExists(r *http.Request, channelID string) error {
	if uuid.Validate(channelID) != nil {
		return apperror.Validation("Invalid channel ID")
	}
	var n int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM users WHERE id = ?`, channelID).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("Channel")
	}
	return nil
}

// HandleToggleSubscription serves POST /subscriptions/c/{channelId}.
// Check-then-write toggle, same contract as likes. Subscribing to your
// own channel is allowed.
func (h *Handler) HandleToggleSubscription(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)
	channelID := chi.URLParam(r, "channelId")

	if err := h.channelExists(r, channelID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	var existing int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM subscriptions WHERE subscriber_id = ? AND channel_id = ?`,
		userID, channelID).Scan(&existing); err != nil {
		httputil.WriteError(w, err)
		return
	}

	subscribed := existing == 0
	if subscribed {
		if _, err := h.DB.ExecContext(r.Context(),
			`INSERT INTO subscriptions (id, subscriber_id, channel_id) VALUES (?, ?, ?)`,
			uuid.New().String(), userID, channelID); err != nil {
			httputil.WriteError(w, err)
			return
		}
	} else {
		if _, err := h.DB.ExecContext(r.Context(),
			`DELETE FROM subscriptions WHERE subscriber_id = ? AND channel_id = ?`,
			userID, channelID); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	var count int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM subscriptions WHERE channel_id = ?`, channelID).Scan(&count); err != nil {
		httputil.WriteError(w, err)
		return
	}

	message := "Unsubscribed successfully"
	if subscribed {
		message = "Subscribed successfully"
	}
	httputil.WriteData(w, 200, map[string]interface{}{
		"channelId":        channelID,
		"subscribed":       subscribed,
		"subscribersCount": count,
	}, message)
}

// HandleSubscriptionStatus serves GET /subscriptions/c/{channelId}/status.
func (h *Handler) HandleSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)
	channelID := chi.URLParam(r, "channelId")

	if err := h.channelExists(r, channelID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	var n int
	if err := h.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM subscriptions WHERE subscriber_id = ? AND channel_id = ?`,
		userID, channelID).Scan(&n); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, map[string]bool{"subscribed": n > 0},
		"Subscription status fetched successfully")
}

// HandleChannelSubscribers serves GET /subscriptions/u/{channelId}: who
// subscribes to the channel, each with their own subscriber count and
// whether the caller subscribes to them in turn.
func (h *Handler) HandleChannelSubscribers(w http.ResponseWriter, r *http.Request) {
	callerID, _ := auth.ExtractUserID(r)
	channelID := chi.URLParam(r, "channelId")

	if err := h.channelExists(r, channelID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT u.id, u.username, u.full_name, u.avatar_url,
		       (SELECT COUNT(*) FROM subscriptions x WHERE x.channel_id = u.id),
		       (SELECT COUNT(*) FROM subscriptions x WHERE x.channel_id = u.id AND x.subscriber_id = ?)
		FROM subscriptions s
		JOIN users u ON s.subscriber_id = u.id
		WHERE s.channel_id = ?
		ORDER BY s.created_at DESC
	`, callerID, channelID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer rows.Close()

	docs := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, username, fullName, avatar string
		var subscribers, callerSubs int
		if err := rows.Scan(&id, &username, &fullName, &avatar, &subscribers, &callerSubs); err != nil {
			httputil.WriteError(w, err)
			return
		}
		docs = append(docs, map[string]interface{}{
			"id":                     id,
			"username":               username,
			"fullName":               fullName,
			"avatar":                 avatar,
			"subscribersCount":       subscribers,
			"subscribedToSubscriber": callerSubs > 0,
		})
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, docs, "Subscribers fetched successfully")
}

// HandleSubscribedChannels serves GET /subscriptions/{subscriberId}:
// the channels a user subscribes to, each carrying its latest published
// video when one exists.
func (h *Handler) HandleSubscribedChannels(w http.ResponseWriter, r *http.Request) {
	subscriberID := chi.URLParam(r, "subscriberId")
	if uuid.Validate(subscriberID) != nil {
		httputil.WriteError(w, apperror.Validation("Invalid subscriber ID"))
		return
	}

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT u.id, u.username, u.full_name, u.avatar_url,
		       v.id, v.title, v.thumbnail_url, v.duration, v.views, v.created_at
		FROM subscriptions s
		JOIN users u ON s.channel_id = u.id
		LEFT JOIN videos v ON v.id = (
			SELECT id FROM videos
			WHERE owner_id = u.id AND is_published = 1
			ORDER BY created_at DESC LIMIT 1
		)
		WHERE s.subscriber_id = ?
		ORDER BY s.created_at DESC
	`, subscriberID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer rows.Close()

	docs := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, username, fullName, avatar string
		var vID, vTitle, vThumb, vCreated sql.NullString
		var vDuration sql.NullFloat64
		var vViews sql.NullInt64
		if err := rows.Scan(&id, &username, &fullName, &avatar,
			&vID, &vTitle, &vThumb, &vDuration, &vViews, &vCreated); err != nil {
			httputil.WriteError(w, err)
			return
		}
		doc := map[string]interface{}{
			"id":          id,
			"username":    username,
			"fullName":    fullName,
			"avatar":      avatar,
			"latestVideo": nil,
		}
		if vID.Valid {
			doc["latestVideo"] = map[string]interface{}{
				"id":        vID.String,
				"title":     vTitle.String,
				"thumbnail": vThumb.String,
				"duration":  vDuration.Float64,
				"views":     vViews.Int64,
				"createdAt": vCreated.String,
			}
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, 200, docs, "Subscribed channels fetched successfully")
}
