package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/Surya1712/VideoTubes/auth"
	"github.com/Surya1712/VideoTubes/comments"
	"github.com/Surya1712/VideoTubes/dashboard"
	"github.com/Surya1712/VideoTubes/db"
	"github.com/Surya1712/VideoTubes/httputil"
	"github.com/Surya1712/VideoTubes/likes"
	"github.com/Surya1712/VideoTubes/media"
	"github.com/Surya1712/VideoTubes/playlists"
	"github.com/Surya1712/VideoTubes/ratelimit"
	"github.com/Surya1712/VideoTubes/subscriptions"
	"github.com/Surya1712/VideoTubes/tweets"
	"github.com/Surya1712/VideoTubes/videos"
)

type Config struct {
	DatabaseURL   string // Postgres DSN; empty selects SQLite
	DBPath        string
	MinioEndpoint string
	MinioAccess   string
	MinioSecret   string
	MinioBucket   string
	MinioSSL      bool
	JWTSecret     string
	CORSOrigin    string
	Port          string
}

func loadConfig() Config {
	return Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		DBPath:        getEnv("DB_PATH", "/data/videotube.db"),
		MinioEndpoint: getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccess:   getEnv("MINIO_ACCESS_KEY", "videotube"),
		MinioSecret:   getEnv("MINIO_SECRET_KEY", "changeme123"),
		MinioBucket:   getEnv("MINIO_BUCKET", "videotube"),
		MinioSSL:      getEnv("MINIO_USE_SSL", "false") == "true",
		JWTSecret:     getEnv("JWT_SECRET", "supersecretkey"),
		CORSOrigin:    getEnv("CORS_ORIGIN", "*"),
		Port:          getEnv("PORT", "8080"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func openDatabase(cfg Config) (*db.CompatDB, error) {
	if cfg.DatabaseURL != "" {
		raw, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(raw, db.DialectPostgres); err != nil {
			raw.Close()
			return nil, err
		}
		return db.NewCompatDB(raw, db.DialectPostgres), nil
	}

	raw, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, err
	}
	// Single connection: prevents concurrent write conflicts
	raw.SetMaxOpenConns(1)
	raw.SetMaxIdleConns(1)
	raw.SetConnMaxLifetime(0)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := raw.Exec(pragma); err != nil {
			raw.Close()
			return nil, err
		}
	}
	if err := db.RunMigrations(raw, db.DialectSQLite); err != nil {
		raw.Close()
		return nil, err
	}
	return db.NewCompatDB(raw, db.DialectSQLite), nil
}

func newRouter(cfg Config, database *db.CompatDB, store media.Store) chi.Router {
	authH := &auth.Handler{DB: database, Media: store, JWTSecret: cfg.JWTSecret}
	videosH := &videos.Handler{DB: database, Media: store}
	commentsH := &comments.Handler{DB: database}
	likesH := &likes.Handler{DB: database}
	subsH := &subscriptions.Handler{DB: database}
	playlistsH := &playlists.Handler{DB: database}
	tweetsH := &tweets.Handler{DB: database}
	dashH := &dashboard.Handler{DB: database}

	r := chi.NewRouter()
	r.Use(httputil.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthcheck", func(w http.ResponseWriter, req *http.Request) {
			if err := database.PingContext(req.Context()); err != nil {
				httputil.WriteFailure(w, 503, "Database unreachable")
				return
			}
			httputil.WriteData(w, 200, map[string]string{"status": "OK"}, "Service is healthy")
		})

		// Credential endpoints sit behind the brute-force limiter.
		r.Group(func(r chi.Router) {
			limiter := ratelimit.New(10, time.Minute)
			r.Use(ratelimit.Middleware(limiter))
			r.Post("/users/register", authH.HandleRegister)
			r.Post("/users/login", authH.HandleLogin)
			r.Post("/users/refresh-token", authH.HandleRefreshToken)
		})

		// Public or optional-auth reads.
		r.Get("/users/c/{username}", authH.OptionalAuth(authH.HandleChannelProfile))
		r.Get("/videos", authH.OptionalAuth(videosH.HandleListVideos))
		r.Get("/videos/{videoId}", authH.OptionalAuth(videosH.HandleGetVideo))
		r.Get("/comments/{videoId}", authH.OptionalAuth(commentsH.HandleListComments))
		r.Get("/comments/{videoId}/replies/{commentId}", authH.OptionalAuth(commentsH.HandleListReplies))
		r.Get("/subscriptions/u/{channelId}", authH.OptionalAuth(subsH.HandleChannelSubscribers))
		r.Get("/subscriptions/{subscriberId}", subsH.HandleSubscribedChannels)
		r.Get("/playlists/{playlistId}", authH.OptionalAuth(playlistsH.HandleGetPlaylist))
		r.Get("/playlists/user/{userId}", playlistsH.HandleUserPlaylists)
		r.Get("/tweets/user/{userId}", authH.OptionalAuth(tweetsH.HandleUserTweets))

		// Everything below requires a valid access token.
		r.Group(func(r chi.Router) {
			r.Use(authH.Middleware)

			r.Post("/users/logout", authH.HandleLogout)
			r.Get("/users/current-user", authH.HandleCurrentUser)
			r.Post("/users/change-password", authH.HandleChangePassword)
			r.Patch("/users/update-account", authH.HandleUpdateAccount)
			r.Patch("/users/avatar", authH.HandleUpdateAvatar)
			r.Patch("/users/cover-image", authH.HandleUpdateCoverImage)
			r.Get("/users/history", authH.HandleWatchHistory)

			r.Post("/videos", videosH.HandlePublishVideo)
			r.Get("/videos/user", videosH.HandleUserVideos)
			r.Patch("/videos/{videoId}", videosH.HandleUpdateVideo)
			r.Delete("/videos/{videoId}", videosH.HandleDeleteVideo)
			r.Patch("/videos/toggle/publish/{videoId}", videosH.HandleTogglePublish)

			r.Post("/comments/{videoId}", commentsH.HandleAddComment)
			r.Patch("/comments/c/{commentId}", commentsH.HandleUpdateComment)
			r.Delete("/comments/c/{commentId}", commentsH.HandleDeleteComment)

			r.Post("/likes/toggle/v/{videoId}", likesH.HandleToggleVideoLike)
			r.Post("/likes/toggle/c/{commentId}", likesH.HandleToggleCommentLike)
			r.Post("/likes/toggle/t/{tweetId}", likesH.HandleToggleTweetLike)
			r.Get("/likes/videos", likesH.HandleLikedVideos)

			r.Post("/subscriptions/c/{channelId}", subsH.HandleToggleSubscription)
			r.Get("/subscriptions/c/{channelId}/status", subsH.HandleSubscriptionStatus)

			r.Post("/playlists", playlistsH.HandleCreatePlaylist)
			r.Patch("/playlists/add/{videoId}/{playlistId}", playlistsH.HandleAddVideo)
			r.Patch("/playlists/remove/{videoId}/{playlistId}", playlistsH.HandleRemoveVideo)
			r.Patch("/playlists/{playlistId}", playlistsH.HandleUpdatePlaylist)
			r.Delete("/playlists/{playlistId}", playlistsH.HandleDeletePlaylist)

			r.Post("/tweets", tweetsH.HandleCreateTweet)
			r.Patch("/tweets/{tweetId}", tweetsH.HandleUpdateTweet)
			r.Delete("/tweets/{tweetId}", tweetsH.HandleDeleteTweet)

			r.Get("/dashboard/stats", dashH.HandleStats)
			r.Get("/dashboard/videos", dashH.HandleVideos)
		})
	})

	return r
}

func main() {
	cfg := loadConfig()

	database, err := openDatabase(cfg)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	store, err := media.New(cfg.MinioEndpoint, cfg.MinioAccess, cfg.MinioSecret, cfg.MinioBucket, cfg.MinioSSL)
	if err != nil {
		log.Fatalf("failed to connect to media storage: %v", err)
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: newRouter(cfg, database, store)}

	go func() {
		log.Printf("VideoTube API listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	log.Println("server shut down")
}
