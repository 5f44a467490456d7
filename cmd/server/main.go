package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"

	config "github.com/maheshrc27/postbridge/configs"
	"github.com/maheshrc27/postbridge/internal/api/handlers"
	"github.com/maheshrc27/postbridge/internal/api/middleware"
	"github.com/maheshrc27/postbridge/internal/assets"
	"github.com/maheshrc27/postbridge/internal/dispatcher"
	job "github.com/maheshrc27/postbridge/internal/jobs"
	"github.com/maheshrc27/postbridge/internal/platforms"
	"github.com/maheshrc27/postbridge/internal/providers"
	"github.com/maheshrc27/postbridge/internal/queue"
	"github.com/maheshrc27/postbridge/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	connStore := store.NewPostgresStore(db, []byte(cfg.SecretKey))
	d := dispatcher.New(connStore)
	registerPlatforms(d, *cfg, connStore)

	assetService := assets.NewService(*cfg)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	connection := handlers.NewConnectionHandler(*cfg, d)
	app.Get("/connect/:platform/callback", connection.CallbackHandler)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	api.Get("/connect/:platform", connection.AddConnection)
	api.Post("/connect/:platform", connection.ConnectWithCredentials)
	api.Get("/connections", connection.ListConnections)
	api.Post("/connections/:platform/refresh", connection.RefreshConnection)
	api.Post("/connections/:platform/remove", connection.RemoveConnection)

	post := handlers.NewPostHandler(d, connStore, client)
	api.Post("/posts/create", post.CreatePost)
	api.Post("/posts/:platform", post.PostNow)
	api.Get("/posts", post.ListPosts)

	asset := handlers.NewAssetHandler(assetService)
	api.Post("/assets/upload", asset.UploadAsset)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(connStore, d)

	// queue
	queueW := queue.NewQueue(connStore, d)

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishPost, queueW.HandlePublishPostTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

// registerPlatforms wires a provider and handler pair for every platform
// with credentials configured. Credential-based platforms (bluesky,
// mastodon, devto, discord) need no app credentials and are switched on
// with their Enabled flag.
func registerPlatforms(d *dispatcher.Dispatcher, cfg config.Config, s store.Store) {
	if cfg.Twitter.Configured() {
		p := providers.NewTwitterProvider(cfg, s)
		d.RegisterProvider(p)
		d.RegisterHandler(platforms.NewTwitterHandler(s, p))
	}
	if cfg.LinkedIn.Configured() {
		p := providers.NewLinkedInProvider(cfg, s)
		d.RegisterProvider(p)
		d.RegisterHandler(platforms.NewLinkedInHandler(s, p))
	}
	if cfg.Tiktok.Configured() {
		p := providers.NewTiktokProvider(cfg, s)
		d.RegisterProvider(p)
		d.RegisterHandler(platforms.NewTiktokHandler(s, p))
	}
	if cfg.Instagram.Configured() {
		p := providers.NewInstagramProvider(cfg, s)
		d.RegisterProvider(p)
		d.RegisterHandler(platforms.NewInstagramHandler(s, p))
	}
	if cfg.Google.Configured() {
		p := providers.NewYoutubeProvider(cfg, s)
		d.RegisterProvider(p)
		d.RegisterHandler(platforms.NewYoutubeHandler(s, p))
	}

	if cfg.Bluesky.Configured() {
		p := providers.NewBlueskyProvider(cfg, s)
		d.RegisterProvider(p)
		d.RegisterHandler(platforms.NewBlueskyHandler(s, p, cfg.BlueskyService))
	}
	if cfg.Mastodon.Configured() {
		d.RegisterProvider(providers.NewMastodonProvider(cfg, s))
		d.RegisterHandler(platforms.NewMastodonHandler(s, cfg.MastodonBaseURL))
	}
	if cfg.Devto.Configured() {
		d.RegisterProvider(providers.NewDevtoProvider(cfg, s))
		d.RegisterHandler(platforms.NewDevtoHandler(s))
	}
	if cfg.Discord.Configured() {
		d.RegisterProvider(providers.NewDiscordProvider(cfg, s))
		d.RegisterHandler(platforms.NewDiscordHandler(s))
	}

	log.Printf("Registered platforms: %v", d.Platforms())
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
