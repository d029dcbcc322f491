package main

import (
	"context"
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

	config "crosspost/configs"
	"crosspost/internal/api/handlers"
	"crosspost/internal/api/middleware"
	job "crosspost/internal/jobs"
	"crosspost/internal/platform"
	"crosspost/internal/publisher"
	"crosspost/internal/queue"
	"crosspost/internal/repository"
	"crosspost/internal/service"
	"crosspost/internal/validation"
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

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	postTargetRepo := repository.NewPostTargetRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	postMediaRepo := repository.NewPostMediaRepository(db)
	mediaAssetRepo := repository.NewMediaAssetRepository(db)
	postingHistoryRepo := repository.NewPostingHistoryRepository(db)
	platformRepo := repository.NewPlatformRepository()

	clock := publisher.SystemClock{}

	authService := service.NewAuthService(*cfg, userRepo)
	userService := service.NewUserService(userRepo)
	r2Service := service.NewR2Service(*cfg)
	accountService := service.NewAccountService(*cfg, socialAccountRepo)
	postService := service.NewPostService(db, postRepo, postTargetRepo, socialAccountRepo, mediaAssetRepo, postMediaRepo, postingHistoryRepo, r2Service, clock)

	coordinator := publisher.NewCoordinator(
		postRepo,
		postTargetRepo,
		socialAccountRepo,
		mediaAssetRepo,
		postingHistoryRepo,
		platformRepo,
		platform.NewRegistry(),
		validation.NewEngine(),
		accountService.Credential,
		clock,
	)
	scheduler := publisher.NewScheduler(postRepo, coordinator, clock)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	auth := handlers.NewAuthHandler(*cfg, authService)
	app.Get("/login", auth.Login)
	app.Get("/login/callback", auth.LoginCallbackHandler)
	app.Get("/logout", auth.Logout)

	account := handlers.NewAccountHandler(*cfg, accountService)
	app.Get("/auth/:platform/callback", account.Callback)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	api.Get("/auth/:platform", account.Connect)

	user := handlers.NewUserHandler(userService)
	api.Get("/user/info", user.GetUserInfo)
	api.Post("/user/remove", user.RemoveUser)

	post := handlers.NewPostHandler(postService, client)
	api.Post("/posts/create", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Get("/posts/outcome", post.PostOutcome)
	api.Post("/posts/update", post.UpdatePost)
	api.Post("/posts/schedule", post.SchedulePost)
	api.Post("/posts/unschedule", post.UnschedulePost)
	api.Post("/posts/cancel", post.CancelPost)
	api.Post("/posts/publish", post.PublishNow)
	api.Post("/posts/duplicate", post.DuplicatePost)
	api.Post("/posts/remove", post.RemovePost)

	api.Get("/accounts", account.ListAccounts)
	api.Post("/accounts/remove", account.Disconnect)
	api.Post("/accounts/posting", account.SetPostingEnabled)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(socialAccountRepo, accountService, clock)

	//queue
	queueW := queue.NewQueue(postRepo, coordinator, clock)

	c := cron.New()
	c.AddFunc("@every 00h01m00s", func() {
		if err := scheduler.Sweep(context.Background()); err != nil {
			log.Printf("Sweep failed: %v", err)
		}
	})
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
