package main

import (
	"context"
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kaban-board/api"
	"kaban-board/domain"
	"kaban-board/storage"
	"kaban-board/tasks"
	"kaban-board/web"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	ctx := context.Background()
	store := openStore(ctx)

	tokenTTL := envDuration("TOKEN_TTL", 2*time.Hour)
	cacheTTL := envDuration("CACHE_TTL", time.Minute)

	var tokens api.TokenService
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		rc := redis.NewClient(redisOptions(redisConn))
		tokens = api.NewRedisTokens(rc, tokenTTL)
		if cacheTTL > 0 {
			store = storage.NewCache(store, rc, cacheTTL)
		}
		log.Info("redis connected: token store and board cache enabled")
	} else {
		tokens = api.NewMemoryTokens(tokenTTL)
		log.Info("no redis configured: using in-process token store")
	}

	svc := tasks.NewService(store, logger)
	seedTasks(ctx, svc)

	renderer, err := api.NewRenderer()
	if err != nil {
		log.Fatalf("templates: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Renderer = renderer
	e.Use(middleware.Recover())
	e.Use(echoprometheus.NewMiddleware("kaban"))
	e.GET("/metrics", echoprometheus.NewHandler())
	e.StaticFS("/static", echo.MustSubFS(web.Static, "static"))

	api.Register(e, svc, tokens, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// openStore selects the persistence driver. SQLite is the default so a
// bare `go run .` works; aztables serves shared deployments.
func openStore(ctx context.Context) tasks.Store {
	driver := os.Getenv("STORAGE_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")

	switch driver {
	case "sqlite":
		if connStr == "" {
			connStr = "./kaban.db"
		}
		s, err := storage.OpenSQLite(connStr)
		if err != nil {
			log.Fatalf("open sqlite: %v", err)
		}
		if err := s.Init(ctx); err != nil {
			log.Fatalf("init sqlite: %v", err)
		}
		return s
	case "aztables":
		tasksTable := os.Getenv("TASKS_TABLE")
		if connStr == "" || tasksTable == "" {
			log.Fatal("missing storage config")
		}
		s, err := storage.New(connStr, tasksTable)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		if err := s.Init(ctx); err != nil {
			log.Fatalf("init table: %v", err)
		}
		return s
	default:
		log.Fatalf("unknown STORAGE_DRIVER %q", driver)
		return nil
	}
}

// redisOptions accepts either a redis URL or the comma-separated
// host,password=...,ssl=true form some managed providers hand out.
func redisOptions(redisConn string) *redis.Options {
	opts, err := redis.ParseURL(redisConn)
	if err == nil {
		return opts
	}
	parts := strings.Split(redisConn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		log.Fatalf("invalid %s: %v", key, v)
	}
	return d
}

// seedTasks fills an empty board with a handful of example tasks so the
// first render is not blank.
func seedTasks(ctx context.Context, svc *tasks.Service) {
	existing, err := svc.List(ctx)
	if err != nil {
		log.Fatalf("list tasks: %v", err)
	}
	if len(existing) > 0 {
		return
	}

	now := time.Now().UTC()
	seed := []domain.Task{
		{Title: "Setup Database", Description: "Configure the task store", Status: domain.StatusDone, CreatedDate: now.AddDate(0, 0, -3)},
		{Title: "Create Models", Description: "Build the task and status types", Status: domain.StatusDone, CreatedDate: now.AddDate(0, 0, -2)},
		{Title: "Build Handlers", Description: "Implement CRUD operations", Status: domain.StatusInProgress, CreatedDate: now.AddDate(0, 0, -1)},
		{Title: "Create Views", Description: "Build the Kanban board interface", Status: domain.StatusReady, CreatedDate: now},
		{Title: "Add Drag & Drop", Description: "Implement drag and drop between columns", Status: domain.StatusBacklog, CreatedDate: now},
		{Title: "Testing", Description: "Write unit tests", Status: domain.StatusBacklog, CreatedDate: now},
	}
	for _, t := range seed {
		if _, err := svc.Create(ctx, t); err != nil {
			log.Fatalf("seed task %q: %v", t.Title, err)
		}
	}
	log.Infof("seeded %d example tasks", len(seed))
}
