package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"catalogapi/internal/audit"
	"catalogapi/internal/config"
	"catalogapi/internal/crud"
	"catalogapi/internal/database"
	"catalogapi/internal/domain"
	"catalogapi/internal/filestore"
	"catalogapi/internal/middleware"
	"catalogapi/internal/modules/auth"
	"catalogapi/internal/modules/records"
	jwtsvc "catalogapi/internal/pkg/jwt"
	"catalogapi/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}

	if err := db.AutoMigrate(
		&domain.User{},
		&domain.ProductLine{},
		&domain.Product{},
		&domain.AuditLog{},
	); err != nil {
		log.Fatal("AutoMigrate failed:", err)
	}

	files := filestore.New(cfg.UploadDir, cfg.MaxUploadSize)
	hub := audit.NewHub()
	recorder := audit.NewRecorder(db, hub)

	registry := crud.DefaultRegistry(cfg.AuditLimit)
	engine := crud.NewEngine(db, registry, files, recorder)

	userRepo := repository.NewUserRepository(db)
	j := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL)

	authService := auth.NewService(userRepo, j, recorder)
	authHandler := auth.NewHandler(authService)
	recordsHandler := records.NewHandler(engine, registry, files)

	r := gin.Default()
	r.Use(middleware.ErrorLogger())
	r.Use(middleware.CORS())

	r.Static("/static/uploads", files.BaseDir())

	v1 := r.Group("/api/v1")
	{
		auth.RegisterPublicRoutes(v1, authHandler)

		protected := v1.Group("/")
		protected.Use(middleware.JWTAuth(j))
		{
			auth.RegisterProtectedRoutes(protected, authHandler)
			records.RegisterRoutes(protected, recordsHandler)
			protected.GET("/audit/feed", audit.FeedHandler(hub))
		}
	}

	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}
