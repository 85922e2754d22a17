package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	api "github.com/examforge/examforge/internal/api/http"
	auth "github.com/examforge/examforge/internal/auth/middleware"
	"github.com/examforge/examforge/internal/config"
	"github.com/examforge/examforge/internal/db"
	"github.com/examforge/examforge/internal/exam"
	"github.com/examforge/examforge/internal/grading"
	"github.com/examforge/examforge/internal/rbac"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	if err := bootstrapAdmin(ctx, dbh, cfg.AdminUser, cfg.AdminPassHash); err != nil {
		log.Fatalf("bootstrap admin: %v", err)
	}

	loc, err := time.LoadLocation(cfg.VenueTZ)
	if err != nil {
		log.Fatalf("bad VENUE_TZ %q: %v", cfg.VenueTZ, err)
	}

	store := exam.NewSQLStore(dbh, cfg.DBDriver)
	svc := exam.NewService(store, exam.NewWindow(loc), grading.NewGrader())
	authSvc := auth.NewAuthService(cfg.AuthSecret)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))

	// Protected API (JWT -> role from DB -> RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(dbh, true))

		// Account
		pr.With(rbac.Require("user:view-self")).
			Get("/users/me", api.MeHandler(store))
		pr.With(rbac.Require("user:set_role")).
			Post("/users/role", api.SetRoleHandler(store))
		pr.With(rbac.Require("user:change_password")).
			Post("/users/change-password", api.ChangePasswordHandler(dbh))

		// Admin: test and question management, user administration
		pr.With(rbac.Require("test:create")).
			Post("/tests", api.CreateTestHandler(store))
		pr.With(rbac.Require("question:create")).
			Post("/tests/{testID}/questions", api.CreateQuestionHandler(store))
		pr.With(rbac.Require("users:bulk_upsert")).
			Post("/users/bulk", api.BulkUpsertUsersHandler(dbh))
		pr.With(rbac.Require("users:list")).
			Get("/users", api.ListUsersHandler(dbh))

		// Shared reads
		pr.With(rbac.Require("test:view")).
			Get("/tests", api.ListTestsHandler(store))
		pr.With(rbac.Require("test:view")).
			Get("/tests/{testID}", api.GetTestHandler(store))
		pr.With(rbac.Require("test:view")).
			Get("/tests/{testID}/questions", api.ListQuestionsHandler(store))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", api.ListAttemptsHandler(store))

		// Student flow
		pr.With(rbac.Require("attempt:create")).
			Post("/tests/{testID}/attempt", api.AttemptHandler(svc))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/tests/{testID}/attempt", api.AttemptStatusHandler(svc))
		pr.With(rbac.Require("attempt:save")).
			Post("/tests/{testID}/responses", api.SaveResponsesHandler(svc))
		pr.With(rbac.Require("attempt:submit")).
			Post("/tests/{testID}/submit", api.SubmitHandler(svc))
	})

	log.Printf("listening on %s (db=%s, tz=%s)", cfg.HTTPAddr, cfg.DBDriver, cfg.VenueTZ)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}

// bootstrapAdmin ensures the configured admin account exists so a fresh
// deployment is immediately operable.
func bootstrapAdmin(ctx context.Context, dbh *sql.DB, username, passHash string) error {
	var id string
	err := dbh.QueryRowContext(ctx, `SELECT id FROM users WHERE username=$1`, username).Scan(&id)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}
	_, err = dbh.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1,$2,$3,'admin',$4)`,
		uuid.NewString(), username, passHash, time.Now().Unix())
	return err
}
