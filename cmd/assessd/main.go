package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	api "github.com/classforge/classforge-lms/internal/api/http"
	"github.com/classforge/classforge-lms/internal/assessment"
	auth "github.com/classforge/classforge-lms/internal/auth/middleware"
	"github.com/classforge/classforge-lms/internal/config"
	"github.com/classforge/classforge-lms/internal/db"
	"github.com/classforge/classforge-lms/internal/eventlog"
	"github.com/classforge/classforge-lms/internal/grading"
	"github.com/classforge/classforge-lms/internal/rbac"
)

func main() {
	_ = godotenv.Load() // optional .env for local runs
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	// --- Engine ---
	grader := grading.NewDefaultGrader(grading.WithPartialCredit(cfg.PartialCredit))
	events := eventlog.NewRepo(dbh)
	store := assessment.NewSQLStore(dbh, cfg.DBDriver, grader, time.Now).WithEventLog(events)

	// --- Auth ---
	authSvc := auth.NewAuthService(cfg.AuthSecret)

	// --- Router ---
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

	r.Post("/auth/login", auth.LoginHandler(dbh, authSvc, auth.AdminCreds{
		User:     cfg.AdminUser,
		PassHash: cfg.AdminPassHash,
	}))

	// Protected API (JWT → subject/role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		// Authoring (teacher)
		pr.With(rbac.Require("quiz:author")).
			Post("/quizzes", api.CreateQuizHandler(store))
		pr.With(rbac.Require("quiz:author")).
			Put("/quizzes/{quizID}", api.UpdateQuizHandler(store))
		pr.With(rbac.Require("quiz:author")).
			Post("/quizzes/{quizID}/questions", api.AuthorQuestionHandler(store))
		pr.With(rbac.Require("quiz:author")).
			Post("/questions/{questionID}/choices", api.AuthorChoiceHandler(store))
		pr.With(rbac.Require("quiz:author")).
			Post("/questions/{questionID}/answer-keys", api.AuthorAnswerKeyHandler(store))
		pr.With(rbac.Require("quiz:publish")).
			Post("/quizzes/{quizID}/publish", api.PublishQuizHandler(store))

		pr.With(rbac.Require("quiz:view")).
			Get("/quizzes/{quizID}", api.GetQuizHandler(store))

		// Attempt flow (student)
		pr.With(rbac.Require("attempt:create")).
			Post("/attempts", api.StartAttemptHandler(store))
		pr.With(rbac.Require("attempt:answer")).
			Put("/attempts/{attemptID}/answers/{questionID}", api.RecordAnswerHandler(store))
		pr.With(rbac.Require("attempt:submit")).
			Post("/attempts/{attemptID}/submit", api.SubmitAttemptHandler(store))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}", api.GetAttemptHandler(store))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}/answers", api.GetAttemptAnswersHandler(store))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", api.ListAttemptsHandler(store))

		// Grading (teacher)
		pr.With(rbac.Require("attempt:grade")).
			Post("/attempts/{attemptID}/grade", api.GradeAttemptHandler(store))
		pr.With(rbac.Require("attempt:grade")).
			Post("/attempts/{attemptID}/answers/{questionID}/grade", api.GradeAnswerHandler(store))
		pr.With(rbac.Require("attempt:grade")).
			Post("/attempts/{attemptID}/recompute", api.RecomputeAttemptHandler(store))

		// Ops
		pr.With(rbac.Require("users:manage")).
			Post("/users", auth.CreateUserHandler(dbh))
		pr.With(rbac.Require("events:tail")).
			Get("/events", api.TailEventsHandler(events))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
