// Package http exposes the exam desk over a JSON API.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mind-engage/examdesk/internal/audit"
	"github.com/mind-engage/examdesk/internal/auth"
	authmw "github.com/mind-engage/examdesk/internal/auth/middleware"
	"github.com/mind-engage/examdesk/internal/bank"
	"github.com/mind-engage/examdesk/internal/exam"
	"github.com/mind-engage/examdesk/internal/logger"
	"github.com/mind-engage/examdesk/internal/metrics"
	"github.com/mind-engage/examdesk/internal/notify"
	"github.com/mind-engage/examdesk/internal/rbac"
	"github.com/mind-engage/examdesk/internal/stats"
	"github.com/mind-engage/examdesk/internal/storage"
	"github.com/mind-engage/examdesk/internal/users"
)

type Deps struct {
	Questions *bank.Service
	Exams     *exam.Service
	Users     *users.Service
	Notify    *notify.Service
	Stats     *stats.Service
	Audit     audit.Log
	Blobs     storage.BlobStore
	Tokens    *authmw.AuthService
	// Google is nil when Google sign-in is disabled.
	Google *auth.Google
	// Ready reports whether backing stores answer; nil means always ready.
	Ready func(ctx context.Context) error
	Log   *logger.Logger

	PublicURL   string
	CORSOrigins []string
	Timeout     time.Duration
}

type Server struct {
	Deps
	log *logger.Logger
}

func NewServer(d Deps) *Server {
	if d.Timeout <= 0 {
		d.Timeout = 60 * time.Second
	}
	return &Server{Deps: d, log: d.Log.With("http")}
}

// Router builds the chi router: public auth and probes, then the JWT
// protected API where each route demands a permission.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.log.Std(), NoColor: true}))
	r.Use(s.log.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Post("/auth/login", s.login)
	if s.Google != nil {
		r.Get("/auth/google/login", s.Google.LoginHandler())
		r.Get("/auth/google/callback", s.Google.CallbackHandler())
	}

	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(s.Tokens))
		pr.Use(authmw.AttachRoleFromStore(s.Users))
		pr.Use(middleware.Timeout(s.Timeout))

		pr.Get("/auth/me", s.me)

		pr.Route("/questions", func(qr chi.Router) {
			qr.With(rbac.Require("question:view")).Get("/", s.listQuestions)
			qr.With(rbac.Require("question:edit")).Post("/", s.createQuestion)
			qr.With(rbac.Require("question:view")).Get("/topics", s.questionTopics)
			qr.With(rbac.Require("question:import")).Post("/import", s.importQuestions)
			qr.With(rbac.Require("question:import")).Post("/import/qti", s.importQTI)
			qr.With(rbac.Require("question:view")).Get("/{id}", s.getQuestion)
			qr.With(rbac.Require("question:edit")).Put("/{id}", s.updateQuestion)
			qr.With(rbac.Require("question:edit")).Delete("/{id}", s.deleteQuestion)
		})

		pr.Route("/exams", func(er chi.Router) {
			er.With(rbac.Require("exam:view")).Get("/", s.listExams)
			er.With(rbac.Require("exam:edit")).Post("/", s.createExam)
			er.With(rbac.Require("exam:view")).Get("/{id}", s.getExam)
			er.With(rbac.Require("exam:edit")).Patch("/{id}", s.updateExam)
			er.With(rbac.Require("exam:edit")).Delete("/{id}", s.deleteExam)
			er.With(rbac.Require("exam:edit")).Get("/{id}/detail", s.examDetail)
			er.With(rbac.Require("exam:publish")).Post("/{id}/publish", s.publishExam)
			er.With(rbac.Require("exam:publish")).Post("/{id}/close", s.closeExam)
			er.With(rbac.Require("exam:publish")).Post("/{id}/release", s.releaseResults)
			er.With(rbac.Require("exam:autofill")).Post("/{id}/autofill", s.autoFill)
			er.With(rbac.Require("exam:export")).Get("/{id}/export", s.exportExam)
			er.With(rbac.Require("exam:export")).Get("/{id}/results.csv", s.resultsCSV)
			er.With(rbac.Require("stats:view")).Get("/{id}/stats", s.examStats)
		})

		pr.Route("/attempts", func(ar chi.Router) {
			ar.With(rbac.Require("attempt:create")).Post("/", s.startAttempt)
			ar.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).Get("/", s.listAttempts)
			ar.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).Get("/{id}", s.getAttempt)
			ar.With(rbac.Require("attempt:save")).Post("/{id}/responses", s.saveResponses)
			ar.With(rbac.Require("attempt:submit")).Post("/{id}/submit", s.submitAttempt)
		})

		pr.Route("/users", func(ur chi.Router) {
			ur.With(rbac.Require("users:list")).Get("/", s.listUsers)
			ur.With(rbac.Require("users:manage")).Post("/", s.createUser)
			ur.With(rbac.Require("users:bulk_upsert")).Post("/bulk", s.bulkUsers)
			ur.With(rbac.Require("user:change_password")).Post("/change-password", s.changePassword)
			ur.With(rbac.Require("users:list")).Get("/{id}", s.getUser)
			ur.With(rbac.Require("users:manage")).Patch("/{id}", s.updateUser)
			ur.With(rbac.Require("users:manage")).Delete("/{id}", s.deleteUser)
			ur.With(rbac.Require("users:pii")).Get("/{id}/pii", s.exportPII)
			ur.With(rbac.Require("users:manage")).Post("/{id}/reset-password", s.resetPassword)
		})

		pr.With(rbac.Require("notify:view")).Get("/notifications", s.listNotifications)
		pr.With(rbac.Require("notify:send")).Post("/notifications", s.sendNotification)

		pr.With(rbac.Require("audit:view")).Get("/audit", s.searchAudit)

		pr.With(rbac.Require("media:upload")).Post("/media", s.uploadMedia)
		pr.With(rbac.Require("media:view")).Get("/media/*", s.getMedia)
		pr.With(rbac.Require("media:upload")).Delete("/media/*", s.deleteMedia)

		pr.With(rbac.Require("stats:view")).Get("/dashboard", s.dashboard)
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.Ready(ctx); err != nil {
			s.log.Warnf("readyz: %v", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// actor is the id of the authenticated user.
func actor(r *http.Request) string { return authmw.SubjectFromContext(r.Context()) }

func role(r *http.Request) string { return rbac.RoleFromContext(r.Context()) }

// record appends an audit event; failures are logged, never returned.
func (s *Server) record(r *http.Request, typ, key string, data any) {
	if err := audit.Record(r.Context(), s.Audit, actor(r), typ, key, data); err != nil {
		s.log.Error("audit append", err, map[string]any{"type": typ, "key": key})
	}
}
