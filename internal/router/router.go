package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"studymate-backend/internal/handlers"
	"studymate-backend/internal/metrics"
	"studymate-backend/internal/middleware"
)

func New(
	log *zap.Logger,
	jwtAuth *middleware.JWTAuth,
	generateLimiter *middleware.RateLimiter,
	studyHandler *handlers.StudyHandler,
	battleHandler *handlers.BattleHandler,
	liveHandler *handlers.LiveHandler,
	communityHandler *handlers.CommunityHandler,
	wsHandler http.HandlerFunc,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.CORS(frontendURL))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {

		// ──── WebSocket (token in query) ────
		r.Get("/ws", wsHandler)

		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)

			// ──── Study Routes ────
			r.Route("/study", func(r chi.Router) {
				r.With(generateLimiter.Middleware).Post("/generate", studyHandler.Generate)
				r.Get("/materials", studyHandler.Materials)
				r.Delete("/materials/{id}", studyHandler.DeleteMaterial)
				r.Get("/quizzes", studyHandler.Quizzes)
				r.Post("/quizzes/{id}/results", studyHandler.SubmitQuizResult)
				r.Get("/history", studyHandler.History)
				r.Get("/stats", studyHandler.Stats)
				r.Post("/time", studyHandler.AddStudyTime)
				r.Delete("/data", studyHandler.ClearData)
			})

			// ──── Battle Routes ────
			r.Route("/battles", func(r chi.Router) {
				r.Post("/", battleHandler.Start)
				r.Get("/", battleHandler.History)
				r.Get("/{id}", battleHandler.Get)
				r.Post("/{id}/answers", battleHandler.Answer)
			})

			// ──── Live Class Routes ────
			r.Route("/live/sessions", func(r chi.Router) {
				r.Post("/", liveHandler.Start)
				r.Get("/{id}", liveHandler.Get)
				r.Post("/{id}/play", liveHandler.Play)
				r.Post("/{id}/pause", liveHandler.Pause)
				r.Post("/{id}/stop", liveHandler.Stop)
				r.Post("/{id}/chat", liveHandler.Chat)
			})

			// ──── Video Routes ────
			r.Get("/videos", liveHandler.Videos)
			r.Get("/videos/live", liveHandler.LatestLive)

			// ──── Community Routes ────
			r.Route("/community/posts", func(r chi.Router) {
				r.Get("/", communityHandler.List)
				r.Post("/", communityHandler.Create)
				r.Post("/{id}/like", communityHandler.Like)
			})
		})
	})

	return r
}
