package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// our logger (after RequestID)
	r.Use(RequestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", h.UploadDocument)
		r.Get("/{id}", h.GetDocument)
	})

	r.Route("/admin/queue", func(r chi.Router) {
		r.Get("/failed", h.ListFailedJobs)
		r.Get("/dead-letter", h.ListDeadLetters)
		r.Post("/requeue", h.RequeueInFlight)
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
