package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	identitiesHandler := handlers.NewIdentitiesHandler(s.deps.Store, s.logger)
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Recognition, s.deps.Ledger, s.logger)

	s.router.Get("/api/v1/health", handlers.HealthCheck)
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		// Gallery
		r.Get("/identities", identitiesHandler.List)
		r.Post("/identities", identitiesHandler.Create)
		r.Get("/identities/{id}", identitiesHandler.Get)

		// Attendance
		r.Get("/attendance", attendanceHandler.List)
		r.Post("/attendance", attendanceHandler.Record)
		r.Post("/attendance/recognize", attendanceHandler.Recognize)
		r.Post("/attendance/recognize/image", attendanceHandler.RecognizeImage)
	})
}
