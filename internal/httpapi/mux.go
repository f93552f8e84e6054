package httpapi

import "net/http"

// Mux builds the complete route table for cmd/server: the slide catalog
// and tile routes wrapped in logging + CORS middleware, plus /healthz.
// /metrics is mounted separately by the caller against metrics.Promhttp(),
// since it reads the process-wide Prometheus registry rather than
// anything Handlers owns.
func (h *Handlers) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/slides", h.HandleSlides)
	mux.HandleFunc("/api/slides/", h.HandleSlideRoutes)
	mux.HandleFunc("/healthz", h.HandleHealthz)

	return h.CORSMiddleware(h.RequestLoggingMiddleware(mux))
}
