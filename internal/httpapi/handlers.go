// Package httpapi serves the slide catalog, DZI descriptors, and DeepZoom
// tiles over HTTP. Routing, middleware, and the response-writer wrapper
// are carried from the teacher's internal/http/handlers.go; the routes
// themselves are re-pointed at the VSI/DeepZoom domain (spec.md §4.H, §5)
// instead of the teacher's flat-image gallery.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"vsipyramid/internal/config"
	"vsipyramid/internal/deepzoom"
	"vsipyramid/internal/metrics"
	"vsipyramid/internal/slide"
	"vsipyramid/internal/slideerr"
	"vsipyramid/internal/slideopen"
	"vsipyramid/internal/slidescan"
	"vsipyramid/internal/tilecache"
)

// Handlers serves the slide-catalog and tile routes. It keeps one opened
// DeepZoom handle per slide ID alive for the life of the process — unlike
// the teacher's per-request vips open, backend.Open parses a tile index
// up front, so reopening it on every tile request would be wasteful.
type Handlers struct {
	config  *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	scanner *slidescan.Scanner
	cache   *tilecache.Cache

	mu     sync.Mutex
	opened map[string]*openSlide
}

type openSlide struct {
	slide *slide.Slide
	dz    *deepzoom.DeepZoom
}

func New(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics, scanner *slidescan.Scanner, cache *tilecache.Cache) *Handlers {
	return &Handlers{
		config:  cfg,
		logger:  logger,
		metrics: m,
		scanner: scanner,
		cache:   cache,
		opened:  make(map[string]*openSlide),
	}
}

// Close releases every DeepZoom handle opened during the process lifetime.
// Called from cmd/server's shutdown sequence.
func (h *Handlers) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, o := range h.opened {
		if err := o.dz.Close(); err != nil {
			h.logger.Warn("closing slide on shutdown", zap.String("id", id), zap.Error(err))
		}
	}
	h.opened = make(map[string]*openSlide)
}

// dzFor returns the DeepZoom handle for id, opening and caching it on first
// use. cfg's DZTileSize/DZOverlap/DZLimitBounds apply to every handle this
// process opens; a server restart is required to change them.
func (h *Handlers) dzFor(id string) (*deepzoom.DeepZoom, error) {
	h.mu.Lock()
	if o, ok := h.opened[id]; ok {
		h.mu.Unlock()
		return o.dz, nil
	}
	h.mu.Unlock()

	info := h.scanner.SlideByID(id)
	if info == nil {
		return nil, slideerr.New(slideerr.NotRecognized, "no slide with id %q", id)
	}
	path := h.scanner.SlidePathByID(id)

	s, _, _, err := slideopen.Open(path, h.cache)
	if err != nil {
		return nil, err
	}
	dz, err := deepzoom.Open(s, h.config.DZTileSize, h.config.DZOverlap, h.config.DZLimitBounds)
	if err != nil {
		s.Close()
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if o, ok := h.opened[id]; ok {
		dz.Close()
		return o.dz, nil
	}
	h.opened[id] = &openSlide{slide: s, dz: dz}
	h.metrics.OpenSlides.Set(float64(len(h.opened)))
	return dz, nil
}

func (h *Handlers) HandleSlides(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.scanner.Slides())
}

// HandleSlideRoutes dispatches /api/slides/{id}/... the way the teacher's
// HandleImageRoutes dispatches /api/images/{id}/..., by splitting the
// remaining path segments rather than using a full router.
func (h *Handlers) HandleSlideRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/slides/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	id := parts[0]
	switch {
	case len(parts) == 2 && parts[1] == "meta":
		h.handleMeta(w, r, id)
	case len(parts) == 2 && parts[1] == "dzi":
		h.handleDZI(w, r, id)
	case len(parts) >= 4 && parts[1] == "tiles":
		h.handleTile(w, r, id, parts[2:])
	default:
		http.NotFound(w, r)
	}
}

func (h *Handlers) handleMeta(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	dz, err := h.dzFor(id)
	if err != nil {
		writeSlideError(w, err)
		return
	}

	mppx, mppy := dz.GetMicronPerPixel()
	l0w, l0h := dz.GetL0Dimensions()

	props := make(map[string]string)
	for _, name := range dz.GetPropertyNames() {
		if v, ok := dz.GetPropertyValue(name); ok {
			props[name] = v
		}
	}

	meta := map[string]any{
		"id":          id,
		"level_count": dz.GetLevelCount(),
		"plane_count": dz.GetPlaneCount(),
		"tile_count":  dz.GetTileCount(),
		"l0_width":    l0w,
		"l0_height":   l0h,
		"mpp_x":       mppx,
		"mpp_y":       mppy,
		"properties":  props,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(meta)
}

func (h *Handlers) handleTile(w http.ResponseWriter, r *http.Request, id string, tileParts []string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if len(tileParts) < 2 {
		http.Error(w, "invalid tile path", http.StatusBadRequest)
		return
	}

	level, err := strconv.Atoi(tileParts[0])
	if err != nil || level < 0 {
		http.Error(w, "invalid level", http.StatusBadRequest)
		return
	}

	coord := tileParts[1]
	dot := strings.LastIndexByte(coord, '.')
	if dot < 0 {
		http.Error(w, "invalid tile filename", http.StatusBadRequest)
		return
	}
	ext := coord[dot+1:]
	coord = coord[:dot]

	colRow := strings.SplitN(coord, "_", 2)
	if len(colRow) != 2 {
		http.Error(w, "invalid tile coordinates", http.StatusBadRequest)
		return
	}
	col, err1 := strconv.Atoi(colRow[0])
	row, err2 := strconv.Atoi(colRow[1])
	if err1 != nil || err2 != nil || col < 0 || row < 0 {
		http.Error(w, "invalid tile coordinates", http.StatusBadRequest)
		return
	}

	var contentType string
	switch ext {
	case "jpg", "jpeg":
		contentType = "image/jpeg"
	case "png":
		contentType = "image/png"
	default:
		http.Error(w, "unsupported tile format", http.StatusBadRequest)
		return
	}

	plane := 0
	if p := r.URL.Query().Get("plane"); p != "" {
		plane, err = strconv.Atoi(p)
		if err != nil || plane < 0 {
			http.Error(w, "invalid plane", http.StatusBadRequest)
			return
		}
	}

	info := h.scanner.SlideByID(id)
	if info == nil {
		writeSlideError(w, slideerr.New(slideerr.NotRecognized, "no slide with id %q", id))
		return
	}
	format := info.Format

	dz, err := h.dzFor(id)
	if err != nil {
		h.metrics.ObserveTileRequest(format, "error")
		writeSlideError(w, err)
		return
	}

	_, _, _, outW, outH, _, _, err := dz.GetTileInfo(level, col, row)
	if err != nil {
		h.metrics.ObserveTileRequest(format, "error")
		writeSlideError(w, err)
		return
	}

	start := time.Now()
	dst := make([]byte, int(outW)*int(outH)*4)
	if err := dz.GetTile(dst, plane, level, col, row); err != nil {
		h.metrics.ObserveTileRequest(format, "error")
		writeSlideError(w, err)
		return
	}
	h.metrics.ObserveTileDecode(format, time.Since(start))
	h.metrics.ObserveTileRequest(format, "served")

	buf, err := encodeTile(dst, int(outW), int(outH), ext)
	if err != nil {
		h.logger.Error("encoding tile", zap.Error(err))
		http.Error(w, "failed to encode tile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Write(buf)
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeSlideError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case slideerr.Is(err, slideerr.NotRecognized):
		status = http.StatusNotFound
	case slideerr.Is(err, slideerr.InvalidArgument):
		status = http.StatusBadRequest
	case slideerr.Is(err, slideerr.UnsupportedError):
		status = http.StatusUnprocessableEntity
	}
	http.Error(w, err.Error(), status)
}

// extractIP is carried verbatim from the teacher: not for real production
// use due to potential spoofing, but fine for request-log attribution here.
func (h *Handlers) extractIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return strings.Split(ip, ":")[0]
	}
	if r.RemoteAddr != "" {
		return strings.Split(r.RemoteAddr, ":")[0]
	}
	return "unknown"
}
