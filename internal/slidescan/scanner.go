// Package slidescan scans a directory for VSI/ETS slide roots and keeps a
// lightweight in-memory catalog of what each one is (format, level count,
// dimensions) alongside a JSON sidecar cache so a restart does not have to
// reopen every slide file just to list them. Adapted from the teacher's
// internal/image_list.Scanner: same directory-scan-plus-JSON-sidecar shape,
// generalized from a flat single-image catalog to a multi-backend pyramid
// catalog, and with upload handling dropped — this package only reads
// slide files, it never writes or renames them, since a VSI's payload
// directory name is derived from the .vsi file's own stem (internal/detect)
// and renaming would break that relationship.
package slidescan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vsipyramid/internal/slideopen"
	"vsipyramid/internal/tilecache"
)

// SlideInfo is the catalog entry for one discovered slide root.
type SlideInfo struct {
	ID           string  `json:"id"`
	Filename     string  `json:"filename"`
	ResolvedPath string  `json:"resolved_path"`
	Format       string  `json:"format"`
	LevelCount   int     `json:"level_count"`
	PlaneCount   int     `json:"plane_count"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	Bytes        int64   `json:"bytes"`

	path string // the top-level path Scan found (.vsi or .ets); not persisted
}

// rootExtensions are the file extensions Scan treats as the root of a
// slide: a .vsi metadata container (whose payload detect.Detect resolves
// via its sibling slidedata directory) or a bare .ets file opened directly.
// A loose .tif is not included here — unlike .ets, a standalone tiled TIFF
// has no reliable way to distinguish a slide root from any other tiled
// TIFF sitting in the directory, so scanning only picks it up as a VSI
// sibling, never as a root of its own.
var rootExtensions = map[string]bool{
	".vsi": true,
	".ets": true,
}

// Scanner scans a directory for slide roots and caches what it learns about
// each one in a SlideInfo, reusing a JSON sidecar across scans the way the
// teacher's image scanner reuses its per-image metadata file.
type Scanner struct {
	dir    string
	cache  *tilecache.Cache
	logger *zap.Logger
	slides []SlideInfo
}

// New builds a Scanner over dir, using cache to open slides during
// scanning (tile reads performed while probing dimensions are cached like
// any other read).
func New(dir string, cache *tilecache.Cache, logger *zap.Logger) *Scanner {
	return &Scanner{dir: dir, cache: cache, logger: logger, slides: nil}
}

func (s *Scanner) sidecarPath(slidePath string) string {
	return slidePath + ".meta.json"
}

// Scan rebuilds the catalog by listing dir's top-level entries. A .meta.json
// sidecar already present beside a slide file is trusted as-is; a slide
// with no sidecar is opened once (via slideopen) to learn its geometry and
// the result is cached to disk for the next Scan.
func (s *Scanner) Scan() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("slidescan: reading %q: %w", s.dir, err)
	}

	s.cleanupOrphanedSidecars(entries)

	slides := make([]SlideInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !rootExtensions[ext] {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())

		info, err := s.loadOrScan(path)
		if err != nil {
			s.logger.Warn("failed to scan slide", zap.String("path", path), zap.Error(err))
			continue
		}
		slides = append(slides, *info)
	}

	s.slides = slides
	return nil
}

func (s *Scanner) loadOrScan(path string) (*SlideInfo, error) {
	sidecar := s.sidecarPath(path)
	if data, err := os.ReadFile(sidecar); err == nil {
		var info SlideInfo
		if err := json.Unmarshal(data, &info); err == nil {
			info.path = path
			return &info, nil
		}
		s.logger.Warn("discarding unreadable sidecar", zap.String("path", sidecar))
	}

	info, err := s.probe(path)
	if err != nil {
		return nil, err
	}
	if err := s.saveSidecar(sidecar, info); err != nil {
		s.logger.Warn("failed to write sidecar", zap.String("path", sidecar), zap.Error(err))
	}
	return info, nil
}

// probe opens path just long enough to read its geometry, then closes it;
// the HTTP layer reopens the slide on its first request and keeps that
// handle for the life of the process.
func (s *Scanner) probe(path string) (*SlideInfo, error) {
	slide, resolved, format, err := slideopen.Open(path, s.cache)
	if err != nil {
		return nil, err
	}
	defer slide.Close()

	w, h, err := slide.LevelDimensions(0)
	if err != nil {
		return nil, err
	}

	fileInfo, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	return &SlideInfo{
		ID:           uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String(),
		Filename:     filepath.Base(path),
		ResolvedPath: resolved,
		Format:       format.String(),
		LevelCount:   slide.LevelCount(),
		PlaneCount:   slide.PlaneCount(),
		Width:        w,
		Height:       h,
		Bytes:        fileInfo.Size(),
		path:         path,
	}, nil
}

func (s *Scanner) saveSidecar(sidecar string, info *SlideInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}
	return os.WriteFile(sidecar, data, 0o644)
}

// cleanupOrphanedSidecars removes a .meta.json whose slide file has been
// deleted, mirroring the teacher's orphaned-JSON sweep.
func (s *Scanner) cleanupOrphanedSidecars(entries []os.DirEntry) {
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[e.Name()] = true
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".meta.json") {
			continue
		}
		slideName := strings.TrimSuffix(e.Name(), ".meta.json")
		if !present[slideName] {
			path := filepath.Join(s.dir, e.Name())
			if err := os.Remove(path); err != nil {
				s.logger.Warn("failed to delete orphaned sidecar", zap.String("path", path), zap.Error(err))
			} else {
				s.logger.Info("deleted orphaned sidecar", zap.String("path", path))
			}
		}
	}
}

// Slides returns the current catalog.
func (s *Scanner) Slides() []SlideInfo {
	return s.slides
}

// SlideByID returns the catalog entry for id, if present.
func (s *Scanner) SlideByID(id string) *SlideInfo {
	for i := range s.slides {
		if s.slides[i].ID == id {
			return &s.slides[i]
		}
	}
	return nil
}

// SlidePathByID returns the path an HTTP handler should pass to
// slideopen.Open to serve id, or "" if id is not in the catalog.
func (s *Scanner) SlidePathByID(id string) string {
	info := s.SlideByID(id)
	if info == nil {
		return ""
	}
	return info.path
}
