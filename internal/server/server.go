// Package server exposes the job/catalog/preview pipeline over a thin
// net/http surface, following the teacher's serve.go style of small
// top-level handlers registered on one ServeMux; routing/validation stays
// intentionally minimal, the hard engineering lives below this package.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/osmboundaries/internal/catalog"
	"github.com/MeKo-Tech/osmboundaries/internal/downloader"
	"github.com/MeKo-Tech/osmboundaries/internal/jobs"
	"github.com/MeKo-Tech/osmboundaries/internal/landclip"
	"github.com/MeKo-Tech/osmboundaries/internal/preview"
)

// Server wires the job manager, catalog, preview fetcher, and land dataset
// status into HTTP handlers.
type Server struct {
	Jobs      *jobs.Manager
	Catalog   *catalog.Catalog
	Preview   *preview.Fetcher
	LandStore *landclip.Store
	DataDir   string
	Logger    *slog.Logger
}

// New constructs a Server; nil Logger falls back to slog.Default().
func New(jobMgr *jobs.Manager, cat *catalog.Catalog, prev *preview.Fetcher, landStore *landclip.Store, dataDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Jobs: jobMgr, Catalog: cat, Preview: prev, LandStore: landStore, DataDir: dataDir, Logger: logger}
}

// Mux builds the ServeMux routing every API endpoint to its handler.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/land-polygons/status", s.handleLandPolygonsStatus)
	mux.HandleFunc("/api/areas/search", s.handleAreasSearch)
	mux.HandleFunc("/api/catalog/ids", s.handleCatalogIDs)
	mux.HandleFunc("/api/catalog/details", s.handleCatalogDetails)
	mux.HandleFunc("/api/catalog/preview", s.handleCatalogPreview)
	mux.HandleFunc("/api/catalog/land-preview", s.handleLandPreview)
	mux.HandleFunc("/api/jobs", s.handleJobsCreate)
	mux.HandleFunc("/api/jobs/", s.handleJobsRoute)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("empty body")
	}
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := landclip.StatusOf(s.LandStore.ZipPath)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                    true,
		"land_polygons_present": status.Present,
		"active_jobs":           s.Jobs.ActiveCount(),
	})
}

func (s *Server) handleLandPolygonsStatus(w http.ResponseWriter, r *http.Request) {
	status := landclip.StatusOf(s.LandStore.ZipPath)
	resp := map[string]any{"present": status.Present}
	if status.Present {
		resp["path"] = status.Path
		resp["size_bytes"] = status.SizeBytes
		resp["mtime_epoch"] = status.MtimeEpoch
		resp["meta"] = status.Meta
	}
	writeJSON(w, http.StatusOK, resp)
}

type searchRequest struct {
	Query      string `json:"query"`
	AdminLevel string `json:"admin_level"`
	Limit      int    `json:"limit"`
}

func (s *Server) handleAreasSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	items, err := s.Catalog.SearchAdminAreas(r.Context(), req.Query, req.AdminLevel, limit)
	if err != nil {
		writeOverpassError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type catalogIDsRequest struct {
	AdminLevel       string `json:"admin_level"`
	ParentRelationID int64  `json:"parent_relation_id"`
}

func (s *Server) handleCatalogIDs(w http.ResponseWriter, r *http.Request) {
	var req catalogIDsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ParentRelationID == 0 && req.AdminLevel != "2" {
		writeError(w, http.StatusBadRequest, "worldwide scope requires admin_level 2")
		return
	}

	ids, err := s.Catalog.ListRelationIDs(r.Context(), req.AdminLevel, req.ParentRelationID)
	if err != nil {
		writeOverpassError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"relation_ids": ids, "count": len(ids)})
}

type catalogDetailsRequest struct {
	RelationIDs []int64 `json:"relation_ids"`
}

func (s *Server) handleCatalogDetails(w http.ResponseWriter, r *http.Request) {
	var req catalogDetailsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.RelationIDs) > 500 {
		writeError(w, http.StatusBadRequest, "relation_ids exceeds limit of 500")
		return
	}
	items, err := s.Catalog.FetchRelationDetails(r.Context(), req.RelationIDs)
	if err != nil {
		writeOverpassError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type previewRequest struct {
	RelationIDs      []int64 `json:"relation_ids"`
	AdminLevel       string  `json:"admin_level"`
	ParentRelationID int64   `json:"parent_relation_id"`
	FixAntimeridian  bool    `json:"fix_antimeridian"`
	OverpassURL      string  `json:"overpass_url"`
}

func (s *Server) handleCatalogPreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.RelationIDs) > 400 {
		writeError(w, http.StatusBadRequest, "relation_ids exceeds limit of 400")
		return
	}

	s.Preview.FixAntimeridian = req.FixAntimeridian
	var scope *preview.Scope
	if req.AdminLevel != "" {
		scope = &preview.Scope{AdmName: scopeNameFor(req.ParentRelationID), AdminLevel: req.AdminLevel}
	}
	fc, err := s.Preview.PreviewFeatures(r.Context(), req.RelationIDs, scope, req.OverpassURL)
	if err != nil {
		writeOverpassError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

type landPreviewRequest struct {
	RelationIDs      []int64 `json:"relation_ids"`
	AdminLevel       string  `json:"admin_level"`
	ParentRelationID int64   `json:"parent_relation_id"`
}

func (s *Server) handleLandPreview(w http.ResponseWriter, r *http.Request) {
	var req landPreviewRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.RelationIDs) > 200 {
		writeError(w, http.StatusBadRequest, "relation_ids exceeds limit of 200")
		return
	}
	scope := preview.Scope{AdmName: scopeNameFor(req.ParentRelationID), AdminLevel: req.AdminLevel}
	fc := preview.LandPreviewFeatures(s.DataDir, scope, req.RelationIDs)
	writeJSON(w, http.StatusOK, fc)
}

type createJobRequest struct {
	AdminLevel            string           `json:"admin_level"`
	ParentRelationID      int64            `json:"parent_relation_id"`
	SelectedRelationIDs   []int64          `json:"selected_relation_ids"`
	RelationNames         map[string]string `json:"relation_names"`
	ClipLand              bool             `json:"clip_land"`
	ForceRefreshOSMSource bool             `json:"force_refresh_osm_source"`
	FixAntimeridian       bool             `json:"fix_antimeridian"`
	OverpassURL           string           `json:"overpass_url"`
}

func (s *Server) handleJobsCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req createJobRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ParentRelationID == 0 && req.AdminLevel != "2" {
		writeError(w, http.StatusBadRequest, "worldwide scope requires admin_level 2")
		return
	}
	if len(req.SelectedRelationIDs) > 5000 {
		writeError(w, http.StatusBadRequest, "selected_relation_ids exceeds limit of 5000")
		return
	}

	names := make(map[int64]string, len(req.RelationNames))
	for k, v := range req.RelationNames {
		if id, err := strconv.ParseInt(k, 10, 64); err == nil {
			names[id] = v
		}
	}
	admName := scopeNameFor(req.ParentRelationID)

	job := s.Jobs.CreateJob(downloader.Params{
		AdmName:               admName,
		AdminLevel:            req.AdminLevel,
		RelationIDs:           req.SelectedRelationIDs,
		RelationNames:         names,
		ClipLand:              req.ClipLand,
		ForceRefreshOSMSource: req.ForceRefreshOSMSource,
		FixAntimeridian:       req.FixAntimeridian,
		OverpassURL:           req.OverpassURL,
	})
	writeJSON(w, http.StatusOK, map[string]any{"job_id": job.ID, "adm_name": admName, "admin_level": req.AdminLevel})
}

func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if rest == "" {
		writeError(w, http.StatusNotFound, "missing job id")
		return
	}

	if strings.HasSuffix(rest, "/cancel") {
		jobID := strings.TrimSuffix(rest, "/cancel")
		s.handleJobCancel(w, r, jobID)
		return
	}
	if strings.HasSuffix(rest, "/events") {
		jobID := strings.TrimSuffix(rest, "/events")
		s.handleJobEvents(w, r, jobID)
		return
	}
	s.handleJobGet(w, r, rest)
}

func (s *Server) handleJobGet(w http.ResponseWriter, r *http.Request, jobID string) {
	job, ok := s.Jobs.Get(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request, jobID string) {
	if !s.Jobs.Cancel(jobID) {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func scopeNameFor(parentRelationID int64) string {
	if parentRelationID == 0 {
		return "world_GLOBAL_r0"
	}
	return fmt.Sprintf("r%d", parentRelationID)
}

func writeOverpassError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadGateway, err.Error())
}
