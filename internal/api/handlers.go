package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/minasearch/frontier/internal/frontier"
	"github.com/minasearch/frontier/internal/metrics"
	"github.com/minasearch/frontier/internal/search"
)

type searchRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
	Limit     int    `json:"limit"`
}

func (s *Server) postSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if search.Normalize(req.Query) == "" {
		metrics.ObserveSearch("bad_request", 0)
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	resp, err := s.searchSvc.Search(r.Context(), req.Query, req.SessionID, req.Limit)
	if err != nil {
		metrics.ObserveSearch("error", 0)
		s.logger.Error("search failed", zap.String("query", req.Query), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	metrics.ObserveSearch("ok", len(resp.Expansions))
	writeJSON(w, http.StatusOK, resp)
}

type clickRequest struct {
	SearchID string `json:"search_id"`
	URL      string `json:"url"`
	Rank     int    `json:"rank"`
}

func (s *Server) postClick(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.searchSvc.RecordClick(r.Context(), req.SearchID, req.URL, req.Rank); err != nil {
		if errors.Is(err, search.ErrEventNotFound) {
			writeError(w, http.StatusNotFound, "search not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

type relationRequest struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Type   string  `json:"type"`
	Score  float64 `json:"score"`
	Origin string  `json:"origin"`
}

// postRelation upserts one relation edge. This is the operator surface
// for curated synonyms and corrections.
func (s *Server) postRelation(w http.ResponseWriter, r *http.Request) {
	var req relationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	origin := req.Origin
	if origin == "" {
		origin = string(search.OriginManual)
	}
	rel := search.QueryRelation{
		Source:    search.Normalize(req.Source),
		Target:    search.Normalize(req.Target),
		Type:      search.RelationType(req.Type),
		Score:     req.Score,
		Origin:    search.RelationOrigin(origin),
		UpdatedAt: s.clock.Now(),
	}
	if err := s.relations.Upsert(r.Context(), rel); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

type crawlURLsRequest struct {
	URLs  []string `json:"urls"`
	Depth int      `json:"depth"`
}

type crawlURLsResponse struct {
	Submitted int `json:"submitted"`
	Inserted  int `json:"inserted"`
	Skipped   int `json:"skipped"`
}

// postCrawlURLs seeds the frontier. Trap-like and malformed URLs are
// skipped rather than failing the whole batch.
func (s *Server) postCrawlURLs(w http.ResponseWriter, r *http.Request) {
	var req crawlURLsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one URL required")
		return
	}
	if req.Depth < 0 {
		writeError(w, http.StatusBadRequest, "depth must be >= 0")
		return
	}

	now := s.clock.Now()
	targets := make([]frontier.CrawlTarget, 0, len(req.URLs))
	skipped := 0
	for _, raw := range req.URLs {
		raw = strings.TrimSpace(raw)
		if raw == "" || s.detector.Suspicious(raw) {
			skipped++
			continue
		}
		target, err := frontier.NewTarget(raw, req.Depth, s.policy, now)
		if err != nil {
			skipped++
			continue
		}
		targets = append(targets, target)
	}

	inserted := 0
	if len(targets) > 0 {
		var err error
		inserted, err = s.store.Register(r.Context(), targets)
		if err != nil {
			s.logger.Error("register urls failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to register urls")
			return
		}
		metrics.ObserveRegistered(inserted)
	}
	writeJSON(w, http.StatusAccepted, crawlURLsResponse{
		Submitted: len(req.URLs),
		Inserted:  inserted,
		Skipped:   skipped,
	})
}

func (s *Server) getCrawlStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("frontier stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getCrawlTarget(w http.ResponseWriter, r *http.Request) {
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	target, err := s.store.Get(r.Context(), url)
	if err != nil {
		if errors.Is(err, frontier.ErrNotFound) {
			writeError(w, http.StatusNotFound, "target not found")
			return
		}
		s.logger.Error("get target failed", zap.String("url", url), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load target")
		return
	}
	writeJSON(w, http.StatusOK, target)
}
