package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docscope/backend/internal/domain"
	"github.com/docscope/backend/internal/planner"
	"github.com/docscope/backend/internal/repository/postgres"
	"github.com/docscope/backend/internal/usecase"
)

type Handler struct {
	queryUsecase *usecase.QueryUsecase
	paperUsecase *usecase.PaperUsecase
}

func NewHandler(query *usecase.QueryUsecase, paper *usecase.PaperUsecase) *Handler {
	return &Handler{queryUsecase: query, paperUsecase: paper}
}

type errorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.CodeOf(err)
	resp := errorResponse{
		ErrorCode: code,
		Message:   "request failed",
		RequestID: RequestID(r.Context()),
	}
	var appErr *domain.Error
	if errors.As(err, &appErr) {
		resp.Message = appErr.Message
		resp.Detail = appErr.Detail
	}
	writeJSON(w, domain.HTTPStatus(code), resp)
}

// ListPapers serves GET /papers: the full query engine.
func (h *Handler) ListPapers(w http.ResponseWriter, r *http.Request) {
	req, err := parseFilterRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.queryUsecase.ListPapers(r.Context(), *req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// parseFilterRequest maps query parameters onto the filter tuple. Malformed
// numbers fail the request here, before anything touches the database.
func parseFilterRequest(r *http.Request) (*domain.FilterRequest, error) {
	q := r.URL.Query()
	req := &domain.FilterRequest{
		SQLFilter:     q.Get("sql_filter"),
		SearchText:    strings.TrimSpace(q.Get("search_text")),
		EmbeddingType: q.Get("embedding_type"),
		SortField:     q.Get("sort_field"),
		SortDirection: q.Get("sort_direction"),
	}
	if fields := q.Get("fields"); fields != "" {
		for _, f := range strings.Split(fields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				req.Fields = append(req.Fields, f)
			}
		}
	}

	// target_count is the legacy alias the UI still sends; limit wins when
	// both are present. An explicit zero is an error, not "use the default".
	limitRaw, limitName := q.Get("limit"), "limit"
	if limitRaw == "" {
		limitRaw, limitName = q.Get("target_count"), "target_count"
	}
	var err error
	if limitRaw != "" {
		if req.Limit, err = intParam(limitRaw, limitName); err != nil {
			return nil, err
		}
		if req.Limit == 0 {
			return nil, domain.Invalid(limitName, "must be at least 1")
		}
	}
	if req.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		return nil, err
	}

	if v := q.Get("similarity_threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, domain.Invalid("similarity_threshold", "not a number")
		}
		req.SimilarityThreshold = t
	}
	if v := q.Get("bbox"); v != "" {
		req.BBox, err = planner.ParseBBox(v)
		if err != nil {
			return nil, err
		}
	}
	yearStart, err := intParam(q.Get("year_start"), "year_start")
	if err != nil {
		return nil, err
	}
	yearEnd, err := intParam(q.Get("year_end"), "year_end")
	if err != nil {
		return nil, err
	}
	switch {
	case yearStart != 0 && yearEnd != 0:
		req.YearRange = &domain.YearRange{Start: yearStart, End: yearEnd}
	case yearStart != 0 || yearEnd != 0:
		return nil, domain.Invalid("year_start", "year_start and year_end must be provided together")
	}

	if v := q.Get("disable_sort"); v != "" {
		req.DisableSort = v == "true" || v == "1"
	}
	return req, nil
}

func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.Invalid(name, "not an integer")
	}
	return n, nil
}

// GetPaper serves GET /papers/{id}.
func (h *Handler) GetPaper(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, domain.NewError(domain.CodePaperNotFound, "paper not found", "malformed paper id"))
		return
	}
	paper, err := h.paperUsecase.GetPaper(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paper)
}

// GetStats serves GET /stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.paperUsecase.GetStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Health serves GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.paperUsecase.Health(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// EnrichmentFields serves GET /sources/{source}/enrichment-fields.
func (h *Handler) EnrichmentFields(w http.ResponseWriter, r *http.Request) {
	tables, err := h.paperUsecase.EnrichmentFields(chi.URLParam(r, "source"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

// EnrichmentData serves GET /enrichment/data.
func (h *Handler) EnrichmentData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source, table, field := q.Get("source"), q.Get("table"), q.Get("field")
	if source == "" || table == "" || field == "" {
		writeError(w, r, domain.Invalid("source", "source, table and field are all required"))
		return
	}
	idsParam := q.Get("paper_ids")
	if idsParam == "" {
		writeError(w, r, domain.Invalid("paper_ids", "at least one paper id is required"))
		return
	}
	var ids []uuid.UUID
	for _, s := range strings.Split(idsParam, ",") {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			writeError(w, r, domain.Invalid("paper_ids", "malformed paper id "+s))
			return
		}
		ids = append(ids, id)
	}

	values, err := h.paperUsecase.EnrichmentData(r.Context(), source, table, field, ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if values == nil {
		values = []postgres.EnrichmentValue{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"values": values})
}
