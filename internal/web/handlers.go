package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/addrnorm/internal/core"
	"github.com/JonMunkholm/addrnorm/internal/logging"
	"github.com/JonMunkholm/addrnorm/internal/store"
	"github.com/JonMunkholm/addrnorm/internal/table"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in
// memory before spilling to disk.
const multipartMemory = 32 << 20

// withRequestMetadata records the client IP and User-Agent for the change
// log. RemoteAddr is already resolved by TrustedRealIP.
func withRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, r.RemoteAddr)
	return core.ContextWithUserAgent(ctx, r.UserAgent())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexPage(s.cfg.Pipeline.OutputMode, s.service.EnrichmentAvailable()).Render(r.Context(), w); err != nil {
		s.log.Error("render index", "error", err)
	}
}

func (s *Server) handleProfilePage(w http.ResponseWriter, r *http.Request) {
	enrichURL := "disabled"
	if s.parser != nil {
		enrichURL = s.parser.BaseURL()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := profilePage(s.service.Profile().Stats(), enrichURL).Render(r.Context(), w); err != nil {
		s.log.Error("render profile", "error", err)
	}
}

// handleNormalize normalizes an uploaded CSV or XLSX file and returns the
// output table. The batch id is returned in X-Batch-ID so the report can be
// fetched afterwards.
func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			s.respondError(w, r, fmt.Errorf("upload: %w", errRequestTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, fmt.Errorf("parse form: %w: %v", errNoFile, err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	modeValue := r.FormValue("mode")
	if modeValue == "" {
		modeValue = s.cfg.Pipeline.OutputMode
	}
	mode, err := table.ParseMode(modeValue)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	enrich := parseBool(r.FormValue("enrich"))
	if enrich && !s.service.EnrichmentAvailable() {
		s.respondError(w, r, errEnrichDisabled, http.StatusBadRequest)
		return
	}

	format := strings.ToLower(r.FormValue("format"))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		s.respondError(w, r, fmt.Errorf("%w: %q", table.ErrUnsupportedFormat, format), http.StatusBadRequest)
		return
	}

	if err := s.limiter.Acquire(r.Context()); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	defer s.limiter.Release()

	in, err := table.Read(header.Filename, file)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if len(in.AddressColumns()) == 0 {
		logging.With(r.Context(), s.log).Warn("no address columns in upload", "file", header.Filename, "header", in.Header)
	}
	records := in.Records()

	ctx, cancel := context.WithTimeout(withRequestMetadata(r.Context(), r), s.cfg.Upload.Timeout)
	defer cancel()

	batch, err := s.service.NormalizeBatch(ctx, records, core.BatchOptions{
		FileName: header.Filename,
		Mode:     string(mode),
		Enrich:   enrich,
		Report:   s.reportOptions(s.cfg.Report.PerFieldCap),
	})
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	out, err := table.Output(in, batch.Rows, mode)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	base := strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	w.Header().Set("X-Batch-ID", batch.ID)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_normalized.%s"`, sanitizeFilename(base), format))

	if format == "xlsx" {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		err = table.WriteXLSX(w, out)
	} else {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		err = table.WriteCSV(w, out)
	}
	if err != nil {
		// Headers are gone; only log
		s.log.Error("write output", "batch_id", batch.ID, "error", err)
	}
}

// handleNormalizeRecord normalizes one JSON record.
func (s *Server) handleNormalizeRecord(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	var req recordRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if isTooLarge(err) {
			s.respondError(w, r, fmt.Errorf("record: %w", errRequestTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, fmt.Errorf("decode request: %w", err), http.StatusBadRequest)
		return
	}

	if err := s.validator.Validate(&req); err != nil {
		var rerr RecordError
		if errors.As(err, &rerr) {
			s.log.Warn("record rejected", "error", err)
			writeJSONStatus(w, http.StatusBadRequest, struct {
				ErrorResponse
				Fields []FieldError `json:"fields"`
			}{errorBody(err), rerr})
			return
		}
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if req.Enrich && !s.service.EnrichmentAvailable() {
		s.respondError(w, r, errEnrichDisabled, http.StatusBadRequest)
		return
	}

	row := s.service.NormalizeRecord(r.Context(), req.RawAddressRecord)
	if req.Enrich {
		row = s.service.Enrich(r.Context(), req.RawAddressRecord, row)
	}
	writeJSON(w, row)
}

// batchResponse adds the per-field summary to a batch.
type batchResponse struct {
	*core.BatchResult
	DurationMs int64               `json:"durationMs"`
	Summary    []core.FieldSummary `json:"summary"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	b, err := s.service.Batch(chi.URLParam(r, "batchID"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, batchResponse{
		BatchResult: b,
		DurationMs:  b.Duration.Milliseconds(),
		Summary:     b.Report.Summary(),
	})
}

// handleBatchReport renders the change report. cap overrides the per-field
// line cap; format=json returns lines and summary as JSON.
func (s *Server) handleBatchReport(w http.ResponseWriter, r *http.Request) {
	b, err := s.service.Batch(chi.URLParam(r, "batchID"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	report := b.Report
	if v := r.URL.Query().Get("cap"); v != "" {
		report = core.BuildReport(b.Changes, s.reportOptions(parseIntParam(r, "cap", 0)))
	}

	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, map[string]any{
			"batchId": b.ID,
			"lines":   report.Lines(),
			"summary": report.Summary(),
		})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := core.WriteReport(w, report); err != nil {
		s.log.Error("write report", "batch_id", b.ID, "error", err)
	}
}

// handleHistory lists recent batches from the change log, or from memory
// when persistence is off.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 50)
	if limit == 0 {
		limit = 50
	}

	if s.history != nil {
		records, err := s.history.RecentBatches(r.Context(), limit)
		if err != nil {
			s.respondError(w, r, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"source": "database", "batches": nonNil(records)})
		return
	}

	batches := s.service.Batches()
	records := make([]store.BatchRecord, 0, min(limit, len(batches)))
	for _, b := range batches {
		if len(records) == limit {
			break
		}
		records = append(records, store.BatchRecord{
			ID:          b.ID,
			FileName:    b.FileName,
			Mode:        b.Mode,
			Rows:        b.Stats.Rows,
			Enriched:    b.Stats.Enriched,
			Unavailable: b.Stats.EnrichUnavailable,
			ValidZips:   b.Stats.ValidZips,
			Changes:     len(b.Changes),
			DurationMs:  b.Duration.Milliseconds(),
			CreatedAt:   b.CreatedAt,
		})
	}
	writeJSON(w, map[string]any{"source": "memory", "batches": records})
}

// profileResponse is the diagnostics payload of GET /api/profile.
type profileResponse struct {
	Profile    any                `json:"profile"`
	Enrichment enrichmentStatus   `json:"enrichment"`
	Uploads    core.LimiterStatus `json:"uploads"`
}

type enrichmentStatus struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url,omitempty"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	resp := profileResponse{
		Profile: s.service.Profile().Stats(),
		Uploads: s.limiter.Status(),
	}
	if s.parser != nil {
		resp.Enrichment = enrichmentStatus{Enabled: true, URL: s.parser.BaseURL(), Healthy: true}
		if err := s.parser.Health(r.Context()); err != nil {
			resp.Enrichment.Healthy = false
			resp.Enrichment.Error = err.Error()
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"status":        "ok",
		"profileLoaded": s.service.Profile().Loaded(),
		"uploads":       s.limiter.Status(),
	})
}

func (s *Server) reportOptions(perFieldCap int) core.ReportOptions {
	return core.ReportOptions{MaxValueLen: s.cfg.Report.MaxValueLen, PerFieldCap: perFieldCap}
}

// parseIntParam parses a non-negative integer query parameter with a
// default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

// isTooLarge detects a tripped MaxBytesReader. The multipart reader does not
// always wrap the error, so the message is checked too.
func isTooLarge(err error) bool {
	var maxBytes *http.MaxBytesError
	return errors.As(err, &maxBytes) || strings.Contains(err.Error(), "request body too large")
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(s))
	return b || strings.EqualFold(strings.TrimSpace(s), "on")
}

// sanitizeFilename keeps a download name safe inside a quoted header value.
func sanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, name)
	if name == "" {
		return "addresses"
	}
	return name
}

func errorBody(err error) ErrorResponse {
	msg := core.MapError(err)
	return ErrorResponse{Error: msg.Message, Message: msg.Message, Action: msg.Action, Code: msg.Code}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// writeJSON encodes v as JSON with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
