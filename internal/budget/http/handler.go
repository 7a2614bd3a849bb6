package budgethttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hrdash/hrdash/internal/budget"
	"github.com/hrdash/hrdash/internal/platform/httpx"
	"github.com/hrdash/hrdash/internal/shared"
	"github.com/hrdash/hrdash/internal/spreadsheet"
)

// ActorHeader carries the acting username.
const ActorHeader = "X-Username"

const (
	uploadField     = "excelFile"
	uploadMemory    = 1 << 20
	historyMaxLimit = 1000
)

var uploadTypes = []string{
	spreadsheet.ContentType,
	"application/vnd.ms-excel",
}

// Service is the ledger contract the handlers depend on.
type Service interface {
	Divisions() []budget.Division
	ListEntries(ctx context.Context, div budget.Division, req budget.ListRequest) (budget.EntryPage, error)
	Summary(ctx context.Context, div budget.Division) (budget.SummaryReport, error)
	History(ctx context.Context, div budget.Division, limit int) ([]budget.HistoryRecord, error)
	FilterOptions(ctx context.Context, div budget.Division) ([]string, error)
	Verify(ctx context.Context, div budget.Division) (budget.VerifyReport, error)
	ExportTable(ctx context.Context, div budget.Division) (spreadsheet.Table, error)
	Import(ctx context.Context, div budget.Division, rows []spreadsheet.Row, actor string) (budget.ImportResult, error)
	SaveMaster(ctx context.Context, div budget.Division, in budget.MasterInput, actor string) (budget.MasterBudget, error)
	SaveAbsorption(ctx context.Context, div budget.Division, in budget.AbsorptionInput, actor string) (budget.AbsorptionResult, error)
	DeleteAbsorption(ctx context.Context, div budget.Division, id int64, actor string) (budget.MasterBudget, error)
	SaveProject(ctx context.Context, div budget.Division, in budget.ProjectInput, actor string) (budget.ProjectResult, error)
	DeleteProject(ctx context.Context, div budget.Division, id int64, actor string) (budget.MasterBudget, error)
}

// Config tunes the handler boundary.
type Config struct {
	DefaultActor   string
	ImportMaxBytes int64
	TempDir        string
}

// Handler serves the budget ledger API of every division.
type Handler struct {
	logger  *slog.Logger
	service Service
	cfg     Config
	now     func() time.Time
}

// NewHandler builds a budget handler.
func NewHandler(logger *slog.Logger, service Service, cfg Config) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ImportMaxBytes <= 0 {
		cfg.ImportMaxBytes = 10 << 20
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Handler{logger: logger, service: service, cfg: cfg, now: time.Now}
}

type divisionContextKey struct{}

// withDivision resolves the {division} slug and the acting user.
func (h *Handler) withDivision(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		div, err := budget.LookupDivision(chi.URLParam(r, "division"))
		if err != nil {
			httpx.RespondError(w, "Division not found", err)
			return
		}
		actor := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actor == "" {
			actor = h.cfg.DefaultActor
		}
		ctx := context.WithValue(r.Context(), divisionContextKey{}, div)
		ctx = shared.ContextWithActor(ctx, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func divisionFrom(r *http.Request) budget.Division {
	div, _ := r.Context().Value(divisionContextKey{}).(budget.Division)
	return div
}

func actorFrom(r *http.Request) string {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor
}

func (h *Handler) handleDivisions(w http.ResponseWriter, r *http.Request) {
	httpx.OK(w, "Budget divisions", h.service.Divisions())
}

type listResponse struct {
	Master     *budget.MasterBudget `json:"master"`
	Entries    any                  `json:"entries"`
	Pagination shared.Pagination    `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	div := divisionFrom(r)
	q := r.URL.Query()
	page, err := optionalInt(q.Get("page"))
	if err != nil {
		httpx.RespondError(w, "Invalid page", err)
		return
	}
	limit, err := optionalInt(q.Get("limit"))
	if err != nil {
		httpx.RespondError(w, "Invalid limit", err)
		return
	}
	result, err := h.service.ListEntries(r.Context(), div, budget.ListRequest{
		Page:   page,
		Limit:  limit,
		Search: q.Get("search"),
	})
	if err != nil {
		h.fail(w, r, "Failed to list budget entries", err)
		return
	}
	httpx.OK(w, "Budget entries", listResponse{
		Master:     result.Master,
		Entries:    result.Entries(div.Style),
		Pagination: result.Pagination,
	})
}

type summaryResponse struct {
	Master  *budget.MasterBudget `json:"master"`
	Entries any                  `json:"entries"`
	Summary budget.Totals        `json:"summary"`
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Summary(r.Context(), divisionFrom(r))
	if err != nil {
		h.fail(w, r, "Failed to build budget summary", err)
		return
	}
	httpx.OK(w, "Budget summary", summaryResponse{
		Master:  report.Master,
		Entries: report.Entries(),
		Summary: report.Totals,
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := optionalInt(r.URL.Query().Get("limit"))
	if err != nil {
		httpx.RespondError(w, "Invalid limit", err)
		return
	}
	if limit > historyMaxLimit {
		limit = historyMaxLimit
	}
	history, err := h.service.History(r.Context(), divisionFrom(r), limit)
	if err != nil {
		h.fail(w, r, "Failed to load budget history", err)
		return
	}
	if history == nil {
		history = []budget.HistoryRecord{}
	}
	httpx.OK(w, "Budget history", history)
}

func (h *Handler) handleFilters(w http.ResponseWriter, r *http.Request) {
	options, err := h.service.FilterOptions(r.Context(), divisionFrom(r))
	if err != nil {
		h.fail(w, r, "Failed to load filter options", err)
		return
	}
	httpx.OK(w, "Filter options", options)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Verify(r.Context(), divisionFrom(r))
	if err != nil {
		h.fail(w, r, "Failed to verify budget ledger", err)
		return
	}
	httpx.OK(w, "Budget ledger verified", report)
}

func (h *Handler) handleSaveMaster(w http.ResponseWriter, r *http.Request) {
	var in budget.MasterInput
	if !decode(w, r, &in) {
		return
	}
	master, err := h.service.SaveMaster(r.Context(), divisionFrom(r), in, actorFrom(r))
	if err != nil {
		h.fail(w, r, "Failed to save master budget", err)
		return
	}
	httpx.OK(w, "Master budget saved", master)
}

func (h *Handler) handleSaveAbsorption(w http.ResponseWriter, r *http.Request) {
	var in budget.AbsorptionInput
	if !decode(w, r, &in) {
		return
	}
	result, err := h.service.SaveAbsorption(r.Context(), divisionFrom(r), in, actorFrom(r))
	if err != nil {
		h.fail(w, r, "Failed to save absorption", err)
		return
	}
	httpx.OK(w, "Absorption saved", result)
}

func (h *Handler) handleDeleteAbsorption(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	master, err := h.service.DeleteAbsorption(r.Context(), divisionFrom(r), id, actorFrom(r))
	if err != nil {
		h.fail(w, r, "Failed to delete absorption", err)
		return
	}
	httpx.OK(w, "Absorption deleted", master)
}

func (h *Handler) handleSaveProject(w http.ResponseWriter, r *http.Request) {
	var in budget.ProjectInput
	if !decode(w, r, &in) {
		return
	}
	result, err := h.service.SaveProject(r.Context(), divisionFrom(r), in, actorFrom(r))
	if err != nil {
		h.fail(w, r, "Failed to save project", err)
		return
	}
	httpx.OK(w, "Project saved", result)
}

func (h *Handler) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	master, err := h.service.DeleteProject(r.Context(), divisionFrom(r), id, actorFrom(r))
	if err != nil {
		h.fail(w, r, "Failed to delete project", err)
		return
	}
	httpx.OK(w, "Project deleted", master)
}

// handleExport renders the ledger into a temporary workbook and streams it.
// The file is removed whether or not the stream completed.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	div := divisionFrom(r)
	table, err := h.service.ExportTable(r.Context(), div)
	if err != nil {
		h.fail(w, r, "No budget data to export", err)
		return
	}

	path := filepath.Join(h.cfg.TempDir, fmt.Sprintf("%s-budget-%s.xlsx", div.Slug, uuid.NewString()))
	defer h.removeTemp(path)
	if err := spreadsheet.WriteFile(path, table); err != nil {
		h.fail(w, r, "Failed to render export", err)
		return
	}
	file, err := os.Open(path)
	if err != nil {
		h.fail(w, r, "Failed to open export", err)
		return
	}
	defer file.Close()

	filename := fmt.Sprintf("%s_budget_%s.xlsx", div.Slug, h.now().Format("20060102"))
	w.Header().Set("Content-Type", spreadsheet.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := io.Copy(w, file); err != nil {
		h.logger.Warn("stream budget export",
			slog.String("division", div.Slug),
			slog.Any("error", err))
	}
}

func (h *Handler) removeTemp(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		h.logger.Warn("remove temporary file", slog.String("path", path), slog.Any("error", err))
	}
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	div := divisionFrom(r)
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.ImportMaxBytes)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.Fail(w, http.StatusBadRequest, "File is too large", fmt.Sprintf("upload exceeds %d bytes", h.cfg.ImportMaxBytes))
			return
		}
		httpx.Fail(w, http.StatusBadRequest, "Invalid upload", err.Error())
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn("remove upload files", slog.String("division", div.Slug), slog.Any("error", err))
		}
	}()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "No file uploaded", uploadField+" is required")
		return
	}
	defer file.Close()

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid file", err.Error())
		return
	}
	if !allowedUpload(mtype, header.Filename) {
		httpx.Fail(w, http.StatusBadRequest, "Invalid file type", "only .xls and .xlsx files are accepted, got "+mtype.String())
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		h.fail(w, r, "Failed to read upload", err)
		return
	}
	rows, err := spreadsheet.Read(file)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid file", err.Error())
		return
	}

	result, err := h.service.Import(r.Context(), div, rows, actorFrom(r))
	if err != nil {
		h.fail(w, r, "Failed to import budget data", err)
		return
	}
	h.logger.Info("budget file imported",
		slog.String("division", div.Slug),
		slog.String("file", header.Filename),
		slog.String("batch_id", result.BatchID.String()))
	httpx.OK(w, "Budget data imported", result)
}

// allowedUpload accepts Excel MIME types. A workbook whose parts fall outside
// the sniffed prefix is reported as a plain zip and is accepted by extension.
func allowedUpload(mtype *mimetype.MIME, filename string) bool {
	for _, allowed := range uploadTypes {
		if mtype.Is(allowed) {
			return true
		}
	}
	return mtype.Is("application/zip") && strings.EqualFold(filepath.Ext(filename), ".xlsx")
}

// fail logs server faults before writing the error envelope.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(message,
			slog.String("division", divisionFrom(r).Slug),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, message, err)
}

func decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	return true
}

func entryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Fail(w, http.StatusBadRequest, "Invalid id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func optionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %q is not a non-negative integer", shared.ErrValidation, raw)
	}
	return v, nil
}
