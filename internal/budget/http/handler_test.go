package budgethttp

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrdash/hrdash/internal/budget"
	"github.com/hrdash/hrdash/internal/budget/budgettest"
	"github.com/hrdash/hrdash/internal/spreadsheet"
)

type errorBody struct {
	Message string `json:"message"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *errorBody      `json:"error"`
}

type pagination struct {
	Total int `json:"total"`
}

type fixture struct {
	router  chi.Router
	repo    *budgettest.Memory
	tempDir string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := budgettest.NewMemory()
	svc := budget.NewService(repo, logger)
	tempDir := t.TempDir()
	h := NewHandler(logger, svc, Config{DefaultActor: "system", ImportMaxBytes: 1 << 20, TempDir: tempDir})

	r := chi.NewRouter()
	r.Route("/api/budgets", h.MountRoutes)
	return fixture{router: r, repo: repo, tempDir: tempDir}
}

func (f fixture) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header[k] = v
	}
	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return env
}

func TestSaveMasterWithoutTotalBudgetIsRejected(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/api/budgets/regional2x/master", `{"status":"Active"}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Message, "total_budget is required")
	assert.Zero(t, f.repo.TxCount())
	assert.Nil(t, f.repo.Ledger(budgetDivision(t, "regional2x")).Master)
}

func TestAbsorptionFlow(t *testing.T) {
	f := newFixture(t)
	actor := http.Header{ActorHeader: []string{"dina"}}

	rr := f.do(t, http.MethodPost, "/api/budgets/regional2x/master", `{"total_budget": 1000}`, actor)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = f.do(t, http.MethodPost, "/api/budgets/regional2x/absorption", `{"period":"Jan 2024","absorption_amount":"100"}`, actor)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var saved budget.AbsorptionResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &saved))
	assert.True(t, saved.Created)
	assert.True(t, decimal.NewFromInt(900).Equal(saved.Master.CurrentRemaining))

	rr = f.do(t, http.MethodPost, "/api/budgets/regional2x/absorption", `{"period":"Jan 2024","absorption_amount":120}`, actor)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = f.do(t, http.MethodGet, "/api/budgets/regional2x/history", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var history []budget.HistoryRecord
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "dina", history[0].ChangedBy)

	rr = f.do(t, http.MethodGet, "/api/budgets/regional2x/?page=1&limit=10&search=jan", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Master     budget.MasterBudget      `json:"master"`
		Entries    []budget.AbsorptionEntry `json:"entries"`
		Pagination pagination               `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &list))
	require.Len(t, list.Entries, 1)
	assert.Equal(t, 1, list.Pagination.Total)
	assert.True(t, decimal.NewFromInt(880).Equal(list.Master.CurrentRemaining))

	rr = f.do(t, http.MethodGet, "/api/budgets/regional2x/summary", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"summary"`)

	rr = f.do(t, http.MethodGet, "/api/budgets/regional2x/verify", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"consistent":true`)

	rr = f.do(t, http.MethodDelete, "/api/budgets/regional2x/absorption/"+strconv.FormatInt(saved.Entry.ID, 10), "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = f.do(t, http.MethodGet, "/api/budgets/regional2x/history?limit=1", "", nil)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "system", history[0].ChangedBy)
}

func TestStatusCodes(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown division", http.MethodGet, "/api/budgets/nowhere/", "", http.StatusNotFound},
		{"project route on absorption division", http.MethodPost, "/api/budgets/regional2x/project", `{"project_name":"A","total_budget":1}`, http.StatusNotFound},
		{"absorption route on termin division", http.MethodDelete, "/api/budgets/elnusa/absorption/1", "", http.StatusNotFound},
		{"bad id", http.MethodDelete, "/api/budgets/regional2x/absorption/abc", "", http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/budgets/regional2x/master", `{"total_budget":`, http.StatusBadRequest},
		{"missing period", http.MethodPost, "/api/budgets/regional2x/absorption", `{"absorption_amount":5}`, http.StatusBadRequest},
		{"missing master is a server fault", http.MethodPost, "/api/budgets/regional2x/absorption", `{"period":"Jan","absorption_amount":5}`, http.StatusInternalServerError},
		{"missing entry", http.MethodDelete, "/api/budgets/elnusa/project/77", "", http.StatusNotFound},
		{"bad page", http.MethodGet, "/api/budgets/regional2x/?page=x", "", http.StatusBadRequest},
		{"nothing to export", http.MethodGet, "/api/budgets/regional2y/export", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := f.do(t, tc.method, tc.path, tc.body, nil)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
			env := decodeEnvelope(t, rr)
			assert.False(t, env.Success)
		})
	}
}

func TestDivisionCatalogue(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/api/budgets/", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var divisions []budget.Division
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &divisions))
	require.Len(t, divisions, 5)
	assert.Equal(t, "tar-mcu", divisions[4].Slug)
	assert.NotContains(t, rr.Body.String(), "tar_mcu")
}

func TestExportStreamsWorkbookAndRemovesTempFile(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/api/budgets/elnusa/project", `{"project_name":"Seismic","total_budget":500,"termin1":100}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = f.do(t, http.MethodGet, "/api/budgets/elnusa/export", "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, spreadsheet.ContentType, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "elnusa_budget_")

	rows, err := spreadsheet.Read(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Seismic", rows[0].Get("project_name"))

	left, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestImportWorkbook(t *testing.T) {
	f := newFixture(t)
	var workbook bytes.Buffer
	require.NoError(t, spreadsheet.Write(&workbook, spreadsheet.Table{
		Header: []string{"Nama Proyek", "Total Anggaran", "Termin 1", "Keterangan"},
		Rows: [][]any{
			{"Seismic", 500, 100, "fase 1"},
			{"", 10, nil, "tanpa nama"},
		},
	}))

	for i := 0; i < 2; i++ {
		rr := f.upload(t, "/api/budgets/elnusa/import", "budget.xlsx", workbook.Bytes())
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var result budget.ImportResult
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &result))
		assert.Equal(t, 1, result.Processed)
		require.Len(t, result.Skipped, 1)
		assert.Equal(t, 3, result.Skipped[0].Row)
	}
	assert.Len(t, f.repo.Ledger(budgetDivision(t, "elnusa")).Projects, 1)
}

func TestImportRejectsBadUploads(t *testing.T) {
	f := newFixture(t)

	rr := f.upload(t, "/api/budgets/elnusa/import", "notes.txt", []byte("project,total\nA,1\n"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid file type")

	rr = f.do(t, http.MethodPost, "/api/budgets/elnusa/import", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())
	rr = f.do(t, http.MethodPost, "/api/budgets/elnusa/import", body.String(), http.Header{"Content-Type": []string{mw.FormDataContentType()}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "excelFile is required")

	rr = f.upload(t, "/api/budgets/elnusa/import", "huge.xlsx", bytes.Repeat([]byte("x"), 2<<20))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, f.repo.TxCount())
}

func (f fixture) upload(t *testing.T, path, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(uploadField, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func budgetDivision(t *testing.T, slug string) budget.Division {
	t.Helper()
	div, err := budget.LookupDivision(slug)
	require.NoError(t, err)
	return div
}

