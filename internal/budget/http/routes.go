package budgethttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/hrdash/hrdash/internal/platform/httpx"
)

const fileRateLimit = 10
const fileRateWindow = time.Minute

// MountRoutes registers the division catalogue and the per-division ledger
// routes. Entry routes of the other ledger style answer 404.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(fileRateLimit, fileRateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Fail(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "")
		}),
	)

	r.Get("/", h.handleDivisions)
	r.Route("/{division}", func(r chi.Router) {
		r.Use(h.withDivision)
		r.Get("/", h.handleList)
		r.Get("/summary", h.handleSummary)
		r.Get("/history", h.handleHistory)
		r.Get("/filters", h.handleFilters)
		r.Get("/verify", h.handleVerify)
		r.Post("/master", h.handleSaveMaster)
		r.Post("/absorption", h.handleSaveAbsorption)
		r.Delete("/absorption/{id}", h.handleDeleteAbsorption)
		r.Post("/project", h.handleSaveProject)
		r.Delete("/project/{id}", h.handleDeleteProject)
		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Get("/export", h.handleExport)
			gr.Post("/import", h.handleImport)
		})
	})
}
