package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/brandshield/internal/dashboard"
	"github.com/hitoshi/brandshield/internal/middleware"
	"github.com/hitoshi/brandshield/internal/model"
)

// ViewCatalogue はダッシュボードハンドラーが必要とするビュー一覧。dashboard.Catalogueが実装する。
type ViewCatalogue interface {
	Visible(identity *model.Identity) []dashboard.View
	Get(identity *model.Identity, id string) (*dashboard.View, error)
}

// DashboardHandler はダッシュボードのHTTPハンドラー。
type DashboardHandler struct {
	views ViewCatalogue
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(views ViewCatalogue) *DashboardHandler {
	return &DashboardHandler{views: views}
}

type viewsResponse struct {
	Views       []dashboard.View `json:"views"`
	DefaultView string           `json:"defaultView"`
}

// ListViews は現在のロールで閲覧できるビューを返す。
// GET /api/views
func (h *DashboardHandler) ListViews(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, viewsResponse{
		Views:       h.views.Visible(identity),
		DefaultView: dashboard.DefaultView,
	})
}

// GetView はビューを1件返す。
// GET /api/views/{id}
func (h *DashboardHandler) GetView(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	viewID := chi.URLParam(r, "id")
	view, err := h.views.Get(identity, viewID)
	if err != nil {
		if errors.Is(err, dashboard.ErrViewNotFound) {
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewViewNotFoundError(viewID))
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// RecordActivity はユーザー操作を通知する。
// 最終アクティビティ時刻の更新はセッションミドルウェアが行うため、ここでは204を返すだけ。
// POST /api/activity
func (h *DashboardHandler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
