package transport

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/storedesk/model"
)

// ViewProvider serves list view descriptors, data and selection changes.
// views.PageProvider implements it.
type ViewProvider interface {
	GetPage(viewID string) (model.PageDescriptor, error)
	GetPageData(ctx context.Context, viewID string, query url.Values) (model.DataResponse, error)
	ApplySelection(ctx context.Context, viewID string, query url.Values, req model.SelectionRequest) (model.SelectionResponse, error)
}

func handleGetView(views ViewProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		desc, err := views.GetPage(chi.URLParam(r, "viewId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}

// handleGetViewData passes the request query string through as the view's
// URL state.
func handleGetViewData(views ViewProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := views.GetPageData(r.Context(), chi.URLParam(r, "viewId"), r.URL.Query())
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, data)
	}
}

func handleApplySelection(views ViewProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.SelectionRequest
		if err := decodeBody(w, r, &req); err != nil {
			WriteError(w, err)
			return
		}

		resp, err := views.ApplySelection(r.Context(), chi.URLParam(r, "viewId"), r.URL.Query(), req)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
