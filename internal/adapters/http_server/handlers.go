package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"lokum/internal/app"
	"lokum/internal/domain"
)

type Handlers struct{ Q *app.QueryService }

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/v1/listings", h.listListings)
	s.mux.Get("/v1/listings/{id}", h.getListing)
	s.mux.Get("/v1/queries", h.listQueries)
	s.mux.Post("/v1/queries", h.createQuery)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

// ---- response shapes ----

type listingResp struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Location         *string          `json:"location,omitempty"`
	Summary          *string          `json:"summary,omitempty"`
	StreetAddress    *string          `json:"street_address,omitempty"`
	Area             *float64         `json:"area,omitempty"`
	Rooms            *int             `json:"rooms,omitempty"`
	Rent             *float64         `json:"rent,omitempty"`
	AdminFee         *float64         `json:"admin_fee,omitempty"`
	TotalMonthlyCost *float64         `json:"total_monthly_cost,omitempty"`
	Currency         *domain.Currency `json:"currency,omitempty"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

type sourceResp struct {
	Site        string     `json:"site"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	State       string     `json:"state"`
	FetchedAt   *time.Time `json:"fetched_at,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
}

type listingViewResp struct {
	listingResp
	Sources []sourceResp `json:"sources"`
}

type queryResp struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Query            string     `json:"query"`
	Location         string     `json:"location"`
	Site             string     `json:"site"`
	MaxPages         int        `json:"max_pages"`
	IsActive         bool       `json:"is_active"`
	RunIntervalHours int        `json:"run_interval_hours"`
	LastRunAt        *time.Time `json:"last_run_at,omitempty"`
	LastError        *string    `json:"last_error,omitempty"`
}

func toListingResp(l domain.Listing) listingResp {
	return listingResp{
		ID:               l.ID,
		Title:            l.Title,
		Location:         l.Location,
		Summary:          l.Summary,
		StreetAddress:    l.StreetAddress,
		Area:             l.Area,
		Rooms:            l.Rooms,
		Rent:             l.Rent,
		AdminFee:         l.AdminFee,
		TotalMonthlyCost: l.TotalMonthlyCost,
		Currency:         l.Currency,
		UpdatedAt:        l.UpdatedAt,
	}
}

func toQueryResp(q domain.SearchQuery) queryResp {
	return queryResp{
		ID:               q.ID,
		Name:             q.Name,
		Query:            q.Query,
		Location:         q.Location,
		Site:             string(q.Site),
		MaxPages:         q.MaxPages,
		IsActive:         q.IsActive,
		RunIntervalHours: q.RunIntervalHours,
		LastRunAt:        q.LastRunAt,
		LastError:        q.LastError,
	}
}

// ---- handlers ----

func (h *Handlers) getListing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, err := h.Q.GetListing(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Not Found", "listing not found")
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	resp := listingViewResp{listingResp: toListingResp(view.Listing)}
	for _, s := range view.Sources {
		resp.Sources = append(resp.Sources, sourceResp{
			Site:        string(s.Site),
			URL:         s.URL,
			Title:       s.Title,
			State:       string(s.State),
			FetchedAt:   s.FetchedAt,
			LastError:   s.LastError,
			LastErrorAt: s.LastErrorAt,
		})
	}
	writeJSON(w, r, resp)
}

func (h *Handlers) listListings(w http.ResponseWriter, r *http.Request) {
	var q domain.ListingsQuery
	if v := r.URL.Query().Get("q"); v != "" {
		q.Q = &v
	}
	if v := r.URL.Query().Get("location"); v != "" {
		q.Location = &v
	}
	if v := r.URL.Query().Get("max_rent"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid max_rent", "max_rent must be a non-negative number")
			return
		}
		q.MaxRent = &f
	}
	if v := r.URL.Query().Get("min_rooms"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid min_rooms", "min_rooms must be a non-negative integer")
			return
		}
		q.MinRooms = &n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 100")
			return
		}
		q.Limit = n
	}

	page, err := h.Q.ListListings(r.Context(), q)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	items := make([]listingResp, 0, len(page.Items))
	for _, l := range page.Items {
		items = append(items, toListingResp(l))
	}
	writeJSON(w, r, map[string]any{"items": items})
}

func (h *Handlers) listQueries(w http.ResponseWriter, r *http.Request) {
	queries, err := h.Q.ListQueries(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	items := make([]queryResp, 0, len(queries))
	for _, q := range queries {
		items = append(items, toQueryResp(q))
	}
	writeJSON(w, r, map[string]any{"items": items})
}

func (h *Handlers) createQuery(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name             string `json:"name"`
		Query            string `json:"query"`
		Location         string `json:"location"`
		Site             string `json:"site"`
		MaxPages         int    `json:"max_pages"`
		RunIntervalHours int    `json:"run_interval_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be JSON")
		return
	}
	if in.Name == "" || in.Query == "" || in.Location == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "name, query and location are required")
		return
	}

	q, err := h.Q.CreateQuery(r.Context(), domain.SearchQuery{
		Name:             in.Name,
		Query:            in.Query,
		Location:         in.Location,
		Site:             domain.Site(in.Site),
		MaxPages:         in.MaxPages,
		RunIntervalHours: in.RunIntervalHours,
	})
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(toQueryResp(q)); err != nil {
		log.Error().Err(err).Msg("failed to write createQuery body")
	}
}
