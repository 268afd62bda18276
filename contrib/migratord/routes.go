package migratord

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/surrealdb/migrator"
	"github.com/surrealdb/migrator/contrib/countries/models"
	"github.com/surrealdb/migrator/contrib/countries/store"
	"github.com/surrealdb/migrator/pkg/constants"
	"github.com/surrealdb/migrator/pkg/decision"
	"github.com/surrealdb/migrator/pkg/idstore"
)

// Handler returns the service's routes:
//
//	GET    /health
//	GET    /metrics
//	GET    /api/events                 - websocket stream of facade events
//	GET    /api/countries
//	POST   /api/countries
//	GET    /api/countries/{id}
//	PATCH  /api/countries/{id}
//	DELETE /api/countries/{id}
//	GET    /api/admin/phase
//	POST   /api/admin/phase
//	GET    /api/admin/operations
func (a *App) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Handle("/events", a.hub).Methods(http.MethodGet)

	api.HandleFunc("/countries", a.handleListCountries).Methods(http.MethodGet)
	api.HandleFunc("/countries", a.handleCreateCountry).Methods(http.MethodPost)
	api.HandleFunc("/countries/{id:[0-9]+}", a.handleGetCountry).Methods(http.MethodGet)
	api.HandleFunc("/countries/{id:[0-9]+}", a.handleUpdateCountry).Methods(http.MethodPatch)
	api.HandleFunc("/countries/{id:[0-9]+}", a.handleDeleteCountry).Methods(http.MethodDelete)

	api.HandleFunc("/admin/phase", a.handleGetPhase).Methods(http.MethodGet)
	api.HandleFunc("/admin/phase", a.handleSetPhase).Methods(http.MethodPost)
	api.HandleFunc("/admin/operations", a.handleOperations).Methods(http.MethodGet)
	return router
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"component": a.facade.Component(),
		"decision":  a.conf.Decision,
		"phase":     a.currentPhase(),
		"clients":   a.hub.Clients(),
	})
}

func (a *App) handleListCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := a.service.List(r.Context())
	if err != nil {
		a.respondFailure(w, err)
		return
	}
	if countries == nil {
		countries = []models.Country{}
	}
	respondJSON(w, http.StatusOK, countries)
}

func (a *App) handleCreateCountry(w http.ResponseWriter, r *http.Request) {
	var c models.Country
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if c.Code == "" || c.Name == "" {
		respondError(w, http.StatusBadRequest, "code and name are required")
		return
	}
	// The identifier is the source store's to assign.
	c.ID = 0

	created, err := a.service.Create(r.Context(), c)
	if err != nil {
		a.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (a *App) handleGetCountry(w http.ResponseWriter, r *http.Request) {
	id, ok := countryID(w, r)
	if !ok {
		return
	}
	c, err := a.service.Get(r.Context(), id)
	if err != nil {
		a.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (a *App) handleUpdateCountry(w http.ResponseWriter, r *http.Request) {
	id, ok := countryID(w, r)
	if !ok {
		return
	}
	var p models.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	c, err := a.service.Update(r.Context(), id, p)
	if err != nil {
		a.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (a *App) handleDeleteCountry(w http.ResponseWriter, r *http.Request) {
	id, ok := countryID(w, r)
	if !ok {
		return
	}
	if err := a.service.Delete(r.Context(), id); err != nil {
		a.respondFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type phaseRequest struct {
	Phase string `json:"phase"`
}

type phaseResponse struct {
	Phase  string   `json:"phase"`
	Phases []string `json:"phases"`
}

func (a *App) currentPhase() string {
	if a.phase == nil {
		return ""
	}
	return string(a.phase.Phase())
}

func (a *App) handleGetPhase(w http.ResponseWriter, _ *http.Request) {
	if a.phase == nil {
		respondError(w, http.StatusConflict, "phases are not used: calls are decided by flags")
		return
	}
	resp := phaseResponse{Phase: a.currentPhase()}
	for _, p := range decision.Phases() {
		resp.Phases = append(resp.Phases, string(p))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (a *App) handleSetPhase(w http.ResponseWriter, r *http.Request) {
	if a.phase == nil {
		respondError(w, http.StatusConflict, "phases are not used: calls are decided by flags")
		return
	}
	var req phaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	phase, err := decision.ParsePhase(req.Phase)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.phase.SetPhase(phase); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	a.handleGetPhase(w, r)
}

type operationView struct {
	Name            string   `json:"name"`
	Kind            string   `json:"kind"`
	Mode            string   `json:"mode"`
	Target          string   `json:"target,omitempty"`
	UnorderedArrays bool     `json:"unordered_arrays,omitempty"`
	Include         []string `json:"include,omitempty"`
	Exclude         []string `json:"exclude,omitempty"`
}

func (a *App) handleOperations(w http.ResponseWriter, _ *http.Request) {
	var ops []operationView
	for _, name := range a.facade.Operations() {
		spec, ok := a.facade.Spec(name)
		if !ok {
			continue
		}
		ops = append(ops, operationView{
			Name:            name,
			Kind:            string(spec.Kind),
			Mode:            spec.Mode.String(),
			Target:          spec.Target.String(),
			UnorderedArrays: spec.UnorderedArrays,
			Include:         spec.Fields.Include,
			Exclude:         spec.Fields.Exclude,
		})
	}
	respondJSON(w, http.StatusOK, ops)
}

func countryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid country ID")
		return 0, false
	}
	return id, true
}

// respondFailure maps a service error to a status code.
func (a *App) respondFailure(w http.ResponseWriter, err error) {
	var (
		timeoutErr *migrator.TimeoutError
		missing    *idstore.MissingTokenError
	)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &timeoutErr):
		respondError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &missing):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, constants.ErrClosed):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		a.log.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
