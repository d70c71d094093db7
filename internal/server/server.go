package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/yourorg/tradesim/internal/cache"
	"github.com/yourorg/tradesim/internal/config"
	"github.com/yourorg/tradesim/internal/drafts"
	"github.com/yourorg/tradesim/internal/gateway"
	"github.com/yourorg/tradesim/internal/ledger"
	"github.com/yourorg/tradesim/internal/logging"
	"github.com/yourorg/tradesim/internal/session"
	"github.com/yourorg/tradesim/pkg/types"
)

var (
	//go:embed ui.html
	uiHTML string

	uiTemplate = template.Must(template.New("ui").Parse(uiHTML))
)

// Catalog is the slice of the gateway behind /api/catalog.
type Catalog interface {
	Countries(ctx context.Context) ([]types.Country, error)
	Commodities(ctx context.Context) ([]types.Commodity, error)
	Alliances(ctx context.Context) ([]types.Alliance, error)
	Treaties(ctx context.Context) ([]types.Treaty, error)
	Graph(ctx context.Context) (*types.Graph, error)

	AddCountry(ctx context.Context, country types.Country) error
	DeleteCountry(ctx context.Context, name string) error
	AddCommodity(ctx context.Context, name string, unitCost float64) error
}

// Deps are the collaborators the dashboard drives.
type Deps struct {
	Session *session.Session
	Catalog Catalog
	Routes  *cache.Routes
	Factors *cache.Factors
	Drafts  *drafts.Store
	Ledger  *ledger.Ledger
	Hub     *Hub
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server wraps the dashboard page, its JSON API and the state socket.
type Server struct {
	cfg    *config.Config
	d      Deps
	log    *slog.Logger
	router *mux.Router
	unsub  func()
}

type uiData struct {
	BaseURL string
}

// New constructs a new Server with routes registered.
func New(cfg *config.Config, d Deps) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if d.Session == nil {
		return nil, errors.New("session is nil")
	}
	srv := &Server{
		cfg:    cfg,
		d:      d,
		log:    d.Logger,
		router: mux.NewRouter(),
	}
	if d.Hub != nil {
		srv.unsub = d.Session.Subscribe(func(st session.State) {
			d.Hub.Publish("state", st)
		})
	}
	srv.registerRoutes()
	return srv, nil
}

// Handler returns the http handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close detaches the server from session updates.
func (s *Server) Close() {
	if s.unsub != nil {
		s.unsub()
	}
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(s.requestID)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	if s.d.Hub != nil {
		r.HandleFunc("/ws", s.d.Hub.ServeWS).Methods(http.MethodGet)
	}
	if s.d.Metrics != nil {
		r.Handle("/metrics", s.d.Metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.cors)
	api.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/corridor", s.handleCorridor).Methods(http.MethodPost)
	api.HandleFunc("/parameters", s.handleParameters).Methods(http.MethodPost)
	api.HandleFunc("/cargo", s.handleCargo).Methods(http.MethodPost)
	api.HandleFunc("/simulate", s.handleSimulate).Methods(http.MethodPost)
	api.HandleFunc("/select", s.handleSelect).Methods(http.MethodPost)
	api.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)

	api.HandleFunc("/routes", s.handleRoutes).Methods(http.MethodGet)
	api.HandleFunc("/routes", s.handleRouteAdd).Methods(http.MethodPost)
	api.HandleFunc("/routes/refresh", s.handleRoutesRefresh).Methods(http.MethodPost)
	api.HandleFunc("/routes/{origin}/{destination}", s.handleRouteDelete).Methods(http.MethodDelete)

	api.HandleFunc("/factors", s.handleFactors).Methods(http.MethodGet)
	api.HandleFunc("/factors", s.handleFactorAdd).Methods(http.MethodPost)
	api.HandleFunc("/factors/refresh", s.handleFactorsRefresh).Methods(http.MethodPost)
	api.HandleFunc("/factors/reset", s.handleFactorsReset).Methods(http.MethodPost)
	api.HandleFunc("/factors/drafts", s.handleDraftsClear).Methods(http.MethodDelete)
	api.HandleFunc("/factors/{name}", s.handleFactorDelete).Methods(http.MethodDelete)
	api.HandleFunc("/factors/{name}/draft", s.handleFactorDraft).Methods(http.MethodPut)
	api.HandleFunc("/factors/{name}/save", s.handleFactorSave).Methods(http.MethodPost)

	api.HandleFunc("/geo/{action}", s.handleGeo).Methods(http.MethodPost)
	api.HandleFunc("/ledger", s.handleLedger).Methods(http.MethodGet)
	api.HandleFunc("/ledger", s.handleLedgerClear).Methods(http.MethodDelete)

	api.HandleFunc("/catalog/{kind}", s.handleCatalog).Methods(http.MethodGet)
	api.HandleFunc("/catalog/countries", s.handleCountryAdd).Methods(http.MethodPost)
	api.HandleFunc("/catalog/countries/{name}", s.handleCountryDelete).Methods(http.MethodDelete)
	api.HandleFunc("/catalog/commodities", s.handleCommodityAdd).Methods(http.MethodPost)
}

// detach keeps request values such as the request id but drops cancellation,
// so a dropped client cannot cut off the refetches that follow a mutation.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = uiTemplate.Execute(w, uiData{BaseURL: s.cfg.API.BaseURL})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	resp := struct {
		State        session.State      `json:"state"`
		Freshness    session.Freshness  `json:"freshness"`
		LastSnapshot *types.RunSnapshot `json:"last_snapshot,omitempty"`
	}{State: s.d.Session.State(), Freshness: s.d.Session.Freshness()}
	snap, err := s.d.Session.LastSnapshot()
	if err != nil && s.log != nil {
		s.log.Warn("read last snapshot failed", "error", err)
	}
	resp.LastSnapshot = snap
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCorridor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Origin      string          `json:"origin"`
		Destination string          `json:"destination"`
		Mode        types.RouteMode `json:"mode"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.d.Session.SelectCorridor(req.Origin, req.Destination); err != nil {
		writeError(w, err)
		return
	}
	if req.Mode != "" {
		if err := s.d.Session.SetMode(req.Mode); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.d.Session.State())
}

func (s *Server) handleParameters(w http.ResponseWriter, r *http.Request) {
	p := s.d.Session.State().Parameters
	if !decode(w, r, &p) {
		return
	}
	if err := s.d.Session.SetParameters(p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.d.Session.State())
}

func (s *Server) handleCargo(w http.ResponseWriter, r *http.Request) {
	var items []types.CargoItem
	if !decode(w, r, &items) {
		return
	}
	if err := s.d.Session.SetCargo(items); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.d.Session.State())
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Session.Simulate(detach(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.d.Session.State())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Alternative types.Alternative `json:"alternative"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.d.Session.Select(req.Alternative); err != nil {
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, s.d.Session.State())
}

func (s *Server) handleRoutes(w http.ResponseWriter, _ *http.Request) {
	if s.d.Routes == nil {
		http.Error(w, "routes unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.d.Routes.Snapshot())
}

func (s *Server) handleRoutesRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Session.RefreshRoutes(detach(r)); err != nil {
		writeError(w, err)
		return
	}
	s.handleRoutes(w, r)
}

type factorsView struct {
	cache.Snapshot[map[string]types.Factor]
	Impacts *types.FactorImpacts    `json:"impacts,omitempty"`
	Drafts  map[string]types.Factor `json:"drafts"`
}

func (s *Server) factorsView() factorsView {
	v := factorsView{Drafts: map[string]types.Factor{}}
	if s.d.Factors != nil {
		v.Snapshot = s.d.Factors.Snapshot()
		v.Impacts = s.d.Factors.Impacts()
	}
	if s.d.Drafts != nil {
		v.Drafts = s.d.Drafts.All()
	}
	return v
}

func (s *Server) handleFactors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.factorsView())
}

func (s *Server) handleFactorsRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Session.RefreshFactors(detach(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.factorsView())
}

func (s *Server) handleFactorsReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode types.FactorPreset `json:"mode"`
	}
	if !decode(w, r, &req) {
		return
	}
	if _, err := s.d.Session.ApplyPreset(detach(r), req.Mode); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.factorsView())
}

func (s *Server) handleFactorDraft(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var f types.Factor
	if !decode(w, r, &f) {
		return
	}
	draft, changed, err := s.d.Session.RememberDraft(name, f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "draft": draft, "changed": changed})
}

func (s *Server) handleFactorSave(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	f, err := s.d.Session.SaveFactor(detach(r), name)
	if err != nil {
		if errors.Is(err, drafts.ErrNoDraft) {
			writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "factor": f})
}

func (s *Server) handleGeo(w http.ResponseWriter, r *http.Request) {
	action, err := gateway.ParseGeoAction(mux.Vars(r)["action"])
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		A     string          `json:"a"`
		B     string          `json:"b"`
		Value float64         `json:"value"`
		Mode  types.RouteMode `json:"mode"`
	}
	if !decode(w, r, &req) {
		return
	}
	rec, err := s.d.Session.ApplyGeoAction(detach(r), gateway.GeoRequest{
		Action: action,
		A:      req.A,
		B:      req.B,
		Value:  req.Value,
		Mode:   req.Mode,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if s.d.Hub != nil {
		s.d.Hub.Publish("geo_action", rec)
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Session.Reset(detach(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.d.Session.State())
}

func (s *Server) handleRouteAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Origin      string          `json:"origin"`
		Destination string          `json:"destination"`
		Cost        float64         `json:"cost"`
		Time        float64         `json:"time"`
		Risk        float64         `json:"risk"`
		Mode        types.RouteMode `json:"mode"`
	}
	if !decode(w, r, &req) {
		return
	}
	lane := types.Corridor{Origin: req.Origin, Destination: req.Destination}
	d := types.RouteDetails{Cost: req.Cost, Time: req.Time, Risk: req.Risk, Mode: req.Mode}
	if err := s.d.Session.AddRoute(detach(r), lane, d); err != nil {
		writeError(w, err)
		return
	}
	s.handleRoutes(w, r)
}

func (s *Server) handleRouteDelete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	lane := types.Corridor{Origin: vars["origin"], Destination: vars["destination"]}
	if err := s.d.Session.DeleteRoute(detach(r), lane); err != nil {
		writeError(w, err)
		return
	}
	s.handleRoutes(w, r)
}

func (s *Server) handleFactorAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string  `json:"name"`
		Effect   float64 `json:"effect"`
		Strength float64 `json:"strength"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.d.Session.AddFactor(detach(r), req.Name, types.Factor{Effect: req.Effect, Strength: req.Strength}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.factorsView())
}

func (s *Server) handleFactorDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Session.DeleteFactor(detach(r), mux.Vars(r)["name"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.factorsView())
}

func (s *Server) handleDraftsClear(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cleared": s.d.Session.ClearDrafts()})
}

func (s *Server) handleLedger(w http.ResponseWriter, _ *http.Request) {
	entries := []types.GeoActionRecord{}
	if s.d.Ledger != nil {
		entries = s.d.Ledger.Entries()
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleLedgerClear(w http.ResponseWriter, _ *http.Request) {
	if s.d.Ledger != nil {
		s.d.Ledger.Clear()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if s.d.Catalog == nil {
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	var (
		out any
		err error
	)
	switch kind := mux.Vars(r)["kind"]; kind {
	case "countries":
		out, err = s.d.Catalog.Countries(ctx)
	case "commodities":
		out, err = s.d.Catalog.Commodities(ctx)
	case "alliances":
		out, err = s.d.Catalog.Alliances(ctx)
	case "treaties":
		out, err = s.d.Catalog.Treaties(ctx)
	case "graph":
		out, err = s.d.Catalog.Graph(ctx)
	default:
		writeJSON(w, http.StatusNotFound, errorBody(fmt.Sprintf("unknown catalog %q", kind)))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCountryAdd(w http.ResponseWriter, r *http.Request) {
	if s.d.Catalog == nil {
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}
	var c types.Country
	if !decode(w, r, &c) {
		return
	}
	ctx := detach(r)
	if err := s.d.Catalog.AddCountry(ctx, c); err != nil {
		writeError(w, err)
		return
	}
	s.writeCountries(ctx, w)
}

func (s *Server) handleCountryDelete(w http.ResponseWriter, r *http.Request) {
	if s.d.Catalog == nil {
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}
	ctx := detach(r)
	if err := s.d.Catalog.DeleteCountry(ctx, mux.Vars(r)["name"]); err != nil {
		writeError(w, err)
		return
	}
	s.writeCountries(ctx, w)
}

// writeCountries answers a country edit with the reread list.
func (s *Server) writeCountries(ctx context.Context, w http.ResponseWriter) {
	out, err := s.d.Catalog.Countries(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCommodityAdd(w http.ResponseWriter, r *http.Request) {
	if s.d.Catalog == nil {
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Name     string  `json:"name"`
		UnitCost float64 `json:"unit_cost"`
	}
	if !decode(w, r, &req) {
		return
	}
	ctx := detach(r)
	if err := s.d.Catalog.AddCommodity(ctx, req.Name, req.UnitCost); err != nil {
		writeError(w, err)
		return
	}
	out, err := s.d.Catalog.Commodities(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, id := logging.WithRequestID(r.Context(), r.Header.Get("X-Request-ID"))
		w.Header().Set("X-Request-ID", id)
		if s.log != nil {
			s.log.Debug("dashboard request", "method", r.Method, "path", r.URL.Path, "request_id", id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		next.ServeHTTP(w, r)
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid json: "+err.Error()))
		return false
	}
	return true
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// writeError maps gateway and session errors to a status code and the
// user-facing message.
func writeError(w http.ResponseWriter, err error) {
	var (
		verr *gateway.ValidationError
		serr *gateway.StatusError
	)
	switch {
	case errors.As(err, &verr), errors.Is(err, session.ErrNoCorridor):
		writeJSON(w, http.StatusBadRequest, errorBody(gateway.Message(err)))
	case errors.Is(err, session.ErrNoResult):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, session.ErrReadOnly), errors.Is(err, session.ErrNoDrafts):
		writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error()))
	case errors.As(err, &serr):
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": gateway.Message(err), "status": serr.Status})
	default:
		writeJSON(w, http.StatusBadGateway, errorBody(gateway.Message(err)))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{"Content-Type", "X-Request-ID"}, ", "))
}
