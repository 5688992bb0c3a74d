package handlers

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"

	"github.com/Brownie44l1/farm-api/internal/catalog"
	apierr "github.com/Brownie44l1/farm-api/internal/errors"
	"github.com/Brownie44l1/farm-api/internal/gateway"
	"github.com/Brownie44l1/farm-api/internal/model"
)

//go:embed templates/index.html
var templates embed.FS

var indexTemplate = template.Must(template.ParseFS(templates, "templates/index.html"))

type WeatherFetcher interface {
	Fetch(ctx context.Context, lat, lon float64) (gateway.Weather, error)
}

type PriceFetcher interface {
	Fetch(ctx context.Context, state string) ([]gateway.Price, error)
}

type Options struct {
	UploadDir      string
	StaticDir      string
	MaxUploadBytes int64
	// ExplainGrid is the occlusion grid used for ?explain=true on image routes.
	ExplainGrid int
}

type Handler struct {
	registry *model.Registry
	weather  WeatherFetcher
	market   PriceFetcher
	opts     Options
	metrics  *metrics
}

func NewHandler(registry *model.Registry, weather WeatherFetcher, market PriceFetcher, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.UploadDir == "" {
		opts.UploadDir = "uploads"
	}
	return &Handler{
		registry: registry,
		weather:  weather,
		market:   market,
		opts:     opts,
		metrics:  newMetrics(),
	}
}

func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(h.metrics.middleware)

	r.HandleFunc("/", h.Index).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", h.metrics.handler()).Methods(http.MethodGet)
	if h.opts.StaticDir != "" {
		r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(h.opts.StaticDir)))).Methods(http.MethodGet)
	}

	api := r.Methods(http.MethodPost).Subrouter()
	api.Use(h.limitBody)
	api.HandleFunc("/predict_disease", h.PredictDisease)
	api.HandleFunc("/predict_weed", h.PredictWeed)
	api.HandleFunc("/recommend_crop", h.RecommendCrop)
	api.HandleFunc("/get_live_weather", h.LiveWeather)
	api.HandleFunc("/calculate_fertilizer", h.CalculateFertilizer)
	api.HandleFunc("/get_market_prices", h.MarketPrices)
	return r
}

func (h *Handler) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
		next.ServeHTTP(w, r)
	})
}

// Index renders the web page with the region and fertilizer crop lists.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"states":           h.registry.Regions(),
		"fertilizer_crops": catalog.FertilizerCrops(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		logr.FromContextOrDiscard(r.Context()).Error(err, "render index")
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ResponseOK(w, map[string]any{
		"status":  "healthy",
		"models":  h.registry.Status(),
		"digests": h.registry.Digests(),
	})
}

// ResponseError writes err as {"error": message}. Errors outside the API
// taxonomy are reported as internal errors. Causes are logged, never sent.
func ResponseError(w http.ResponseWriter, r *http.Request, err error) {
	info := apierr.ErrorInfo{}
	if !errors.As(err, &info) {
		info = apierr.NewInternalError(err)
	}
	log := logr.FromContextOrDiscard(r.Context())
	if info.HttpStatus >= http.StatusInternalServerError {
		log.Error(err, "request failed", "path", r.URL.Path, "code", info.Code)
	} else {
		log.V(1).Info("request rejected", "path", r.URL.Path, "code", info.Code, "error", info.Message)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(info.HttpStatus)
	json.NewEncoder(w).Encode(info)
}

func ResponseOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}

// decodeBodyError maps a body read failure to an input error.
func decodeBodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierr.NewInputError("Request body too large")
	}
	return apierr.NewInputError("Invalid JSON body")
}
