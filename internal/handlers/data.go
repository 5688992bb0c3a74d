package handlers

import (
	"errors"
	"net/http"

	"github.com/go-logr/logr"

	"github.com/Brownie44l1/farm-api/internal/catalog"
	apierr "github.com/Brownie44l1/farm-api/internal/errors"
	"github.com/Brownie44l1/farm-api/internal/features"
	"github.com/Brownie44l1/farm-api/internal/gateway"
)

type fertilizerResponse struct {
	NNeeded float64 `json:"n_needed"`
	PNeeded float64 `json:"p_needed"`
	KNeeded float64 `json:"k_needed"`
}

type pricesResponse struct {
	Prices []gateway.Price `json:"prices"`
}

// readRecord decodes a flat JSON body, reporting failures as input errors.
// The decoder detail is only logged.
func readRecord(r *http.Request) (features.Record, error) {
	rec, err := features.DecodeRecord(r.Body)
	if err != nil {
		logr.FromContextOrDiscard(r.Context()).V(1).Info("invalid request body", "path", r.URL.Path, "error", err.Error())
		if errors.Is(err, features.ErrUnsupportedValue) {
			return nil, apierr.NewInputError("Attribute values must be numbers or strings")
		}
		return nil, decodeBodyError(err)
	}
	return rec, nil
}

// number returns the numeric field name, or an input error naming it.
func number(rec features.Record, name string) (float64, error) {
	v, ok := rec[name]
	if !ok {
		return 0, apierr.NewInputError("Missing field: " + name)
	}
	if v.Kind != features.Numeric {
		return 0, apierr.NewInputError("Field " + name + " must be numeric")
	}
	return v.Num, nil
}

// text returns the string field name. Numeric values are rejected.
func text(rec features.Record, name string) (string, error) {
	v, ok := rec[name]
	if !ok || (v.Kind == features.Categorical && v.Str == "") {
		return "", apierr.NewInputError("Missing field: " + name)
	}
	if v.Kind != features.Categorical {
		return "", apierr.NewInputError("Field " + name + " must be a string")
	}
	return v.Str, nil
}

func (h *Handler) LiveWeather(w http.ResponseWriter, r *http.Request) {
	rec, err := readRecord(r)
	if err != nil {
		ResponseError(w, r, err)
		return
	}
	lat, err := number(rec, "lat")
	if err != nil {
		ResponseError(w, r, err)
		return
	}
	lon, err := number(rec, "lon")
	if err != nil {
		ResponseError(w, r, err)
		return
	}
	weather, err := h.weather.Fetch(r.Context(), lat, lon)
	if err != nil {
		ResponseError(w, r, upstream("weather", err))
		return
	}
	ResponseOK(w, weather)
}

// CalculateFertilizer reports the N, P and K still needed to reach the
// crop's requirement, never below zero.
func (h *Handler) CalculateFertilizer(w http.ResponseWriter, r *http.Request) {
	rec, err := readRecord(r)
	if err != nil {
		ResponseError(w, r, err)
		return
	}
	crop, err := text(rec, "crop")
	if err != nil {
		ResponseError(w, r, err)
		return
	}
	var supplied [3]float64
	for i, name := range []string{"n", "p", "k"} {
		if supplied[i], err = number(rec, name); err != nil {
			ResponseError(w, r, err)
			return
		}
	}
	req, ok := catalog.Requirement(crop)
	if !ok {
		ResponseError(w, r, apierr.NewNotFoundError("Nutrient data not available for this crop."))
		return
	}
	ResponseOK(w, fertilizerResponse{
		NNeeded: round2(max(0, req.N-supplied[0])),
		PNeeded: round2(max(0, req.P-supplied[1])),
		KNeeded: round2(max(0, req.K-supplied[2])),
	})
}

func (h *Handler) MarketPrices(w http.ResponseWriter, r *http.Request) {
	rec, err := readRecord(r)
	if err != nil {
		ResponseError(w, r, err)
		return
	}
	state, err := text(rec, "state")
	if err != nil {
		ResponseError(w, r, err)
		return
	}
	prices, err := h.market.Fetch(r.Context(), state)
	if err != nil {
		ResponseError(w, r, upstream("market", err))
		return
	}
	if prices == nil {
		prices = []gateway.Price{}
	}
	ResponseOK(w, pricesResponse{Prices: prices})
}

// upstream keeps API errors as they are and classifies anything else as an
// upstream failure of service.
func upstream(service string, err error) error {
	info := apierr.ErrorInfo{}
	if errors.As(err, &info) {
		return err
	}
	return apierr.NewUpstreamError(service, err)
}
