package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/Brownie44l1/farm-api/internal/catalog"
	apierr "github.com/Brownie44l1/farm-api/internal/errors"
	"github.com/Brownie44l1/farm-api/internal/explain"
	"github.com/Brownie44l1/farm-api/internal/features"
	"github.com/Brownie44l1/farm-api/internal/imaging"
	"github.com/Brownie44l1/farm-api/internal/model"
)

const topCrops = 3

type imageResponse struct {
	Prediction string                    `json:"prediction"`
	Confidence float64                   `json:"confidence"`
	XAI        *explain.ImageExplanation `json:"xai,omitempty"`
}

type cropResponse struct {
	Recommendations []explain.Recommendation `json:"recommendations"`
	XAI             *explain.CropExplanation `json:"xai,omitempty"`
}

func (h *Handler) PredictDisease(w http.ResponseWriter, r *http.Request) {
	m, err := h.registry.Disease()
	if err != nil {
		ResponseError(w, r, err)
		return
	}
	h.predictImage(w, r, explain.KindDisease, m)
}

func (h *Handler) PredictWeed(w http.ResponseWriter, r *http.Request) {
	m, err := h.registry.Weed()
	if err != nil {
		ResponseError(w, r, err)
		return
	}
	h.predictImage(w, r, explain.KindWeed, m)
}

func (h *Handler) predictImage(w http.ResponseWriter, r *http.Request, kind explain.Kind, m *model.ImageModel) {
	ctx := r.Context()
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ResponseError(w, r, apierr.NewInputError("Request body too large"))
			return
		}
		ResponseError(w, r, apierr.NewInputError("No file provided"))
		return
	}
	defer file.Close()

	tensor, err := h.normalizeUpload(ctx, file, header, m)
	if err != nil {
		ResponseError(w, r, err)
		return
	}

	scores, err := m.Classifier.Predict(ctx, tensor.Shape, tensor.Data)
	if err != nil {
		ResponseError(w, r, apierr.NewInternalError(fmt.Errorf("%s prediction: %w", kind, err)))
		return
	}
	result, err := m.Labels.Top(scores)
	if err != nil {
		ResponseError(w, r, apierr.NewInternalError(fmt.Errorf("%s prediction: %w", kind, err)))
		return
	}
	h.metrics.predictions.WithLabelValues(string(kind)).Inc()

	resp := imageResponse{Prediction: FormatLabel(kind, result.Label), Confidence: result.Confidence}
	if wantExplain(r) {
		xai := h.explainImage(ctx, kind, m, tensor, result)
		resp.XAI = &xai
	}
	ResponseOK(w, resp)
}

// normalizeUpload saves the upload under a fresh name in the upload dir and
// normalizes it. The saved file is removed before returning.
func (h *Handler) normalizeUpload(ctx context.Context, file multipart.File, header *multipart.FileHeader, m *model.ImageModel) (imaging.Tensor, error) {
	log := logr.FromContextOrDiscard(ctx)
	if err := os.MkdirAll(h.opts.UploadDir, 0o755); err != nil {
		return imaging.Tensor{}, apierr.NewInternalError(err)
	}
	path := filepath.Join(h.opts.UploadDir, uuid.New().String()+filepath.Ext(header.Filename))
	out, err := os.Create(path)
	if err != nil {
		return imaging.Tensor{}, apierr.NewInternalError(err)
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			log.Error(err, "remove upload", "path", path)
		}
	}()
	_, err = io.Copy(out, file)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return imaging.Tensor{}, apierr.NewInputError("Request body too large")
		}
		return imaging.Tensor{}, apierr.NewInternalError(fmt.Errorf("save upload: %w", err))
	}

	in, err := os.Open(path)
	if err != nil {
		return imaging.Tensor{}, apierr.NewInternalError(err)
	}
	defer in.Close()
	tensor, format, err := imaging.Normalize(in, m.ImageSize, m.ChannelsFirst)
	if err != nil {
		return imaging.Tensor{}, apierr.NewInputError("Invalid image file")
	}
	log.V(1).Info("normalized upload", "file", header.Filename, "size", header.Size, "format", format)
	return tensor, nil
}

func (h *Handler) explainImage(ctx context.Context, kind explain.Kind, m *model.ImageModel, t imaging.Tensor, result model.PredictionResult) explain.ImageExplanation {
	label := FormatLabel(kind, result.Label)
	explainer := explain.Occlusion{Predictor: m.Classifier, Grid: h.opts.ExplainGrid, ChannelsFirst: m.ChannelsFirst}
	regions, err := explainer.Regions(ctx, t, result.Index)
	if err != nil {
		logr.FromContextOrDiscard(ctx).Error(err, "explain image", "kind", kind)
		return explain.FallbackImage(label, result.Confidence)
	}
	return explain.ExplainImage(kind, label, result.Confidence, regions)
}

// FormatLabel turns a class label into display text. Disease labels use
// "___" between plant and condition.
func FormatLabel(kind explain.Kind, label string) string {
	if kind == explain.KindDisease {
		label = strings.ReplaceAll(label, "___", " - ")
	}
	return strings.ReplaceAll(label, "_", " ")
}

func (h *Handler) RecommendCrop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, err := h.registry.Crop()
	if err != nil {
		ResponseError(w, r, err)
		return
	}
	rec, err := readRecord(r)
	if err != nil {
		ResponseError(w, r, err)
		return
	}
	if dropped := features.Dropped(m.Schema, rec); len(dropped) > 0 {
		logr.FromContextOrDiscard(ctx).V(1).Info("ignoring unknown crop features", "columns", dropped)
	}

	input := features.Align(m.Schema, rec)
	probs, err := m.Classifier.Predict(ctx, []int64{1, int64(len(input))}, input)
	if err != nil {
		ResponseError(w, r, apierr.NewInternalError(fmt.Errorf("crop prediction: %w", err)))
		return
	}
	ranked, err := model.TopK(m.Classes, probs, topCrops)
	if err != nil {
		ResponseError(w, r, apierr.NewInternalError(fmt.Errorf("crop prediction: %w", err)))
		return
	}
	h.metrics.predictions.WithLabelValues("crop").Inc()

	resp := cropResponse{Recommendations: make([]explain.Recommendation, 0, len(ranked))}
	for _, c := range ranked {
		resp.Recommendations = append(resp.Recommendations, explain.Recommendation{
			Crop:       catalog.DisplayName(c.Class),
			Confidence: round2(c.Probability * 100),
		})
	}
	if wantExplain(r) {
		names, values := numericFields(rec)
		xai := explain.ExplainCrop(resp.Recommendations, names, values)
		resp.XAI = &xai
	}
	ResponseOK(w, resp)
}

// numericFields lists the numeric attributes of rec by name.
func numericFields(rec features.Record) ([]string, []float64) {
	names := make([]string, 0, len(rec))
	for name, v := range rec {
		if v.Kind == features.Numeric {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	values := make([]float64, len(names))
	for i, name := range names {
		values[i] = rec[name].Num
	}
	return names, values
}

func wantExplain(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("explain")) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
