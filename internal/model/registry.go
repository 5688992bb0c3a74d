package model

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/farm-api/internal/catalog"
	apierr "github.com/Brownie44l1/farm-api/internal/errors"
	"github.com/Brownie44l1/farm-api/internal/features"
	"github.com/Brownie44l1/farm-api/internal/forest"
)

// ImageModel is a loaded image classifier and its label order.
type ImageModel struct {
	Classifier    Classifier
	Labels        LabelSet
	ImageSize     int
	ChannelsFirst bool
}

// CropModel is the tabular crop classifier with its class codes and the
// feature layout it was trained on.
type CropModel struct {
	Classifier Classifier
	Classes    []string
	Schema     *features.Schema
}

// Registry holds everything loaded at startup. It is never modified after
// construction, so it is safe for concurrent readers.
type Registry struct {
	disease *ImageModel
	weed    *ImageModel
	crop    *CropModel
	regions []string
	digests map[string]string
	closers []io.Closer
}

type Slots struct {
	Disease *ImageModel
	Weed    *ImageModel
	Crop    *CropModel
	Regions []string
}

// NewRegistry builds a registry from already loaded capabilities. Nil slots
// are reported as unavailable.
func NewRegistry(slots Slots) *Registry {
	regions := append([]string(nil), slots.Regions...)
	sort.Strings(regions)
	return &Registry{
		disease: slots.Disease,
		weed:    slots.Weed,
		crop:    slots.Crop,
		regions: regions,
		digests: map[string]string{},
	}
}

func (r *Registry) Disease() (*ImageModel, error) {
	if r.disease == nil {
		return nil, apierr.NewModelUnavailableError()
	}
	return r.disease, nil
}

func (r *Registry) Weed() (*ImageModel, error) {
	if r.weed == nil {
		return nil, apierr.NewModelUnavailableError()
	}
	return r.weed, nil
}

func (r *Registry) Crop() (*CropModel, error) {
	if r.crop == nil {
		return nil, apierr.NewModelUnavailableError()
	}
	return r.crop, nil
}

// Regions returns the distinct region names of the training data, sorted.
func (r *Registry) Regions() []string {
	return append([]string(nil), r.regions...)
}

// Status reports which capabilities are loaded.
func (r *Registry) Status() map[string]bool {
	return map[string]bool{
		"disease": r.disease != nil,
		"weed":    r.weed != nil,
		"crop":    r.crop != nil,
	}
}

// Digests returns the content digest of every artifact that was loaded.
func (r *Registry) Digests() map[string]string {
	out := make(map[string]string, len(r.digests))
	for k, v := range r.digests {
		out[k] = v
	}
	return out
}

func (r *Registry) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Artifact locates a model file and its optional metadata file.
type Artifact struct {
	Model    string `json:"model,omitempty"`
	Metadata string `json:"metadata,omitempty"`
}

type LoadOptions struct {
	Disease Artifact
	Weed    Artifact
	Crop    Artifact
	// Dataset is the training table the crop feature layout is derived from
	// and, unless Crop.Model is set, the crop forest is trained on.
	Dataset string
	Forest  forest.Options
	// Fetcher resolves artifact locations. Defaults to LocalFetcher.
	Fetcher Fetcher
	// Open builds a classifier for a model file. Defaults to NewServer.
	Open func(modelPath string, metadata Metadata) (Classifier, error)
}

type loaded struct {
	digests map[string]string
	closers []io.Closer
}

func (l *loaded) track(name, path string, c Classifier) {
	if d, err := FileDigest(path); err == nil {
		l.digests[name] = d.String()
	}
	if closer, ok := c.(io.Closer); ok {
		l.closers = append(l.closers, closer)
	}
}

// Load brings up every capability independently. A capability that fails to
// load is logged and left empty; Load itself only fails if ctx is done.
func Load(ctx context.Context, opts LoadOptions) (*Registry, error) {
	log := logr.FromContextOrDiscard(ctx)
	if opts.Fetcher == nil {
		opts.Fetcher = LocalFetcher{}
	}
	if opts.Open == nil {
		opts.Open = func(modelPath string, metadata Metadata) (Classifier, error) {
			return NewServer(modelPath, metadata)
		}
	}

	var (
		disease, weed                *ImageModel
		cropModel                    *CropModel
		regions                      []string
		diseaseRes, weedRes, cropRes = newLoaded(), newLoaded(), newLoaded()
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := loadImageModel(gctx, opts, "disease", opts.Disease, catalog.DiseaseLabels(), diseaseRes)
		if err != nil {
			log.Error(err, "disease detection model unavailable", "model", opts.Disease.Model)
			return nil
		}
		disease = m
		log.Info("disease detection model loaded", "classes", m.Labels.Len())
		return nil
	})
	g.Go(func() error {
		m, err := loadImageModel(gctx, opts, "weed", opts.Weed, catalog.WeedLabels(), weedRes)
		if err != nil {
			log.Error(err, "weed detection model unavailable", "model", opts.Weed.Model)
			return nil
		}
		weed = m
		log.Info("weed detection model loaded", "classes", m.Labels.Len())
		return nil
	})
	g.Go(func() error {
		dataset, schema, rs, err := loadSchema(gctx, opts, cropRes)
		if err != nil {
			log.Error(err, "crop dataset unavailable", "dataset", opts.Dataset)
			return nil
		}
		regions = rs
		var m *CropModel
		if opts.Crop.Model != "" {
			m, err = loadCropModel(gctx, opts, schema, cropRes)
		} else {
			m, err = trainCropModel(gctx, opts, dataset, schema)
		}
		if err != nil {
			log.Error(err, "crop recommendation model unavailable", "model", opts.Crop.Model)
			return nil
		}
		cropModel = m
		log.Info("crop recommendation model loaded", "classes", len(m.Classes), "features", schema.Len(), "regions", len(rs))
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		for _, res := range []*loaded{diseaseRes, weedRes, cropRes} {
			for _, c := range res.closers {
				c.Close()
			}
		}
		return nil, err
	}

	r := NewRegistry(Slots{Disease: disease, Weed: weed, Crop: cropModel, Regions: regions})
	for _, res := range []*loaded{diseaseRes, weedRes, cropRes} {
		for k, v := range res.digests {
			r.digests[k] = v
		}
		r.closers = append(r.closers, res.closers...)
	}
	return r, nil
}

func newLoaded() *loaded {
	return &loaded{digests: map[string]string{}}
}

func loadImageModel(ctx context.Context, opts LoadOptions, name string, art Artifact, defaults []string, res *loaded) (*ImageModel, error) {
	if art.Model == "" {
		return nil, fmt.Errorf("no %s model configured", name)
	}
	modelPath, err := opts.Fetcher.Fetch(ctx, art.Model)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, err
	}

	var metadata Metadata
	if art.Metadata != "" {
		metaPath, err := opts.Fetcher.Fetch(ctx, art.Metadata)
		if err != nil {
			return nil, err
		}
		if metadata, err = ReadMetadata(metaPath); err != nil {
			return nil, err
		}
	} else {
		metadata = DefaultImageMetadata(128, len(defaults))
	}
	// Metadata classes are index aligned with the output; the default lists
	// follow the sorted class folders the models were trained on.
	labels := NewLabelSet(defaults)
	if len(metadata.Classes) > 0 {
		if labels, err = OrderedLabelSet(metadata.Classes); err != nil {
			return nil, fmt.Errorf("%s metadata: %w", name, err)
		}
	}
	if out := metadata.Outputs(); out > 0 && out != labels.Len() {
		return nil, fmt.Errorf("%s model has %d outputs for %d labels", name, out, labels.Len())
	}
	size := metadata.ImageSize
	if size <= 0 {
		size = 128
	}

	classifier, err := opts.Open(modelPath, metadata)
	if err != nil {
		return nil, err
	}
	res.track(name, modelPath, classifier)
	return &ImageModel{
		Classifier:    classifier,
		Labels:        labels,
		ImageSize:     size,
		ChannelsFirst: metadata.ChannelsFirst,
	}, nil
}

func cropDeriveOptions() features.DeriveOptions {
	derive := features.DefaultDeriveOptions()
	derive.KeepTarget = catalog.IsCropCode
	return derive
}

func loadSchema(ctx context.Context, opts LoadOptions, res *loaded) (*features.Dataset, *features.Schema, []string, error) {
	if opts.Dataset == "" {
		return nil, nil, nil, fmt.Errorf("no crop dataset configured")
	}
	path, err := opts.Fetcher.Fetch(ctx, opts.Dataset)
	if err != nil {
		return nil, nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	defer f.Close()
	dataset, err := features.ReadDataset(f)
	if err != nil {
		return nil, nil, nil, err
	}
	if d, err := FileDigest(path); err == nil {
		res.digests["crop_dataset"] = d.String()
	}
	schema, regions, err := features.DeriveSchema(dataset, cropDeriveOptions())
	if err != nil {
		return nil, nil, nil, err
	}
	return dataset, schema, regions, nil
}

// trainCropModel fits the crop forest on the kept dataset rows. Its classes
// are the sorted crop codes present in those rows.
func trainCropModel(ctx context.Context, opts LoadOptions, dataset *features.Dataset, schema *features.Schema) (*CropModel, error) {
	x, y, err := features.TrainingSet(dataset, schema, cropDeriveOptions())
	if err != nil {
		return nil, err
	}
	forestOpts := opts.Forest
	if forestOpts == (forest.Options{}) {
		forestOpts = forest.DefaultOptions()
	}
	logr.FromContextOrDiscard(ctx).Info("training crop recommendation model", "rows", len(x), "features", schema.Len(), "trees", forestOpts.Trees)
	f, err := forest.Train(ctx, x, y, forestOpts)
	if err != nil {
		return nil, fmt.Errorf("train crop model: %w", err)
	}
	return &CropModel{Classifier: f, Classes: f.Classes(), Schema: schema}, nil
}

func loadCropModel(ctx context.Context, opts LoadOptions, schema *features.Schema, res *loaded) (*CropModel, error) {
	if opts.Crop.Metadata == "" {
		return nil, fmt.Errorf("crop model %s requires a metadata file", opts.Crop.Model)
	}
	modelPath, err := opts.Fetcher.Fetch(ctx, opts.Crop.Model)
	if err != nil {
		return nil, err
	}
	metaPath, err := opts.Fetcher.Fetch(ctx, opts.Crop.Metadata)
	if err != nil {
		return nil, err
	}
	metadata, err := ReadMetadata(metaPath)
	if err != nil {
		return nil, err
	}
	if len(metadata.Classes) == 0 {
		return nil, fmt.Errorf("crop metadata lists no classes")
	}
	if n := metadata.Features(); n > 0 && n != schema.Len() {
		return nil, fmt.Errorf("crop model expects %d features, dataset yields %d", n, schema.Len())
	}
	if out := metadata.Outputs(); out > 0 && out != len(metadata.Classes) {
		return nil, fmt.Errorf("crop model has %d outputs for %d classes", out, len(metadata.Classes))
	}
	classifier, err := opts.Open(modelPath, metadata)
	if err != nil {
		return nil, err
	}
	res.track("crop", modelPath, classifier)
	if d, err := FileDigest(metaPath); err == nil {
		res.digests["crop_metadata"] = d.String()
	}
	return &CropModel{
		Classifier: classifier,
		Classes:    append([]string(nil), metadata.Classes...),
		Schema:     schema,
	}, nil
}
