package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"sigs.k8s.io/yaml"

	"github.com/Brownie44l1/farm-api/internal/forest"
	"github.com/Brownie44l1/farm-api/internal/gateway"
	"github.com/Brownie44l1/farm-api/internal/model"
)

const EnvPrefix = "FARM_"

type Options struct {
	Listen         string           `json:"listen,omitempty"`
	UploadDir      string           `json:"uploadDir,omitempty"`
	StaticDir      string           `json:"staticDir,omitempty"`
	MaxUploadBytes int64            `json:"maxUploadBytes,omitempty"`
	CORSOrigins    []string         `json:"corsOrigins,omitempty"`
	OnnxRuntime    string           `json:"onnxRuntime,omitempty"`
	Models         *ModelOptions    `json:"models,omitempty"`
	Weather        *WeatherOptions  `json:"weather,omitempty"`
	Market         *MarketOptions   `json:"market,omitempty"`
	S3             *model.S3Options `json:"s3,omitempty"`
}

type ModelOptions struct {
	Disease model.Artifact `json:"disease,omitempty"`
	Weed    model.Artifact `json:"weed,omitempty"`
	// Crop is an optional exported crop model used instead of training a
	// forest on Dataset at startup.
	Crop    model.Artifact `json:"crop,omitempty"`
	Dataset string         `json:"dataset,omitempty"`
	Forest  forest.Options `json:"forest,omitempty"`
}

type WeatherOptions struct {
	URL     string   `json:"url,omitempty"`
	Timeout Duration `json:"timeout,omitempty"`
}

type MarketOptions struct {
	URL         string   `json:"url,omitempty"`
	APIKey      string   `json:"apiKey,omitempty"`
	Timeout     Duration `json:"timeout,omitempty"`
	RecordLimit int      `json:"recordLimit,omitempty"`
	RowLimit    int      `json:"rowLimit,omitempty"`
}

func DefaultOptions() *Options {
	return &Options{
		Listen:         ":8080",
		UploadDir:      "uploads",
		StaticDir:      "static",
		MaxUploadBytes: 10 << 20,
		CORSOrigins:    []string{"*"},
		Models: &ModelOptions{
			Disease: model.Artifact{Model: "models/plant_disease_model.onnx"},
			Weed:    model.Artifact{Model: "models/weed_model.onnx"},
			Dataset: "data/Crop_Recommendation_Dataset.csv",
			Forest:  forest.DefaultOptions(),
		},
		Weather: &WeatherOptions{
			URL:     gateway.DefaultWeatherURL,
			Timeout: Duration{gateway.DefaultWeatherTimeout},
		},
		Market: &MarketOptions{
			URL:         gateway.DefaultMarketURL,
			Timeout:     Duration{gateway.DefaultMarketTimeout},
			RecordLimit: gateway.DefaultRecordLimit,
			RowLimit:    gateway.DefaultRowLimit,
		},
		S3: &model.S3Options{CacheDir: "models/cache"},
	}
}

// BindFlags registers a flag for every option, defaulting to the current value.
func BindFlags(fs *pflag.FlagSet, o *Options) {
	fs.StringVar(&o.Listen, "listen", o.Listen, "listen address")
	fs.StringVar(&o.UploadDir, "upload-dir", o.UploadDir, "scratch directory for uploaded images")
	fs.StringVar(&o.StaticDir, "static-dir", o.StaticDir, "directory served under /static/")
	fs.Int64Var(&o.MaxUploadBytes, "max-upload-bytes", o.MaxUploadBytes, "maximum request body size")
	fs.Var((*commaList)(&o.CORSOrigins), "cors-origins", "comma separated allowed CORS origins")
	fs.StringVar(&o.OnnxRuntime, "onnxruntime", o.OnnxRuntime, "onnxruntime shared library path")

	fs.StringVar(&o.Models.Disease.Model, "disease-model", o.Models.Disease.Model, "disease model, local path or s3://bucket/key")
	fs.StringVar(&o.Models.Disease.Metadata, "disease-metadata", o.Models.Disease.Metadata, "disease model metadata")
	fs.StringVar(&o.Models.Weed.Model, "weed-model", o.Models.Weed.Model, "weed model, local path or s3://bucket/key")
	fs.StringVar(&o.Models.Weed.Metadata, "weed-metadata", o.Models.Weed.Metadata, "weed model metadata")
	fs.StringVar(&o.Models.Crop.Model, "crop-model", o.Models.Crop.Model, "exported crop model replacing the trained forest, local path or s3://bucket/key")
	fs.StringVar(&o.Models.Crop.Metadata, "crop-metadata", o.Models.Crop.Metadata, "exported crop model metadata")
	fs.StringVar(&o.Models.Dataset, "crop-dataset", o.Models.Dataset, "crop training dataset csv")
	fs.IntVar(&o.Models.Forest.Trees, "crop-trees", o.Models.Forest.Trees, "trees in the crop forest")
	fs.IntVar(&o.Models.Forest.MaxDepth, "crop-max-depth", o.Models.Forest.MaxDepth, "crop forest tree depth, 0 for unlimited")
	fs.Int64Var(&o.Models.Forest.Seed, "crop-seed", o.Models.Forest.Seed, "crop forest random seed")

	fs.StringVar(&o.Weather.URL, "weather-url", o.Weather.URL, "weather forecast api url")
	fs.DurationVar(&o.Weather.Timeout.Duration, "weather-timeout", o.Weather.Timeout.Duration, "weather api timeout")
	fs.StringVar(&o.Market.URL, "market-url", o.Market.URL, "market price api url")
	fs.StringVar(&o.Market.APIKey, "market-api-key", o.Market.APIKey, "market price api key")
	fs.DurationVar(&o.Market.Timeout.Duration, "market-timeout", o.Market.Timeout.Duration, "market api timeout")
	fs.IntVar(&o.Market.RecordLimit, "market-record-limit", o.Market.RecordLimit, "upstream records fetched per request")
	fs.IntVar(&o.Market.RowLimit, "market-row-limit", o.Market.RowLimit, "price rows returned per request")

	fs.StringVar(&o.S3.URL, "s3-url", o.S3.URL, "s3 url")
	fs.StringVar(&o.S3.Region, "s3-region", o.S3.Region, "s3 region")
	fs.StringVar(&o.S3.AccessKey, "s3-access-key", o.S3.AccessKey, "s3 access key")
	fs.StringVar(&o.S3.SecretKey, "s3-secret-key", o.S3.SecretKey, "s3 secret key")
	fs.StringVar(&o.S3.CacheDir, "s3-cache-dir", o.S3.CacheDir, "local cache for s3 artifacts")
}

// LoadFile merges a YAML config file over o.
func LoadFile(path string, o *Options) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, o); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	// A section set to null in the file falls back to its defaults.
	defaults := DefaultOptions()
	if o.Models == nil {
		o.Models = defaults.Models
	}
	if o.Weather == nil {
		o.Weather = defaults.Weather
	}
	if o.Market == nil {
		o.Market = defaults.Market
	}
	if o.S3 == nil {
		o.S3 = defaults.S3
	}
	return nil
}

// ApplyEnv overrides secrets and paths from FARM_* environment variables.
func ApplyEnv(o *Options, lookup func(string) (string, bool)) {
	for name, dst := range map[string]*string{
		"MARKET_API_KEY": &o.Market.APIKey,
		"S3_ACCESS_KEY":  &o.S3.AccessKey,
		"S3_SECRET_KEY":  &o.S3.SecretKey,
		"ONNXRUNTIME":    &o.OnnxRuntime,
	} {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
}

// Resolve builds the effective options: defaults, then the config file if
// any, then the environment, then every flag explicitly set on changed.
func Resolve(path string, changed *pflag.FlagSet, lookup func(string) (string, bool)) (*Options, error) {
	o := DefaultOptions()
	if path != "" {
		if err := LoadFile(path, o); err != nil {
			return nil, err
		}
	}
	ApplyEnv(o, lookup)

	fs := pflag.NewFlagSet("resolve", pflag.ContinueOnError)
	BindFlags(fs, o)
	var setErr error
	changed.Visit(func(f *pflag.Flag) {
		if fs.Lookup(f.Name) == nil || setErr != nil {
			return
		}
		setErr = fs.Set(f.Name, f.Value.String())
	})
	if setErr != nil {
		return nil, setErr
	}
	return o, o.Validate()
}

func (o *Options) Validate() error {
	var errs []error
	if o.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if o.UploadDir == "" {
		errs = append(errs, errors.New("upload dir is required"))
	}
	if o.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max upload bytes must be positive"))
	}
	if o.Weather.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("weather timeout must be positive"))
	}
	if o.Market.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("market timeout must be positive"))
	}
	return errors.Join(errs...)
}

func (o *Options) LoadOptions() model.LoadOptions {
	return model.LoadOptions{
		Disease: o.Models.Disease,
		Weed:    o.Models.Weed,
		Crop:    o.Models.Crop,
		Dataset: o.Models.Dataset,
		Forest:  o.Models.Forest,
	}
}

func (o *Options) MarketOptions() gateway.MarketOptions {
	return gateway.MarketOptions{
		URL:         o.Market.URL,
		APIKey:      o.Market.APIKey,
		Timeout:     o.Market.Timeout.Duration,
		RecordLimit: o.Market.RecordLimit,
		RowLimit:    o.Market.RowLimit,
	}
}

// UsesS3 reports whether any artifact is an s3:// location.
func (o *Options) UsesS3() bool {
	for _, loc := range []string{
		o.Models.Disease.Model, o.Models.Disease.Metadata,
		o.Models.Weed.Model, o.Models.Weed.Metadata,
		o.Models.Crop.Model, o.Models.Crop.Metadata,
		o.Models.Dataset,
	} {
		if strings.HasPrefix(loc, "s3://") {
			return true
		}
	}
	return false
}

// Duration accepts "10s" style strings or integer nanoseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		d.Duration = time.Duration(val)
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

type commaList []string

func (l *commaList) String() string { return strings.Join(*l, ",") }

func (l *commaList) Set(v string) error {
	*l = nil
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*l = append(*l, s)
		}
	}
	return nil
}

func (l *commaList) Type() string { return "strings" }
