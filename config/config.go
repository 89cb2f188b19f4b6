// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/go-viper/mapstructure/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	SimilarityJaccard = "jaccard"
	SimilarityCosine  = "cosine"

	BlobPOSIX = "posix"
	BlobS3    = "s3"
	BlobGCS   = "gcs"
	BlobAzure = "azure"
)

// Config is the configuration for the basket jobs and server.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Source   SourceConfig   `mapstructure:"source"`
	FBT      FBTConfig      `mapstructure:"fbt"`
	IBCF     IBCFConfig     `mapstructure:"ibcf"`
	Evaluate EvaluateConfig `mapstructure:"evaluate"`
	Write    WriteConfig    `mapstructure:"write"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Server   ServerConfig   `mapstructure:"server"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Jobs     int            `mapstructure:"jobs" validate:"gt=0"`
}

// DatabaseConfig is the configuration for the data store and the cache store.
type DatabaseConfig struct {
	DataStore   string `mapstructure:"data_store" validate:"required,data_store"`
	CacheStore  string `mapstructure:"cache_store" validate:"required,cache_store"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// SourceConfig selects the order items loaded by every job.
type SourceConfig struct {
	TimeWindow time.Duration `mapstructure:"time_window" validate:"gt=0"`
	Limit      int           `mapstructure:"limit" validate:"gte=0"`
}

type FBTConfig struct {
	MinBasketSize    int     `mapstructure:"min_basket_size" validate:"gte=0"`
	MinSupport       float64 `mapstructure:"min_support" validate:"gt=0,lte=1"`
	MaxLength        int     `mapstructure:"max_length" validate:"gte=0"`
	MinItemsetLength int     `mapstructure:"min_itemset_length" validate:"gte=1"`
	TopItemsets      int     `mapstructure:"top_itemsets" validate:"gt=0"`
	MinConfidence    float64 `mapstructure:"min_confidence" validate:"gte=0,lte=1"`
	MinLift          float64 `mapstructure:"min_lift" validate:"gte=0"`
}

type IBCFConfig struct {
	Similarity         string `mapstructure:"similarity" validate:"oneof=jaccard cosine"`
	NumRecommendations int    `mapstructure:"num_recommendations" validate:"gt=0"`
	MinItemUsers       int    `mapstructure:"min_item_users" validate:"gte=0"`
	NumNeighbors       int    `mapstructure:"num_neighbors" validate:"gt=0"`
	ExcludePurchased   bool   `mapstructure:"exclude_purchased"`
	RecommendType      int    `mapstructure:"recommend_type"`
}

type EvaluateConfig struct {
	TestWindow time.Duration `mapstructure:"test_window" validate:"gt=0"`
}

type WriteConfig struct {
	BatchSize int `mapstructure:"batch_size" validate:"gt=0"`
	Retries   int `mapstructure:"retries" validate:"gt=0"`
}

type ScheduleConfig struct {
	FBTPeriod  time.Duration `mapstructure:"fbt_period" validate:"gte=0"`
	IBCFPeriod time.Duration `mapstructure:"ibcf_period" validate:"gte=0"`
}

type ServerConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	APIKey   string        `mapstructure:"api_key"`
	DefaultN int           `mapstructure:"default_n" validate:"gt=0"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
}

// BlobConfig is the configuration of the object storage used by import and export.
type BlobConfig struct {
	Type  string      `mapstructure:"type" validate:"oneof=posix s3 gcs azure"`
	POSIX POSIXConfig `mapstructure:"posix"`
	S3    S3Config    `mapstructure:"s3"`
	GCS   GCSConfig   `mapstructure:"gcs"`
	Azure AzureConfig `mapstructure:"azure"`
}

type POSIXConfig struct {
	Dir string `mapstructure:"dir"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type AzureConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	Container        string `mapstructure:"container"`
	Prefix           string `mapstructure:"prefix"`
}

type TracingConfig struct {
	EnableTracing     bool    `mapstructure:"enable_tracing"`
	Exporter          string  `mapstructure:"exporter" validate:"oneof=otlp otlphttp zipkin"`
	CollectorEndpoint string  `mapstructure:"collector_endpoint"`
	Sampler           string  `mapstructure:"sampler" validate:"oneof=always never ratio"`
	Ratio             float64 `mapstructure:"ratio" validate:"gte=0,lte=1"`
}

// NewTracerProvider creates the tracer provider described by the configuration.
// A no-op provider is returned when tracing is disabled.
func (config *TracingConfig) NewTracerProvider() (trace.TracerProvider, error) {
	if !config.EnableTracing {
		return noop.NewTracerProvider(), nil
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch config.Exporter {
	case "otlp":
		exporter, err = otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(config.CollectorEndpoint))
	case "otlphttp":
		exporter, err = otlptracehttp.New(context.Background(),
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithEndpoint(config.CollectorEndpoint))
	case "zipkin":
		exporter, err = zipkin.New(config.CollectorEndpoint)
	default:
		return nil, errors.NotSupportedf("exporter %s", config.Exporter)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}

	var sampler sdktrace.Sampler
	switch config.Sampler {
	case "always":
		sampler = sdktrace.AlwaysSample()
	case "never":
		sampler = sdktrace.NeverSample()
	case "ratio":
		sampler = sdktrace.TraceIDRatioBased(config.Ratio)
	default:
		return nil, errors.NotSupportedf("sampler %s", config.Sampler)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("basket"),
		)),
	), nil
}

func GetDefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DataStore:  "sqlite://basket.db",
			CacheStore: "sqlite://basket.db",
		},
		Source: SourceConfig{
			TimeWindow: 91 * 24 * time.Hour,
			Limit:      800000,
		},
		FBT: FBTConfig{
			MinBasketSize:    4,
			MinSupport:       0.0001,
			MaxLength:        10,
			MinItemsetLength: 3,
			TopItemsets:      3,
			MinConfidence:    0.1,
			MinLift:          1,
		},
		IBCF: IBCFConfig{
			Similarity:         SimilarityJaccard,
			NumRecommendations: 6,
			MinItemUsers:       2,
			NumNeighbors:       10,
			RecommendType:      1,
		},
		Evaluate: EvaluateConfig{
			TestWindow: 30 * 24 * time.Hour,
		},
		Write: WriteConfig{
			BatchSize: 10000,
			Retries:   3,
		},
		Schedule: ScheduleConfig{
			FBTPeriod:  24 * time.Hour,
			IBCFPeriod: 24 * time.Hour,
		},
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     8087,
			DefaultN: 10,
			CacheTTL: 10 * time.Second,
		},
		Blob: BlobConfig{
			Type:  BlobPOSIX,
			POSIX: POSIXConfig{Dir: "."},
		},
		Tracing: TracingConfig{
			Exporter: "otlp",
			Sampler:  "always",
			Ratio:    1,
		},
		Jobs: runtime.NumCPU(),
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [database]
	v.SetDefault("database.data_store", defaultConfig.Database.DataStore)
	v.SetDefault("database.cache_store", defaultConfig.Database.CacheStore)
	v.SetDefault("database.table_prefix", defaultConfig.Database.TablePrefix)
	// [source]
	v.SetDefault("source.time_window", defaultConfig.Source.TimeWindow)
	v.SetDefault("source.limit", defaultConfig.Source.Limit)
	// [fbt]
	v.SetDefault("fbt.min_basket_size", defaultConfig.FBT.MinBasketSize)
	v.SetDefault("fbt.min_support", defaultConfig.FBT.MinSupport)
	v.SetDefault("fbt.max_length", defaultConfig.FBT.MaxLength)
	v.SetDefault("fbt.min_itemset_length", defaultConfig.FBT.MinItemsetLength)
	v.SetDefault("fbt.top_itemsets", defaultConfig.FBT.TopItemsets)
	v.SetDefault("fbt.min_confidence", defaultConfig.FBT.MinConfidence)
	v.SetDefault("fbt.min_lift", defaultConfig.FBT.MinLift)
	// [ibcf]
	v.SetDefault("ibcf.similarity", defaultConfig.IBCF.Similarity)
	v.SetDefault("ibcf.num_recommendations", defaultConfig.IBCF.NumRecommendations)
	v.SetDefault("ibcf.min_item_users", defaultConfig.IBCF.MinItemUsers)
	v.SetDefault("ibcf.num_neighbors", defaultConfig.IBCF.NumNeighbors)
	v.SetDefault("ibcf.exclude_purchased", defaultConfig.IBCF.ExcludePurchased)
	v.SetDefault("ibcf.recommend_type", defaultConfig.IBCF.RecommendType)
	// [evaluate]
	v.SetDefault("evaluate.test_window", defaultConfig.Evaluate.TestWindow)
	// [write]
	v.SetDefault("write.batch_size", defaultConfig.Write.BatchSize)
	v.SetDefault("write.retries", defaultConfig.Write.Retries)
	// [schedule]
	v.SetDefault("schedule.fbt_period", defaultConfig.Schedule.FBTPeriod)
	v.SetDefault("schedule.ibcf_period", defaultConfig.Schedule.IBCFPeriod)
	// [server]
	v.SetDefault("server.host", defaultConfig.Server.Host)
	v.SetDefault("server.port", defaultConfig.Server.Port)
	v.SetDefault("server.api_key", defaultConfig.Server.APIKey)
	v.SetDefault("server.default_n", defaultConfig.Server.DefaultN)
	v.SetDefault("server.cache_ttl", defaultConfig.Server.CacheTTL)
	// [blob]
	v.SetDefault("blob.type", defaultConfig.Blob.Type)
	v.SetDefault("blob.posix.dir", defaultConfig.Blob.POSIX.Dir)
	v.SetDefault("blob.s3.endpoint", defaultConfig.Blob.S3.Endpoint)
	v.SetDefault("blob.s3.access_key_id", defaultConfig.Blob.S3.AccessKeyID)
	v.SetDefault("blob.s3.secret_access_key", defaultConfig.Blob.S3.SecretAccessKey)
	v.SetDefault("blob.s3.bucket", defaultConfig.Blob.S3.Bucket)
	v.SetDefault("blob.s3.prefix", defaultConfig.Blob.S3.Prefix)
	v.SetDefault("blob.s3.use_ssl", defaultConfig.Blob.S3.UseSSL)
	v.SetDefault("blob.gcs.bucket", defaultConfig.Blob.GCS.Bucket)
	v.SetDefault("blob.gcs.prefix", defaultConfig.Blob.GCS.Prefix)
	v.SetDefault("blob.gcs.credentials_file", defaultConfig.Blob.GCS.CredentialsFile)
	v.SetDefault("blob.azure.connection_string", defaultConfig.Blob.Azure.ConnectionString)
	v.SetDefault("blob.azure.container", defaultConfig.Blob.Azure.Container)
	v.SetDefault("blob.azure.prefix", defaultConfig.Blob.Azure.Prefix)
	// [tracing]
	v.SetDefault("tracing.enable_tracing", defaultConfig.Tracing.EnableTracing)
	v.SetDefault("tracing.exporter", defaultConfig.Tracing.Exporter)
	v.SetDefault("tracing.collector_endpoint", defaultConfig.Tracing.CollectorEndpoint)
	v.SetDefault("tracing.sampler", defaultConfig.Tracing.Sampler)
	v.SetDefault("tracing.ratio", defaultConfig.Tracing.Ratio)
	v.SetDefault("jobs", defaultConfig.Jobs)
}

type configBinding struct {
	key string
	env string
}

var bindings = []configBinding{
	{"database.data_store", "BASKET_DATA_STORE"},
	{"database.cache_store", "BASKET_CACHE_STORE"},
	{"database.table_prefix", "BASKET_TABLE_PREFIX"},
	{"server.host", "BASKET_SERVER_HOST"},
	{"server.port", "BASKET_SERVER_PORT"},
	{"server.api_key", "BASKET_SERVER_API_KEY"},
	{"blob.s3.access_key_id", "BASKET_S3_ACCESS_KEY_ID"},
	{"blob.s3.secret_access_key", "BASKET_S3_SECRET_ACCESS_KEY"},
	{"blob.gcs.credentials_file", "BASKET_GCS_CREDENTIALS_FILE"},
	{"blob.azure.connection_string", "BASKET_AZURE_CONNECTION_STRING"},
}

func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
}

// LoadConfig loads configuration from a TOML file. Defaults apply to missing keys and
// bound environment variables override the file. An empty path loads defaults only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefault(v)
	for _, binding := range bindings {
		if err := v.BindEnv(binding.key, binding.env); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, errors.Trace(err)
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &config, nil
}

var storePrefixes = map[string][]string{
	"data_store": {"mysql://", "postgres://", "postgresql://", "clickhouse://", "chhttp://", "chhttps://",
		"sqlite://", "mongodb://", "mongodb+srv://"},
	"cache_store": {"mysql://", "postgres://", "postgresql://", "sqlite://", "mongodb://", "mongodb+srv://",
		"redis://", "rediss://"},
}

// Validate checks every field of the configuration and returns the translated messages.
func (config *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	for tag, prefixes := range storePrefixes {
		if err := validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return lo.SomeBy(prefixes, func(prefix string) bool {
				return strings.HasPrefix(fl.Field().String(), prefix)
			})
		}); err != nil {
			return errors.Trace(err)
		}
	}

	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return errors.Trace(err)
	}
	for tag := range storePrefixes {
		if err := validate.RegisterTranslation(tag, trans, func(ut ut.Translator) error {
			return ut.Add(tag, "{0} has an unsupported prefix", true)
		}, func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		}); err != nil {
			return errors.Trace(err)
		}
	}

	err := validate.Struct(config)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := lo.Map(validationErrors, func(e validator.FieldError, _ int) string {
			return e.Namespace() + ": " + e.Translate(trans)
		})
		return errors.NotValidf("%s", strings.Join(messages, "; "))
	}
	return errors.Trace(err)
}
