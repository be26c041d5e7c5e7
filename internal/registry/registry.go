// Package registry persists versioned models in object storage and serves
// validated, cached snapshots of them.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"FinPolicy/internal/domain/models"
	"FinPolicy/internal/domain/repository"
	"FinPolicy/internal/nn"
	"FinPolicy/pkg/cache"
	"FinPolicy/pkg/errs"
	applogger "FinPolicy/pkg/logger"
	"FinPolicy/pkg/storage"

	"golang.org/x/sync/singleflight"
)

const (
	// Latest resolves to the newest stored version.
	Latest = "latest"

	modelFile    = "model.json"
	metadataFile = "metadata.json"
)

// ErrNoModel is returned when a model name has no stored versions.
var ErrNoModel = errors.New("registry: no model versions")

// Model is a validated, immutable snapshot ready for inference.
type Model struct {
	Ref      models.ModelRef
	Weights  *models.ModelWeights
	Network  *nn.Network
	LoadedAt time.Time
}

// Registry is safe for concurrent use.
type Registry struct {
	cfg     *Config
	store   storage.Store
	models  *cache.Memory[*Model]
	active  *cache.Memory[models.ActiveModel]
	loads   singleflight.Group
	index   repository.ModelIndex
	metrics repository.Metrics
	l       *applogger.Logger
}

// New creates a registry over store.
func New(store storage.Store, l *applogger.Logger, opts ...Option) *Registry {
	cfg := &Config{
		BasePath:            "models",
		CacheSize:           16,
		CacheTTL:            time.Hour,
		BlobTTL:             24 * time.Hour,
		ConstraintThreshold: 0.5,
		MaxAge:              30 * 24 * time.Hour,
		Metrics:             repository.NopMetrics{},
		Now:                 time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if l == nil {
		l = applogger.Nop()
	}

	r := &Registry{
		cfg:     cfg,
		store:   store,
		models:  cache.NewMemory[*Model](cache.WithMemoryMaxSize(cfg.CacheSize), cache.WithMemoryTTL(cfg.CacheTTL), cache.WithMemoryClock(cfg.Now)),
		active:  cache.NewMemory[models.ActiveModel](cache.WithMemoryMaxSize(cfg.CacheSize), cache.WithMemoryTTL(cfg.CacheTTL), cache.WithMemoryClock(cfg.Now)),
		metrics: cfg.Metrics,
		l:       l.Component("registry"),
	}
	r.index = cfg.Index
	if r.index == nil {
		r.index = NewStoreIndex(store, cfg.BasePath)
	}
	return r
}

// Close stops the cache sweepers.
func (r *Registry) Close() error {
	_ = r.models.Close()
	return r.active.Close()
}

// CacheStats reports the model cache counters.
func (r *Registry) CacheStats() cache.Stats {
	return r.models.Stats()
}

func (r *Registry) key(name, version, file string) string {
	return storage.Join(r.cfg.BasePath, name, version, file)
}

func cacheKey(name, version string) string {
	return cache.GenerateKey(name, version)
}

// LoadModel returns a validated model. An empty version or "latest" resolves
// to the newest stored version.
func (r *Registry) LoadModel(ctx context.Context, name, version string) (*Model, error) {
	const op = "load model"
	if name == "" {
		return nil, errs.New(errs.KindValidation, op, "model name is empty")
	}
	if version == "" || version == Latest {
		v, err := r.GetLatestVersion(ctx, name)
		if err != nil {
			return nil, err
		}
		version = v
	}

	key := cacheKey(name, version)
	if m, ok := r.models.Get(key); ok {
		r.metrics.RecordCache(true)
		return m, nil
	}
	r.metrics.RecordCache(false)

	v, err, _ := r.loads.Do(key, func() (interface{}, error) {
		if m, ok := r.models.Get(key); ok {
			return m, nil
		}
		return r.loadFromStorage(ctx, name, version)
	})
	if err != nil {
		r.metrics.RecordError(kindLabel(err))
		return nil, err
	}
	return v.(*Model), nil
}

func (r *Registry) loadFromStorage(ctx context.Context, name, version string) (*Model, error) {
	const op = "load model"
	start := time.Now()

	data, err := r.fetch(ctx, name, version)
	if err != nil {
		return nil, err
	}
	w, err := decodeWeights(data)
	if err != nil {
		return nil, errs.Wrap(errs.KindIntegrity, op, fmt.Errorf("%s/%s: %w", name, version, err))
	}

	report := validateStored(w)
	for _, warn := range report.Warnings {
		r.l.Warn("model validation warning",
			applogger.String("model", name),
			applogger.String("version", version),
			applogger.String("warning", warn),
		)
	}
	if !report.Valid {
		return nil, errs.Newf(errs.KindIntegrity, op, "%s/%s rejected: %s", name, version, strings.Join(report.Errors, "; "))
	}

	net, err := nn.FromWeights(w, r.cfg.ConstraintThreshold)
	if err != nil {
		return nil, err
	}
	if w.Metadata.ModelSizeBytes == 0 {
		w.Metadata.ModelSizeBytes = int64(len(data))
	}

	m := &Model{
		Ref:      models.ModelRef{Name: name, Version: version},
		Weights:  w,
		Network:  net,
		LoadedAt: r.cfg.Now(),
	}
	r.models.Set(cacheKey(name, version), m)
	r.metrics.RecordLatency("model_load", time.Since(start).Seconds())
	r.l.Info("model loaded",
		applogger.String("model", name),
		applogger.String("version", version),
		applogger.String("kind", string(w.Kind)),
		applogger.Int("bytes", len(data)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return m, nil
}

// fetch reads model.json through the optional shared blob cache.
func (r *Registry) fetch(ctx context.Context, name, version string) ([]byte, error) {
	const op = "fetch model"
	blobKey := cache.GenerateKeyWithParams("model", name, version)
	if r.cfg.Blob != nil {
		data, err := r.cfg.Blob.GetBytes(ctx, blobKey)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.l.Warn("blob cache read failed", applogger.String("key", blobKey), applogger.Error(err))
		}
	}

	data, err := r.store.Get(ctx, r.key(name, version, modelFile))
	if err != nil {
		return nil, errs.Wrap(errs.KindResource, op, err)
	}

	if r.cfg.Blob != nil {
		if err := r.cfg.Blob.SetBytes(ctx, blobKey, data, r.cfg.BlobTTL); err != nil {
			r.l.Warn("blob cache write failed", applogger.String("key", blobKey), applogger.Error(err))
		}
	}
	return data, nil
}

func decodeWeights(data []byte) (*models.ModelWeights, error) {
	var w models.ModelWeights
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode model json: %w", err)
	}
	return &w, nil
}

// ListVersions returns stored versions in lexicographic descending order.
func (r *Registry) ListVersions(ctx context.Context, name string) ([]string, error) {
	const op = "list versions"
	if name == "" {
		return nil, errs.New(errs.KindValidation, op, "model name is empty")
	}
	names, err := r.store.List(ctx, storage.Join(r.cfg.BasePath, name))
	if err != nil {
		return nil, errs.Wrap(errs.KindResource, op, err)
	}
	versions := names[:0]
	for _, n := range names {
		if !strings.HasPrefix(n, ".") {
			versions = append(versions, n)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))
	return versions, nil
}

// GetLatestVersion returns the first entry of ListVersions.
func (r *Registry) GetLatestVersion(ctx context.Context, name string) (string, error) {
	versions, err := r.ListVersions(ctx, name)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", errs.Wrap(errs.KindResource, "latest version", fmt.Errorf("%s: %w", name, ErrNoModel))
	}
	return versions[0], nil
}

// NextVersion returns a version string that sorts after every earlier one.
func NextVersion(now time.Time) string {
	return "v" + now.UTC().Format("20060102-150405.000")
}

// SaveModel persists a new version. An empty metadata version is assigned
// from the clock. Existing versions are never overwritten.
func (r *Registry) SaveModel(ctx context.Context, name string, w *models.ModelWeights) (models.ModelRef, error) {
	const op = "save model"
	if name == "" {
		return models.ModelRef{}, errs.New(errs.KindValidation, op, "model name is empty")
	}
	if w == nil {
		return models.ModelRef{}, errs.New(errs.KindValidation, op, "nil weights")
	}

	out := w.Clone()
	if out.SchemaVersion == 0 {
		out.SchemaVersion = models.SchemaVersion
	}
	if out.Metadata.Version == "" {
		out.Metadata.Version = NextVersion(r.cfg.Now())
	}
	if out.Metadata.TrainingDate.IsZero() {
		out.Metadata.TrainingDate = r.cfg.Now().UTC()
	}
	out.Metadata.Name = name
	out.Metadata.Kind = out.Kind
	out.Metadata.Checksum = nn.Checksum(out)
	ref := models.ModelRef{Name: name, Version: out.Metadata.Version}

	if report := r.ValidateModel(out); !report.Valid {
		return ref, errs.Newf(errs.KindValidation, op, "refusing to save invalid model: %s", strings.Join(report.Errors, "; "))
	}

	modelKey := r.key(name, ref.Version, modelFile)
	exists, err := r.store.Exists(ctx, modelKey)
	if err != nil {
		return ref, errs.Wrap(errs.KindResource, op, err)
	}
	if exists {
		return ref, errs.Wrap(errs.KindValidation, op, fmt.Errorf("%s/%s: %w", name, ref.Version, storage.ErrExists))
	}

	// size is measured once without itself, then embedded
	out.Metadata.ModelSizeBytes = 0
	payload, err := json.Marshal(out)
	if err != nil {
		return ref, errs.Wrap(errs.KindValidation, op, err)
	}
	out.Metadata.ModelSizeBytes = int64(len(payload))
	if payload, err = json.Marshal(out); err != nil {
		return ref, errs.Wrap(errs.KindValidation, op, err)
	}
	meta, err := json.MarshalIndent(out.Metadata, "", "  ")
	if err != nil {
		return ref, errs.Wrap(errs.KindValidation, op, err)
	}

	if err := r.store.Put(ctx, modelKey, payload); err != nil {
		return ref, errs.Wrap(errs.KindResource, op, err)
	}
	if err := r.store.Put(ctx, r.key(name, ref.Version, metadataFile), meta); err != nil {
		return ref, errs.Wrap(errs.KindResource, op, err)
	}

	r.l.Info("model saved",
		applogger.String("model", name),
		applogger.String("version", ref.Version),
		applogger.Int64("bytes", out.Metadata.ModelSizeBytes),
		applogger.String("checksum", fmt.Sprintf("%016x", out.Metadata.Checksum)),
	)
	return ref, nil
}

// ReadMetadata returns metadata.json for a version.
func (r *Registry) ReadMetadata(ctx context.Context, name, version string) (*models.ModelMetadata, error) {
	const op = "read metadata"
	data, err := r.store.Get(ctx, r.key(name, version, metadataFile))
	if err != nil {
		return nil, errs.Wrap(errs.KindResource, op, err)
	}
	var meta models.ModelMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errs.Wrap(errs.KindIntegrity, op, err)
	}
	return &meta, nil
}

func kindLabel(err error) string {
	if k, ok := errs.KindOf(err); ok {
		return string(k)
	}
	return "unknown"
}
