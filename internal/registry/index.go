package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"FinPolicy/internal/domain/models"
	"FinPolicy/pkg/errs"
	applogger "FinPolicy/pkg/logger"
	"FinPolicy/pkg/storage"
)

// StoreIndex keeps the promotion pointer as one object per model name, so a
// promotion is a single atomic object write.
type StoreIndex struct {
	store    storage.Store
	basePath string
}

type pointer struct {
	Active   models.ActiveModel  `json:"active"`
	Previous *models.ActiveModel `json:"previous,omitempty"`
}

// NewStoreIndex creates an index next to the model versions.
func NewStoreIndex(store storage.Store, basePath string) *StoreIndex {
	return &StoreIndex{store: store, basePath: basePath}
}

func (s *StoreIndex) key(name string) string {
	return storage.Join(s.basePath, ".index", name+".json")
}

func (s *StoreIndex) read(ctx context.Context, name string) (*pointer, error) {
	data, err := s.store.Get(ctx, s.key(name))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p pointer
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode active pointer: %w", err)
	}
	return &p, nil
}

func (s *StoreIndex) Active(ctx context.Context, name string) (*models.ActiveModel, error) {
	p, err := s.read(ctx, name)
	if err != nil || p == nil {
		return nil, err
	}
	return &p.Active, nil
}

func (s *StoreIndex) Promote(ctx context.Context, active models.ActiveModel) error {
	prev, err := s.read(ctx, active.Name)
	if err != nil {
		return err
	}
	p := pointer{Active: active}
	if prev != nil {
		p.Previous = &prev.Active
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, s.key(active.Name), data)
}

// Promote marks version as the serving model for name. The version must load
// and validate first.
func (r *Registry) Promote(ctx context.Context, name, version string, validationReward float64) error {
	const op = "promote model"
	if _, err := r.LoadModel(ctx, name, version); err != nil {
		return err
	}
	am := models.ActiveModel{
		Name:             name,
		Version:          version,
		ValidationReward: validationReward,
		PromotedAt:       r.cfg.Now().UTC(),
	}
	if err := r.index.Promote(ctx, am); err != nil {
		return errs.Wrap(errs.KindResource, op, err)
	}
	r.active.Set(name, am)
	r.metrics.RecordActiveModel(name, version)
	r.l.Info("model promoted",
		applogger.String("model", name),
		applogger.String("version", version),
		applogger.Float("validation_reward", validationReward),
	)
	return nil
}

// Active returns the promotion record, or nil when nothing was promoted.
// Records are cached for the cache TTL.
func (r *Registry) Active(ctx context.Context, name string) (*models.ActiveModel, error) {
	const op = "active model"
	if am, ok := r.active.Get(name); ok {
		return &am, nil
	}
	am, err := r.index.Active(ctx, name)
	if err != nil {
		return nil, errs.Wrap(errs.KindResource, op, err)
	}
	if am != nil {
		r.active.Set(name, *am)
	}
	return am, nil
}

// ActiveModel loads the promoted version, or the latest stored version when
// nothing has been promoted.
func (r *Registry) ActiveModel(ctx context.Context, name string) (*Model, error) {
	am, err := r.Active(ctx, name)
	if err != nil {
		return nil, err
	}
	version := Latest
	if am != nil {
		version = am.Version
	}
	return r.LoadModel(ctx, name, version)
}

// Preload warms the cache with the active model of each name. Failures are
// logged and do not stop the remaining names.
func (r *Registry) Preload(ctx context.Context, names ...string) int {
	loaded := 0
	for _, name := range names {
		start := time.Now()
		m, err := r.ActiveModel(ctx, name)
		if err != nil {
			r.l.Warn("preload failed", applogger.String("model", name), applogger.Error(err))
			continue
		}
		loaded++
		r.l.Info("model preloaded",
			applogger.String("model", name),
			applogger.String("version", m.Ref.Version),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return loaded
}
