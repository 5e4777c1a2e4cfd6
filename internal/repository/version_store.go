package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	applogger "TradePilot/pkg/logger"
)

// ObjectVersionStore implements VersionStore over an ObjectStore. Each version
// owns a meta object and a weights object; the per-pair active pointer is the
// authoritative record of which version is live, the Active flag on meta
// objects is kept in sync for listings.
//
// Layout under the store:
//
//	models/<type>/<symbol>/v<N>/meta.json
//	models/<type>/<symbol>/v<N>/weights.json
//	models/<type>/<symbol>/active
type ObjectVersionStore struct {
	objects domrepo.ObjectStore
	log     *applogger.Logger
	mu      sync.Mutex
}

// NewObjectVersionStore creates a version store over the given object store.
func NewObjectVersionStore(objects domrepo.ObjectStore, log *applogger.Logger) *ObjectVersionStore {
	return &ObjectVersionStore{objects: objects, log: log.Component("version_store")}
}

var _ domrepo.VersionStore = (*ObjectVersionStore)(nil)

func (s *ObjectVersionStore) Active(ctx context.Context, modelType models.ModelType, symbol string) (*models.ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ver, err := s.activeVersion(ctx, modelType, symbol)
	if err != nil {
		return nil, err
	}
	v, err := s.loadMeta(ctx, modelType, symbol, ver)
	if err != nil {
		if errors.Is(err, domrepo.ErrVersionNotFound) {
			return nil, fmt.Errorf("active pointer references missing version %d: %w", ver, err)
		}
		return nil, err
	}
	return v, nil
}

func (s *ObjectVersionStore) Get(ctx context.Context, modelType models.ModelType, symbol string, version int) (*models.ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadMeta(ctx, modelType, symbol, version)
}

func (s *ObjectVersionStore) List(ctx context.Context, modelType models.ModelType, symbol string) ([]models.ModelVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(ctx, modelType, symbol)
}

func (s *ObjectVersionStore) NextVersion(ctx context.Context, modelType models.ModelType, symbol string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.listLocked(ctx, modelType, symbol)
	if err != nil {
		return 0, err
	}
	next := 1
	for _, v := range versions {
		if v.Version >= next {
			next = v.Version + 1
		}
	}
	return next, nil
}

// Save stores the weights blob then the version metadata. The stored version
// is always inactive; Activate is a separate explicit step.
func (s *ObjectVersionStore) Save(ctx context.Context, v *models.ModelVersion, weights *models.ModelWeights) error {
	if v == nil || weights == nil {
		return fmt.Errorf("save version: nil version or weights")
	}
	if v.Version <= 0 {
		return fmt.Errorf("save version: invalid version %d", v.Version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := json.Marshal(weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	wpath := s.weightsPath(v.ModelType, v.Symbol, v.Version)
	if err := s.objects.Put(ctx, wpath, blob, "application/json", map[string]string{
		"model_type": string(v.ModelType),
		"symbol":     v.Symbol,
	}); err != nil {
		return fmt.Errorf("store weights: %w", err)
	}

	v.Active = false
	v.WeightsKey = wpath
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	if err := s.writeMeta(ctx, v); err != nil {
		return err
	}

	s.log.Info("model version saved",
		applogger.String("model_type", string(v.ModelType)),
		applogger.String("symbol", v.Symbol),
		applogger.Int("version", v.Version),
		applogger.Float64("val_accuracy", v.ValidationAccuracy))
	return nil
}

// Activate promotes one version and demotes the previously active one. Calling
// it with the already active version is a no-op.
func (s *ObjectVersionStore) Activate(ctx context.Context, modelType models.ModelType, symbol string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.loadMeta(ctx, modelType, symbol, version)
	if err != nil {
		return err
	}

	cur, err := s.activeVersion(ctx, modelType, symbol)
	if err != nil && !errors.Is(err, domrepo.ErrNoActiveVersion) {
		return err
	}
	if cur == version && target.Active {
		return nil
	}

	if cur > 0 && cur != version {
		if prev, err := s.loadMeta(ctx, modelType, symbol, cur); err == nil {
			prev.Active = false
			if err := s.writeMeta(ctx, prev); err != nil {
				return fmt.Errorf("demote version %d: %w", cur, err)
			}
		}
	}

	target.Active = true
	if err := s.writeMeta(ctx, target); err != nil {
		return fmt.Errorf("promote version %d: %w", version, err)
	}

	ptr, err := json.Marshal(version)
	if err != nil {
		return fmt.Errorf("marshal active pointer: %w", err)
	}
	if err := s.objects.Put(ctx, s.activePath(modelType, symbol), ptr, "application/json", nil); err != nil {
		return fmt.Errorf("write active pointer: %w", err)
	}

	s.log.Info("model version activated",
		applogger.String("model_type", string(modelType)),
		applogger.String("symbol", symbol),
		applogger.Int("version", version),
		applogger.Int("previous", cur))
	return nil
}

// Prune deletes the oldest versions beyond the keep most recent. The active
// version is never deleted even when it falls outside the keep window.
func (s *ObjectVersionStore) Prune(ctx context.Context, modelType models.ModelType, symbol string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.listLocked(ctx, modelType, symbol)
	if err != nil {
		return 0, err
	}
	if len(versions) <= keep {
		return 0, nil
	}

	active, err := s.activeVersion(ctx, modelType, symbol)
	if err != nil && !errors.Is(err, domrepo.ErrNoActiveVersion) {
		return 0, err
	}

	// listLocked returns ascending versions; everything before the keep
	// window is a candidate.
	deleted := 0
	for _, v := range versions[:len(versions)-keep] {
		if v.Version == active {
			continue
		}
		if err := s.objects.Delete(ctx, s.weightsPath(modelType, symbol, v.Version)); err != nil {
			return deleted, fmt.Errorf("delete weights v%d: %w", v.Version, err)
		}
		if err := s.objects.Delete(ctx, s.metaPath(modelType, symbol, v.Version)); err != nil {
			return deleted, fmt.Errorf("delete meta v%d: %w", v.Version, err)
		}
		deleted++
	}

	if deleted > 0 {
		s.log.Info("pruned model versions",
			applogger.String("model_type", string(modelType)),
			applogger.String("symbol", symbol),
			applogger.Int("deleted", deleted),
			applogger.Int("keep", keep))
	}
	return deleted, nil
}

func (s *ObjectVersionStore) Weights(ctx context.Context, modelType models.ModelType, symbol string, version int) (*models.ModelWeights, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.objects.Get(ctx, s.weightsPath(modelType, symbol, version))
	if err != nil {
		if errors.Is(err, domrepo.ErrObjectNotFound) {
			return nil, domrepo.ErrVersionNotFound
		}
		return nil, fmt.Errorf("load weights v%d: %w", version, err)
	}
	var w models.ModelWeights
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal weights v%d: %w", version, err)
	}
	return &w, nil
}

func (s *ObjectVersionStore) activeVersion(ctx context.Context, modelType models.ModelType, symbol string) (int, error) {
	data, err := s.objects.Get(ctx, s.activePath(modelType, symbol))
	if err != nil {
		if errors.Is(err, domrepo.ErrObjectNotFound) {
			return 0, domrepo.ErrNoActiveVersion
		}
		return 0, fmt.Errorf("read active pointer: %w", err)
	}
	var ver int
	if err := json.Unmarshal(data, &ver); err != nil {
		return 0, fmt.Errorf("parse active pointer: %w", err)
	}
	if ver <= 0 {
		return 0, domrepo.ErrNoActiveVersion
	}
	return ver, nil
}

func (s *ObjectVersionStore) listLocked(ctx context.Context, modelType models.ModelType, symbol string) ([]models.ModelVersion, error) {
	prefix := s.pairPrefix(modelType, symbol)
	paths, err := s.objects.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	out := make([]models.ModelVersion, 0, len(paths))
	for _, p := range paths {
		rest := strings.TrimPrefix(p, prefix)
		if !strings.HasSuffix(rest, "/meta.json") || !strings.HasPrefix(rest, "v") {
			continue
		}
		num := strings.TrimSuffix(strings.TrimPrefix(rest, "v"), "/meta.json")
		ver, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		v, err := s.loadMeta(ctx, modelType, symbol, ver)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *ObjectVersionStore) loadMeta(ctx context.Context, modelType models.ModelType, symbol string, version int) (*models.ModelVersion, error) {
	data, err := s.objects.Get(ctx, s.metaPath(modelType, symbol, version))
	if err != nil {
		if errors.Is(err, domrepo.ErrObjectNotFound) {
			return nil, domrepo.ErrVersionNotFound
		}
		return nil, fmt.Errorf("load version meta v%d: %w", version, err)
	}
	var v models.ModelVersion
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal version meta v%d: %w", version, err)
	}
	return &v, nil
}

func (s *ObjectVersionStore) writeMeta(ctx context.Context, v *models.ModelVersion) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal version meta: %w", err)
	}
	if err := s.objects.Put(ctx, s.metaPath(v.ModelType, v.Symbol, v.Version), data, "application/json", nil); err != nil {
		return fmt.Errorf("store version meta: %w", err)
	}
	return nil
}

func (s *ObjectVersionStore) pairPrefix(modelType models.ModelType, symbol string) string {
	return fmt.Sprintf("models/%s/%s/", modelType, symbol)
}

func (s *ObjectVersionStore) metaPath(modelType models.ModelType, symbol string, version int) string {
	return fmt.Sprintf("%sv%d/meta.json", s.pairPrefix(modelType, symbol), version)
}

func (s *ObjectVersionStore) weightsPath(modelType models.ModelType, symbol string, version int) string {
	return fmt.Sprintf("%sv%d/weights.json", s.pairPrefix(modelType, symbol), version)
}

func (s *ObjectVersionStore) activePath(modelType models.ModelType, symbol string) string {
	return fmt.Sprintf("%sactive", s.pairPrefix(modelType, symbol))
}
