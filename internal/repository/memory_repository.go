package repository

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/models"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tserrors"
)

// MemoryViewpointRepository is a mutex-guarded in-memory registry. It backs
// single-node deployments without a database and the test suite; transition
// semantics are identical to the GORM implementation.
type MemoryViewpointRepository struct {
	mu  sync.RWMutex
	vps map[uuid.UUID]*models.Viewpoint
}

func NewMemoryViewpointRepository() *MemoryViewpointRepository {
	return &MemoryViewpointRepository{
		vps: make(map[uuid.UUID]*models.Viewpoint),
	}
}

func (r *MemoryViewpointRepository) Create(vp *models.Viewpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *vp
	r.vps[vp.ID] = &cp
	return nil
}

func (r *MemoryViewpointRepository) Get(id uuid.UUID) (*models.Viewpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vp, ok := r.vps[id]
	if !ok || vp.Status == models.StatusDeleted {
		return nil, tserrors.New(tserrors.KindNotFound, "viewpoint %s not found", id)
	}
	cp := *vp
	return &cp, nil
}

func (r *MemoryViewpointRepository) List(status models.ViewpointStatus) ([]models.Viewpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Viewpoint
	for _, vp := range r.vps {
		if status != "" {
			if vp.Status != status {
				continue
			}
		} else if vp.Status == models.StatusDeleted {
			continue
		}
		out = append(out, *vp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryViewpointRepository) Transition(id uuid.UUID, from []models.ViewpointStatus, to models.ViewpointStatus, patch *TransitionPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	vp, ok := r.vps[id]
	if !ok {
		return tserrors.New(tserrors.KindNotFound, "viewpoint %s not found", id)
	}
	allowed := false
	for _, s := range from {
		if vp.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return tserrors.New(tserrors.KindConflict,
			"viewpoint %s is %s, cannot transition to %s", id, vp.Status, to)
	}
	vp.Status = to
	vp.UpdatedAt = time.Now()
	if patch != nil {
		if patch.LocalPath != nil {
			vp.LocalPath = *patch.LocalPath
		}
		if patch.ErrorMessage != nil {
			vp.ErrorMessage = *patch.ErrorMessage
		}
	}
	return nil
}
