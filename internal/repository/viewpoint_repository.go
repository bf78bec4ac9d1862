package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/models"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tserrors"
)

// ViewpointRepository is the authoritative store for viewpoint records. It is
// the single source of truth for lifecycle state: every status change goes
// through Transition, which applies compare-and-swap semantics so two racing
// callers can never both claim the same edge.
type ViewpointRepository interface {
	Create(vp *models.Viewpoint) error
	Get(id uuid.UUID) (*models.Viewpoint, error)
	List(status models.ViewpointStatus) ([]models.Viewpoint, error)
	Transition(id uuid.UUID, from []models.ViewpointStatus, to models.ViewpointStatus, patch *TransitionPatch) error
}

// TransitionPatch carries the fields a state transition may set alongside the
// status change.
type TransitionPatch struct {
	LocalPath    *string
	ErrorMessage *string
}

// ViewpointRepositoryImpl provides methods to interact with viewpoint records
// in the database.
type ViewpointRepositoryImpl struct {
	db *gorm.DB
}

// NewViewpointRepository creates a new ViewpointRepositoryImpl instance with
// the provided GORM database connection.
func NewViewpointRepository(db *gorm.DB) *ViewpointRepositoryImpl {
	return &ViewpointRepositoryImpl{db: db}
}

// Create inserts a new viewpoint record.
func (r *ViewpointRepositoryImpl) Create(vp *models.Viewpoint) error {
	return r.db.Create(vp).Error
}

// Get retrieves a viewpoint by id. Deleted viewpoints are reported as
// NotFound: DELETED is terminal and the record only lingers for auditing.
func (r *ViewpointRepositoryImpl) Get(id uuid.UUID) (*models.Viewpoint, error) {
	var vp models.Viewpoint
	err := r.db.First(&vp, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, tserrors.New(tserrors.KindNotFound, "viewpoint %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if vp.Status == models.StatusDeleted {
		return nil, tserrors.New(tserrors.KindNotFound, "viewpoint %s not found", id)
	}
	return &vp, nil
}

// List retrieves all viewpoints, optionally filtered by status. Deleted
// viewpoints are excluded unless explicitly requested.
func (r *ViewpointRepositoryImpl) List(status models.ViewpointStatus) ([]models.Viewpoint, error) {
	var vps []models.Viewpoint
	q := r.db.Order("created_at")
	if status != "" {
		q = q.Where("status = ?", status)
	} else {
		q = q.Where("status <> ?", models.StatusDeleted)
	}
	err := q.Find(&vps).Error
	return vps, err
}

// Transition atomically applies a state machine edge: the status is changed
// to `to` only if the current status is one of `from`. A stale expected state
// yields ConflictError, which is how exactly-one worker claims a download.
func (r *ViewpointRepositoryImpl) Transition(id uuid.UUID, from []models.ViewpointStatus, to models.ViewpointStatus, patch *TransitionPatch) error {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	if patch != nil {
		if patch.LocalPath != nil {
			updates["local_path"] = *patch.LocalPath
		}
		if patch.ErrorMessage != nil {
			updates["error_message"] = *patch.ErrorMessage
		}
	}
	res := r.db.Model(&models.Viewpoint{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var vp models.Viewpoint
		err := r.db.First(&vp, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tserrors.New(tserrors.KindNotFound, "viewpoint %s not found", id)
		}
		if err != nil {
			return err
		}
		return tserrors.New(tserrors.KindConflict,
			"viewpoint %s is %s, cannot transition to %s", id, vp.Status, to)
	}
	return nil
}
