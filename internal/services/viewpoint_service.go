// Package services orchestrates the viewpoint lifecycle: it validates
// requests, drives the registry, schedules ingestion and fronts the tile
// engine for the HTTP handlers.
package services

import (
	"context"
	"encoding/json"
	"image"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/cache"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/metrics"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/models"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/repository"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/stats"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tiles"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tserrors"
)

// IngestionQueue schedules viewpoints for the worker pool.
type IngestionQueue interface {
	Enqueue(id uuid.UUID) error
}

// ViewpointService is the application-facing API the handlers consume.
type ViewpointService interface {
	Create(req *models.CreateViewpointRequest) (*models.Viewpoint, error)
	List(status string) ([]models.ViewpointSummary, error)
	Get(id string) (*models.Viewpoint, error)
	Delete(id string) error

	Metadata(id string) (json.RawMessage, error)
	Bounds(id string) (json.RawMessage, error)
	Info(id string) (json.RawMessage, error)
	Statistics(ctx context.Context, id string) (*models.ImageStatistics, error)

	Tile(id string, z, x, y int, format, adjustment string) ([]byte, string, error)
	MapTile(id string, z, x, y int, invertY bool, format, adjustment string) ([]byte, string, error)
	Crop(id string, window [4]int, width, height int, format, adjustment string) ([]byte, string, error)
	Preview(id string, maxSize int, format, adjustment string) ([]byte, string, error)

	TileSets(id string) (*tiles.TileSetList, error)
	TileSetMetadata(id string) (*tiles.TileSetMetadata, error)
}

// ViewpointServiceImpl wires the registry, cache, queue and engine together.
type ViewpointServiceImpl struct {
	repo      repository.ViewpointRepository
	store     *cache.Store
	queue     IngestionQueue
	engine    *tiles.Engine
	computer  *stats.Computer
	collector *metrics.Collector
	validate  *validator.Validate
}

func NewViewpointService(repo repository.ViewpointRepository, store *cache.Store, queue IngestionQueue, engine *tiles.Engine, computer *stats.Computer, collector *metrics.Collector) *ViewpointServiceImpl {
	return &ViewpointServiceImpl{
		repo:      repo,
		store:     store,
		queue:     queue,
		engine:    engine,
		computer:  computer,
		collector: collector,
		validate:  validator.New(),
	}
}

// Create registers a new viewpoint and schedules its ingestion. Each create
// is independent: registering the same bucket/key twice yields two
// viewpoints with their own lifecycles.
func (s *ViewpointServiceImpl) Create(req *models.CreateViewpointRequest) (*models.Viewpoint, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, tserrors.Wrap(err, tserrors.KindValidation, "invalid viewpoint request")
	}

	vp := &models.Viewpoint{
		ID:              uuid.New(),
		Name:            req.ViewpointName,
		BucketName:      req.BucketName,
		ObjectKey:       req.ObjectKey,
		TileSize:        req.TileSize,
		RangeAdjustment: models.RangeAdjustment(req.RangeAdjustment),
		Status:          models.StatusRequested,
	}
	if err := s.repo.Create(vp); err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(vp.ID); err != nil {
		message := err.Error()
		s.repo.Transition(vp.ID,
			[]models.ViewpointStatus{models.StatusRequested}, models.StatusFailed,
			&repository.TransitionPatch{ErrorMessage: &message})
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"viewpoint_id": vp.ID,
		"bucket":       vp.BucketName,
		"key":          vp.ObjectKey,
	}).Info("viewpoint created")
	return vp, nil
}

func (s *ViewpointServiceImpl) List(status string) ([]models.ViewpointSummary, error) {
	filter := models.ViewpointStatus(status)
	switch filter {
	case "", models.StatusRequested, models.StatusDownloading, models.StatusReady,
		models.StatusFailed, models.StatusDeleted:
	default:
		return nil, tserrors.New(tserrors.KindValidation, "unknown status filter %q", status)
	}
	vps, err := s.repo.List(filter)
	if err != nil {
		return nil, err
	}
	out := make([]models.ViewpointSummary, 0, len(vps))
	for i := range vps {
		out = append(out, vps[i].Summary())
	}
	return out, nil
}

func (s *ViewpointServiceImpl) Get(id string) (*models.Viewpoint, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(uid)
}

// Delete transitions any live viewpoint to DELETED and reclaims its local
// artifacts. Deleting an unknown or already-deleted viewpoint succeeds, so
// clients can retry safely.
func (s *ViewpointServiceImpl) Delete(id string) error {
	uid, err := parseID(id)
	if err != nil {
		return err
	}
	err = s.repo.Transition(uid,
		[]models.ViewpointStatus{
			models.StatusRequested, models.StatusDownloading,
			models.StatusReady, models.StatusFailed,
		},
		models.StatusDeleted, nil)
	if err != nil && !tserrors.IsNotFound(err) && !tserrors.IsConflict(err) {
		return err
	}
	s.engine.Release(uid)
	if err := s.store.Evict(uid); err != nil {
		logrus.WithField("viewpoint_id", uid).WithError(err).Warn("could not evict cache artifacts")
	}
	logrus.WithField("viewpoint_id", uid).Info("viewpoint deleted")
	return nil
}

// Metadata serves the sidecar written at ingestion, verbatim.
func (s *ViewpointServiceImpl) Metadata(id string) (json.RawMessage, error) {
	return s.sidecar(id, cache.SidecarMetadata)
}

func (s *ViewpointServiceImpl) Bounds(id string) (json.RawMessage, error) {
	return s.sidecar(id, cache.SidecarBounds)
}

func (s *ViewpointServiceImpl) Info(id string) (json.RawMessage, error) {
	return s.sidecar(id, cache.SidecarInfo)
}

// Statistics computes per-band summaries on first request and persists them
// as a sidecar; later requests read the cached artifact.
func (s *ViewpointServiceImpl) Statistics(ctx context.Context, id string) (*models.ImageStatistics, error) {
	vp, err := s.ready(id)
	if err != nil {
		return nil, err
	}
	if raw, err := s.store.ReadSidecar(vp.ID, cache.SidecarStatistics); err == nil {
		var cached models.ImageStatistics
		if json.Unmarshal(raw, &cached) == nil {
			return &cached, nil
		}
	}

	ds, err := s.engine.Dataset(vp)
	if err != nil {
		return nil, err
	}
	computed, err := s.computer.Compute(ctx, ds)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(computed); err == nil {
		if err := s.store.WriteSidecar(vp.ID, cache.SidecarStatistics, raw); err != nil {
			logrus.WithField("viewpoint_id", vp.ID).WithError(err).Warn("could not persist statistics sidecar")
		}
	}
	return computed, nil
}

// Tile renders an unwarped pyramid tile.
func (s *ViewpointServiceImpl) Tile(id string, z, x, y int, format, adjustment string) ([]byte, string, error) {
	vp, f, ra, err := s.renderArgs(id, format, adjustment)
	if err != nil {
		return nil, "", err
	}
	started := time.Now()
	data, err := s.engine.RenderTile(vp, z, x, y, f, ra)
	s.observeTile("image", f, err, started)
	return data, f.MediaType(), err
}

// MapTile renders a WebMercatorQuad orthophoto tile. invertY accepts TMS
// south-origin row addressing.
func (s *ViewpointServiceImpl) MapTile(id string, z, x, y int, invertY bool, format, adjustment string) ([]byte, string, error) {
	vp, f, ra, err := s.renderArgs(id, format, adjustment)
	if err != nil {
		return nil, "", err
	}
	row := y
	if invertY && z >= 0 {
		row = tiles.InvertRow(y, z)
	}
	started := time.Now()
	data, err := s.engine.RenderMapTile(vp, tiles.TileID{Matrix: z, Row: row, Col: x}, f, ra)
	s.observeTile("map", f, err, started)
	return data, f.MediaType(), err
}

// Crop extracts a pixel window [minx, miny, maxx, maxy], optionally scaled.
func (s *ViewpointServiceImpl) Crop(id string, window [4]int, width, height int, format, adjustment string) ([]byte, string, error) {
	vp, f, ra, err := s.renderArgs(id, format, adjustment)
	if err != nil {
		return nil, "", err
	}
	data, err := s.engine.Crop(vp, image.Rect(window[0], window[1], window[2], window[3]), width, height, f, ra)
	return data, f.MediaType(), err
}

// Preview renders a thumbnail of the whole image.
func (s *ViewpointServiceImpl) Preview(id string, maxSize int, format, adjustment string) ([]byte, string, error) {
	vp, f, ra, err := s.renderArgs(id, format, adjustment)
	if err != nil {
		return nil, "", err
	}
	data, err := s.engine.Preview(vp, maxSize, f, ra)
	return data, f.MediaType(), err
}

// TileSets lists the tile matrix sets available for a viewpoint.
func (s *ViewpointServiceImpl) TileSets(id string) (*tiles.TileSetList, error) {
	vp, err := s.ready(id)
	if err != nil {
		return nil, err
	}
	href := "/api/v1/viewpoints/" + vp.ID.String() + "/map/tiles/" + tiles.WebMercatorQuadID
	return tiles.NewTileSetList(vp.Name, href), nil
}

// TileSetMetadata describes the WebMercatorQuad tileset for a viewpoint,
// including per-level matrix limits trimmed to the image footprint.
func (s *ViewpointServiceImpl) TileSetMetadata(id string) (*tiles.TileSetMetadata, error) {
	vp, err := s.ready(id)
	if err != nil {
		return nil, err
	}
	ds, err := s.engine.Dataset(vp)
	if err != nil {
		return nil, err
	}
	return tiles.NewTileSetMetadata(vp.Name, ds.Metadata(), vp.TileSize)
}

func (s *ViewpointServiceImpl) renderArgs(id, format, adjustment string) (*models.Viewpoint, tiles.Format, models.RangeAdjustment, error) {
	vp, err := s.ready(id)
	if err != nil {
		return nil, "", "", err
	}
	f, err := tiles.ParseFormat(format)
	if err != nil {
		return nil, "", "", err
	}
	ra, err := resolveAdjustment(vp, adjustment)
	if err != nil {
		return nil, "", "", err
	}
	return vp, f, ra, nil
}

// ready resolves a viewpoint and gates on READY: tiles, metadata and
// statistics are undefined for any other state.
func (s *ViewpointServiceImpl) ready(id string) (*models.Viewpoint, error) {
	vp, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	switch vp.Status {
	case models.StatusReady:
		return vp, nil
	case models.StatusFailed:
		return nil, tserrors.New(tserrors.KindNotReady,
			"viewpoint %s failed ingestion: %s", vp.ID, vp.ErrorMessage)
	default:
		return nil, tserrors.New(tserrors.KindNotReady,
			"viewpoint %s is %s", vp.ID, vp.Status)
	}
}

func (s *ViewpointServiceImpl) sidecar(id, name string) (json.RawMessage, error) {
	vp, err := s.ready(id)
	if err != nil {
		return nil, err
	}
	raw, err := s.store.ReadSidecar(vp.ID, name)
	if os.IsNotExist(err) {
		return nil, tserrors.New(tserrors.KindNotFound, "no %s recorded for viewpoint %s", name, vp.ID)
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func (s *ViewpointServiceImpl) observeTile(kind string, f tiles.Format, err error, started time.Time) {
	if s.collector == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(tserrors.KindOf(err))
	}
	s.collector.ObserveTile(kind, string(f), outcome, time.Since(started))
}

func resolveAdjustment(vp *models.Viewpoint, override string) (models.RangeAdjustment, error) {
	if override == "" {
		if vp.RangeAdjustment == "" {
			return models.RangeNone, nil
		}
		return vp.RangeAdjustment, nil
	}
	if !models.ValidRangeAdjustment(override) {
		return "", tserrors.New(tserrors.KindValidation, "unknown range adjustment %q", override)
	}
	return models.RangeAdjustment(override), nil
}

func parseID(id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, tserrors.New(tserrors.KindValidation, "invalid viewpoint id %q", id)
	}
	return uid, nil
}
