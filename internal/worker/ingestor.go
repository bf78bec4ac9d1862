// Package worker runs the ingestion pipeline: it claims requested viewpoints,
// materializes their source imagery into the local cache, probes metadata and
// drives the viewpoint to READY or FAILED. A viewpoint is ingested exactly
// once; failures are recorded, never retried.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/cache"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/metrics"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/models"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/raster"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/repository"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/storage"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tserrors"
)

// Pool is a fixed set of ingestion goroutines fed by a buffered id queue.
type Pool struct {
	repo      repository.ViewpointRepository
	store     *cache.Store
	resolver  storage.SourceResolver
	collector *metrics.Collector

	queue  chan uuid.UUID
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPool sizes the queue generously relative to the worker count; Enqueue
// only rejects when ingestion has fallen far behind creation.
func NewPool(repo repository.ViewpointRepository, store *cache.Store, resolver storage.SourceResolver, collector *metrics.Collector, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		repo:      repo,
		store:     store,
		resolver:  resolver,
		collector: collector,
		queue:     make(chan uuid.UUID, workers*64),
	}
	p.wg.Add(workers)
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	for i := 0; i < workers; i++ {
		go p.run(ctx)
	}
	return p
}

// Enqueue schedules a viewpoint for ingestion.
func (p *Pool) Enqueue(id uuid.UUID) error {
	select {
	case p.queue <- id:
		return nil
	default:
		return tserrors.New(tserrors.KindInternal, "ingestion queue is full")
	}
}

// Stop cancels in-flight ingestions and waits for the workers to drain.
func (p *Pool) Stop() {
	p.cancel()
	close(p.queue)
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-p.queue:
			if !ok {
				return
			}
			p.Ingest(ctx, id)
		}
	}
}

// Ingest processes one viewpoint end to end. Exported so a caller without a
// running pool (tests, one-shot tooling) can drive the pipeline directly.
func (p *Pool) Ingest(ctx context.Context, id uuid.UUID) {
	log := logrus.WithField("viewpoint_id", id)
	started := time.Now()

	// Claim. Exactly one worker wins this edge; a conflict means the
	// viewpoint was deleted, already claimed, or already finished.
	err := p.repo.Transition(id, []models.ViewpointStatus{models.StatusRequested}, models.StatusDownloading, nil)
	if err != nil {
		log.WithError(err).Debug("skipping ingestion, viewpoint not claimable")
		return
	}

	vp, err := p.repo.Get(id)
	if err != nil {
		// Deleted between claim and read.
		p.store.Evict(id)
		return
	}

	handle, err := p.store.Materialize(id, vp.ObjectKey)
	if err != nil {
		p.fail(id, started, tserrors.Ingestion(err, tserrors.CauseUnknown, "could not reserve cache space"))
		return
	}

	log.WithFields(logrus.Fields{
		"bucket": vp.BucketName,
		"key":    vp.ObjectKey,
	}).Info("downloading source image")
	if err := p.resolver.Fetch(ctx, vp.BucketName, vp.ObjectKey, handle); err != nil {
		handle.Abort()
		if ctx.Err() != nil {
			p.fail(id, started, tserrors.Ingestion(ctx.Err(), tserrors.CauseNetwork, "download canceled"))
			return
		}
		p.fail(id, started, err)
		return
	}

	// Deletion checkpoint: a delete during the download wins and the
	// partial artifact is discarded.
	if p.deleted(id) {
		handle.Abort()
		p.store.Evict(id)
		return
	}

	path, err := handle.Commit()
	if err != nil {
		p.fail(id, started, tserrors.Ingestion(err, tserrors.CauseUnknown, "could not publish cached image"))
		return
	}

	ds, err := raster.Open(path)
	if err != nil {
		p.fail(id, started, err)
		return
	}
	meta := ds.Metadata()
	sidecarErr := p.writeSidecars(vp, meta)
	ds.Close()
	if sidecarErr != nil {
		p.fail(id, started, tserrors.Ingestion(sidecarErr, tserrors.CauseUnknown, "could not persist metadata artifacts"))
		return
	}

	err = p.repo.Transition(id,
		[]models.ViewpointStatus{models.StatusDownloading}, models.StatusReady,
		&repository.TransitionPatch{LocalPath: &path})
	if err != nil {
		// Deleted while probing; nothing to keep.
		p.store.Evict(id)
		return
	}

	log.WithField("local_path", path).Info("viewpoint ready")
	if p.collector != nil {
		p.collector.ObserveIngestion("ready", "", time.Since(started))
	}
}

// fail records a categorized failure on the viewpoint and discards partial
// artifacts. If the viewpoint was deleted in the meantime the failure record
// is dropped with it.
func (p *Pool) fail(id uuid.UUID, started time.Time, cause error) {
	message := cause.Error()
	causeLabel := string(tserrors.CauseUnknown)
	var te *tserrors.Error
	if errors.As(cause, &te) {
		message = te.Message
		if te.Cause != "" {
			causeLabel = string(te.Cause)
		}
	}

	logrus.WithField("viewpoint_id", id).WithError(cause).Warn("ingestion failed")
	p.store.Evict(id)
	err := p.repo.Transition(id,
		[]models.ViewpointStatus{models.StatusDownloading}, models.StatusFailed,
		&repository.TransitionPatch{ErrorMessage: &message})
	if err != nil {
		logrus.WithField("viewpoint_id", id).WithError(err).Debug("failure not recorded, viewpoint gone")
	}
	if p.collector != nil {
		p.collector.ObserveIngestion("failed", causeLabel, time.Since(started))
	}
}

func (p *Pool) deleted(id uuid.UUID) bool {
	_, err := p.repo.Get(id)
	return tserrors.IsNotFound(err)
}
