package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/cache"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/models"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/repository"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tserrors"
)

// fakeResolver serves canned object bytes, or a canned error, and can invoke
// a hook mid-download to simulate concurrent lifecycle changes.
type fakeResolver struct {
	objects map[string][]byte
	err     error
	during  func()
}

func (f *fakeResolver) Fetch(ctx context.Context, bucket, key string, dst io.Writer) error {
	if f.during != nil {
		f.during()
	}
	if f.err != nil {
		return f.err
	}
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return tserrors.Ingestion(os.ErrNotExist, tserrors.CauseNetwork,
			"object "+key+" does not exist in bucket "+bucket)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	_, err := dst.Write(data)
	return err
}

func grayTIFF(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = byte(i % 251)
	}
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, img, nil))
	return buf.Bytes()
}

type harness struct {
	repo  *repository.MemoryViewpointRepository
	store *cache.Store
	pool  *Pool
}

func newHarness(t *testing.T, resolver *fakeResolver) *harness {
	t.Helper()
	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	repo := repository.NewMemoryViewpointRepository()
	pool := NewPool(repo, store, resolver, nil, 1)
	t.Cleanup(pool.Stop)
	return &harness{repo: repo, store: store, pool: pool}
}

func (h *harness) requested(t *testing.T, bucket, key string) *models.Viewpoint {
	t.Helper()
	vp := &models.Viewpoint{
		ID:         uuid.New(),
		Name:       "test-viewpoint",
		BucketName: bucket,
		ObjectKey:  key,
		TileSize:   256,
		Status:     models.StatusRequested,
	}
	require.NoError(t, h.repo.Create(vp))
	return vp
}

func TestIngestHappyPath(t *testing.T) {
	resolver := &fakeResolver{objects: map[string][]byte{
		"imagery/scene.tif": grayTIFF(t, 32),
	}}
	h := newHarness(t, resolver)
	vp := h.requested(t, "imagery", "scene.tif")

	h.pool.Ingest(context.Background(), vp.ID)

	got, err := h.repo.Get(vp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, got.Status)
	assert.NotEmpty(t, got.LocalPath)
	assert.FileExists(t, got.LocalPath)

	// Sidecars are readable and reflect the probed image.
	raw, err := h.store.ReadSidecar(vp.ID, cache.SidecarMetadata)
	require.NoError(t, err)
	var meta models.ImageMetadata
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, [2]int{32, 32}, meta.Size)
	assert.Equal(t, "GTiff", meta.DriverName)

	raw, err = h.store.ReadSidecar(vp.ID, cache.SidecarBounds)
	require.NoError(t, err)
	var bounds struct {
		Bounds [4]int `json:"bounds"`
	}
	require.NoError(t, json.Unmarshal(raw, &bounds))
	assert.Equal(t, [4]int{0, 0, 32, 32}, bounds.Bounds)

	raw, err = h.store.ReadSidecar(vp.ID, cache.SidecarInfo)
	require.NoError(t, err)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &info))
	assert.Equal(t, "Feature", info["type"])
	// An ungeoreferenced TIFF gets a null footprint geometry.
	assert.Nil(t, info["geometry"])
}

func TestIngestMissingObjectFails(t *testing.T) {
	h := newHarness(t, &fakeResolver{objects: map[string][]byte{}})
	vp := h.requested(t, "imagery", "missing.tif")

	h.pool.Ingest(context.Background(), vp.ID)

	got, err := h.repo.Get(vp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "does not exist")
	assert.Empty(t, got.LocalPath)
	assert.NoDirExists(t, h.store.Dir(vp.ID))
}

func TestIngestUnreadableImageFails(t *testing.T) {
	resolver := &fakeResolver{objects: map[string][]byte{
		"imagery/garbage.tif": []byte("this is not imagery"),
	}}
	h := newHarness(t, resolver)
	vp := h.requested(t, "imagery", "garbage.tif")

	h.pool.Ingest(context.Background(), vp.ID)

	got, err := h.repo.Get(vp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)
	assert.NoDirExists(t, h.store.Dir(vp.ID))
}

func TestIngestFailureIsNotRetried(t *testing.T) {
	h := newHarness(t, &fakeResolver{objects: map[string][]byte{}})
	vp := h.requested(t, "imagery", "missing.tif")

	h.pool.Ingest(context.Background(), vp.ID)
	h.pool.Ingest(context.Background(), vp.ID)

	got, err := h.repo.Get(vp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
}

func TestIngestSkipsNonRequestedViewpoints(t *testing.T) {
	resolver := &fakeResolver{objects: map[string][]byte{
		"imagery/scene.tif": grayTIFF(t, 16),
	}}
	h := newHarness(t, resolver)
	vp := h.requested(t, "imagery", "scene.tif")
	require.NoError(t, h.repo.Transition(vp.ID,
		[]models.ViewpointStatus{models.StatusRequested}, models.StatusDeleted, nil))

	h.pool.Ingest(context.Background(), vp.ID)
	assert.NoDirExists(t, h.store.Dir(vp.ID))
}

func TestIngestDeletionDuringDownloadWins(t *testing.T) {
	resolver := &fakeResolver{}
	h := newHarness(t, resolver)

	vp := h.requested(t, "imagery", "scene.tif")
	resolver.objects = map[string][]byte{"imagery/scene.tif": grayTIFF(t, 16)}
	resolver.during = func() {
		// Delete while the download is in flight.
		require.NoError(t, h.repo.Transition(vp.ID,
			[]models.ViewpointStatus{models.StatusDownloading}, models.StatusDeleted, nil))
	}

	h.pool.Ingest(context.Background(), vp.ID)

	_, err := h.repo.Get(vp.ID)
	assert.True(t, tserrors.IsNotFound(err))
	assert.NoDirExists(t, h.store.Dir(vp.ID))
}

func TestIngestCanceledContextFails(t *testing.T) {
	resolver := &fakeResolver{objects: map[string][]byte{
		"imagery/scene.tif": grayTIFF(t, 16),
	}}
	h := newHarness(t, resolver)
	vp := h.requested(t, "imagery", "scene.tif")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.pool.Ingest(ctx, vp.ID)

	got, err := h.repo.Get(vp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "canceled")
}

func TestPoolProcessesEnqueuedViewpoints(t *testing.T) {
	resolver := &fakeResolver{objects: map[string][]byte{
		"imagery/scene.tif": grayTIFF(t, 16),
	}}
	h := newHarness(t, resolver)
	vp := h.requested(t, "imagery", "scene.tif")

	require.NoError(t, h.pool.Enqueue(vp.ID))
	assert.Eventually(t, func() bool {
		got, err := h.repo.Get(vp.ID)
		return err == nil && got.Status == models.StatusReady
	}, 5*time.Second, 10*time.Millisecond)
}
