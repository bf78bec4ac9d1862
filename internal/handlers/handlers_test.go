package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/aws-solutions-library-samples/osml-tile-server/internal/cache"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/models"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/repository"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/services"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/stats"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tiles"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/tserrors"
	"github.com/aws-solutions-library-samples/osml-tile-server/internal/worker"
)

type objectFS map[string][]byte

func (m objectFS) Fetch(ctx context.Context, bucket, key string, dst io.Writer) error {
	data, ok := m[bucket+"/"+key]
	if !ok {
		return tserrors.Ingestion(nil, tserrors.CauseNetwork,
			"object "+key+" does not exist in bucket "+bucket)
	}
	_, err := dst.Write(data)
	return err
}

type testServer struct {
	app  *fiber.App
	pool *worker.Pool
}

func newTestServer(t *testing.T, objects objectFS) *testServer {
	t.Helper()
	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	repo := repository.NewMemoryViewpointRepository()
	pool := worker.NewPool(repo, store, objects, nil, 1)
	t.Cleanup(pool.Stop)

	svc := services.NewViewpointService(repo, store, pool,
		tiles.NewEngine(store, "nearest"), stats.NewComputer(2), nil)

	app := fiber.New()
	Register(app, NewViewpointHandler(svc), NewTileHandler(svc))
	return &testServer{app: app, pool: pool}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func grayTIFF(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = byte(i % 239)
	}
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, img, nil))
	return buf.Bytes()
}

func createBody() map[string]interface{} {
	return map[string]interface{}{
		"bucket_name":      "imagery",
		"object_key":       "scene.tif",
		"viewpoint_name":   "scene",
		"tile_size":        16,
		"range_adjustment": "NONE",
	}
}

// createReady registers a viewpoint over HTTP and runs ingestion on it.
func (s *testServer) createReady(t *testing.T) string {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/api/v1/viewpoints", createBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var vp models.Viewpoint
	decodeJSON(t, resp, &vp)
	s.pool.Ingest(context.Background(), vp.ID)
	return vp.ID.String()
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, objectFS{})
	resp := s.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateAndDescribeViewpoint(t *testing.T) {
	s := newTestServer(t, objectFS{"imagery/scene.tif": grayTIFF(t, 32)})
	resp := s.do(t, http.MethodPost, "/api/v1/viewpoints", createBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.Viewpoint
	decodeJSON(t, resp, &created)
	assert.Equal(t, models.StatusRequested, created.Status)

	resp = s.do(t, http.MethodGet, "/api/v1/viewpoints/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got models.Viewpoint
	decodeJSON(t, resp, &got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "scene", got.Name)
}

func TestCreateRejectsInvalidBody(t *testing.T) {
	s := newTestServer(t, objectFS{})
	body := createBody()
	body["range_adjustment"] = "CLAHE"
	resp := s.do(t, http.MethodPost, "/api/v1/viewpoints", body)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var envelope map[string]interface{}
	decodeJSON(t, resp, &envelope)
	assert.Equal(t, true, envelope["error"])
	assert.Equal(t, string(tserrors.KindValidation), envelope["kind"])
}

func TestGetUnknownViewpoint(t *testing.T) {
	s := newTestServer(t, objectFS{})
	resp := s.do(t, http.MethodGet, "/api/v1/viewpoints/6a2e9d9e-8a53-4f1e-9d1d-1d2f3a4b5c6d", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/v1/viewpoints/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteViewpointIdempotent(t *testing.T) {
	s := newTestServer(t, objectFS{"imagery/scene.tif": grayTIFF(t, 32)})
	id := s.createReady(t)

	resp := s.do(t, http.MethodDelete, "/api/v1/viewpoints/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = s.do(t, http.MethodDelete, "/api/v1/viewpoints/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/v1/viewpoints/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTileLifecycleStatuses(t *testing.T) {
	s := newTestServer(t, objectFS{"imagery/scene.tif": grayTIFF(t, 32)})

	resp := s.do(t, http.MethodPost, "/api/v1/viewpoints", createBody())
	var vp models.Viewpoint
	decodeJSON(t, resp, &vp)
	id := vp.ID.String()

	// Not ready yet: tiles conflict.
	resp = s.do(t, http.MethodGet, "/api/v1/viewpoints/"+id+"/image/tiles/0/0/0.png", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	s.pool.Ingest(context.Background(), vp.ID)

	resp = s.do(t, http.MethodGet, "/api/v1/viewpoints/"+id+"/image/tiles/0/0/0.png", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get(fiber.HeaderContentType))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))

	// Outside the image: 404, with the envelope, never a blank tile.
	resp = s.do(t, http.MethodGet, "/api/v1/viewpoints/"+id+"/image/tiles/0/99/0.png", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var envelope map[string]interface{}
	decodeJSON(t, resp, &envelope)
	assert.Equal(t, string(tserrors.KindOutOfBounds), envelope["kind"])

	// Unsupported encoding.
	resp = s.do(t, http.MethodGet, "/api/v1/viewpoints/"+id+"/image/tiles/0/0/0.webp", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetadataAndStatisticsRoutes(t *testing.T) {
	s := newTestServer(t, objectFS{"imagery/scene.tif": grayTIFF(t, 32)})
	id := s.createReady(t)

	resp := s.do(t, http.MethodGet, "/api/v1/viewpoints/"+id+"/image/metadata", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var meta models.ImageMetadata
	decodeJSON(t, resp, &meta)
	assert.Equal(t, [2]int{32, 32}, meta.Size)

	resp = s.do(t, http.MethodGet, "/api/v1/viewpoints/"+id+"/image/bounds", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/v1/viewpoints/"+id+"/image/statistics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st models.ImageStatistics
	decodeJSON(t, resp, &st)
	require.Len(t, st.Bands, 1)
}

func TestCropAndPreviewRoutes(t *testing.T) {
	s := newTestServer(t, objectFS{"imagery/scene.tif": grayTIFF(t, 32)})
	id := s.createReady(t)

	resp := s.do(t, http.MethodGet, "/api/v1/viewpoints/"+id+"/image/crop/4,4,20,12.png?width=8", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/v1/viewpoints/"+id+"/image/crop/4,4.png", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/v1/viewpoints/"+id+"/image/preview.jpeg?maxSize=8", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get(fiber.HeaderContentType))
}

func TestMapTileRoutes(t *testing.T) {
	s := newTestServer(t, objectFS{"imagery/scene.tif": grayTIFF(t, 32)})
	id := s.createReady(t)

	resp := s.do(t, http.MethodGet, "/api/v1/viewpoints/"+id+"/map/tiles", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list tiles.TileSetList
	decodeJSON(t, resp, &list)
	require.Len(t, list.TileSets, 1)

	// Unknown tile matrix set.
	resp = s.do(t, http.MethodGet, "/api/v1/viewpoints/"+id+"/map/tiles/GlobalCRS84", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// An ungeoreferenced source cannot serve map products.
	resp = s.do(t, http.MethodGet, "/api/v1/viewpoints/"+id+"/map/tiles/WebMercatorQuad", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = s.do(t, http.MethodGet, "/api/v1/viewpoints/"+id+"/map/tiles/WebMercatorQuad/0/0/0.png", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorEnvelopeShape(t *testing.T) {
	s := newTestServer(t, objectFS{})
	resp := s.do(t, http.MethodGet, "/api/v1/viewpoints/not-a-uuid", nil)
	var envelope struct {
		Error   bool   `json:"error"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}
	decodeJSON(t, resp, &envelope)
	assert.True(t, envelope.Error)
	assert.Equal(t, string(tserrors.KindValidation), envelope.Kind)
	assert.True(t, strings.Contains(envelope.Message, "not-a-uuid"))
}
