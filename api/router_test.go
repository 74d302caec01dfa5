package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/nvr-ai/go-targeting/actuator"
	"github.com/nvr-ai/go-targeting/api/handler"
	"github.com/nvr-ai/go-targeting/common"
	"github.com/nvr-ai/go-targeting/images"
	"github.com/nvr-ai/go-targeting/inference"
	"github.com/nvr-ai/go-targeting/profiler"
	"github.com/nvr-ai/go-targeting/service"
	"github.com/nvr-ai/go-targeting/shaper"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeDetector struct {
	boxes []common.BoundingBox
	err   error
}

func (f *fakeDetector) Detect(context.Context, gocv.Mat, float32) ([]common.BoundingBox, error) {
	return f.boxes, f.err
}

func (f *fakeDetector) Labels() []string { return []string{"weed"} }

func (f *fakeDetector) Close() error { return nil }

type recordingPublisher struct {
	got []actuator.Dispatch
}

func (r *recordingPublisher) Publish(_ context.Context, d actuator.Dispatch) error {
	r.got = append(r.got, d)
	return nil
}

type fixture struct {
	router    *gin.Engine
	hub       *handler.Hub
	staticDir string
}

func newFixture(t *testing.T, capability *inference.Capability, publisher actuator.Publisher, maxBytes int64) *fixture {
	t.Helper()
	log, _ := test.NewNullLogger()

	root := t.TempDir()
	staticDir := filepath.Join(root, "static")
	store, err := service.NewResultStore(filepath.Join(root, "uploads"), filepath.Join(staticDir, "results"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(staticDir, "index.html"), []byte("<html>targeting</html>"), 0o644))

	rp := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{})
	hub := handler.NewHub(log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	router := SetupRouter(Dependencies{
		Detection: service.NewDetectionService(capability, shaper.New(), store, rp, log),
		Targets:   service.NewTargetService(publisher, log),
		Profiler:  rp,
		Hub:       hub,
		Options: handler.DetectionOptions{
			StaticDir:      staticDir,
			MaxUploadBytes: maxBytes,
		},
		Log: log,
	})
	return &fixture{router: router, hub: hub, staticDir: staticDir}
}

func loaded(boxes ...common.BoundingBox) *inference.Capability {
	return inference.NewCapability(&fakeDetector{boxes: boxes})
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	frame := images.NewSolidFrame(width, height, color.RGBA{G: 120, A: 255})
	defer frame.Close()
	data, err := images.Encode(images.FormatPNG, frame)
	require.NoError(t, err)
	return data
}

func uploadRequest(t *testing.T, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(f *fixture, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestUploadSuccess(t *testing.T) {
	f := newFixture(t, loaded(
		common.BoundingBox{Label: "weed", Confidence: 0.9, X1: 10, Y1: 20, X2: 50, Y2: 60},
	), nil, 0)

	data := pngBytes(t, 200, 100)
	rec := serve(f, uploadRequest(t, "row.png", data, map[string]string{"confidence": "0.5"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 1, body["total_weeds"])
	assert.EqualValues(t, 1, body["total_count"])
	assert.Equal(t, "image/png", body["mime_type"])
	assert.Equal(t, map[string]any{"width": 200.0, "height": 100.0}, body["image_size"])

	original, err := base64.StdEncoding.DecodeString(body["original_image"].(string))
	require.NoError(t, err)
	assert.Equal(t, data, original)

	detections := body["detections"].([]any)
	require.Len(t, detections, 1)
	det := detections[0].(map[string]any)
	assert.Equal(t, "weed", det["class"])
	assert.Equal(t, 0.9, det["confidence"])
	want := map[string]any{"x": 150.0, "y": 400.0, "unit": "laser_units"}
	assert.Equal(t, want, det["target_coordinates"])
	assert.Equal(t, want, det["laser_coordinates"])

	annotated := body["annotated_file"].(string)
	assert.True(t, strings.HasPrefix(annotated, "annotated_"))
	assert.FileExists(t, filepath.Join(f.staticDir, "results", annotated))

	rec = serve(f, httptest.NewRequest(http.MethodGet, "/static/results/"+annotated, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadEmptyDetections(t *testing.T) {
	f := newFixture(t, loaded(), nil, 0)

	rec := serve(f, uploadRequest(t, "bare.png", pngBytes(t, 32, 32), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"detections":[]`)
}

func TestUploadRejections(t *testing.T) {
	tests := []struct {
		name       string
		capability *inference.Capability
		filename   string
		data       []byte
		fields     map[string]string
		status     int
		message    string
	}{
		{
			name:       "model not loaded",
			capability: inference.Unavailable(errors.New("missing models/best.onnx")),
			filename:   "a.png",
			data:       []byte("x"),
			status:     http.StatusServiceUnavailable,
			message:    "Model not loaded. Please train the model first.",
		},
		{
			name:    "no file",
			status:  http.StatusBadRequest,
			message: "No file uploaded",
		},
		{
			name:     "bad extension",
			filename: "a.gif",
			data:     []byte("GIF89a"),
			status:   http.StatusBadRequest,
			message:  "Invalid file type",
		},
		{
			name:     "confidence out of range",
			filename: "a.png",
			data:     []byte("x"),
			fields:   map[string]string{"confidence": "1.5"},
			status:   http.StatusBadRequest,
		},
		{
			name:     "confidence not a number",
			filename: "a.png",
			data:     []byte("x"),
			fields:   map[string]string{"confidence": "high"},
			status:   http.StatusBadRequest,
		},
		{
			name:     "undecodable",
			filename: "a.jpg",
			data:     []byte("definitely not a jpeg"),
			status:   http.StatusBadRequest,
			message:  "Could not decode image",
		},
		{
			name:       "detector failure",
			capability: inference.NewCapability(&fakeDetector{err: errors.New("boom")}),
			filename:   "a.png",
			status:     http.StatusInternalServerError,
			message:    "Detection failed: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capability := tt.capability
			if capability == nil {
				capability = loaded()
			}
			data := tt.data
			if data == nil && tt.filename != "" {
				data = pngBytes(t, 16, 16)
			}
			f := newFixture(t, capability, nil, 0)

			rec := serve(f, uploadRequest(t, tt.filename, data, tt.fields))
			assert.Equal(t, tt.status, rec.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, decodeBody(t, rec)["error"])
			}
		})
	}
}

func TestUploadEmptyFileInput(t *testing.T) {
	f := newFixture(t, loaded(), nil, 0)

	// A file input left empty is sent as a "file" part with filename="".
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_, err := w.CreateFormFile("file", "")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	rec := serve(f, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file selected", decodeBody(t, rec)["error"])
}

func TestUploadTooLarge(t *testing.T) {
	f := newFixture(t, loaded(), nil, 1024)

	rec := serve(f, uploadRequest(t, "big.png", bytes.Repeat([]byte{0xff}, 8192), nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func targetBody(t *testing.T, detections ...map[string]any) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"detections": detections})
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func sampleDetection() map[string]any {
	return map[string]any{
		"id":                7,
		"class":             "weed",
		"confidence":        0.87,
		"center":            map[string]any{"x": 320, "y": 240, "x_normalized": 0.5, "y_normalized": 0.5},
		"target_coordinates": map[string]any{"x": 500, "y": 500, "unit": "laser_units"},
	}
}

func TestDownloadCoordinates(t *testing.T) {
	f := newFixture(t, loaded(), nil, 0)

	t.Run("formats targets", func(t *testing.T) {
		second := sampleDetection()
		delete(second, "target_coordinates")
		second["laser_coordinates"] = map[string]any{"x": 250, "y": 750, "unit": "laser_units"}
		req := httptest.NewRequest(http.MethodPost, "/download_coordinates", targetBody(t, sampleDetection(), second))
		req.Header.Set("Content-Type", "application/json")

		rec := serve(f, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var file shaper.TargetFile
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &file))
		assert.Equal(t, 2, file.TotalTargets)
		assert.Equal(t, 1, file.Targets[0].TargetID)
		assert.Equal(t, 2, file.Targets[1].TargetID)
		assert.Equal(t, 320, file.Targets[0].PixelCoordinates.X)
		assert.Equal(t, 500, file.Targets[0].TargetCoordinates.Y)
		assert.Equal(t, 750, file.Targets[1].TargetCoordinates.Y)
	})

	t.Run("empty", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/download_coordinates", targetBody(t))
		rec := serve(f, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"total_targets":0,"targets":[]}`, rec.Body.String())
	})

	t.Run("missing field", func(t *testing.T) {
		broken := sampleDetection()
		delete(broken, "center")
		req := httptest.NewRequest(http.MethodPost, "/download_coordinates", targetBody(t, sampleDetection(), broken))

		rec := serve(f, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		assert.EqualValues(t, 1, body["index"])
		assert.Equal(t, "center", body["field"])
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/download_coordinates", strings.NewReader("{"))
		assert.Equal(t, http.StatusBadRequest, serve(f, req).Code)
	})
}

func TestDispatchTargets(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		f := newFixture(t, loaded(), nil, 0)
		req := httptest.NewRequest(http.MethodPost, "/dispatch_targets", targetBody(t, sampleDetection()))
		assert.Equal(t, http.StatusServiceUnavailable, serve(f, req).Code)
	})

	t.Run("published", func(t *testing.T) {
		pub := &recordingPublisher{}
		f := newFixture(t, loaded(), pub, 0)
		req := httptest.NewRequest(http.MethodPost, "/dispatch_targets", targetBody(t, sampleDetection()))

		rec := serve(f, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, pub.got, 1)
		assert.Equal(t, decodeBody(t, rec)["request_id"], pub.got[0].RequestID)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, inference.Unavailable(errors.New("no model file")), nil, 0)

	rec := serve(f, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, false, body["model_loaded"])
	assert.Contains(t, body["reason"], "no model file")

	f = newFixture(t, loaded(), nil, 0)
	require.Equal(t, http.StatusOK, serve(f, uploadRequest(t, "a.png", pngBytes(t, 16, 16), nil)).Code)

	rec = serve(f, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decodeBody(t, rec)["profile"].(map[string]any)
	assert.Contains(t, profile["operations"], "inference")
}

func TestIndex(t *testing.T) {
	f := newFixture(t, loaded(), nil, 0)

	rec := serve(f, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-Model-Loaded"))
	assert.Contains(t, rec.Body.String(), "targeting")
}

func TestWebSocketBroadcast(t *testing.T) {
	f := newFixture(t, loaded(
		common.BoundingBox{Label: "weed", Confidence: 0.7, X1: 0, Y1: 0, X2: 10, Y2: 10},
	), nil, 0)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	req := uploadRequest(t, "live.png", pngBytes(t, 20, 20), nil)
	rec := serve(f, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event handler.DetectionEvent
	require.NoError(t, conn.ReadJSON(&event))

	assert.Equal(t, "live.png", event.Filename)
	assert.Equal(t, 1, event.TotalCount)
	assert.Equal(t, decodeBody(t, rec)["request_id"], event.RequestID)
}
