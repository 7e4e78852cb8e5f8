package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-aegis/internal/config"
	"github.com/technosupport/ts-aegis/internal/tamper"
	"github.com/technosupport/ts-aegis/internal/tokens"
	"github.com/technosupport/ts-aegis/internal/vision"
	"github.com/technosupport/ts-aegis/internal/watermark"
)

const testSecret = "AegisSecureWatermarkKey2025"

type fakeControl struct {
	dismissed int
	recent    []tamper.Incident
}

func (f *fakeControl) DismissReposition()                 { f.dismissed++ }
func (f *fakeControl) RecentIncidents() []tamper.Incident { return f.recent }

type fakeFrames struct {
	raw       *vision.Frame
	processed *vision.Frame
}

func (f *fakeFrames) Raw() *vision.Frame       { return f.raw }
func (f *fakeFrames) Processed() *vision.Frame { return f.processed }

type sliceSource struct {
	frames []*vision.Frame
	i      int
}

func (s *sliceSource) Next() (*vision.Frame, error) {
	if s.i >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.i]
	s.i++
	return f, nil
}

func (s *sliceSource) Close() error { return nil }

func newTestServer(t *testing.T, mutate func(*Options)) (*Server, *fakeControl) {
	t.Helper()
	ctrl := &fakeControl{}
	opts := Options{
		Runtime:    config.NewRuntime(config.DefaultSensors()),
		Control:    ctrl,
		Frames:     &fakeFrames{},
		Secret:     []byte(testSecret),
		Thresholds: config.DefaultThresholds(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewServer(opts), ctrl
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConfigureSensors_RoundTrip(t *testing.T) {
	s, _ := newTestServer(t, nil)

	body := config.DefaultSensors()
	body.Blur = false
	raw, _ := json.Marshal(body)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sensors", bytes.NewReader(raw)))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.False(t, s.runtime.Snapshot().Blur)

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sensors", nil))
	var got config.Sensors
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Blur)
}

func TestConfigureSensors_RejectsUnknownRescueMode(t *testing.T) {
	s, _ := newTestServer(t, nil)

	body := config.DefaultSensors()
	body.RescueMode = "MSR"
	raw, _ := json.Marshal(body)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sensors", bytes.NewReader(raw)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	// Snapshot unchanged.
	assert.Equal(t, "CLAHE", s.runtime.Snapshot().RescueMode)
}

func TestDismissReposition(t *testing.T) {
	s, ctrl := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/alerts/reposition/dismiss", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ctrl.dismissed)
}

func TestRecentIncidents(t *testing.T) {
	s, ctrl := newTestServer(t, nil)
	ctrl.recent = []tamper.Incident{{Kind: "blur", Count: 2}}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/incidents/recent", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"blur"`)
}

func TestValidate_LiveClip(t *testing.T) {
	// Serve a lossless in-memory clip through the video opener hook.
	emb, err := watermark.NewEmbedder([]byte(testSecret))
	require.NoError(t, err)

	var frames []*vision.Frame
	for i := 0; i < 60; i++ {
		fr, err := vision.NewFrame(1700000000+float64(i)/30, 160, 120, vision.OrderRGB, make([]byte, 160*120*3))
		require.NoError(t, err)
		emb.Embed(fr)
		frames = append(frames, fr)
	}

	s, _ := newTestServer(t, func(o *Options) {
		o.OpenVideo = func(path string, start float64) (watermark.FrameSource, error) {
			return &sliceSource{frames: frames}, nil
		}
	})

	raw, _ := json.Marshal(validateRequest{FilePath: "/tmp/clip.avi", StartTS: 1700000000})
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/validate", bytes.NewReader(raw)))
	require.Equal(t, http.StatusOK, rec.Code)

	var rep watermark.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, watermark.StatusLive, rep.Status)
	assert.Equal(t, 1.0, rep.MatchRate)
}

func TestValidate_UnreadableInputIsErrorStatus(t *testing.T) {
	s, _ := newTestServer(t, func(o *Options) {
		o.OpenVideo = func(path string, start float64) (watermark.FrameSource, error) {
			return nil, io.ErrUnexpectedEOF
		}
	})

	raw, _ := json.Marshal(validateRequest{FilePath: "/tmp/missing.avi"})
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/validate", bytes.NewReader(raw)))
	require.Equal(t, http.StatusOK, rec.Code)

	var rep watermark.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, watermark.StatusError, rep.Status)
	assert.NotEmpty(t, rep.Error)
}

func TestFrames_UnavailableBeforeFirstFrame(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/frames/raw", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFrames_ServesJPEG(t *testing.T) {
	fr, err := vision.NewFrame(1, 32, 32, vision.OrderRGB, make([]byte, 32*32*3))
	require.NoError(t, err)

	s, _ := newTestServer(t, func(o *Options) {
		o.Frames = &fakeFrames{raw: fr, processed: fr}
	})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/frames/processed", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	// JPEG SOI marker.
	assert.Equal(t, []byte{0xFF, 0xD8}, rec.Body.Bytes()[:2])
}

func TestAuth_RejectsMissingAndBadTokens(t *testing.T) {
	mgr := tokens.NewManager("api-signing-key")
	s, _ := newTestServer(t, func(o *Options) { o.Tokens = mgr })

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sensors", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sensors", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_ViewerCannotMutate(t *testing.T) {
	mgr := tokens.NewManager("api-signing-key")
	s, _ := newTestServer(t, func(o *Options) { o.Tokens = mgr })

	viewer, err := mgr.GenerateToken("dashboard", "viewer", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/reposition/dismiss", nil)
	req.Header.Set("Authorization", "Bearer "+viewer)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Reads are fine for viewers.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/sensors", nil)
	req.Header.Set("Authorization", "Bearer "+viewer)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_OperatorCanMutate(t *testing.T) {
	mgr := tokens.NewManager("api-signing-key")
	s, ctrl := newTestServer(t, func(o *Options) { o.Tokens = mgr })

	op, err := mgr.GenerateToken("ops", "operator", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/reposition/dismiss", nil)
	req.Header.Set("Authorization", "Bearer "+op)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ctrl.dismissed)
}
