package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-tracker/internal/geo"
	"transit-tracker/internal/session"
	"transit-tracker/internal/tracking"
)

type staticSnapshot struct {
	snap session.Snapshot
	err  error
}

func (s staticSnapshot) Snapshot() (session.Snapshot, error) { return s.snap, s.err }

type recordingViewport struct{ got []geo.Rect }

func (v *recordingViewport) Set(r geo.Rect) { v.got = append(v.got, r) }

func newTestServer(t *testing.T, src SnapshotSource, vp ViewportSetter, metrics http.Handler) *httptest.Server {
	t.Helper()
	h := NewHandler(src, vp, zerolog.Nop())
	h.now = func() time.Time { return time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC) }
	srv := httptest.NewServer(h.Router([]string{"http://localhost:5173"}, metrics))
	t.Cleanup(srv.Close)
	return srv
}

func sampleSnapshot() session.Snapshot {
	return session.Snapshot{
		SessionID: "s1",
		State:     session.Active,
		Vehicles: map[int64]tracking.Render{
			9: {VehicleID: 9, Indicator: &tracking.IndicatorMarker{VehicleID: 9, Edge: geo.EdgeEast}},
			4: {VehicleID: 4, Direct: &tracking.VehicleMarker{VehicleID: 4, RouteNumber: 20}},
		},
		Banners: []tracking.Banner{{RouteNumber: 20, Connectivity: tracking.ConnectivityStale, Message: "stale"}},
	}
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp
}

func TestGetVehiclesSortedByID(t *testing.T) {
	srv := newTestServer(t, staticSnapshot{snap: sampleSnapshot()}, &recordingViewport{}, nil)

	var body VehiclesResponse
	resp := getJSON(t, srv.URL+"/api/vehicles", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Vehicles, 2)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, int64(4), body.Vehicles[0].VehicleID)
	assert.NotNil(t, body.Vehicles[0].Direct)
	assert.Nil(t, body.Vehicles[0].Indicator)
	assert.Equal(t, int64(9), body.Vehicles[1].VehicleID)
	assert.NotNil(t, body.Vehicles[1].Indicator)
}

func TestGetBanners(t *testing.T) {
	srv := newTestServer(t, staticSnapshot{snap: sampleSnapshot()}, &recordingViewport{}, nil)
	var body map[string]any
	getJSON(t, srv.URL+"/api/banners", &body)
	assert.EqualValues(t, 1, body["count"])
	banner := body["banners"].([]any)[0].(map[string]any)
	assert.Equal(t, "stale", banner["connectivity"])

	empty := newTestServer(t, staticSnapshot{snap: session.Snapshot{SessionID: "s2"}}, &recordingViewport{}, nil)
	body = nil
	getJSON(t, empty.URL+"/api/banners", &body)
	assert.Equal(t, []any{}, body["banners"])
}

func TestSnapshotErrors(t *testing.T) {
	srv := newTestServer(t, staticSnapshot{err: errors.New("boom")}, &recordingViewport{}, nil)

	var errBody ErrorResponse
	resp := getJSON(t, srv.URL+"/api/route", &errBody)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "boom", errBody.Details["internal"])

	var health map[string]any
	resp = getJSON(t, srv.URL+"/health", &health)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "error", health["status"])
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, staticSnapshot{snap: sampleSnapshot()}, &recordingViewport{}, nil)
	var health map[string]any
	resp := getJSON(t, srv.URL+"/health", &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "active", health["state"])
	assert.Equal(t, "2024-03-01T08:00:00Z", health["timestamp"])
}

func put(t *testing.T, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPutViewport(t *testing.T) {
	vp := &recordingViewport{}
	srv := newTestServer(t, staticSnapshot{snap: sampleSnapshot()}, vp, nil)

	resp := put(t, srv.URL+"/api/viewport", `{"minLat":2,"minLon":2,"maxLat":0,"maxLon":0}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Len(t, vp.got, 1)
	assert.Equal(t, geo.Rect{Max: geo.Coordinate{Latitude: 2, Longitude: 2}}, vp.got[0])
}

func TestPutViewportRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"malformed":    `{"minLat":`,
		"missing":      `{"minLat":0,"minLon":0,"maxLat":1}`,
		"out of range": `{"minLat":0,"minLon":0,"maxLat":91,"maxLon":1}`,
		"no area":      `{"minLat":1,"minLon":0,"maxLat":1,"maxLon":1}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			vp := &recordingViewport{}
			srv := newTestServer(t, staticSnapshot{snap: sampleSnapshot()}, vp, nil)
			resp := put(t, srv.URL+"/api/viewport", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Empty(t, vp.got)
		})
	}
}

func TestMetricsRouteOptional(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("# metrics")) })

	with := newTestServer(t, staticSnapshot{snap: sampleSnapshot()}, &recordingViewport{}, metrics)
	resp, err := http.Get(with.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	without := newTestServer(t, staticSnapshot{snap: sampleSnapshot()}, &recordingViewport{}, nil)
	resp, err = http.Get(without.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, staticSnapshot{snap: sampleSnapshot()}, &recordingViewport{}, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/viewport", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}
