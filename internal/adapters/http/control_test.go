package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dkeye/VoiceRouter/internal/app/profile"
	"github.com/dkeye/VoiceRouter/internal/app/routing"
	"github.com/dkeye/VoiceRouter/internal/config"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine   *routing.Engine
	profiles *profile.Manager
	router   *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := routing.New(routing.Options{Channels: 1})
	t.Cleanup(e.Close)
	pm := profile.NewManager(e)
	cfg := &config.Config{Mode: "test", Secret: "test-secret"}
	r := SetupRouter(context.Background(), cfg, Deps{Engine: e, Profiles: pm})
	return &fixture{engine: e, profiles: pm, router: r}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestClientTokenCookie(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/bus", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "ct" {
			found = true
			assert.NotEmpty(t, c.Value)
			assert.True(t, c.HttpOnly)
		}
	}
	assert.True(t, found)
}

func TestParticipants(t *testing.T) {
	f := newFixture(t)
	f.engine.Table.Create(2, "bob")
	f.engine.Table.Create(1, "alice")

	w := f.do(t, http.MethodGet, "/api/participants", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Participants []routing.View `json:"participants"`
		Budget       int            `json:"budget"`
	}](t, w)
	require.Len(t, body.Participants, 2)
	assert.EqualValues(t, 1, body.Participants[0].ID)
	assert.Equal(t, "alice", body.Participants[0].DisplayName)
	assert.Equal(t, 32, body.Budget)

	w = f.do(t, http.MethodGet, "/api/participants/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob", decode[routing.View](t, w).DisplayName)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/participants/9", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/participants/abc", nil).Code)
}

func TestParticipantSetters(t *testing.T) {
	f := newFixture(t)
	f.engine.Table.Create(1, "alice")

	w := f.do(t, http.MethodPut, "/api/participants/1/volume", map[string]any{"volume": 0.5})
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[routing.View](t, w)
	assert.Equal(t, float32(0.5), v.MonitorVolume)
	assert.Equal(t, float32(0.5), v.BroadcastVolume)

	w = f.do(t, http.MethodPut, "/api/participants/1/volume", map[string]any{"broadcast": 3})
	require.Equal(t, http.StatusOK, w.Code)
	v = decode[routing.View](t, w)
	assert.Equal(t, float32(0.5), v.MonitorVolume)
	assert.Equal(t, float32(1), v.BroadcastVolume)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/api/participants/1/volume", map[string]any{}).Code)

	w = f.do(t, http.MethodPut, "/api/participants/1/mute", map[string]any{"muted": true})
	require.Equal(t, http.StatusOK, w.Code)
	v = decode[routing.View](t, w)
	assert.True(t, v.Muted)
	assert.Zero(t, v.EffectiveMonitorGain)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/api/participants/1/mute", map[string]any{}).Code)

	w = f.do(t, http.MethodPut, "/api/participants/1/spatial", map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[routing.View](t, w).SpatialEnabled)

	w = f.do(t, http.MethodPut, "/api/participants/1/position", domain.Vec3{X: 1, Y: 2, Z: 3})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.Vec3{X: 1, Y: 2, Z: 3}, decode[routing.View](t, w).Position)

	w = f.do(t, http.MethodPut, "/api/participants/1/lowpass", map[string]any{"enabled": true, "cutoff_hz": 2000})
	require.Equal(t, http.StatusOK, w.Code)
	v = decode[routing.View](t, w)
	assert.True(t, v.LowPassEnabled)
	assert.Equal(t, float32(2000), v.LowPassCutoffHz)

	w = f.do(t, http.MethodPut, "/api/participants/1/echo", map[string]any{"enabled": true, "delay_ms": 120, "decay": 0.4})
	require.Equal(t, http.StatusOK, w.Code)
	v = decode[routing.View](t, w)
	assert.True(t, v.EchoEnabled)
	assert.Equal(t, float32(120), v.EchoDelayMs)
	assert.Equal(t, float32(0.4), v.EchoDecay)
}

func TestEchoDefaultsDecay(t *testing.T) {
	f := newFixture(t)
	f.engine.Table.Create(1, "alice")

	w := f.do(t, http.MethodPut, "/api/participants/1/echo", map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, w.Code)
	v := decode[routing.View](t, w)
	assert.True(t, v.EchoEnabled)
	assert.Equal(t, routing.DefaultEchoDelayMs, v.EchoDelayMs)
	assert.Equal(t, routing.DefaultEchoDecay, v.EchoDecay)

	w = f.do(t, http.MethodPut, "/api/participants/1/echo", map[string]any{"enabled": true, "decay": 0.2})
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPut, "/api/participants/1/echo", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	v = decode[routing.View](t, w)
	assert.False(t, v.EchoEnabled)
	assert.Equal(t, float32(0.2), v.EchoDecay)
}

func TestBusEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPut, "/api/bus/monitor", map[string]any{"volume": 0.25})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float32(0.25), decode[domain.BusState](t, w).MonitorBusVolume)

	w = f.do(t, http.MethodPut, "/api/bus/broadcast", map[string]any{"muted": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[domain.BusState](t, w).BroadcastBusMuted)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/api/bus/broadcast", map[string]any{}).Code)

	w = f.do(t, http.MethodPut, "/api/bus/dual-routing", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[domain.BusState](t, w).DualRoutingEnabled)

	w = f.do(t, http.MethodPut, "/api/bus/eq", map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[domain.BusState](t, w).EQEnabled)

	w = f.do(t, http.MethodPut, "/api/bus/compression", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[domain.BusState](t, w).CompressionEnabled)

	w = f.do(t, http.MethodPut, "/api/bus/reverb", map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, w.Code)
	s := decode[domain.BusState](t, w)
	assert.True(t, s.ReverbEnabled)
	assert.InDelta(t, 0.2, s.ReverbAmount, 1e-6)

	w = f.do(t, http.MethodPut, "/api/bus/reverb", map[string]any{"enabled": true, "amount": 0.8})
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 0.8, decode[domain.BusState](t, w).ReverbAmount, 1e-6)

	w = f.do(t, http.MethodGet, "/api/bus", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, f.engine.Bus.State(), decode[domain.BusState](t, w))
}

func TestProfileEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPut, "/api/profile", map[string]any{"class": "mobile"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[profileResponse](t, w)
	assert.Equal(t, domain.DeviceMobile, resp.Profile.Class)
	assert.Equal(t, 24, f.engine.Table.Budget())

	w = f.do(t, http.MethodPut, "/api/profile", map[string]any{"model": "Meta Quest 3", "override": true})
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[profileResponse](t, w)
	assert.Equal(t, domain.DeviceXRTier3, resp.Profile.Class)
	assert.True(t, resp.Overridden)
	assert.Equal(t, 256, f.engine.Profile().BufferSizeFrames)

	// pinned until the override is cleared
	w = f.do(t, http.MethodPut, "/api/profile", map[string]any{"class": "desktop"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.DeviceXRTier3, decode[profileResponse](t, w).Profile.Class)

	w = f.do(t, http.MethodDelete, "/api/profile/override", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[profileResponse](t, w).Overridden)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/api/profile", map[string]any{"class": "toaster"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/api/profile", map[string]any{
		"profile": domain.PlatformProfile{Class: domain.DeviceDesktop},
	}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/api/profile", map[string]any{}).Code)

	w = f.do(t, http.MethodGet, "/api/profile", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.DeviceXRTier3, decode[profileResponse](t, w).Profile.Class)
}

type lockedRate int

func (r lockedRate) CheckProfile(p domain.PlatformProfile) error {
	if p.SampleRateHz != int(r) {
		return profile.ErrRateLocked
	}
	return nil
}

func TestProfileRateLocked(t *testing.T) {
	f := newFixture(t)
	_, err := f.profiles.ApplyClass(domain.DeviceDesktop)
	require.NoError(t, err)
	f.profiles.Guard(lockedRate(48000))

	w := f.do(t, http.MethodPut, "/api/profile", map[string]any{"class": "mobile"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 48000, f.engine.Profile().SampleRateHz)

	w = f.do(t, http.MethodPut, "/api/profile", map[string]any{"class": "xr-tier3"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 256, f.engine.Profile().BufferSizeFrames)
}

func TestListenerAndStats(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPut, "/api/listener", domain.Vec3{X: 4})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.Vec3{X: 4}, f.engine.Router.ListenerPosition())

	f.engine.Table.Create(1, "alice")
	w = f.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Routing routing.Stats `json:"routing"`
	}](t, w)
	assert.Equal(t, 1, body.Routing.Active)
}
