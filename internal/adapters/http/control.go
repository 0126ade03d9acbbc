package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/VoiceRouter/internal/app/profile"
	"github.com/dkeye/VoiceRouter/internal/app/routing"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// controlAPI maps REST calls onto the routing setters. Every setter clamps
// its input, so handlers only check that the body is well formed.
type controlAPI struct {
	engine   *routing.Engine
	profiles *profile.Manager
	stats    func() any
}

func registerControl(api *gin.RouterGroup, ctl *controlAPI) {
	api.GET("/participants", ctl.listParticipants)
	p := api.Group("/participants/:id", ctl.loadPair)
	p.GET("", ctl.getParticipant)
	p.PUT("/volume", ctl.setVolume)
	p.PUT("/mute", ctl.setMute)
	p.PUT("/spatial", ctl.setSpatial)
	p.PUT("/position", ctl.setPosition)
	p.PUT("/lowpass", ctl.setLowPass)
	p.PUT("/echo", ctl.setEcho)

	api.GET("/bus", ctl.getBus)
	api.PUT("/bus/monitor", ctl.setMonitorBus)
	api.PUT("/bus/broadcast", ctl.setBroadcastBus)
	api.PUT("/bus/compression", ctl.setCompression)
	api.PUT("/bus/eq", ctl.setEQ)
	api.PUT("/bus/reverb", ctl.setReverb)
	api.PUT("/bus/dual-routing", ctl.setDualRouting)

	api.GET("/profile", ctl.getProfile)
	api.PUT("/profile", ctl.putProfile)
	api.DELETE("/profile/override", ctl.clearOverride)

	api.PUT("/listener", ctl.setListener)
	api.GET("/stats", ctl.getStats)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

const pairKey = "sink_pair"

func (ctl *controlAPI) loadPair(c *gin.Context) {
	id, err := domain.ParseParticipantID(c.Param("id"))
	if err != nil {
		badRequest(c, errors.New("bad participant id"))
		return
	}
	sp, ok := ctl.engine.Table.Get(id)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown participant"})
		return
	}
	c.Set(pairKey, sp)
	c.Next()
}

func pair(c *gin.Context) *routing.SinkPair {
	return c.MustGet(pairKey).(*routing.SinkPair)
}

func (ctl *controlAPI) listParticipants(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"participants": ctl.engine.Table.Views(),
		"budget":       ctl.engine.Table.Budget(),
	})
}

func (ctl *controlAPI) getParticipant(c *gin.Context) {
	c.JSON(http.StatusOK, pair(c).View())
}

type volumeRequest struct {
	Volume    *float32 `json:"volume"`
	Monitor   *float32 `json:"monitor"`
	Broadcast *float32 `json:"broadcast"`
}

func (ctl *controlAPI) setVolume(c *gin.Context) {
	var req volumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Volume == nil && req.Monitor == nil && req.Broadcast == nil {
		badRequest(c, errors.New("volume, monitor or broadcast required"))
		return
	}
	sp := pair(c)
	if req.Volume != nil {
		sp.SetVolume(*req.Volume)
	}
	if req.Monitor != nil {
		sp.SetMonitorVolume(*req.Monitor)
	}
	if req.Broadcast != nil {
		sp.SetBroadcastVolume(*req.Broadcast)
	}
	c.JSON(http.StatusOK, sp.View())
}

type muteRequest struct {
	Muted *bool `json:"muted" binding:"required"`
}

func (ctl *controlAPI) setMute(c *gin.Context) {
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sp := pair(c)
	sp.SetMuted(*req.Muted)
	c.JSON(http.StatusOK, sp.View())
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (ctl *controlAPI) setSpatial(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sp := pair(c)
	if *req.Enabled {
		sp.EnableSpatialAudio()
	} else {
		sp.DisableSpatialAudio()
	}
	c.JSON(http.StatusOK, sp.View())
}

func (ctl *controlAPI) setPosition(c *gin.Context) {
	var pos domain.Vec3
	if err := c.ShouldBindJSON(&pos); err != nil {
		badRequest(c, err)
		return
	}
	sp := pair(c)
	sp.SetPosition(pos)
	c.JSON(http.StatusOK, sp.View())
}

type lowPassRequest struct {
	Enabled  *bool   `json:"enabled" binding:"required"`
	CutoffHz float32 `json:"cutoff_hz"`
}

func (ctl *controlAPI) setLowPass(c *gin.Context) {
	var req lowPassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sp := pair(c)
	sp.SetLowPassFilter(*req.Enabled, req.CutoffHz)
	c.JSON(http.StatusOK, sp.View())
}

type echoRequest struct {
	Enabled *bool    `json:"enabled" binding:"required"`
	DelayMs float32  `json:"delay_ms"`
	Decay   *float32 `json:"decay"`
}

func (ctl *controlAPI) setEcho(c *gin.Context) {
	var req echoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sp := pair(c)
	// an omitted decay keeps the current one
	_, _, decay := sp.EchoFilter()
	if req.Decay != nil {
		decay = *req.Decay
	}
	sp.SetEchoFilter(*req.Enabled, req.DelayMs, decay)
	c.JSON(http.StatusOK, sp.View())
}

func (ctl *controlAPI) getBus(c *gin.Context) {
	c.JSON(http.StatusOK, ctl.engine.Bus.State())
}

type busLevelRequest struct {
	Volume *float32 `json:"volume"`
	Muted  *bool    `json:"muted"`
}

func (ctl *controlAPI) bindBusLevel(c *gin.Context) (busLevelRequest, bool) {
	var req busLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return req, false
	}
	if req.Volume == nil && req.Muted == nil {
		badRequest(c, errors.New("volume or muted required"))
		return req, false
	}
	return req, true
}

func (ctl *controlAPI) setMonitorBus(c *gin.Context) {
	req, ok := ctl.bindBusLevel(c)
	if !ok {
		return
	}
	if req.Volume != nil {
		ctl.engine.Bus.SetMonitorBusVolume(*req.Volume)
	}
	if req.Muted != nil {
		ctl.engine.Bus.MuteMonitorBus(*req.Muted)
	}
	c.JSON(http.StatusOK, ctl.engine.Bus.State())
}

func (ctl *controlAPI) setBroadcastBus(c *gin.Context) {
	req, ok := ctl.bindBusLevel(c)
	if !ok {
		return
	}
	if req.Volume != nil {
		ctl.engine.Bus.SetBroadcastBusVolume(*req.Volume)
	}
	if req.Muted != nil {
		ctl.engine.Bus.MuteBroadcastBus(*req.Muted)
	}
	c.JSON(http.StatusOK, ctl.engine.Bus.State())
}

// toggle binds {"enabled": bool} and applies it to the bus.
func (ctl *controlAPI) toggle(set func(bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req toggleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		set(*req.Enabled)
		c.JSON(http.StatusOK, ctl.engine.Bus.State())
	}
}

func (ctl *controlAPI) setCompression(c *gin.Context) { ctl.toggle(ctl.engine.Bus.SetCompression)(c) }
func (ctl *controlAPI) setEQ(c *gin.Context)          { ctl.toggle(ctl.engine.Bus.SetEQ)(c) }
func (ctl *controlAPI) setDualRouting(c *gin.Context) { ctl.toggle(ctl.engine.Bus.SetDualRouting)(c) }

type reverbRequest struct {
	Enabled *bool    `json:"enabled" binding:"required"`
	Amount  *float32 `json:"amount"`
}

func (ctl *controlAPI) setReverb(c *gin.Context) {
	var req reverbRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	amount := ctl.engine.Bus.State().ReverbAmount
	if req.Amount != nil {
		amount = *req.Amount
	}
	ctl.engine.Bus.SetReverb(*req.Enabled, amount)
	c.JSON(http.StatusOK, ctl.engine.Bus.State())
}

type profileResponse struct {
	Profile    domain.PlatformProfile `json:"profile"`
	Overridden bool                   `json:"overridden"`
}

func (ctl *controlAPI) currentProfile() profileResponse {
	if ctl.profiles == nil {
		return profileResponse{Profile: ctl.engine.Profile()}
	}
	p, ok := ctl.profiles.Current()
	if !ok {
		p = ctl.engine.Profile()
	}
	return profileResponse{Profile: p, Overridden: ctl.profiles.Overridden()}
}

func (ctl *controlAPI) getProfile(c *gin.Context) {
	c.JSON(http.StatusOK, ctl.currentProfile())
}

// profileRequest selects by class, by device model, or spells out a full
// profile. Override pins the result against later automatic selection.
type profileRequest struct {
	Class    string                  `json:"class"`
	Model    *string                 `json:"model"`
	Profile  *domain.PlatformProfile `json:"profile"`
	Override bool                    `json:"override"`
}

func (ctl *controlAPI) putProfile(c *gin.Context) {
	if ctl.profiles == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "profile manager unavailable"})
		return
	}
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var p domain.PlatformProfile
	switch {
	case req.Profile != nil:
		p = *req.Profile
	case req.Class != "":
		class, err := domain.ParseDeviceClass(req.Class)
		if err != nil {
			badRequest(c, err)
			return
		}
		p = profile.Select(class)
	case req.Model != nil:
		p = profile.Select(profile.DetectClass(*req.Model))
	default:
		badRequest(c, errors.New("class, model or profile required"))
		return
	}

	apply := ctl.profiles.Apply
	if req.Override {
		apply = ctl.profiles.Override
	}
	changed, err := apply(p)
	if errors.Is(err, profile.ErrRateLocked) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		badRequest(c, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("class", string(p.Class)).Bool("changed", changed).Bool("override", req.Override).Msg("profile request")
	c.JSON(http.StatusOK, ctl.currentProfile())
}

func (ctl *controlAPI) clearOverride(c *gin.Context) {
	if ctl.profiles != nil {
		ctl.profiles.ClearOverride()
	}
	c.JSON(http.StatusOK, ctl.currentProfile())
}

func (ctl *controlAPI) setListener(c *gin.Context) {
	var pos domain.Vec3
	if err := c.ShouldBindJSON(&pos); err != nil {
		badRequest(c, err)
		return
	}
	ctl.engine.SetListenerPosition(pos)
	c.JSON(http.StatusOK, gin.H{"listener": ctl.engine.Router.ListenerPosition()})
}

func (ctl *controlAPI) getStats(c *gin.Context) {
	if ctl.stats != nil {
		c.JSON(http.StatusOK, ctl.stats())
		return
	}
	c.JSON(http.StatusOK, gin.H{"routing": ctl.engine.Stats()})
}
