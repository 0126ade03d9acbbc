package orch

import (
	"context"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) BindMediaHandlers(mc core.MediaConnection, sid core.SessionID) {
	mc.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			log.Info().Str("module", "orch").Str("sid", string(sid)).Str("kind", track.Kind().String()).Msg("ignoring non-audio track")
			return
		}
		o.OnTrack(trackCtx, sid, func() (*rtp.Packet, error) {
			pkt, _, err := track.ReadRTP()
			return pkt, err
		})
	})
	mc.OnClosed(func() { o.OnMediaDisconnect(sid) })
}

// OnTrack starts decoding a participant's remote audio. Audio from a
// session that has not joined is ignored.
func (o *Orchestrator) OnTrack(ctx context.Context, sid core.SessionID, read func() (*rtp.Packet, error)) {
	if o.Feeds == nil || o.Decoders == nil {
		return
	}
	sess, ok := o.Registry.GetSession(sid)
	if !ok || sess.Media() == nil {
		return
	}
	if !o.Roster.Has(sid) {
		log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("OnTrack: session not joined")
		return
	}
	o.Feeds.Start(ctx, sess.Participant().ID, read, o.Decoders())
}

func (o *Orchestrator) OnMediaDisconnect(sid core.SessionID) {
	if o.Feeds == nil {
		return
	}
	if sess, ok := o.Registry.GetSession(sid); ok {
		o.Feeds.Stop(sess.Participant().ID)
	}
}

func (o *Orchestrator) cleanupMedia(sid core.SessionID) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	if o.Feeds != nil {
		o.Feeds.Stop(sess.Participant().ID)
	}
	if mc := sess.Media(); mc != nil {
		mc.Close()
		sess.UpdateMedia(nil)
	}
}
