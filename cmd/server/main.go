package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceRouter/internal/adapters/events"
	router "github.com/dkeye/VoiceRouter/internal/adapters/http"
	"github.com/dkeye/VoiceRouter/internal/adapters/playback"
	"github.com/dkeye/VoiceRouter/internal/adapters/record"
	"github.com/dkeye/VoiceRouter/internal/adapters/rtc"
	sig "github.com/dkeye/VoiceRouter/internal/adapters/signal"
	"github.com/dkeye/VoiceRouter/internal/app"
	"github.com/dkeye/VoiceRouter/internal/app/clock"
	"github.com/dkeye/VoiceRouter/internal/app/ingest"
	"github.com/dkeye/VoiceRouter/internal/app/orch"
	"github.com/dkeye/VoiceRouter/internal/app/profile"
	"github.com/dkeye/VoiceRouter/internal/app/routing"
	"github.com/dkeye/VoiceRouter/internal/config"
	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	class := profile.DetectClass(cfg.Audio.DeviceModel)
	if cfg.Audio.DeviceClass != "" {
		class = domain.DeviceClass(cfg.Audio.DeviceClass)
	}
	startProfile := profile.Select(class)

	budgetPolicy, err := app.ParseBudgetPolicy(cfg.Policy.OnOverBudget)
	if err != nil {
		log.Fatal().Err(err).Msg("bad voice budget policy")
	}

	mixer := playback.NewMixer(playback.Options{
		MasterGain:   cfg.Playback.MasterGain,
		Channels:     cfg.Audio.Channels,
		BufferCycles: cfg.Playback.BufferCycles,
	})
	bus := cfg.Audio.BusState()
	engine := routing.New(routing.Options{
		Profile:             startProfile,
		Channels:            cfg.Audio.Channels,
		Bus:                 &bus,
		SpatialDefault:      cfg.Audio.SpatialDefault,
		ExternalSpatializer: cfg.Audio.ExternalSpatializer,
		Sinks:               mixer,
		Backend:             mixer,
		Policy:              budgetPolicy,
	})

	pump := clock.NewPump(engine.Router, startProfile, clock.Options{
		InboxSize:       cfg.Audio.InboxSize,
		Channels:        cfg.Audio.Channels,
		MaxQueuedCycles: cfg.Audio.MaxQueuedCycles,
	})

	reg := app.NewRegistry()
	roster := core.NewRoster(domain.Room{ID: "main", Name: "main"})
	o := &orch.Orchestrator{
		Registry: reg,
		Roster:   roster,
		Engine:   engine,
		Pump:     pump,
		Policy:   app.SimplePolicy{},
		Decoders: rtc.NewOpusDecoder,
	}
	feeds := ingest.NewManager(o, startProfile.SampleRateHz)
	o.Feeds = feeds

	profiles := profile.NewManager(engine, pump, feeds)
	if _, err := profiles.Apply(startProfile); err != nil {
		log.Fatal().Err(err).Msg("apply platform profile")
	}

	queue := events.NewQueue(cfg.Audio.EventQueue, cfg.Audio.MeterEvery)
	engine.Subscribe(queue)
	hub := events.NewHub()
	go hub.Run(ctx, queue.Events())

	var rec *record.Recorder
	if cfg.Record.Enabled {
		rec, err = record.New(cfg.Record.Path, record.Options{
			SampleRate: startProfile.SampleRateHz,
			Channels:   cfg.Audio.Channels,
			Queue:      cfg.Record.Queue,
		})
		if err != nil {
			log.Error().Err(err).Msg("recorder disabled")
		} else {
			engine.Subscribe(rec)
			profiles.Guard(rec)
		}
	}

	var player *playback.Player
	if cfg.Playback.Enabled {
		player, err = playback.NewPlayer(mixer, startProfile.SampleRateHz, cfg.Audio.Channels, cfg.Playback.Latency)
		if err != nil {
			log.Warn().Err(err).Msg("device playback disabled")
		} else {
			profiles.Guard(player)
		}
	}

	pumpCtx, stopPump := context.WithCancel(context.Background())
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		pump.Run(pumpCtx)
	}()

	signalCtl := sig.NewSignalWSController(o, sig.Options{
		RTC:        rtc.Config(cfg.RTC.STUNURLs),
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		JoinLimit:  cfg.Policy.JoinLimit,
		JoinWindow: cfg.Policy.JoinWindow,
	})

	stats := func() any {
		out := map[string]any{
			"routing":        engine.Stats(),
			"pump":           pump.Stats(),
			"ingest":         feeds.Stats(),
			"playback":       mixer.Stats(),
			"events_dropped": queue.Dropped(),
			"sessions":       reg.SessionCount(),
			"members":        roster.MemberCount(),
		}
		if rec != nil {
			out["record"] = rec.Stats()
		}
		return out
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Engine:   engine,
		Profiles: profiles,
		Signal:   signalCtl,
		Events:   hub,
		Stats:    stats,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("class", string(startProfile.Class)).Msg("Voice router started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	feeds.StopAll()
	stopPump()
	<-pumpDone
	engine.Close()
	if rec != nil {
		if err := rec.Close(); err != nil {
			log.Error().Err(err).Msg("close recorder")
		}
	}
	if player != nil {
		if err := player.Close(); err != nil {
			log.Error().Err(err).Msg("close player")
		}
	}
	log.Info().Msg("Server exited gracefully")
}
