package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meetcore/internal/core/domain"
	"meetcore/internal/core/ports"
	"meetcore/internal/core/services"
	httphandlers "meetcore/internal/handlers/http"
	"meetcore/internal/infrastructure/media"
	"meetcore/internal/infrastructure/middleware"
	"meetcore/internal/infrastructure/monitoring"
	"meetcore/internal/infrastructure/reliability"
	"meetcore/internal/infrastructure/rest"
	signalinfra "meetcore/internal/infrastructure/signal"
	webrtcinfra "meetcore/internal/infrastructure/webrtc"
	"meetcore/pkg/config"
	"meetcore/pkg/logger"
	"meetcore/pkg/retry"
	"meetcore/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath  = flag.String("config", "configs/config.yaml", "path to config file")
		meetingID   = flag.String("meeting", "", "meeting code to join (MEET-XXXXXX)")
		userID      = flag.String("user", "", "user id (ignored when -token is set)")
		displayName = flag.String("name", "", "display name")
		token       = flag.String("token", "", "access token carrying the identity claims")
		audioFile   = flag.String("audio-file", "", "ogg/opus file used as microphone input")
		videoFile   = flag.String("video-file", "", "ivf/vp8 file used as camera input")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if *meetingID == "" {
		log.Fatal("a meeting code is required (-meeting MEET-XXXXXX)")
	}

	identity := resolveIdentity(*token, *userID, *displayName, log)

	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "meetcore",
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer tracerProvider.Shutdown(context.Background())

	// REST collaborator, writes retried on top of the client's breaker
	restClient := rest.NewClient(rest.Config{
		BaseURL:        cfg.API.BaseURL,
		Timeout:        cfg.API.Timeout,
		RetryCount:     cfg.API.RetryCount,
		RetryWaitTime:  cfg.API.RetryWaitTime,
		AuthToken:      cfg.API.AuthToken,
		BreakerEnabled: cfg.API.BreakerEnabled,
	}, log)
	apiClient := reliability.NewMeetingAPIWrapper(restClient, retry.DefaultConfig(), log)

	// Signaling channel
	transport := signalinfra.NewClient(signalinfra.Config{
		HubURL:            cfg.Signal.HubURL,
		PingInterval:      cfg.Signal.PingInterval,
		PongTimeout:       cfg.Signal.PongTimeout,
		ReconnectSchedule: cfg.Signal.ReconnectSchedule,
		SendQueueSize:     cfg.Signal.SendQueueSize,
		SendRetryAttempts: cfg.Signal.SendRetryAttempts,
		MessagesPerSecond: cfg.Signal.MessagesPerSecond,
		MessageBurst:      cfg.Signal.MessageBurst,
	}, log)

	// Peer link factory
	webrtcCfg := webrtcinfra.DefaultConfig()
	if len(cfg.WebRTC.ICEServers) > 0 {
		webrtcCfg.ICEServers = nil
		for _, s := range cfg.WebRTC.ICEServers {
			webrtcCfg.ICEServers = append(webrtcCfg.ICEServers, webrtc.ICEServer{
				URLs:       s.URLs,
				Username:   s.Username,
				Credential: s.Credential,
			})
		}
	}
	webrtcCfg.PortRange.Min = cfg.WebRTC.PortRange.Min
	webrtcCfg.PortRange.Max = cfg.WebRTC.PortRange.Max
	factory := webrtcinfra.NewFactory(webrtcCfg, log)

	// Local capture
	devices := media.NewEngine(buildMediaSources(*audioFile, *videoFile, log), log)

	var metrics ports.Metrics = ports.NopMetrics{}
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector()
	}

	meeting := services.NewMeeting(services.JoinParams{
		SessionID:   domain.SessionID(*meetingID),
		UserID:      domain.ParticipantID(identity.UserID),
		DisplayName: identity.DisplayName,
		WantAudio:   cfg.Media.AudioEnabled,
		WantVideo:   cfg.Media.VideoEnabled,
	}, services.Deps{
		Transport: transport,
		API:       apiClient,
		Devices:   devices,
		Factory:   factory,
		Sink:      &logSink{log: log},
		Metrics:   metrics,
		Reconcile: services.ReconcileConfig{
			PollInterval: cfg.Reconcile.PollInterval,
			MaxAttempts:  cfg.Reconcile.MaxAttempts,
		},
		Logger: log,
	})

	joinCtx, joinCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := meeting.Join(joinCtx); err != nil {
		joinCancel()
		log.Fatalw("failed to join meeting", "meeting_id", *meetingID, "error", err)
	}
	joinCancel()

	// UI intent/read API
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))
	httphandlers.NewMeetingHandler(meeting).SetupRoutes(router)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting meetcore UI API on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("UI API server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Leaving meeting...")
	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := meeting.Leave(leaveCtx); err != nil {
		log.Errorw("error leaving meeting", "error", err)
	}
	leaveCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
	}

	log.Info("meetcore stopped")
}

func resolveIdentity(token, userID, name string, log *zap.SugaredLogger) rest.Identity {
	if token != "" {
		identity, err := rest.ParseIdentity(token)
		if err != nil {
			log.Fatalw("invalid access token", "error", err)
		}
		return identity
	}
	if userID == "" {
		log.Fatal("either -token or -user is required")
	}
	if name == "" {
		name = userID
	}
	return rest.Identity{UserID: userID, DisplayName: name}
}

func buildMediaSources(audioFile, videoFile string, log *zap.SugaredLogger) media.Config {
	cfg := media.Config{AudioSource: media.SilenceSource{}}

	if audioFile != "" {
		source, err := media.NewOggFileSource(audioFile)
		if err != nil {
			log.Warnw("audio file unusable, falling back to silence", "path", audioFile, "error", err)
		} else {
			cfg.AudioSource = source
		}
	}
	if videoFile != "" {
		source, err := media.NewIVFFileSource(videoFile)
		if err != nil {
			log.Warnw("video file unusable, joining without camera", "path", videoFile, "error", err)
		} else {
			cfg.VideoSource = source
			if screen, err := media.NewIVFFileSource(videoFile); err == nil {
				cfg.ScreenSource = screen
			}
		}
	}
	return cfg
}

// logSink surfaces core events to the log until a real UI attaches.
type logSink struct {
	log *zap.SugaredLogger
}

func (s *logSink) OnRosterChanged(roster []domain.Participant) {
	s.log.Infow("roster changed", "size", len(roster))
}

func (s *logSink) OnConnectionState(state domain.ConnectionState) {
	s.log.Infow("connection state", "state", state)
}

func (s *logSink) OnLocalMedia(state domain.LocalMediaState) {
	s.log.Infow("local media",
		"audio", state.AudioEnabled, "video", state.VideoEnabled, "screen", state.ScreenSharing)
}

func (s *logSink) OnRemoteMedia(participantID domain.ParticipantID, handle ports.RemoteHandle) {
	s.log.Infow("remote media attached",
		"participant_id", participantID,
		"connection_id", handle.ConnectionID(),
		"kinds", handle.Kinds())
}

func (s *logSink) OnChatMessage(msg domain.ChatMessage) {
	s.log.Infow("chat message", "sender", msg.Sender)
}

func (s *logSink) OnSessionEnded(reason string) {
	s.log.Infow("session ended", "reason", reason)
}

func (s *logSink) OnNotice(text string) {
	s.log.Infow("notice", "text", text)
}
