package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/embedops/mediacore/internal/capture"
	"github.com/embedops/mediacore/internal/config"
	"github.com/embedops/mediacore/internal/database/migrations"
	"github.com/embedops/mediacore/internal/events"
	"github.com/embedops/mediacore/internal/hoststat"
	internalhttp "github.com/embedops/mediacore/internal/http"
	"github.com/embedops/mediacore/internal/http/handlers"
	"github.com/embedops/mediacore/internal/ingest"
	"github.com/embedops/mediacore/internal/mixer"
	"github.com/embedops/mediacore/internal/models"
	"github.com/embedops/mediacore/internal/pipeline"
	"github.com/embedops/mediacore/internal/recording"
	"github.com/embedops/mediacore/internal/relaycred"
	"github.com/embedops/mediacore/internal/repository"
	"github.com/embedops/mediacore/internal/scene"
	"github.com/embedops/mediacore/internal/scheduler"
	"github.com/embedops/mediacore/internal/startup"
	"github.com/embedops/mediacore/internal/storage"
	"github.com/embedops/mediacore/internal/supervisor"
	"github.com/embedops/mediacore/internal/version"
	"github.com/embedops/mediacore/internal/vpu"
	"github.com/embedops/mediacore/pkg/format"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mediacore capture, mixing, and control-API process",
	Long: `Start the mediacore process: brings up the VPU budget, probes and
starts every configured camera's ingest worker, starts the supervisor tick
loop, the scene store, the mixer, the event bus, and the recording manager,
then serves the control API.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "mediacore.db", "Database file path")
	serveCmd.Flags().String("recording-root", "data/recordings", "Recording root directory")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("database.path", serveCmd.Flags().Lookup("database"))
	mustBindPFlag("storage.recording_root", serveCmd.Flags().Lookup("recording-root"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if orphansRemoved, err := startup.CleanupSystemTempDirs(logger); err != nil {
		logger.Warn("failed to clean orphaned temp directories", slog.String("error", err.Error()))
	} else if orphansRemoved > 0 {
		logger.Info("cleaned orphaned temp directories on startup", slog.Int("removed_count", orphansRemoved))
	}

	db, err := initDatabase(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}

	if err := runMigrations(db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	sandbox, err := storage.NewSandbox(cfg.Storage.RecordingRoot)
	if err != nil {
		return fmt.Errorf("initializing recording storage: %w", err)
	}

	budget := vpu.New(cfg.VPU.MaxEncodeSessions, cfg.VPU.MaxDecodeSessions)
	bus := events.New()
	if len(cfg.Webhooks.URLs) > 0 {
		webhookCfg := events.DefaultWebhookConfig()
		webhookCfg.URLs = cfg.Webhooks.URLs
		dispatcher := events.NewWebhookDispatcher(webhookCfg, logger, sandbox)
		bus.SetWebhookDispatcher(dispatcher)
	}

	cameras := buildCameras(cfg, budget, bus, logger)

	sup := supervisor.New(cfg.Supervisor.TickInterval, func() []supervisor.Probeable {
		probeables := make([]supervisor.Probeable, 0, len(cameras))
		for _, w := range cameras {
			probeables = append(probeables, w)
		}
		return probeables
	}, logger)

	sceneRepo := repository.NewSceneRepository(db)
	sceneStore, err := scene.New(sceneRepo, cameraCatalogue(cameras))
	if err != nil {
		return fmt.Errorf("initializing scene store: %w", err)
	}

	mixerCfg := mixer.Config{
		FFmpegPath:      cfg.FFmpeg.Path,
		CanvasWidth:     cfg.Mixer.CanvasWidth,
		CanvasHeight:    cfg.Mixer.CanvasHeight,
		FrameRate:       cfg.Mixer.FrameRate,
		BackgroundColor: cfg.Mixer.BackgroundColor,
		ProgramURL:      fmt.Sprintf("rtsp://%s:%d", cfg.MediaServer.RTSPHost, cfg.MediaServer.RTSPPort),
		MountPath:       "program",
		MaxFanIn:        len(cameras),
	}
	mixerSources := mediaServerMounts{host: cfg.MediaServer.RTSPHost, port: cfg.MediaServer.RTSPPort}
	mx := mixer.New(mixerCfg, sceneStore, mixerSources, budget, bus, nil, logger)

	recordingRepo := repository.NewRecordingRepository(db)
	recordingCfg := recording.Config{
		RecordingRoot:  cfg.Storage.RecordingRoot,
		WarningGB:      cfg.Recording.WarningGB,
		MinGB:          cfg.Recording.MinGB,
		RotateMaxBytes: cfg.Recording.RotateMaxBytes.Bytes(),
		RotateMaxWall:  cfg.Recording.RotateMaxWall.Duration(),
	}
	recordingMgr := recording.New(recordingCfg, recordingRepo, hoststat.New(), sandbox, bus, logger)

	if active, err := recordingRepo.ListActive(); err != nil {
		logger.Warn("failed to list active recording sessions for crash recovery", slog.String("error", err.Error()))
	} else {
		for _, sess := range active {
			if err := recordingMgr.Recover(sess.ID); err != nil {
				logger.Warn("failed to recover recording session", slog.String("session_id", sess.ID), slog.String("error", err.Error()))
			}
		}
	}

	serverConfig := internalhttp.ServerConfig{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	app := handlers.NewApp(version.Version, logger)
	app.Cameras = cameras
	app.Mixer = mx
	app.Scenes = sceneStore
	app.Recording = recordingMgr
	app.Bus = bus
	app.Budget = budget
	app.Logs = logService

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.RelayCred.Endpoint != "" {
		relayCache := relaycred.New(cfg.RelayCred.Endpoint, logger)
		relayCache.Start(ctx)
		app.RelayCred = relayCache
	}

	handlers.RegisterRoutes(server.API(), server.Router(), app)

	sup.Start(ctx)

	const rotationCron = "0 * * * * *"
	rotateSched := scheduler.New(logger)
	if err := rotateSched.Upsert("recording-rotation", rotationCron, func() {
		recordingMgr.RotateIfNeeded(ctx)
	}); err != nil {
		return fmt.Errorf("scheduling recording rotation: %w", err)
	}
	rotateSched.Start()
	defer rotateSched.Stop()
	logger.Info("recording rotation scheduled", slog.String("schedule", format.CronDescription(rotationCron)))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal, draining", slog.String("signal", sig.String()))
		drain(context.Background(), sup, mx, cameras, recordingMgr, logger)
		cancel()
	}()

	logger.Info("starting mediacore server",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("version", version.Version),
		slog.Int("cameras", len(cameras)),
	)

	return server.ListenAndServe(ctx)
}

// drain implements the §5 shutdown sequence: stop the supervisor, stop the
// mixer, stop each ingest worker, finalize any active session.
func drain(ctx context.Context, sup *supervisor.Supervisor, mx *mixer.Mixer, cameras map[models.CameraID]*ingest.Worker, recordingMgr *recording.Manager, logger *slog.Logger) {
	drainCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	sup.Stop()

	if err := mx.Stop(); err != nil {
		logger.Warn("mixer stop during drain failed", slog.String("error", err.Error()))
	}

	var wg sync.WaitGroup
	for _, w := range cameras {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Disable()
		}()
	}
	wg.Wait()

	if sess := recordingMgr.Active(); sess != nil {
		if _, err := recordingMgr.Stop(drainCtx, sess.ID); err != nil {
			logger.Warn("recording stop during drain failed", slog.String("error", err.Error()))
		}
	}
}

// buildCameras constructs one ingest worker per configured camera.
func buildCameras(cfg *config.Config, budget *vpu.Budget, bus *events.Bus, logger *slog.Logger) map[models.CameraID]*ingest.Worker {
	prober := capture.NewV4L2Prober()
	workers := make(map[models.CameraID]*ingest.Worker, len(cfg.Cameras))
	for _, cc := range cfg.Cameras {
		class := models.CapabilityDirectHDMI
		if cc.CapabilityClass == string(models.CapabilityBridgedSubdevice) {
			class = models.CapabilityBridgedSubdevice
		}
		desc := models.DeviceDescriptor{
			ID:                models.CameraID(cc.ID),
			DevicePath:        cc.DevicePath,
			CapabilityClass:   class,
			MaxWidth:          cc.MaxWidth,
			MaxHeight:         cc.MaxHeight,
			CodecPreference:   cc.CodecPreference,
			TargetBitrateKbps: cc.TargetBitrateKbps,
			Enabled:           cc.Enabled,
		}
		w := ingest.New(desc, prober, budget, bus, cfg.FFmpeg.Path, logger)
		workers[desc.ID] = w
		if cc.Enabled {
			w.Enable()
		}
	}
	return workers
}

// cameraCatalogue adapts a worker map to scene.KnownCameras.
type cameraCatalogue map[models.CameraID]*ingest.Worker

func (c cameraCatalogue) Exists(id models.CameraID) bool {
	_, ok := c[id]
	return ok
}

// mediaServerMounts adapts the media server's fixed per-camera RTSP path
// convention (cam0..cam3) to mixer.CameraInput.
type mediaServerMounts struct {
	host string
	port int
}

func (m mediaServerMounts) StreamMount(id models.CameraID) (pipeline.MixerSlotSpec, bool) {
	return pipeline.MixerSlotSpec{
		Input: models.MixerInput{
			Kind:     models.InputCamera,
			CameraID: id,
			FilePath: fmt.Sprintf("rtsp://%s:%d/%s", m.host, m.port, id),
		},
	}, true
}

func initDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func runMigrations(db *gorm.DB, logger *slog.Logger) error {
	migrator := migrations.NewMigrator(db, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	return migrator.Up(context.Background())
}
