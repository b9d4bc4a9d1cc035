// Package handlers wires the mediacore control-plane components (ingest,
// mixer, recording, scenes, the VPU budget, and the event bus) onto the
// huma/chi HTTP surface described in the control API's endpoint table.
package handlers

import (
	"log/slog"
	"sort"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/embedops/mediacore/internal/events"
	"github.com/embedops/mediacore/internal/hoststat"
	"github.com/embedops/mediacore/internal/ingest"
	"github.com/embedops/mediacore/internal/mixer"
	"github.com/embedops/mediacore/internal/models"
	"github.com/embedops/mediacore/internal/recording"
	"github.com/embedops/mediacore/internal/relaycred"
	"github.com/embedops/mediacore/internal/scene"
	"github.com/embedops/mediacore/internal/service/logs"
	"github.com/embedops/mediacore/internal/vpu"
)

// App bundles every singleton actor the control API fronts. One App is
// built at startup and shared by all handler types registered against it.
type App struct {
	Version   string
	StartTime time.Time

	Cameras   map[models.CameraID]*ingest.Worker
	Mixer     *mixer.Mixer
	Scenes    *scene.Store
	Recording *recording.Manager
	Bus       *events.Bus
	Budget    *vpu.Budget
	HostStat  *hoststat.Reporter
	RelayCred *relaycred.Cache
	Logs      *logs.Service
	Logger    *slog.Logger
}

// NewApp constructs an App. StartTime defaults to now.
func NewApp(version string, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		Version:   version,
		StartTime: time.Now(),
		Cameras:   make(map[models.CameraID]*ingest.Worker),
		HostStat:  hoststat.New(),
		Logs:      logs.New(),
		Logger:    logger,
	}
}

// sortedCameraIDs returns camera IDs in stable display order.
func (a *App) sortedCameraIDs() []models.CameraID {
	ids := make([]models.CameraID, 0, len(a.Cameras))
	for id := range a.Cameras {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RegisterRoutes registers every handler group's operations with api, and
// mounts the WebSocket events route on router. Called once at startup with
// the Server's API() and Router().
func RegisterRoutes(api huma.API, router chi.Router, app *App) {
	NewHealthHandler(app).Register(api)
	NewCapabilitiesHandler(app).Register(api)
	NewCameraHandler(app).Register(api)
	NewRecordingHandler(app).Register(api)
	NewSceneHandler(app).Register(api)
	NewMixerHandler(app).Register(api)
	NewDiskHandler(app).Register(api)
	NewEventsHandler(app).Mount(router)
	NewLogsHandler(app).Register(api)
	NewLogsHandler(app).Mount(router)
}
