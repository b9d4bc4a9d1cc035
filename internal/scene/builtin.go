package scene

import (
	"fmt"

	"github.com/embedops/mediacore/internal/models"
)

const (
	canvasWidth  = 1920
	canvasHeight = 1080
)

// BuiltinScenes returns the fixed set of scenes seeded at cold start so a
// fresh install can mix without prior configuration: fullscreen per camera
// (cam1-cam4), a 2x2 quad, a 2-up side-by-side, and picture-in-picture.
func BuiltinScenes() []models.Scene {
	var scenes []models.Scene

	for i := 1; i <= 4; i++ {
		camID := models.CameraID(fmt.Sprintf("cam%d", i))
		scenes = append(scenes, models.Scene{
			ID:           fmt.Sprintf("builtin-fullscreen-cam%d", i),
			Name:         fmt.Sprintf("Fullscreen - Camera %d", i),
			Builtin:      true,
			CanvasWidth:  canvasWidth,
			CanvasHeight: canvasHeight,
			FrameRate:    30,
			BackgroundColor: "black",
			Slots: []models.LayoutSlot{
				{
					Input:   models.MixerInput{Kind: models.InputCamera, CameraID: camID},
					X:       0, Y: 0, Width: canvasWidth, Height: canvasHeight,
					ZOrder: 0, Opacity: 1, AudioGain: 1, Visible: true,
				},
			},
		})
	}

	scenes = append(scenes, models.Scene{
		ID:              "builtin-quad",
		Name:            "2x2 Quad",
		Builtin:         true,
		CanvasWidth:     canvasWidth,
		CanvasHeight:    canvasHeight,
		FrameRate:       30,
		BackgroundColor: "black",
		Slots: quadSlots(),
	})

	scenes = append(scenes, models.Scene{
		ID:              "builtin-2up",
		Name:            "2-up Side by Side",
		Builtin:         true,
		CanvasWidth:     canvasWidth,
		CanvasHeight:    canvasHeight,
		FrameRate:       30,
		BackgroundColor: "black",
		Slots: []models.LayoutSlot{
			{Input: models.MixerInput{Kind: models.InputCamera, CameraID: "cam1"}, X: 0, Y: 0, Width: canvasWidth / 2, Height: canvasHeight, ZOrder: 0, Opacity: 1, AudioGain: 1, Visible: true},
			{Input: models.MixerInput{Kind: models.InputCamera, CameraID: "cam2"}, X: canvasWidth / 2, Y: 0, Width: canvasWidth / 2, Height: canvasHeight, ZOrder: 1, Opacity: 1, AudioGain: 0, Visible: true},
		},
	})

	const pipW, pipH = 480, 270
	scenes = append(scenes, models.Scene{
		ID:              "builtin-pip",
		Name:            "Picture in Picture",
		Builtin:         true,
		CanvasWidth:     canvasWidth,
		CanvasHeight:    canvasHeight,
		FrameRate:       30,
		BackgroundColor: "black",
		Slots: []models.LayoutSlot{
			{Input: models.MixerInput{Kind: models.InputCamera, CameraID: "cam1"}, X: 0, Y: 0, Width: canvasWidth, Height: canvasHeight, ZOrder: 0, Opacity: 1, AudioGain: 1, Visible: true},
			{Input: models.MixerInput{Kind: models.InputCamera, CameraID: "cam2"}, X: canvasWidth - pipW - 20, Y: canvasHeight - pipH - 20, Width: pipW, Height: pipH, ZOrder: 1, Opacity: 1, AudioGain: 0, Visible: true},
		},
	})

	return scenes
}

func quadSlots() []models.LayoutSlot {
	halfW, halfH := canvasWidth/2, canvasHeight/2
	positions := [][2]int{{0, 0}, {halfW, 0}, {0, halfH}, {halfW, halfH}}
	slots := make([]models.LayoutSlot, 0, 4)
	for i, pos := range positions {
		camID := models.CameraID(fmt.Sprintf("cam%d", i+1))
		slots = append(slots, models.LayoutSlot{
			Input:     models.MixerInput{Kind: models.InputCamera, CameraID: camID},
			X:         pos[0],
			Y:         pos[1],
			Width:     halfW,
			Height:    halfH,
			ZOrder:    i,
			Opacity:   1,
			AudioGain: boolToGain(i == 0),
			Visible:   true,
		})
	}
	return slots
}

func boolToGain(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
