package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/embedops/mediacore/internal/models"
)

// SceneHandler serves the scene catalogue CRUD endpoints.
type SceneHandler struct {
	app *App
}

// NewSceneHandler creates a new scene handler.
func NewSceneHandler(app *App) *SceneHandler {
	return &SceneHandler{app: app}
}

// Register registers the scene routes with the API.
func (h *SceneHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listScenes",
		Method:      "GET",
		Path:        "/api/v1/scenes",
		Summary:     "List the scene catalogue",
		Tags:        []string{"Scenes"},
	}, h.ListScenes)

	huma.Register(api, huma.Operation{
		OperationID: "createScene",
		Method:      "POST",
		Path:        "/api/v1/scenes",
		Summary:     "Create a scene",
		Tags:        []string{"Scenes"},
	}, h.CreateScene)

	huma.Register(api, huma.Operation{
		OperationID: "updateScene",
		Method:      "PUT",
		Path:        "/api/v1/scenes/{id}",
		Summary:     "Replace a scene",
		Tags:        []string{"Scenes"},
	}, h.UpdateScene)

	huma.Register(api, huma.Operation{
		OperationID: "deleteScene",
		Method:      "DELETE",
		Path:        "/api/v1/scenes/{id}",
		Summary:     "Delete a scene",
		Tags:        []string{"Scenes"},
	}, h.DeleteScene)
}

// ListScenesInput is the input for listing scenes.
type ListScenesInput struct{}

// ListScenesOutput is the output for listing scenes.
type ListScenesOutput struct {
	Body struct {
		Scenes []models.Scene `json:"scenes"`
	}
}

// ListScenes returns every scene in the catalogue.
func (h *SceneHandler) ListScenes(ctx context.Context, input *ListScenesInput) (*ListScenesOutput, error) {
	scenes, err := h.app.Scenes.List()
	if err != nil {
		return nil, mapError(err)
	}
	out := &ListScenesOutput{}
	out.Body.Scenes = scenes
	return out, nil
}

// SceneBody is the request body shared by create and update.
type SceneBody struct {
	Scene models.Scene `json:"scene"`
}

// CreateSceneInput is the input for creating a scene.
type CreateSceneInput struct {
	Body SceneBody
}

// SceneOutput wraps a single scene response.
type SceneOutput struct {
	Body models.Scene
}

// CreateScene adds a new scene to the catalogue.
func (h *SceneHandler) CreateScene(ctx context.Context, input *CreateSceneInput) (*SceneOutput, error) {
	sc := input.Body.Scene
	if err := h.app.Scenes.Upsert(&sc); err != nil {
		return nil, mapError(err)
	}
	return &SceneOutput{Body: sc}, nil
}

// UpdateSceneInput is the input for replacing a scene.
type UpdateSceneInput struct {
	ID   string `path:"id"`
	Body SceneBody
}

// UpdateScene replaces an existing scene wholesale.
func (h *SceneHandler) UpdateScene(ctx context.Context, input *UpdateSceneInput) (*SceneOutput, error) {
	sc := input.Body.Scene
	sc.ID = input.ID
	if err := h.app.Scenes.Upsert(&sc); err != nil {
		return nil, mapError(err)
	}
	return &SceneOutput{Body: sc}, nil
}

// DeleteSceneInput identifies the scene to delete.
type DeleteSceneInput struct {
	ID string `path:"id"`
}

// DeleteSceneOutput is the output for scene deletion.
type DeleteSceneOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// DeleteScene removes a scene from the catalogue.
func (h *SceneHandler) DeleteScene(ctx context.Context, input *DeleteSceneInput) (*DeleteSceneOutput, error) {
	if err := h.app.Scenes.Delete(input.ID); err != nil {
		return nil, mapError(err)
	}
	out := &DeleteSceneOutput{}
	out.Body.Status = "ok"
	return out, nil
}
