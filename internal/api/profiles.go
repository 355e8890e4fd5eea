package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/v4lstream/internal/api/models"
	"github.com/smazurov/v4lstream/internal/capture"
	"github.com/smazurov/v4lstream/internal/config"
)

type ProfileIDInput struct {
	ID string `path:"id" example:"desk" doc:"Profile identifier"`
}

type ProfilePutInput struct {
	ProfileIDInput
	Body models.ProfileRequestData
}

type ProfileSnapshotInput struct {
	ProfileIDInput
	Skip int `query:"skip" minimum:"0" maximum:"300" default:"0" doc:"Frames to discard before the snapshot"`
}

func toProfileData(p config.Profile) models.ProfileData {
	return models.ProfileData{
		ID:          p.ID,
		Device:      p.Device,
		Width:       p.Width,
		Height:      p.Height,
		PixelFormat: p.PixelFormat,
		FPS:         p.FPS,
		Buffers:     p.Buffers,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (s *Server) registerProfileRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-profiles",
		Method:      http.MethodGet,
		Path:        "/api/profiles",
		Summary:     "List Profiles",
		Description: "List stored capture profiles",
		Tags:        []string{"profiles"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.ProfileListResponse, error) {
		list := s.profiles.List()
		out := make([]models.ProfileData, 0, len(list))
		for _, p := range list {
			out = append(out, toProfileData(p))
		}
		return &models.ProfileListResponse{
			Body: models.ProfileListData{Profiles: out, Count: len(out)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/api/profiles/{id}",
		Summary:     "Get Profile",
		Description: "Get one capture profile",
		Tags:        []string{"profiles"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *ProfileIDInput) (*models.ProfileResponse, error) {
		p, ok := s.profiles.Get(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("profile not found: " + input.ID)
		}
		return &models.ProfileResponse{Body: toProfileData(p)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "put-profile",
		Method:      http.MethodPut,
		Path:        "/api/profiles/{id}",
		Summary:     "Save Profile",
		Description: "Create or replace a capture profile",
		Tags:        []string{"profiles"},
		Security:    withAuth(),
		Errors:      []int{401, 422, 500},
	}, func(_ context.Context, input *ProfilePutInput) (*models.ProfileResponse, error) {
		if _, err := capture.ParseFourCC(input.Body.PixelFormat); err != nil {
			return nil, huma.Error422UnprocessableEntity("invalid pixel format", err)
		}
		p := config.Profile{
			ID:          input.ID,
			Device:      input.Body.Device,
			Width:       input.Body.Width,
			Height:      input.Body.Height,
			PixelFormat: input.Body.PixelFormat,
			FPS:         input.Body.FPS,
			Buffers:     input.Body.Buffers,
		}
		if err := p.Validate(); err != nil {
			return nil, huma.Error422UnprocessableEntity("invalid profile", err)
		}
		saved, err := s.profiles.Put(p)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to save profile", err)
		}
		s.logger.Info("Profile saved", "id", saved.ID, "device", saved.Device)
		return &models.ProfileResponse{Body: toProfileData(saved)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-profile",
		Method:      http.MethodDelete,
		Path:        "/api/profiles/{id}",
		Summary:     "Delete Profile",
		Description: "Delete a capture profile",
		Tags:        []string{"profiles"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 500},
	}, func(_ context.Context, input *ProfileIDInput) (*models.MessageResponse, error) {
		if err := s.profiles.Remove(input.ID); err != nil {
			return nil, toHTTPError("failed to delete profile", err)
		}
		s.logger.Info("Profile deleted", "id", input.ID)
		resp := &models.MessageResponse{}
		resp.Body.Message = "profile deleted"
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "profile-snapshot",
		Method:      http.MethodPost,
		Path:        "/api/profiles/{id}/snapshot",
		Summary:     "Profile Snapshot",
		Description: "Open the profile's device with its settings and return one frame",
		Tags:        []string{"profiles"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 500, 503, 504},
	}, func(ctx context.Context, input *ProfileSnapshotInput) (*models.SnapshotResponse, error) {
		p, ok := s.profiles.Get(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("profile not found: " + input.ID)
		}
		settings, err := capture.SettingsFromProfile(p)
		if err != nil {
			return nil, huma.Error500InternalServerError("stored profile is invalid", err)
		}
		path, err := s.devices.Resolve(p.Device)
		if err != nil {
			return nil, toHTTPError("unknown device", err)
		}
		return s.snapshot(ctx, path, settings, input.Skip)
	})
}
