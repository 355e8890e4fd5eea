package models

// HealthData is the body of the health check.
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// VersionData mirrors version.Info.
type VersionData struct {
	Version   string `json:"version" example:"v0.3.1" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"4f2a9c1d8e7b" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go compiler version"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// MessageResponse acknowledges an operation without returning data.
type MessageResponse struct {
	Body struct {
		Message string `json:"message" example:"profile deleted" doc:"Operation result message"`
	}
}
