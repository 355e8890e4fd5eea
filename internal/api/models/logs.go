package models

// LogEntryData is one buffered log record.
type LogEntryData struct {
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"capture" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

type LogListData struct {
	Entries []LogEntryData `json:"entries" doc:"Log entries, oldest first"`
	Count   int            `json:"count" example:"100" doc:"Number of entries returned"`
}

type LogListResponse struct {
	Body LogListData
}

type LogLevelsData struct {
	Levels map[string]string `json:"levels" example:"{\"global\":\"info\",\"v4l2\":\"debug\"}" doc:"Level per module; global is the default"`
}

type LogLevelsResponse struct {
	Body LogLevelsData
}
