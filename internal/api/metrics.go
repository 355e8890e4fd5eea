package api

import (
	"cmp"
	"context"
	"net/http"
	"slices"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/v4lstream/internal/api/models"
	"github.com/smazurov/v4lstream/internal/events"
	"github.com/smazurov/v4lstream/internal/metrics"
	"github.com/smazurov/v4lstream/internal/metrics/exporters"
)

// registerMetricsRoutes registers the stream counter snapshot and the
// metrics SSE endpoint.
func (s *Server) registerMetricsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-stream-metrics",
		Method:      http.MethodGet,
		Path:        "/api/metrics/streams",
		Summary:     "Stream Metrics",
		Description: "Current counters of every device that has streamed",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.StreamMetricsListResponse, error) {
		all := metrics.GetAllStreamMetrics()
		out := make([]models.StreamMetricsData, 0, len(all))
		for device, m := range all {
			out = append(out, models.StreamMetricsData{
				DevicePath: device,
				Frames:     m.Frames,
				Bytes:      m.Bytes,
				Dropped:    m.Dropped,
				Errors:     m.Errors,
				Queued:     m.Queued,
				Streaming:  m.Streaming,
				LastFrame:  m.LastFrame,
			})
		}
		slices.SortFunc(out, func(a, b models.StreamMetricsData) int {
			return cmp.Compare(a.DevicePath, b.DevicePath)
		})
		return &models.StreamMetricsListResponse{
			Body: models.StreamMetricsListData{Streams: out},
		}, nil
	})

	if s.eventBus == nil {
		return
	}

	sse.Register(s.api, huma.Operation{
		OperationID: "metrics-stream",
		Method:      http.MethodGet,
		Path:        "/api/metrics",
		Summary:     "Metrics Server-Sent Events Stream",
		Description: "Periodic per-device frame rate and counter snapshots",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, exporters.GetEventTypes(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)
		unsubscribe := events.SubscribeToChannel[events.StreamMetricsEvent](s.eventBus, eventCh)
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
