package reporter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/fieldmesh/beacon/internal/sink"
)

func defaultNow() int64 { return time.Now().Unix() }

// CoordinateSource yields the antenna's current coordinates. It follows a
// pull-iterator shape (called once per report, ok=false means "no fix yet")
// rather than pushing updates, so the LocationReporter never blocks waiting
// on a GPS device that may not be present.
type CoordinateSource func(ctx context.Context) (lat, lng float64, ok bool)

// LocationReporter periodically posts the antenna's current coordinates to
// the central API so correlation can compare antenna distances (§4.14).
type LocationReporter struct {
	sink    *sink.Sink
	baseURL string
	antenna *AntennaID
	source  CoordinateSource
	logger  *slog.Logger
	nowFn   func() int64
}

// NewLocationReporter creates a LocationReporter. source is polled once per
// ReportOnce call.
func NewLocationReporter(sk *sink.Sink, baseURL string, antenna *AntennaID, source CoordinateSource, logger *slog.Logger) *LocationReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationReporter{
		sink:    sk,
		baseURL: baseURL,
		antenna: antenna,
		source:  source,
		logger:  logger,
		nowFn:   defaultNow,
	}
}

// ReportOnce blocks until an antenna ID is available (or ctx is cancelled),
// then pulls the current coordinate and, if one is available, enqueues a
// metadata update.
func (l *LocationReporter) ReportOnce(ctx context.Context) {
	antennaID, ok := l.antenna.Wait(ctx)
	if !ok {
		return
	}

	lat, lng, ok := l.source(ctx)
	if !ok {
		return
	}

	body, err := json.Marshal(map[string]any{
		"antennaId": antennaID,
		"latitude":  lat,
		"longitude": lng,
		"timestamp": l.nowFn(),
	})
	if err != nil {
		l.logger.Warn("location reporter: marshal metadata", slog.Any("error", err))
		return
	}

	err = l.sink.Enqueue(sink.Request{
		Method: http.MethodPost,
		URL:    l.baseURL + "/api/AntennaMetadata",
		Body:   body,
		OnError: func([]byte) {
			l.logger.Debug("location reporter: delivery failed, sink will retry")
		},
	})
	if err != nil {
		l.logger.Warn("location reporter: enqueue failed", slog.Any("error", err))
	}
}
