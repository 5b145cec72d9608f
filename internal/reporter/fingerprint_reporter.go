package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/fieldmesh/beacon/internal/codec"
	"github.com/fieldmesh/beacon/internal/fingerprint"
	"github.com/fieldmesh/beacon/internal/sink"
	"github.com/fieldmesh/beacon/internal/store"
)

// Reporter periodically pulls reportable fingerprints from the configured
// stores and enqueues one HTTP request per fingerprint on the shared sink.
type Reporter struct {
	sink    *sink.Sink
	baseURL string
	antenna *AntennaID
	logger  *slog.Logger
	btbr    *store.BTBRStore
	btle    *store.BTLEStore
	btleAdv *store.BTLEAdvStore
	nowFn   func() int64
}

// NewReporter creates a Reporter. Any of btbr/btle/btleAdv may be nil if the
// corresponding sniffer is not running on this node.
func NewReporter(sk *sink.Sink, baseURL string, antenna *AntennaID, btbr *store.BTBRStore, btle *store.BTLEStore, btleAdv *store.BTLEAdvStore, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		sink:    sk,
		baseURL: baseURL,
		antenna: antenna,
		logger:  logger,
		btbr:    btbr,
		btle:    btle,
		btleAdv: btleAdv,
		nowFn:   defaultNow,
	}
}

// ReportOnce runs a single reporting pass: snapshot-and-prune each
// configured store, and enqueue an HTTP request per reportable fingerprint.
// It blocks until an antenna ID is available or ctx is cancelled.
func (r *Reporter) ReportOnce(ctx context.Context) {
	antennaID, ok := r.antenna.Wait(ctx)
	if !ok {
		return
	}

	now := r.nowFn()

	if r.btbr != nil {
		for _, fp := range r.btbr.SnapshotAndPrune(now) {
			r.reportBTBR(fp, antennaID)
		}
	}
	if r.btle != nil {
		for _, fp := range r.btle.SnapshotAndPrune(now) {
			r.reportBTLE(fp, antennaID)
		}
	}
	if r.btleAdv != nil {
		for _, fp := range r.btleAdv.SnapshotAndPrune(now) {
			r.reportBTLEAdv(fp, antennaID)
		}
	}
}

func (r *Reporter) reportBTBR(fp fingerprint.BTBR, antennaID int64) {
	uap := uint8(0)
	if fp.UAP != nil {
		uap = *fp.UAP
	}
	nap := uint16(0)
	if fp.NAP != nil {
		nap = *fp.NAP
	}

	body, err := json.Marshal(map[string]any{
		"uap":       fmt.Sprintf("%02x", uap),
		"lap":       fmt.Sprintf("%06x", fp.LAP),
		"nap":       fmt.Sprintf("%04x", nap),
		"firstSeen": fp.FirstSeen,
		"lastSeen":  fp.LastSeen,
		"antennaId": antennaID,
	})
	if err != nil {
		r.logger.Warn("reporter: marshal btbr report", slog.Any("error", err))
		return
	}
	r.post("/api/Btbr", body)
}

func (r *Reporter) reportBTLE(fp fingerprint.BTLE, antennaID int64) {
	body, err := json.Marshal(map[string]any{
		"accessAddress": fmt.Sprintf("%08x", fp.AccessAddress),
		"rssi":          fp.RSSI.Mean,
		"std":           fp.RSSI.Std,
		"mean":          fp.RSSI.Mean,
		"firstSeen":     fp.FirstSeen,
		"lastSeen":      fp.LastSeen,
		"antennaId":     antennaID,
	})
	if err != nil {
		r.logger.Warn("reporter: marshal btle report", slog.Any("error", err))
		return
	}
	r.post("/api/Btle", body)
}

func (r *Reporter) reportBTLEAdv(fp fingerprint.BTLEAdv, antennaID int64) {
	body, err := json.Marshal(map[string]any{
		"macAddress": codec.MacString(fp.MAC),
		"rssi":       fp.RSSI.Mean,
		"std":        fp.RSSI.Std,
		"mean":       fp.RSSI.Mean,
		"firstSeen":  fp.FirstSeen,
		"lastSeen":   fp.LastSeen,
		"antennaId":  antennaID,
	})
	if err != nil {
		r.logger.Warn("reporter: marshal mac-addr report", slog.Any("error", err))
		return
	}
	r.post("/api/MacAddr", body)
}

func (r *Reporter) post(path string, body []byte) {
	err := r.sink.Enqueue(sink.Request{
		Method: http.MethodPost,
		URL:    r.baseURL + path,
		Body:   body,
		OnError: func([]byte) {
			r.logger.Debug("reporter: delivery failed, sink will retry", slog.String("path", path))
		},
	})
	if err != nil {
		r.logger.Warn("reporter: enqueue failed", slog.String("path", path), slog.Any("error", err))
	}
}
