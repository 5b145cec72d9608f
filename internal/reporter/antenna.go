// Package reporter implements the agent's periodic producers: the antenna
// identity bootstrap, the fingerprint reporter, and the location reporter.
// All three deliver through the shared HTTP sink.
package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/fieldmesh/beacon/internal/sink"
)

// AntennaID is the shared, once-assigned antenna identifier. All reporters
// block on it via Wait until the bootstrap sequence (§4.7) completes; it is
// read immutably thereafter.
type AntennaID struct {
	mu       sync.Mutex
	cond     *sync.Cond
	id       int64
	assigned bool
}

// NewAntennaID creates an unassigned AntennaID.
func NewAntennaID() *AntennaID {
	a := &AntennaID{}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Set assigns id and wakes any goroutines blocked in Wait. Calling Set more
// than once is a no-op after the first call.
func (a *AntennaID) Set(id int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.assigned {
		return
	}
	a.id = id
	a.assigned = true
	a.cond.Broadcast()
}

// Wait blocks until an antenna ID has been assigned or ctx is cancelled. It
// returns (id, true) on assignment or (0, false) if ctx is cancelled first.
func (a *AntennaID) Wait(ctx context.Context) (int64, bool) {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		a.mu.Lock()
		a.cond.Broadcast()
		a.mu.Unlock()
		close(done)
	}()

	a.mu.Lock()
	defer a.mu.Unlock()
	for !a.assigned && ctx.Err() == nil {
		a.cond.Wait()
	}
	if a.assigned {
		return a.id, true
	}
	return 0, false
}

// Bootstrap posts the agent's hardware MAC address to the antenna-identity
// endpoint and, on a successful response, assigns it via id.Set. It
// blocks until the round trip completes (including the sink's own
// retry/back-off) or ctx is cancelled.
func Bootstrap(ctx context.Context, sk *sink.Sink, baseURL, hostMAC string, id *AntennaID) error {
	body, err := json.Marshal(map[string]string{"address": hostMAC})
	if err != nil {
		return fmt.Errorf("reporter: marshal antenna bootstrap request: %w", err)
	}

	result := make(chan error, 1)
	err = sk.Enqueue(sink.Request{
		Method: http.MethodPost,
		URL:    baseURL + "/api/Antenna",
		Body:   body,
		OnSuccess: func(respBody []byte) {
			var resp struct {
				AntennaID int64 `json:"antennaId"`
			}
			if err := json.Unmarshal(respBody, &resp); err != nil {
				result <- fmt.Errorf("reporter: decode antenna bootstrap response: %w", err)
				return
			}
			id.Set(resp.AntennaID)
			result <- nil
		},
	})
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
