// Package testsupport provides a fake central ingestion API for testing
// internal/sink and internal/reporter end to end, without a real server on
// the other side of the agent's HTTP reporting path (§6).
package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// CentralServer is an in-memory stand-in for the central ingestion API,
// recording every request it receives on each of the five endpoints the
// agent reports to.
type CentralServer struct {
	srv *httptest.Server

	mu          sync.Mutex
	counts      map[string]int
	bodies      map[string][][]byte
	antennaID   int64
	failAntenna bool
}

// NewCentralServer starts a fake central API listening on a loopback port.
// The caller must call Close when done.
func NewCentralServer() *CentralServer {
	c := &CentralServer{
		counts:    make(map[string]int),
		bodies:    make(map[string][][]byte),
		antennaID: 1,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/api/Antenna", c.handleAntenna)
	r.Post("/api/Btbr", c.recordingHandler("/api/Btbr"))
	r.Post("/api/Btle", c.recordingHandler("/api/Btle"))
	r.Post("/api/MacAddr", c.recordingHandler("/api/MacAddr"))
	r.Post("/api/AntennaMetadata", c.recordingHandler("/api/AntennaMetadata"))

	c.srv = httptest.NewServer(r)
	return c
}

// URL returns the fake server's base URL, suitable for a config.NetworkConfig.
func (c *CentralServer) URL() string {
	return c.srv.URL
}

// Close shuts down the fake server.
func (c *CentralServer) Close() {
	c.srv.Close()
}

// SetAntennaID changes the antenna ID returned by /api/Antenna for
// subsequent bootstrap requests.
func (c *CentralServer) SetAntennaID(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.antennaID = id
}

// FailAntennaBootstrap makes /api/Antenna answer with a 500 until called
// again with false, for exercising the sink's retry/back-off path.
func (c *CentralServer) FailAntennaBootstrap(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAntenna = fail
}

// Count returns how many requests path has received.
func (c *CentralServer) Count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[path]
}

// Bodies returns every request body received on path, in arrival order.
func (c *CentralServer) Bodies(path string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.bodies[path]))
	copy(out, c.bodies[path])
	return out
}

func (c *CentralServer) handleAntenna(w http.ResponseWriter, r *http.Request) {
	c.record("/api/Antenna", r)

	c.mu.Lock()
	fail := c.failAntenna
	id := c.antennaID
	c.mu.Unlock()

	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int64{"antennaId": id})
}

func (c *CentralServer) recordingHandler(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.record(path, r)
		w.WriteHeader(http.StatusOK)
	}
}

func (c *CentralServer) record(path string, r *http.Request) {
	body := readAndRestore(r)
	c.mu.Lock()
	c.counts[path]++
	c.bodies[path] = append(c.bodies[path], body)
	c.mu.Unlock()
}

func readAndRestore(r *http.Request) []byte {
	buf := make([]byte, 0, 256)
	chunk := make([]byte, 256)
	for {
		n, err := r.Body.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			break
		}
	}
	return buf
}
