package testsupport_test

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/fieldmesh/beacon/internal/testsupport"
)

func TestCentralServer_RecordsAntennaBootstrap(t *testing.T) {
	c := testsupport.NewCentralServer()
	defer c.Close()

	c.SetAntennaID(42)

	resp, err := http.Post(c.URL()+"/api/Antenna", "application/json", bytes.NewReader([]byte(`{"address":"aa:bb:cc:dd:ee:ff"}`)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if c.Count("/api/Antenna") != 1 {
		t.Errorf("count = %d, want 1", c.Count("/api/Antenna"))
	}
	bodies := c.Bodies("/api/Antenna")
	if len(bodies) != 1 || string(bodies[0]) != `{"address":"aa:bb:cc:dd:ee:ff"}` {
		t.Errorf("bodies = %v, want the posted body", bodies)
	}
}

func TestCentralServer_FailAntennaBootstrapReturns500(t *testing.T) {
	c := testsupport.NewCentralServer()
	defer c.Close()

	c.FailAntennaBootstrap(true)

	resp, err := http.Post(c.URL()+"/api/Antenna", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestCentralServer_RecordsReportingEndpoints(t *testing.T) {
	c := testsupport.NewCentralServer()
	defer c.Close()

	for _, path := range []string{"/api/Btbr", "/api/Btle", "/api/MacAddr", "/api/AntennaMetadata"} {
		resp, err := http.Post(c.URL()+path, "application/json", bytes.NewReader([]byte(`{}`)))
		if err != nil {
			t.Fatalf("post %s: %v", path, err)
		}
		resp.Body.Close()
		if c.Count(path) != 1 {
			t.Errorf("count(%s) = %d, want 1", path, c.Count(path))
		}
	}
}
