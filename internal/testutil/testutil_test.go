package testutil

import (
	"net/http"
	"strings"
	"testing"
)

func TestRandomString(t *testing.T) {
	str := RandomString(10)
	if len(str) != 10 {
		t.Errorf("Expected string length 10, got %d", len(str))
	}
}

func TestRandomSubdivisionName(t *testing.T) {
	name := RandomSubdivisionName()
	if !strings.HasPrefix(name, "Subdivision ") {
		t.Errorf("Expected name to start with 'Subdivision ', got %s", name)
	}
}

func TestSquareRing(t *testing.T) {
	ring := SquareRing(10, 20, 1)
	if len(ring) != 4 {
		t.Fatalf("Expected 4 points, got %d", len(ring))
	}
	if ring[0].Lat != 10 || ring[0].Long != 20 {
		t.Errorf("Expected the ring to start at the south-west corner, got %v", ring[0])
	}
	if err := ring.Validate(); err != nil {
		t.Errorf("Square ring should be valid: %v", err)
	}
}

func TestNewTestSubdivision(t *testing.T) {
	sub := NewTestFixtures().NewTestSubdivision(14.5, 121)
	if len(sub.Lots) != 2 {
		t.Fatalf("Expected 2 lots, got %d", len(sub.Lots))
	}
	// The lots are adjacent, so at least one location id must be shared.
	ids := make(map[string]bool)
	for _, id := range sub.Lots[0].Boundary.LocationIDs() {
		ids[id] = true
	}
	shared := false
	for _, id := range sub.Lots[1].Boundary.LocationIDs() {
		if ids[id] {
			shared = true
		}
	}
	if !shared {
		t.Error("Expected adjacent lots to share boundary points")
	}
}

func TestHTTPTestHelper(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"method":"` + r.Method + `","remote":"` + r.RemoteAddr + `"}`))
	})
	helper := NewHTTPTestHelper(handler)
	helper.RemoteAddr = "10.0.0.1:1234"

	rr := helper.MakeRequest(http.MethodPost, "/", map[string]string{"a": "b"})
	if err := AssertJSONResponse(rr.Body, map[string]string{"method": "POST", "remote": "10.0.0.1:1234"}); err != nil {
		t.Error(err)
	}
}
