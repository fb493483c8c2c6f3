package chi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestActorMiddleware(t *testing.T) {
	var got string
	h := ActorMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != DefaultActor {
		t.Errorf("actor = %q, want %q", got, DefaultActor)
	}

	req.Header.Set(HeaderActorID, "  soc-analyst ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "soc-analyst" {
		t.Errorf("actor = %q", got)
	}

	req.Header.Set(HeaderActorID, strings.Repeat("x", 500))
	h.ServeHTTP(httptest.NewRecorder(), req)
	if len(got) != maxActorLength {
		t.Errorf("actor length = %d, want %d", len(got), maxActorLength)
	}
}

func TestJSONRecoverer(t *testing.T) {
	h := JSONRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != CodeInternal {
		t.Errorf("code = %q", e.Code)
	}
}
