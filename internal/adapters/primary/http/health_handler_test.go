package http

import (
	"context"
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubCache struct{}

func (stubCache) Stats() (int64, int64) { return 7, 3 }
func (stubCache) Len() int              { return 4 }

func serveHealth(t *testing.T, h *HealthHandler, path string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(stdhttp.MethodGet, path, nil))
	return rec
}

func TestHealthHandler(t *testing.T) {
	t.Run("liveness ignores the database", func(t *testing.T) {
		h := NewHealthHandler(stubPinger{err: errors.New("down")}, "1.0.0")

		rec := serveHealth(t, h, "/health/live")
		assert.Equal(t, stdhttp.StatusOK, rec.Code)
	})

	t.Run("readiness fails without the database", func(t *testing.T) {
		h := NewHealthHandler(stubPinger{err: errors.New("connection refused")}, "1.0.0")

		rec := serveHealth(t, h, "/health/ready")
		require.Equal(t, stdhttp.StatusServiceUnavailable, rec.Code)

		resp := decodeBody[HealthResponse](t, rec)
		assert.Equal(t, "unhealthy", resp.Status)
		assert.Equal(t, "connection refused", resp.Checks["database"].Message)
	})

	t.Run("detailed report includes the detail cache", func(t *testing.T) {
		h := NewHealthHandler(stubPinger{}, "1.0.0").WithDetailCache(stubCache{})

		rec := serveHealth(t, h, "/health")
		require.Equal(t, stdhttp.StatusOK, rec.Code)

		resp := decodeBody[struct {
			Status      string       `json:"status"`
			Version     string       `json:"version"`
			DetailCache *CacheReport `json:"detailCache"`
		}](t, rec)
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "1.0.0", resp.Version)
		require.NotNil(t, resp.DetailCache)
		assert.Equal(t, CacheReport{Entries: 4, Hits: 7, Misses: 3}, *resp.DetailCache)
	})
}
