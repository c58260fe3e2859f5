package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type stubMongoChecker struct {
	err error
}

func (s stubMongoChecker) Ping(context.Context) error {
	return s.err
}

type stubRegistryChecker struct {
	count int64
	err   error
}

func (s stubRegistryChecker) CountActive(context.Context) (int64, error) {
	return s.count, s.err
}

func serveHealth(t *testing.T, server *Server) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rr.Code)
	}

	return rr
}

func TestHealthHandlerOK(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, stubMongoChecker{}, stubRegistryChecker{count: 12}, logrus.NewEntry(logger))

	rr := serveHealth(t, server)

	body := strings.TrimSpace(rr.Body.String())
	if body != `{"status":"ok","active_users":12}` {
		t.Fatalf("unexpected body: %s", body)
	}

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %s", ct)
	}
}

func TestHealthHandlerMongoError(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, stubMongoChecker{err: errors.New("mongo down")}, stubRegistryChecker{count: 3}, logrus.NewEntry(logger))

	rr := serveHealth(t, server)

	body := strings.TrimSpace(rr.Body.String())
	if body != `{"status":"degraded","mongo":"error","active_users":3}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestHealthHandlerRegistryErrorDegrades(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, stubMongoChecker{}, stubRegistryChecker{err: errors.New("count failed")}, logrus.NewEntry(logger))

	rr := serveHealth(t, server)

	body := strings.TrimSpace(rr.Body.String())
	if body != `{"status":"degraded","mongo":"error"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestHealthHandlerMissingMongoChecker(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, nil, nil, logrus.NewEntry(logger))

	rr := serveHealth(t, server)

	body := strings.TrimSpace(rr.Body.String())
	if body != `{"status":"degraded","mongo":"error"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}
