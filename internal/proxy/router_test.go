package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aryaprasad08/slouch/internal/publish"
	"github.com/aryaprasad08/slouch/internal/repository"
	"github.com/aryaprasad08/slouch/internal/transport"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type write struct {
	Feed  string
	Value string
}

type fakeSink struct {
	writes []write
	err    error
}

func (s *fakeSink) Write(_ context.Context, feed, value string) error {
	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, write{feed, value})
	return nil
}

func newTestRouter(sink FeedSink) *gin.Engine {
	return NewRouter(NewHandler(sink, time.Second, zap.NewNop()), zap.NewNop())
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := doRequest(newTestRouter(&fakeSink{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestWriteFeed(t *testing.T) {
	sink := &fakeSink{}
	r := newTestRouter(sink)

	w := doRequest(r, http.MethodPost, "/feeds/posture-angle", `{"value":"12.3"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, sink.writes, 1)
	assert.Equal(t, write{"posture-angle", "12.3"}, sink.writes[0])
}

func TestWriteFeed_Validation(t *testing.T) {
	sink := &fakeSink{}
	r := newTestRouter(sink)

	assert.Equal(t, http.StatusNotFound, doRequest(r, http.MethodPost, "/feeds/heart-rate", `{"value":"1"}`).Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(r, http.MethodPost, "/feeds/slouch-count", `{"value":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(r, http.MethodPost, "/feeds/slouch-count", `not json`).Code)
	assert.Empty(t, sink.writes)
}

func TestWriteFeed_SinkErrorMapping(t *testing.T) {
	tests := []struct {
		kind   error
		status int
	}{
		{publish.ErrUnauthorized, http.StatusUnauthorized},
		{publish.ErrRateLimited, http.StatusTooManyRequests},
		{publish.ErrNetworkFailure, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.kind.Error(), func(t *testing.T) {
			sink := &fakeSink{err: publish.NewTransportError("posture-status", tt.kind, errors.New("upstream"))}
			w := doRequest(newTestRouter(sink), http.MethodPost, "/feeds/posture-status", `{"value":"good"}`)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

// 设备端 ProxyClient 能从代理的状态码还原出同样的错误类型
func TestProxyClientRoundTrip(t *testing.T) {
	sink := &fakeSink{}
	srv := httptest.NewServer(newTestRouter(sink))
	defer srv.Close()

	client := transport.NewProxyClient(srv.URL, zap.NewNop())
	require.NoError(t, client.Publish(context.Background(), publish.FeedCount, "2"))
	assert.Equal(t, []write{{"slouch-count", "2"}}, sink.writes)

	sink.err = publish.NewTransportError(publish.FeedCount, publish.ErrRateLimited, nil)
	err := client.Publish(context.Background(), publish.FeedCount, "3")
	assert.ErrorIs(t, err, publish.ErrRateLimited)

	sink.err = publish.NewTransportError(publish.FeedCount, publish.ErrUnauthorized, nil)
	err = client.Publish(context.Background(), publish.FeedCount, "3")
	assert.ErrorIs(t, err, publish.ErrUnauthorized)
}

func TestAIOSink_ForwardsWithServerCredential(t *testing.T) {
	var gotKey, gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-AIO-Key")
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	sink := NewAIOSink(transport.NewAIOClient(upstream.URL, "alice", "server_key", zap.NewNop()))
	w := doRequest(newTestRouter(sink), http.MethodPost, "/feeds/posture-status", `{"value":"slouching"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "server_key", gotKey)
	assert.Equal(t, "/api/v2/alice/feeds/posture-status/data", gotPath)
}

func TestPostgresSink(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sink := NewPostgresSink(repository.NewPostgresFeedRepository(db, zap.NewNop()))
	r := newTestRouter(sink)

	mock.ExpectExec(`INSERT INTO feed_data`).
		WithArgs(sqlmock.AnyArg(), "slouch-count", "5", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	w := doRequest(r, http.MethodPost, "/feeds/slouch-count", `{"value":"5"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	mock.ExpectExec(`INSERT INTO feed_data`).
		WillReturnError(&pq.Error{Code: "53300"})
	w = doRequest(r, http.MethodPost, "/feeds/slouch-count", `{"value":"6"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	at := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT`).WithArgs("slouch-count").
		WillReturnRows(sqlmock.NewRows([]string{"id", "feed", "value", "created_at"}).
			AddRow("6f1c8d2e-9a51-4b9e-8a0e-3c2b7f0d4e11", "slouch-count", "5", at))
	w = doRequest(r, http.MethodGet, "/feeds/slouch-count/data/last", "")
	require.Equal(t, http.StatusOK, w.Code)
	var point repository.FeedPoint
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &point))
	assert.Equal(t, "5", point.Value)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadRoutes_SinkWithoutReads(t *testing.T) {
	r := newTestRouter(&fakeSink{})
	assert.Equal(t, http.StatusNotImplemented, doRequest(r, http.MethodGet, "/feeds/posture-angle/data", "").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(r, http.MethodGet, "/feeds/other/data", "").Code)
}
