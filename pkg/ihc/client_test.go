package ihc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBatch() []JourneySession {
	return []JourneySession{
		{
			ConversionID:     "c1",
			SessionID:        "s1",
			Timestamp:        "2024-01-01 10:00:00",
			ChannelLabel:     "Organic",
			HolderEngagement: 1,
			Conversion:       1,
		},
	}
}

func TestScore_Success(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "challenge", r.URL.Query().Get("conv_type_id"))
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		gotBody, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"statusCode": 200,
			"value": [
				{"conversion_id": "c1", "session_id": "s1", "ihc": 0.75}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", "challenge", WithBaseURL(srv.URL))
	resp, err := c.Score(context.Background(), testBatch())
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	require.Len(t, resp.Value, 1)
	assert.Equal(t, "c1", resp.Value[0].ConversionID)
	assert.Equal(t, "s1", resp.Value[0].SessionID)
	assert.InDelta(t, 0.75, resp.Value[0].IHC, 0.0001)

	// Request body carries the journeys plus the fixed redistribution block.
	var req map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(gotBody, &req))
	require.Contains(t, req, "customer_journeys")
	require.Contains(t, req, "redistribution_parameter")

	var param RedistributionParameter
	require.NoError(t, json.Unmarshal(req["redistribution_parameter"], &param))
	assert.Equal(t, DefaultRedistribution(), param)
}

func TestScore_RetryBound(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	delay := 20 * time.Millisecond
	c := NewClient("k", "t", WithBaseURL(srv.URL), WithRetry(3, delay))

	start := time.Now()
	resp, err := c.Score(context.Background(), testBatch())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), attempts.Load())
	// Two inter-attempt delays, none after the last attempt.
	assert.GreaterOrEqual(t, elapsed, 2*delay)
	assert.Less(t, elapsed, 10*delay)
}

func TestScore_RetryRecovery(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"statusCode": 200, "value": [{"conversion_id": "c1", "session_id": "s1", "ihc": 1}]}`))
	}))
	defer srv.Close()

	c := NewClient("k", "t", WithBaseURL(srv.URL), WithRetry(3, time.Millisecond))
	resp, err := c.Score(context.Background(), testBatch())
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
	require.Len(t, resp.Value, 1)
	assert.InDelta(t, 1.0, resp.Value[0].IHC, 0.0001)
}

func TestScore_BadRequestStillRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "malformed batch"}`))
	}))
	defer srv.Close()

	c := NewClient("k", "t", WithBaseURL(srv.URL), WithRetry(2, time.Millisecond))
	_, err := c.Score(context.Background(), testBatch())
	require.Error(t, err)
	// Retries are blind to error class: 400 counts like any failure.
	assert.Equal(t, int32(2), attempts.Load())
	assert.Contains(t, err.Error(), "status 400")
}

func TestScore_ContextCancelledDuringDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	c := NewClient("k", "t", WithBaseURL(srv.URL), WithRetry(5, time.Minute))
	start := time.Now()
	_, err := c.Score(ctx, testBatch())
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestScore_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{invalid json`))
	}))
	defer srv.Close()

	c := NewClient("k", "t", WithBaseURL(srv.URL), WithRetry(1, 0))
	_, err := c.Score(context.Background(), testBatch())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}
