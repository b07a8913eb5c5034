package apisource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

func serve(t *testing.T, status int, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_RecordsPath(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"data": {"items": [{"id": 1}, {"id": 2}]}, "next": null}`, func(r *http.Request) {
		assert.Equal(t, "/v1/customers", r.URL.Path)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		assert.Equal(t, "acme", r.Header.Get("X-Org"))
		assert.Equal(t, http.MethodGet, r.Method)
	})

	c := NewClient(zaptest.NewLogger(t))
	records, err := c.Fetch(context.Background(), &models.APIConfig{
		BaseURL:     srv.URL + "/",
		Path:        "/v1/customers",
		Headers:     map[string]string{"X-Org": "acme"},
		BearerToken: "s3cret",
		RecordsPath: "data.items",
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.JSONEq(t, `{"id": 1}`, string(records[0]))
}

func TestFetch_BodyArrayAndObject(t *testing.T) {
	c := NewClient(zaptest.NewLogger(t))

	srv := serve(t, http.StatusOK, `[{"a": 1}, {"a": 2}, {"a": 3}]`, nil)
	records, err := c.Fetch(context.Background(), &models.APIConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Len(t, records, 3)

	srv = serve(t, http.StatusOK, `{"status": "ok"}`, nil)
	records, err = c.Fetch(context.Background(), &models.APIConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	require.Len(t, records, 1)

	srv = serve(t, http.StatusOK, `{"items": []}`, nil)
	records, err = c.Fetch(context.Background(), &models.APIConfig{BaseURL: srv.URL, RecordsPath: "items"})
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestFetch_PostMethod(t *testing.T) {
	srv := serve(t, http.StatusOK, `[]`, func(r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
	})
	_, err := NewClient(nil).Fetch(context.Background(), &models.APIConfig{BaseURL: srv.URL, Method: "post"})
	require.NoError(t, err)
}

func TestFetch_Errors(t *testing.T) {
	c := NewClient(zaptest.NewLogger(t))

	srv := serve(t, http.StatusInternalServerError, `{"error": "boom"}`, nil)
	_, err := c.Fetch(context.Background(), &models.APIConfig{BaseURL: srv.URL})
	assert.ErrorIs(t, err, ErrInvalidResponse)

	srv = serve(t, http.StatusOK, `<html>`, nil)
	_, err = c.Fetch(context.Background(), &models.APIConfig{BaseURL: srv.URL})
	assert.ErrorIs(t, err, ErrInvalidResponse)

	srv = serve(t, http.StatusOK, `{"data": []}`, nil)
	_, err = c.Fetch(context.Background(), &models.APIConfig{BaseURL: srv.URL, RecordsPath: "items"})
	assert.ErrorIs(t, err, ErrRecordsNotFound)

	srv = serve(t, http.StatusOK, `{"count": 3}`, nil)
	_, err = c.Fetch(context.Background(), &models.APIConfig{BaseURL: srv.URL, RecordsPath: "count"})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(nil).Fetch(context.Background(), &models.APIConfig{BaseURL: srv.URL, TimeoutSeconds: 1})
	require.Error(t, err)
}

func TestFetch_MaxRecords(t *testing.T) {
	srv := serve(t, http.StatusOK, `[1, 2, 3, 4, 5]`, nil)
	records, err := NewClient(nil, WithMaxRecords(2)).Fetch(context.Background(), &models.APIConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
