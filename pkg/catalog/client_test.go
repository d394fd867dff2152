package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))
}

func TestCategoryRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/category", r.URL.Path)
		assert.Equal(t, "1722828011", r.URL.Query().Get("node_id"))
		assert.Equal(t, "US", r.URL.Query().Get("domain"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"code":0,"data":{"category_name":"Kitchen","items":[
			{"asin":"B01ABCDEF2","title":"Lamp","rank":1},
			{"asin":"B01ABCDEF3","title":"Mouse","rank":2}]}}`))
	})

	resp, err := c.CategoryRequest(context.Background(), "1722828011", "US")
	require.NoError(t, err)
	assert.Equal(t, "Kitchen", resp.CategoryName)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "B01ABCDEF2", resp.Items[0].ASIN)
	assert.Equal(t, 1, resp.Items[0].Rank)
}

func TestProductRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/product", r.URL.Path)
		assert.Equal(t, "B01ABCDEF2,B01ABCDEF3", r.URL.Query().Get("asin"))
		assert.Equal(t, "1", r.URL.Query().Get("trend"))
		w.Write([]byte(`{"code":0,"data":{"items":[
			{"asin":"B01ABCDEF2","price":"19.99"},
			{"asin":"B01ABCDEF3","price":"9.99"}]}}`))
	})

	resp, err := c.ProductRequest(context.Background(), "B01ABCDEF2,B01ABCDEF3", true, "US")
	require.NoError(t, err)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "19.99", resp.Items[0]["price"])
}

func TestRemoteCodeBecomesRemoteError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":4290,"message":"quota exhausted"}`))
	})

	_, err := c.CategoryRequest(context.Background(), "1722828011", "US")
	require.Error(t, err)

	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 4290, re.Code)
	assert.Equal(t, "quota exhausted", re.Message)
	assert.Contains(t, err.Error(), "quota exhausted")
}

func TestNonOKStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	})

	_, err := c.CategoryRequest(context.Background(), "1722828011", "US")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestQuotaCapture(t *testing.T) {
	withHeaders := true
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if withHeaders {
			w.Header().Set("X-Quota-Limit", "100")
			w.Header().Set("X-Quota-Remaining", "42")
			w.Header().Set("X-Quota-Reset", "30")
		}
		w.Write([]byte(`{"code":0,"data":{"items":[]}}`))
	})

	_, err := c.ProductRequest(context.Background(), "B01ABCDEF2", false, "US")
	require.NoError(t, err)
	assert.Equal(t, QuotaInfo{Limit: 100, Remaining: 42, ResetSecs: 30}, c.Quota())

	// A response without quota headers keeps the last captured values.
	withHeaders = false
	_, err = c.ProductRequest(context.Background(), "B01ABCDEF2", false, "US")
	require.NoError(t, err)
	assert.Equal(t, 42, c.Quota().Remaining)
}

func TestMalformedEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := c.CategoryRequest(context.Background(), "1722828011", "US")
	require.Error(t, err)
}
