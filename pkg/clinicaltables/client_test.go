package clinicaltables

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_ICD10(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/icd10cm/v3/search", r.URL.Path)
		assert.Equal(t, "E11.9", r.URL.Query().Get("terms"))
		assert.Equal(t, "code,name", r.URL.Query().Get("df"))
		assert.Equal(t, "5", r.URL.Query().Get("maxList"))
		w.Write([]byte(`[2,["E11.9","E11.65"],null,[["E11.9","Type 2 diabetes mellitus without complications"],["E11.65","Type 2 diabetes mellitus with hyperglycemia"]]]`)) //nolint:errcheck
	}))
	defer srv.Close()

	res, err := NewClient(WithBaseURL(srv.URL)).Search(context.Background(), ICD10CM, "E11.9", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Matches, 2)

	m, ok := res.Exact("e11.9")
	require.True(t, ok)
	assert.Equal(t, "Type 2 diabetes mellitus without complications", m.Display)

	_, ok = res.Exact("E11")
	assert.False(t, ok)
}

func TestSearch_HCPCS(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hcpcs/v3/search", r.URL.Path)
		assert.Equal(t, "code,display", r.URL.Query().Get("df"))
		w.Write([]byte(`[1,["E0100"],null,[["E0100","Cane, includes canes of all materials, adjustable or fixed, with tip"]]]`)) //nolint:errcheck
	}))
	defer srv.Close()

	res, err := NewClient(WithBaseURL(srv.URL+"/")).Search(context.Background(), HCPCS, "E0100", 0)
	require.NoError(t, err)
	m, ok := res.Exact("E0100")
	require.True(t, ok)
	assert.Contains(t, m.Display, "Cane")
}

func TestSearch_NoMatches(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[0,[],null,[]]`)) //nolint:errcheck
	}))
	defer srv.Close()

	res, err := NewClient(WithBaseURL(srv.URL)).Search(context.Background(), HCPCS, "Z9999", 0)
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Empty(t, res.Matches)
}

func TestSearch_Errors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseURL(srv.URL)).Search(context.Background(), ICD10CM, "E11", 0)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)

	_, err = NewClient(WithBaseURL(srv.URL)).Search(context.Background(), Table("loinc"), "x", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown table")
}

func TestDecodeSearch_Malformed(t *testing.T) {
	t.Parallel()

	_, err := decodeSearch([]byte(`{"not":"array"}`))
	require.Error(t, err)

	_, err = decodeSearch([]byte(`[1,["A"]]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 4")

	res, err := decodeSearch([]byte(`[0,[],null,null]`))
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
}
