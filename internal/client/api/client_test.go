package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sdui/internal/screen"
)

func TestFetchScreen(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/screen/home":
			gotQuery = r.URL.RawQuery
			w.Header().Set("X-Screen-Variant", "compact")
			w.Header().Set("X-Config-Version", "7")
			_, _ = w.Write([]byte(`{"components":[{"id":"a","type":"Text"}],"metadata":{"name":"Home","version":2,"cacheTTL":60}}`))
		case "/config/version":
			_, _ = w.Write([]byte(`{"configVersion":7}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"not_found","message":"screen not found"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	got, err := c.FetchScreen(context.Background(), "home", Query{UserID: "u1", Platform: "ios"})
	require.NoError(t, err)
	assert.Equal(t, "compact", got.Variant)
	assert.EqualValues(t, 7, got.ConfigVersion)
	assert.EqualValues(t, 2, got.Config.Metadata.Version)
	assert.Equal(t, "platform=ios&userId=u1", gotQuery)

	v, err := c.ConfigVersion(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 7, v)

	_, err = c.FetchScreen(context.Background(), "nope", Query{})
	assert.True(t, errors.Is(err, screen.ErrNotFound))
}

func TestStatusErrors(t *testing.T) {
	err := statusError(http.StatusUnprocessableEntity, []byte(`{"code":"validation_failed","errors":[{"path":"layout","message":"bad"}]}`), "screen", "x")
	var ve *screen.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "layout", ve.Errors[0].Path)

	err = statusError(http.StatusInternalServerError, []byte(`{"message":"boom"}`), "screen", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500 boom")
	assert.NoError(t, statusError(http.StatusOK, nil, "screen", "x"))
}
