package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAPIRejectsBadUsers(t *testing.T) {
	_, err := newAPI(stubConfig{Users: []string{"nopassword"}, AccessTTL: time.Minute, RefreshTTL: time.Hour})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user:password")
}

func TestRouterMountsAPI(t *testing.T) {
	api, err := newAPI(stubConfig{Users: []string{"demo:demo1234"}, AccessTTL: time.Minute, RefreshTTL: time.Hour})
	require.NoError(t, err)
	srv := httptest.NewServer(router(api, zerolog.Nop()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/recipes/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/token/", "application/json",
		strings.NewReader(`{"username":"demo","password":"demo1234"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestUsernames(t *testing.T) {
	assert.Equal(t, []string{"demo", "ada"}, usernames([]string{"demo:demo1234", "ada:x"}))
}
