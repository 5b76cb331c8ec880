package entitlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"

	"github.com/katello/katello-agent/pkg/repos"
)

func TestGetConsumer(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "GET", r.Method)
		require.Equal(t, "/consumers/abc-123", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Consumer{UUID: "abc-123", Name: "host.example.com"})
	}))
	defer server.Close()

	client, err := NewInsecureClient(log.NewNopLogger(), server.URL)
	require.NoError(t, err)

	consumer, err := client.GetConsumer(context.Background(), "abc-123")
	require.NoError(t, err)
	require.Equal(t, "abc-123", consumer.UUID)
	require.Equal(t, "host.example.com", consumer.Name)
}

func TestGetConsumerNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, err := NewInsecureClient(log.NewNopLogger(), server.URL)
	require.NoError(t, err)

	_, err = client.GetConsumer(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetConsumerServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewInsecureClient(log.NewNopLogger(), server.URL)
	require.NoError(t, err)

	_, err = client.GetConsumer(context.Background(), "abc-123")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestReportEnabled(t *testing.T) {
	t.Parallel()

	var received struct {
		Enabled struct {
			Repos []struct {
				RepositoryID string   `json:"repositoryid"`
				BaseURL      []string `json:"baseurl"`
			} `json:"repos"`
		} `json:"enabled_repos"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "PUT", r.Method)
		require.Equal(t, "/systems/abc-123/enabled_repos", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer server.Close()

	client, err := NewInsecureClient(log.NewNopLogger(), server.URL)
	require.NoError(t, err)

	report := &repos.EnabledReport{
		Enabled: repos.EnabledRepos{
			Repos: []repos.Repo{
				{RepositoryID: "rhel-7-server-rpms", BaseURL: []string{"https://cdn.example.com/os"}},
			},
		},
	}

	require.NoError(t, client.ReportEnabled(context.Background(), "abc-123", report))
	require.Len(t, received.Enabled.Repos, 1)
	require.Equal(t, "rhel-7-server-rpms", received.Enabled.Repos[0].RepositoryID)
}

func TestReportEnabledRejected(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewInsecureClient(log.NewNopLogger(), server.URL)
	require.NoError(t, err)

	err = client.ReportEnabled(context.Background(), "abc-123", &repos.EnabledReport{})
	require.Error(t, err)
}