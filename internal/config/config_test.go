package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildRequiresDataDir(t *testing.T) {
	_, err := NewBuilder().ServerURL("wss://chat.example.com:8443").Build()
	require.Error(t, err)
}

func TestBuildRequiresAtLeastOneEndpoint(t *testing.T) {
	_, err := NewBuilder().DataDir("/tmp/privchat").Build()
	require.Error(t, err)
}

func TestBuildRejectsBadEndpoint(t *testing.T) {
	_, err := NewBuilder().DataDir("/tmp/privchat").ServerURL("not a url").Build()
	require.Error(t, err)
}

func TestBuildAppliesDefaults(t *testing.T) {
	cfg, err := NewBuilder().
		DataDir("/tmp/privchat").
		ServerURL("wss://chat.example.com:8443").
		Build()
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	require.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	require.Equal(t, 4, cfg.SendQueueWorkers)
	require.Equal(t, 3, cfg.FileQueueWorkers)
	require.Equal(t, 10_000, cfg.PresenceCacheSize)
}

func TestBuildRejectsInvalidFileQueueWorkers(t *testing.T) {
	_, err := NewBuilder().
		DataDir("/tmp/privchat").
		ServerURL("wss://chat.example.com:8443").
		FileQueueWorkers(7).
		Build()
	require.Error(t, err)
}

func TestBuildPreservesExplicitFileQueueWorkers(t *testing.T) {
	cfg, err := NewBuilder().
		DataDir("/tmp/privchat").
		ServerURL("wss://chat.example.com:8443").
		FileQueueWorkers(2).
		Build()
	require.NoError(t, err)
	require.Equal(t, 2, cfg.FileQueueWorkers)
}

func TestBuildPreservesEndpointOrder(t *testing.T) {
	cfg, err := NewBuilder().
		DataDir("/tmp/privchat").
		ServerURL("wss://primary.example.com:8443").
		ServerURL("wss://backup.example.com:8443").
		Build()
	require.NoError(t, err)
	require.Len(t, cfg.Endpoints, 2)
	require.Equal(t, "primary.example.com", cfg.Endpoints[0].Host)
	require.Equal(t, "backup.example.com", cfg.Endpoints[1].Host)
}
