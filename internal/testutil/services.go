package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MinIO root credentials of the container started by StartMinIO.
const (
	MinIOAccessKey = "minioadmin"
	MinIOSecretKey = "minioadmin"
)

// StartMinIO starts a MinIO server and returns its host:port endpoint.
func StartMinIO(t *testing.T) string {
	t.Helper()

	container := StartContainer(t, testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     MinIOAccessKey,
			"MINIO_ROOT_PASSWORD": MinIOSecretKey,
		},
		Cmd:        []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/ready").WithPort("9000").WithStartupTimeout(60 * time.Second),
	})

	endpoint, err := container.Endpoint(context.Background(), "")
	require.NoError(t, err)
	return endpoint
}

// StartRedis starts a Redis server and returns its host:port address.
func StartRedis(t *testing.T) string {
	t.Helper()

	container := StartContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	})

	endpoint, err := container.Endpoint(context.Background(), "")
	require.NoError(t, err)
	return endpoint
}
