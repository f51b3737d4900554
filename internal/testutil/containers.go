// Package testutil starts the backing services integration tests run against.
package testutil

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
)

// isPodman reports whether the container engine behind the docker CLI is Podman,
// either through DOCKER_HOST or the output of "docker info".
func isPodman() bool {
	if strings.Contains(os.Getenv("DOCKER_HOST"), "podman") {
		return true
	}

	output, err := exec.Command("docker", "info").CombinedOutput()
	return err == nil && strings.Contains(strings.ToLower(string(output)), "podman")
}

// DetectContainerProvider returns the testcontainers provider matching the
// local container engine, defaulting to Docker.
func DetectContainerProvider() testcontainers.ProviderType {
	if isPodman() {
		return testcontainers.ProviderPodman
	}
	return testcontainers.ProviderDocker
}

// ConfigureRyuk disables the Ryuk reaper under Podman, where it usually lacks
// permissions. Returns true if Ryuk was disabled.
func ConfigureRyuk() bool {
	if isPodman() && os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
		return true
	}
	return false
}

// StartContainer starts req and terminates it when the test ends.
// Integration tests are skipped in -short mode.
func StartContainer(t *testing.T, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ConfigureRyuk()

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
		ProviderType:     DetectContainerProvider(),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate %s: %v", req.Image, err)
		}
	})

	return container
}
