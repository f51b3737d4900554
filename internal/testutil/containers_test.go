package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
)

func TestDetectContainerProvider(t *testing.T) {
	t.Run("returns a known provider", func(t *testing.T) {
		assert.Contains(t, []testcontainers.ProviderType{
			testcontainers.ProviderDocker,
			testcontainers.ProviderPodman,
		}, DetectContainerProvider())
	})

	t.Run("podman socket in DOCKER_HOST", func(t *testing.T) {
		t.Setenv("DOCKER_HOST", "unix:///run/user/1000/podman/podman.sock")
		assert.Equal(t, testcontainers.ProviderPodman, DetectContainerProvider())
	})
}

func TestConfigureRyuk(t *testing.T) {
	t.Run("disabled under podman", func(t *testing.T) {
		t.Setenv("DOCKER_HOST", "unix:///run/user/1000/podman/podman.sock")
		t.Setenv("TESTCONTAINERS_RYUK_DISABLED", "")

		assert.True(t, ConfigureRyuk())
	})

	t.Run("explicit setting wins", func(t *testing.T) {
		t.Setenv("DOCKER_HOST", "unix:///run/user/1000/podman/podman.sock")
		t.Setenv("TESTCONTAINERS_RYUK_DISABLED", "false")

		assert.False(t, ConfigureRyuk())
	})
}
