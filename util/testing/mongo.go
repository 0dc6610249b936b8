package testing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MongoDB test container configuration
const (
	mongoImage            = "mongo:7"
	mongoPort             = "27017/tcp"
	containerStartTimeout = 120 * time.Second
)

// MongoContainer is a throwaway MongoDB server for integration tests
type MongoContainer struct {
	Container testcontainers.Container
	URI       string
}

// StartMongo starts a pristine MongoDB container and registers its
// termination with t.Cleanup. Callers should skip in short mode first.
func StartMongo(t *testing.T) *MongoContainer {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        mongoImage,
		ExposedPorts: []string{mongoPort},
		WaitingFor: wait.ForAll(
			wait.ForLog("Waiting for connections"),
			wait.ForListeningPort(mongoPort),
		).WithDeadline(containerStartTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start MongoDB container")

	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate MongoDB container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err, "Failed to get MongoDB container host")

	mappedPort, err := container.MappedPort(ctx, mongoPort)
	require.NoError(t, err, "Failed to get MongoDB mapped port")

	t.Logf("MongoDB container started successfully")
	return &MongoContainer{
		Container: container,
		URI:       fmt.Sprintf("mongodb://%s:%s/?directConnection=true", host, mappedPort.Port()),
	}
}
