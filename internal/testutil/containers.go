// Package testutil holds helpers shared by the container-backed integration
// tests. TestMain functions call flag.Parse before using it.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

const healthTimeout = 5 * time.Second

// checkProvider is swapped in tests.
var checkProvider = func(ctx context.Context) error {
	p, err := testcontainers.NewDockerProvider()
	if err != nil {
		return err
	}
	defer p.Close()
	return p.Health(ctx)
}

// ContainersDisabled returns why containers cannot be used, or "" when a
// Docker provider answers. testcontainers panics when it finds no Docker
// socket, so the panic is turned into a reason.
func ContainersDisabled(ctx context.Context) (reason string) {
	if testing.Short() {
		return "short mode"
	}

	defer func() {
		if r := recover(); r != nil {
			reason = fmt.Sprintf("docker provider: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if err := checkProvider(ctx); err != nil {
		return fmt.Sprintf("docker provider: %v", err)
	}
	return ""
}

// StartContainer starts req and waits for its strategy. A panic inside
// testcontainers comes back as an error.
func StartContainer(ctx context.Context, req testcontainers.ContainerRequest) (c testcontainers.Container, err error) {
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, fmt.Errorf("start %s: %v", req.Image, r)
		}
	}()

	return testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
}
