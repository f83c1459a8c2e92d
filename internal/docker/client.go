package docker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-units"
	"github.com/google/uuid"

	"github.com/p-arndt/werkbank/internal/config"
	"github.com/p-arndt/werkbank/internal/runtime"
)

const labelPrefix = "werkbank."

const (
	labelManaged   = labelPrefix + "managed"
	labelExpiresAt = labelPrefix + "expires_at"
)

// Driver runs each sandbox as a long-lived container on the local Docker
// daemon. Docker has no server-side expiry, so deadlines are tracked here
// and enforced by the reaper through List and Remove.
type Driver struct {
	docker *client.Client
	cfg    config.DockerConfig
	logger *slog.Logger

	mu        sync.Mutex
	deadlines map[string]time.Time
}

var (
	_ runtime.Driver = (*Driver)(nil)
	_ runtime.Lister = (*Driver)(nil)
)

func New(cfg config.DockerConfig, logger *slog.Logger) (*Driver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Driver{
		docker:    cli,
		cfg:       cfg,
		logger:    logger.With("component", "docker"),
		deadlines: make(map[string]time.Time),
	}, nil
}

func (d *Driver) Name() string { return config.DriverDocker }

func (d *Driver) Close() error {
	return d.docker.Close()
}

// Ping verifies the Docker daemon is reachable.
func (d *Driver) Ping(ctx context.Context) error {
	_, err := d.docker.Ping(ctx)
	return err
}

// Create creates and starts a sandbox container that idles until removed.
func (d *Driver) Create(ctx context.Context, ttl time.Duration) (runtime.Sandbox, error) {
	expiresAt := time.Now().Add(ttl)
	labels := map[string]string{
		labelManaged:   "true",
		labelExpiresAt: strconv.FormatInt(expiresAt.Unix(), 10),
	}

	resources := container.Resources{
		NanoCPUs:  int64(d.cfg.CPULimit * 1e9),
		Memory:    int64(d.cfg.MemLimitMB) * units.MiB,
		PidsLimit: int64Ptr(int64(d.cfg.PidsLimit)),
	}

	hostCfg := &container.HostConfig{
		Resources:   resources,
		AutoRemove:  false,
		SecurityOpt: []string{"no-new-privileges"},
		CapDrop:     []string{"ALL"},
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeTmpfs,
				Target: "/tmp",
				TmpfsOptions: &mount.TmpfsOptions{
					SizeBytes: 512 * units.MiB,
				},
			},
		},
	}
	if d.cfg.NetworkMode != "" {
		hostCfg.NetworkMode = container.NetworkMode(d.cfg.NetworkMode)
	}

	containerCfg := &container.Config{
		Image:  d.cfg.Image,
		Labels: labels,
		Tty:    false,
		Cmd:    []string{"sleep", "infinity"},
	}

	name := "werkbank-" + uuid.NewString()[:12]
	resp, err := d.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("container create: %w", err)
	}

	if err := d.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// Clean up on start failure.
		_ = d.docker.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("container start: %w", err)
	}

	d.setDeadline(resp.ID, expiresAt)
	d.logger.Debug("container started", "sandbox_id", shortID(resp.ID), "image", d.cfg.Image,
		"memory", units.BytesSize(float64(resources.Memory)))

	return &sandbox{id: resp.ID, driver: d}, nil
}

// Connect returns a handle to a running managed container.
func (d *Driver) Connect(ctx context.Context, sandboxID string) (runtime.Sandbox, error) {
	info, err := d.docker.ContainerInspect(ctx, sandboxID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, fmt.Errorf("%w: %s", runtime.ErrSandboxNotFound, shortID(sandboxID))
		}
		return nil, fmt.Errorf("container inspect: %w", err)
	}
	if info.State == nil || !info.State.Running {
		return nil, fmt.Errorf("%w: %s is not running", runtime.ErrSandboxNotFound, shortID(sandboxID))
	}
	if info.Config == nil || info.Config.Labels[labelManaged] != "true" {
		return nil, fmt.Errorf("%w: %s is not a managed sandbox", runtime.ErrSandboxNotFound, shortID(sandboxID))
	}

	d.mu.Lock()
	if _, ok := d.deadlines[info.ID]; !ok {
		d.deadlines[info.ID] = labelDeadline(info.Config.Labels)
	}
	d.mu.Unlock()

	return &sandbox{id: info.ID, driver: d}, nil
}

// List returns all managed containers with their current deadline.
func (d *Driver) List(ctx context.Context) ([]runtime.SandboxInfo, error) {
	f := filters.NewArgs()
	f.Add("label", labelManaged+"=true")

	containers, err := d.docker.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: f,
	})
	if err != nil {
		return nil, fmt.Errorf("container list: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	result := make([]runtime.SandboxInfo, 0, len(containers))
	for _, ctr := range containers {
		deadline, ok := d.deadlines[ctr.ID]
		if !ok {
			deadline = labelDeadline(ctr.Labels)
		}
		result = append(result, runtime.SandboxInfo{ID: ctr.ID, ExpiresAt: deadline})
	}
	return result, nil
}

// Remove force-removes a container. Missing containers are not an error.
func (d *Driver) Remove(ctx context.Context, sandboxID string) error {
	err := d.docker.ContainerRemove(ctx, sandboxID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("container remove: %w", err)
	}
	d.mu.Lock()
	delete(d.deadlines, sandboxID)
	d.mu.Unlock()
	return nil
}

func (d *Driver) setDeadline(id string, t time.Time) {
	d.mu.Lock()
	d.deadlines[id] = t
	d.mu.Unlock()
}

// labelDeadline reads the creation-time expiry label. Unparseable labels
// yield the zero time, which the reaper treats as already expired, so an
// unreferenced container with a bad label is removed.
func labelDeadline(labels map[string]string) time.Time {
	sec, err := strconv.ParseInt(labels[labelExpiresAt], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func int64Ptr(v int64) *int64 {
	return &v
}
