// Package dockerproc is an alternate Process Manager backend (§4.1's
// Mode == ModeDocker) that launches an agent inside a container instead of
// as a local OS process, using the Docker SDK directly.
package dockerproc

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"syscall"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/kandev/agentengine/internal/common/config"
	"github.com/kandev/agentengine/internal/common/logger"
	"github.com/kandev/agentengine/internal/process"
	"go.uber.org/zap"
)

// Launcher implements process.Launcher against a real Docker daemon.
type Launcher struct {
	cli    *client.Client
	cfg    config.DockerConfig
	log    *logger.Logger
	image  string
	labels map[string]string
}

// New connects a Launcher to the Docker daemon described by cfg. image is
// the container image every launched agent runs in; callers that need
// per-task images can construct one Launcher per image.
func New(cfg config.DockerConfig, image string, log *logger.Logger) (*Launcher, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	if cfg.APIVersion != "" {
		opts = append(opts, client.WithVersion(cfg.APIVersion))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("dockerproc: new client: %w", err)
	}
	return &Launcher{
		cli:    cli,
		cfg:    cfg,
		log:    log.WithFields(zap.String("component", "dockerproc")),
		image:  image,
		labels: map[string]string{"agentengine.managed": "true"},
	}, nil
}

var _ process.Launcher = (*Launcher)(nil)

// Launch creates, starts, and attaches to a container running cfg.Executable
// with cfg.Args, with stdin/stdout/stderr wired the same way an os/exec
// child's streams are (Tty disabled so JSON-RPC and NDJSON protocols see
// exact bytes, demultiplexed per Docker's stream framing).
func (l *Launcher) Launch(ctx context.Context, id string, cfg process.Config) (process.Backend, process.Streams, error) {
	containerCfg := &container.Config{
		Image:        l.image,
		Cmd:          append([]string{cfg.Executable}, cfg.Args...),
		Env:          cfg.Env,
		WorkingDir:   cfg.WorkDir,
		Labels:       l.labels,
		OpenStdin:    true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
	}
	hostCfg := &container.HostConfig{
		NetworkMode: container.NetworkMode(l.cfg.DefaultNetwork),
		AutoRemove:  true,
	}

	resp, err := l.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "agentengine-"+id)
	if err != nil {
		return nil, process.Streams{}, fmt.Errorf("dockerproc: create container: %w", err)
	}

	attach, err := l.cli.ContainerAttach(ctx, resp.ID, container.AttachOptions{
		Stream: true, Stdin: true, Stdout: true, Stderr: true,
	})
	if err != nil {
		return nil, process.Streams{}, fmt.Errorf("dockerproc: attach container: %w", err)
	}

	if err := l.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		attach.Close()
		return nil, process.Streams{}, fmt.Errorf("dockerproc: start container: %w", err)
	}

	stdoutReader, stdoutWriter := io.Pipe()
	go func() {
		defer stdoutWriter.Close()
		demultiplex(attach.Reader, stdoutWriter)
	}()

	b := &backend{
		cli:         l.cli,
		containerID: resp.ID,
		log:         l.log,
		waitCh:      make(chan container.WaitResponse, 1),
		errCh:       make(chan error, 1),
	}
	waitCh, errCh := l.cli.ContainerWait(context.Background(), resp.ID, container.WaitConditionNotRunning)
	go func() {
		select {
		case r := <-waitCh:
			b.waitCh <- r
		case e := <-errCh:
			b.errCh <- e
		}
	}()

	streams := process.Streams{Stdin: attach.Conn, Stdout: stdoutReader, Stderr: stdoutReader}
	return b, streams, nil
}

// demultiplex strips Docker's 8-byte stream-type/size frame headers and
// writes stdout and stderr frames through to writer.
func demultiplex(reader io.Reader, writer io.Writer) {
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(reader, header); err != nil {
			return
		}
		streamType := header[0]
		size := binary.BigEndian.Uint32(header[4:8])
		if size == 0 {
			continue
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(reader, data); err != nil {
			return
		}
		if streamType == 1 || streamType == 2 {
			writer.Write(data)
		}
	}
}

// backend implements process.Backend against a running container.
type backend struct {
	cli         *client.Client
	containerID string
	log         *logger.Logger
	waitCh      chan container.WaitResponse
	errCh       chan error
	exitCode    int
}

func (b *backend) Wait() error {
	select {
	case r := <-b.waitCh:
		b.exitCode = int(r.StatusCode)
		if r.Error != nil && r.Error.Message != "" {
			return fmt.Errorf("dockerproc: container error: %s", r.Error.Message)
		}
		if r.StatusCode != 0 {
			return fmt.Errorf("dockerproc: container exited with code %d", r.StatusCode)
		}
		return nil
	case err := <-b.errCh:
		return fmt.Errorf("dockerproc: wait: %w", err)
	}
}

func (b *backend) Signal(sig syscall.Signal) error {
	return b.cli.ContainerKill(context.Background(), b.containerID, sig.String())
}

func (b *backend) ExitCode() int { return b.exitCode }

// TermSignal is always 0: the Docker API reports exit codes, not the
// terminating signal, for a killed container.
func (b *backend) TermSignal() syscall.Signal { return 0 }

func (b *backend) Stop() {
	timeout := 5
	if err := b.cli.ContainerStop(context.Background(), b.containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		b.log.Warn("failed to stop container", zap.String("container_id", b.containerID), zap.Error(err))
	}
}
