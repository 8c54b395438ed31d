package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kardianos/service"

	"github.com/flemzord/cronr/internal/supervisor"
)

// ServiceName is the name registered with the OS service manager.
const ServiceName = "cronr"

// program adapts RunDaemon to service.Interface.
type program struct {
	params RunParams
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(_ service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		err := RunDaemon(ctx, p.params)
		p.done <- err
		if err != nil && ctx.Err() == nil {
			// Let the service manager apply its restart policy.
			newLogger(p.params.LogOutput, slog.LevelInfo).Error("daemon: exited", "error", err)
			os.Exit(1)
		}
	}()
	return nil
}

func (p *program) Stop(_ service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

// ServiceConfig describes the per-user startup registration that runs
// the daemon for params.DataDir.
func ServiceConfig(params RunParams) (*service.Config, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("service: locating executable: %w", err)
	}
	return &service.Config{
		Name:        ServiceName,
		DisplayName: "cronr scheduler",
		Description: "Runs the commands scheduled with cronr.",
		Executable:  exe,
		Arguments:   []string{supervisor.DaemonCommand, "--service", "--data-dir", params.DataDir},
		Option: service.KeyValue{
			"UserService": true,
			"RunAtLoad":   true,
		},
	}, nil
}

// NewService wraps RunDaemon for the platform service manager.
func NewService(params RunParams) (service.Service, error) {
	cfg, err := ServiceConfig(params)
	if err != nil {
		return nil, err
	}
	svc, err := service.New(&program{params: params}, cfg)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	return svc, nil
}

// ServiceControl runs one of install, uninstall, start, stop or restart.
func ServiceControl(params RunParams, action string) error {
	svc, err := NewService(params)
	if err != nil {
		return err
	}
	if err := service.Control(svc, action); err != nil {
		return fmt.Errorf("service: %s: %w", action, err)
	}
	return nil
}
