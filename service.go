package main

import (
	"github.com/kardianos/service"
)

// Nop satisfies service.Interface for control actions: install, start,
// stop and uninstall never run the workload in-process.
type Nop struct{}

func (Nop) Start(service.Service) error { return nil }
func (Nop) Stop(service.Service) error  { return nil }

type ServiceController struct {
	configPath string
	svc        service.Service
}

func NewServiceController(configPath string) *ServiceController {
	return &ServiceController{
		configPath: configPath,
	}
}

func (ctl *ServiceController) lazyInit() error {
	if ctl.svc != nil {
		return nil
	}

	svc, err := service.New(Nop{}, &service.Config{
		Name:        "buildhook",
		DisplayName: "buildhook",
		Description: "Aggregates and normalizes CI/CD webhook events",
		Arguments:   []string{"--config", ctl.configPath},
	})
	if err != nil {
		return err
	}

	ctl.svc = svc

	return nil
}

func (ctl *ServiceController) Install() error {
	if err := ctl.lazyInit(); err != nil {
		return err
	}

	return ctl.svc.Install()
}

func (ctl *ServiceController) Uninstall() error {
	if err := ctl.lazyInit(); err != nil {
		return err
	}

	return ctl.svc.Uninstall()
}

func (ctl *ServiceController) Start() error {
	if err := ctl.lazyInit(); err != nil {
		return err
	}

	return ctl.svc.Start()
}

func (ctl *ServiceController) Stop() error {
	if err := ctl.lazyInit(); err != nil {
		return err
	}

	return ctl.svc.Stop()
}
