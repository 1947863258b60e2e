package main

import (
	"net/http"
	"os"
	"path/filepath"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/reconquest/karma-go"
	"github.com/reconquest/pkg/log"
	"github.com/reconquest/sign-go"

	"github.com/reconquest/buildhook/internal/notifications"
	"github.com/reconquest/buildhook/internal/provider"
	"github.com/reconquest/buildhook/internal/provider/azure"
	"github.com/reconquest/buildhook/internal/provider/bitbucket"
	"github.com/reconquest/buildhook/internal/provider/circleci"
	"github.com/reconquest/buildhook/internal/provider/generic"
	"github.com/reconquest/buildhook/internal/provider/github"
	"github.com/reconquest/buildhook/internal/provider/gitlab"
	"github.com/reconquest/buildhook/internal/provider/jenkins"
	"github.com/reconquest/buildhook/internal/publisher"
	"github.com/reconquest/buildhook/internal/reconciler"
	"github.com/reconquest/buildhook/internal/router"
	"github.com/reconquest/buildhook/internal/storage"
)

var (
	version = "[manual build]"
	usage   = "buildhook " + version + `

Usage:
  buildhook [options]
  buildhook service (install|uninstall|start|stop) [options]
  buildhook -h | --help
  buildhook --version

Options:
  -h --help           Show this screen.
  --version           Show version.
  -c --config <path>  Use specified config.
                       [default: ` + DEFAULT_CONFIG_PATH + `]
`
)

type commandLineOptions struct {
	ConfigPathValue string `docopt:"--config"`
	Service         bool   `docopt:"service"`
	Install         bool   `docopt:"install"`
	Uninstall       bool   `docopt:"uninstall"`
	Start           bool   `docopt:"start"`
	Stop            bool   `docopt:"stop"`
}

func main() {
	args, err := docopt.ParseArgs(usage, nil, version)
	if err != nil {
		log.Fatal(err)
	}

	var options commandLineOptions
	err = args.Bind(&options)
	if err != nil {
		log.Fatal(err)
	}

	if options.Service {
		err := controlService(options)
		if err != nil {
			log.Fatal(err)
		}

		return
	}

	config, err := LoadConfig(options.ConfigPathValue)
	if err != nil {
		log.Fatal(err)
	}

	if config.Log.Debug {
		log.SetLevel(log.LevelDebug)
	}

	if config.Log.Trace {
		log.SetLevel(log.LevelTrace)
	}

	databaseDir := filepath.Dir(config.Database.Path)
	if _, err := os.Stat(databaseDir); os.IsNotExist(err) {
		ShowMessageDatabaseNotPrepared(databaseDir, config.Database.Path)
		os.Exit(1)
	}

	store, err := storage.NewSQLite(config.Database.Path)
	if err != nil {
		log.Fatalf(err, "unable to open database: %s", config.Database.Path)
	}

	broker := publisher.NewBroker()
	notifier := notifications.NewStoreNotifier(store)

	registry := provider.NewRegistry(
		github.NewAdapter(),
		gitlab.NewAdapter(),
		bitbucket.NewAdapter(),
		jenkins.NewAdapter(),
		circleci.NewAdapter(),
		azure.NewAdapter(),
		generic.NewAdapter(),
	)

	processor := router.New(
		registry,
		store,
		reconciler.New(store, notifier, broker),
	)

	handler := NewWebHandler(processor, store)

	server := http.Server{
		Addr:    config.ListenAddress,
		Handler: handler,
	}

	go func() {
		log.Infof(
			karma.
				Describe("address", config.ListenAddress).
				Describe("providers", registry.Names()),
			"starting http server",
		)

		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf(
				err,
				"unable to listen and serve on %s",
				config.ListenAddress,
			)
		}
	}()

	sign.Notify(func(signal os.Signal) bool {
		log.Infof(
			karma.Describe("signal", signal.String()),
			"observed a system signal, shutting down",
		)

		err := server.Close()
		if err != nil {
			log.Errorf(err, "unable to gracefuly shutdown http server")
		}

		err = store.Close()
		if err != nil {
			log.Errorf(err, "unable to close database")
		}

		return false
	}, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT)
}

func controlService(options commandLineOptions) error {
	controller := NewServiceController(options.ConfigPathValue)

	switch {
	case options.Install:
		return controller.Install()
	case options.Uninstall:
		return controller.Uninstall()
	case options.Start:
		return controller.Start()
	case options.Stop:
		return controller.Stop()
	}

	return nil
}
