package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"runtime"

	"github.com/docker/go-units"
	"github.com/mdouchement/logger"
	"github.com/mdouchement/resumable/internal/client"
	"github.com/mdouchement/resumable/internal/config"
	"github.com/mdouchement/resumable/internal/database"
	"github.com/mdouchement/resumable/internal/scheduler"
	"github.com/mdouchement/resumable/internal/storage"
	"github.com/mdouchement/resumable/internal/upload"
	"github.com/mdouchement/resumable/internal/webserver"
	"github.com/ncw/swift/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cfgpath string
	binding string

	server    string
	chunksize string
)

func main() {
	c := &cobra.Command{
		Use:     "resumable",
		Short:   "Resumable chunked file upload server",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    cobra.ExactArgs(0),
	}
	c.PersistentFlags().StringVarP(&cfgpath, "config", "c", "", "Configuration file (YAML)")
	c.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Version for resumable",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(c.Version)
		},
	})
	c.AddCommand(initCmd)
	c.AddCommand(reindexCmd)

	serverCmd.Flags().StringVarP(&binding, "binding", "b", "", "Server's listen address (e.g. 0.0.0.0:8081)")
	c.AddCommand(serverCmd)

	pushCmd.Flags().StringVarP(&server, "server", "s", "http://localhost:8081", "Server's URL")
	pushCmd.Flags().StringVarP(&chunksize, "chunk-size", "", "5MiB", "Size of the uploaded chunks")
	c.AddCommand(pushCmd)

	if err := c.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}

var (
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Init the database",
		Args:  cobra.ExactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgpath)
			if err != nil {
				return err
			}
			return database.StormInit(cfg.DatabasePath)
		},
	}

	//

	reindexCmd = &cobra.Command{
		Use:   "reindex",
		Short: "Reindex the database",
		Args:  cobra.ExactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgpath)
			if err != nil {
				return err
			}
			return database.StormReIndex(cfg.DatabasePath)
		},
	}

	//

	pushCmd = &cobra.Command{
		Use:   "push FILE",
		Short: "Upload a file, resuming a previous interrupted upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			size, err := units.RAMInBytes(chunksize)
			if err != nil {
				return errors.Wrap(err, "chunk-size")
			}

			c := client.New(newLogger(false), server, size)
			report, err := c.Push(context.Background(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("%s %s (%d chunk(s), %d skipped)\n", report.Hash, report.FileName, report.Total, report.Skipped)
			return nil
		},
	}

	//

	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Start server",
		Args:  cobra.ExactArgs(0),
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgpath)
			if err != nil {
				return err
			}
			if binding != "" {
				cfg.ListenAddr = binding
			}

			maxChunkSize, err := cfg.ChunkSizeLimit()
			if err != nil {
				return err
			}
			staleAfter, err := cfg.StaleDuration()
			if err != nil {
				return err
			}

			ctrl := webserver.Controller{
				Version:    c.Parent().Version,
				StaticPath: cfg.StaticPath,
				Debug:      cfg.Debug,
				Logger:     newLogger(cfg.Debug),
			}

			//

			if err = os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
				return errors.Wrap(err, "could not create database directory")
			}

			db, err := database.StormOpen(cfg.DatabasePath)
			if err != nil {
				return errors.Wrap(err, "could not open database")
			}
			defer db.Close()

			//

			staging := storage.NewStaging(cfg.StagingPath())
			backend, err := newBackend(cfg)
			if err != nil {
				return err
			}
			ctrl.Logger.Infof("Using %s storage backend", backend.Name())

			ctrl.Service = upload.NewService(upload.Options{
				Logger:         ctrl.Logger,
				Database:       db,
				Storage:        backend,
				Staging:        staging,
				MaxChunkSize:   maxChunkSize,
				VerifyChecksum: cfg.VerifyChecksum,
			})

			//

			stop, err := scheduler.Start(scheduler.Controller{
				Logger:        ctrl.Logger,
				Service:       ctrl.Service,
				Staging:       staging,
				StaleAfter:    staleAfter,
				Specification: cfg.Schedule,
			})
			if err != nil {
				return errors.Wrap(err, "could not start scheduler")
			}
			defer stop()

			//

			engine := webserver.EchoEngine(ctrl)
			webserver.PrintRoutes(engine)

			ctrl.Logger.Infof("Server listening on %s", cfg.ListenAddr)
			return errors.Wrap(
				engine.Start(cfg.ListenAddr),
				"could not run server",
			)
		},
	}
)

func newLogger(debug bool) logger.Logger {
	log := logrus.New()
	if debug {
		log.SetLevel(logrus.DebugLevel)
	}
	log.SetFormatter(&logger.LogrusTextFormatter{
		DisableColors:   false,
		ForceColors:     true,
		ForceFormatting: true,
		PrefixRE:        regexp.MustCompile(`^(\[.*?\])\s`),
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return logger.WrapLogrus(log)
}

func newBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Backend {
	case config.BackendSwift:
		conn := &swift.Connection{
			AuthUrl:  cfg.Swift.AuthURL,
			UserName: cfg.Swift.UserName,
			ApiKey:   cfg.Swift.APIKey,
			Tenant:   cfg.Swift.Tenant,
			Domain:   cfg.Swift.Domain,
			Region:   cfg.Swift.Region,
		}
		return storage.NewSwift(context.Background(), conn, cfg.Swift.Container)
	default:
		return storage.NewFileSystem(cfg.StoragePath), nil
	}
}
