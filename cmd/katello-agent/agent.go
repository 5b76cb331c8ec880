package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/oklog/run"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/katello/katello-agent/pkg/attach"
	"github.com/katello/katello-agent/pkg/content"
	"github.com/katello/katello-agent/pkg/content/yum"
	"github.com/katello/katello-agent/pkg/messaging"
	"github.com/katello/katello-agent/pkg/pathmon"
	"github.com/katello/katello-agent/pkg/plugin"
	"github.com/katello/katello-agent/pkg/storage"
	agentbbolt "github.com/katello/katello-agent/pkg/storage/bbolt"
)

func runAgent(ctx context.Context, cancel context.CancelFunc, opts *options, logger log.Logger) error {
	level.Info(logger).Log(
		"msg", "starting katello-agent",
		"consumer_cert_dir", opts.consumerCertDir,
		"listen_address", opts.listenAddress,
	)

	if err := os.MkdirAll(opts.rootDirectory, 0755); err != nil {
		return errors.Wrap(err, "creating root directory")
	}

	dbPath := filepath.Join(opts.rootDirectory, "katello-agent.db")
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return errors.Wrapf(err, "opening agent database %s", dbPath)
	}
	defer db.Close()

	store, err := agentbbolt.NewStore(logger, db, storage.AgentStatusStore.String())
	if err != nil {
		return errors.Wrap(err, "creating agent status store")
	}

	state := attach.NewState()
	host := messaging.NewHost(logger)

	plg := plugin.New(
		logger,
		plugin.Config{
			ConsumerCertDir: opts.consumerCertDir,
			RHSMConfPath:    opts.rhsmConfPath,
			RepoPath:        opts.repoPath,
			ReposDir:        opts.reposDir,
		},
		state,
		host,
		store,
		plugin.WithWorkerOptions(attach.WithRetryInterval(opts.retryInterval)),
	)

	monitor := pathmon.New(logger, pathmon.WithInterval(opts.pollInterval))
	plg.Initialize(ctx, monitor)

	var svc content.ContentService
	svc = content.NewService(
		logger,
		yum.NewDispatcher(logger, yum.WithYumPath(opts.yumPath)),
		opts.consumerCertDir,
		state,
	)
	svc = content.LoggingMiddleware(logger)(svc)
	svc = content.UUIDMiddleware(svc)

	mux := http.NewServeMux()
	mux.Handle("/rpc", content.NewJSONRPCServer(content.MakeServerEndpoints(svc), logger))
	server := &http.Server{
		Addr:    opts.listenAddress,
		Handler: mux,
	}

	var runGroup run.Group

	// listen for signals
	sigChannel := make(chan os.Signal, 1)
	runGroup.Add(func() error {
		signal.Notify(sigChannel, os.Interrupt, syscall.SIGTERM)
		sig := <-sigChannel
		level.Info(logger).Log(
			"msg", "beginning shutdown via signal",
			"signal_received", sig,
		)
		return nil
	}, func(error) {
		cancel()
		signal.Stop(sigChannel)
		close(sigChannel)
	})

	// path monitor
	runGroup.Add(monitor.Execute, monitor.Interrupt)

	// content API server
	runGroup.Add(server.ListenAndServe, func(err error) {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			level.Error(logger).Log(
				"msg", "shutting down content API server",
				"err", err,
			)
		}
	})

	return runGroup.Run()
}
