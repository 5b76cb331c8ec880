package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

func main() {
	logger := newLogger(false) // only used until options are parsed

	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		level.Info(logger).Log("err", err)
		os.Exit(1)
	}

	logger = newLogger(opts.debug)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := runAgent(ctx, cancel, opts, logger); err != nil {
		level.Info(logger).Log(
			"msg", "run agent",
			"err", err,
			"stack", fmt.Sprintf("%+v", err),
		)
		os.Exit(1)
	}
}

func newLogger(debug bool) log.Logger {
	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stderr))
	if debug {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	return log.With(logger,
		"ts", log.DefaultTimestampUTC,
		"caller", log.DefaultCaller,
	)
}
