package main

import (
	"flag"
	"time"

	"github.com/peterbourgon/ff/v3"

	"github.com/katello/katello-agent/pkg/repos"
	"github.com/katello/katello-agent/pkg/rhsm"
)

// options is the set of options that may be configured for the agent.
type options struct {
	// consumerCertDir is the directory holding the consumer identity
	// certificate and key, owned by subscription-manager.
	consumerCertDir string
	// rhsmConfPath is the subscription-manager configuration file.
	rhsmConfPath string
	// repoPath is the repo-definition file used for the enabled report.
	repoPath string
	// reposDir is the yum repo-definition directory.
	reposDir string
	// rootDirectory holds the agent's own state (bbolt database).
	rootDirectory string
	// listenAddress is where the content API is served.
	listenAddress string
	// pollInterval is the path monitor poll interval.
	pollInterval time.Duration
	// retryInterval is the attach worker's fixed delay between attempts.
	retryInterval time.Duration
	// yumPath is the package manager binary used by the rpm handler.
	yumPath string
	// debug enables debug logging.
	debug bool
}

func parseOptions(args []string) (*options, error) {
	flagset := flag.NewFlagSet("katello-agent", flag.ExitOnError)
	var (
		flConsumerCertDir = flagset.String("consumer_cert_dir", "/etc/pki/consumer", "Directory holding the consumer identity certificate and key")
		flRHSMConf        = flagset.String("rhsm_conf", rhsm.DefaultConfigPath, "Path to the rhsm configuration file")
		flRepoPath        = flagset.String("repo_file", repos.DefaultRepoPath, "Repo-definition file used for the enabled repository report")
		flReposDir        = flagset.String("repos_dir", repos.DefaultReposDir, "Yum repo-definition directory")
		flRootDirectory   = flagset.String("root_directory", "/var/lib/katello-agent", "Directory for agent state")
		flListenAddress   = flagset.String("listen_address", "localhost:5650", "Address the content API listens on")
		flPollInterval    = flagset.Duration("poll_interval", 3*time.Second, "Path monitor poll interval")
		flRetryInterval   = flagset.Duration("retry_interval", 60*time.Second, "Delay between attach attempts after a failure")
		flYumPath         = flagset.String("yum_path", "/usr/bin/yum", "Path to the yum binary")
		flDebug           = flagset.Bool("debug", false, "Whether or not debug logging is enabled (default: false)")

		_ = flagset.String("config", "", "config file to parse options from (optional)")
	)

	ffOpts := []ff.Option{
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("KATELLO_AGENT"),
	}

	if err := ff.Parse(flagset, args, ffOpts...); err != nil {
		return nil, err
	}

	opts := &options{
		consumerCertDir: *flConsumerCertDir,
		rhsmConfPath:    *flRHSMConf,
		repoPath:        *flRepoPath,
		reposDir:        *flReposDir,
		rootDirectory:   *flRootDirectory,
		listenAddress:   *flListenAddress,
		pollInterval:    *flPollInterval,
		retryInterval:   *flRetryInterval,
		yumPath:         *flYumPath,
		debug:           *flDebug,
	}

	return opts, nil
}
