// Package plugin coordinates the agent: it watches the consumer
// certificate and the repo-definition file, validates registration against
// the entitlement server, keeps the messaging settings current, and sends
// enabled-repository reports.
package plugin

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/katello/katello-agent/pkg/attach"
	"github.com/katello/katello-agent/pkg/backoff"
	"github.com/katello/katello-agent/pkg/entitlement"
	"github.com/katello/katello-agent/pkg/identity"
	"github.com/katello/katello-agent/pkg/messaging"
	"github.com/katello/katello-agent/pkg/pathmon"
	"github.com/katello/katello-agent/pkg/repos"
	"github.com/katello/katello-agent/pkg/rhsm"
	"github.com/katello/katello-agent/pkg/storage"
)

const statusKey = "status"

// UEPClient is the entitlement server surface the plugin uses.
type UEPClient interface {
	GetConsumer(ctx context.Context, consumerID string) (*entitlement.Consumer, error)
	ReportEnabled(ctx context.Context, consumerID string, report *repos.EnabledReport) error
}

// Config holds the filesystem paths the plugin works against. All of them
// are owned by external systems; the plugin only reads them (and writes
// the certificate bundle next to the consumer certificate).
type Config struct {
	// ConsumerCertDir is the directory holding the consumer identity
	// certificate and key.
	ConsumerCertDir string
	// RHSMConfPath is the subscription-manager configuration file.
	RHSMConfPath string
	// RepoPath is the repo-definition file whose repositories are reported.
	RepoPath string
	// ReposDir is the yum repo-definition directory.
	ReposDir string
}

// AgentStatus is the persisted view of the agent, surfaced by the health
// endpoint and kept across restarts.
type AgentStatus struct {
	ConsumerID string    `json:"consumer_id"`
	Registered bool      `json:"registered"`
	LastReport time.Time `json:"last_report,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Plugin ties the identity reader, entitlement client, path monitor,
// attach worker, and host runtime together.
type Plugin struct {
	logger log.Logger
	cfg    Config
	state  *attach.State
	host   messaging.HostRuntime
	store  storage.GetterSetter
	worker *attach.Worker

	// newUEP builds a fresh entitlement client; fresh because the consumer
	// certificate it authenticates with may have rotated.
	newUEP func() (UEPClient, error)

	statusMu   sync.Mutex
	lastReport time.Time
}

type Option func(*Plugin)

// WithUEPFactory overrides entitlement client construction; used by tests.
func WithUEPFactory(factory func() (UEPClient, error)) Option {
	return func(p *Plugin) {
		p.newUEP = factory
	}
}

// WithWorkerOptions forwards options to the attach worker.
func WithWorkerOptions(opts ...attach.WorkerOption) Option {
	return func(p *Plugin) {
		p.worker = attach.NewWorker(p.logger, p.state, p, p, opts...)
	}
}

func New(logger log.Logger, cfg Config, state *attach.State, host messaging.HostRuntime, store storage.GetterSetter, opts ...Option) *Plugin {
	p := &Plugin{
		logger: log.With(logger, "component", "plugin"),
		cfg:    cfg,
		state:  state,
		host:   host,
		store:  store,
	}

	p.newUEP = p.defaultUEPFactory
	p.worker = attach.NewWorker(logger, state, p, p)

	// Carry report bookkeeping across restarts.
	if status, err := LoadStatus(store); err == nil {
		p.lastReport = status.LastReport
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *Plugin) defaultUEPFactory() (UEPClient, error) {
	cfg, err := rhsm.LoadConfig(p.cfg.RHSMConfPath)
	if err != nil {
		return nil, err
	}

	return entitlement.NewClient(
		p.logger,
		cfg.ServerHostname,
		identity.KeyPath(p.cfg.ConsumerCertDir),
		identity.CertPath(p.cfg.ConsumerCertDir),
		cfg.RepoCACert,
	)
}

// Initialize registers path monitoring and kicks off the initial attach
// sequence in the background, so startup never blocks on the entitlement
// server.
func (p *Plugin) Initialize(ctx context.Context, monitor *pathmon.Monitor) {
	monitor.Add(identity.CertPath(p.cfg.ConsumerCertDir), func(path string) {
		p.CertificateChanged(ctx, path)
	})
	monitor.Add(p.cfg.RepoPath, func(path string) {
		level.Info(p.logger).Log("msg", "repo definitions changed", "path", path)
		p.SendEnabledReport(ctx)
	})

	go p.worker.Run(ctx)
}

// CertificateChanged handles a consumer certificate change: registration
// re-runs the full attach sequence, unregistration ends in a detach.
func (p *Plugin) CertificateChanged(ctx context.Context, path string) {
	level.Info(p.logger).Log("msg", "consumer certificate changed", "path", path)
	go p.worker.Run(ctx)
}

// ValidateRegistration checks consumer existence on the entitlement
// server and updates the shared registration state. A missing consumer
// (locally or on the server) is "not registered", not an error; anything
// else is returned for the attach worker's retry loop.
func (p *Plugin) ValidateRegistration(ctx context.Context) error {
	p.state.Set("", false)

	if !identity.ExistsAndValid(p.cfg.ConsumerCertDir) {
		p.persistStatus()
		return nil
	}

	consumer, err := identity.Read(p.cfg.ConsumerCertDir)
	if err != nil {
		return errors.Wrap(err, "reading consumer identity")
	}
	consumerID := consumer.ConsumerID()

	uep, err := p.newUEP()
	if err != nil {
		return errors.Wrap(err, "building entitlement client")
	}

	remote, err := uep.GetConsumer(ctx, consumerID)
	switch {
	case errors.Is(err, entitlement.ErrNotFound):
		p.persistStatus()
		return nil
	case err != nil:
		level.Warn(p.logger).Log(
			"msg", "registration validation failed",
			"consumer_id", consumerID,
			"err", err,
		)
		return err
	}

	p.state.Set(consumerID, remote != nil)
	p.persistStatus()
	return nil
}

// SendEnabledReport builds and uploads the enabled-repository report.
// It does nothing when the consumer is not registered, and failures are
// logged rather than raised: the report is resent on the next
// repo-definition change or attach cycle anyway.
func (p *Plugin) SendEnabledReport(ctx context.Context) {
	if !p.state.Registered() {
		return
	}

	if err := p.sendEnabledReport(ctx); err != nil {
		level.Error(p.logger).Log(
			"msg", "send enabled report failed",
			"err", err,
		)
	}
}

func (p *Plugin) sendEnabledReport(ctx context.Context) error {
	consumer, err := identity.Read(p.cfg.ConsumerCertDir)
	if err != nil {
		return errors.Wrap(err, "reading consumer identity")
	}

	report, err := repos.Generate(p.cfg.ReposDir, p.cfg.RepoPath)
	if err != nil {
		return errors.Wrap(err, "generating enabled report")
	}

	uep, err := p.newUEP()
	if err != nil {
		return errors.Wrap(err, "building entitlement client")
	}

	if err := uep.ReportEnabled(ctx, consumer.ConsumerID(), report); err != nil {
		return err
	}

	p.statusMu.Lock()
	p.lastReport = time.Now()
	p.statusMu.Unlock()
	p.persistStatus()

	return nil
}

// UpdateSettings refreshes the messaging settings from rhsm configuration
// and the consumer identity, and rewrites the certificate bundle the
// broker connection authenticates with.
func (p *Plugin) UpdateSettings(ctx context.Context) error {
	cfg, err := rhsm.LoadConfig(p.cfg.RHSMConfPath)
	if err != nil {
		return err
	}

	// The certificate may still be mid-write right after registration;
	// retry briefly before giving up to the worker's outer loop.
	var consumer *identity.ConsumerIdentity
	if err := backoff.WaitFor(func() error {
		var readErr error
		consumer, readErr = identity.Read(p.cfg.ConsumerCertDir)
		return readErr
	}, 5*time.Second, 500*time.Millisecond); err != nil {
		return errors.Wrap(err, "reading consumer identity")
	}

	settings := messaging.DeriveSettings(cfg, consumer.ConsumerID())

	bundlePath, err := consumer.WriteBundle()
	if err != nil {
		return err
	}
	settings.BundlePath = bundlePath

	p.host.UpdateMessaging(settings)
	return nil
}

// Attach signals the host runtime to attach to the message bus.
func (p *Plugin) Attach() error {
	return p.host.Attach()
}

// Detach signals the host runtime to detach from the message bus.
func (p *Plugin) Detach() error {
	return p.host.Detach()
}

// Status returns the agent's current status.
func (p *Plugin) Status() AgentStatus {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()

	return AgentStatus{
		ConsumerID: p.state.ConsumerID(),
		Registered: p.state.Registered(),
		LastReport: p.lastReport,
		UpdatedAt:  time.Now(),
	}
}

func (p *Plugin) persistStatus() {
	status := p.Status()

	raw, err := json.Marshal(status)
	if err != nil {
		level.Debug(p.logger).Log("msg", "marshalling agent status", "err", err)
		return
	}

	if err := p.store.Set([]byte(statusKey), raw); err != nil {
		level.Debug(p.logger).Log("msg", "persisting agent status", "err", err)
	}
}

// LoadStatus reads the last persisted agent status from store.
func LoadStatus(store storage.Getter) (AgentStatus, error) {
	var status AgentStatus

	raw, err := store.Get([]byte(statusKey))
	if err != nil {
		return status, errors.Wrap(err, "reading agent status")
	}
	if raw == nil {
		return status, nil
	}

	if err := json.Unmarshal(raw, &status); err != nil {
		return status, errors.Wrap(err, "unmarshalling agent status")
	}

	return status, nil
}
