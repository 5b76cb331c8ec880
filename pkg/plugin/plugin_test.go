package plugin

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/katello/katello-agent/pkg/attach"
	"github.com/katello/katello-agent/pkg/entitlement"
	"github.com/katello/katello-agent/pkg/messaging"
	"github.com/katello/katello-agent/pkg/repos"
	"github.com/katello/katello-agent/pkg/storage/inmemory"
)

func writeIdentity(t *testing.T, dir, consumerID string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: consumerID},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cert.pem"), certPEM, 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "key.pem"), keyPEM, 0600))
}

type fakeUEP struct {
	mu        sync.Mutex
	consumer  *entitlement.Consumer
	getErr    error
	reportErr error

	getCalls    int
	reportCalls int
	reportedID  string
	reported    *repos.EnabledReport
}

func (u *fakeUEP) GetConsumer(_ context.Context, consumerID string) (*entitlement.Consumer, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.getCalls++
	if u.getErr != nil {
		return nil, u.getErr
	}
	return u.consumer, nil
}

func (u *fakeUEP) ReportEnabled(_ context.Context, consumerID string, report *repos.EnabledReport) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.reportCalls++
	u.reportedID = consumerID
	u.reported = report
	return u.reportErr
}

type fakeHost struct {
	mu       sync.Mutex
	settings messaging.Settings
	updates  int
	attaches int
	detaches int
}

func (h *fakeHost) UpdateMessaging(settings messaging.Settings) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settings = settings
	h.updates++
}

func (h *fakeHost) Attach() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attaches++
	return nil
}

func (h *fakeHost) Detach() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detaches++
	return nil
}

type pluginEnv struct {
	plugin       *Plugin
	state        *attach.State
	host         *fakeHost
	uep          *fakeUEP
	factoryCalls int
	certDir      string
	reposDir     string
}

func newPluginEnv(t *testing.T) *pluginEnv {
	t.Helper()

	env := &pluginEnv{
		state:    attach.NewState(),
		host:     &fakeHost{},
		uep:      &fakeUEP{},
		certDir:  t.TempDir(),
		reposDir: t.TempDir(),
	}

	rhsmConf := filepath.Join(t.TempDir(), "rhsm.conf")
	contents := "[server]\nhostname = sat.example.com\n\n[rhsm]\nca_cert_dir = /etc/rhsm/ca/\nrepo_ca_cert = %(ca_cert_dir)skatello-server-ca.pem\n"
	require.NoError(t, os.WriteFile(rhsmConf, []byte(contents), 0644))

	env.plugin = New(
		log.NewNopLogger(),
		Config{
			ConsumerCertDir: env.certDir,
			RHSMConfPath:    rhsmConf,
			RepoPath:        filepath.Join(env.reposDir, "redhat.repo"),
			ReposDir:        env.reposDir,
		},
		env.state,
		env.host,
		inmemory.NewStore(),
		WithUEPFactory(func() (UEPClient, error) {
			env.factoryCalls++
			return env.uep, nil
		}),
	)

	return env
}

func TestValidateRegistrationNoCertificate(t *testing.T) {
	t.Parallel()

	env := newPluginEnv(t)

	require.NoError(t, env.plugin.ValidateRegistration(context.Background()))
	require.False(t, env.state.Registered())
	require.Equal(t, 0, env.factoryCalls)
}

func TestValidateRegistrationNotFound(t *testing.T) {
	t.Parallel()

	env := newPluginEnv(t)
	writeIdentity(t, env.certDir, "abc-123")
	env.uep.getErr = entitlement.ErrNotFound

	// "not found" means not registered; it must not surface as an error.
	require.NoError(t, env.plugin.ValidateRegistration(context.Background()))
	require.False(t, env.state.Registered())
	require.Equal(t, 1, env.uep.getCalls)
}

func TestValidateRegistrationSuccess(t *testing.T) {
	t.Parallel()

	env := newPluginEnv(t)
	writeIdentity(t, env.certDir, "abc-123")
	env.uep.consumer = &entitlement.Consumer{UUID: "abc-123"}

	require.NoError(t, env.plugin.ValidateRegistration(context.Background()))
	require.True(t, env.state.Registered())
	require.Equal(t, "abc-123", env.state.ConsumerID())
}

func TestValidateRegistrationServerError(t *testing.T) {
	t.Parallel()

	env := newPluginEnv(t)
	writeIdentity(t, env.certDir, "abc-123")
	env.uep.getErr = errors.New("connection refused")

	require.Error(t, env.plugin.ValidateRegistration(context.Background()))
	require.False(t, env.state.Registered())
}

func TestSendEnabledReportUnregistered(t *testing.T) {
	t.Parallel()

	env := newPluginEnv(t)
	writeIdentity(t, env.certDir, "abc-123")

	env.plugin.SendEnabledReport(context.Background())

	// No network activity of any kind when not registered.
	require.Equal(t, 0, env.factoryCalls)
	require.Equal(t, 0, env.uep.reportCalls)
}

func TestSendEnabledReportRegistered(t *testing.T) {
	t.Parallel()

	env := newPluginEnv(t)
	writeIdentity(t, env.certDir, "abc-123")
	env.state.Set("abc-123", true)

	contents := "[rhel-7-server-rpms]\nbaseurl = https://cdn.example.com/os\nenabled = 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(env.reposDir, "redhat.repo"), []byte(contents), 0644))

	env.plugin.SendEnabledReport(context.Background())

	require.Equal(t, 1, env.uep.reportCalls)
	require.Equal(t, "abc-123", env.uep.reportedID)
	require.Len(t, env.uep.reported.Enabled.Repos, 1)
	require.Equal(t, "rhel-7-server-rpms", env.uep.reported.Enabled.Repos[0].RepositoryID)
}

func TestSendEnabledReportFailureSwallowed(t *testing.T) {
	t.Parallel()

	env := newPluginEnv(t)
	writeIdentity(t, env.certDir, "abc-123")
	env.state.Set("abc-123", true)
	env.uep.reportErr = errors.New("server unavailable")

	// Must not panic or propagate; failures are logged and retried on the
	// next cycle.
	env.plugin.SendEnabledReport(context.Background())
	require.Equal(t, 1, env.uep.reportCalls)
}

func TestUpdateSettings(t *testing.T) {
	t.Parallel()

	env := newPluginEnv(t)
	writeIdentity(t, env.certDir, "abc-123")

	require.NoError(t, env.plugin.UpdateSettings(context.Background()))

	require.Equal(t, 1, env.host.updates)
	require.Equal(t, "proton+amqps://sat.example.com:5647", env.host.settings.BrokerURL)
	require.Equal(t, "pulp.agent.abc-123", env.host.settings.ClientID)
	require.Equal(t, "/etc/rhsm/ca/katello-server-ca.pem", env.host.settings.CACert)

	_, err := os.Stat(env.host.settings.BundlePath)
	require.NoError(t, err)
}

func TestStatusPersistence(t *testing.T) {
	t.Parallel()

	env := newPluginEnv(t)
	writeIdentity(t, env.certDir, "abc-123")
	env.uep.consumer = &entitlement.Consumer{UUID: "abc-123"}

	store := inmemory.NewStore()
	env.plugin.store = store

	require.NoError(t, env.plugin.ValidateRegistration(context.Background()))

	status, err := LoadStatus(store)
	require.NoError(t, err)
	require.True(t, status.Registered)
	require.Equal(t, "abc-123", status.ConsumerID)
}
