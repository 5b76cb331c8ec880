// Package messaging holds the agent's message-bus settings and the host
// runtime surface the plugin signals. The attach protocol itself belongs
// to the host runtime.
package messaging

import (
	"fmt"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/katello/katello-agent/pkg/rhsm"
)

// Broker port the entitlement server proxies AMQP on.
const brokerPort = 5647

// Settings configures the agent's connection to the message broker.
// Derived from rhsm configuration and the consumer identity on every
// successful registration validation.
type Settings struct {
	// CACert is the CA certificate path used to verify the broker.
	CACert string
	// BrokerURL is the AMQP endpoint on the entitlement server.
	BrokerURL string
	// ClientID is the agent's queue identity on the bus.
	ClientID string
	// BundlePath is the consumer key+cert bundle used as the TLS client
	// identity.
	BundlePath string
}

// DeriveSettings builds messaging settings from the rhsm configuration
// and the consumer ID.
func DeriveSettings(cfg *rhsm.Config, consumerID string) Settings {
	return Settings{
		CACert:    cfg.RepoCACert,
		BrokerURL: fmt.Sprintf("proton+amqps://%s:%d", cfg.ServerHostname, brokerPort),
		ClientID:  fmt.Sprintf("pulp.agent.%s", consumerID),
	}
}

// HostRuntime is the host agent runtime the plugin runs inside. The
// plugin toggles the bus attachment and pushes settings; the runtime owns
// the broker connection.
type HostRuntime interface {
	UpdateMessaging(settings Settings)
	Attach() error
	Detach() error
}

// Host is the default HostRuntime. It tracks the desired attachment state
// and settings; the broker connector reads both from here.
type Host struct {
	logger log.Logger

	mu       sync.Mutex
	settings Settings
	attached bool
}

func NewHost(logger log.Logger) *Host {
	return &Host{
		logger: log.With(logger, "component", "host_runtime"),
	}
}

func (h *Host) UpdateMessaging(settings Settings) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settings = settings

	level.Info(h.logger).Log(
		"msg", "messaging settings updated",
		"broker_url", settings.BrokerURL,
		"client_id", settings.ClientID,
	)
}

func (h *Host) Attach() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.attached {
		return nil
	}

	h.attached = true
	level.Info(h.logger).Log("msg", "attached to message bus")
	return nil
}

func (h *Host) Detach() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.attached {
		return nil
	}

	h.attached = false
	level.Info(h.logger).Log("msg", "detached from message bus")
	return nil
}

// Attached reports the current desired attachment state.
func (h *Host) Attached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attached
}

// Settings returns the current messaging settings.
func (h *Host) Settings() Settings {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.settings
}
