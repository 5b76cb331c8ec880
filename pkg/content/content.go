// Package content exposes the agent's content management API to the host
// runtime: install, update, and uninstall of content units, each forwarded
// to an external dispatcher. No content-handling logic lives here.
package content

import (
	"context"
	"fmt"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/katello/katello-agent/pkg/identity"
)

// Unit identifies a content unit to be handled by an external content
// handler.
type Unit struct {
	TypeID  string                 `json:"type_id"`
	UnitKey map[string]interface{} `json:"unit_key"`
}

// HandlerReport is a single content handler's contribution to a dispatch
// report.
type HandlerReport struct {
	Succeeded  bool        `json:"succeeded"`
	NumChanges int         `json:"num_changes"`
	Details    interface{} `json:"details,omitempty"`
}

// DispatchReport aggregates handler reports for one dispatch, keyed by
// unit type.
type DispatchReport struct {
	Succeeded  bool                     `json:"succeeded"`
	NumChanges int                      `json:"num_changes"`
	Reports    map[string]HandlerReport `json:"reports"`
}

// Dispatcher routes unit operations to content handlers. It is an
// external collaborator; the agent only constructs the conduit and
// forwards.
type Dispatcher interface {
	Install(conduit Conduit, units []Unit, options map[string]interface{}) (*DispatchReport, error)
	Update(conduit Conduit, units []Unit, options map[string]interface{}) (*DispatchReport, error)
	Uninstall(conduit Conduit, units []Unit, options map[string]interface{}) (*DispatchReport, error)
}

// Conduit supplies agent facilities to the dispatcher during a dispatch:
// the consumer identity, progress reporting, and a cancellation check.
type Conduit interface {
	// ConsumerID returns the unique consumer ID of the running agent.
	ConsumerID() (string, error)
	// UpdateProgress reports handler progress back to the host runtime.
	UpdateProgress(report interface{})
	// Cancelled reports whether the current operation has been cancelled.
	Cancelled() bool
}

type conduit struct {
	logger  log.Logger
	ctx     context.Context
	certDir string
}

func newConduit(ctx context.Context, logger log.Logger, certDir string) *conduit {
	return &conduit{
		logger:  log.With(logger, "component", "conduit"),
		ctx:     ctx,
		certDir: certDir,
	}
}

func (c *conduit) ConsumerID() (string, error) {
	consumer, err := identity.Read(c.certDir)
	if err != nil {
		return "", err
	}
	return consumer.ConsumerID(), nil
}

func (c *conduit) UpdateProgress(report interface{}) {
	level.Debug(c.logger).Log(
		"msg", "dispatch progress",
		"report", fmt.Sprintf("%+v", report),
	)
}

func (c *conduit) Cancelled() bool {
	return c.ctx.Err() != nil
}
