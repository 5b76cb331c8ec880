// Package yum dispatches rpm content units to the system package manager.
package yum

import (
	"fmt"
	"os/exec"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/katello/katello-agent/pkg/content"
)

const rpmTypeID = "rpm"

// Dispatcher handles rpm units by shelling out to yum. Units of any
// other type are reported as unhandled; this agent ships no other
// handlers.
type Dispatcher struct {
	logger  log.Logger
	yumPath string
}

type Option func(*Dispatcher)

// WithYumPath overrides the yum binary path.
func WithYumPath(path string) Option {
	return func(d *Dispatcher) {
		d.yumPath = path
	}
}

func NewDispatcher(logger log.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:  log.With(logger, "component", "yum_dispatcher"),
		yumPath: "/usr/bin/yum",
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *Dispatcher) Install(conduit content.Conduit, units []content.Unit, options map[string]interface{}) (*content.DispatchReport, error) {
	return d.dispatch(conduit, units, "install")
}

func (d *Dispatcher) Update(conduit content.Conduit, units []content.Unit, options map[string]interface{}) (*content.DispatchReport, error) {
	return d.dispatch(conduit, units, "update")
}

func (d *Dispatcher) Uninstall(conduit content.Conduit, units []content.Unit, options map[string]interface{}) (*content.DispatchReport, error) {
	return d.dispatch(conduit, units, "remove")
}

func (d *Dispatcher) dispatch(conduit content.Conduit, units []content.Unit, verb string) (*content.DispatchReport, error) {
	report := &content.DispatchReport{
		Succeeded: true,
		Reports:   map[string]content.HandlerReport{},
	}

	names, unhandled := rpmNames(units)
	for _, typeID := range unhandled {
		report.Succeeded = false
		report.Reports[typeID] = content.HandlerReport{
			Succeeded: false,
			Details:   fmt.Sprintf("no handler for unit type %s", typeID),
		}
	}

	if len(names) == 0 {
		return report, nil
	}

	if conduit.Cancelled() {
		report.Succeeded = false
		report.Reports[rpmTypeID] = content.HandlerReport{
			Succeeded: false,
			Details:   "operation cancelled",
		}
		return report, nil
	}

	conduit.UpdateProgress(fmt.Sprintf("%s: %v", verb, names))

	args := append([]string{"-y", verb}, names...)
	out, err := exec.Command(d.yumPath, args...).CombinedOutput()
	if err != nil {
		level.Error(d.logger).Log(
			"msg", "yum transaction failed",
			"verb", verb,
			"err", err,
		)
		report.Succeeded = false
		report.Reports[rpmTypeID] = content.HandlerReport{
			Succeeded: false,
			Details:   string(out),
		}
		return report, nil
	}

	report.NumChanges = len(names)
	report.Reports[rpmTypeID] = content.HandlerReport{
		Succeeded:  true,
		NumChanges: len(names),
		Details:    string(out),
	}

	return report, nil
}

// rpmNames splits units into rpm package names and the type IDs of units
// no handler exists for.
func rpmNames(units []content.Unit) ([]string, []string) {
	var names []string
	var unhandled []string

	seen := map[string]bool{}
	for _, unit := range units {
		if unit.TypeID != rpmTypeID {
			if !seen[unit.TypeID] {
				seen[unit.TypeID] = true
				unhandled = append(unhandled, unit.TypeID)
			}
			continue
		}

		if name, ok := unit.UnitKey["name"].(string); ok && name != "" {
			names = append(names, name)
		}
	}

	return names, unhandled
}
