package content

import (
	"context"

	"github.com/go-kit/kit/log"
)

// ContentService is the RPC surface the agent exposes to the host
// runtime.
type ContentService interface {
	Install(ctx context.Context, units []Unit, options map[string]interface{}) (*DispatchReport, error)
	Update(ctx context.Context, units []Unit, options map[string]interface{}) (*DispatchReport, error)
	Uninstall(ctx context.Context, units []Unit, options map[string]interface{}) (*DispatchReport, error)
	CheckHealth(ctx context.Context) (int32, error)
}

// RegistrationStatus reports whether the consumer is currently
// registered; the health check surfaces it.
type RegistrationStatus interface {
	Registered() bool
}

type contentService struct {
	logger     log.Logger
	dispatcher Dispatcher
	certDir    string
	status     RegistrationStatus
}

// NewService returns the ContentService implementation. Each call
// constructs a conduit and forwards to the dispatcher; its report is
// returned unchanged.
func NewService(logger log.Logger, dispatcher Dispatcher, certDir string, status RegistrationStatus) ContentService {
	return &contentService{
		logger:     log.With(logger, "component", "content_service"),
		dispatcher: dispatcher,
		certDir:    certDir,
		status:     status,
	}
}

func (s *contentService) Install(ctx context.Context, units []Unit, options map[string]interface{}) (*DispatchReport, error) {
	return s.dispatcher.Install(newConduit(ctx, s.logger, s.certDir), units, options)
}

func (s *contentService) Update(ctx context.Context, units []Unit, options map[string]interface{}) (*DispatchReport, error) {
	return s.dispatcher.Update(newConduit(ctx, s.logger, s.certDir), units, options)
}

func (s *contentService) Uninstall(ctx context.Context, units []Unit, options map[string]interface{}) (*DispatchReport, error) {
	return s.dispatcher.Uninstall(newConduit(ctx, s.logger, s.certDir), units, options)
}

// CheckHealth returns 1 when the consumer is registered, 0 otherwise.
func (s *contentService) CheckHealth(ctx context.Context) (int32, error) {
	if s.status != nil && s.status.Registered() {
		return 1, nil
	}
	return 0, nil
}
