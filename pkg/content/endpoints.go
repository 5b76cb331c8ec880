package content

import (
	"github.com/go-kit/kit/endpoint"
)

// Endpoints defines the endpoints implemented by the content API server
// and client.
type Endpoints struct {
	InstallEndpoint     endpoint.Endpoint
	UpdateEndpoint      endpoint.Endpoint
	UninstallEndpoint   endpoint.Endpoint
	CheckHealthEndpoint endpoint.Endpoint
}

func MakeServerEndpoints(svc ContentService) Endpoints {
	return Endpoints{
		InstallEndpoint:     MakeInstallEndpoint(svc),
		UpdateEndpoint:      MakeUpdateEndpoint(svc),
		UninstallEndpoint:   MakeUninstallEndpoint(svc),
		CheckHealthEndpoint: MakeCheckHealthEndpoint(svc),
	}
}
