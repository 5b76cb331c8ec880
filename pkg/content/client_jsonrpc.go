package content

import (
	"net/url"

	"github.com/go-kit/kit/transport/http/jsonrpc"
	"github.com/pkg/errors"
)

// NewJSONRPCClient returns a ContentService backed by JSON-RPC calls to
// serverURL. The host runtime side of the RPC surface.
func NewJSONRPCClient(serverURL string, opts ...jsonrpc.ClientOption) (ContentService, error) {
	serviceURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing content API URL")
	}

	installEndpoint := jsonrpc.NewClient(
		serviceURL,
		"Install",
		append(opts, jsonrpc.ClientResponseDecoder(decodeJSONRPCDispatchResponse))...,
	).Endpoint()

	updateEndpoint := jsonrpc.NewClient(
		serviceURL,
		"Update",
		append(opts, jsonrpc.ClientResponseDecoder(decodeJSONRPCDispatchResponse))...,
	).Endpoint()

	uninstallEndpoint := jsonrpc.NewClient(
		serviceURL,
		"Uninstall",
		append(opts, jsonrpc.ClientResponseDecoder(decodeJSONRPCDispatchResponse))...,
	).Endpoint()

	checkHealthEndpoint := jsonrpc.NewClient(
		serviceURL,
		"CheckHealth",
		append(opts, jsonrpc.ClientResponseDecoder(decodeJSONRPCHealthCheckResponse))...,
	).Endpoint()

	return Endpoints{
		InstallEndpoint:     installEndpoint,
		UpdateEndpoint:      updateEndpoint,
		UninstallEndpoint:   uninstallEndpoint,
		CheckHealthEndpoint: checkHealthEndpoint,
	}, nil
}
