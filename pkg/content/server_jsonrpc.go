package content

import (
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/transport/http/jsonrpc"
)

func NewJSONRPCServer(endpoints Endpoints, logger log.Logger, options ...jsonrpc.ServerOption) *jsonrpc.Server {
	options = append(options, jsonrpc.ServerErrorLogger(logger))
	handler := jsonrpc.NewServer(
		makeEndpointCodecMap(endpoints),
		options...,
	)
	return handler
}

// makeEndpointCodecMap returns a codec map configured for the content API.
func makeEndpointCodecMap(endpoints Endpoints) jsonrpc.EndpointCodecMap {
	return jsonrpc.EndpointCodecMap{
		"Install": jsonrpc.EndpointCodec{
			Endpoint: endpoints.InstallEndpoint,
			Decode:   decodeJSONRPCUnitsRequest,
			Encode:   encodeJSONRPCDispatchResponse,
		},
		"Update": jsonrpc.EndpointCodec{
			Endpoint: endpoints.UpdateEndpoint,
			Decode:   decodeJSONRPCUnitsRequest,
			Encode:   encodeJSONRPCDispatchResponse,
		},
		"Uninstall": jsonrpc.EndpointCodec{
			Endpoint: endpoints.UninstallEndpoint,
			Decode:   decodeJSONRPCUnitsRequest,
			Encode:   encodeJSONRPCDispatchResponse,
		},
		"CheckHealth": jsonrpc.EndpointCodec{
			Endpoint: endpoints.CheckHealthEndpoint,
			Decode:   decodeJSONRPCHealthCheckRequest,
			Encode:   encodeJSONRPCHealthcheckResponse,
		},
	}
}
