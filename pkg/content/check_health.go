package content

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/transport/http/jsonrpc"
	"github.com/pkg/errors"
)

const healthcheckTimeout = 30 * time.Second

type healthcheckRequest struct{}

type healthcheckResponse struct {
	Status int32 `json:"status"`
}

func decodeJSONRPCHealthCheckRequest(_ context.Context, msg json.RawMessage) (interface{}, error) {
	return healthcheckRequest{}, nil
}

func encodeJSONRPCHealthcheckResponse(_ context.Context, obj interface{}) (json.RawMessage, error) {
	res, ok := obj.(healthcheckResponse)
	if !ok {
		return nil, &jsonrpc.Error{
			Code:    -32000,
			Message: fmt.Sprintf("Asserting result to *healthcheckResponse failed. Got %T, %+v", obj, obj),
		}
	}

	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal json response: %w", err)
	}
	return b, nil
}

func decodeJSONRPCHealthCheckResponse(_ context.Context, res jsonrpc.Response) (interface{}, error) {
	if res.Error != nil {
		return nil, *res.Error
	}
	var result healthcheckResponse
	err := json.Unmarshal(res.Result, &result)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshalling CheckHealth response")
	}

	return result, nil
}

func MakeCheckHealthEndpoint(svc ContentService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		status, err := svc.CheckHealth(ctx)
		if err != nil {
			return nil, err
		}
		return healthcheckResponse{Status: status}, nil
	}
}

func (e Endpoints) CheckHealth(ctx context.Context) (int32, error) {
	newCtx, cancel := context.WithTimeout(ctx, healthcheckTimeout)
	defer cancel()
	response, err := e.CheckHealthEndpoint(newCtx, healthcheckRequest{})
	if err != nil {
		return 0, err
	}
	resp := response.(healthcheckResponse)
	return resp.Status, nil
}

func (mw logmw) CheckHealth(ctx context.Context) (status int32, err error) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "CheckHealth",
			"uuid", uuidFromContext(ctx),
			"status", status,
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	status, err = mw.next.CheckHealth(ctx)
	return status, err
}

func (mw uuidmw) CheckHealth(ctx context.Context) (status int32, err error) {
	return mw.next.CheckHealth(newUUIDContext(ctx, newRequestUUID()))
}
