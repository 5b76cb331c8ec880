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

// Content dispatches can run package transactions; give them plenty of
// room before the client gives up.
const dispatchTimeout = 30 * time.Minute

type unitsRequest struct {
	Units   []Unit                 `json:"units"`
	Options map[string]interface{} `json:"options"`
}

type dispatchResponse struct {
	Report *DispatchReport `json:"report"`
}

func decodeJSONRPCUnitsRequest(_ context.Context, msg json.RawMessage) (interface{}, error) {
	var req unitsRequest

	if err := json.Unmarshal(msg, &req); err != nil {
		return nil, &jsonrpc.Error{
			Code:    -32000,
			Message: fmt.Sprintf("couldn't unmarshal body to unitsRequest: %s", err),
		}
	}
	return req, nil
}

func encodeJSONRPCDispatchResponse(_ context.Context, obj interface{}) (json.RawMessage, error) {
	res, ok := obj.(dispatchResponse)
	if !ok {
		return nil, &jsonrpc.Error{
			Code:    -32000,
			Message: fmt.Sprintf("Asserting result to *dispatchResponse failed. Got %T, %+v", obj, obj),
		}
	}

	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal json response: %w", err)
	}
	return b, nil
}

func decodeJSONRPCDispatchResponse(_ context.Context, res jsonrpc.Response) (interface{}, error) {
	if res.Error != nil {
		return nil, *res.Error
	}
	var result dispatchResponse
	err := json.Unmarshal(res.Result, &result)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshalling dispatch response")
	}

	return result, nil
}

func MakeInstallEndpoint(svc ContentService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(unitsRequest)
		report, err := svc.Install(ctx, req.Units, req.Options)
		if err != nil {
			return nil, err
		}
		return dispatchResponse{Report: report}, nil
	}
}

func MakeUpdateEndpoint(svc ContentService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(unitsRequest)
		report, err := svc.Update(ctx, req.Units, req.Options)
		if err != nil {
			return nil, err
		}
		return dispatchResponse{Report: report}, nil
	}
}

func MakeUninstallEndpoint(svc ContentService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		req := request.(unitsRequest)
		report, err := svc.Uninstall(ctx, req.Units, req.Options)
		if err != nil {
			return nil, err
		}
		return dispatchResponse{Report: report}, nil
	}
}

func (e Endpoints) Install(ctx context.Context, units []Unit, options map[string]interface{}) (*DispatchReport, error) {
	newCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	response, err := e.InstallEndpoint(newCtx, unitsRequest{Units: units, Options: options})
	if err != nil {
		return nil, err
	}
	resp := response.(dispatchResponse)
	return resp.Report, nil
}

func (e Endpoints) Update(ctx context.Context, units []Unit, options map[string]interface{}) (*DispatchReport, error) {
	newCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	response, err := e.UpdateEndpoint(newCtx, unitsRequest{Units: units, Options: options})
	if err != nil {
		return nil, err
	}
	resp := response.(dispatchResponse)
	return resp.Report, nil
}

func (e Endpoints) Uninstall(ctx context.Context, units []Unit, options map[string]interface{}) (*DispatchReport, error) {
	newCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	response, err := e.UninstallEndpoint(newCtx, unitsRequest{Units: units, Options: options})
	if err != nil {
		return nil, err
	}
	resp := response.(dispatchResponse)
	return resp.Report, nil
}

func (mw logmw) Install(ctx context.Context, units []Unit, options map[string]interface{}) (report *DispatchReport, err error) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "Install",
			"uuid", uuidFromContext(ctx),
			"unit_count", len(units),
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	report, err = mw.next.Install(ctx, units, options)
	return report, err
}

func (mw logmw) Update(ctx context.Context, units []Unit, options map[string]interface{}) (report *DispatchReport, err error) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "Update",
			"uuid", uuidFromContext(ctx),
			"unit_count", len(units),
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	report, err = mw.next.Update(ctx, units, options)
	return report, err
}

func (mw logmw) Uninstall(ctx context.Context, units []Unit, options map[string]interface{}) (report *DispatchReport, err error) {
	defer func(begin time.Time) {
		mw.logger.Log(
			"method", "Uninstall",
			"uuid", uuidFromContext(ctx),
			"unit_count", len(units),
			"err", err,
			"took", time.Since(begin),
		)
	}(time.Now())
	report, err = mw.next.Uninstall(ctx, units, options)
	return report, err
}

func (mw uuidmw) Install(ctx context.Context, units []Unit, options map[string]interface{}) (*DispatchReport, error) {
	return mw.next.Install(newUUIDContext(ctx, newRequestUUID()), units, options)
}

func (mw uuidmw) Update(ctx context.Context, units []Unit, options map[string]interface{}) (*DispatchReport, error) {
	return mw.next.Update(newUUIDContext(ctx, newRequestUUID()), units, options)
}

func (mw uuidmw) Uninstall(ctx context.Context, units []Unit, options map[string]interface{}) (*DispatchReport, error) {
	return mw.next.Uninstall(newUUIDContext(ctx, newRequestUUID()), units, options)
}
