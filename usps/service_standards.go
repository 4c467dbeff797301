package usps

import (
	"bytes"
	"context"

	json "github.com/goccy/go-json"
)

const (
	serviceStandardsLookupPath = "servicestandards/v3/lookup"
	serviceStandardsFilesPath  = "servicestandards/v3/files"
)

// ServiceStandardsService looks up published delivery standards.
type ServiceStandardsService struct {
	client *Client
}

// ServiceStandardsRequest identifies the lane and service to look up.
type ServiceStandardsRequest struct {
	OriginZIP      string `json:"originZip"`
	DestinationZIP string `json:"destinationZip"`
	Service        string `json:"service,omitempty"`
}

// ServiceStandard is a single delivery standard for a lane.
type ServiceStandard struct {
	Service               string `json:"service"`
	EstimatedDays         int    `json:"estimatedDays"`
	EstimatedDeliveryDate string `json:"estimatedDeliveryDate"`
}

// ServiceStandardsResult is the outcome of a standards lookup.
type ServiceStandardsResult struct {
	Result

	Lookup ServiceStandard `json:"lookup"`
}

// Lookup fetches the delivery standard for an origin/destination lane.
func (s *ServiceStandardsService) Lookup(ctx context.Context, req *ServiceStandardsRequest) (*ServiceStandardsResult, error) {
	out := &ServiceStandardsResult{Result: Result{IsSuccess: true}}

	if req == nil {
		out.fail(errRequestRequired)
		return out, nil
	}

	resp, err := s.client.request().
		BodyJSON(req).
		Post(ctx, serviceStandardsLookupPath)
	if err != nil {
		out.fail(inBandFailure(err, "Error processing service standards lookup"))
		return out, nil
	}

	body, err := resp.Body()
	if err != nil {
		out.fail(errUnavailable)
		return out, nil
	}

	if resp.IsError() {
		out.fail(upstreamFailure(body, resp.StatusCode, "Error processing service standards lookup"))
		return out, nil
	}

	if len(bytes.TrimSpace(body)) == 0 {
		out.fail("Blank response received from service standards lookup")
		return out, nil
	}

	var wire ServiceStandard
	if err := json.Unmarshal(body, &wire); err != nil {
		out.fail(errUnavailable)
		return out, nil
	}

	// A blank service means the lane has no published standard.
	if wire.Service == "" {
		out.fail("Blank response received from service standards lookup")
		return out, nil
	}

	out.Lookup = wire
	return out, nil
}

// ServiceStandardFilesResult lists the downloadable standards files.
type ServiceStandardFilesResult struct {
	Result

	Files []string `json:"files"`
}

type serviceStandardFilesWire struct {
	Files []string `json:"files"`
}

// ListFiles fetches the catalog of service standards data files.
func (s *ServiceStandardsService) ListFiles(ctx context.Context) (*ServiceStandardFilesResult, error) {
	out := &ServiceStandardFilesResult{Result: Result{IsSuccess: true}}

	resp, err := s.client.request().Get(ctx, serviceStandardsFilesPath)
	if err != nil {
		out.fail(inBandFailure(err, "Error processing service standards files request"))
		return out, nil
	}

	body, err := resp.Body()
	if err != nil {
		out.fail(errUnavailable)
		return out, nil
	}

	if resp.IsError() {
		out.fail(upstreamFailure(body, resp.StatusCode, "Error processing service standards files request"))
		return out, nil
	}

	if len(bytes.TrimSpace(body)) == 0 {
		out.fail("Blank response received from service standards files call")
		return out, nil
	}

	var wire serviceStandardFilesWire
	if err := json.Unmarshal(body, &wire); err != nil {
		out.fail(errUnavailable)
		return out, nil
	}

	if len(wire.Files) == 0 {
		out.fail("No service standard files returned")
		return out, nil
	}

	out.Files = wire.Files
	return out, nil
}
