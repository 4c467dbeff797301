package usps

import (
	"bytes"
	"context"

	json "github.com/goccy/go-json"
)

const (
	addressStandardizePath = "addresses/v3/standardize"
	addressLookupPath      = "addresses/v3/address"
)

// AddressesService standardizes and validates addresses.
type AddressesService struct {
	client *Client
}

// AddressInput is an address submitted for standardization.
type AddressInput struct {
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	ZIPCode      string `json:"zipCode,omitempty"`
}

// StandardizeAddressRequest carries one or more addresses to
// standardize in a single call.
type StandardizeAddressRequest struct {
	Addresses []AddressInput `json:"addresses"`
}

// StandardizedAddress is a USPS-normalized address.
type StandardizedAddress struct {
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZIPCode      string `json:"zipCode"`

	// Valid reports whether USPS recognized the address as
	// deliverable.
	Valid bool `json:"valid"`
}

// StandardizeAddressResult is the outcome of a standardize call.
type StandardizeAddressResult struct {
	Result

	Addresses []StandardizedAddress `json:"addresses"`
}

// standardizeWire is the USPS response shape.
type standardizeWire struct {
	Addresses []StandardizedAddress `json:"addresses"`
}

// Standardize normalizes the given addresses against the USPS
// database. Failures are reported in-band on the result.
func (s *AddressesService) Standardize(ctx context.Context, req *StandardizeAddressRequest) (*StandardizeAddressResult, error) {
	out := &StandardizeAddressResult{Result: Result{IsSuccess: true}}

	if req == nil {
		out.fail(errRequestRequired)
		return out, nil
	}

	resp, err := s.client.request().
		BodyJSON(req).
		Post(ctx, addressStandardizePath)
	if err != nil {
		out.fail(inBandFailure(err, "Error processing address standardize request"))
		return out, nil
	}

	body, err := resp.Body()
	if err != nil {
		out.fail(errUnavailable)
		return out, nil
	}

	if resp.IsError() {
		out.fail(upstreamFailure(body, resp.StatusCode, "Error processing address standardize request"))
		return out, nil
	}

	if len(bytes.TrimSpace(body)) == 0 {
		out.fail("Blank response received from address standardize call")
		return out, nil
	}

	var wire standardizeWire
	if err := json.Unmarshal(body, &wire); err != nil {
		out.fail(errUnavailable)
		return out, nil
	}

	if len(wire.Addresses) == 0 {
		out.fail("No addresses returned from standardize call")
		return out, nil
	}

	out.Addresses = wire.Addresses
	return out, nil
}

// AddressLookupRequest identifies a single address to validate.
type AddressLookupRequest struct {
	StreetAddress    string
	SecondaryAddress string
	City             string
	State            string
	ZIPCode          string
}

// AddressLookupResult is the outcome of a single-address lookup.
type AddressLookupResult struct {
	Result

	// Address is the corrected address returned by USPS.
	Address StandardizedAddress `json:"address"`

	// Metadata is the full response object, including deliverability
	// detail such as DPV confirmation.
	Metadata map[string]any `json:"-"`
}

// addressLookupWire is the USPS response shape for the single-address
// endpoint. Field casing differs from the standardize endpoint.
type addressLookupWire struct {
	Address struct {
		StreetAddress    string `json:"streetAddress"`
		SecondaryAddress string `json:"secondaryAddress"`
		City             string `json:"city"`
		State            string `json:"state"`
		ZIPCode          string `json:"ZIPCode"`
	} `json:"address"`
}

// Lookup validates a single address through the GET endpoint. Unlike
// Standardize it submits the address as query parameters.
func (s *AddressesService) Lookup(ctx context.Context, req *AddressLookupRequest) (*AddressLookupResult, error) {
	out := &AddressLookupResult{Result: Result{IsSuccess: true}}

	if req == nil {
		out.fail(errRequestRequired)
		return out, nil
	}

	rb := s.client.request().
		Query("streetAddress", req.StreetAddress).
		Query("city", req.City).
		Query("state", req.State).
		Query("ZIPCode", req.ZIPCode)
	if req.SecondaryAddress != "" {
		rb.Query("secondaryAddress", req.SecondaryAddress)
	}

	resp, err := rb.Get(ctx, addressLookupPath)
	if err != nil {
		out.fail(inBandFailure(err, "Error processing address lookup request"))
		return out, nil
	}

	body, err := resp.Body()
	if err != nil {
		out.fail(errUnavailable)
		return out, nil
	}

	if resp.IsError() {
		out.fail(upstreamFailure(body, resp.StatusCode, "Error processing address lookup request"))
		return out, nil
	}

	if len(bytes.TrimSpace(body)) == 0 {
		out.fail("Blank response received from address lookup call")
		return out, nil
	}

	var wire addressLookupWire
	if err := json.Unmarshal(body, &wire); err != nil {
		out.fail(errUnavailable)
		return out, nil
	}

	out.Address = StandardizedAddress{
		AddressLine1: wire.Address.StreetAddress,
		AddressLine2: wire.Address.SecondaryAddress,
		City:         wire.Address.City,
		State:        wire.Address.State,
		ZIPCode:      wire.Address.ZIPCode,
		Valid:        wire.Address.StreetAddress != "",
	}

	var meta map[string]any
	if err := json.Unmarshal(body, &meta); err == nil {
		out.Metadata = meta
	}

	return out, nil
}
