package usps

import (
	"bytes"
	"context"

	json "github.com/goccy/go-json"
)

const domesticPricesPath = "prices/v3/domestic"

// DomesticPricesService quotes domestic shipping prices.
type DomesticPricesService struct {
	client *Client
}

// Dimensions are package dimensions in inches.
type Dimensions struct {
	LengthIn float64 `json:"lengthIn"`
	WidthIn  float64 `json:"widthIn"`
	HeightIn float64 `json:"heightIn"`
}

// DomesticPriceRequest describes the shipment to quote.
type DomesticPriceRequest struct {
	OriginZIP      string      `json:"originZip"`
	DestinationZIP string      `json:"destinationZip"`
	WeightOz       float64     `json:"weightOz"`
	ServiceGroup   string      `json:"serviceGroup,omitempty"`
	Dimensions     *Dimensions `json:"dimensions,omitempty"`
}

// DomesticPriceQuote is a single priced service option.
type DomesticPriceQuote struct {
	Service          string  `json:"service"`
	Price            float64 `json:"price"`
	Currency         string  `json:"currency"`
	DeliveryStandard string  `json:"deliveryStandard"`
}

// DomesticPriceResult is the outcome of a domestic price call.
type DomesticPriceResult struct {
	Result

	Quotes []DomesticPriceQuote `json:"quotes"`
}

type domesticPricesWire struct {
	Quotes []DomesticPriceQuote `json:"quotes"`
}

// Quote fetches price quotes for a domestic shipment. Each quote
// carries its own currency, defaulting to USD when the upstream omits
// one. Failures are reported in-band.
func (s *DomesticPricesService) Quote(ctx context.Context, req *DomesticPriceRequest) (*DomesticPriceResult, error) {
	out := &DomesticPriceResult{Result: Result{IsSuccess: true}}

	if req == nil {
		out.fail(errRequestRequired)
		return out, nil
	}

	resp, err := s.client.request().
		BodyJSON(req).
		Post(ctx, domesticPricesPath)
	if err != nil {
		out.fail(inBandFailure(err, "Error processing domestic prices request"))
		return out, nil
	}

	body, err := resp.Body()
	if err != nil {
		out.fail(errUnavailable)
		return out, nil
	}

	if resp.IsError() {
		out.fail(upstreamFailure(body, resp.StatusCode, "Error processing domestic prices request"))
		return out, nil
	}

	if len(bytes.TrimSpace(body)) == 0 {
		out.fail("Blank response received from domestic prices call")
		return out, nil
	}

	var wire domesticPricesWire
	if err := json.Unmarshal(body, &wire); err != nil {
		out.fail(errUnavailable)
		return out, nil
	}

	if len(wire.Quotes) == 0 {
		out.fail("No domestic price quotes returned")
		return out, nil
	}

	for i := range wire.Quotes {
		if wire.Quotes[i].Currency == "" {
			wire.Quotes[i].Currency = "USD"
		}
	}

	out.Quotes = wire.Quotes
	return out, nil
}
