package usps

import (
	"bytes"
	"context"
	"strings"

	json "github.com/goccy/go-json"
)

const (
	intlBaseRatesPath         = "international-prices/v3/base-rates/search"
	intlBaseRatesListPath     = "international-prices/v3/base-rates-list/search"
	intlExtraServiceRatesPath = "international-prices/v3/extra-service-rates/search"
	intlTotalRatesPath        = "international-prices/v3/total-rates/search"
)

// InternationalPricesService quotes international shipping prices
// across the base-rate, rate-list, extra-service, and total-rate
// endpoints.
type InternationalPricesService struct {
	client *Client
}

// InternationalBaseRatesRequest describes a shipment for a single
// base-rate quote.
type InternationalBaseRatesRequest struct {
	OriginZIPCode                string  `json:"originZIPCode"`
	ForeignPostalCode            string  `json:"foreignPostalCode,omitempty"`
	DestinationCountryCode       string  `json:"destinationCountryCode"`
	DestinationEntryFacilityType string  `json:"destinationEntryFacilityType,omitempty"`
	Weight                       float64 `json:"weight"`
	Length                       float64 `json:"length,omitempty"`
	Width                        float64 `json:"width,omitempty"`
	Height                       float64 `json:"height,omitempty"`
	MailClass                    string  `json:"mailClass,omitempty"`
	ProcessingCategory           string  `json:"processingCategory,omitempty"`
	RateIndicator                string  `json:"rateIndicator,omitempty"`
	PriceType                    string  `json:"priceType,omitempty"`
	AccountType                  string  `json:"accountType,omitempty"`
	AccountNumber                string  `json:"accountNumber,omitempty"`
	MailingDate                  string  `json:"mailingDate,omitempty"`
}

// InternationalBaseRatesListRequest describes a shipment for the
// rate-list endpoint, which returns every eligible rate option.
type InternationalBaseRatesListRequest struct {
	OriginZIPCode          string  `json:"originZIPCode"`
	ForeignPostalCode      string  `json:"foreignPostalCode,omitempty"`
	DestinationCountryCode string  `json:"destinationCountryCode"`
	Weight                 float64 `json:"weight"`
	Length                 float64 `json:"length,omitempty"`
	Width                  float64 `json:"width,omitempty"`
	Height                 float64 `json:"height,omitempty"`
	MailClass              string  `json:"mailClass,omitempty"`
	PriceType              string  `json:"priceType,omitempty"`
	AccountType            string  `json:"accountType,omitempty"`
	AccountNumber          string  `json:"accountNumber,omitempty"`
	MailingDate            string  `json:"mailingDate,omitempty"`
}

// InternationalExtraServiceRatesRequest quotes a single extra service.
type InternationalExtraServiceRatesRequest struct {
	ExtraService           int     `json:"extraService"`
	MailClass              string  `json:"mailClass,omitempty"`
	PriceType              string  `json:"priceType,omitempty"`
	ItemValue              float64 `json:"itemValue,omitempty"`
	Weight                 float64 `json:"weight,omitempty"`
	MailingDate            string  `json:"mailingDate,omitempty"`
	RateIndicator          string  `json:"rateIndicator,omitempty"`
	DestinationCountryCode string  `json:"destinationCountryCode,omitempty"`
	ForeignPostalCode      string  `json:"foreignPostalCode,omitempty"`
	AccountType            string  `json:"accountType,omitempty"`
	AccountNumber          string  `json:"accountNumber,omitempty"`
}

// InternationalTotalRatesRequest quotes base plus extra services in
// one call.
type InternationalTotalRatesRequest struct {
	OriginZIPCode          string  `json:"originZIPCode"`
	ForeignPostalCode      string  `json:"foreignPostalCode,omitempty"`
	DestinationCountryCode string  `json:"destinationCountryCode"`
	Weight                 float64 `json:"weight"`
	Length                 float64 `json:"length,omitempty"`
	Width                  float64 `json:"width,omitempty"`
	Height                 float64 `json:"height,omitempty"`
	MailClass              string  `json:"mailClass,omitempty"`
	PriceType              string  `json:"priceType,omitempty"`
	MailingDate            string  `json:"mailingDate,omitempty"`
	AccountType            string  `json:"accountType,omitempty"`
	AccountNumber          string  `json:"accountNumber,omitempty"`
	ItemValue              float64 `json:"itemValue,omitempty"`
	ExtraServices          []int   `json:"extraServices,omitempty"`
	ProcessingCategory     string  `json:"processingCategory,omitempty"`
	RateIndicator          string  `json:"rateIndicator,omitempty"`
}

// InternationalPriceRequest bundles the payloads to execute. At least
// one must be set; each set payload runs against its own endpoint.
type InternationalPriceRequest struct {
	BaseRates         *InternationalBaseRatesRequest
	BaseRatesList     *InternationalBaseRatesListRequest
	ExtraServiceRates *InternationalExtraServiceRatesRequest
	TotalRates        *InternationalTotalRatesRequest
}

// InternationalRateFee is an itemized fee on a rate quote.
type InternationalRateFee struct {
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// InternationalRateQuote is one priced rate line.
type InternationalRateQuote struct {
	SKU               string                 `json:"sku"`
	Description       string                 `json:"description"`
	MailClass         string                 `json:"mailClass"`
	PriceType         string                 `json:"priceType"`
	Zone              string                 `json:"zone"`
	Price             float64                `json:"price"`
	Weight            float64                `json:"weight"`
	DimensionalWeight float64                `json:"dimensionalWeight"`
	StartDate         string                 `json:"startDate"`
	EndDate           string                 `json:"endDate"`
	Fees              []InternationalRateFee `json:"fees"`
	Warnings          []string               `json:"warnings"`
}

// InternationalExtraServiceQuote is a priced extra service.
type InternationalExtraServiceQuote struct {
	SKU          string   `json:"sku"`
	PriceType    string   `json:"priceType"`
	Price        float64  `json:"price"`
	ExtraService string   `json:"extraService"`
	Name         string   `json:"name"`
	Warnings     []string `json:"warnings"`
}

// InternationalBaseRateOption groups the rate lines quoted for one
// eligible option.
type InternationalBaseRateOption struct {
	TotalBasePrice float64                  `json:"totalBasePrice"`
	Rates          []InternationalRateQuote `json:"rates"`
	Warnings       []string                 `json:"warnings"`
}

// InternationalTotalRateOption extends a base rate option with the
// total price and the extra services included in it.
type InternationalTotalRateOption struct {
	InternationalBaseRateOption

	TotalPrice    float64                          `json:"totalPrice"`
	ExtraServices []InternationalExtraServiceQuote `json:"extraServices"`
}

// InternationalPriceResult aggregates whichever quote modes ran.
type InternationalPriceResult struct {
	Result

	BaseRates         []InternationalRateQuote         `json:"baseRates,omitempty"`
	BaseRateOptions   []InternationalBaseRateOption    `json:"baseRateOptions,omitempty"`
	ExtraServiceRates []InternationalExtraServiceQuote `json:"extraServiceRates,omitempty"`
	TotalRates        []InternationalTotalRateOption   `json:"totalRates,omitempty"`
}

// Wire shapes. dimWeight and dimensionalWeight both appear in the
// wild; dimWeight wins when both are present.
type intlRateWire struct {
	SKU               string                 `json:"sku"`
	Description       string                 `json:"description"`
	MailClass         string                 `json:"mailClass"`
	PriceType         string                 `json:"priceType"`
	Zone              string                 `json:"zone"`
	Price             float64                `json:"price"`
	Weight            float64                `json:"weight"`
	DimWeight         *float64               `json:"dimWeight"`
	DimensionalWeight *float64               `json:"dimensionalWeight"`
	StartDate         string                 `json:"startDate"`
	EndDate           string                 `json:"endDate"`
	Fees              []InternationalRateFee `json:"fees"`
	Warnings          []string               `json:"warnings"`
}

func (w intlRateWire) quote() InternationalRateQuote {
	q := InternationalRateQuote{
		SKU:         w.SKU,
		Description: w.Description,
		MailClass:   w.MailClass,
		PriceType:   w.PriceType,
		Zone:        w.Zone,
		Price:       w.Price,
		Weight:      w.Weight,
		StartDate:   w.StartDate,
		EndDate:     w.EndDate,
		Fees:        w.Fees,
		Warnings:    filterBlankWarnings(w.Warnings),
	}
	switch {
	case w.DimWeight != nil:
		q.DimensionalWeight = *w.DimWeight
	case w.DimensionalWeight != nil:
		q.DimensionalWeight = *w.DimensionalWeight
	}
	return q
}

type intlBaseRatesWire struct {
	Rates          []intlRateWire `json:"rates"`
	TotalBasePrice float64        `json:"totalBasePrice"`
	Warnings       []string       `json:"warnings"`
}

type intlRateOptionWire struct {
	TotalBasePrice float64                `json:"totalBasePrice"`
	TotalPrice     *float64               `json:"totalPrice"`
	Rates          []intlRateWire         `json:"rates"`
	ExtraServices  []intlExtraServiceWire `json:"extraServices"`
	Warnings       []string               `json:"warnings"`
}

type intlRateOptionsWire struct {
	RateOptions []intlRateOptionWire `json:"rateOptions"`
}

type intlExtraServiceWire struct {
	SKU          string   `json:"sku"`
	PriceType    string   `json:"priceType"`
	Price        float64  `json:"price"`
	ExtraService string   `json:"extraService"`
	Name         string   `json:"name"`
	Warnings     []string `json:"warnings"`
}

func (w intlExtraServiceWire) quote() InternationalExtraServiceQuote {
	return InternationalExtraServiceQuote{
		SKU:          w.SKU,
		PriceType:    w.PriceType,
		Price:        w.Price,
		ExtraService: w.ExtraService,
		Name:         w.Name,
		Warnings:     filterBlankWarnings(w.Warnings),
	}
}

// Quote runs every payload set on the request and aggregates the
// quotes. The first mode to fail stops the call and reports in-band.
func (s *InternationalPricesService) Quote(ctx context.Context, req *InternationalPriceRequest) (*InternationalPriceResult, error) {
	out := &InternationalPriceResult{Result: Result{IsSuccess: true}}

	if req == nil {
		out.fail(errRequestRequired)
		return out, nil
	}
	if req.BaseRates == nil && req.BaseRatesList == nil && req.ExtraServiceRates == nil && req.TotalRates == nil {
		out.fail("Specify at least one international prices request payload.")
		return out, nil
	}

	if req.BaseRates != nil {
		if !s.quoteBaseRates(ctx, req.BaseRates, out) {
			return out, nil
		}
	}
	if req.BaseRatesList != nil {
		if !s.quoteBaseRatesList(ctx, req.BaseRatesList, out) {
			return out, nil
		}
	}
	if req.ExtraServiceRates != nil {
		if !s.quoteExtraServiceRates(ctx, req.ExtraServiceRates, out) {
			return out, nil
		}
	}
	if req.TotalRates != nil {
		if !s.quoteTotalRates(ctx, req.TotalRates, out) {
			return out, nil
		}
	}

	return out, nil
}

func (s *InternationalPricesService) quoteBaseRates(ctx context.Context, req *InternationalBaseRatesRequest, out *InternationalPriceResult) bool {
	body, ok := s.post(ctx, intlBaseRatesPath, req, out,
		"Error processing international prices request",
		"Blank response received from international prices call")
	if !ok {
		return false
	}

	var wire intlBaseRatesWire
	if err := json.Unmarshal(body, &wire); err != nil {
		out.fail("Unable to parse international prices response")
		return false
	}

	if len(wire.Rates) == 0 {
		out.fail("No international base rates returned")
		return false
	}

	for _, r := range wire.Rates {
		out.BaseRates = append(out.BaseRates, r.quote())
	}
	return true
}

func (s *InternationalPricesService) quoteBaseRatesList(ctx context.Context, req *InternationalBaseRatesListRequest, out *InternationalPriceResult) bool {
	body, ok := s.post(ctx, intlBaseRatesListPath, req, out,
		"Error processing international prices request",
		"Blank response received from international prices call")
	if !ok {
		return false
	}

	var wire intlRateOptionsWire
	if err := json.Unmarshal(body, &wire); err != nil {
		out.fail("Unable to parse international prices response")
		return false
	}

	for _, option := range wire.RateOptions {
		if len(option.Rates) == 0 {
			continue
		}
		mapped := InternationalBaseRateOption{
			TotalBasePrice: option.TotalBasePrice,
			Warnings:       filterBlankWarnings(option.Warnings),
		}
		for _, r := range option.Rates {
			mapped.Rates = append(mapped.Rates, r.quote())
		}
		out.BaseRateOptions = append(out.BaseRateOptions, mapped)
	}

	if len(out.BaseRateOptions) == 0 {
		out.fail("No international base rate options returned")
		return false
	}
	return true
}

func (s *InternationalPricesService) quoteExtraServiceRates(ctx context.Context, req *InternationalExtraServiceRatesRequest, out *InternationalPriceResult) bool {
	body, ok := s.post(ctx, intlExtraServiceRatesPath, req, out,
		"Error processing international extra service rates request",
		"Blank response received from international extra service rates call")
	if !ok {
		return false
	}

	var wire intlExtraServiceWire
	if err := json.Unmarshal(body, &wire); err != nil {
		out.fail("Unable to parse international extra service rates response")
		return false
	}

	if wire.SKU == "" && wire.ExtraService == "" && wire.Price == 0 {
		out.fail("No international extra service rates returned")
		return false
	}

	out.ExtraServiceRates = append(out.ExtraServiceRates, wire.quote())
	return true
}

func (s *InternationalPricesService) quoteTotalRates(ctx context.Context, req *InternationalTotalRatesRequest, out *InternationalPriceResult) bool {
	body, ok := s.post(ctx, intlTotalRatesPath, req, out,
		"Error processing international total rates request",
		"Blank response received from international total rates call")
	if !ok {
		return false
	}

	var wire intlRateOptionsWire
	if err := json.Unmarshal(body, &wire); err != nil {
		out.fail("Unable to parse international total rates response")
		return false
	}

	for _, option := range wire.RateOptions {
		if len(option.Rates) == 0 && len(option.ExtraServices) == 0 {
			continue
		}
		mapped := InternationalTotalRateOption{
			InternationalBaseRateOption: InternationalBaseRateOption{
				TotalBasePrice: option.TotalBasePrice,
				Warnings:       filterBlankWarnings(option.Warnings),
			},
		}
		switch {
		case option.TotalPrice != nil:
			mapped.TotalPrice = *option.TotalPrice
		default:
			mapped.TotalPrice = option.TotalBasePrice
		}
		for _, r := range option.Rates {
			mapped.Rates = append(mapped.Rates, r.quote())
		}
		for _, es := range option.ExtraServices {
			mapped.ExtraServices = append(mapped.ExtraServices, es.quote())
		}
		out.TotalRates = append(out.TotalRates, mapped)
	}

	if len(out.TotalRates) == 0 {
		out.fail("No international total rates returned")
		return false
	}
	return true
}

// post runs one quote call and handles the failure modes shared by all
// four endpoints. It returns the body and true on a usable response.
func (s *InternationalPricesService) post(ctx context.Context, path string, payload any, out *InternationalPriceResult, transportMsg, blankMsg string) ([]byte, bool) {
	resp, err := s.client.request().
		BodyJSON(payload).
		Post(ctx, path)
	if err != nil {
		out.fail(inBandFailure(err, transportMsg))
		return nil, false
	}

	body, err := resp.Body()
	if err != nil {
		out.fail(errUnavailable)
		return nil, false
	}

	if resp.IsError() {
		out.fail(upstreamFailure(body, resp.StatusCode, transportMsg))
		return nil, false
	}

	if len(bytes.TrimSpace(body)) == 0 {
		out.fail(blankMsg)
		return nil, false
	}

	return body, true
}

// filterBlankWarnings drops empty and whitespace-only warnings.
func filterBlankWarnings(warnings []string) []string {
	var kept []string
	for _, w := range warnings {
		if strings.TrimSpace(w) != "" {
			kept = append(kept, w)
		}
	}
	return kept
}
