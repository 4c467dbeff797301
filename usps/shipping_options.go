package usps

import (
	"bytes"
	"context"
	"math"
	"regexp"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

const shippingOptionsPath = "shipments/v3/options/search"

// ShippingOptionsService searches eligible shipping options across
// mail classes in a single call.
type ShippingOptionsService struct {
	client *Client
}

// PaymentAccount identifies the account a price type is quoted under.
type PaymentAccount struct {
	AccountType   string `json:"accountType"`
	AccountNumber string `json:"accountNumber"`
}

// PricingOption selects a price type, optionally tied to an account.
type PricingOption struct {
	PriceType      string          `json:"priceType"`
	PaymentAccount *PaymentAccount `json:"paymentAccount,omitempty"`
}

// OptionsPackageDescription describes the package being quoted.
type OptionsPackageDescription struct {
	Weight        float64 `json:"weight"`
	Length        float64 `json:"length,omitempty"`
	Height        float64 `json:"height,omitempty"`
	Width         float64 `json:"width,omitempty"`
	Girth         float64 `json:"girth,omitempty"`
	MailClass     string  `json:"mailClass,omitempty"`
	ExtraServices []int   `json:"extraServices,omitempty"`
	MailingDate   string  `json:"mailingDate,omitempty"`
	PackageValue  float64 `json:"packageValue,omitempty"`
}

// ShippingOptionsRequest is the search payload.
type ShippingOptionsRequest struct {
	PricingOptions         []PricingOption            `json:"pricingOptions,omitempty"`
	OriginZIPCode          string                     `json:"originZIPCode"`
	DestinationZIPCode     string                     `json:"destinationZIPCode,omitempty"`
	OriginCountryCode      string                     `json:"originCountryCode,omitempty"`
	DestinationCountryCode string                     `json:"destinationCountryCode,omitempty"`
	PackageDescription     *OptionsPackageDescription `json:"packageDescription,omitempty"`
}

// ShippingOption is one priced option, flattened from the nested
// mail-class and rate-option structure USPS returns.
type ShippingOption struct {
	Service       string  `json:"service"`
	Price         float64 `json:"price"`
	Currency      string  `json:"currency"`
	EstimatedDays int     `json:"estimatedDays"`
}

// ShippingOptionsResult is the outcome of an options search.
type ShippingOptionsResult struct {
	Result

	Options []ShippingOption `json:"options"`
}

type shippingOptionsWire struct {
	PricingOptions []struct {
		ShippingOptions []struct {
			MailClass   string `json:"mailClass"`
			RateOptions []struct {
				Commitment *struct {
					Name                 string `json:"name"`
					ScheduleDeliveryDate string `json:"scheduleDeliveryDate"`
					EstimatedDays        int    `json:"estimatedDays"`
				} `json:"commitment"`
				TotalPrice     *float64 `json:"totalPrice"`
				TotalBasePrice *float64 `json:"totalBasePrice"`
				CurrencyCode   string   `json:"currencyCode"`
				Rates          []struct {
					Price    float64 `json:"price"`
					Currency string  `json:"currency"`
				} `json:"rates"`
			} `json:"rateOptions"`
		} `json:"shippingOptions"`
	} `json:"pricingOptions"`
}

// Search quotes every eligible option for a shipment. The nested
// pricing-option groups USPS returns are flattened into one
// ShippingOption per rate option.
func (s *ShippingOptionsService) Search(ctx context.Context, req *ShippingOptionsRequest) (*ShippingOptionsResult, error) {
	out := &ShippingOptionsResult{Result: Result{IsSuccess: true}}

	if req == nil {
		out.fail(errRequestRequired)
		return out, nil
	}

	resp, err := s.client.request().
		BodyJSON(req).
		Post(ctx, shippingOptionsPath)
	if err != nil {
		out.fail(inBandFailure(err, "Error processing shipping options request"))
		return out, nil
	}

	body, err := resp.Body()
	if err != nil {
		out.fail(errUnavailable)
		return out, nil
	}

	if resp.IsError() {
		out.fail(upstreamFailure(body, resp.StatusCode, "Error processing shipping options request"))
		return out, nil
	}

	if len(bytes.TrimSpace(body)) == 0 {
		out.fail("Blank response received from shipping options call")
		return out, nil
	}

	var wire shippingOptionsWire
	if err := json.Unmarshal(body, &wire); err != nil {
		out.fail(errUnavailable)
		return out, nil
	}

	mailingDate := ""
	if req.PackageDescription != nil {
		mailingDate = req.PackageDescription.MailingDate
	}

	for _, pricing := range wire.PricingOptions {
		for _, shipping := range pricing.ShippingOptions {
			for _, rate := range shipping.RateOptions {
				opt := ShippingOption{
					Service:  shipping.MailClass,
					Currency: rate.CurrencyCode,
				}

				switch {
				case rate.TotalPrice != nil:
					opt.Price = *rate.TotalPrice
				case rate.TotalBasePrice != nil:
					opt.Price = *rate.TotalBasePrice
				case len(rate.Rates) > 0:
					opt.Price = rate.Rates[0].Price
				}

				if opt.Currency == "" && len(rate.Rates) > 0 {
					opt.Currency = rate.Rates[0].Currency
				}
				if opt.Currency == "" {
					opt.Currency = "USD"
				}

				if rate.Commitment != nil {
					opt.EstimatedDays = estimatedDays(
						rate.Commitment.EstimatedDays,
						rate.Commitment.Name,
						rate.Commitment.ScheduleDeliveryDate,
						mailingDate,
					)
				}

				out.Options = append(out.Options, opt)
			}
		}
	}

	if len(out.Options) == 0 {
		out.fail("No shipping options returned")
		return out, nil
	}

	return out, nil
}

var commitmentDaysPattern = regexp.MustCompile(`\d+`)

// estimatedDays resolves a delivery estimate from whichever commitment
// field carries one: the explicit day count, digits embedded in the
// commitment name ("2-Day"), or the span between the mailing date and
// the scheduled delivery date.
func estimatedDays(explicit int, name, scheduleDeliveryDate, mailingDate string) int {
	if explicit > 0 {
		return explicit
	}

	if m := commitmentDaysPattern.FindString(name); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n > 0 {
			return n
		}
	}

	if scheduleDeliveryDate != "" && mailingDate != "" {
		delivery, err1 := time.Parse("2006-01-02", scheduleDeliveryDate)
		mailed, err2 := time.Parse("2006-01-02", mailingDate)
		if err1 == nil && err2 == nil && delivery.After(mailed) {
			return int(math.Round(delivery.Sub(mailed).Hours() / 24))
		}
	}

	return 0
}
