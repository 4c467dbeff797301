// Command quote fetches domestic price quotes and delivery standards
// for a shipment lane.
//
// Credentials come from the environment:
//
//	export USPS_CLIENT_ID=...
//	export USPS_CLIENT_SECRET=...
//	go run . -origin 63116 -dest 10001 -weight 16
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/parcelops/usps-go/usps"
)

func main() {
	var (
		origin  = flag.String("origin", "63116", "origin ZIP code")
		dest    = flag.String("dest", "10001", "destination ZIP code")
		weight  = flag.Float64("weight", 16, "package weight in ounces")
		env     = flag.String("env", "tem", "USPS environment (tem or prod)")
		debug   = flag.Bool("debug", false, "log outbound requests")
		timeout = flag.Duration("timeout", 30*time.Second, "overall timeout")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger()

	opts := []usps.Option{
		usps.WithEnvironment(usps.Environment(*env)),
	}
	if *debug {
		opts = append(opts,
			usps.WithDebug(),
			usps.WithDebugLogger(&logger),
			usps.WithGenerateCurl(),
		)
	}

	client := usps.New(opts...)
	if !client.Configured() {
		logger.Fatal().Msg("set USPS_CLIENT_ID and USPS_CLIENT_SECRET")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	quotes, err := client.DomesticPrices.Quote(ctx, &usps.DomesticPriceRequest{
		OriginZIP:      *origin,
		DestinationZIP: *dest,
		WeightOz:       *weight,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("quote request failed")
	}
	if !quotes.IsSuccess {
		logger.Fatal().Str("reason", quotes.ErrorDescription).Msg("no quotes")
	}

	for _, q := range quotes.Quotes {
		logger.Info().
			Str("service", q.Service).
			Float64("price", q.Price).
			Str("currency", q.Currency).
			Str("delivery", q.DeliveryStandard).
			Msg("quote")
	}

	standard, err := client.ServiceStandards.Lookup(ctx, &usps.ServiceStandardsRequest{
		OriginZIP:      *origin,
		DestinationZIP: *dest,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("standards request failed")
	}
	if standard.IsSuccess {
		logger.Info().
			Str("service", standard.Lookup.Service).
			Int("estimated_days", standard.Lookup.EstimatedDays).
			Str("estimated_delivery", standard.Lookup.EstimatedDeliveryDate).
			Msg("service standard")
	}
}
