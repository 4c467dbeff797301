// Package usps provides a client SDK for the USPS Web Tools v3 REST APIs.
//
// The client manages the OAuth2 client-credentials token lifecycle, retries
// transient failures with exponential backoff, and normalizes multipart and
// JSON responses into typed results. Endpoint families are exposed as
// services on the Client: Addresses, DomesticPrices, InternationalPrices,
// ServiceStandards, DomesticLabels, InternationalLabels, ScanForms and
// ShippingOptions.
//
// # Quick Start
//
// Configure from the environment (USPS_CLIENT_ID, USPS_CLIENT_SECRET and
// USPS_ENV or USPS_BASE_URL) and look up domestic prices:
//
//	client := usps.New()
//	result, err := client.DomesticPrices.Quote(ctx, &usps.DomesticPriceRequest{
//	    OriginZIP:      "30022",
//	    DestinationZIP: "60601",
//	    WeightOz:       12,
//	})
//	if err != nil {
//	    return err
//	}
//	if !result.IsSuccess {
//	    log.Printf("quote refused: %s", result.ErrorDescription)
//	}
//
// # Expected Failures Are In-Band
//
// Operations return an error only for programming or transport-level
// problems (nil context, request marshalling). Refused requests, upstream
// 4xx/5xx responses and missing credentials surface on the result itself
// through IsSuccess and ErrorDescription, so callers branch on the result
// rather than unwrapping error chains.
//
// # Explicit Configuration
//
// Options override environment resolution:
//
//	client := usps.New(
//	    usps.WithEnvironment(usps.EnvironmentTEM),
//	    usps.WithCredentials("client-id", "client-secret"),
//	    usps.WithTimeout(10*time.Second),
//	)
package usps
