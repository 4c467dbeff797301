// Package uspstest provides an in-process stub of the USPS APIs for
// integration testing.
//
// The stub serves the OAuth token endpoint plus canned handlers for
// every API family the client speaks: addresses, domestic and
// international prices, service standards, labels, scan forms and
// shipping options. Responses follow the real wire shapes, including
// multipart/mixed label responses, so a client pointed at the stub
// exercises its full request, auth and normalization path over real
// HTTP.
//
// Basic usage:
//
//	srv := uspstest.New(t)
//	client := srv.Client()
//
//	result, err := client.DomesticPrices.Quote(ctx, req)
//
// The stub also supports failure injection for resilience testing:
//
//	srv.FailNext("/prices/v3/domestic", http.StatusTooManyRequests, 2)
//
// makes the next two price calls return 429 with a Retry-After header
// before serving normally again.
package uspstest
