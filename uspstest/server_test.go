package uspstest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelops/usps-go/usps"
)

func validLabelRequest() *usps.CreateLabelRequest {
	return &usps.CreateLabelRequest{
		PaymentAuthorizationToken: "payment-token",
		ToAddress: &usps.LabelAddress{
			FirstName:     "Ada",
			LastName:      "Lovelace",
			StreetAddress: "1100 Wyoming St",
			City:          "St. Louis",
			State:         "MO",
			ZIPCode:       "63118",
		},
		FromAddress: &usps.LabelAddress{
			CompanyName:   "Parcel Ops",
			StreetAddress: "4120 Bingham Ave",
			City:          "St. Louis",
			State:         "MO",
			ZIPCode:       "63116",
		},
		PackageDescription: &usps.PackageDescription{
			MailClass: "PRIORITY_MAIL",
			Weight:    16,
		},
	}
}

func validInternationalLabelRequest() *usps.CreateInternationalLabelRequest {
	return &usps.CreateInternationalLabelRequest{
		PaymentAuthorizationToken: "payment-token",
		FromAddress: &usps.LabelAddress{
			CompanyName:   "Parcel Ops",
			StreetAddress: "4120 Bingham Ave",
			City:          "St. Louis",
			State:         "MO",
			ZIPCode:       "63116",
		},
		ToAddress: &usps.InternationalLabelAddress{
			FirstName:     "Alan",
			LastName:      "Turing",
			StreetAddress: "1 Dover Rd",
			City:          "London",
			PostalCode:    "SW1A 1AA",
			CountryCode:   "GB",
		},
		PackageDescription: &usps.InternationalPackageDescription{
			MailClass: "PRIORITY_MAIL_INTERNATIONAL",
			PriceType: "RETAIL",
			Weight:    16,
		},
		Customs: &usps.CustomsDeclaration{
			TotalValue: 50,
			Items: []usps.CustomsItem{
				{Description: "Books", Quantity: 2, UnitValue: 25, UnitWeight: 8},
			},
		},
	}
}

func TestServer_DomesticPrices(t *testing.T) {
	t.Run("given a quote request, then canned quotes come back over real HTTP", func(t *testing.T) {
		srv := New(t)
		client := srv.Client()

		result, err := client.DomesticPrices.Quote(context.Background(), &usps.DomesticPriceRequest{
			OriginZIP:      "63116",
			DestinationZIP: "10001",
			WeightOz:       16,
		})

		require.NoError(t, err)
		require.True(t, result.IsSuccess, result.ErrorDescription)
		require.Len(t, result.Quotes, 2)
		assert.Equal(t, "PRIORITY_MAIL", result.Quotes[0].Service)
		assert.InDelta(t, 13.90, result.Quotes[0].Price, 0.001)
		assert.Equal(t, "USD", result.Quotes[0].Currency)
		assert.Equal(t, 1, srv.TokenRequests())
	})

	t.Run("given two calls, then the bearer token is fetched once", func(t *testing.T) {
		srv := New(t)
		client := srv.Client()
		req := &usps.DomesticPriceRequest{OriginZIP: "63116", DestinationZIP: "10001", WeightOz: 8}

		for range 2 {
			result, err := client.DomesticPrices.Quote(context.Background(), req)
			require.NoError(t, err)
			require.True(t, result.IsSuccess)
		}

		assert.Equal(t, 1, srv.TokenRequests())
		assert.Equal(t, 2, srv.RequestCount("/prices/v3/domestic"))
	})
}

func TestServer_Addresses(t *testing.T) {
	t.Run("given a standardize request, then addresses come back uppercased", func(t *testing.T) {
		srv := New(t)
		client := srv.Client()

		result, err := client.Addresses.Standardize(context.Background(), &usps.StandardizeAddressRequest{
			Addresses: []usps.AddressInput{
				{AddressLine1: "1100 wyoming st", City: "st. louis", State: "mo"},
			},
		})

		require.NoError(t, err)
		require.True(t, result.IsSuccess, result.ErrorDescription)
		require.Len(t, result.Addresses, 1)
		assert.Equal(t, "1100 WYOMING ST", result.Addresses[0].AddressLine1)
		assert.Equal(t, "20260", result.Addresses[0].ZIPCode)
		assert.True(t, result.Addresses[0].Valid)
	})

	t.Run("given a lookup request, then deliverability metadata is attached", func(t *testing.T) {
		srv := New(t)
		client := srv.Client()

		result, err := client.Addresses.Lookup(context.Background(), &usps.AddressLookupRequest{
			StreetAddress: "1100 Wyoming St",
			City:          "St. Louis",
			State:         "MO",
			ZIPCode:       "63118",
		})

		require.NoError(t, err)
		require.True(t, result.IsSuccess, result.ErrorDescription)
		assert.Equal(t, "1100 WYOMING ST", result.Address.AddressLine1)
		assert.True(t, result.Address.Valid)
		require.Contains(t, result.Metadata, "additionalInfo")
	})
}

func TestServer_DomesticLabel(t *testing.T) {
	t.Run("given a multipart-capable client, then both label parts are normalized", func(t *testing.T) {
		srv := New(t)
		client := srv.Client()

		result, err := client.DomesticLabels.Create(context.Background(), validLabelRequest())

		require.NoError(t, err)
		require.True(t, result.IsSuccess, result.ErrorDescription)
		assert.Regexp(t, `^94055`, result.TrackingNumber)
		assert.Equal(t, fakePDF, result.Content)
		assert.Equal(t, "application/pdf", result.ContentType)
		assert.Equal(t, "DPXX0XXXXC01010", result.SKU)
		assert.InDelta(t, 9.90, result.Postage, 0.001)
		require.NotNil(t, result.Commitment)
		assert.Equal(t, "2 Days", result.Commitment.Name)
	})

	t.Run("given a missing payment token, then the stub is never called", func(t *testing.T) {
		srv := New(t)
		client := srv.Client()

		req := validLabelRequest()
		req.PaymentAuthorizationToken = ""
		result, err := client.DomesticLabels.Create(context.Background(), req)

		require.NoError(t, err)
		assert.False(t, result.IsSuccess)
		assert.Equal(t, 0, srv.RequestCount("/labels/v3/label"))
	})

	t.Run("given a TIF image type, then the tiff artifact is returned", func(t *testing.T) {
		srv := New(t)
		client := srv.Client()

		req := validLabelRequest()
		req.ImageInfo = &usps.LabelImageInfo{ImageType: "TIF"}
		result, err := client.DomesticLabels.Create(context.Background(), req)

		require.NoError(t, err)
		require.True(t, result.IsSuccess, result.ErrorDescription)
		assert.Equal(t, fakeTIFF, result.Content)
		assert.Equal(t, "image/tiff", result.ContentType)
	})
}

func TestServer_InternationalLabel(t *testing.T) {
	t.Run("given a JSON label response, then the base64 image is decoded", func(t *testing.T) {
		srv := New(t)
		client := srv.Client()

		result, err := client.InternationalLabels.Create(context.Background(), validInternationalLabelRequest())

		require.NoError(t, err)
		require.True(t, result.IsSuccess, result.ErrorDescription)
		assert.Regexp(t, `^EC\d{9}US$`, result.TrackingNumber)
		assert.Equal(t, fakePDF, result.Content)
		assert.Equal(t, "application/pdf", result.ContentType)
		require.NotNil(t, result.CustomsInfo)
		assert.InDelta(t, 50, result.CustomsInfo.TotalValue, 0.001)
	})

	t.Run("given a cancel call, then the label is reported canceled", func(t *testing.T) {
		srv := New(t)
		client := srv.Client()

		result, err := client.InternationalLabels.Cancel(context.Background(), "EC000000001US")

		require.NoError(t, err)
		require.True(t, result.IsSuccess, result.ErrorDescription)
		assert.Equal(t, "Label canceled", result.StatusDescription)
		assert.Equal(t, 1, srv.RequestCount("/international-labels/v3/international-label/EC000000001US"))
	})
}

func TestServer_ScanForm(t *testing.T) {
	srv := New(t)
	client := srv.Client()

	result, err := client.ScanForms.Create(context.Background(), &usps.CreateScanFormRequest{
		LabelShipment: &usps.LabelShipment{
			Labels: []usps.ScanFormLabelEntry{
				{TrackingNumber: "9405500000000000000001"},
				{TrackingNumber: "9405500000000000000002"},
			},
			MailDate: "2026-08-29",
		},
	})

	require.NoError(t, err)
	require.True(t, result.IsSuccess, result.ErrorDescription)
	assert.Regexp(t, `^92750`, result.ScanForm.EFN)
	assert.Equal(t, "PS5630", result.ScanForm.FormType)
	assert.Equal(t, fakePDF, result.ScanForm.FormContent)
	require.Len(t, result.ScanForm.Counts, 1)
	assert.Equal(t, 2, result.ScanForm.Counts[0].PackageCount)
	assert.Len(t, result.ScanForm.Labels, 2)
}

func TestServer_ShippingOptionsAndStandards(t *testing.T) {
	srv := New(t)
	client := srv.Client()

	t.Run("shipping options are flattened per mail class", func(t *testing.T) {
		result, err := client.ShippingOptions.Search(context.Background(), &usps.ShippingOptionsRequest{
			OriginZIPCode:      "63116",
			DestinationZIPCode: "10001",
		})

		require.NoError(t, err)
		require.True(t, result.IsSuccess, result.ErrorDescription)
		require.Len(t, result.Options, 2)
		assert.Equal(t, "PRIORITY_MAIL", result.Options[0].Service)
		assert.Equal(t, 2, result.Options[0].EstimatedDays)
		assert.Equal(t, 3, result.Options[1].EstimatedDays)
	})

	t.Run("service standards lookup and files", func(t *testing.T) {
		lookup, err := client.ServiceStandards.Lookup(context.Background(), &usps.ServiceStandardsRequest{
			OriginZIP:      "63116",
			DestinationZIP: "10001",
		})
		require.NoError(t, err)
		require.True(t, lookup.IsSuccess, lookup.ErrorDescription)
		assert.Equal(t, 2, lookup.Lookup.EstimatedDays)

		files, err := client.ServiceStandards.ListFiles(context.Background())
		require.NoError(t, err)
		require.True(t, files.IsSuccess, files.ErrorDescription)
		assert.NotEmpty(t, files.Files)
	})
}

func TestServer_InternationalPrices(t *testing.T) {
	srv := New(t)
	client := srv.Client()

	result, err := client.InternationalPrices.Quote(context.Background(), &usps.InternationalPriceRequest{
		BaseRates: &usps.InternationalBaseRatesRequest{
			OriginZIPCode:          "63116",
			DestinationCountryCode: "GB",
			Weight:                 16,
		},
		ExtraServiceRates: &usps.InternationalExtraServiceRatesRequest{
			ExtraService:           930,
			DestinationCountryCode: "GB",
		},
		TotalRates: &usps.InternationalTotalRatesRequest{
			OriginZIPCode:          "63116",
			DestinationCountryCode: "GB",
			Weight:                 16,
		},
	})

	require.NoError(t, err)
	require.True(t, result.IsSuccess, result.ErrorDescription)
	require.Len(t, result.BaseRates, 1)
	assert.Equal(t, "PRIORITY_MAIL_INTERNATIONAL", result.BaseRates[0].MailClass)
	require.Len(t, result.ExtraServiceRates, 1)
	assert.Equal(t, "Insurance", result.ExtraServiceRates[0].Name)
	require.Len(t, result.TotalRates, 1)
	assert.InDelta(t, 78.50, result.TotalRates[0].TotalPrice, 0.001)
}

func TestServer_FailureInjection(t *testing.T) {
	t.Run("given two injected 503s, then a retrying client recovers", func(t *testing.T) {
		srv := New(t)
		client := srv.Client(usps.WithRetryConfig(usps.RetryConfig{
			MaxRetries:      3,
			InitialInterval: 5 * time.Millisecond,
			MaxInterval:     20 * time.Millisecond,
		}))
		srv.FailNext("/prices/v3/domestic", http.StatusServiceUnavailable, 2)

		result, err := client.DomesticPrices.Quote(context.Background(), &usps.DomesticPriceRequest{
			OriginZIP:      "63116",
			DestinationZIP: "10001",
			WeightOz:       8,
		})

		require.NoError(t, err)
		require.True(t, result.IsSuccess, result.ErrorDescription)
		assert.Equal(t, 3, srv.RequestCount("/prices/v3/domestic"))
	})

	t.Run("given a persistent failure without retries, then it surfaces in-band", func(t *testing.T) {
		srv := New(t)
		client := srv.Client()
		srv.FailNext("/prices/v3/domestic", http.StatusInternalServerError, 10)

		result, err := client.DomesticPrices.Quote(context.Background(), &usps.DomesticPriceRequest{
			OriginZIP:      "63116",
			DestinationZIP: "10001",
			WeightOz:       8,
		})

		require.NoError(t, err)
		assert.False(t, result.IsSuccess)
		assert.Contains(t, result.ErrorDescription, "injected failure")
		assert.Equal(t, 1, srv.RequestCount("/prices/v3/domestic"))
	})
}

func TestServer_Auth(t *testing.T) {
	t.Run("given wrong credentials, then token refresh fails in-band", func(t *testing.T) {
		srv := New(t)
		client := srv.Client(usps.WithCredentials("wrong", "credentials"))

		result, err := client.DomesticPrices.Quote(context.Background(), &usps.DomesticPriceRequest{
			OriginZIP:      "63116",
			DestinationZIP: "10001",
		})

		require.NoError(t, err)
		assert.False(t, result.IsSuccess)
		assert.Equal(t, "Invalid token for USPS API", result.ErrorDescription)
		assert.Equal(t, 0, srv.RequestCount("/prices/v3/domestic"))
	})

	t.Run("given form-encoded token requests, then the stub accepts them", func(t *testing.T) {
		srv := New(t)
		client := srv.Client(usps.WithOAuthFormBody())

		result, err := client.DomesticPrices.Quote(context.Background(), &usps.DomesticPriceRequest{
			OriginZIP:      "63116",
			DestinationZIP: "10001",
		})

		require.NoError(t, err)
		require.True(t, result.IsSuccess, result.ErrorDescription)
	})
}

func TestServer_CustomHandler(t *testing.T) {
	srv := New(t, WithHandler(http.MethodPost, "/prices/v3/domestic",
		func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"quotes": []map[string]any{
					{"service": "MEDIA_MAIL", "price": 4.13},
				},
			})
		}))
	client := srv.Client()

	result, err := client.DomesticPrices.Quote(context.Background(), &usps.DomesticPriceRequest{
		OriginZIP:      "63116",
		DestinationZIP: "10001",
	})

	require.NoError(t, err)
	require.True(t, result.IsSuccess, result.ErrorDescription)
	require.Len(t, result.Quotes, 1)
	assert.Equal(t, "MEDIA_MAIL", result.Quotes[0].Service)
	assert.Equal(t, "USD", result.Quotes[0].Currency)
}
