package usps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShippingOptionsService_Search(t *testing.T) {
	validReq := &ShippingOptionsRequest{
		OriginZIPCode:      "20260",
		DestinationZIPCode: "94105",
		PackageDescription: &OptionsPackageDescription{
			Weight:      1.5,
			MailingDate: "2026-08-31",
		},
	}

	t.Run("given nested pricing options, then options are flattened", func(t *testing.T) {
		body := `{"pricingOptions":[{"shippingOptions":[
			{"mailClass":"PRIORITY_MAIL","rateOptions":[
				{"totalPrice":9.25,"currencyCode":"USD",
				 "commitment":{"name":"2-Day","estimatedDays":2}},
				{"totalBasePrice":8.1,
				 "rates":[{"price":8.1,"currency":"USD"}],
				 "commitment":{"name":"3-Day"}}]},
			{"mailClass":"USPS_GROUND_ADVANTAGE","rateOptions":[
				{"rates":[{"price":5.6,"currency":"EUR"}],
				 "commitment":{"scheduleDeliveryDate":"2026-09-04"}}]}]}]}`

		mt := stubToken(NewMockTransport()).
			StubPath("/shipments/v3/options/search", 200, body)
		client := newTestClient(t, mt)

		result, err := client.ShippingOptions.Search(context.Background(), validReq)
		require.NoError(t, err)
		require.True(t, result.IsSuccess)
		require.Len(t, result.Options, 3)

		assert.Equal(t, ShippingOption{
			Service: "PRIORITY_MAIL", Price: 9.25, Currency: "USD", EstimatedDays: 2,
		}, result.Options[0])

		// Price falls back to totalBasePrice, days parsed from the name.
		assert.Equal(t, ShippingOption{
			Service: "PRIORITY_MAIL", Price: 8.1, Currency: "USD", EstimatedDays: 3,
		}, result.Options[1])

		// Price and currency fall back to the first rate; days derived
		// from the delivery date against the mailing date.
		assert.Equal(t, ShippingOption{
			Service: "USPS_GROUND_ADVANTAGE", Price: 5.6, Currency: "EUR", EstimatedDays: 4,
		}, result.Options[2])
	})

	t.Run("given nil request, then request required failure", func(t *testing.T) {
		client := newTestClient(t, stubToken(NewMockTransport()))

		result, err := client.ShippingOptions.Search(context.Background(), nil)
		require.NoError(t, err)
		assert.False(t, result.IsSuccess)
		assert.Equal(t, "Request payload is required", result.ErrorDescription)
	})

	t.Run("given no rate options, then no options failure", func(t *testing.T) {
		mt := stubToken(NewMockTransport()).
			StubPath("/shipments/v3/options/search", 200, `{"pricingOptions":[]}`)
		client := newTestClient(t, mt)

		result, err := client.ShippingOptions.Search(context.Background(), validReq)
		require.NoError(t, err)
		assert.False(t, result.IsSuccess)
		assert.Equal(t, "No shipping options returned", result.ErrorDescription)
	})
}

func TestEstimatedDays(t *testing.T) {
	tests := []struct {
		name         string
		explicit     int
		commitment   string
		deliveryDate string
		mailingDate  string
		want         int
	}{
		{name: "given explicit days, then used as-is", explicit: 2, commitment: "5-Day", want: 2},
		{name: "given days in commitment name, then parsed", commitment: "3-Day", want: 3},
		{name: "given date span, then difference in days", deliveryDate: "2026-09-04", mailingDate: "2026-08-31", want: 4},
		{name: "given nothing usable, then zero", commitment: "Priority", want: 0},
		{name: "given delivery before mailing, then zero", deliveryDate: "2026-08-30", mailingDate: "2026-08-31", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := estimatedDays(tt.explicit, tt.commitment, tt.deliveryDate, tt.mailingDate)
			assert.Equal(t, tt.want, got)
		})
	}
}
