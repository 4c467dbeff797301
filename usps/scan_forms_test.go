package usps

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanFormsService_Create_Modes(t *testing.T) {
	tests := []struct {
		name     string
		req      *CreateScanFormRequest
		wantDesc string
	}{
		{
			name:     "given no creation mode, then exactly-one failure",
			req:      &CreateScanFormRequest{},
			wantDesc: "Specify exactly one creation mode: labelShipment, midShipment, or manifestMidShipment",
		},
		{
			name: "given two creation modes, then only-one failure",
			req: &CreateScanFormRequest{
				LabelShipment: &LabelShipment{},
				MidShipment:   &MidShipment{MID: "900000000"},
			},
			wantDesc: "Only one creation mode is allowed per request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, stubToken(NewMockTransport()))

			result, err := client.ScanForms.Create(context.Background(), tt.req)
			require.NoError(t, err)
			assert.False(t, result.IsSuccess)
			assert.Equal(t, tt.wantDesc, result.ErrorDescription)
		})
	}
}

func TestScanFormsService_Create_AliasMapping(t *testing.T) {
	labelReq := &CreateScanFormRequest{
		LabelShipment: &LabelShipment{
			Labels: []ScanFormLabelEntry{{TrackingNumber: "9405511899560000000000"}},
		},
	}

	t.Run("given canonical field names, then summary is mapped", func(t *testing.T) {
		pdf := base64.StdEncoding.EncodeToString([]byte("%PDF scan form"))
		body := `{"scanForm":{
			"efn":"9275090000000000000000",
			"formType":"5630",
			"createdDateTime":"2026-08-29T10:00:00Z",
			"expiresDateTime":"2026-08-30T10:00:00Z",
			"artifact":{"url":"https://example/form.pdf","contentType":"application/pdf","content":"` + pdf + `"},
			"counts":[{"mailClass":"PRIORITY_MAIL","packageCount":3,"totalPostage":25.65}],
			"labels":[{"labelId":"L1","trackingNumber":"9405511899560000000000","mailClass":"PRIORITY_MAIL"}],
			"warnings":[{"warningCode":"W1","warningDescription":"label already manifested"}]}}`

		mt := stubToken(NewMockTransport()).
			StubPath("/scan-forms/v3/scan-form", 200, body)
		client := newTestClient(t, mt)

		result, err := client.ScanForms.Create(context.Background(), labelReq)
		require.NoError(t, err)
		require.True(t, result.IsSuccess)

		form := result.ScanForm
		assert.Equal(t, "9275090000000000000000", form.EFN)
		assert.Equal(t, "5630", form.FormType)
		assert.Equal(t, "https://example/form.pdf", form.FormURL)
		assert.Equal(t, []byte("%PDF scan form"), form.FormContent)
		require.Len(t, form.Counts, 1)
		assert.Equal(t, 3, form.Counts[0].PackageCount)
		require.Len(t, form.Labels, 1)
		assert.Equal(t, 1, form.Labels[0].PackageCount)
		require.Len(t, form.Warnings, 1)
		assert.Equal(t, "W1", form.Warnings[0].Code)
	})

	t.Run("given alias field names, then summary is still mapped", func(t *testing.T) {
		body := `{"form":{
			"electronicFileNumber":"9275090000000000000001",
			"psFormType":"3152",
			"createdOn":"2026-08-29T10:00:00Z",
			"links":[
				{"rel":"self","href":"https://example/api/scan-form/1"},
				{"rel":"scan-form","type":"application/pdf","href":"https://example/form1.pdf"}],
			"summary":[{"service":"USPS_GROUND_ADVANTAGE","pieces":7,"totalPostage":39.2}],
			"items":[{"labelIdentifier":"L2","IMpb":"9200000000000000000001","service":"USPS_GROUND_ADVANTAGE","packageCount":2}],
			"errors":[{"errorCode":"E1","errorDescription":"one label rejected"}]}}`

		mt := stubToken(NewMockTransport()).
			StubPath("/scan-forms/v3/scan-form", 200, body)
		client := newTestClient(t, mt)

		result, err := client.ScanForms.Create(context.Background(), labelReq)
		require.NoError(t, err)
		require.True(t, result.IsSuccess)

		form := result.ScanForm
		assert.Equal(t, "9275090000000000000001", form.EFN)
		assert.Equal(t, "3152", form.FormType)
		assert.Equal(t, "2026-08-29T10:00:00Z", form.CreatedTimestamp)

		// The self link is skipped; the scan-form link wins.
		assert.Equal(t, "https://example/form1.pdf", form.FormURL)

		require.Len(t, form.Counts, 1)
		assert.Equal(t, "USPS_GROUND_ADVANTAGE", form.Counts[0].MailClass)
		assert.Equal(t, 7, form.Counts[0].PackageCount)

		require.Len(t, form.Labels, 1)
		assert.Equal(t, "9200000000000000000001", form.Labels[0].TrackingNumber)
		assert.Equal(t, 2, form.Labels[0].PackageCount)

		require.Len(t, form.Errors, 1)
		assert.Equal(t, "E1", form.Errors[0].Code)
		assert.Equal(t, "one label rejected", form.Errors[0].Description)
	})
}

func TestScanFormsService_Create_Failures(t *testing.T) {
	labelReq := &CreateScanFormRequest{LabelShipment: &LabelShipment{}}

	tests := []struct {
		name     string
		status   int
		body     string
		wantDesc string
	}{
		{
			name:     "given blank body, then blank response failure",
			status:   200,
			body:     "",
			wantDesc: "Blank response received from scan form call",
		},
		{
			name:     "given malformed body, then parse failure",
			status:   200,
			body:     `{"scanForm":`,
			wantDesc: "Unable to parse scan form response",
		},
		{
			name:     "given upstream 400, then message is extracted",
			status:   400,
			body:     `{"error":"no eligible labels"}`,
			wantDesc: "no eligible labels",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mt := stubToken(NewMockTransport()).
				StubPath("/scan-forms/v3/scan-form", tt.status, tt.body)
			client := newTestClient(t, mt)

			result, err := client.ScanForms.Create(context.Background(), labelReq)
			require.NoError(t, err)
			assert.False(t, result.IsSuccess)
			assert.Equal(t, tt.wantDesc, result.ErrorDescription)
		})
	}
}
