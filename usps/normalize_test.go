package usps

import (
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubLabelResponse(contentType, body string, headers http.Header) *Response {
	h := http.Header{}
	for k, vs := range headers {
		h[k] = vs
	}
	h.Set("Content-Type", contentType)
	resp := buildStubResponse(200, body, h)
	return &Response{Response: resp}
}

func TestNormalizeResponse_Multipart(t *testing.T) {
	t.Run("given JSON and binary parts, then both are extracted", func(t *testing.T) {
		body := "--b42\r\n" +
			"Content-Type: application/json\r\n\r\n" +
			`{"trackingNumber":"9405511899560000000000","SKU":"DPXX"}` + "\r\n" +
			"--b42\r\n" +
			"Content-Type: application/pdf\r\n\r\n" +
			"%PDF-1.7 bytes\r\n" +
			"--b42--\r\n"

		resp := stubLabelResponse(`multipart/mixed; boundary=b42`, body, nil)

		out, err := normalizeResponse(resp)
		require.NoError(t, err)
		assert.Equal(t, "9405511899560000000000", out.TrackingNumber)
		assert.Equal(t, "application/pdf", out.ContentType)
		assert.Equal(t, []byte("%PDF-1.7 bytes"), out.Content)
		require.NotNil(t, out.Metadata)
		assert.Equal(t, "DPXX", out.Metadata["SKU"])
	})

	t.Run("given binary part before JSON part, then both still extracted", func(t *testing.T) {
		body := "--b42\r\n" +
			"Content-Type: image/tiff\r\n\r\n" +
			"TIFF bytes\r\n" +
			"--b42\r\n" +
			"Content-Type: application/json\r\n\r\n" +
			`{"trackingNumber":"9405511899560000000001"}` + "\r\n" +
			"--b42--\r\n"

		resp := stubLabelResponse(`multipart/mixed; boundary=b42`, body, nil)

		out, err := normalizeResponse(resp)
		require.NoError(t, err)
		assert.Equal(t, "9405511899560000000001", out.TrackingNumber)
		assert.Equal(t, "image/tiff", out.ContentType)
		assert.Equal(t, []byte("TIFF bytes"), out.Content)
	})

	t.Run("given missing closing boundary, then parsing terminates cleanly", func(t *testing.T) {
		body := "--b42\r\n" +
			"Content-Type: application/json\r\n\r\n" +
			`{"trackingNumber":"9405511899560000000002"}`

		resp := stubLabelResponse(`multipart/mixed; boundary=b42`, body, nil)

		out, err := normalizeResponse(resp)
		require.NoError(t, err)
		assert.Equal(t, "9405511899560000000002", out.TrackingNumber)
		assert.Empty(t, out.Content)
	})

	t.Run("given part without content type, then binary defaults to pdf", func(t *testing.T) {
		body := "--b42\r\n" +
			"Content-Disposition: attachment\r\n\r\n" +
			"raw label\r\n" +
			"--b42--\r\n"

		resp := stubLabelResponse(`multipart/mixed; boundary=b42`, body, nil)

		out, err := normalizeResponse(resp)
		require.NoError(t, err)
		assert.Equal(t, "application/pdf", out.ContentType)
		assert.Equal(t, []byte("raw label"), out.Content)
	})

	t.Run("given missing boundary parameter, then error", func(t *testing.T) {
		resp := stubLabelResponse("multipart/mixed", "ignored", nil)

		_, err := normalizeResponse(resp)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boundary")
	})
}

func TestNormalizeResponse_TrackingPrecedence(t *testing.T) {
	t.Run("given header only, then header tracking number is used", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("X-Tracking-Number", "9400HEADER")

		resp := stubLabelResponse("application/json", `{"SKU":"DPXX"}`, headers)

		out, err := normalizeResponse(resp)
		require.NoError(t, err)
		assert.Equal(t, "9400HEADER", out.TrackingNumber)
	})

	t.Run("given both header and metadata, then metadata wins", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("X-Tracking-Number", "9400HEADER")

		resp := stubLabelResponse("application/json",
			`{"trackingNumber":"9400METADATA"}`, headers)

		out, err := normalizeResponse(resp)
		require.NoError(t, err)
		assert.Equal(t, "9400METADATA", out.TrackingNumber)
	})
}

func TestNormalizeResponse_RawBinary(t *testing.T) {
	resp := stubLabelResponse("application/pdf", "%PDF-1.7 direct", nil)

	out, err := normalizeResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", out.ContentType)
	assert.Equal(t, []byte("%PDF-1.7 direct"), out.Content)
	assert.Nil(t, out.Metadata)
}

func TestAcceptHeaderFor(t *testing.T) {
	tests := []struct {
		imageType string
		want      string
	}{
		{imageType: "PDF", want: "application/pdf, multipart/mixed, application/json"},
		{imageType: "TIF", want: "image/tiff, multipart/mixed, application/json"},
		{imageType: "tiff", want: "image/tiff, multipart/mixed, application/json"},
		{imageType: "", want: "application/pdf, multipart/mixed, application/json"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, acceptHeaderFor(tt.imageType), tt.imageType)
	}
}

func TestExtractBase64Label(t *testing.T) {
	pdf := []byte("%PDF")
	encoded := base64.StdEncoding.EncodeToString(pdf)

	t.Run("given top-level alias, then decoded", func(t *testing.T) {
		got := extractBase64Label(map[string]any{"labelImage": encoded})
		assert.Equal(t, pdf, got)
	})

	t.Run("given dotted alias, then decoded", func(t *testing.T) {
		got := extractBase64Label(map[string]any{
			"labelImage": map[string]any{"imageBase64": encoded},
		})
		assert.Equal(t, pdf, got)
	})

	t.Run("given invalid base64 in first alias, then next alias is tried", func(t *testing.T) {
		got := extractBase64Label(map[string]any{
			"labelImage": "not base64!!!",
			"label":      encoded,
		})
		assert.Equal(t, pdf, got)
	})

	t.Run("given no alias present, then nil", func(t *testing.T) {
		assert.Nil(t, extractBase64Label(map[string]any{"other": "x"}))
	})
}
