package usps

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	json "github.com/goccy/go-json"
)

// NormalizedResponse is the canonical form of a label-creation
// response. USPS returns either multipart/mixed (binary label part
// plus JSON metadata part), pure JSON (sometimes with the label as a
// base64 field), or a bare binary body; normalization flattens all
// three into one shape.
type NormalizedResponse struct {
	// TrackingNumber from the JSON metadata, falling back to the
	// X-Tracking-Number response header.
	TrackingNumber string

	// ContentType of the binary content. Defaults to the response's
	// declared content type when no part-specific type was found.
	ContentType string

	// Content is the label/document bytes. Never nil; empty when the
	// response carried no binary part.
	Content []byte

	// Metadata is the parsed JSON metadata object, or nil.
	Metadata map[string]any
}

// normalizeResponse classifies and parses a label response body.
func normalizeResponse(resp *Response) (*NormalizedResponse, error) {
	out := &NormalizedResponse{
		TrackingNumber: resp.Header.Get(headerTrackingNumber),
	}

	data, err := resp.Body()
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, params, _ := mime.ParseMediaType(contentType)

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		boundary := strings.Trim(params["boundary"], `"`)
		if boundary == "" {
			return nil, fmt.Errorf("multipart response without boundary parameter")
		}
		parseMultipartBody(data, boundary, out)

	case strings.Contains(strings.ToLower(mediaType), "json"):
		if len(bytes.TrimSpace(data)) > 0 {
			var meta map[string]any
			if err := json.Unmarshal(data, &meta); err != nil {
				return nil, fmt.Errorf("parsing metadata: %w", err)
			}
			out.Metadata = meta
			if tn := stringField(meta, "trackingNumber"); tn != "" {
				out.TrackingNumber = tn
			}
		}

	default:
		out.Content = data
	}

	if out.Content == nil {
		out.Content = []byte{}
	}
	if out.ContentType == "" {
		out.ContentType = mediaType
	}

	return out, nil
}

// parseMultipartBody scans data for boundary-delimited parts. A JSON
// part becomes the metadata object; a non-empty binary part becomes
// the content. A body missing its closing boundary terminates at the
// last delimiter found; malformed segments without a header separator
// end the scan.
func parseMultipartBody(data []byte, boundary string, out *NormalizedResponse) {
	boundaryBytes := []byte("--" + boundary)
	headerDelimiter := []byte("\r\n\r\n")

	position := 0
	for position < len(data) {
		boundaryIndex := indexOfFrom(data, boundaryBytes, position)
		if boundaryIndex < 0 {
			break
		}

		segmentStart := boundaryIndex + len(boundaryBytes)
		if segmentStart+1 < len(data) && data[segmentStart] == '-' && data[segmentStart+1] == '-' {
			break // reached closing boundary
		}

		if segmentStart+1 < len(data) && data[segmentStart] == '\r' && data[segmentStart+1] == '\n' {
			segmentStart += 2
		}

		headerEnd := indexOfFrom(data, headerDelimiter, segmentStart)
		if headerEnd < 0 {
			break
		}

		partMediaType := parsePartContentType(data[segmentStart:headerEnd])
		contentStart := headerEnd + len(headerDelimiter)

		nextBoundary := indexOfFrom(data, boundaryBytes, contentStart)
		if nextBoundary < 0 {
			nextBoundary = len(data)
		}

		// The CRLF before the next boundary is framing, not payload.
		contentEnd := nextBoundary
		if contentEnd > 0 && data[contentEnd-1] == '\n' {
			contentEnd--
			if contentEnd > 0 && data[contentEnd-1] == '\r' {
				contentEnd--
			}
		}
		if contentEnd < contentStart {
			contentEnd = contentStart
		}
		partContent := data[contentStart:contentEnd]

		if strings.Contains(strings.ToLower(partMediaType), "json") {
			if len(bytes.TrimSpace(partContent)) > 0 {
				var meta map[string]any
				if err := json.Unmarshal(partContent, &meta); err == nil {
					out.Metadata = meta
					if tn := stringField(meta, "trackingNumber"); tn != "" {
						out.TrackingNumber = tn
					}
				}
			}
		} else if len(partContent) > 0 {
			if strings.TrimSpace(partMediaType) == "" {
				partMediaType = "application/pdf"
			}
			out.ContentType = partMediaType
			out.Content = append([]byte(nil), partContent...)
		}

		position = nextBoundary
	}
}

// parsePartContentType extracts the Content-Type value from a block of
// raw part headers.
func parsePartContentType(headers []byte) string {
	for _, line := range strings.Split(string(headers), "\r\n") {
		colon := strings.Index(line, ":")
		if colon < 0 {
			continue
		}
		name := strings.TrimSpace(line[:colon])
		if strings.EqualFold(name, "Content-Type") {
			return strings.TrimSpace(line[colon+1:])
		}
	}
	return ""
}

func indexOfFrom(data, pattern []byte, start int) int {
	if start >= len(data) {
		return -1
	}
	idx := bytes.Index(data[start:], pattern)
	if idx < 0 {
		return -1
	}
	return start + idx
}

// =============================================================================
// Accept negotiation
// =============================================================================

// resolveImageContentType maps a requested image type to the media
// type USPS serves. Unrecognized or blank values fall back to PDF.
func resolveImageContentType(imageType string) string {
	switch strings.ToLower(strings.TrimSpace(imageType)) {
	case "tif", "tiff":
		return "image/tiff"
	default:
		return "application/pdf"
	}
}

// acceptHeaderFor builds the Accept list for label creation: the
// requested binary type first, then multipart/mixed and JSON as
// fallbacks since USPS chooses the envelope.
func acceptHeaderFor(imageType string) string {
	return resolveImageContentType(imageType) + ", multipart/mixed, application/json"
}

// =============================================================================
// Base64 label fallback
// =============================================================================

// labelImageAliases are the metadata field paths probed, in order,
// when an international label response is pure JSON with the image
// embedded as base64 instead of a multipart part.
var labelImageAliases = []string{
	"labelImage",
	"label",
	"image",
	"labelImageBase64",
	"labelImage.imageBase64",
	"label.imageBase64",
	"image.base64",
	"labelImage.data",
	"image.data",
}

// extractBase64Label probes the known alias paths for a base64 label
// image. A value that is not valid base64 is skipped silently and the
// next alias is tried.
func extractBase64Label(meta map[string]any) []byte {
	for _, alias := range labelImageAliases {
		raw := lookupPath(meta, alias)
		s, ok := raw.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
		if err != nil {
			continue
		}
		return decoded
	}
	return nil
}

// lookupPath resolves a dotted path through nested JSON objects.
func lookupPath(meta map[string]any, path string) any {
	var cur any = meta
	for _, seg := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = obj[seg]
		if !ok {
			return nil
		}
	}
	return cur
}

// =============================================================================
// Metadata helpers
// =============================================================================

func metaObject(meta map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if obj, ok := meta[k].(map[string]any); ok {
			return obj
		}
	}
	return nil
}

func metaSlice(meta map[string]any, keys ...string) []any {
	for _, k := range keys {
		if list, ok := meta[k].([]any); ok {
			return list
		}
	}
	return nil
}

func metaFloat(meta map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := meta[k].(type) {
		case float64:
			return v, true
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func metaInt(meta map[string]any, keys ...string) (int, bool) {
	if f, ok := metaFloat(meta, keys...); ok {
		return int(f), true
	}
	return 0, false
}
