package uspstest

import (
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
)

// fakePDF is the label artifact the stub hands out. Real enough for
// content-type sniffing, small enough to assert on.
var fakePDF = []byte("%PDF-1.4\nuspstest label artifact\n%%EOF\n")

var fakeTIFF = []byte("II*\x00uspstest label artifact")

// ============================================================================
// OAuth
// ============================================================================

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.tokenRequests++
	s.mu.Unlock()

	var req tokenRequest
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		req.GrantType = r.PostForm.Get("grant_type")
		req.ClientID = r.PostForm.Get("client_id")
		req.ClientSecret = r.PostForm.Get("client_secret")
	} else {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	if req.GrantType != "client_credentials" {
		writeError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be client_credentials")
		return
	}
	if req.ClientID != s.cfg.clientID || req.ClientSecret != s.cfg.clientSecret {
		writeError(w, http.StatusUnauthorized, "invalid_client", "Client authentication failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": s.cfg.accessToken,
		"token_type":   "Bearer",
		"expires_in":   int(s.cfg.tokenTTL.Seconds()),
	})
}

// ============================================================================
// Addresses
// ============================================================================

func (s *Server) handleStandardize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Addresses []struct {
			AddressLine1 string `json:"addressLine1"`
			AddressLine2 string `json:"addressLine2"`
			City         string `json:"city"`
			State        string `json:"state"`
			ZIPCode      string `json:"zipCode"`
		} `json:"addresses"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "400", err.Error())
		return
	}
	if len(req.Addresses) == 0 {
		writeError(w, http.StatusBadRequest, "400.01", "addresses is required")
		return
	}

	out := make([]map[string]any, 0, len(req.Addresses))
	for _, addr := range req.Addresses {
		zip := addr.ZIPCode
		if zip == "" {
			zip = "20260"
		}
		out = append(out, map[string]any{
			"addressLine1": strings.ToUpper(addr.AddressLine1),
			"addressLine2": strings.ToUpper(addr.AddressLine2),
			"city":         strings.ToUpper(addr.City),
			"state":        strings.ToUpper(addr.State),
			"zipCode":      zip,
			"valid":        addr.AddressLine1 != "",
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"addresses": out})
}

func (s *Server) handleAddressLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	street := q.Get("streetAddress")
	if street == "" {
		writeError(w, http.StatusBadRequest, "400.01", "streetAddress is required")
		return
	}
	zip := q.Get("ZIPCode")
	if zip == "" {
		zip = "20260"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": map[string]any{
			"streetAddress":    strings.ToUpper(street),
			"secondaryAddress": strings.ToUpper(q.Get("secondaryAddress")),
			"city":             strings.ToUpper(q.Get("city")),
			"state":            strings.ToUpper(q.Get("state")),
			"ZIPCode":          zip,
		},
		"additionalInfo": map[string]any{
			"DPVConfirmation": "Y",
			"business":        "N",
			"vacant":          "N",
		},
	})
}

// ============================================================================
// Prices
// ============================================================================

func (s *Server) handleDomesticPrices(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OriginZIP      string  `json:"originZip"`
		DestinationZIP string  `json:"destinationZip"`
		WeightOz       float64 `json:"weightOz"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "400", err.Error())
		return
	}
	if req.OriginZIP == "" || req.DestinationZIP == "" {
		writeError(w, http.StatusBadRequest, "400.02", "originZip and destinationZip are required")
		return
	}

	weight := req.WeightOz
	if weight <= 0 {
		weight = 1
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"quotes": []map[string]any{
			{
				"service":          "PRIORITY_MAIL",
				"price":            round2(9.90 + 0.25*weight),
				"currency":         "USD",
				"deliveryStandard": "2 Days",
			},
			{
				"service":          "USPS_GROUND_ADVANTAGE",
				"price":            round2(5.60 + 0.15*weight),
				"currency":         "USD",
				"deliveryStandard": "3 Days",
			},
		},
	})
}

func (s *Server) handleIntlBaseRates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DestinationCountryCode string  `json:"destinationCountryCode"`
		Weight                 float64 `json:"weight"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "400", err.Error())
		return
	}
	if req.DestinationCountryCode == "" {
		writeError(w, http.StatusBadRequest, "400.02", "destinationCountryCode is required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rates":          []map[string]any{intlRate(req.Weight)},
		"totalBasePrice": 61.25,
	})
}

func (s *Server) handleIntlBaseRatesList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"rateOptions": []map[string]any{
			{
				"totalBasePrice": 61.25,
				"rates":          []map[string]any{intlRate(16)},
			},
			{
				"totalBasePrice": 47.80,
				"rates": []map[string]any{{
					"sku":       "IEXX0XXXXC05160",
					"mailClass": "FIRST-CLASS_PACKAGE_INTERNATIONAL_SERVICE",
					"priceType": "RETAIL",
					"zone":      "05",
					"price":     47.80,
					"weight":    16.0,
				}},
			},
		},
	})
}

func (s *Server) handleIntlExtraServiceRates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sku":          "IEINSXXXXXX0000",
		"priceType":    "RETAIL",
		"price":        17.25,
		"extraService": "930",
		"name":         "Insurance",
	})
}

func (s *Server) handleIntlTotalRates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"rateOptions": []map[string]any{
			{
				"totalBasePrice": 61.25,
				"totalPrice":     78.50,
				"rates":          []map[string]any{intlRate(16)},
				"extraServices": []map[string]any{{
					"sku":          "IEINSXXXXXX0000",
					"priceType":    "RETAIL",
					"price":        17.25,
					"extraService": "930",
					"name":         "Insurance",
				}},
			},
		},
	})
}

func intlRate(weight float64) map[string]any {
	if weight <= 0 {
		weight = 16
	}
	return map[string]any{
		"sku":       "IPXX0XXXXC05160",
		"mailClass": "PRIORITY_MAIL_INTERNATIONAL",
		"priceType": "RETAIL",
		"zone":      "05",
		"price":     61.25,
		"weight":    weight,
		"dimWeight": weight,
	}
}

// ============================================================================
// Service standards and shipping options
// ============================================================================

func (s *Server) handleStandardsLookup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OriginZIP      string `json:"originZip"`
		DestinationZIP string `json:"destinationZip"`
		Service        string `json:"service"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "400", err.Error())
		return
	}
	service := req.Service
	if service == "" {
		service = "PRIORITY_MAIL"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":               service,
		"estimatedDays":         2,
		"estimatedDeliveryDate": time.Now().AddDate(0, 0, 2).Format("2006-01-02"),
	})
}

func (s *Server) handleStandardsFiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"files": []string{
			"DSSTDFiles/EDW_CS_SSM.zip",
			"DSSTDFiles/EDW_FCM_SSM.zip",
			"DSSTDFiles/EDW_PRI_SSM.zip",
		},
	})
}

func (s *Server) handleShippingOptions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OriginZIPCode string `json:"originZIPCode"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "400", err.Error())
		return
	}
	if req.OriginZIPCode == "" {
		writeError(w, http.StatusBadRequest, "400.02", "originZIPCode is required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pricingOptions": []map[string]any{{
			"shippingOptions": []map[string]any{
				{
					"mailClass": "PRIORITY_MAIL",
					"rateOptions": []map[string]any{{
						"totalPrice":   12.40,
						"currencyCode": "USD",
						"commitment": map[string]any{
							"name":          "2-Day",
							"estimatedDays": 2,
						},
					}},
				},
				{
					"mailClass": "USPS_GROUND_ADVANTAGE",
					"rateOptions": []map[string]any{{
						"totalBasePrice": 7.90,
						"currencyCode":   "USD",
						"commitment": map[string]any{
							"name": "3-Day",
						},
					}},
				},
			},
		}},
	})
}

// ============================================================================
// Labels
// ============================================================================

func (s *Server) handleDomesticLabel(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(r.Header.Get("X-Payment-Authorization-Token")) == "" {
		writeError(w, http.StatusUnauthorized, "401", "Payment authorization token missing")
		return
	}

	var req struct {
		ImageInfo struct {
			ImageType string `json:"imageType"`
		} `json:"imageInfo"`
		PackageDescription struct {
			MailClass string  `json:"mailClass"`
			Weight    float64 `json:"weight"`
		} `json:"packageDescription"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "400", err.Error())
		return
	}

	tracking := fmt.Sprintf("94055000000000%06d", s.nextLabelNumber())
	metadata := map[string]any{
		"trackingNumber": tracking,
		"SKU":            "DPXX0XXXXC01010",
		"postage":        9.90,
		"zone":           "05",
		"commitment": map[string]any{
			"name":                 "2 Days",
			"scheduleDeliveryDate": time.Now().AddDate(0, 0, 2).Format("2006-01-02"),
		},
		"fees": []map[string]any{
			{"description": "Tracking", "amount": 0.0},
		},
	}

	image := fakePDF
	imageContentType := "application/pdf"
	if t := strings.ToUpper(req.ImageInfo.ImageType); t == "TIF" || t == "TIFF" {
		image = fakeTIFF
		imageContentType = "image/tiff"
	}

	w.Header().Set("X-Tracking-Number", tracking)
	if strings.Contains(r.Header.Get("Accept"), "multipart/mixed") {
		writeMultipartLabel(w, metadata, image, imageContentType)
		return
	}

	metadata["labelImage"] = base64.StdEncoding.EncodeToString(image)
	writeJSON(w, http.StatusOK, metadata)
}

func (s *Server) handleInternationalLabel(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(r.Header.Get("X-Payment-Authorization-Token")) == "" {
		writeError(w, http.StatusUnauthorized, "401", "Payment authorization token missing")
		return
	}

	var req struct {
		Customs struct {
			TotalValue   float64 `json:"totalValue"`
			CurrencyCode string  `json:"currencyCode"`
			ContentsType string  `json:"contentsType"`
		} `json:"customs"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "400", err.Error())
		return
	}

	// International label responses arrive as JSON with the image
	// embedded base64, even when multipart was offered.
	tracking := fmt.Sprintf("EC%09dUS", s.nextLabelNumber())
	writeJSON(w, http.StatusOK, map[string]any{
		"trackingNumber": tracking,
		"SKU":            "IPXX0XXXXC05160",
		"postage":        61.25,
		"labelImage":     base64.StdEncoding.EncodeToString(fakePDF),
		"contentType":    "application/pdf",
		"customs": map[string]any{
			"totalValue":   req.Customs.TotalValue,
			"currencyCode": req.Customs.CurrencyCode,
			"contentsType": req.Customs.ContentsType,
		},
	})
}

func (s *Server) handleCancelLabel(w http.ResponseWriter, r *http.Request) {
	tracking := chi.URLParam(r, "trackingNumber")
	if strings.TrimSpace(tracking) == "" {
		writeError(w, http.StatusBadRequest, "400", "trackingNumber is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

// writeMultipartLabel emits the two-part multipart/mixed label
// response the real API produces: a JSON metadata part followed by
// the binary image part.
func writeMultipartLabel(w http.ResponseWriter, metadata map[string]any, image []byte, imageContentType string) {
	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/mixed; boundary="+mw.Boundary())
	w.WriteHeader(http.StatusOK)

	metaPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json"},
	})
	if err != nil {
		return
	}
	metaBody, _ := json.Marshal(metadata)
	_, _ = metaPart.Write(metaBody)

	imagePart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {imageContentType},
	})
	if err != nil {
		return
	}
	_, _ = imagePart.Write(image)

	_ = mw.Close()
}

// ============================================================================
// Scan forms
// ============================================================================

func (s *Server) handleScanForm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LabelShipment *struct {
			Labels   []struct{ TrackingNumber string } `json:"labels"`
			MailDate string                            `json:"mailDate"`
		} `json:"labelShipment"`
		MidShipment         json.RawMessage `json:"midShipment"`
		ManifestMidShipment json.RawMessage `json:"manifestMidShipment"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "400", err.Error())
		return
	}
	if req.LabelShipment == nil && req.MidShipment == nil && req.ManifestMidShipment == nil {
		writeError(w, http.StatusBadRequest, "400.03", "a shipment selection is required")
		return
	}

	created := time.Now()
	writeJSON(w, http.StatusOK, map[string]any{
		"scanForm": map[string]any{
			"efn":             fmt.Sprintf("92750900000000%06d", s.nextLabelNumber()),
			"formType":        "PS5630",
			"createdDateTime": created.Format(time.RFC3339),
			"expiresDateTime": created.AddDate(0, 0, 1).Format(time.RFC3339),
			"artifact": map[string]any{
				"contentType": "application/pdf",
				"content":     base64.StdEncoding.EncodeToString(fakePDF),
			},
			"counts": []map[string]any{
				{"mailClass": "PRIORITY_MAIL", "packageCount": 2, "totalPostage": 19.80},
			},
			"labels": []map[string]any{
				{"trackingNumber": "9405500000000000000001", "mailClass": "PRIORITY_MAIL"},
				{"trackingNumber": "9405500000000000000002", "mailClass": "PRIORITY_MAIL"},
			},
		},
	})
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
