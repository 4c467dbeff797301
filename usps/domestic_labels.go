package usps

import (
	"context"
	"strings"
)

const domesticLabelPath = "labels/v3/label"

// DomesticLabelsService creates domestic shipping labels.
type DomesticLabelsService struct {
	client *Client
}

// LabelImageInfo selects the label artifact format.
type LabelImageInfo struct {
	ImageType        string `json:"imageType"`
	LabelType        string `json:"labelType,omitempty"`
	ReceiptOption    string `json:"receiptOption,omitempty"`
	SuppressPostage  bool   `json:"suppressPostage,omitempty"`
	SuppressMailDate bool   `json:"suppressMailDate,omitempty"`
	ReturnLabel      bool   `json:"returnLabel,omitempty"`
}

// LabelAddress is a domestic ship-to or ship-from address.
type LabelAddress struct {
	FirstName        string `json:"firstName,omitempty"`
	LastName         string `json:"lastName,omitempty"`
	CompanyName      string `json:"companyName,omitempty"`
	StreetAddress    string `json:"streetAddress"`
	SecondaryAddress string `json:"secondaryAddress,omitempty"`
	City             string `json:"city"`
	State            string `json:"state"`
	ZIPCode          string `json:"ZIPCode"`
	Phone            string `json:"phone,omitempty"`
	Email            string `json:"email,omitempty"`
}

// PackageDescription describes the physical package on a label.
type PackageDescription struct {
	MailClass          string  `json:"mailClass"`
	RateIndicator      string  `json:"rateIndicator,omitempty"`
	ProcessingCategory string  `json:"processingCategory,omitempty"`
	Weight             float64 `json:"weight"`
	Length             float64 `json:"length,omitempty"`
	Width              float64 `json:"width,omitempty"`
	Height             float64 `json:"height,omitempty"`
	Girth              float64 `json:"girth,omitempty"`
	NonMachinable      bool    `json:"nonMachinable,omitempty"`
	Container          string  `json:"container,omitempty"`
	CubicTier          string  `json:"cubicTier,omitempty"`
	Softpack           bool    `json:"softpack,omitempty"`
	DimensionalWeight  float64 `json:"dimensionalWeight,omitempty"`
}

// CreateLabelRequest is the payload for a domestic label.
//
// PaymentAuthorizationToken is sent as a header, never in the body,
// and is required for every label call.
type CreateLabelRequest struct {
	ImageInfo          *LabelImageInfo     `json:"imageInfo,omitempty"`
	ToAddress          *LabelAddress       `json:"toAddress,omitempty"`
	FromAddress        *LabelAddress       `json:"fromAddress,omitempty"`
	PackageDescription *PackageDescription `json:"packageDescription,omitempty"`
	ExtraServices      []int               `json:"extraServices,omitempty"`
	PriceType          string              `json:"priceType,omitempty"`
	MailingDate        string              `json:"mailingDate,omitempty"`
	Reference          string              `json:"reference,omitempty"`

	PaymentAuthorizationToken string `json:"-"`
}

// LabelCommitment is the delivery commitment quoted with a label.
type LabelCommitment struct {
	Name                  string `json:"name"`
	MinDays               int    `json:"minDays"`
	MaxDays               int    `json:"maxDays"`
	EstimatedDeliveryDate string `json:"estimatedDeliveryDate"`
}

// LabelFee is an itemized fee charged on a label.
type LabelFee struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// CreateLabelResult is the outcome of a label creation call. Content
// holds the raw label artifact; Metadata holds the JSON segment of the
// response when one was present.
type CreateLabelResult struct {
	Result

	TrackingNumber string           `json:"trackingNumber"`
	ContentType    string           `json:"contentType"`
	Content        []byte           `json:"-"`
	Metadata       map[string]any   `json:"-"`
	SKU            string           `json:"sku"`
	Postage        float64          `json:"postage"`
	Zone           string           `json:"zone"`
	Commitment     *LabelCommitment `json:"commitment,omitempty"`
	Fees           []LabelFee       `json:"fees,omitempty"`
}

// Create requests a domestic label. The response may arrive as
// multipart/mixed, bare JSON, or a raw image; all three are normalized
// into the result.
func (s *DomesticLabelsService) Create(ctx context.Context, req *CreateLabelRequest) (*CreateLabelResult, error) {
	out := &CreateLabelResult{Result: Result{IsSuccess: true}}

	if req == nil {
		out.fail(errRequestRequired)
		return out, nil
	}
	if strings.TrimSpace(req.PaymentAuthorizationToken) == "" {
		out.fail(errPaymentTokenRequired)
		return out, nil
	}

	applyLabelDefaults(req)

	if problems := validateLabelRequest(req); len(problems) > 0 {
		out.fail(strings.Join(problems, "; "))
		return out, nil
	}

	resp, err := s.client.request().
		BodyJSON(req).
		PaymentToken(req.PaymentAuthorizationToken).
		Accept(acceptHeaderFor(req.ImageInfo.ImageType)).
		Post(ctx, domesticLabelPath)
	if err != nil {
		out.fail(inBandFailure(err, "Error creating USPS label"))
		return out, nil
	}

	if resp.IsError() {
		body, _ := resp.Body()
		out.fail(upstreamFailure(body, resp.StatusCode, "Error creating USPS label"))
		return out, nil
	}

	normalized, err := normalizeResponse(resp)
	if err != nil {
		out.fail(err.Error())
		return out, nil
	}

	out.TrackingNumber = normalized.TrackingNumber
	out.ContentType = normalized.ContentType
	out.Content = normalized.Content
	out.Metadata = normalized.Metadata
	promoteLabelMetadata(out)

	if out.TrackingNumber == "" && len(out.Content) == 0 {
		out.fail("Blank response received from label call")
		return out, nil
	}

	return out, nil
}

func applyLabelDefaults(req *CreateLabelRequest) {
	if req.ImageInfo == nil {
		req.ImageInfo = &LabelImageInfo{
			ImageType:     "PDF",
			LabelType:     "4X6LABEL",
			ReceiptOption: "NONE",
		}
		return
	}
	if req.ImageInfo.LabelType == "" {
		req.ImageInfo.LabelType = "4X6LABEL"
	}
	if req.ImageInfo.ReceiptOption == "" {
		req.ImageInfo.ReceiptOption = "NONE"
	}
}

func validateLabelRequest(req *CreateLabelRequest) []string {
	var problems []string

	switch img := strings.ToUpper(strings.TrimSpace(req.ImageInfo.ImageType)); img {
	case "":
		problems = append(problems, "imageInfo.imageType is required (PDF or TIF)")
	case "PDF", "TIF", "TIFF":
	default:
		problems = append(problems, "imageInfo.imageType must be PDF or TIF(F)")
	}

	if !labelAddressComplete(req.ToAddress) {
		problems = append(problems, "toAddress is missing streetAddress, city, state, or ZIPCode")
	}
	if !labelAddressComplete(req.FromAddress) {
		problems = append(problems, "fromAddress is missing streetAddress, city, state, or ZIPCode")
	}

	if req.PackageDescription == nil || strings.TrimSpace(req.PackageDescription.MailClass) == "" {
		problems = append(problems, "packageDescription.mailClass is required")
	}
	if req.PackageDescription == nil || req.PackageDescription.Weight <= 0 {
		problems = append(problems, "packageDescription.weight must be greater than zero")
	}

	return problems
}

func labelAddressComplete(addr *LabelAddress) bool {
	if addr == nil {
		return false
	}
	return strings.TrimSpace(addr.StreetAddress) != "" &&
		strings.TrimSpace(addr.City) != "" &&
		strings.TrimSpace(addr.State) != "" &&
		strings.TrimSpace(addr.ZIPCode) != ""
}

// promoteLabelMetadata lifts well-known fields out of the JSON segment
// onto the result.
func promoteLabelMetadata(out *CreateLabelResult) {
	meta := out.Metadata
	if meta == nil {
		return
	}

	if sku := stringField(meta, "SKU", "sku"); sku != "" {
		out.SKU = sku
	}
	if zone := stringField(meta, "zone"); zone != "" {
		out.Zone = zone
	}

	// Postage appears either as a bare number or as an object with an
	// amount.
	if postage, ok := metaFloat(meta, "postage"); ok {
		out.Postage = postage
	} else if obj := metaObject(meta, "postage"); obj != nil {
		if amount, ok := metaFloat(obj, "amount", "value"); ok {
			out.Postage = amount
		}
	}

	if obj := metaObject(meta, "commitment", "serviceCommitment"); obj != nil {
		commitment := &LabelCommitment{
			Name:                  stringField(obj, "name"),
			EstimatedDeliveryDate: stringField(obj, "estimatedDeliveryDate"),
		}
		commitment.MinDays, _ = metaInt(obj, "minDays")
		commitment.MaxDays, _ = metaInt(obj, "maxDays")
		out.Commitment = commitment
	}

	if list := metaSlice(meta, "fees"); list != nil {
		out.Fees = nil
		for _, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			fee := LabelFee{Description: stringField(obj, "description", "name")}
			fee.Amount, _ = metaFloat(obj, "amount", "price")
			out.Fees = append(out.Fees, fee)
		}
	}
}
