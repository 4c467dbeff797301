package usps

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
)

const internationalLabelPath = "international-labels/v3/international-label"

// InternationalLabelsService creates and cancels international labels.
type InternationalLabelsService struct {
	client *Client
}

// InternationalLabelAddress is a destination address abroad. For
// countries without a state concept, PostalCode and CountryCode carry
// the routing detail.
type InternationalLabelAddress struct {
	FirstName        string `json:"firstName,omitempty"`
	LastName         string `json:"lastName,omitempty"`
	CompanyName      string `json:"companyName,omitempty"`
	StreetAddress    string `json:"streetAddress"`
	SecondaryAddress string `json:"secondaryAddress,omitempty"`
	City             string `json:"city"`
	State            string `json:"state,omitempty"`
	ZIPCode          string `json:"ZIPCode,omitempty"`
	PostalCode       string `json:"postalCode"`
	CountryCode      string `json:"countryCode"`
	Phone            string `json:"phone,omitempty"`
	Email            string `json:"email,omitempty"`
}

// InternationalPackageDescription describes the package on an
// international label.
type InternationalPackageDescription struct {
	MailClass          string  `json:"mailClass"`
	PriceType          string  `json:"priceType"`
	RateIndicator      string  `json:"rateIndicator,omitempty"`
	ProcessingCategory string  `json:"processingCategory,omitempty"`
	Weight             float64 `json:"weight"`
	Length             float64 `json:"length,omitempty"`
	Width              float64 `json:"width,omitempty"`
	Height             float64 `json:"height,omitempty"`
	MailingDate        string  `json:"mailingDate,omitempty"`
}

// CustomsItem is one line of a customs declaration.
type CustomsItem struct {
	Description     string  `json:"description"`
	Quantity        int     `json:"quantity"`
	UnitValue       float64 `json:"unitValue"`
	UnitWeight      float64 `json:"unitWeight"`
	HSTariffNumber  string  `json:"hsTariffNumber,omitempty"`
	CountryOfOrigin string  `json:"countryOfOrigin,omitempty"`
}

// CustomsDeclaration is the customs form content for a shipment.
type CustomsDeclaration struct {
	ContentsType        string        `json:"contentsType"`
	InvoiceNumber       string        `json:"invoiceNumber,omitempty"`
	TotalValue          float64       `json:"totalValue,omitempty"`
	CurrencyCode        string        `json:"currencyCode,omitempty"`
	NonDeliveryOption   string        `json:"nonDeliveryOption,omitempty"`
	SenderSignatureName string        `json:"senderSignatureName,omitempty"`
	SenderSignatureDate string        `json:"senderSignatureDate,omitempty"`
	Items               []CustomsItem `json:"items"`
}

// CreateInternationalLabelRequest is the payload for an international
// label. PaymentAuthorizationToken is sent as a header.
type CreateInternationalLabelRequest struct {
	ImageInfo          *LabelImageInfo                  `json:"imageInfo,omitempty"`
	FromAddress        *LabelAddress                    `json:"fromAddress,omitempty"`
	ToAddress          *InternationalLabelAddress       `json:"toAddress,omitempty"`
	PackageDescription *InternationalPackageDescription `json:"packageDescription,omitempty"`
	Customs            *CustomsDeclaration              `json:"customs,omitempty"`
	ExtraServices      []int                            `json:"extraServices,omitempty"`
	Reference          string                           `json:"reference,omitempty"`

	PaymentAuthorizationToken string `json:"-"`
}

// CustomsSummary echoes the customs totals USPS recorded.
type CustomsSummary struct {
	TotalValue   float64 `json:"totalValue"`
	CurrencyCode string  `json:"currencyCode"`
	ContentsType string  `json:"contentsType"`
}

// InternationalCommitment is the delivery commitment on an
// international label.
type InternationalCommitment struct {
	Name                  string `json:"name"`
	MinDays               int    `json:"minDays"`
	MaxDays               int    `json:"maxDays"`
	EstimatedDeliveryDate string `json:"estimatedDeliveryDate"`
}

// InternationalLabelFee is an itemized fee with its currency.
type InternationalLabelFee struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
}

// CreateInternationalLabelResult is the outcome of an international
// label call.
type CreateInternationalLabelResult struct {
	Result

	TrackingNumber string                   `json:"trackingNumber"`
	ContentType    string                   `json:"contentType"`
	Content        []byte                   `json:"-"`
	Metadata       map[string]any           `json:"-"`
	SKU            string                   `json:"sku"`
	Postage        float64                  `json:"postage"`
	CustomsInfo    *CustomsSummary          `json:"customsInfo,omitempty"`
	Commitment     *InternationalCommitment `json:"commitment,omitempty"`
	Fees           []InternationalLabelFee  `json:"fees,omitempty"`
}

var (
	countryCodePattern  = regexp.MustCompile(`^[A-Za-z]{2}$`)
	currencyCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Create requests an international label. Responses arrive as
// multipart/mixed or as JSON carrying the label image base64-encoded;
// both forms are normalized into the result.
func (s *InternationalLabelsService) Create(ctx context.Context, req *CreateInternationalLabelRequest) (*CreateInternationalLabelResult, error) {
	out := &CreateInternationalLabelResult{Result: Result{IsSuccess: true}}

	if req == nil {
		out.fail(errRequestRequired)
		return out, nil
	}
	if strings.TrimSpace(req.PaymentAuthorizationToken) == "" {
		out.fail(errPaymentTokenRequired)
		return out, nil
	}

	applyInternationalLabelDefaults(req)

	if problems := validateInternationalLabelRequest(req); len(problems) > 0 {
		out.fail(strings.Join(problems, "; "))
		return out, nil
	}

	resp, err := s.client.request().
		BodyJSON(req).
		PaymentToken(req.PaymentAuthorizationToken).
		Accept(acceptHeaderFor(req.ImageInfo.ImageType)).
		Post(ctx, internationalLabelPath)
	if err != nil {
		out.fail(inBandFailure(err, "Error creating USPS international label"))
		return out, nil
	}

	if resp.IsError() {
		body, _ := resp.Body()
		out.fail(upstreamFailure(body, resp.StatusCode, "Error creating USPS international label"))
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

	// JSON-only responses carry the label image base64-encoded under
	// one of several keys.
	if len(out.Content) == 0 && out.Metadata != nil {
		if decoded := extractBase64Label(out.Metadata); len(decoded) > 0 {
			out.Content = decoded
			out.ContentType = stringField(out.Metadata, "contentType", "labelImageContentType")
			if out.ContentType == "" {
				out.ContentType = resolveImageContentType(req.ImageInfo.ImageType)
			}
		}
	}

	promoteInternationalLabelMetadata(out)

	if out.TrackingNumber == "" && len(out.Content) == 0 {
		out.fail("Blank response received from international label call")
		return out, nil
	}

	return out, nil
}

// CancelInternationalLabelResult is the outcome of a cancellation.
type CancelInternationalLabelResult struct {
	Result

	TrackingNumber    string `json:"trackingNumber"`
	StatusDescription string `json:"statusDescription"`
}

// Cancel voids an international label by tracking number.
func (s *InternationalLabelsService) Cancel(ctx context.Context, trackingNumber string) (*CancelInternationalLabelResult, error) {
	out := &CancelInternationalLabelResult{Result: Result{IsSuccess: true}}

	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		out.fail("trackingNumber is required")
		return out, nil
	}

	resp, err := s.client.request().
		PathParam("trackingNumber", trackingNumber).
		Delete(ctx, internationalLabelPath+"/{trackingNumber}")
	if err != nil {
		out.fail(inBandFailure(err, "Error canceling USPS international label"))
		return out, nil
	}

	if resp.IsError() {
		body, _ := resp.Body()
		out.fail(upstreamFailure(body, resp.StatusCode, "Error canceling USPS international label"))
		return out, nil
	}

	// A successful cancel has no payload worth parsing; drain the body
	// anyway so the connection is released.
	if _, err := resp.Body(); err != nil {
		out.fail(errUnavailable)
		return out, nil
	}

	out.TrackingNumber = trackingNumber
	out.StatusDescription = "Label canceled"
	return out, nil
}

func applyInternationalLabelDefaults(req *CreateInternationalLabelRequest) {
	if req.ImageInfo == nil {
		req.ImageInfo = &LabelImageInfo{
			ImageType:     "PDF",
			LabelType:     "4X6LABEL",
			ReceiptOption: "NONE",
		}
	} else {
		if req.ImageInfo.LabelType == "" {
			req.ImageInfo.LabelType = "4X6LABEL"
		}
		if req.ImageInfo.ReceiptOption == "" {
			req.ImageInfo.ReceiptOption = "NONE"
		}
	}

	if req.Customs != nil {
		if req.Customs.ContentsType == "" {
			req.Customs.ContentsType = "MERCHANDISE"
		}
		if req.Customs.CurrencyCode == "" {
			req.Customs.CurrencyCode = "USD"
		}
	}
}

func validateInternationalLabelRequest(req *CreateInternationalLabelRequest) []string {
	var problems []string

	switch img := strings.ToUpper(strings.TrimSpace(req.ImageInfo.ImageType)); img {
	case "":
		problems = append(problems, "imageInfo.imageType is required (PDF or TIF)")
	case "PDF", "TIF", "TIFF":
	default:
		problems = append(problems, "imageInfo.imageType must be PDF or TIF(F)")
	}

	// The origin must be a full US address.
	if !labelAddressComplete(req.FromAddress) {
		problems = append(problems, "fromAddress is missing streetAddress, city, state, or ZIPCode")
	}

	problems = append(problems, validateInternationalDestination(req.ToAddress)...)
	problems = append(problems, validateInternationalPackage(req.PackageDescription)...)
	problems = append(problems, validateCustoms(req.Customs)...)

	return problems
}

func validateInternationalDestination(addr *InternationalLabelAddress) []string {
	var problems []string
	if addr == nil ||
		strings.TrimSpace(addr.StreetAddress) == "" ||
		strings.TrimSpace(addr.City) == "" ||
		strings.TrimSpace(addr.PostalCode) == "" {
		problems = append(problems, "toAddress is missing streetAddress, city, or postalCode")
	}
	if addr == nil || !countryCodePattern.MatchString(strings.TrimSpace(addr.CountryCode)) {
		problems = append(problems, "toAddress.countryCode must be a two-letter ISO country code")
	}
	return problems
}

func validateInternationalPackage(pkg *InternationalPackageDescription) []string {
	var problems []string
	if pkg == nil || strings.TrimSpace(pkg.MailClass) == "" {
		problems = append(problems, "packageDescription.mailClass is required")
	}
	if pkg == nil || pkg.Weight <= 0 {
		problems = append(problems, "packageDescription.weight must be greater than zero")
	}
	if pkg != nil {
		switch strings.ToUpper(strings.TrimSpace(pkg.PriceType)) {
		case "COMMERCIAL", "RETAIL":
		default:
			problems = append(problems, "packageDescription.priceType must be COMMERCIAL or RETAIL")
		}
	}
	return problems
}

func validateCustoms(customs *CustomsDeclaration) []string {
	if customs == nil {
		return []string{"customs declaration is required"}
	}

	var problems []string
	if strings.TrimSpace(customs.ContentsType) == "" {
		problems = append(problems, "customs.contentsType is required")
	}
	if !currencyCodePattern.MatchString(customs.CurrencyCode) {
		problems = append(problems, "customs.currencyCode must be a three-letter ISO currency code")
	}
	if len(customs.Items) == 0 {
		problems = append(problems, "customs requires at least one item")
		return problems
	}

	itemTotal := 0.0
	for i, item := range customs.Items {
		if strings.TrimSpace(item.Description) == "" ||
			item.Quantity <= 0 ||
			item.UnitValue <= 0 ||
			item.UnitWeight <= 0 {
			problems = append(problems, fmt.Sprintf(
				"customs.items[%d] is missing description, quantity, unitValue, or unitWeight", i))
		}
		itemTotal += float64(item.Quantity) * item.UnitValue
	}

	if customs.TotalValue > 0 && math.Abs(customs.TotalValue-itemTotal) > 0.01 {
		problems = append(problems, "customs.totalValue does not match the sum of item values")
	}

	return problems
}

func promoteInternationalLabelMetadata(out *CreateInternationalLabelResult) {
	meta := out.Metadata
	if meta == nil {
		return
	}

	if sku := stringField(meta, "SKU", "sku"); sku != "" {
		out.SKU = sku
	}

	if postage, ok := metaFloat(meta, "postage"); ok {
		out.Postage = postage
	} else if obj := metaObject(meta, "postage"); obj != nil {
		if amount, ok := metaFloat(obj, "amount", "value"); ok {
			out.Postage = amount
		}
	}

	if obj := metaObject(meta, "customs", "customsSummary"); obj != nil {
		summary := &CustomsSummary{
			CurrencyCode: stringField(obj, "currencyCode"),
			ContentsType: stringField(obj, "contentsType"),
		}
		summary.TotalValue, _ = metaFloat(obj, "totalValue")
		out.CustomsInfo = summary
	}

	if obj := metaObject(meta, "commitment", "serviceCommitment"); obj != nil {
		commitment := &InternationalCommitment{
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
			fee := InternationalLabelFee{
				Description: stringField(obj, "description", "name"),
				Currency:    stringField(obj, "currency", "currencyCode"),
			}
			fee.Amount, _ = metaFloat(obj, "amount", "price")
			out.Fees = append(out.Fees, fee)
		}
	}
}
