package usps

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"

	json "github.com/goccy/go-json"
)

const scanFormPath = "scan-forms/v3/scan-form"

// ScanFormsService creates PS Form 5630/3152 scan forms.
type ScanFormsService struct {
	client *Client
}

// ScanFormLabelEntry identifies one label included on a scan form.
type ScanFormLabelEntry struct {
	LabelID        string `json:"labelId,omitempty"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
	MailClass      string `json:"mailClass,omitempty"`
	PackageCount   int    `json:"packageCount,omitempty"`
}

// LabelShipment builds a scan form from an explicit label list.
type LabelShipment struct {
	Labels            []ScanFormLabelEntry `json:"labels"`
	MailDate          string               `json:"mailDate,omitempty"`
	CustomerReference string               `json:"customerReference,omitempty"`
	ShipmentID        string               `json:"shipmentId,omitempty"`
}

// MidShipment builds a scan form from every label under a mailer ID
// in a date window.
type MidShipment struct {
	MID                           string `json:"mid"`
	CRID                          string `json:"crid,omitempty"`
	StartDate                     string `json:"startDate,omitempty"`
	EndDate                       string `json:"endDate,omitempty"`
	TimeZone                      string `json:"timeZone,omitempty"`
	IncludeLabelsWithoutScanForms bool   `json:"includeLabelsWithoutScanForms,omitempty"`
}

// ManifestMidShipment builds a scan form against a manifest MID.
type ManifestMidShipment struct {
	ManifestMID string `json:"manifestMid"`
	MID         string `json:"mid,omitempty"`
	CRID        string `json:"crid,omitempty"`
	StartDate   string `json:"startDate,omitempty"`
	EndDate     string `json:"endDate,omitempty"`
	TimeZone    string `json:"timeZone,omitempty"`
}

// ScanFormContact is the point of contact printed on the form.
type ScanFormContact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// AcceptanceAddress locates the acceptance facility.
type AcceptanceAddress struct {
	Address1    string `json:"address1"`
	Address2    string `json:"address2,omitempty"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postalCode"`
	CountryCode string `json:"countryCode,omitempty"`
}

// AcceptanceLocation names where USPS takes possession.
type AcceptanceLocation struct {
	FacilityName   string             `json:"facilityName,omitempty"`
	Address        *AcceptanceAddress `json:"address,omitempty"`
	AcceptanceType string             `json:"acceptanceType,omitempty"`
}

// ScanFormOutputOptions controls the artifact USPS generates.
type ScanFormOutputOptions struct {
	Format      string `json:"format,omitempty"`
	IncludePDF  bool   `json:"includePdf,omitempty"`
	IncludeLink bool   `json:"includeLink,omitempty"`
	Copies      int    `json:"copies,omitempty"`
}

// CreateScanFormRequest selects exactly one creation mode plus the
// shared contact, location, and output settings.
type CreateScanFormRequest struct {
	LabelShipment       *LabelShipment         `json:"labelShipment,omitempty"`
	MidShipment         *MidShipment           `json:"midShipment,omitempty"`
	ManifestMidShipment *ManifestMidShipment   `json:"manifestMidShipment,omitempty"`
	Contact             *ScanFormContact       `json:"contact,omitempty"`
	AcceptanceLocation  *AcceptanceLocation    `json:"acceptanceLocation,omitempty"`
	OutputOptions       *ScanFormOutputOptions `json:"outputOptions,omitempty"`
}

// ScanFormCount is a per-class package tally on the form.
type ScanFormCount struct {
	MailClass    string  `json:"mailClass"`
	PackageCount int     `json:"packageCount"`
	TotalPostage float64 `json:"totalPostage"`
}

// ScanFormLabel is one label USPS recorded on the form.
type ScanFormLabel struct {
	LabelID        string `json:"labelId"`
	TrackingNumber string `json:"trackingNumber"`
	MailClass      string `json:"mailClass"`
	PackageCount   int    `json:"packageCount"`
}

// ScanFormNote is a coded warning or error attached to the form.
type ScanFormNote struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ScanFormSummary is the normalized scan form. The v3 API has shipped
// several field spellings for the same data; the summary folds the
// known aliases into one shape.
type ScanFormSummary struct {
	EFN              string          `json:"efn"`
	FormType         string          `json:"formType"`
	CreatedTimestamp string          `json:"createdTimestamp"`
	ExpiresTimestamp string          `json:"expiresTimestamp"`
	FormURL          string          `json:"formUrl"`
	FormContentType  string          `json:"formContentType"`
	FormContent      []byte          `json:"-"`
	Counts           []ScanFormCount `json:"counts,omitempty"`
	Labels           []ScanFormLabel `json:"labels,omitempty"`
	Warnings         []ScanFormNote  `json:"warnings,omitempty"`
	Errors           []ScanFormNote  `json:"errors,omitempty"`
}

// CreateScanFormResult is the outcome of a scan form call.
type CreateScanFormResult struct {
	Result

	ScanForm ScanFormSummary `json:"scanForm"`
}

// Create generates a scan form. Exactly one creation mode must be set
// on the request.
func (s *ScanFormsService) Create(ctx context.Context, req *CreateScanFormRequest) (*CreateScanFormResult, error) {
	out := &CreateScanFormResult{Result: Result{IsSuccess: true}}

	if req == nil {
		out.fail(errRequestRequired)
		return out, nil
	}

	modes := 0
	if req.LabelShipment != nil {
		modes++
	}
	if req.MidShipment != nil {
		modes++
	}
	if req.ManifestMidShipment != nil {
		modes++
	}
	switch {
	case modes == 0:
		out.fail("Specify exactly one creation mode: labelShipment, midShipment, or manifestMidShipment")
		return out, nil
	case modes > 1:
		out.fail("Only one creation mode is allowed per request")
		return out, nil
	}

	resp, err := s.client.request().
		BodyJSON(req).
		Post(ctx, scanFormPath)
	if err != nil {
		out.fail(inBandFailure(err, "Error processing scan form request"))
		return out, nil
	}

	body, err := resp.Body()
	if err != nil {
		out.fail(errUnavailable)
		return out, nil
	}

	if resp.IsError() {
		out.fail(upstreamFailure(body, resp.StatusCode, "Error processing scan form request"))
		return out, nil
	}

	if len(bytes.TrimSpace(body)) == 0 {
		out.fail("Blank response received from scan form call")
		return out, nil
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		out.fail("Unable to parse scan form response")
		return out, nil
	}

	out.ScanForm = mapScanForm(doc)
	return out, nil
}

// mapScanForm folds the response aliases into a ScanFormSummary.
func mapScanForm(doc map[string]any) ScanFormSummary {
	root := doc
	if obj := metaObject(doc, "scanForm", "form"); obj != nil {
		root = obj
	}

	summary := ScanFormSummary{
		EFN:              stringField(root, "efn", "electronicFileNumber", "efi"),
		FormType:         stringField(root, "formType", "psFormType"),
		CreatedTimestamp: stringField(root, "createdDateTime", "createdOn"),
		ExpiresTimestamp: stringField(root, "expiresDateTime", "expiresOn"),
	}

	if artifact := metaObject(root, "artifact", "form", "scanFormArtifact"); artifact != nil {
		summary.FormURL = stringField(artifact, "url", "href")
		summary.FormContentType = stringField(artifact, "contentType", "mimeType")
		if encoded := stringField(artifact, "content", "data"); encoded != "" {
			if decoded, err := base64.StdEncoding.DecodeString(encoded); err == nil {
				summary.FormContent = decoded
			}
		}
	}

	if summary.FormURL == "" {
		summary.FormURL = scanFormLink(metaSlice(root, "links"))
	}

	for _, item := range metaSlice(root, "counts", "summary") {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		count := ScanFormCount{MailClass: stringField(obj, "mailClass", "service")}
		count.PackageCount, _ = metaInt(obj, "packageCount", "pieces")
		count.TotalPostage, _ = metaFloat(obj, "totalPostage")
		summary.Counts = append(summary.Counts, count)
	}

	for _, item := range metaSlice(root, "labels", "items") {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		label := ScanFormLabel{
			LabelID:        stringField(obj, "labelId", "labelIdentifier"),
			TrackingNumber: stringField(obj, "trackingNumber", "IMpb", "impb", "imbp", "barcode"),
			MailClass:      stringField(obj, "mailClass", "service"),
		}
		if n, ok := metaInt(obj, "packageCount"); ok && n > 0 {
			label.PackageCount = n
		} else {
			label.PackageCount = 1
		}
		summary.Labels = append(summary.Labels, label)
	}

	summary.Warnings = scanFormNotes(metaSlice(root, "warnings"), "warningCode", "warningDescription")
	summary.Errors = scanFormNotes(metaSlice(root, "errors"), "errorCode", "errorDescription")

	return summary
}

// scanFormLink picks the form URL out of a links array. A link counts
// when its type mentions pdf or its rel mentions the form itself.
func scanFormLink(links []any) string {
	for _, item := range links {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		href := stringField(obj, "href", "url")
		if href == "" {
			continue
		}
		linkType := strings.ToLower(stringField(obj, "type"))
		rel := strings.ToLower(stringField(obj, "rel"))
		if strings.Contains(linkType, "pdf") ||
			strings.Contains(rel, "form") ||
			strings.Contains(rel, "scan") {
			return href
		}
	}
	return ""
}

func scanFormNotes(list []any, codeKey, descKey string) []ScanFormNote {
	var notes []ScanFormNote
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		note := ScanFormNote{
			Code:        stringField(obj, codeKey, "code"),
			Description: stringField(obj, descKey, "message"),
		}
		if note.Code == "" && note.Description == "" {
			continue
		}
		notes = append(notes, note)
	}
	return notes
}
