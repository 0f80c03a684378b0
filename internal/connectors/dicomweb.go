package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/otcheredev/ris-viewer-manager/internal/apperr"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// QIDO-RS include-field sets, one per query level
const (
	IncludeFieldsInstance = "StudyInstanceUID,SeriesInstanceUID,SOPInstanceUID,InstanceNumber"
	IncludeFieldsSeries   = "StudyInstanceUID,SeriesInstanceUID,SeriesDescription,SeriesNumber,Modality"
	IncludeFieldsStudy    = "StudyInstanceUID,StudyDescription,StudyDate,StudyTime,AccessionNumber,StudyID,ReferringPhysicianName,PatientID,PatientName,IssuerOfPatientID,PatientBirthDate,PatientBirthTime,PatientSex"
)

// DICOM JSON attribute tags read from QIDO-RS responses
const (
	tagStudyInstanceUID       = "0020000D"
	tagSeriesInstanceUID      = "0020000E"
	tagSOPInstanceUID         = "00080018"
	tagInstanceNumber         = "00200013"
	tagSeriesDescription      = "0008103E"
	tagSeriesNumber           = "00200011"
	tagModality               = "00080060"
	tagStudyDescription       = "00081030"
	tagStudyDate              = "00080020"
	tagAccessionNumber        = "00080050"
	tagStudyID                = "00200010"
	tagReferringPhysicianName = "00080090"
	tagPatientID              = "00100020"
	tagPatientName            = "00100010"
	tagPatientBirthDate       = "00100030"
	tagPatientSex             = "00100040"
)

const dicomWebTimeout = 30 * time.Second

// DICOMWebConnector implements ArchiveConnector for QIDO-RS
type DICOMWebConnector struct {
	BaseConnector
	client  *http.Client
	baseURL string
	oauth   bool
}

// NewDICOMWebConnector creates a new DICOMweb connector. OAuth2 client
// credentials take precedence over basic credentials.
func NewDICOMWebConnector(prop models.ConnectorProperty) (*DICOMWebConnector, error) {
	return newDICOMWebConnector(prop, &http.Client{Timeout: dicomWebTimeout})
}

func newDICOMWebConnector(prop models.ConnectorProperty, base *http.Client) (*DICOMWebConnector, error) {
	baseURL := strings.TrimRight(prop.Wado.BasicURL, "/")
	if _, err := url.Parse(baseURL); err != nil {
		return nil, apperr.Wrap(apperr.KindConfiguration, "connector "+prop.ID, err)
	}

	c := &DICOMWebConnector{
		BaseConnector: BaseConnector{prop: prop},
		client:        base,
		baseURL:       baseURL,
	}

	if prop.Wado.UsesOAuth2() {
		cc := clientcredentials.Config{
			ClientID:     prop.Wado.ClientID,
			ClientSecret: prop.Wado.ClientSecret,
			TokenURL:     prop.Wado.OAuth2URL,
			Scopes:       prop.Wado.Scopes,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		c.client = cc.Client(ctx)
		c.client.Timeout = base.Timeout
		c.oauth = true
	}

	return c, nil
}

func (d *DICOMWebConnector) Capabilities() []string {
	return []string{"QIDO-RS", "WADO-RS"}
}

// Search queries the archive using QIDO-RS
func (d *DICOMWebConnector) Search(ctx context.Context, criteria models.SearchCriteria) ([]models.ArchiveQueryResult, *models.Continuation, error) {
	queryURL := d.queryURL(criteria)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindArchiveClientError, opName(d, "qido"), err)
	}
	d.addAuth(req)
	req.Header.Set("Accept", "application/dicom+json")

	resp, err := d.client.Do(req)
	if err != nil {
		if ctxErr := contextError(ctx, err); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, classifyTransport(opName(d, "qido"), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return []models.ArchiveQueryResult{}, nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, nil, classifyStatus(opName(d, "qido"), resp.StatusCode, string(body))
	}

	var datasets []dicomJSONDataset
	if err := json.NewDecoder(resp.Body).Decode(&datasets); err != nil {
		if ctxErr := contextError(ctx, err); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, apperr.Wrap(apperr.KindArchiveServerError, opName(d, "qido"), fmt.Errorf("failed to decode response: %w", err))
	}

	results := make([]models.ArchiveQueryResult, 0, len(datasets))
	for _, ds := range datasets {
		r := ds.toResult()
		// series and instance level responses omit the parent UIDs the
		// query already named
		if r.StudyInstanceUID == "" {
			r.StudyInstanceUID = criteria.StudyUID
		}
		if r.SeriesInstanceUID == "" && r.SOPInstanceUID != "" {
			r.SeriesInstanceUID = criteria.SeriesUID
		}
		results = append(results, r)
	}
	d.stamp(results)

	var cont *models.Continuation
	if truncated(resp.Header) || (criteria.Limit > 0 && len(results) >= criteria.Limit) {
		limit := criteria.Limit
		if limit == 0 {
			limit = len(results)
		}
		cont = &models.Continuation{Offset: criteria.Offset + len(results), Limit: limit}
	}

	return results, cont, nil
}

// queryURL builds the QIDO-RS URL for the criteria's level, using the
// hierarchical resource when the parent UIDs are known
func (d *DICOMWebConnector) queryURL(criteria models.SearchCriteria) string {
	params := url.Values{}
	var path string

	switch criteria.Level() {
	case models.QueryLevelInstance:
		if criteria.StudyUID != "" && criteria.SeriesUID != "" {
			path = fmt.Sprintf("/studies/%s/series/%s/instances", url.PathEscape(criteria.StudyUID), url.PathEscape(criteria.SeriesUID))
		} else {
			path = "/instances"
			addParam(params, "StudyInstanceUID", criteria.StudyUID)
			addParam(params, "SeriesInstanceUID", criteria.SeriesUID)
		}
		addParam(params, "SOPInstanceUID", criteria.InstanceUID)
		params.Set("includefield", IncludeFieldsInstance)
	case models.QueryLevelSeries:
		if criteria.StudyUID != "" {
			path = fmt.Sprintf("/studies/%s/series", url.PathEscape(criteria.StudyUID))
		} else {
			path = "/series"
		}
		addParam(params, "SeriesInstanceUID", criteria.SeriesUID)
		params.Set("includefield", IncludeFieldsSeries)
	default:
		path = "/studies"
		addParam(params, "StudyInstanceUID", criteria.StudyUID)
		addParam(params, "AccessionNumber", criteria.AccessionNumber)
		params.Set("includefield", IncludeFieldsStudy)
	}

	addParam(params, "PatientID", criteria.PatientID)
	addParam(params, "PatientName", criteria.PatientName)

	if criteria.Limit > 0 {
		params.Set("limit", strconv.Itoa(criteria.Limit))
	}
	if criteria.Offset > 0 {
		params.Set("offset", strconv.Itoa(criteria.Offset))
	}

	return d.baseURL + path + "?" + params.Encode()
}

// Ping tests the archive with a one-row study query
func (d *DICOMWebConnector) Ping(ctx context.Context) (*models.ConnectionStatus, error) {
	start := time.Now()
	status := &models.ConnectionStatus{
		ConnectorID: d.ID(),
		LastChecked: start,
	}

	_, _, err := d.Search(ctx, models.SearchCriteria{Limit: 1})
	status.ResponseTime = time.Since(start).Milliseconds()

	if err != nil {
		status.ErrorMessage = err.Error()
		return status, err
	}

	status.IsConnected = true
	status.Capabilities = d.Capabilities()
	return status, nil
}

// Close closes the connector
func (d *DICOMWebConnector) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

// addAuth adds basic authentication when OAuth2 is not configured; the
// OAuth2 transport sets its own bearer token
func (d *DICOMWebConnector) addAuth(req *http.Request) {
	if d.oauth {
		return
	}
	if d.prop.Wado.UsesBasic() {
		req.SetBasicAuth(d.prop.Wado.Username, d.prop.Wado.Password)
	}
}

func addParam(params url.Values, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		params.Set(key, value)
	}
}

// truncated reports a QIDO-RS "more results available" warning
func truncated(h http.Header) bool {
	for _, w := range h.Values("Warning") {
		if strings.HasPrefix(strings.TrimSpace(w), "299") {
			return true
		}
	}
	return false
}

func classifyStatus(op string, code int, body string) error {
	msg := fmt.Sprintf("archive returned status %d", code)
	if body = strings.TrimSpace(body); body != "" {
		msg += ": " + body
	}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperr.New(apperr.KindArchiveNoAccess, op, msg)
	case code >= 400 && code < 500:
		return apperr.New(apperr.KindArchiveClientError, op, msg)
	default:
		return apperr.New(apperr.KindArchiveServerError, op, msg)
	}
}

func classifyTransport(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		code := retrieveErr.Response.StatusCode
		if code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusBadRequest {
			return apperr.Wrap(apperr.KindArchiveNoAccess, op, err)
		}
	}
	return apperr.Wrap(apperr.KindArchiveUnavailable, op, err)
}

// dicomJSONAttribute is one attribute of the DICOM JSON model
type dicomJSONAttribute struct {
	VR    string            `json:"vr"`
	Value []json.RawMessage `json:"Value"`
}

type dicomJSONDataset map[string]dicomJSONAttribute

// str returns the first value of tag as a string, "" when absent
func (ds dicomJSONDataset) str(tag string) string {
	attr, ok := ds[tag]
	if !ok || len(attr.Value) == 0 {
		return ""
	}
	raw := attr.Value[0]

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var pn struct {
		Alphabetic string `json:"Alphabetic"`
	}
	if attr.VR == "PN" {
		if err := json.Unmarshal(raw, &pn); err == nil {
			return pn.Alphabetic
		}
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func (ds dicomJSONDataset) toResult() models.ArchiveQueryResult {
	return models.ArchiveQueryResult{
		PatientName:        ds.str(tagPatientName),
		PatientID:          ds.str(tagPatientID),
		PatientBirthDate:   ds.str(tagPatientBirthDate),
		PatientSex:         ds.str(tagPatientSex),
		StudyInstanceUID:   ds.str(tagStudyInstanceUID),
		StudyID:            ds.str(tagStudyID),
		StudyDate:          ds.str(tagStudyDate),
		AccessionNumber:    ds.str(tagAccessionNumber),
		StudyDescription:   ds.str(tagStudyDescription),
		ReferringPhysician: ds.str(tagReferringPhysicianName),
		SeriesInstanceUID:  ds.str(tagSeriesInstanceUID),
		Modality:           ds.str(tagModality),
		SeriesDescription:  ds.str(tagSeriesDescription),
		SeriesNumber:       ds.str(tagSeriesNumber),
		SOPInstanceUID:     ds.str(tagSOPInstanceUID),
		InstanceNumber:     ds.str(tagInstanceNumber),
	}
}
