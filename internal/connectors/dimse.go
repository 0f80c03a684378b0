package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/OtchereDev/ris-common-sdk/pkg/io-dicom/dictionary/tags"
	"github.com/OtchereDev/ris-common-sdk/pkg/io-dicom/media"
	"github.com/OtchereDev/ris-common-sdk/pkg/io-dicom/network"
	"github.com/OtchereDev/ris-common-sdk/pkg/io-dicom/services"
	"github.com/otcheredev/ris-viewer-manager/internal/apperr"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"github.com/rs/zerolog/log"
)

// DIMSE timeout constants (in seconds)
const (
	TimeoutCEcho = 10
	TimeoutCFind = 120
)

// C-FIND status codes the connector distinguishes
const (
	statusSuccess              uint16 = 0x0000
	statusRefusedNotAuthorized uint16 = 0x0124
	statusUnrecognizedOp       uint16 = 0x0122
)

// finder runs DIMSE operations against one remote AE
type finder interface {
	Find(query media.DcmObj, onResult func(media.DcmObj)) (int, uint16, error)
	Echo() error
}

// sdkFinder is the finder backed by an SCU association per call
type sdkFinder struct {
	destination *network.Destination
}

func (f *sdkFinder) Find(query media.DcmObj, onResult func(media.DcmObj)) (int, uint16, error) {
	scu := services.NewSCU(f.destination)
	scu.SetOnCFindResult(onResult)
	return scu.FindSCU(query, TimeoutCFind)
}

func (f *sdkFinder) Echo() error {
	scu := services.NewSCU(f.destination)
	return scu.EchoSCU(TimeoutCEcho)
}

// DIMSEConnector implements ArchiveConnector for DICOM C-FIND
type DIMSEConnector struct {
	BaseConnector
	finder finder
}

// NewDIMSEConnector creates a new DIMSE connector
func NewDIMSEConnector(prop models.ConnectorProperty) (*DIMSEConnector, error) {
	dc := prop.Dicom
	destination := &network.Destination{
		HostName:  dc.Host,
		Port:      dc.Port,
		CalledAE:  dc.AETitle,
		CallingAE: dc.CallingAETitle,
		IsCFind:   true,
		IsCMove:   false,
		IsCStore:  false,
	}

	log.Debug().
		Str("archive_id", prop.ID).
		Str("host", dc.Host).
		Int("port", dc.Port).
		Str("called_ae", dc.AETitle).
		Str("calling_ae", dc.CallingAETitle).
		Msg("Created DIMSE connector")

	return newDIMSEConnector(prop, &sdkFinder{destination: destination}), nil
}

func newDIMSEConnector(prop models.ConnectorProperty, f finder) *DIMSEConnector {
	return &DIMSEConnector{
		BaseConnector: BaseConnector{prop: prop},
		finder:        f,
	}
}

func (d *DIMSEConnector) Capabilities() []string {
	return []string{"C-FIND", "C-ECHO"}
}

// Search runs one C-FIND at the criteria's level. The archive has no
// paging, so offset and limit are applied to the full response.
func (d *DIMSEConnector) Search(ctx context.Context, criteria models.SearchCriteria) ([]models.ArchiveQueryResult, *models.Continuation, error) {
	query := buildFindQuery(criteria)

	type outcome struct {
		results []models.ArchiveQueryResult
		status  uint16
		err     error
	}
	done := make(chan outcome, 1)

	// the SDK call blocks with its own timeout; race it against ctx
	go func() {
		var results []models.ArchiveQueryResult
		_, status, err := d.finder.Find(query, func(result media.DcmObj) {
			results = append(results, dicomToResult(result))
		})
		done <- outcome{results: results, status: status, err: err}
	}()

	var out outcome
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case out = <-done:
	}

	if out.err != nil {
		return nil, nil, apperr.Wrap(apperr.KindArchiveUnavailable, opName(d, "c-find"), out.err)
	}
	if err := classifyFindStatus(opName(d, "c-find"), out.status); err != nil {
		return nil, nil, err
	}

	results := out.results
	for i := range results {
		if results[i].StudyInstanceUID == "" {
			results[i].StudyInstanceUID = criteria.StudyUID
		}
		if results[i].SOPInstanceUID != "" && results[i].SeriesInstanceUID == "" {
			results[i].SeriesInstanceUID = criteria.SeriesUID
		}
	}
	d.stamp(results)

	paged, cont := page(results, criteria)
	if paged == nil {
		paged = []models.ArchiveQueryResult{}
	}
	return paged, cont, nil
}

// Ping tests the archive using C-ECHO
func (d *DIMSEConnector) Ping(ctx context.Context) (*models.ConnectionStatus, error) {
	start := time.Now()
	status := &models.ConnectionStatus{
		ConnectorID: d.ID(),
		LastChecked: start,
	}

	done := make(chan error, 1)
	go func() { done <- d.finder.Echo() }()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-done:
		if err != nil {
			err = apperr.Wrap(apperr.KindArchiveUnavailable, opName(d, "c-echo"), err)
		}
	}
	status.ResponseTime = time.Since(start).Milliseconds()

	if err != nil {
		status.ErrorMessage = fmt.Sprintf("C-ECHO failed: %v", err)
		return status, err
	}

	status.IsConnected = true
	status.Capabilities = d.Capabilities()
	return status, nil
}

// Close closes the connector. Associations are opened per operation.
func (d *DIMSEConnector) Close() error {
	return nil
}

// buildFindQuery builds the C-FIND identifier for the criteria's level.
// Empty values are return keys.
func buildFindQuery(criteria models.SearchCriteria) media.DcmObj {
	query := media.NewEmptyDCMObj()

	switch criteria.Level() {
	case models.QueryLevelInstance:
		query.WriteString(tags.QueryRetrieveLevel, "IMAGE")
		query.WriteString(tags.StudyInstanceUID, criteria.StudyUID)
		query.WriteString(tags.SeriesInstanceUID, criteria.SeriesUID)
		query.WriteString(tags.SOPInstanceUID, criteria.InstanceUID)
		query.WriteString(tags.SOPClassUID, "")
		query.WriteString(tags.InstanceNumber, "")
	case models.QueryLevelSeries:
		query.WriteString(tags.QueryRetrieveLevel, "SERIES")
		query.WriteString(tags.StudyInstanceUID, criteria.StudyUID)
		query.WriteString(tags.SeriesInstanceUID, criteria.SeriesUID)
		query.WriteString(tags.SeriesNumber, "")
		query.WriteString(tags.Modality, "")
		query.WriteString(tags.SeriesDescription, "")
	default:
		query.WriteString(tags.QueryRetrieveLevel, "STUDY")
		query.WriteString(tags.PatientID, criteria.PatientID)
		query.WriteString(tags.PatientName, criteria.PatientName)
		query.WriteString(tags.StudyInstanceUID, criteria.StudyUID)
		query.WriteString(tags.AccessionNumber, criteria.AccessionNumber)
		query.WriteString(tags.StudyID, "")
		query.WriteString(tags.StudyDate, "")
		query.WriteString(tags.StudyTime, "")
		query.WriteString(tags.StudyDescription, "")
		query.WriteString(tags.ReferringPhysicianName, "")
		query.WriteString(tags.ModalitiesInStudy, "")
		query.WriteString(tags.PatientBirthDate, "")
		query.WriteString(tags.PatientSex, "")
	}

	return query
}

func dicomToResult(obj media.DcmObj) models.ArchiveQueryResult {
	return models.ArchiveQueryResult{
		PatientName:        obj.GetString(tags.PatientName),
		PatientID:          obj.GetString(tags.PatientID),
		PatientBirthDate:   obj.GetString(tags.PatientBirthDate),
		PatientSex:         obj.GetString(tags.PatientSex),
		StudyInstanceUID:   obj.GetString(tags.StudyInstanceUID),
		StudyID:            obj.GetString(tags.StudyID),
		StudyDate:          obj.GetString(tags.StudyDate),
		AccessionNumber:    obj.GetString(tags.AccessionNumber),
		StudyDescription:   obj.GetString(tags.StudyDescription),
		ReferringPhysician: obj.GetString(tags.ReferringPhysicianName),
		SeriesInstanceUID:  obj.GetString(tags.SeriesInstanceUID),
		Modality:           obj.GetString(tags.Modality),
		SeriesDescription:  obj.GetString(tags.SeriesDescription),
		SeriesNumber:       obj.GetString(tags.SeriesNumber),
		SOPInstanceUID:     obj.GetString(tags.SOPInstanceUID),
		InstanceNumber:     obj.GetString(tags.InstanceNumber),
	}
}

// classifyFindStatus maps a final C-FIND status to an error, nil on success
func classifyFindStatus(op string, status uint16) error {
	msg := fmt.Sprintf("C-FIND completed with status: 0x%04X", status)
	switch {
	case status == statusSuccess:
		return nil
	case status == statusRefusedNotAuthorized:
		return apperr.New(apperr.KindArchiveNoAccess, op, msg)
	case status == statusUnrecognizedOp, status&0xFF00 == 0xA900:
		return apperr.New(apperr.KindArchiveClientError, op, msg)
	default:
		// 0xA7xx out of resources, 0xCxxx unable to process
		return apperr.New(apperr.KindArchiveServerError, op, msg)
	}
}
