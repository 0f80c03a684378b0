package connectors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/OtchereDev/ris-common-sdk/pkg/io-dicom/dictionary/tags"
	"github.com/OtchereDev/ris-common-sdk/pkg/io-dicom/media"
	"github.com/otcheredev/ris-viewer-manager/internal/apperr"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"gotest.tools/v3/assert"
)

type fakeFinder struct {
	results []media.DcmObj
	status  uint16
	err     error
	delay   time.Duration
	query   media.DcmObj
}

func (f *fakeFinder) Find(query media.DcmObj, onResult func(media.DcmObj)) (int, uint16, error) {
	f.query = query
	time.Sleep(f.delay)
	if f.err != nil {
		return 0, 0, f.err
	}
	for _, r := range f.results {
		onResult(r)
	}
	return len(f.results), f.status, nil
}

func (f *fakeFinder) Echo() error {
	time.Sleep(f.delay)
	return f.err
}

func studyObj(uid, patientID string) media.DcmObj {
	obj := media.NewEmptyDCMObj()
	obj.WriteString(tags.StudyInstanceUID, uid)
	obj.WriteString(tags.PatientID, patientID)
	obj.WriteString(tags.PatientName, "DOE^JANE")
	return obj
}

func dicomProperty() models.ConnectorProperty {
	return models.ConnectorProperty{
		ID:   "pacs",
		Type: models.ConnectorTypeDICOM,
		Wado: models.WadoProperty{BasicURL: "http://pacs.local/wado"},
		Dicom: &models.DicomConnector{
			AETitle:        "PACS",
			Host:           "pacs.local",
			Port:           104,
			CallingAETitle: "VIEWER_MGR",
		},
	}
}

func TestDIMSESearchStudies(t *testing.T) {
	first := studyObj("1.1", "P1")
	first.WriteString(tags.StudyID, "S-100")
	f := &fakeFinder{results: []media.DcmObj{first, studyObj("1.2", "P1")}}
	c := newDIMSEConnector(dicomProperty(), f)

	results, cont, err := c.Search(context.Background(), models.SearchCriteria{PatientID: "P1"})
	assert.NilError(t, err)
	assert.Assert(t, cont == nil)
	assert.Equal(t, len(results), 2)
	assert.Equal(t, results[0].StudyInstanceUID, "1.1")
	assert.Equal(t, results[0].PatientName, "DOE^JANE")
	assert.Equal(t, results[0].StudyID, "S-100")
	assert.Equal(t, results[1].StudyID, "")
	assert.Equal(t, results[0].RetrieveURL, "http://pacs.local/wado/studies/1.1")

	assert.Equal(t, f.query.GetString(tags.QueryRetrieveLevel), "STUDY")
	assert.Equal(t, f.query.GetString(tags.PatientID), "P1")
	assert.Assert(t, f.query.GetTag(tags.StudyID) != nil)
}

func TestDIMSESearchSeriesLevel(t *testing.T) {
	f := &fakeFinder{}
	c := newDIMSEConnector(dicomProperty(), f)

	results, _, err := c.Search(context.Background(), models.SearchCriteria{StudyUID: "1.1", SeriesUID: "1.1.1"})
	assert.NilError(t, err)
	assert.Equal(t, len(results), 0)
	assert.Equal(t, f.query.GetString(tags.QueryRetrieveLevel), "SERIES")
	assert.Equal(t, f.query.GetString(tags.SeriesInstanceUID), "1.1.1")
}

func TestDIMSESearchPagesClientSide(t *testing.T) {
	f := &fakeFinder{results: []media.DcmObj{studyObj("1.1", "P1"), studyObj("1.2", "P1"), studyObj("1.3", "P1")}}
	c := newDIMSEConnector(dicomProperty(), f)

	results, cont, err := c.Search(context.Background(), models.SearchCriteria{PatientID: "P1", Limit: 1, Offset: 1})
	assert.NilError(t, err)
	assert.Equal(t, len(results), 1)
	assert.Equal(t, results[0].StudyInstanceUID, "1.2")
	assert.DeepEqual(t, cont, &models.Continuation{Offset: 2, Limit: 1})
}

func TestDIMSEStatusClassification(t *testing.T) {
	cases := []struct {
		status uint16
		want   error
	}{
		{0x0124, apperr.ErrArchiveNoAccess},
		{0xA900, apperr.ErrArchiveClientError},
		{0x0122, apperr.ErrArchiveClientError},
		{0xA700, apperr.ErrArchiveServerError},
		{0xC001, apperr.ErrArchiveServerError},
	}
	for _, tc := range cases {
		c := newDIMSEConnector(dicomProperty(), &fakeFinder{status: tc.status})
		_, _, err := c.Search(context.Background(), models.SearchCriteria{PatientID: "P1"})
		assert.Assert(t, errors.Is(err, tc.want), "status 0x%04X: %v", tc.status, err)
	}
}

func TestDIMSETransportFailureIsUnavailable(t *testing.T) {
	c := newDIMSEConnector(dicomProperty(), &fakeFinder{err: errors.New("dial tcp: connection refused")})

	_, _, err := c.Search(context.Background(), models.SearchCriteria{PatientID: "P1"})
	assert.Assert(t, errors.Is(err, apperr.ErrArchiveUnavailable))
}

func TestDIMSESearchHonorsContext(t *testing.T) {
	c := newDIMSEConnector(dicomProperty(), &fakeFinder{delay: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _, err := c.Search(ctx, models.SearchCriteria{PatientID: "P1"})
	assert.Assert(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDIMSEPing(t *testing.T) {
	c := newDIMSEConnector(dicomProperty(), &fakeFinder{})
	status, err := c.Ping(context.Background())
	assert.NilError(t, err)
	assert.Assert(t, status.IsConnected)

	c = newDIMSEConnector(dicomProperty(), &fakeFinder{err: errors.New("association rejected")})
	status, err = c.Ping(context.Background())
	assert.Assert(t, errors.Is(err, apperr.ErrArchiveUnavailable))
	assert.Assert(t, !status.IsConnected)
	assert.Assert(t, status.ErrorMessage != "")
}
