package models

import (
	"errors"
	"testing"

	"github.com/otcheredev/ris-viewer-manager/internal/apperr"
	"gotest.tools/v3/assert"
)

func wado() WadoProperty {
	return WadoProperty{BasicURL: "http://pacs/dicom-web", OAuth2URL: "http://idp/token"}
}

func validMapping() DBQueryMapping {
	return DBQueryMapping{
		Table:       "study_view",
		PatientID:   "patient_id",
		StudyUID:    "study_uid",
		SeriesUID:   "series_uid",
		InstanceUID: "sop_uid",
	}
}

func TestNewConnectorSetAssignsIDsFromKeys(t *testing.T) {
	set, err := NewConnectorSet(map[string]ConnectorProperty{
		"web": {ID: "ignored", Type: ConnectorTypeDICOMWeb, Wado: wado()},
		"db":  {Type: ConnectorTypeDB, Wado: wado(), DB: &DBConnector{Driver: "sqlite", URI: "file::memory:", Query: validMapping()}},
	})
	assert.NilError(t, err)

	prop, ok := set.Get("web")
	assert.Assert(t, ok)
	assert.Equal(t, prop.ID, "web")
	assert.DeepEqual(t, set.IDs(), []string{"db", "web"})
	assert.Assert(t, !set.Has("ignored"))
}

func TestConnectorValidate(t *testing.T) {
	cases := []struct {
		name string
		prop ConnectorProperty
		msg  string
	}{
		{
			name: "missing wado oauth2",
			prop: ConnectorProperty{ID: "a", Type: ConnectorTypeDICOMWeb, Wado: WadoProperty{BasicURL: "http://x"}},
			msg:  "wado oauth2-url is required",
		},
		{
			name: "dicom without sub connector",
			prop: ConnectorProperty{ID: "a", Type: ConnectorTypeDICOM, Wado: wado()},
			msg:  "dicom-connector is required",
		},
		{
			name: "dicom without port",
			prop: ConnectorProperty{ID: "a", Type: ConnectorTypeDICOM, Wado: wado(), Dicom: &DicomConnector{AETitle: "PACS", Host: "h", CallingAETitle: "ME"}},
			msg:  "calling-ae-title are required",
		},
		{
			name: "db with blank instance column",
			prop: ConnectorProperty{ID: "a", Type: ConnectorTypeDB, Wado: wado(), DB: &DBConnector{Driver: "sqlite", URI: "x", Query: DBQueryMapping{Table: "t", PatientID: "p", StudyUID: "s", SeriesUID: "se"}}},
			msg:  "query mapping is missing instance-uid",
		},
		{
			name: "unknown type",
			prop: ConnectorProperty{ID: "a", Type: "FTP", Wado: wado()},
			msg:  "unsupported type",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.prop.Validate()
			assert.ErrorContains(t, err, tc.msg)
			assert.Assert(t, errors.Is(err, apperr.ErrConfiguration))
		})
	}
}

func TestDBQueryMappingRejectsInjectedIdentifier(t *testing.T) {
	m := validMapping()
	m.PatientName = "name; DROP TABLE x"
	assert.ErrorContains(t, m.Validate(), "invalid identifier")
}

func TestSearchCriteriaLevel(t *testing.T) {
	assert.Equal(t, SearchCriteria{PatientID: "p"}.Level(), QueryLevelStudy)
	assert.Equal(t, SearchCriteria{StudyUID: "1.2"}.Level(), QueryLevelStudy)
	assert.Equal(t, SearchCriteria{StudyUID: "1.2", SeriesUID: "1.2.3"}.Level(), QueryLevelSeries)
	assert.Equal(t, SearchCriteria{SeriesUID: "1.2.3", InstanceUID: "1.2.3.4"}.Level(), QueryLevelInstance)
}

func TestTargetTypeOrder(t *testing.T) {
	assert.Equal(t, TargetTypeHost.Order(), 1)
	assert.Equal(t, TargetTypeHostGroup.Order(), 2)
	assert.Equal(t, TargetTypeUser.Order(), 3)
	assert.Equal(t, TargetType("OTHER").Order(), 0)
}
