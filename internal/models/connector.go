package models

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/otcheredev/ris-viewer-manager/internal/apperr"
)

// ConnectorType represents the kind of archive behind a connector
type ConnectorType string

const (
	ConnectorTypeDB       ConnectorType = "DB"
	ConnectorTypeDICOM    ConnectorType = "DICOM"
	ConnectorTypeDICOMWeb ConnectorType = "DICOM_WEB"
)

// Valid reports whether t is a known connector type
func (t ConnectorType) Valid() bool {
	switch t {
	case ConnectorTypeDB, ConnectorTypeDICOM, ConnectorTypeDICOMWeb:
		return true
	}
	return false
}

// ConnectorProperty describes one archive connector. ID comes from the key of
// the configuration map and is never read from the entry itself.
type ConnectorProperty struct {
	ID    string          `yaml:"-" json:"id"`
	Type  ConnectorType   `yaml:"type" json:"type"`
	Wado  WadoProperty    `yaml:"wado" json:"wado"`
	DB    *DBConnector    `yaml:"db-connector,omitempty" json:"db_connector,omitempty"`
	Dicom *DicomConnector `yaml:"dicom-connector,omitempty" json:"dicom_connector,omitempty"`
}

// WadoProperty holds the WADO/DICOMweb root and its authentication settings
type WadoProperty struct {
	BasicURL     string   `yaml:"basic-url" json:"basic_url"`
	OAuth2URL    string   `yaml:"oauth2-url" json:"oauth2_url"`
	Username     string   `yaml:"username,omitempty" json:"username,omitempty"`
	Password     string   `yaml:"password,omitempty" json:"-"`
	ClientID     string   `yaml:"client-id,omitempty" json:"client_id,omitempty"`
	ClientSecret string   `yaml:"client-secret,omitempty" json:"-"`
	Scopes       []string `yaml:"scopes,omitempty" json:"scopes,omitempty"`
}

// UsesOAuth2 reports whether client credentials are configured
func (w WadoProperty) UsesOAuth2() bool {
	return w.OAuth2URL != "" && w.ClientID != ""
}

// UsesBasic reports whether basic credentials are configured
func (w WadoProperty) UsesBasic() bool {
	return w.Username != ""
}

// DBConnector describes a relational archive
type DBConnector struct {
	Driver   string         `yaml:"driver" json:"driver"`
	URI      string         `yaml:"uri" json:"uri"`
	User     string         `yaml:"user,omitempty" json:"user,omitempty"`
	Password string         `yaml:"password,omitempty" json:"-"`
	Query    DBQueryMapping `yaml:"query" json:"query"`
}

// DBQueryMapping maps normalized result fields onto columns of a table or view
type DBQueryMapping struct {
	Table string `yaml:"table" json:"table"`

	PatientID        string `yaml:"patient-id" json:"patient_id"`
	PatientName      string `yaml:"patient-name,omitempty" json:"patient_name,omitempty"`
	PatientBirthDate string `yaml:"patient-birth-date,omitempty" json:"patient_birth_date,omitempty"`
	PatientSex       string `yaml:"patient-sex,omitempty" json:"patient_sex,omitempty"`

	StudyUID           string `yaml:"study-uid" json:"study_uid"`
	StudyID            string `yaml:"study-id,omitempty" json:"study_id,omitempty"`
	StudyDate          string `yaml:"study-date,omitempty" json:"study_date,omitempty"`
	AccessionNumber    string `yaml:"accession-number,omitempty" json:"accession_number,omitempty"`
	StudyDescription   string `yaml:"study-description,omitempty" json:"study_description,omitempty"`
	ReferringPhysician string `yaml:"referring-physician,omitempty" json:"referring_physician,omitempty"`

	SeriesUID         string `yaml:"series-uid" json:"series_uid"`
	Modality          string `yaml:"modality,omitempty" json:"modality,omitempty"`
	SeriesDescription string `yaml:"series-description,omitempty" json:"series_description,omitempty"`
	SeriesNumber      string `yaml:"series-number,omitempty" json:"series_number,omitempty"`

	InstanceUID    string `yaml:"instance-uid" json:"instance_uid"`
	InstanceNumber string `yaml:"instance-number,omitempty" json:"instance_number,omitempty"`
}

// DicomConnector describes a DICOM C-FIND node
type DicomConnector struct {
	AETitle        string `yaml:"ae-title" json:"ae_title"`
	Host           string `yaml:"host" json:"host"`
	Port           int    `yaml:"port" json:"port"`
	CallingAETitle string `yaml:"calling-ae-title" json:"calling_ae_title"`
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Validate checks the mapping before any query is built
func (m DBQueryMapping) Validate() error {
	required := map[string]string{
		"table":        m.Table,
		"patient-id":   m.PatientID,
		"study-uid":    m.StudyUID,
		"series-uid":   m.SeriesUID,
		"instance-uid": m.InstanceUID,
	}
	var missing []string
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("query mapping is missing %s", strings.Join(missing, ", "))
	}

	for _, column := range m.columns() {
		if column != "" && !identifierPattern.MatchString(column) {
			return fmt.Errorf("query mapping has invalid identifier %q", column)
		}
	}
	return nil
}

func (m DBQueryMapping) columns() []string {
	return []string{
		m.Table, m.PatientID, m.PatientName, m.PatientBirthDate, m.PatientSex,
		m.StudyUID, m.StudyID, m.StudyDate, m.AccessionNumber, m.StudyDescription,
		m.ReferringPhysician, m.SeriesUID, m.Modality, m.SeriesDescription,
		m.SeriesNumber, m.InstanceUID, m.InstanceNumber,
	}
}

// Validate enforces the type to sub-connector invariant
func (c ConnectorProperty) Validate() error {
	op := fmt.Sprintf("connector %s", c.ID)
	if c.ID == "" {
		return apperr.New(apperr.KindConfiguration, "connector", "id is required")
	}
	if !c.Type.Valid() {
		return apperr.Newf(apperr.KindConfiguration, op, "unsupported type %q", c.Type)
	}
	if strings.TrimSpace(c.Wado.BasicURL) == "" {
		return apperr.New(apperr.KindConfiguration, op, "wado basic-url is required")
	}
	if strings.TrimSpace(c.Wado.OAuth2URL) == "" {
		return apperr.New(apperr.KindConfiguration, op, "wado oauth2-url is required")
	}

	switch c.Type {
	case ConnectorTypeDB:
		if c.DB == nil {
			return apperr.New(apperr.KindConfiguration, op, "db-connector is required for type DB")
		}
		if c.DB.Driver == "" || c.DB.URI == "" {
			return apperr.New(apperr.KindConfiguration, op, "db-connector driver and uri are required")
		}
		if err := c.DB.Query.Validate(); err != nil {
			return apperr.Wrap(apperr.KindConfiguration, op, err)
		}
	case ConnectorTypeDICOM:
		if c.Dicom == nil {
			return apperr.New(apperr.KindConfiguration, op, "dicom-connector is required for type DICOM")
		}
		if c.Dicom.AETitle == "" || c.Dicom.Host == "" || c.Dicom.Port == 0 || c.Dicom.CallingAETitle == "" {
			return apperr.New(apperr.KindConfiguration, op, "dicom-connector ae-title, host, port and calling-ae-title are required")
		}
	}
	return nil
}

// ConnectorSet is an immutable snapshot of configured connectors keyed by id
type ConnectorSet struct {
	connectors map[string]ConnectorProperty
	LoadedAt   time.Time
}

// NewConnectorSet assigns ids from map keys, validates every entry and
// returns a snapshot. The input map is copied.
func NewConnectorSet(entries map[string]ConnectorProperty) (*ConnectorSet, error) {
	set := &ConnectorSet{
		connectors: make(map[string]ConnectorProperty, len(entries)),
		LoadedAt:   time.Now().UTC(),
	}
	for id, prop := range entries {
		prop.ID = id
		if err := prop.Validate(); err != nil {
			return nil, err
		}
		set.connectors[id] = prop
	}
	return set, nil
}

// EmptyConnectorSet returns a set with no connectors
func EmptyConnectorSet() *ConnectorSet {
	return &ConnectorSet{connectors: map[string]ConnectorProperty{}}
}

// Get returns the connector with the given id
func (s *ConnectorSet) Get(id string) (ConnectorProperty, bool) {
	prop, ok := s.connectors[id]
	return prop, ok
}

// Has reports whether id is configured
func (s *ConnectorSet) Has(id string) bool {
	_, ok := s.connectors[id]
	return ok
}

// IDs returns the configured ids in sorted order
func (s *ConnectorSet) IDs() []string {
	ids := make([]string, 0, len(s.connectors))
	for id := range s.connectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns the connectors ordered by id
func (s *ConnectorSet) All() []ConnectorProperty {
	all := make([]ConnectorProperty, 0, len(s.connectors))
	for _, id := range s.IDs() {
		all = append(all, s.connectors[id])
	}
	return all
}

// Len returns the number of connectors
func (s *ConnectorSet) Len() int {
	return len(s.connectors)
}

// ConnectionStatus represents the result of a connector connection test
type ConnectionStatus struct {
	ConnectorID  string    `json:"connector_id"`
	IsConnected  bool      `json:"is_connected"`
	LastChecked  time.Time `json:"last_checked"`
	ResponseTime int64     `json:"response_time_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Capabilities []string  `json:"capabilities,omitempty"`
}
