package models

import "strings"

// RequestType is the IHE lookup type of a search request
type RequestType string

const (
	RequestTypePatient RequestType = "PATIENT"
	RequestTypeStudy   RequestType = "STUDY"
)

// QueryLevel is the depth of the normalized results
type QueryLevel string

const (
	QueryLevelPatient  QueryLevel = "PATIENT"
	QueryLevelStudy    QueryLevel = "STUDY"
	QueryLevelSeries   QueryLevel = "SERIES"
	QueryLevelInstance QueryLevel = "INSTANCE"
)

// SearchCriteria is a search request fanned out over the named archives
type SearchCriteria struct {
	Archive         []string    `json:"archive"`
	RequestType     RequestType `json:"request_type,omitempty"`
	PatientID       string      `json:"patient_id,omitempty"`
	PatientName     string      `json:"patient_name,omitempty"`
	StudyUID        string      `json:"study_uid,omitempty"`
	AccessionNumber string      `json:"accession_number,omitempty"`
	SeriesUID       string      `json:"series_uid,omitempty"`
	InstanceUID     string      `json:"instance_uid,omitempty"`
	Limit           int         `json:"limit,omitempty"`
	Offset          int         `json:"offset,omitempty"`
}

// Level infers the query level from the identifiers present; the most
// specific one wins. Patient-only and empty criteria resolve to STUDY, the
// deepest level such a query can still return rows for.
func (c SearchCriteria) Level() QueryLevel {
	switch {
	case strings.TrimSpace(c.InstanceUID) != "":
		return QueryLevelInstance
	case strings.TrimSpace(c.SeriesUID) != "":
		return QueryLevelSeries
	default:
		return QueryLevelStudy
	}
}

// ArchiveQueryResult is the normalized shape returned by every connector.
// Absent values are empty strings.
type ArchiveQueryResult struct {
	PatientName      string `json:"patient_name"`
	PatientID        string `json:"patient_id"`
	PatientBirthDate string `json:"patient_birth_date"`
	PatientSex       string `json:"patient_sex"`

	StudyInstanceUID   string `json:"study_instance_uid"`
	StudyID            string `json:"study_id"`
	StudyDate          string `json:"study_date"`
	AccessionNumber    string `json:"accession_number"`
	StudyDescription   string `json:"study_description"`
	ReferringPhysician string `json:"referring_physician"`

	SeriesInstanceUID string `json:"series_instance_uid"`
	Modality          string `json:"modality"`
	SeriesDescription string `json:"series_description"`
	SeriesNumber      string `json:"series_number"`

	SOPInstanceUID string `json:"sop_instance_uid"`
	InstanceNumber string `json:"instance_number"`

	Level       QueryLevel `json:"level"`
	RetrieveURL string     `json:"retrieve_url,omitempty"`
}

// Key returns the UID of the deepest level the result carries
func (r ArchiveQueryResult) Key() string {
	switch {
	case r.SOPInstanceUID != "":
		return r.StudyInstanceUID + "/" + r.SeriesInstanceUID + "/" + r.SOPInstanceUID
	case r.SeriesInstanceUID != "":
		return r.StudyInstanceUID + "/" + r.SeriesInstanceUID
	default:
		return r.StudyInstanceUID
	}
}

// DeepestLevel classifies the result at the most granular level its data supports
func (r ArchiveQueryResult) DeepestLevel() QueryLevel {
	switch {
	case r.SOPInstanceUID != "":
		return QueryLevelInstance
	case r.SeriesInstanceUID != "":
		return QueryLevelSeries
	case r.StudyInstanceUID != "":
		return QueryLevelStudy
	default:
		return QueryLevelPatient
	}
}

// Continuation points at the next page of a truncated result set
type Continuation struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}
