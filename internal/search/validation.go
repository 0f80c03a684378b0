package search

import (
	"strings"

	"github.com/otcheredev/ris-viewer-manager/internal/apperr"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
)

const op = "search"

// Catalog answers whether an archive id is configured
type Catalog interface {
	Has(id string) bool
}

// Normalize trims identifiers and collapses repeated archive ids, keeping
// the first occurrence of each
func Normalize(criteria models.SearchCriteria) models.SearchCriteria {
	seen := make(map[string]bool, len(criteria.Archive))
	archives := make([]string, 0, len(criteria.Archive))
	for _, id := range criteria.Archive {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		archives = append(archives, id)
	}
	criteria.Archive = archives

	criteria.RequestType = models.RequestType(strings.ToUpper(strings.TrimSpace(string(criteria.RequestType))))
	criteria.PatientID = strings.TrimSpace(criteria.PatientID)
	criteria.PatientName = strings.TrimSpace(criteria.PatientName)
	criteria.StudyUID = strings.TrimSpace(criteria.StudyUID)
	criteria.AccessionNumber = strings.TrimSpace(criteria.AccessionNumber)
	criteria.SeriesUID = strings.TrimSpace(criteria.SeriesUID)
	criteria.InstanceUID = strings.TrimSpace(criteria.InstanceUID)
	return criteria
}

// Validate checks criteria before any archive is queried. Every archive id
// is checked against catalog first, so an unknown id fails the request
// whatever the other fields hold.
func Validate(criteria models.SearchCriteria, catalog Catalog) error {
	if len(criteria.Archive) == 0 {
		return apperr.New(apperr.KindValidation, op, "at least one archive is required")
	}

	var unknown []string
	for _, id := range criteria.Archive {
		if !catalog.Has(id) {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return apperr.Newf(apperr.KindUnknownConnector, op, "unknown archive: %s", strings.Join(unknown, ", "))
	}

	if criteria.Limit < 0 || criteria.Offset < 0 {
		return apperr.New(apperr.KindValidation, op, "limit and offset must not be negative")
	}

	switch criteria.RequestType {
	case "":
	case models.RequestTypePatient:
		if strings.TrimSpace(criteria.PatientID) == "" {
			return apperr.New(apperr.KindValidation, op, "patient request requires a patient id")
		}
	case models.RequestTypeStudy:
		hasStudy := strings.TrimSpace(criteria.StudyUID) != ""
		hasAccession := strings.TrimSpace(criteria.AccessionNumber) != ""
		if hasStudy == hasAccession {
			return apperr.New(apperr.KindValidation, op, "study request requires exactly one of study uid or accession number")
		}
	default:
		return apperr.Newf(apperr.KindValidation, op, "unsupported request type %q", criteria.RequestType)
	}

	if strings.TrimSpace(criteria.InstanceUID) != "" && strings.TrimSpace(criteria.SeriesUID) == "" {
		return apperr.New(apperr.KindValidation, op, "instance uid requires a series uid")
	}
	return nil
}
