package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/otcheredev/ris-viewer-manager/internal/apperr"
	"github.com/otcheredev/ris-viewer-manager/internal/connectors"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"gotest.tools/v3/assert"
)

type catalog map[string]bool

func (c catalog) Has(id string) bool { return c[id] }

func TestValidateUnknownArchiveAlwaysFails(t *testing.T) {
	known := catalog{"a": true}

	cases := []models.SearchCriteria{
		{Archive: []string{"b"}, RequestType: models.RequestTypePatient, PatientID: "P1"},
		{Archive: []string{"a", "b"}, RequestType: models.RequestTypeStudy, StudyUID: "1.1"},
		{Archive: []string{"b"}, RequestType: models.RequestTypeStudy},
		{Archive: []string{"b"}, Limit: -1},
	}
	for _, c := range cases {
		err := Validate(c, known)
		assert.Assert(t, errors.Is(err, apperr.ErrUnknownConnector), "criteria %+v: %v", c, err)
	}
}

func TestValidateStudyRequestNeedsExactlyOneIdentifier(t *testing.T) {
	known := catalog{"a": true}
	base := models.SearchCriteria{Archive: []string{"a"}, RequestType: models.RequestTypeStudy}

	neither := base
	assert.Assert(t, errors.Is(Validate(neither, known), apperr.ErrValidation))

	both := base
	both.StudyUID, both.AccessionNumber = "1.1", "A1"
	assert.Assert(t, errors.Is(Validate(both, known), apperr.ErrValidation))

	study := base
	study.StudyUID = "1.1"
	assert.NilError(t, Validate(study, known))

	accession := base
	accession.AccessionNumber = "A1"
	assert.NilError(t, Validate(accession, known))
}

func TestValidatePatientRequest(t *testing.T) {
	known := catalog{"a": true}

	err := Validate(models.SearchCriteria{Archive: []string{"a"}, RequestType: models.RequestTypePatient, PatientID: "  "}, known)
	assert.Assert(t, errors.Is(err, apperr.ErrValidation))

	assert.NilError(t, Validate(models.SearchCriteria{Archive: []string{"a"}, RequestType: models.RequestTypePatient, PatientID: "P1"}, known))
}

func TestValidateShape(t *testing.T) {
	known := catalog{"a": true}

	assert.ErrorContains(t, Validate(models.SearchCriteria{}, known), "at least one archive")
	assert.ErrorContains(t, Validate(models.SearchCriteria{Archive: []string{"a"}, Offset: -1}, known), "must not be negative")
	assert.ErrorContains(t, Validate(models.SearchCriteria{Archive: []string{"a"}, RequestType: "SERIES"}, known), "unsupported request type")
	assert.ErrorContains(t, Validate(models.SearchCriteria{Archive: []string{"a"}, InstanceUID: "1.1.1.1"}, known), "requires a series uid")
}

func TestNormalize(t *testing.T) {
	got := Normalize(models.SearchCriteria{
		Archive:     []string{"b", " a ", "b", ""},
		RequestType: "study",
		StudyUID:    " 1.1 ",
	})
	assert.DeepEqual(t, got.Archive, []string{"b", "a"})
	assert.Equal(t, got.RequestType, models.RequestTypeStudy)
	assert.Equal(t, got.StudyUID, "1.1")
}

func TestDedupe(t *testing.T) {
	in := []models.ArchiveQueryResult{
		{StudyInstanceUID: "1.1"},
		{StudyInstanceUID: "1.2"},
		{StudyInstanceUID: "1.1", StudyDescription: "again"},
		{PatientID: "P1"},
		{PatientID: "P2"},
	}
	out := Dedupe(in)
	assert.Equal(t, len(out), 4)
	assert.Equal(t, out[0].StudyDescription, "")
	assert.Equal(t, out[1].StudyInstanceUID, "1.2")
}

func qidoServer(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
		fmt.Fprint(w, `[
			{"0020000D": {"vr": "UI", "Value": ["1.1"]}, "00100020": {"vr": "LO", "Value": ["P1"]}},
			{"0020000D": {"vr": "UI", "Value": ["1.1"]}, "00100020": {"vr": "LO", "Value": ["P1"]}},
			{"0020000D": {"vr": "UI", "Value": ["1.2"]}, "00100020": {"vr": "LO", "Value": ["P1"]}}
		]`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newRegistry(t *testing.T, urls map[string]string) *connectors.Registry {
	t.Helper()
	entries := make(map[string]models.ConnectorProperty, len(urls))
	for id, u := range urls {
		entries[id] = models.ConnectorProperty{
			Type: models.ConnectorTypeDICOMWeb,
			Wado: models.WadoProperty{BasicURL: u + "/dicom-web", OAuth2URL: u + "/token"},
		}
	}
	set, err := models.NewConnectorSet(entries)
	assert.NilError(t, err)

	reg := connectors.NewRegistry(nil, 0)
	assert.NilError(t, reg.Apply(set))
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestResolvePartialFailureKeepsSuccessfulArchives(t *testing.T) {
	reachable := qidoServer(t, 0)

	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	reg := newRegistry(t, map[string]string{"a": reachable.URL, "b": downURL})
	r := NewResolver(reg, Options{Timeout: 5 * time.Second, Concurrency: 2})

	out, err := r.Resolve(context.Background(), models.SearchCriteria{
		Archive:     []string{"a", "b"},
		RequestType: models.RequestTypePatient,
		PatientID:   "P1",
	})
	assert.NilError(t, err)
	assert.Equal(t, len(out), 2)

	a := out["a"]
	assert.NilError(t, a.Err)
	assert.Equal(t, len(a.Results), 2)
	assert.Equal(t, a.Results[0].StudyInstanceUID, "1.1")
	assert.Equal(t, a.Results[1].StudyInstanceUID, "1.2")

	b := out["b"]
	assert.Assert(t, errors.Is(b.Err, apperr.ErrArchiveUnavailable))
	assert.DeepEqual(t, out.Failed(), []string{"b"})
	assert.Equal(t, out.Total(), 2)

	raw, err := json.Marshal(b)
	assert.NilError(t, err)
	var view map[string]any
	assert.NilError(t, json.Unmarshal(raw, &view))
	assert.Equal(t, view["status"], "error")
	assert.Equal(t, view["error"].(map[string]any)["kind"], string(apperr.KindArchiveUnavailable))
}

func TestResolveRejectsBeforeQuerying(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	reg := newRegistry(t, map[string]string{"a": srv.URL})
	r := NewResolver(reg, Options{})

	_, err := r.Resolve(context.Background(), models.SearchCriteria{Archive: []string{"a", "missing"}, PatientID: "P1"})
	assert.Assert(t, errors.Is(err, apperr.ErrUnknownConnector))
	assert.Equal(t, hits, 0)
}

func TestResolveTimeoutDiscardsEverything(t *testing.T) {
	fast := qidoServer(t, 0)
	slow := qidoServer(t, 2*time.Second)

	reg := newRegistry(t, map[string]string{"fast": fast.URL, "slow": slow.URL})
	r := NewResolver(reg, Options{Timeout: 50 * time.Millisecond})

	out, err := r.Resolve(context.Background(), models.SearchCriteria{Archive: []string{"fast", "slow"}, PatientID: "P1"})
	assert.Assert(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Assert(t, out == nil)
}

func TestResolveCollapsesRepeatedArchives(t *testing.T) {
	srv := qidoServer(t, 0)
	reg := newRegistry(t, map[string]string{"a": srv.URL})
	r := NewResolver(reg, Options{})

	out, err := r.Resolve(context.Background(), models.SearchCriteria{Archive: []string{"a", "a"}, PatientID: "P1"})
	assert.NilError(t, err)
	assert.Equal(t, len(out), 1)
}
