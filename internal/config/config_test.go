package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/otcheredev/ris-viewer-manager/internal/apperr"
	"github.com/otcheredev/ris-viewer-manager/internal/models"
	"gotest.tools/v3/assert"
)

const sampleConnectors = `
connectors:
  index:
    type: DB
    wado:
      basic-url: http://pacs.local/dicom-web
      oauth2-url: http://auth.local/token
    db-connector:
      driver: postgres
      uri: postgres://db.local:5432/pacs
      user: reader
      password: ${TEST_INDEX_PASSWORD}
      query:
        table: study_index
        patient-id: pat_id
        study-uid: study_uid
        series-uid: series_uid
        instance-uid: sop_uid
  pacs:
    type: DICOM
    wado:
      basic-url: http://pacs.local/wado
      oauth2-url: http://auth.local/token
    dicom-connector:
      ae-title: PACS
      host: pacs.local
      port: 104
      calling-ae-title: VIEWER_MGR
  web:
    type: DICOM_WEB
    wado:
      basic-url: https://dicomweb.local/rs
      oauth2-url: https://auth.local/token
      client-id: viewer-manager
      client-secret: s3cret
      scopes: [dicomweb.read]
`

func TestParseConnectors(t *testing.T) {
	t.Setenv("TEST_INDEX_PASSWORD", "hunter2")

	set, err := ParseConnectors([]byte(sampleConnectors))
	assert.NilError(t, err)
	assert.DeepEqual(t, set.IDs(), []string{"index", "pacs", "web"})

	index, ok := set.Get("index")
	assert.Assert(t, ok)
	assert.Equal(t, index.ID, "index")
	assert.Equal(t, index.Type, models.ConnectorTypeDB)
	assert.Equal(t, index.DB.Password, "hunter2")
	assert.Equal(t, index.DB.Query.Table, "study_index")

	pacs, _ := set.Get("pacs")
	assert.Equal(t, pacs.Dicom.Port, 104)
	assert.Assert(t, pacs.DB == nil)

	web, _ := set.Get("web")
	assert.Assert(t, web.Wado.UsesOAuth2())
	assert.DeepEqual(t, web.Wado.Scopes, []string{"dicomweb.read"})
}

func TestParseConnectorsRejectsInvalidEntries(t *testing.T) {
	cases := map[string]string{
		"unknown key": `
connectors:
  a:
    type: DICOM_WEB
    colour: blue
    wado: {basic-url: http://a, oauth2-url: http://b}
`,
		"missing sub-connector": `
connectors:
  a:
    type: DICOM
    wado: {basic-url: http://a, oauth2-url: http://b}
`,
		"missing oauth2 url": `
connectors:
  a:
    type: DICOM_WEB
    wado: {basic-url: http://a}
`,
		"bad type": `
connectors:
  a:
    type: FTP
    wado: {basic-url: http://a, oauth2-url: http://b}
`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConnectors([]byte(doc))
			assert.Assert(t, errors.Is(err, apperr.ErrConfiguration), "got %v", err)
		})
	}
}

func TestParseConnectorsEmpty(t *testing.T) {
	set, err := ParseConnectors([]byte("connectors: {}\n"))
	assert.NilError(t, err)
	assert.Equal(t, set.Len(), 0)
}

func TestLoadConnectorsMissingFile(t *testing.T) {
	_, err := LoadConnectors(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Assert(t, errors.Is(err, apperr.ErrConfiguration))
	assert.Assert(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadConnectorsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connectors.yaml")
	assert.NilError(t, os.WriteFile(path, []byte(sampleConnectors), 0o600))

	set, err := LoadConnectors(path)
	assert.NilError(t, err)
	assert.Equal(t, set.Len(), 3)
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SEARCH_TIMEOUT", "5s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CACHE_TYPE", "redis")

	cfg, err := Load()
	assert.NilError(t, err)
	assert.NilError(t, cfg.Validate())

	assert.Equal(t, cfg.Server.Port, 9090)
	assert.Equal(t, cfg.Search.Timeout, 5*time.Second)
	assert.Equal(t, cfg.Search.Concurrency, 8)
	assert.DeepEqual(t, cfg.CORS.AllowedOrigins, []string{"https://a.example", "https://b.example"})
	assert.Equal(t, cfg.RedisAddr(), "localhost:6379")
}

func TestLoadReportsEveryBadVariable(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "eighty")
	t.Setenv("SEARCH_TIMEOUT", "soon")

	_, err := Load()
	assert.ErrorContains(t, err, "SERVER_PORT")
	assert.ErrorContains(t, err, "SEARCH_TIMEOUT")
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CACHE_TYPE", "disk")
	t.Setenv("SEARCH_CONCURRENCY", "-1")

	cfg, err := Load()
	assert.NilError(t, err)

	err = cfg.Validate()
	assert.ErrorContains(t, err, "CACHE_TYPE")
	assert.ErrorContains(t, err, "SEARCH_CONCURRENCY")
}
