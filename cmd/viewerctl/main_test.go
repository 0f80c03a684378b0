package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/otcheredev/ris-viewer-manager/internal/apperr"
	"github.com/otcheredev/ris-viewer-manager/internal/version"
	"gotest.tools/v3/assert"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, stderr bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	assert.NilError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func connectorFile(t *testing.T, baseURL string) string {
	return writeFile(t, "connectors.yaml", fmt.Sprintf(`
connectors:
  web:
    type: DICOM_WEB
    wado:
      basic-url: %s/dicom-web
      oauth2-url: %s/token
`, baseURL, baseURL))
}

func TestConnectorsValidate(t *testing.T) {
	out, err := run(t, "connectors", "validate", connectorFile(t, "http://pacs.local"))
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(out, "1 connector(s)"))
	assert.Assert(t, strings.Contains(out, "DICOM_WEB"))

	broken := writeFile(t, "broken.yaml", "connectors:\n  web:\n    type: FTP\n")
	_, err = run(t, "connectors", "validate", broken)
	assert.Assert(t, errors.Is(err, apperr.ErrConfiguration))
}

func TestVersionSplit(t *testing.T) {
	out, err := run(t, "version", "split", "4.9.1-MGR")
	assert.NilError(t, err)
	assert.Equal(t, out, "version=4.9.1 qualifier=-MGR\n")

	_, err = run(t, "version", "split", "4.9")
	assert.Assert(t, errors.Is(err, apperr.ErrValidation))
}

func TestVersionResolveFromTable(t *testing.T) {
	table := writeFile(t, "versions.yaml", `
- {release: 4.2.0, minimal: 4.0.0, i18n: 4.2.0-1}
- {release: 4.10.0, minimal: 4.5.0, i18n: 4.10.0-3}
`)

	out, err := run(t, "version", "resolve", "--table", table, "4.3.0")
	assert.NilError(t, err)

	var compat version.Compatibility
	assert.NilError(t, json.Unmarshal([]byte(out), &compat))
	assert.Equal(t, compat.Release.ReleaseVersion, "4.2.0")
	assert.Assert(t, compat.UpgradeRequired)

	_, err = run(t, "version", "resolve", "--table", table, "3.1.0")
	assert.Assert(t, errors.Is(err, apperr.ErrNoCompatibleVersion))
}

func TestVersionPublishValidatesBeforeConnecting(t *testing.T) {
	_, err := run(t, "version", "publish", "4.2.0", "--minimal", "4.3.0")
	assert.Assert(t, errors.Is(err, apperr.ErrValidation))

	_, err = run(t, "version", "publish", "4.2", "--minimal", "4.0.0")
	assert.Assert(t, errors.Is(err, apperr.ErrValidation))
}

func TestSearch(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Path
		fmt.Fprint(w, `[{"0020000D": {"vr": "UI", "Value": ["1.2.3"]}}]`)
	}))
	defer srv.Close()

	out, err := run(t, "search", "-f", connectorFile(t, srv.URL), "-a", "web", "--study-uid", "1.2.3")
	assert.NilError(t, err)
	assert.Equal(t, query, "/dicom-web/studies")

	var outcome map[string]struct {
		Status  string `json:"status"`
		Results []struct {
			StudyInstanceUID string `json:"study_instance_uid"`
		} `json:"results"`
	}
	assert.NilError(t, json.Unmarshal([]byte(out), &outcome))
	assert.Equal(t, outcome["web"].Status, "ok")
	assert.Equal(t, len(outcome["web"].Results), 1)

	_, err = run(t, "search", "-f", connectorFile(t, srv.URL), "-a", "other", "--study-uid", "1.2.3")
	assert.Assert(t, errors.Is(err, apperr.ErrUnknownConnector))
}
