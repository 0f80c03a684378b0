package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"gotest.tools/v3/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("search failed: %w", New(KindArchiveUnavailable, "dicomweb.search", "connection refused"))

	assert.Assert(t, errors.Is(err, ErrArchiveUnavailable))
	assert.Assert(t, !errors.Is(err, ErrArchiveServerError))
	assert.Equal(t, KindOf(err), KindArchiveUnavailable)
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(KindConfiguration, "connector pacs1", errors.New("dicom AE title is required"))
	assert.Equal(t, err.Error(), "connector pacs1: dicom AE title is required")

	err = Newf(KindValidation, "", "archive list is empty")
	assert.Equal(t, err.Error(), "archive list is empty")
}

func TestRetryable(t *testing.T) {
	assert.Assert(t, Retryable(ErrArchiveUnavailable))
	assert.Assert(t, Retryable(ErrArchiveServerError))
	assert.Assert(t, !Retryable(ErrArchiveClientError))
	assert.Assert(t, !Retryable(ErrArchiveNoAccess))
	assert.Assert(t, !Retryable(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		ErrValidation:            http.StatusBadRequest,
		ErrUnknownConnector:      http.StatusBadRequest,
		ErrNoCompatibleVersion:   http.StatusUpgradeRequired,
		ErrArchiveServerError:    http.StatusBadGateway,
		ErrConfiguration:         http.StatusInternalServerError,
		context.DeadlineExceeded: http.StatusGatewayTimeout,
	}
	for err, want := range cases {
		assert.Equal(t, HTTPStatus(err), want, err.Error())
	}
}
