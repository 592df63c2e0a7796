package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ErrorIncludesCauseWhenPresent(t *testing.T) {
	e := New(http.StatusBadRequest, "bad input", errors.New("field missing"))
	assert.Equal(t, "bad input: field missing", e.Error())
}

func TestError_ErrorOmitsCauseWhenNil(t *testing.T) {
	e := New(http.StatusBadRequest, "bad input", nil)
	assert.Equal(t, "bad input", e.Error())
}

func TestError_UnwrapReturnsCause(t *testing.T) {
	cause := errors.New("root cause")
	e := New(http.StatusInternalServerError, "wrapped", cause)
	assert.Same(t, cause, errors.Unwrap(e))
}

func TestConstructors_SetExpectedStatusCodes(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, NotFound("x", nil).Status)
	assert.Equal(t, http.StatusBadRequest, BadRequest("x", nil).Status)
	assert.Equal(t, http.StatusInternalServerError, Internal("x", nil).Status)
	assert.Equal(t, http.StatusBadGateway, BadGateway("x", nil).Status)
	assert.Equal(t, http.StatusConflict, Conflict("x", nil).Status)
	assert.Equal(t, http.StatusBadGateway, Upstream("timeout", nil).Status)
	assert.Equal(t, http.StatusBadRequest, PipelineError("secret found", nil).Status)
}

func TestUpstream_PrefixesMessage(t *testing.T) {
	assert.Contains(t, Upstream("timeout", nil).Message, "upstream provider error: timeout")
}

func TestPipelineError_PrefixesMessage(t *testing.T) {
	assert.Contains(t, PipelineError("secret found", nil).Message, "pipeline rejected request: secret found")
}

func TestWrite_UsesApierrStatusAndMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, BadRequest("missing field", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "missing field", body["error"])
}

func TestWrite_WrappedApierrStillExtractsStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := errors.Join(errors.New("context"), NotFound("workspace not found", nil))

	Write(rec, wrapped)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWrite_OpaqueErrorDefaultsTo500(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, errors.New("something broke"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "something broke", body["error"])
}
