package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dhelos/saleshook/internal/pipeline"
	"github.com/dhelos/saleshook/internal/webservice/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeManager satisfies handlers.ConfigManager without touching the disk.
type fakeManager struct {
	validateErr error
	saveErr     error

	saved     []pipeline.Pointers
	pointers  pipeline.Pointers
	settings  pipeline.Settings
	validated int
}

func (m *fakeManager) Validate() error             { m.validated++; return m.validateErr }
func (m *fakeManager) Settings() pipeline.Settings { return m.settings }
func (m *fakeManager) Pointers() pipeline.Pointers { return m.pointers }

func (m *fakeManager) SavePointers(p pipeline.Pointers) error {
	m.saved = append(m.saved, p)
	return m.saveErr
}

// fakeIngester satisfies handlers.Ingester with a canned result.
type fakeIngester struct {
	res pipeline.Result
	err error

	calls int
}

func (f *fakeIngester) Ingest(_ context.Context, _ []byte, _ pipeline.Settings, _ pipeline.Pointers) (pipeline.Result, error) {
	f.calls++
	return f.res, f.err
}

func TestSales(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		method      string
		body        string
		validateErr error
		saveErr     error
		res         pipeline.Result
		ingestErr   error

		wantStatus  int
		wantBody    map[string]any
		wantIngests int
		wantSaves   int
	}{
		"New event appended": {
			method: http.MethodPost,
			body:   `{"order_number": 10}`,
			res: pipeline.Result{
				Status:   pipeline.StatusAppended,
				Rows:     3,
				Pointers: pipeline.Pointers{ParquetID: "p-1", ExcelID: "e-1"},
			},
			wantStatus: http.StatusOK,
			wantBody: map[string]any{
				"status":     "success",
				"message":    "Data added",
				"rows":       float64(3),
				"parquet_id": "p-1",
				"excel_id":   "e-1",
			},
			wantIngests: 1,
		},
		"Duplicate event skipped": {
			method:     http.MethodPost,
			body:       `{"order_number": 10}`,
			res:        pipeline.Result{Status: pipeline.StatusSkipped, Rows: 3},
			wantStatus: http.StatusOK,
			wantBody: map[string]any{
				"status":  "skipped",
				"message": "Data already exists in file",
			},
			wantIngests: 1,
		},
		"Changed pointers are saved": {
			method: http.MethodPost,
			body:   `{"order_number": 10}`,
			res: pipeline.Result{
				Status:          pipeline.StatusAppended,
				Rows:            1,
				Pointers:        pipeline.Pointers{ParquetID: "p-1", ExcelID: "e-1"},
				PointersChanged: true,
			},
			wantStatus:  http.StatusOK,
			wantIngests: 1,
			wantSaves:   1,
		},
		"Pointer save failure still succeeds": {
			method:  http.MethodPost,
			body:    `{"order_number": 10}`,
			saveErr: errors.New("disk full"),
			res: pipeline.Result{
				Status:          pipeline.StatusAppended,
				Rows:            1,
				Pointers:        pipeline.Pointers{ParquetID: "p-1", ExcelID: "e-1"},
				PointersChanged: true,
			},
			wantStatus:  http.StatusOK,
			wantIngests: 1,
			wantSaves:   1,
		},

		// Error cases
		"GET is rejected": {
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
		},
		"DELETE is rejected": {
			method:     http.MethodDelete,
			wantStatus: http.StatusMethodNotAllowed,
		},
		"Empty body is rejected": {
			method:     http.MethodPost,
			body:       "",
			wantStatus: http.StatusBadRequest,
		},
		"Invalid JSON is rejected": {
			method:     http.MethodPost,
			body:       `{"a":`,
			wantStatus: http.StatusBadRequest,
		},
		"Bad payload reported by pipeline is a client error": {
			method:      http.MethodPost,
			body:        `[1, 2]`,
			ingestErr:   pipeline.ErrBadPayload,
			wantStatus:  http.StatusBadRequest,
			wantIngests: 1,
		},
		"Incomplete configuration fails": {
			method:      http.MethodPost,
			body:        `{"order_number": 10}`,
			validateErr: errors.New("folder_id is not configured"),
			wantStatus:  http.StatusInternalServerError,
		},
		"Persist failure fails": {
			method:      http.MethodPost,
			body:        `{"order_number": 10}`,
			ingestErr:   &pipeline.PersistError{Artifact: "parquet", Err: errors.New("quota exceeded")},
			wantStatus:  http.StatusInternalServerError,
			wantIngests: 1,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cm := &fakeManager{validateErr: tc.validateErr, saveErr: tc.saveErr}
			pipe := &fakeIngester{res: tc.res, err: tc.ingestErr}
			handler := handlers.NewSales(cm, pipe, 1<<20)

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(tc.method, "/sales", strings.NewReader(tc.body)))

			assert.Equal(t, tc.wantStatus, rr.Code, "Status code should match")
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"), "Responses should be JSON")
			assert.Equal(t, tc.wantIngests, pipe.calls, "Ingest call count should match")
			assert.Len(t, cm.saved, tc.wantSaves, "SavePointers call count should match")

			var body map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), "Response body should be valid JSON")
			if tc.wantStatus != http.StatusOK {
				assert.Contains(t, body, "error", "Error responses should carry an error message")
				return
			}
			if tc.wantBody != nil {
				assert.Equal(t, tc.wantBody, body, "Response body should match")
			}
		})
	}
}

func TestSalesRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	cm := &fakeManager{}
	pipe := &fakeIngester{}
	handler := handlers.NewSales(cm, pipe, 16)

	rr := httptest.NewRecorder()
	body := `{"padding": "` + strings.Repeat("x", 64) + `"}`
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sales", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rr.Code, "Oversized bodies should be rejected")
	assert.Zero(t, pipe.calls, "Pipeline should not run for oversized bodies")
}

func TestVersion(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	handlers.Version(rr, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, rr.Code, "Version should respond OK")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), "Response body should be valid JSON")
	assert.Contains(t, body, "version", "Response should carry the version")
}
