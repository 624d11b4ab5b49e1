package callback_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credexam/certification-api/internal/callback"
	"github.com/credexam/certification-api/internal/types"
)

func TestNotify(t *testing.T) {
	t.Run("Delivered", func(t *testing.T) {
		var received callback.Notification
		server := httptest.NewServer(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
				w.WriteHeader(http.StatusNoContent)
			}),
		)
		defer server.Close()

		path := "evaluation_report_abc.pdf"
		notifier := callback.NewHTTPNotifier(server.Client())
		err := notifier.Notify(t.Context(), server.URL, callback.Notification{
			ResultID:     "abc",
			ArtifactType: types.ArtifactTypeEvaluationReport,
			PDFStatus:    types.PDFStatusCompleted,
			ArtifactPath: &path,
		})

		require.NoError(t, err, "failed to notify")
		assert.Equal(t, "abc", received.ResultID)
		assert.Equal(t, types.PDFStatusCompleted, received.PDFStatus)
		require.NotNil(t, received.ArtifactPath)
		assert.Equal(t, path, *received.ArtifactPath)
	})

	t.Run("Rejected", func(t *testing.T) {
		server := httptest.NewServer(
			http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			}),
		)
		defer server.Close()

		notifier := callback.NewHTTPNotifier(server.Client())
		err := notifier.Notify(t.Context(), server.URL, callback.Notification{
			ResultID:     "abc",
			ArtifactType: types.ArtifactTypeCertificate,
			PDFStatus:    types.PDFStatusError,
		})

		require.Error(t, err, "non 2xx must surface")
	})
}
