package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bosocmputer/invoice_labeler/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"detail string", `{"detail":"Invoice unreadable"}`, "Invoice unreadable"},
		{"detail not a string", `{"detail":[{"msg":"x"}]}`, `{"detail":[{"msg":"x"}]}`},
		{"blank detail", `{"detail":"  "}`, `{"detail":"  "}`},
		{"plain text", "Bad Gateway\n", "Bad Gateway"},
		{"empty body", "", GenericErrorMessage},
		{"whitespace body", " \n ", GenericErrorMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorMessage([]byte(tt.body)))
		})
	}
}

func TestSubmitInvoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/invoice", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "sess-1", r.FormValue("session_id"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "inv.jpg", hdr.Filename)
		assert.Equal(t, []byte("img"), data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ocr_lines":["Milk"],"items_for_dropdown":["Milk"],"session_id":"sess-1"}`))
	}))
	defer srv.Close()

	payload, err := New(srv.URL+"/").SubmitInvoice(context.Background(), "inv.jpg", []byte("img"), "sess-1")
	require.NoError(t, err)

	res := reconcile.Reconcile(*payload)
	assert.Equal(t, []string{"Milk"}, res.Items)
}

func TestSubmitInvoice_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"No text found on the invoice","request_id":"r1"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).SubmitInvoice(context.Background(), "a.jpg", []byte("x"), "")

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusUnprocessableEntity, ue.StatusCode)
	assert.Equal(t, "No text found on the invoice", ue.Message)
}

func TestSubmitInvoice_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).SubmitInvoice(context.Background(), "a.jpg", []byte("x"), "")

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Zero(t, ue.StatusCode)
	assert.Equal(t, GenericErrorMessage, ue.Message)
	assert.NotNil(t, errors.Unwrap(ue))
}

func TestReconcile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/reconcile", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"ocr_lines":["Eggs"]}`, string(body))

		payload, err := reconcile.DecodePayload(body)
		require.NoError(t, err)
		res := reconcile.Reconcile(payload)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(res))
	}))
	defer srv.Close()

	res, err := New(srv.URL).Reconcile(context.Background(), []byte(`{"ocr_lines":["Eggs"]}`))
	require.NoError(t, err)
	assert.Equal(t, reconcile.SourceUnion, res.ItemsSource)
	assert.Empty(t, res.Items)
	assert.Contains(t, res.HTML, "Eggs")
}
