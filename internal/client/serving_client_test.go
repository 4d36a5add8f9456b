package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aiplaza/serving-client/internal/config"
	"github.com/aiplaza/serving-client/internal/logging"
	"github.com/aiplaza/serving-client/internal/model"
)

// newTestClient starts a fake inference server and returns a client pointing at it.
func newTestClient(t *testing.T, handler http.HandlerFunc) *ServingClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewServingClient(&config.APIConfig{BaseURL: srv.URL}, logging.Nop())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func TestNewServingClient_RejectsRelativeURL(t *testing.T) {
	if _, err := NewServingClient(&config.APIConfig{BaseURL: "/"}, logging.Nop()); err == nil {
		t.Fatal("expected error for relative base URL")
	}
}

func TestListModels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/models/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header")
		}
		_, _ = io.WriteString(w, `[{"id":1,"name":"mnist","created_at":"2023-06-01T10:00:00+00:00","updated_at":"2023-06-01T10:00:00+00:00"},{"id":2,"name":"imagenet","created_at":"2023-06-01T10:00:00+00:00","updated_at":"2023-06-01T10:00:00+00:00"}]`)
	})

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 2 || models[0].Name != "mnist" || models[1].ID != 2 {
		t.Errorf("unexpected models %+v", models)
	}
}

func TestUploadFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/files/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("expected multipart field 'file': %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "PNGDATA" {
			t.Errorf("unexpected file content %q", data)
		}
		if header.Filename != "3.png" {
			t.Errorf("unexpected filename %q", header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("unexpected part content type %q", ct)
		}
		_, _ = io.WriteString(w, `{"path":"uploads/3.png"}`)
	})

	created, err := c.UploadFile(context.Background(), "3.png", "image/png", strings.NewReader("PNGDATA"))
	if err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}
	if created.Path != "uploads/3.png" {
		t.Errorf("unexpected path %q", created.Path)
	}
}

func TestUploadFile_MissingPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	})

	if _, err := c.UploadFile(context.Background(), "a.png", "", strings.NewReader("x")); err == nil {
		t.Fatal("expected error when response has no path")
	}
}

func TestCreateJob_Body(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/jobs/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"model_id":1,"argument_path":"abc.png"}` {
			t.Errorf("unexpected body %s", body)
		}
		_, _ = io.WriteString(w, `{"id":5,"status":"pending","result_path":null,"created_at":"2023-06-01T10:00:00+00:00","updated_at":"2023-06-01T10:00:00+00:00"}`)
	})

	job, err := c.CreateJob(context.Background(), &model.JobCreateRequest{ModelID: 1, ArgumentPath: "abc.png"})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if job.ID != 5 || job.Status != model.JobStatusPending || job.ResultPath != nil {
		t.Errorf("unexpected job %+v", job)
	}
}

func TestGetJob(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs/42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":          42,
			"status":      "completed",
			"result_path": "results/42.txt",
			"created_at":  "2023-06-01T10:00:00+00:00",
			"updated_at":  "2023-06-01T10:00:05+00:00",
		})
	})

	job, err := c.GetJob(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if !job.HasResult() || *job.ResultPath != "results/42.txt" {
		t.Errorf("unexpected job %+v", job)
	}
}

func TestFetchFile_KeepsPathSeparators(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/files/out/my%20result.txt" {
			t.Errorf("unexpected path %s", r.URL.EscapedPath())
		}
		_, _ = io.WriteString(w, "7")
	})

	text, err := c.FetchFile(context.Background(), "out/my result.txt")
	if err != nil {
		t.Fatalf("FetchFile failed: %v", err)
	}
	if text != "7" {
		t.Errorf("unexpected text %q", text)
	}
}

func TestCreateModel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/" || r.URL.Query().Get("name") != "mnist" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("expected archive in 'file' field: %v", err)
		}
		_, _ = io.WriteString(w, `{"id":3,"name":"mnist","created_at":"2023-06-01T10:00:00+00:00","updated_at":"2023-06-01T10:00:00+00:00"}`)
	})

	m, err := c.CreateModel(context.Background(), "mnist", "mnist.zip", strings.NewReader("PK"))
	if err != nil {
		t.Fatalf("CreateModel failed: %v", err)
	}
	if m.ID != 3 {
		t.Errorf("unexpected model %+v", m)
	}
}

func TestAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Job not found"}`)
	})

	_, err := c.GetJob(context.Background(), 9)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("unexpected status %d", apiErr.StatusCode)
	}
}

func TestMalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	})

	_, err := c.ListModels(context.Background())
	if err == nil {
		t.Fatal("expected decode error")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Error("decode failure should not be reported as APIError")
	}
}

func TestParseObjectURI(t *testing.T) {
	cases := []struct {
		in     string
		bucket string
		key    string
		ok     bool
	}{
		{"s3://ais/uploads/3.png", "ais", "uploads/3.png", true},
		{"s3://ais/", "", "", false},
		{"s3://ais", "", "", false},
		{"/tmp/3.png", "", "", false},
	}
	for _, tc := range cases {
		bucket, key, ok := ParseObjectURI(tc.in)
		if bucket != tc.bucket || key != tc.key || ok != tc.ok {
			t.Errorf("ParseObjectURI(%q) = %q, %q, %v", tc.in, bucket, key, ok)
		}
	}
}
