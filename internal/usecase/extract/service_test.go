package extract

import (
	"errors"
	"testing"

	"github.com/louper-cloud/queryline/internal/domain"
	"github.com/louper-cloud/queryline/internal/domain/query"
)

func TestExtract_PlainJSON(t *testing.T) {
	svc := New()
	q, err := svc.Extract(`{"target_collection":"users","operation":"count","payload":{"plan":"pro"}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Collection() != "users" {
		t.Errorf("expected collection users, got %q", q.Collection())
	}
	if q.Operation() != query.OpCount {
		t.Errorf("expected count, got %q", q.Operation())
	}
	if q.Filter()["plan"] != "pro" {
		t.Errorf("unexpected filter: %v", q.Filter())
	}
}

func TestExtract_FencedJSON(t *testing.T) {
	raws := []string{
		"```json\n{\"target_collection\":\"users\",\"operation\":\"find\",\"payload\":{}}\n```",
		"```\n{\"target_collection\":\"users\",\"operation\":\"find\",\"payload\":{}}\n```",
		"  ```json\n{\"target_collection\":\"users\",\"operation\":\"find\",\"payload\":{}}\n```  ",
	}
	svc := New()
	for _, raw := range raws {
		q, err := svc.Extract(raw)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", raw, err)
		}
		if q.Operation() != query.OpFind {
			t.Errorf("expected find, got %q", q.Operation())
		}
	}
}

func TestExtract_OperationCaseNormalized(t *testing.T) {
	svc := New()
	q, err := svc.Extract(`{"target_collection":"users","operation":"FIND","payload":{}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Operation() != query.OpFind {
		t.Errorf("expected find, got %q", q.Operation())
	}
}

func TestExtract_FreeText(t *testing.T) {
	svc := New()
	raws := []string{
		"Sure! Here is your query: find all pro users.",
		"",
		"```json\n```",
		`{"target_collection": "users", "operation":`, // truncated
	}
	for _, raw := range raws {
		_, err := svc.Extract(raw)
		if !errors.Is(err, domain.ErrMalformedOutput) {
			t.Errorf("%q: expected ErrMalformedOutput, got %v", raw, err)
		}
	}
}

func TestExtract_MissingFields(t *testing.T) {
	svc := New()
	tests := []struct {
		name string
		raw  string
	}{
		{"no collection", `{"operation":"find","payload":{}}`},
		{"empty collection", `{"target_collection":"","operation":"find","payload":{}}`},
		{"no operation", `{"target_collection":"users","payload":{}}`},
		{"no payload", `{"target_collection":"users","operation":"find"}`},
		{"top-level array", `[{"target_collection":"users"}]`},
		{"wrong payload shape", `{"target_collection":"users","operation":"find","payload":[1,2]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Extract(tt.raw)
			if !errors.Is(err, domain.ErrIncompleteQuery) {
				t.Errorf("expected ErrIncompleteQuery, got %v", err)
			}
		})
	}
}

func TestExtract_UnsupportedOperation(t *testing.T) {
	svc := New()
	_, err := svc.Extract(`{"target_collection":"users","operation":"drop","payload":{}}`)
	if !errors.Is(err, domain.ErrUnsupportedOperation) {
		t.Errorf("expected ErrUnsupportedOperation, got %v", err)
	}
}

// A document carrying fields beyond the three the model is instructed to
// emit is rejected, even when the known fields are all present and valid.
func TestExtract_ExtraUnknownFieldsRejected(t *testing.T) {
	svc := New()
	raws := []string{
		`{"target_collection":"users","operation":"find","payload":{},"explanation":"because"}`,
		`{"target_collection":"users","operation":"find","payload":{},"explanation":"because","confidence":0.9}`,
	}
	for _, raw := range raws {
		_, err := svc.Extract(raw)
		if !errors.Is(err, domain.ErrIncompleteQuery) {
			t.Errorf("%q: expected ErrIncompleteQuery, got %v", raw, err)
		}
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"{\"a\":1}", `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"```JSON\n{\"a\":1}\n```", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
