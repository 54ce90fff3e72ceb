package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/louper-cloud/queryline/internal/domain"
	"github.com/louper-cloud/queryline/internal/domain/policy"
	"github.com/louper-cloud/queryline/internal/domain/query"
)

func makePolicy(t *testing.T) policy.Policy {
	t.Helper()
	p, err := policy.New(
		[]string{"users", "trials"},
		[]string{"find", "count", "aggregate", "delete"},
		nil, // defaults: $where, $function, $accumulator, $out, $merge
		5,
	)
	if err != nil {
		t.Fatalf("policy.New: %v", err)
	}
	return p
}

func makeQuery(t *testing.T, collection string, op query.Operation, payload string) query.Query {
	t.Helper()
	q, err := query.New(collection, op, json.RawMessage(payload))
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	return q
}

func TestValidate_Allowed(t *testing.T) {
	svc := New(makePolicy(t))
	q := makeQuery(t, "users", query.OpCount, `{"plan":"pro"}`)

	v := svc.Validate(q)
	if !v.Allowed {
		t.Fatalf("expected allowed, got %v", v.Err)
	}
	if v.Err != nil {
		t.Errorf("allowed verdict must carry no error, got %v", v.Err)
	}
}

func TestValidate_UnauthorizedCollection(t *testing.T) {
	svc := New(makePolicy(t))
	q := makeQuery(t, "admin_secrets", query.OpFind, `{}`)

	v := svc.Validate(q)
	if v.Allowed {
		t.Fatal("expected disallowed")
	}
	if !errors.Is(v.Err, domain.ErrUnauthorizedCollection) {
		t.Errorf("expected ErrUnauthorizedCollection, got %v", v.Err)
	}
}

// The collection check wins regardless of operation or payload content.
func TestValidate_CollectionCheckedFirst(t *testing.T) {
	svc := New(makePolicy(t))
	q := makeQuery(t, "admin_secrets", query.OpUpdate, `{"filter":{"$where":"1"},"update":{"$set":{}}}`)

	v := svc.Validate(q)
	if !errors.Is(v.Err, domain.ErrUnauthorizedCollection) {
		t.Errorf("expected ErrUnauthorizedCollection, got %v", v.Err)
	}
}

func TestValidate_UnauthorizedOperation(t *testing.T) {
	svc := New(makePolicy(t))
	q := makeQuery(t, "users", query.OpUpdate, `{"filter":{},"update":{"$set":{"credits":0}}}`)

	v := svc.Validate(q)
	if !errors.Is(v.Err, domain.ErrUnauthorizedOperation) {
		t.Errorf("expected ErrUnauthorizedOperation, got %v", v.Err)
	}
}

func TestValidate_ForbiddenOperatorTopLevel(t *testing.T) {
	svc := New(makePolicy(t))
	q := makeQuery(t, "trials", query.OpDelete, `{"$where":"this.credits > 0"}`)

	v := svc.Validate(q)
	if !errors.Is(v.Err, domain.ErrUnsafePayload) {
		t.Errorf("expected ErrUnsafePayload, got %v", v.Err)
	}
}

// Forbidden operators are caught at any nesting depth, not just the top level.
func TestValidate_ForbiddenOperatorNested(t *testing.T) {
	svc := New(makePolicy(t))
	payloads := []string{
		`{"$and":[{"plan":"pro"},{"$where":"1"}]}`,
		`{"plan":{"$in":["pro"]},"meta":{"inner":{"$function":{}}}}`,
	}
	for _, payload := range payloads {
		q := makeQuery(t, "users", query.OpFind, payload)
		v := svc.Validate(q)
		if !errors.Is(v.Err, domain.ErrUnsafePayload) {
			t.Errorf("%s: expected ErrUnsafePayload, got %v", payload, v.Err)
		}
	}
}

func TestValidate_ForbiddenOperatorInPipeline(t *testing.T) {
	svc := New(makePolicy(t))
	q := makeQuery(t, "users", query.OpAggregate, `[{"$match":{"plan":"pro"}},{"$out":"stolen"}]`)

	v := svc.Validate(q)
	if !errors.Is(v.Err, domain.ErrUnsafePayload) {
		t.Errorf("expected ErrUnsafePayload, got %v", v.Err)
	}
}

func TestValidate_DepthLimit(t *testing.T) {
	svc := New(makePolicy(t)) // max depth 5

	// Build a document nested beyond the limit: {"a":{"a":{"a":...}}}
	inner := `1`
	for i := 0; i < 8; i++ {
		inner = fmt.Sprintf(`{"a":%s}`, inner)
	}
	q := makeQuery(t, "users", query.OpFind, inner)

	v := svc.Validate(q)
	if !errors.Is(v.Err, domain.ErrUnsafePayload) {
		t.Errorf("expected ErrUnsafePayload, got %v", v.Err)
	}
	if v.Err != nil && !strings.Contains(v.Err.Error(), "depth") {
		t.Errorf("expected depth reason, got %v", v.Err)
	}
}

func TestValidate_DepthWithinLimit(t *testing.T) {
	svc := New(makePolicy(t))
	q := makeQuery(t, "users", query.OpFind, `{"a":{"b":{"c":1}}}`)

	if v := svc.Validate(q); !v.Allowed {
		t.Errorf("expected allowed, got %v", v.Err)
	}
}

// Validation has no hidden state: the same query yields the same verdict.
func TestValidate_Idempotent(t *testing.T) {
	svc := New(makePolicy(t))
	q := makeQuery(t, "trials", query.OpDelete, `{"$where":"..."}`)

	first := svc.Validate(q)
	second := svc.Validate(q)

	if first.Allowed != second.Allowed {
		t.Errorf("verdicts differ: %v vs %v", first.Allowed, second.Allowed)
	}
	if !errors.Is(second.Err, domain.ErrUnsafePayload) {
		t.Errorf("expected ErrUnsafePayload on second call, got %v", second.Err)
	}
}

func TestValidate_QueryUnchanged(t *testing.T) {
	svc := New(makePolicy(t))
	q := makeQuery(t, "users", query.OpFind, `{"plan":"pro"}`)

	_ = svc.Validate(q)

	if q.Filter()["plan"] != "pro" || len(q.Filter()) != 1 {
		t.Errorf("validation must not mutate the query, got %v", q.Filter())
	}
}
