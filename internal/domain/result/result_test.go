package result

import "testing"

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		res  Result
		want string
	}{
		{"count", Count(3), "Count: 3 matches"},
		{"empty", Documents(nil, false), "No matches found"},
		{"docs", Documents([]map[string]any{{"a": 1}, {"b": 2}}, false), "Found 2 matches"},
		{"truncated", Documents([]map[string]any{{"a": 1}}, true), "Found 1 matches (truncated)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.Message(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestAccessors(t *testing.T) {
	c := Count(5)
	if c.Scalar() == nil || *c.Scalar() != 5 {
		t.Errorf("expected scalar 5, got %v", c.Scalar())
	}
	if c.Docs() != nil {
		t.Error("scalar result must carry no documents")
	}

	d := Documents([]map[string]any{{"a": 1}}, true)
	if d.Scalar() != nil {
		t.Error("document result must carry no scalar")
	}
	if !d.Truncated() {
		t.Error("expected truncated flag")
	}
}
