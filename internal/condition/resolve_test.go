package condition

import "testing"

func TestResolve(t *testing.T) {
	ctx := map[string]any{
		"member": map[string]any{
			"age":     40,
			"address": map[string]any{"region": "north"},
			"spouse":  nil,
		},
		"labels": map[string]string{"tier": "gold"},
		"plan":   "PLATINUM",
	}

	tests := []struct {
		name  string
		path  string
		want  any
		found bool
	}{
		{"top level", "plan", "PLATINUM", true},
		{"nested", "member.age", 40, true},
		{"deeply nested", "member.address.region", "north", true},
		{"string map", "labels.tier", "gold", true},
		{"missing leaf", "member.height", nil, false},
		{"missing branch", "employer.name", nil, false},
		{"through scalar", "plan.code", nil, false},
		{"null value", "member.spouse", nil, false},
		{"empty path", "", nil, false},
		{"empty segment", "member..age", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := Resolve(ctx, tt.path)
			if found != tt.found {
				t.Fatalf("expected found=%v, got %v", tt.found, found)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	t.Run("nil context", func(t *testing.T) {
		if _, found := Resolve(nil, "member.age"); found {
			t.Error("expected nothing resolved from a nil context")
		}
	})
}
