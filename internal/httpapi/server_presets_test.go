package httpapi

import (
	"strings"
	"testing"
)

func validPresetRequest() presetRequest {
	return presetRequest{
		Name: "tournament standard",
		CharCost: map[string][]float64{
			"1102": {1, 1.5, 2, 2.5, 3, 3.5, 4},
		},
		AccessoryCost: map[string][]float64{
			"w-42": {0.5, 1, 1.5, 2, 2.5},
		},
	}
}

func TestValidatePreset(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*presetRequest)
		wantOK bool
	}{
		{"valid", func(r *presetRequest) {}, true},
		{"empty maps allowed", func(r *presetRequest) {
			r.CharCost = nil
			r.AccessoryCost = nil
		}, true},
		{"name trimmed", func(r *presetRequest) { r.Name = "  padded  " }, true},
		{"blank name", func(r *presetRequest) { r.Name = "   " }, false},
		{"name too long", func(r *presetRequest) { r.Name = strings.Repeat("x", 41) }, false},
		{"char vector too short", func(r *presetRequest) {
			r.CharCost["1102"] = []float64{1, 2, 3}
		}, false},
		{"char vector too long", func(r *presetRequest) {
			r.CharCost["1102"] = make([]float64, 8)
		}, false},
		{"negative char cost", func(r *presetRequest) {
			r.CharCost["1102"] = []float64{0, 0, 0, -1, 0, 0, 0}
		}, false},
		{"accessory vector wrong length", func(r *presetRequest) {
			r.AccessoryCost["w-42"] = []float64{1, 2, 3, 4, 5, 6}
		}, false},
		{"negative accessory cost", func(r *presetRequest) {
			r.AccessoryCost["w-42"] = []float64{1, 2, -3, 4, 5}
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validPresetRequest()
			tc.mutate(&req)
			msg := validatePreset(&req)
			if tc.wantOK && msg != "" {
				t.Fatalf("validatePreset = %q, want ok", msg)
			}
			if !tc.wantOK && msg == "" {
				t.Fatal("validatePreset accepted invalid request")
			}
		})
	}
}

func TestValidatePresetTrimsName(t *testing.T) {
	req := validPresetRequest()
	req.Name = "  edges  "
	if msg := validatePreset(&req); msg != "" {
		t.Fatalf("validatePreset = %q", msg)
	}
	if req.Name != "edges" {
		t.Fatalf("name = %q, want trimmed", req.Name)
	}
}
