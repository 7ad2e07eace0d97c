package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"draftroom/internal/draft"
)

func TestParseActionEnvelope(t *testing.T) {
	idx := 2
	cases := []struct {
		name string
		body string
		want draft.Action
	}{
		{
			name: "pick",
			body: `{"op":"pick","index":2,"characterCode":"1102"}`,
			want: draft.Pick{Index: idx, CharacterCode: "1102"},
		},
		{
			name: "ban",
			body: `{"op":"ban","index":0,"characterCode":"1203"}`,
			want: draft.Ban{Index: 0, CharacterCode: "1203"},
		},
		{
			name: "setEidolon",
			body: `{"op":"setEidolon","index":2,"eidolon":3}`,
			want: draft.SetEidolon{Index: idx, Eidolon: 3},
		},
		{
			name: "legacy setMindscape op and field",
			body: `{"op":"setMindscape","index":2,"mindscape":4}`,
			want: draft.SetEidolon{Index: idx, Eidolon: 4},
		},
		{
			name: "modern field wins over legacy",
			body: `{"op":"setEidolon","index":2,"eidolon":1,"mindscape":6}`,
			want: draft.SetEidolon{Index: idx, Eidolon: 1},
		},
		{
			name: "setSuperimpose",
			body: `{"op":"setSuperimpose","index":2,"superimpose":5}`,
			want: draft.SetSuperimpose{Index: idx, Superimpose: 5},
		},
		{
			name: "legacy phase field",
			body: `{"op":"setPhase","index":2,"phase":3}`,
			want: draft.SetSuperimpose{Index: idx, Superimpose: 3},
		},
		{
			name: "setAccessory",
			body: `{"op":"setAccessory","index":2,"accessoryId":"w-77"}`,
			want: draft.SetAccessory{Index: idx, AccessoryID: "w-77"},
		},
		{
			name: "legacy setWengine op and wengineId field",
			body: `{"op":"setWengine","index":2,"wengineId":"w-42"}`,
			want: draft.SetAccessory{Index: idx, AccessoryID: "w-42"},
		},
		{
			name: "setLock",
			body: `{"op":"setLock","locked":true}`,
			want: draft.SetLock{Locked: true},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var env actionEnvelope
			if err := json.Unmarshal([]byte(tc.body), &env); err != nil {
				t.Fatalf("envelope unmarshal: %v", err)
			}
			got, err := parseAction(env)
			if err != nil {
				t.Fatalf("parseAction: %v", err)
			}
			if got != tc.want {
				t.Fatalf("parseAction = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestParseActionUndo(t *testing.T) {
	var env actionEnvelope
	if err := json.Unmarshal([]byte(`{"op":"undoLast","index":3}`), &env); err != nil {
		t.Fatal(err)
	}
	got, err := parseAction(env)
	if err != nil {
		t.Fatalf("parseAction: %v", err)
	}
	undo, ok := got.(draft.Undo)
	if !ok {
		t.Fatalf("parseAction = %#v, want Undo", got)
	}
	if undo.Index == nil || *undo.Index != 3 {
		t.Fatalf("undo index = %v, want 3", undo.Index)
	}

	env = actionEnvelope{}
	if err := json.Unmarshal([]byte(`{"op":"undo"}`), &env); err != nil {
		t.Fatal(err)
	}
	got, err = parseAction(env)
	if err != nil {
		t.Fatalf("parseAction: %v", err)
	}
	if undo := got.(draft.Undo); undo.Index != nil {
		t.Fatalf("bare undo index = %v, want nil", *undo.Index)
	}
}

func TestParseActionRejectsMalformed(t *testing.T) {
	for _, body := range []string{
		`{"op":"pick","characterCode":"1102"}`,
		`{"op":"setLock"}`,
		`{"op":"teleport","index":0}`,
		`{"index":0}`,
	} {
		var env actionEnvelope
		if err := json.Unmarshal([]byte(body), &env); err != nil {
			t.Fatalf("envelope unmarshal: %v", err)
		}
		if _, err := parseAction(env); !errors.Is(err, draft.ErrInvalidArgument) {
			t.Fatalf("parseAction(%s) err = %v, want invalid-argument", body, err)
		}
	}
}

func TestSideForToken(t *testing.T) {
	blue, red := "blue-token-aaaaaaaaaa", "red-token-bbbbbbbbbbb"
	if side, ok := sideForToken(blue, blue, red); !ok || side != draft.SideBlue {
		t.Fatalf("blue token -> %q %v", side, ok)
	}
	if side, ok := sideForToken(red, blue, red); !ok || side != draft.SideRed {
		t.Fatalf("red token -> %q %v", side, ok)
	}
	if _, ok := sideForToken("neither", blue, red); ok {
		t.Fatal("unknown token resolved a side")
	}
	if _, ok := sideForToken("", blue, red); ok {
		t.Fatal("empty token resolved a side")
	}
}

func TestRejectionStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{draft.ErrInvalidArgument, http.StatusBadRequest},
		{draft.ErrWrongTurn, http.StatusConflict},
		{draft.ErrAlreadyPicked, http.StatusConflict},
		{draft.ErrDraftAlreadyComplete, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := rejectionStatus(tc.err); got != tc.want {
			t.Fatalf("rejectionStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
