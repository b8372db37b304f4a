package surface

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestOverlayScriptEmbedsState(t *testing.T) {
	state := OverlayState{
		Step:      StepSelect,
		TargetURL: "https://example.com/feed?a=1&b=2",
		Preview:   []string{`Quote "inside"`, "second"},
		Notice:    "try another item",
	}

	js, err := overlayScript(state)
	if err != nil {
		t.Fatalf("overlayScript: %v", err)
	}
	if !strings.HasPrefix(js, "() =>") {
		t.Fatalf("script is not a function expression: %q", js[:20])
	}
	if strings.Contains(js, "%!") {
		t.Fatalf("format verb leaked into script")
	}
	for _, want := range []string{
		`"step":"select"`,
		`"targetUrl":"https://example.com/feed?a=1&b=2"`,
		`Quote \"inside\"`,
		`"notice":"try another item"`,
	} {
		if !strings.Contains(js, want) {
			t.Fatalf("script missing %q", want)
		}
	}
}

func TestOverlayScriptCoversEveryStep(t *testing.T) {
	for _, step := range []string{StepLogin, StepNavigate, StepNavigating, StepSelect, StepScrollConfig, StepDone} {
		js, err := overlayScript(OverlayState{Step: step})
		if err != nil {
			t.Fatalf("step %s: %v", step, err)
		}
		if !strings.Contains(js, "'"+step+"'") {
			t.Fatalf("renderer has no branch for step %s", step)
		}
	}
}

func TestScrollScriptEmbedsTarget(t *testing.T) {
	js, err := scrollScript(`div[data-x="feed"]`)
	if err != nil {
		t.Fatalf("scrollScript: %v", err)
	}
	if !strings.Contains(js, `div[data-x=\"feed\"]`) {
		t.Fatalf("target not embedded: %s", js)
	}

	js, err = scrollScript("")
	if err != nil {
		t.Fatalf("scrollScript empty: %v", err)
	}
	if !strings.Contains(js, `const sel = "";`) {
		t.Fatalf("empty target not embedded: %s", js)
	}
	if !strings.Contains(js, "window.scrollTo") {
		t.Fatalf("no viewport fallback in %s", js)
	}
}

func TestEventDecodeMatchesPageBuffer(t *testing.T) {
	// Shape pushed by the hook and overlay scripts.
	raw := []byte(`[
		{"name":"pick","path":[1,0,3]},
		{"name":"navigate-to","url":"https://example.com"},
		{"name":"confirm-items","display":"My Feed"},
		{"name":"finish-scroll","target":"div.feed","count":3}
	]`)

	var events []Event
	if err := json.Unmarshal(raw, &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].Name != EventPick || len(events[0].Path) != 3 || events[0].Path[2] != 3 {
		t.Fatalf("pick decoded as %#v", events[0])
	}
	if events[1].URL != "https://example.com" {
		t.Fatalf("navigate-to decoded as %#v", events[1])
	}
	if events[2].Display != "My Feed" {
		t.Fatalf("confirm-items decoded as %#v", events[2])
	}
	if events[3].Target != "div.feed" || events[3].Count != 3 {
		t.Fatalf("finish-scroll decoded as %#v", events[3])
	}
}

func TestHookScriptIsIdempotentGuarded(t *testing.T) {
	if !strings.Contains(hookScript, "__pointfeedHooked") {
		t.Fatalf("hook has no reinstall guard")
	}
	if !strings.Contains(drainEventsScript, "__pointfeedEvents = []") {
		t.Fatalf("drain does not clear the buffer")
	}
}
