package router

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/zen-systems/expertgate/pkg/adapter"
	"github.com/zen-systems/expertgate/pkg/config"
	"github.com/zen-systems/expertgate/pkg/logging"
)

func newTestRouter(opts ...Option) *Router {
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return New(config.DefaultRoutingConfig(), opts...)
}

func TestRouteFastKeyword(t *testing.T) {
	r := newTestRouter()

	tests := []struct {
		name   string
		prompt string
		expert string
		phrase string
	}{
		{name: "story phrase", prompt: "Write a story about a dragon", expert: "story", phrase: "write a story"},
		{name: "poem phrase", prompt: "Please write a poem for my mother", expert: "poem", phrase: "write a poem"},
		{name: "email phrase", prompt: "I need sick leave for Thursday", expert: "email", phrase: "sick leave"},
		{name: "priority poem before email", prompt: "Compose a poem and an email to my aunt", expert: "poem", phrase: "compose a poem"},
		{name: "priority story before poem", prompt: "Once upon a time, a poem about rivers", expert: "story", phrase: "once upon a time"},
		{name: "case insensitive", prompt: "DRAFT AN EMAIL to the board", expert: "email", phrase: "draft an email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := r.Route(context.Background(), tt.prompt, "")
			if err != nil {
				t.Fatalf("route: %v", err)
			}
			if d.Expert != tt.expert || d.Method != MethodFastKeyword || d.Confidence != ConfidenceFast {
				t.Fatalf("got %+v", d)
			}
			if !strings.Contains(d.Rationale, "'"+tt.phrase+"'") {
				t.Errorf("rationale should quote phrase %q: %s", tt.phrase, d.Rationale)
			}
		})
	}
}

func TestFastRationaleKeepsRuneBoundaries(t *testing.T) {
	r := newTestRouter()
	text := strings.Repeat("İ", 40) + " Write A Poem about the autumn rain " + strings.Repeat("é", 40)

	d, err := r.Route(context.Background(), text, "")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if d.Expert != "poem" || d.Method != MethodFastKeyword {
		t.Fatalf("unexpected decision %+v", d)
	}
	if !utf8.ValidString(d.Rationale) {
		t.Fatalf("rationale is not valid UTF-8: %q", d.Rationale)
	}
	if !strings.Contains(d.Rationale, "İ Write A Poem about the autumn rain") {
		t.Fatalf("excerpt does not surround the match: %s", d.Rationale)
	}
}

func TestRouteManualOverride(t *testing.T) {
	r := newTestRouter()

	d, err := r.Route(context.Background(), "Write a story about dragons", " Poem ")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if d.Expert != "poem" || d.Method != MethodManual || d.Confidence != 1.0 {
		t.Fatalf("got %+v", d)
	}
}

func TestRouteUnknownExpert(t *testing.T) {
	r := newTestRouter()

	d, err := r.Route(context.Background(), "anything", "sonnet")
	if d != nil {
		t.Fatalf("expected no decision, got %+v", d)
	}
	if !errors.Is(err, ErrUnknownExpert) {
		t.Fatalf("expected ErrUnknownExpert, got %v", err)
	}
	var rerr *RoutingError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RoutingError, got %T", err)
	}
	if rerr.Kind != KindUnknownExpert || rerr.Expert != "sonnet" || len(rerr.Available) != 3 {
		t.Errorf("unexpected error fields: %+v", rerr)
	}
}

func TestRouteKeywordFallback(t *testing.T) {
	r := newTestRouter()

	d, err := r.Route(context.Background(), "A haiku with rhyme and verse", "")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if d.Expert != "poem" || d.Method != MethodKeywordFallback {
		t.Fatalf("got %+v", d)
	}
	if d.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", d.Confidence)
	}
	if d.Scores["poem"] != 3 {
		t.Errorf("poem score = %d, want 3", d.Scores["poem"])
	}
}

func TestRouteTieUsesPriority(t *testing.T) {
	r := newTestRouter()

	d, err := r.Route(context.Background(), "dragon meeting", "")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if d.Expert != "story" {
		t.Fatalf("tie should go to story, got %s", d.Expert)
	}
	if d.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5", d.Confidence)
	}
}

func TestRouteNoMatchDefaults(t *testing.T) {
	r := newTestRouter()

	for _, prompt := range []string{"xyzzy plugh", "three trees", ""} {
		d, err := r.Route(context.Background(), prompt, "")
		if err != nil {
			t.Fatalf("route %q: %v", prompt, err)
		}
		if d.Expert != "email" || d.Confidence != 0.5 || d.Method != MethodKeywordFallback {
			t.Fatalf("prompt %q: got %+v", prompt, d)
		}
		if !strings.Contains(d.Rationale, "No specific keywords matched") {
			t.Errorf("unexpected rationale: %s", d.Rationale)
		}
	}
}

func TestRouteDeterministic(t *testing.T) {
	r := newTestRouter()
	prompt := "my boss wants a formal message about the fantasy conference"

	first, err := r.Route(context.Background(), prompt, "")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	for i := 0; i < 5; i++ {
		next, _ := r.Route(context.Background(), prompt, "")
		if !reflect.DeepEqual(first, next) {
			t.Fatalf("decision changed: %+v vs %+v", first, next)
		}
	}
	if first.Confidence < 0 || first.Confidence > 1 {
		t.Errorf("confidence out of range: %v", first.Confidence)
	}
}

func TestRouteClassifier(t *testing.T) {
	mock := adapter.NewScriptedMockAdapter(adapter.MockReply{Text: "  poem\n"})
	r := newTestRouter(WithClassifier(NewClassifier(mock, "mock-1", false)))

	d, err := r.Route(context.Background(), "something about mountains at dusk", "")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if d.Expert != "poem" || d.Method != MethodModelClassified || d.Confidence != ConfidenceClassified {
		t.Fatalf("got %+v", d)
	}
	if d.Rationale == "" {
		t.Error("expected keyword-based rationale")
	}

	reqs := mock.Requests()
	if len(reqs) != 1 || !strings.Contains(reqs[0].Prompt, "STORY, POEM, or EMAIL") {
		t.Fatalf("unexpected classifier requests: %+v", reqs)
	}
}

func TestRouteClassifierExplains(t *testing.T) {
	mock := adapter.NewScriptedMockAdapter(
		adapter.MockReply{Text: "```STORY```"},
		adapter.MockReply{Text: "Reason: The request describes a quest."},
	)
	r := newTestRouter(WithClassifier(NewClassifier(mock, "mock-1", true)))

	d, err := r.Route(context.Background(), "a knight sets out at dawn", "")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if d.Expert != "story" || d.Rationale != "The request describes a quest." {
		t.Fatalf("got %+v", d)
	}
}

func TestRouteClassifierFallsThrough(t *testing.T) {
	tests := []struct {
		name  string
		reply adapter.MockReply
	}{
		{name: "unknown label", reply: adapter.MockReply{Text: "BANANA"}},
		{name: "empty reply", reply: adapter.MockReply{Text: "   "}},
		{name: "adapter error", reply: adapter.MockReply{Err: errors.New("boom")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := adapter.NewScriptedMockAdapter(tt.reply)
			r := newTestRouter(WithClassifier(NewClassifier(mock, "mock-1", false)))

			d, err := r.Route(context.Background(), "a haiku with rhyme", "")
			if err != nil {
				t.Fatalf("route: %v", err)
			}
			if d.Method != MethodKeywordFallback || d.Expert != "poem" {
				t.Fatalf("got %+v", d)
			}
		})
	}
}

func TestRouteFastStageSkipsClassifier(t *testing.T) {
	mock := adapter.NewScriptedMockAdapter(adapter.MockReply{Text: "EMAIL"})
	r := newTestRouter(WithClassifier(NewClassifier(mock, "mock-1", false)))

	d, _ := r.Route(context.Background(), "write a poem about rain", "")
	if d.Method != MethodFastKeyword {
		t.Fatalf("got %+v", d)
	}
	if len(mock.Requests()) != 0 {
		t.Error("classifier should not be called after a fast match")
	}
}

func TestKeywordList(t *testing.T) {
	got := keywordList([]string{"a", "b", "c", "d", "e", "f", "g"})
	want := `"a", "b", "c", "d", "e" and 2 more`
	if got != want {
		t.Errorf("keywordList = %q, want %q", got, want)
	}
	if got := keywordList([]string{"x"}); got != `"x"` {
		t.Errorf("keywordList = %q", got)
	}
}

func TestInfo(t *testing.T) {
	info := newTestRouter().Info()

	if !reflect.DeepEqual(info.Priority, []string{"story", "poem", "email"}) {
		t.Fatalf("priority = %v", info.Priority)
	}
	if info.ClassifierEnabled {
		t.Error("classifier should be disabled")
	}
	for _, e := range info.Experts {
		if e.Phrases == 0 || e.Keywords == 0 {
			t.Errorf("expert %s has empty tables: %+v", e.Name, e)
		}
	}
}

func TestParseLabel(t *testing.T) {
	cases := map[string]string{
		"STORY":          "STORY",
		" poem. ":        "POEM",
		"```EMAIL```":    "EMAIL",
		"**Story** fits": "STORY",
		"":               "",
	}
	for in, want := range cases {
		if got := parseLabel(in); got != want {
			t.Errorf("parseLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
