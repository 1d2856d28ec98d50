package voice

import "testing"

func TestTranscriptRecordsConversation(t *testing.T) {
	tr := NewTranscript("Sarah")
	var agentSeen string
	cb := tr.Bind(Callbacks{OnAgentResponse: func(text string) { agentSeen = text }})

	cb.OnConnect("conv")
	cb.OnUserTranscript("I'm good, thanks")
	cb.OnAgentResponse("Glad to hear it!")

	lines := tr.Lines()
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	want := []Line{
		{Speaker: "Sarah", Text: Greeting},
		{Speaker: "Sarah", Text: ConnectGreeting},
		{Speaker: UserSpeaker, Text: "I'm good, thanks"},
		{Speaker: "Sarah", Text: "Glad to hear it!"},
	}
	for i, w := range want {
		if lines[i].Speaker != w.Speaker || lines[i].Text != w.Text {
			t.Fatalf("line %d: got %+v want %+v", i, lines[i], w)
		}
	}
	if agentSeen != "Glad to hear it!" {
		t.Fatalf("next callback not invoked")
	}
}

func TestTranscriptDefaultsAndMute(t *testing.T) {
	tr := NewTranscript("")
	if tr.Partner() != "Alex" {
		t.Fatalf("unexpected default partner %q", tr.Partner())
	}
	if !tr.ToggleMute() || !tr.Muted() {
		t.Fatalf("expected muted after first toggle")
	}
	if tr.ToggleMute() {
		t.Fatalf("expected unmuted after second toggle")
	}
}
