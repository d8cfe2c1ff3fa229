package agent

import "testing"

func TestParseApprovalSentinel(t *testing.T) {
	reason, payload, ok := ParseApprovalSentinel("APPROVAL_REQUIRED:workspace-escape:/etc/passwd")
	if !ok || reason != "workspace-escape" || payload != "/etc/passwd" {
		t.Fatalf("got reason=%q payload=%q ok=%v", reason, payload, ok)
	}

	_, _, ok = ParseApprovalSentinel("plain tool output")
	if ok {
		t.Fatal("expected no sentinel match")
	}
}

func TestResolveApprovalReply(t *testing.T) {
	cases := map[string]ApprovalDecision{
		"approve":    ApprovalApproved,
		"  Approve ": ApprovalApproved,
		"DENY":       ApprovalDenied,
		"deny":       ApprovalDenied,
		"approve it": ApprovalUndecided,
		"hello":      ApprovalUndecided,
	}
	for input, want := range cases {
		if got := ResolveApprovalReply(input); got != want {
			t.Errorf("ResolveApprovalReply(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestMemoryApprovalStore(t *testing.T) {
	s := NewMemoryApprovalStore()
	if _, ok := s.Get("s1"); ok {
		t.Fatal("expected empty store")
	}
	p := NewPendingApproval("s1", "t1", "change_directory", "outside-workspace", "/tmp", nil)
	s.Set("s1", p)
	got, ok := s.Get("s1")
	if !ok || got.ToolName != "change_directory" {
		t.Fatalf("got %+v ok=%v", got, ok)
	}
	s.Clear("s1")
	if _, ok := s.Get("s1"); ok {
		t.Fatal("expected cleared store")
	}
}
