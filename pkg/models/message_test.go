package models

import (
	"encoding/json"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		ID:        "m1",
		SessionID: "s1",
		Role:      RoleGhost,
		Blocks: []ContentBlock{
			TextBlock{Text: "looking now"},
			ToolUseBlock{ID: "t1", Name: "read_file", Input: json.RawMessage(`{"path":"a.txt"}`)},
			ToolResultBlock{ToolUseID: "t1", Content: "hello"},
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(got.Blocks))
	}
	if got.Text() != "looking now" {
		t.Errorf("Text() = %q", got.Text())
	}
	uses := got.ToolUses()
	if len(uses) != 1 || uses[0].Name != "read_file" {
		t.Errorf("ToolUses() = %+v", uses)
	}
	result, ok := got.Blocks[2].(ToolResultBlock)
	if !ok || result.ToolUseID != "t1" || result.Content != "hello" {
		t.Errorf("ToolResultBlock round trip wrong: %+v ok=%v", result, ok)
	}
}

func TestSessionKey(t *testing.T) {
	k := SessionKey("ghost-1", InterfaceTelegram, "12345")
	if k != "ghost-1:telegram:12345" {
		t.Errorf("SessionKey = %q", k)
	}
}
