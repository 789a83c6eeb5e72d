package core

import (
	"encoding/json"
	"testing"
)

func TestMessage_TextConcatenatesTextAtomsOnly(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []MessageContent{
			{Content: NewText("hello ")},
			{Content: NewImage("base64data", "image/png")},
			{Content: NewText("world")},
		},
	}
	if got := msg.Text(); got != "hello world" {
		t.Fatalf("Text() = %q, want %q", got, "hello world")
	}
}

func TestMessage_ToolRequestsAndResponses(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []MessageContent{
			NewToolRequest("a", &ToolCall{Name: "sys__tool", Arguments: json.RawMessage(`{}`)}, nil),
			{Content: NewText("thinking")},
		},
	}
	reqs := msg.ToolRequests()
	if len(reqs) != 1 || reqs[0].ToolRequestID != "a" {
		t.Fatalf("unexpected tool requests: %+v", reqs)
	}

	respMsg := Message{
		Role:    RoleUser,
		Content: []MessageContent{NewToolResponse("a", []Content{NewText("ok")}, nil)},
	}
	resps := respMsg.ToolResponses()
	if len(resps) != 1 || resps[0].ToolResponseID != "a" {
		t.Fatalf("unexpected tool responses: %+v", resps)
	}
}

func TestMessage_HasTextContent(t *testing.T) {
	empty := Message{Content: []MessageContent{{Content: NewText("")}}}
	if empty.HasTextContent() {
		t.Fatal("expected no text content for an empty Text atom")
	}
	withText := Message{Content: []MessageContent{{Content: NewText("hi")}}}
	if !withText.HasTextContent() {
		t.Fatal("expected text content to be detected")
	}
}

func TestUserTextAndAssistantTextBuilders(t *testing.T) {
	u := UserText("hi", 42)
	if u.Role != RoleUser || u.Created != 42 || u.Text() != "hi" {
		t.Fatalf("unexpected UserText result: %+v", u)
	}
	a := AssistantText("hello", 7)
	if a.Role != RoleAssistant || a.Text() != "hello" {
		t.Fatalf("unexpected AssistantText result: %+v", a)
	}
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	original := Message{
		Role:    RoleAssistant,
		Created: 100,
		Content: []MessageContent{
			NewToolRequest("id-1", &ToolCall{Name: "dev__shell", Arguments: json.RawMessage(`{"cmd":"ls"}`)}, nil),
		},
	}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Content[0].ToolRequestID != "id-1" {
		t.Fatalf("tool request id not preserved: %+v", decoded)
	}
	if decoded.Content[0].ToolCall.Call.Name != "dev__shell" {
		t.Fatalf("tool call name not preserved: %+v", decoded.Content[0].ToolCall)
	}
}

func TestContent_ClampPriority(t *testing.T) {
	above := 1.5
	c := Content{Priority: &above}
	c.ClampPriority()
	if *c.Priority != 1 {
		t.Fatalf("expected priority clamped to 1, got %v", *c.Priority)
	}

	below := -0.5
	c2 := Content{Priority: &below}
	c2.ClampPriority()
	if *c2.Priority != 0 {
		t.Fatalf("expected priority clamped to 0, got %v", *c2.Priority)
	}

	var nilC Content
	nilC.ClampPriority()
	if nilC.Priority != nil {
		t.Fatal("expected nil priority to remain untouched")
	}
}
