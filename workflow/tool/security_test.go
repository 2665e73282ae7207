package tool

import "testing"

func TestSecurity_AllowAll(t *testing.T) {
	s := AllowAllTools()
	if !s.Allows("anything") {
		t.Error("AllowAll should permit any tool name")
	}
}

func TestSecurity_AllowList(t *testing.T) {
	s := NewAllowList("calculator", "web_search")
	if !s.Allows("calculator") {
		t.Error("AllowList should permit a listed tool")
	}
	if s.Allows("shell_exec") {
		t.Error("AllowList should reject an unlisted tool")
	}
}

func TestSecurity_BlockList(t *testing.T) {
	s := NewBlockList("shell_exec")
	if s.Allows("shell_exec") {
		t.Error("BlockList should reject a listed tool")
	}
	if !s.Allows("calculator") {
		t.Error("BlockList should permit an unlisted tool")
	}
}
