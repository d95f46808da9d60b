package llm

import (
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantJSON   string
		wantMethod string
		wantOK     bool
	}{
		{
			name:       "strict_object",
			input:      `{"improved_prompt": "x", "confidence": 0.9}`,
			wantJSON:   `{"improved_prompt": "x", "confidence": 0.9}`,
			wantMethod: MethodStrict,
			wantOK:     true,
		},
		{
			name:       "strict_with_whitespace",
			input:      "\n  {\"a\": 1}  \n",
			wantJSON:   `{"a": 1}`,
			wantMethod: MethodStrict,
			wantOK:     true,
		},
		{
			name:       "fenced_json",
			input:      "Here you go:\n```json\n{\"a\": 1}\n```\nDone.",
			wantJSON:   `{"a": 1}`,
			wantMethod: MethodFenced,
			wantOK:     true,
		},
		{
			name:       "fenced_bare",
			input:      "```\n{\"a\": 1}\n```",
			wantJSON:   `{"a": 1}`,
			wantMethod: MethodFenced,
			wantOK:     true,
		},
		{
			name:       "tagged",
			input:      "Sure.\n<json>{\"a\": 1}</json>",
			wantJSON:   `{"a": 1}`,
			wantMethod: MethodTagged,
			wantOK:     true,
		},
		{
			name:       "balanced_in_prose",
			input:      `The result is {"a": {"b": "c"}} as requested.`,
			wantJSON:   `{"a": {"b": "c"}}`,
			wantMethod: MethodBalanced,
			wantOK:     true,
		},
		{
			name:       "balanced_with_brace_in_string",
			input:      `noise {"key": "has } inside"} more`,
			wantJSON:   `{"key": "has } inside"}`,
			wantMethod: MethodBalanced,
			wantOK:     true,
		},
		{
			name:       "balanced_with_escaped_quote",
			input:      `x {"key": "a \" b"} y`,
			wantJSON:   `{"key": "a \" b"}`,
			wantMethod: MethodBalanced,
			wantOK:     true,
		},
		{
			name:   "apostrophe_before_object",
			input:  `It's here: {"a": 1}`,
			wantJSON:   `{"a": 1}`,
			wantMethod: MethodBalanced,
			wantOK: true,
		},
		{
			name:   "no_json",
			input:  "I cannot help with that.",
			wantOK: false,
		},
		{
			name:   "unterminated",
			input:  `{"a": 1`,
			wantOK: false,
		},
		{
			name:   "empty",
			input:  "   ",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, method, ok := ExtractJSON(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !tt.wantOK {
				return
			}
			if got != tt.wantJSON {
				t.Errorf("json = %q, want %q", got, tt.wantJSON)
			}
			if method != tt.wantMethod {
				t.Errorf("method = %q, want %q", method, tt.wantMethod)
			}
		})
	}
}

func TestFirstBalancedObjectIgnoresDanglingBraces(t *testing.T) {
	got := firstBalancedObject(`} {"a": 1} {`)
	if got != `{"a": 1}` {
		t.Errorf("got %q", got)
	}
}
