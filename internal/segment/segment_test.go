package segment

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"english", "Hello world. How are you? I am fine!", []string{"Hello world.", "How are you?", "I am fine!"}},
		{"chinese", "你好。你好嗎？我很好！", []string{"你好。", "你好嗎？", "我很好！"}},
		{"no delimiter", "Just a phrase", []string{"Just a phrase"}},
		{"trailing text", "One. Two", []string{"One.", "Two"}},
		{"empty", "", nil},
		{"whitespace only", "  \n\t ", nil},
		{"leading whitespace", "   Hi. There.", []string{"Hi.", "There."}},
		{"zero width separator", "One.\u200bTwo.", []string{"One.", "Two."}},
		{"no space after delimiter", "One.Two.", []string{"One.", "Two."}},
		{"delimiter run", "Really?! Yes...", []string{"Really?!", "Yes..."}},
		{"mixed scripts", "Hello. 你好。", []string{"Hello.", "你好。"}},
		{"newlines", "Line one.\n\nLine two?", []string{"Line one.", "Line two?"}},
		{"lone delimiters", ". . .", []string{".", ".", "."}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Split(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Split(%q) = %#v, want %#v", tc.in, got, tc.want)
			}
		})
	}
}

func TestSplitDecimalLimitation(t *testing.T) {
	got := Split("Pi is 3.14 roughly.")
	want := []string{"Pi is 3.", "14 roughly."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected decimal point to split, got %#v", got)
	}
}

func TestSplitPreservesContent(t *testing.T) {
	in := "First one. Second,  two? 第三句！ trailing words"
	got := Split(in)
	strip := func(s string) string { return strings.Join(strings.Fields(s), "") }
	if strip(strings.Join(got, "")) != strip(in) {
		t.Fatalf("content changed: %#v", got)
	}
	for _, s := range got {
		if strings.TrimSpace(s) != s || s == "" {
			t.Fatalf("sentence %q not trimmed", s)
		}
	}
}

func TestSplitRestartable(t *testing.T) {
	in := "A. B. C."
	first := Split(in)
	second := Split(in)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results, got %#v and %#v", first, second)
	}
}
