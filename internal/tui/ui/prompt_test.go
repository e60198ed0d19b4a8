package ui

import (
	"slices"
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestPromptSubmit(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	type submit struct {
		mode PromptMode
		text string
	}
	var got []submit
	p.SetOnSubmit(func(mode PromptMode, text string) { got = append(got, submit{mode, text}) })

	p.Activate(PromptCommand, "")
	p.done(tcell.KeyEnter)
	p.SetText("single bob")
	p.done(tcell.KeyEnter)

	p.Activate(PromptFilter, "team")
	if p.GetText() != "team" {
		t.Errorf("filter prefill = %q", p.GetText())
	}
	p.SetText("")
	p.done(tcell.KeyEnter)

	want := []submit{{PromptCommand, "single bob"}, {PromptFilter, ""}}
	if !slices.Equal(got, want) {
		t.Errorf("submits = %v, want %v", got, want)
	}
	if !slices.Equal(p.History(), []string{"single bob"}) {
		t.Errorf("history = %v", p.History())
	}
}

func TestPromptHistory(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	for _, cmd := range []string{"wifi on", "help", "help"} {
		p.Activate(PromptCommand, "")
		p.SetText(cmd)
		p.done(tcell.KeyEnter)
	}
	if !slices.Equal(p.History(), []string{"wifi on", "help"}) {
		t.Fatalf("history = %v", p.History())
	}

	p.Activate(PromptCommand, "")
	p.browse(-1)
	p.browse(-1)
	p.browse(-1)
	if p.GetText() != "wifi on" {
		t.Errorf("oldest = %q", p.GetText())
	}
	p.browse(1)
	p.browse(1)
	if p.GetText() != "" {
		t.Errorf("past newest = %q, want empty", p.GetText())
	}
}
