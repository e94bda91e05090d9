package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"quill/internal/queue"
	"quill/internal/services"
	"quill/internal/stage"
	"quill/internal/workflow"
)

func TestPrintOutcomeListsStepsAndHint(t *testing.T) {
	err := services.Wrap(services.ErrTimeout, "generate", "execute", "deadline exceeded", nil)
	outcome := &workflow.Outcome{
		RequestID: "0190aabbccddeeff",
		Item:      &queue.Item{Keyword: "coffee grinders"},
		Status:    queue.StatusFailed,
		Steps: []workflow.StepResult{
			{Stage: stage.Generate, Status: workflow.StepFailed, Fatal: true, Duration: 2 * time.Second, Err: err},
			{Stage: stage.Illustrate, Status: workflow.StepSkipped, Detail: "not reached"},
		},
		Err:      err,
		Duration: 2 * time.Second,
	}

	var buf bytes.Buffer
	printOutcome(&buf, outcome)
	out := buf.String()
	for _, want := range []string{"Run 0190aabb: coffee grinders (failed)", "generate", "illustrate", "skipped", "Hint:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if runFailure(outcome) == nil {
		t.Fatal("expected failed outcome to produce an error")
	}
	if runFailure(&workflow.Outcome{Status: queue.StatusPublished}) != nil {
		t.Fatal("published outcome must not be an error")
	}
}

func TestShortID(t *testing.T) {
	cases := map[string]string{
		"":           "-",
		"abc":        "abc",
		"0123456789": "01234567",
	}
	for in, want := range cases {
		if got := shortID(in); got != want {
			t.Fatalf("shortID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteTableAlignsNumericAndWrapsDetail(t *testing.T) {
	var buf bytes.Buffer
	detail := strings.Repeat("word ", 30)
	writeTable(&buf, []string{"Stage", "Count", "Detail"}, [][]string{
		{"gate", "7", detail},
		{"publish"},
	}, 1)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	for _, line := range lines {
		if n := len([]rune(line)); n > freeTextWidth+30 {
			t.Fatalf("expected wrapped detail, got %d-rune line %q", n, line)
		}
	}
	var countLine string
	for _, line := range lines {
		if strings.Contains(line, "gate") {
			countLine = line
		}
	}
	if !strings.Contains(countLine, "     7 │") {
		t.Fatalf("expected right aligned count in %q", countLine)
	}
	if !strings.Contains(buf.String(), "publish") {
		t.Fatalf("expected short row to render, got:\n%s", buf.String())
	}
}
