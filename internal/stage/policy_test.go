package stage_test

import (
	"testing"

	"quill/internal/stage"
)

func TestPolicyTable(t *testing.T) {
	cases := map[stage.Name]stage.Policy{
		stage.Generate:   stage.Fatal,
		stage.Illustrate: stage.NonFatal,
		stage.Gate:       stage.NonFatal,
		stage.Publish:    stage.Fatal,
		stage.Announce:   stage.NonFatal,
		stage.Name("x"):  stage.Fatal,
	}
	for name, want := range cases {
		if got := stage.PolicyFor(name); got != want {
			t.Fatalf("PolicyFor(%s) = %s, want %s", name, got, want)
		}
	}
}

func TestFromAndParse(t *testing.T) {
	rest := stage.From(stage.Publish)
	if len(rest) != 2 || rest[0] != stage.Publish || rest[1] != stage.Announce {
		t.Fatalf("unexpected tail %v", rest)
	}
	if stage.From("nope") != nil {
		t.Fatal("expected nil for unknown stage")
	}
	if name, ok := stage.Parse(" Gate "); !ok || name != stage.Gate {
		t.Fatalf("Parse returned %q %v", name, ok)
	}
	if stage.Announce.Index() != 4 || stage.Name("x").Index() != -1 {
		t.Fatal("unexpected index")
	}
}
