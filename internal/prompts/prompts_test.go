package prompts

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeOverrides map[string]string

func (f fakeOverrides) PromptOverride(ctx context.Context, subjectID, key string) (string, error) {
	if subjectID == "broken" {
		return "", errors.New("db down")
	}
	return f[subjectID+"/"+key], nil
}

func TestExtractVariables(t *testing.T) {
	got := ExtractVariables("{{.B}} and {{ .A }} and {{.B}} and {{.Nested.Field}}")
	want := []string{"A", "B", "Nested.Field"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ExtractVariables() = %v, want %v", got, want)
	}
}

func TestRender(t *testing.T) {
	out, err := Render("t", "Hello {{.Name}}", struct{ Name string }{"Ada"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "Hello Ada" {
		t.Errorf("Render() = %q", out)
	}
	if _, err := Render("bad", "{{.Name", nil); err == nil {
		t.Error("expected parse error")
	}
}

func TestResolver(t *testing.T) {
	overrides := fakeOverrides{"math-101/k.user": "Custom {{.X}}"}
	r := NewResolver(overrides, nil)
	r.Register(EmbeddedPrompt{Key: "k.user", Text: "Default {{.X}}"})

	t.Run("embedded default", func(t *testing.T) {
		p, err := r.Resolve(context.Background(), "k.user", "other")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if p.IsOverride || p.Text != "Default {{.X}}" {
			t.Errorf("Resolve() = %+v", p)
		}
		if len(p.Variables) != 1 || p.Hash != HashText("Default {{.X}}") {
			t.Errorf("registration did not fill variables/hash: %+v", p)
		}
	})

	t.Run("subject override", func(t *testing.T) {
		out, err := r.Render(context.Background(), "k.user", "math-101", map[string]string{"X": "1"})
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if out != "Custom 1" {
			t.Errorf("Render() = %q", out)
		}
	})

	t.Run("override lookup failure falls back", func(t *testing.T) {
		p, err := r.Resolve(context.Background(), "k.user", "broken")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if p.IsOverride {
			t.Error("expected embedded default")
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		if _, err := r.Resolve(context.Background(), "missing", ""); err == nil {
			t.Error("expected error for unknown key")
		}
	})
}
