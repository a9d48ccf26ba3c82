package extract

import (
	"slices"
	"testing"
)

func TestAll(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "no fences",
			text: "no fences here",
			want: []string{},
		},
		{
			name: "two inline blocks verbatim",
			text: "```yaml\nfoo: 1\n``` text ```yaml\nbar: 2\n```",
			want: []string{"\nfoo: 1\n", "\nbar: 2\n"},
		},
		{
			name: "surrounding whitespace kept",
			text: "```yaml \n  foo: 1\n \n```",
			want: []string{" \n  foo: 1\n \n"},
		},
		{
			name: "other languages ignored",
			text: "```go\nfunc main() {}\n```\n```yaml\nversion: v1.0\n```",
			want: []string{"\nversion: v1.0\n"},
		},
		{
			name: "unterminated final fence",
			text: "```yaml\nfoo: 1\n```\nthen ```yaml\nbar: 2\n",
			want: []string{"\nfoo: 1\n"},
		},
		{
			name: "empty block",
			text: "```yaml```",
			want: []string{""},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := All(tc.text, YAML)
			if !slices.Equal(got, tc.want) {
				t.Errorf("All(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestBlocks_Restartable(t *testing.T) {
	t.Parallel()
	seq := Blocks("```yaml\na: 1\n```\n```yaml\nb: 2\n```", YAML)

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if !slices.Equal(first, second) {
		t.Errorf("second pass = %q, want %q", second, first)
	}
	if len(first) != 2 {
		t.Errorf("len = %d, want 2", len(first))
	}
}

func TestBlocks_EarlyStop(t *testing.T) {
	t.Parallel()
	var got []string
	for b := range Blocks("```yaml\na\n```\n```yaml\nb\n```", YAML) {
		got = append(got, b)
		break
	}
	if len(got) != 1 || got[0] != "\na\n" {
		t.Errorf("got %q, want [\"\\na\\n\"]", got)
	}
}

func TestBlocks_CustomFence(t *testing.T) {
	t.Parallel()
	f := Fence{Marker: "~~~", Tag: "json"}
	got := All("~~~json\n{}\n~~~ and ```yaml\nx: 1\n```", f)
	if !slices.Equal(got, []string{"\n{}\n"}) {
		t.Errorf("got %q", got)
	}
}

func TestMarkdown(t *testing.T) {
	t.Parallel()
	doc := "# Pipelines\n\n```yaml\nversion: v1.0\nblocks: []\n```\n\n```go\nx := 1\n```\n\n```yaml\nagent: {}\n```\n"

	got := Markdown(doc, "yaml")
	want := []string{"version: v1.0\nblocks: []\n", "agent: {}\n"}
	if !slices.Equal(got, want) {
		t.Errorf("Markdown = %q, want %q", got, want)
	}
}

func TestExtract_Mode(t *testing.T) {
	t.Parallel()
	doc := "```yaml\nfoo: 1\n```\n"

	if got := Extract(doc, YAML, ModeRegex); !slices.Equal(got, []string{"\nfoo: 1\n"}) {
		t.Errorf("regex mode = %q", got)
	}
	if got := Extract(doc, YAML, ModeMarkdown); !slices.Equal(got, []string{"foo: 1\n"}) {
		t.Errorf("markdown mode = %q", got)
	}
}
