// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func TestForIdCoversAllIds(t *testing.T) {
	for _, id := range Ids() {
		iss, ok := ForId(id)
		if !ok {
			t.Fatalf("ForId(%d) not found", id)
		}
		if iss.Id() != id {
			t.Errorf("issue id = %d, want %d", iss.Id(), id)
		}
		if strings.TrimSpace(string(iss.MarkdownMsg())) == "" {
			t.Errorf("issue %d has an empty message", id)
		}
	}
}

func TestForIdUnknown(t *testing.T) {
	if _, ok := ForId(Id(9999)); ok {
		t.Error("ForId accepted an unknown id")
	}
}

func TestRenderIncludesLinks(t *testing.T) {
	orig := render
	render = func(md string) (string, error) { return md, nil }
	t.Cleanup(func() { render = orig })

	iss, ok := ForId(EditorNotFoundId)
	if !ok {
		t.Fatal("editor-not-found issue missing from catalog")
	}
	out, err := iss.Render()
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}
	if !strings.Contains(out, "See also") {
		t.Error("rendered output lacks the links section")
	}
	for _, link := range iss.DocLinks() {
		if !strings.Contains(out, string(link)) {
			t.Errorf("rendered output lacks link %s", link)
		}
	}
}

func TestLinkAccessorsReturnCopies(t *testing.T) {
	iss, _ := ForId(EditorNotFoundId)
	links := iss.DocLinks()
	if len(links) == 0 {
		t.Fatal("expected doc links")
	}
	links[0] = "mutated"
	if iss.DocLinks()[0] == "mutated" {
		t.Error("DocLinks exposes internal state")
	}
}
