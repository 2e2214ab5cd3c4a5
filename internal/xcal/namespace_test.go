package xcal

import (
	"testing"
	"time"

	"github.com/beevik/etree"
)

func TestAddNamespaces(t *testing.T) {
	tests := []struct {
		name     string
		setup    func() *etree.Document
		wantAttr map[string]string
	}{
		{
			name: "add namespace to empty document with root",
			setup: func() *etree.Document {
				doc := etree.NewDocument()
				doc.CreateElement("icalendar")
				return doc
			},
			wantAttr: map[string]string{"xmlns": Namespace},
		},
		{
			name: "keeps existing attributes",
			setup: func() *etree.Document {
				doc := etree.NewDocument()
				root := doc.CreateElement("icalendar")
				root.CreateAttr("xmlns:custom", "http://example.com/ns")
				return doc
			},
			wantAttr: map[string]string{
				"xmlns":        Namespace,
				"xmlns:custom": "http://example.com/ns",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := tt.setup()
			AddNamespaces(doc)

			root := doc.Root()
			if root == nil {
				t.Fatal("expected root element")
			}
			for key, want := range tt.wantAttr {
				if got := root.SelectAttrValue(key, ""); got != want {
					t.Errorf("attribute %s = %q, want %q", key, got, want)
				}
			}
		})
	}

	// no root, nothing to do
	AddNamespaces(etree.NewDocument())
}

func TestRecur(t *testing.T) {
	doc := NewDocument()
	Recur(doc.Root(), "FREQ=WEEKLY;BYDAY=TU,TH;UNTIL=20260131T235959Z;COUNT")

	recur := doc.Root().SelectElement("recur")
	if recur == nil {
		t.Fatal("missing recur element")
	}
	want := []struct{ tag, text string }{
		{"freq", "WEEKLY"},
		{"byday", "TU"},
		{"byday", "TH"},
		{"until", "2026-01-31T23:59:59Z"},
	}
	children := recur.ChildElements()
	if len(children) != len(want) {
		t.Fatalf("got %d children, want %d", len(children), len(want))
	}
	for i, w := range want {
		if children[i].Tag != w.tag || children[i].Text() != w.text {
			t.Errorf("child %d = <%s>%s, want <%s>%s", i, children[i].Tag, children[i].Text(), w.tag, w.text)
		}
	}
}

func TestValues(t *testing.T) {
	doc := NewDocument()
	root := doc.Root()
	at := time.Date(2026, 1, 20, 9, 30, 0, 0, time.FixedZone("CET", 3600))

	if got := Date(root, at).Text(); got != "2026-01-20" {
		t.Errorf("Date = %q", got)
	}
	if got := DateTime(root, at).Text(); got != "2026-01-20T08:30:00Z" {
		t.Errorf("DateTime = %q", got)
	}
	if got := Text(root, "a & b").Text(); got != "a & b" {
		t.Errorf("Text = %q", got)
	}
	if untilText("20260131") != "2026-01-31" || untilText("junk") != "junk" {
		t.Error("untilText did not convert dates")
	}
}
