// Package xcal holds the element vocabulary of xCal, the XML form of
// iCalendar (RFC 6321).
package xcal

import (
	"strings"
	"time"

	"github.com/beevik/etree"
)

// Namespace is the xCal namespace
const Namespace = "urn:ietf:params:xml:ns:icalendar-2.0"

// Value type elements
const (
	TypeText     = "text"
	TypeDate     = "date"
	TypeDateTime = "date-time"
	TypeInteger  = "integer"
	TypeRecur    = "recur"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04:05Z"
)

// NewDocument returns a document with an XML declaration and an empty
// <icalendar> root in the xCal namespace.
func NewDocument() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.CreateElement("icalendar")
	AddNamespaces(doc)
	return doc
}

// AddNamespaces sets the xCal namespace as the default namespace of the root
func AddNamespaces(doc *etree.Document) {
	root := doc.Root()
	if root == nil {
		return
	}
	root.CreateAttr("xmlns", Namespace)
}

// Date writes a <date> value.
func Date(parent *etree.Element, t time.Time) *etree.Element {
	el := parent.CreateElement(TypeDate)
	el.SetText(t.Format(dateLayout))
	return el
}

// DateTime writes a UTC <date-time> value.
func DateTime(parent *etree.Element, t time.Time) *etree.Element {
	el := parent.CreateElement(TypeDateTime)
	el.SetText(t.UTC().Format(dateTimeLayout))
	return el
}

// Text writes a <text> value.
func Text(parent *etree.Element, s string) *etree.Element {
	el := parent.CreateElement(TypeText)
	el.SetText(s)
	return el
}

// Recur writes a <recur> value from an RRULE value such as
// "FREQ=WEEKLY;BYDAY=TU,TH". List parts become repeated elements and UNTIL is
// rewritten in xCal date or date-time form.
func Recur(parent *etree.Element, value string) *etree.Element {
	el := parent.CreateElement(TypeRecur)
	for _, part := range strings.Split(value, ";") {
		key, val, ok := strings.Cut(part, "=")
		if !ok || key == "" {
			continue
		}
		key = strings.ToLower(key)
		if key == "until" {
			el.CreateElement(key).SetText(untilText(val))
			continue
		}
		for _, v := range strings.Split(val, ",") {
			el.CreateElement(key).SetText(v)
		}
	}
	return el
}

func untilText(v string) string {
	if t, err := time.Parse("20060102T150405Z", v); err == nil {
		return t.Format(dateTimeLayout)
	}
	if t, err := time.Parse("20060102", v); err == nil {
		return t.Format(dateLayout)
	}
	return v
}
