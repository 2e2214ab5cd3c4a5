package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/emersion/go-ical"

	"github.com/cyp0633/librecur/internal/xcal"
)

// XCal converts cal into an xCal document.
func XCal(cal *ical.Calendar) (*etree.Document, error) {
	doc := xcal.NewDocument()
	if err := writeComponent(doc.Root(), cal.Component); err != nil {
		return nil, err
	}
	return doc, nil
}

// EncodeXCal writes cal as indented xCal.
func EncodeXCal(w io.Writer, cal *ical.Calendar) error {
	doc, err := XCal(cal)
	if err != nil {
		return err
	}
	doc.Indent(2)
	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("write xcal: %w", err)
	}
	return nil
}

func writeComponent(parent *etree.Element, c *ical.Component) error {
	el := parent.CreateElement(strings.ToLower(c.Name))

	names := make([]string, 0, len(c.Props))
	for name := range c.Props {
		names = append(names, name)
	}
	sort.Strings(names)

	props := el.CreateElement("properties")
	for _, name := range names {
		for _, p := range c.Props[name] {
			if err := writeProp(props, p); err != nil {
				return fmt.Errorf("%s: %w", c.Name, err)
			}
		}
	}

	if len(c.Children) > 0 {
		comps := el.CreateElement("components")
		for _, child := range c.Children {
			if err := writeComponent(comps, child); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeProp(parent *etree.Element, p ical.Prop) error {
	el := parent.CreateElement(strings.ToLower(p.Name))
	switch p.ValueType() {
	case ical.ValueDate:
		t, err := time.Parse("20060102", p.Value)
		if err != nil {
			return fmt.Errorf("property %s: %w", p.Name, err)
		}
		xcal.Date(el, t)
	case ical.ValueDateTime:
		t, err := p.DateTime(time.UTC)
		if err != nil {
			return fmt.Errorf("property %s: %w", p.Name, err)
		}
		xcal.DateTime(el, t)
	case ical.ValueRecurrence:
		xcal.Recur(el, p.Value)
	case ical.ValueInt:
		el.CreateElement(xcal.TypeInteger).SetText(p.Value)
	default:
		text, err := p.Text()
		if err != nil {
			return fmt.Errorf("property %s: %w", p.Name, err)
		}
		xcal.Text(el, text)
	}
	return nil
}
