// Package locator builds the text-matching element queries used against the
// clinic site, whose class and id names are not stable. Every query is an
// XPath expression so the same query runs in the browser and against
// fixture HTML.
package locator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("element not found")
	ErrTimeout  = errors.New("timed out waiting for element")
)

// Query names an XPath expression.
type Query struct {
	Name  string
	XPath string
}

func (q Query) String() string { return q.Name }

// Glyphs the site uses in availability tables.
const (
	GlyphOpen    = "〇"
	GlyphLimited = "△"
)

// The site renders the reserve label both with and without a space.
var reserveLabels = []string{"予約", "予 約"}

// Literal quotes s as an XPath 1.0 string literal.
func Literal(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ",") + ")"
}

// containsAny is an XPath predicate body matching text containing any needle.
func containsAny(needles ...string) string {
	preds := make([]string, 0, len(needles))
	for _, n := range needles {
		preds = append(preds, "contains(., "+Literal(n)+")")
	}
	return strings.Join(preds, " or ")
}

// TextContains matches tag elements whose text contains any needle.
func TextContains(tag string, needles ...string) Query {
	return Query{
		Name:  fmt.Sprintf("%s containing %s", tag, strings.Join(needles, "|")),
		XPath: fmt.Sprintf("//%s[%s]", tag, containsAny(needles...)),
	}
}

// Body matches the document body.
func Body() Query {
	return Query{Name: "body", XPath: "//body"}
}

// SubjectChooser matches the chooser entry carrying a patient code.
func SubjectChooser(code string) Query {
	lit := Literal(code)
	return Query{
		Name:  "subject " + code,
		XPath: fmt.Sprintf("//label[contains(., %s)] | //button[contains(., %s)]", lit, lit),
	}
}

// LoginButton matches the login control, Japanese or English.
func LoginButton() Query {
	return Query{
		Name:  "login button",
		XPath: "//button[contains(., 'ログイン') or contains(translate(., 'LOGIN', 'login'), 'login')]",
	}
}

// ReserveButton matches the reserve button in either spacing.
func ReserveButton() Query {
	q := TextContains("button", reserveLabels...)
	q.Name = "reserve button"
	return q
}

// SlotRow matches the table cell labelled with an hour band or exact time.
func SlotRow(label string) Query {
	return Query{
		Name:  "row " + label,
		XPath: fmt.Sprintf("//td[contains(., %s)]", Literal(label)),
	}
}

// SlotLink matches the availability link in the row labelled label.
func SlotLink(label string) Query {
	return Query{
		Name: "slot " + label,
		XPath: fmt.Sprintf("//td[contains(., %s)]/following-sibling::td/a[%s]",
			Literal(label), containsAny(GlyphOpen, GlyphLimited)),
	}
}

// ConfirmButton matches the generic confirm/next/submit control.
func ConfirmButton() Query {
	return Query{
		Name:  "confirm button",
		XPath: "//button[contains(., '確認') or contains(., '次へ') or @type='submit']",
	}
}
