package browsertest

import (
	"fmt"
	"strings"
)

// The fixtures below mirror the structure of the clinic's booking pages.

// LoginPage lists the subjects by patient code and offers a login button.
func LoginPage(codes ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><form action="/login">`)
	for _, c := range codes {
		fmt.Fprintf(&b, `<label><input type="radio" name="patient" value="%s"> 患者番号 %s</label>`, c, c)
	}
	b.WriteString(`<button type="submit">ログイン</button></form></body></html>`)
	return b.String()
}

// WaitingPage is the top page before the booking window opens.
const WaitingPage = `<html><body><p>受付開始までお待ちください</p></body></html>`

// OpenPage is the top page once booking is live. spaced selects the "予 約" label.
func OpenPage(spaced bool) string {
	label := "予約"
	if spaced {
		label = "予 約"
	}
	return `<html><body><button class="btn">` + label + `</button></body></html>`
}

// Row is one line of an availability table; an empty Glyph means no link.
type Row struct {
	Label string
	Glyph string
}

// TablePage renders an availability table.
func TablePage(rows ...Row) string {
	var b strings.Builder
	b.WriteString(`<html><body><table>`)
	for _, r := range rows {
		if r.Glyph == "" {
			fmt.Fprintf(&b, `<tr><td>%s</td><td>×</td></tr>`, r.Label)
			continue
		}
		fmt.Fprintf(&b, `<tr><td>%s</td><td><a href="#">%s</a></td></tr>`, r.Label, r.Glyph)
	}
	b.WriteString(`</table></body></html>`)
	return b.String()
}

// ConfirmPage carries the control that advances to the final screen.
const ConfirmPage = `<html><body><p>内容をご確認ください</p><button type="submit">確認へ進む</button></body></html>`

// FinalPage carries the final reserve button.
const FinalPage = `<html><body><p>この内容で予約します</p><button>予 約</button></body></html>`

// DonePage is shown after the final commit.
const DonePage = `<html><body><h1>予約が完了しました</h1></body></html>`
