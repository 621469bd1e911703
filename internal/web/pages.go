package web

// pages.go renders the two HTML pages. They are small enough to build
// directly as templ components.

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/addrnorm/internal/core"
	"github.com/JonMunkholm/addrnorm/internal/rules"
)

const pageStyle = `body{font-family:system-ui,sans-serif;max-width:48rem;margin:2rem auto;padding:0 1rem;color:#1f2933}
h1{font-size:1.5rem}table{border-collapse:collapse}td,th{border:1px solid #cbd2d9;padding:.25rem .5rem;text-align:left}
.alert{border:1px solid #e12d39;background:#ffe3e3;padding:1rem}.muted{color:#616e7c}`

func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<!doctype html><html lang="en"><head><meta charset="utf-8"><title>%s</title><style>%s</style></head><body>`,
			templ.EscapeString(title), pageStyle); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

// indexPage is the upload form.
func indexPage(defaultMode string, enrichAvailable bool) templ.Component {
	return layout("Address normalizer", templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		enrich := `<p class="muted">Enrichment is not configured on this server.</p>`
		if enrichAvailable {
			enrich = `<p><label><input type="checkbox" name="enrich" value="true"> Enrich with the address parser</label></p>`
		}
		addrOnly, extended := " selected", ""
		if defaultMode == "extended" {
			addrOnly, extended = "", " selected"
		}
		_, err := fmt.Fprintf(w, `<h1>Address normalizer</h1>
<p>Upload a CSV or XLSX file with any of the columns address, country, region, district, locality, street, zip.</p>
<form method="post" action="/api/normalize" enctype="multipart/form-data">
<p><input type="file" name="file" accept=".csv,.txt,.xlsx,.xlsm" required></p>
<p><label>Output <select name="mode"><option value="addr-only"%s>Input columns + normalized address</option><option value="extended"%s>Normalized fields only</option></select></label></p>
<p><label>Format <select name="format"><option value="csv">CSV</option><option value="xlsx">XLSX</option></select></label></p>
%s
<p><button type="submit">Normalize</button></p>
</form>
<p class="muted">The response carries an X-Batch-ID header; the change report is at /api/batches/{id}/report. <a href="/profile">Rule profile</a></p>`,
			addrOnly, extended, enrich)
		return err
	}))
}

// profilePage shows rule profile diagnostics.
func profilePage(st rules.Stats, enrichURL string) templ.Component {
	return layout("Rule profile", templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		path := st.Path
		if path == "" {
			path = "(not found)"
		}
		rows := []struct {
			k string
			v any
		}{
			{"Profile", path},
			{"Street table", st.StreetAbbrPath},
			{"Loaded", st.Loaded},
			{"Countries", st.Countries},
			{"Country aliases", st.CountryAliases},
			{"ZIP rules", st.ZipCountries},
			{"Region tables", st.RegionTables},
			{"Latin abbreviations", st.LatinAbbr},
			{"Cyrillic abbreviations", st.CyrillicAbbr},
			{"Enrichment", enrichURL},
		}
		if _, err := io.WriteString(w, `<h1>Rule profile</h1><table>`); err != nil {
			return err
		}
		for _, r := range rows {
			if _, err := fmt.Fprintf(w, `<tr><th>%s</th><td>%s</td></tr>`,
				templ.EscapeString(r.k), templ.EscapeString(fmt.Sprint(r.v))); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</table><p><a href="/">Back</a></p>`)
		return err
	}))
}

// errorPage renders a user-facing error.
func errorPage(msg core.UserMessage) templ.Component {
	return layout("Error", templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div class="alert"><p><strong>%s</strong></p><p>%s</p><p class="muted">Code: %s</p></div><p><a href="/">Back</a></p>`,
			templ.EscapeString(msg.Message), templ.EscapeString(msg.Action), templ.EscapeString(msg.Code))
		return err
	}))
}
