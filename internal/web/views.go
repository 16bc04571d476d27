package web

import (
	"context"
	"fmt"
	"io"

	"github.com/JonMunkholm/rosterimport/internal/core"
	"github.com/a-h/templ"
)

// importResultView renders a finished run as a self-contained HTML fragment.
func importResultView(result *core.ImportResult) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		def, err := core.Definition(result.Kind)
		if err != nil {
			return err
		}

		p := &htmlWriter{w: w}
		p.printf(`<section class="import-result" data-run-id="%s">`, templ.EscapeString(result.RunID))
		p.printf(`<h2>%s import %s</h2>`, templ.EscapeString(def.Label), templ.EscapeString(string(result.State)))
		if result.DryRun {
			p.printf(`<p class="dry-run">Dry run: nothing was saved.</p>`)
		}
		p.printf(`<p>%d of %d rows imported.</p>`, result.Succeeded, result.Total)

		if len(result.Entities) > 0 {
			p.printf(`<table><thead><tr><th>%s</th><th>ID</th></tr></thead><tbody>`, templ.EscapeString(def.CodeLabel))
			for _, e := range result.Entities {
				p.printf(`<tr><td>%s</td><td>%s</td></tr>`, templ.EscapeString(e.Code), templ.EscapeString(e.ID))
			}
			p.printf(`</tbody></table>`)
		}

		p.list("errors", "Errors", result.Errors)
		p.list("warnings", "Warnings", result.Warnings)

		if len(result.EffectErrors) > 0 {
			msgs := make([]string, 0, len(result.EffectErrors))
			for _, fe := range result.EffectErrors {
				msgs = append(msgs, fmt.Sprintf("Row %d: %s: %s", fe.Row, fe.Effect, fe.Message))
			}
			p.list("effect-errors", "Follow-up failures", msgs)
		}

		p.printf(`</section>`)
		return p.err
	})
}

// errorAlert renders a user-facing error message.
func errorAlert(msg core.UserMessage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &htmlWriter{w: w}
		p.printf(`<div class="alert alert-error" role="alert" data-code="%s">`, templ.EscapeString(msg.Code))
		p.printf(`<strong>%s</strong>`, templ.EscapeString(msg.Message))
		if msg.Action != "" {
			p.printf(`<p>%s</p>`, templ.EscapeString(msg.Action))
		}
		p.printf(`</div>`)
		return p.err
	})
}

// htmlWriter keeps the first write error so views can render without
// checking every call.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (p *htmlWriter) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *htmlWriter) list(class, title string, items []string) {
	if len(items) == 0 {
		return
	}
	p.printf(`<div class="%s"><h3>%s</h3><ul>`, class, title)
	for _, item := range items {
		p.printf(`<li>%s</li>`, templ.EscapeString(item))
	}
	p.printf(`</ul></div>`)
}
