package locator

import (
	"context"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// diagnose logs a compact picture of the current page when a required role
// cannot be resolved, so cascade drift in the target markup can be debugged
// from logs alone.
func (l *Locator) diagnose(ctx context.Context, role Role) {
	log := l.logger.With(zap.String("role", string(role)))

	url, title, err := l.drv.Location(ctx)
	if err == nil {
		log = log.With(zap.String("url", url), zap.String("title", title))
	}

	raw, err := l.drv.OuterHTML(ctx)
	if err != nil {
		log.Warn("Role not found; page source unavailable", zap.Error(err))
		return
	}

	doc, err := htmlquery.Parse(strings.NewReader(raw))
	if err != nil {
		log.Warn("Role not found; page source unparseable", zap.Error(err))
		return
	}

	inputs := htmlquery.Find(doc, "//input")
	buttons := htmlquery.Find(doc, "//button")

	log.Warn("Role not found on page",
		zap.Int("input_count", len(inputs)),
		zap.Int("button_count", len(buttons)),
		zap.Strings("inputs", summarizeInputs(inputs)),
		zap.Strings("buttons", summarizeButtons(buttons)))
}

// summarizeInputs renders "type/name/placeholder" per input, capped so the
// log line stays readable on dense pages.
func summarizeInputs(nodes []*html.Node) []string {
	const maxItems = 20
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if len(out) >= maxItems {
			break
		}
		out = append(out, strings.Join([]string{
			htmlquery.SelectAttr(n, "type"),
			htmlquery.SelectAttr(n, "name"),
			htmlquery.SelectAttr(n, "placeholder"),
		}, "/"))
	}
	return out
}

func summarizeButtons(nodes []*html.Node) []string {
	const maxItems = 20
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if len(out) >= maxItems {
			break
		}
		text := strings.TrimSpace(htmlquery.InnerText(n))
		if len(text) > 40 {
			text = text[:40]
		}
		out = append(out, text)
	}
	return out
}
