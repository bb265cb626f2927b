// ABOUTME: HTML export of a transcript
// ABOUTME: Assistant replies are markdown and go through goldmark; user text is escaped

package transcript

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/metrosha-gateway/internal/store"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

var pageTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="ru">
<head>
<meta charset="utf-8">
<title>Метроша: история диалога</title>
</head>
<body>
<main class="transcript" data-identity="{{.IdentityID}}">
{{- range .Messages}}
<section class="message {{.Role}}">
{{- if .IsAI}}
{{.HTML}}
{{- else}}
<p>{{.Text}}</p>
{{- end}}
</section>
{{- end}}
</main>
</body>
</html>
`))

type renderedMessage struct {
	Role string
	IsAI bool
	Text string
	HTML template.HTML
}

// RenderHTML renders t as a standalone HTML page.
func RenderHTML(t *store.Transcript) ([]byte, error) {
	data := struct {
		IdentityID string
		Messages   []renderedMessage
	}{IdentityID: t.IdentityID}

	for _, msg := range t.Messages {
		rm := renderedMessage{Role: string(msg.Role), Text: msg.Content}
		if msg.Role == store.MessageRoleAI {
			var buf bytes.Buffer
			if err := markdown.Convert([]byte(msg.Content), &buf); err != nil {
				return nil, fmt.Errorf("converting markdown: %w", err)
			}
			rm.IsAI = true
			// goldmark omits raw HTML unless configured with html.WithUnsafe
			rm.HTML = template.HTML(buf.String())
		}
		data.Messages = append(data.Messages, rm)
	}

	var out bytes.Buffer
	if err := pageTemplate.Execute(&out, data); err != nil {
		return nil, fmt.Errorf("rendering transcript: %w", err)
	}
	return out.Bytes(), nil
}
