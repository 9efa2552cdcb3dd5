package email

import (
	"bytes"
	"fmt"
	"html/template"
)

// NotificationData fills the notification mail template.
type NotificationData struct {
	AppName   string
	Title     string
	Body      string
	ActionURL string
}

var notificationTmpl = template.Must(template.New("notification").Parse(notificationEmailTemplate))

// RenderNotification returns the plain text and HTML bodies for d.
func RenderNotification(d NotificationData) (text, html string, err error) {
	var buf bytes.Buffer
	if err := notificationTmpl.Execute(&buf, d); err != nil {
		return "", "", fmt.Errorf("render notification template: %w", err)
	}
	text = d.Title + "\r\n\r\n" + d.Body
	if d.ActionURL != "" {
		text += "\r\n\r\n" + d.ActionURL
	}
	return text, buf.String(), nil
}

const notificationEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #5865f2; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #5865f2; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>{{.Title}}</h2>

    <p>{{.Body}}</p>
    {{if .ActionURL}}
    <p>
        <a href="{{.ActionURL}}" class="button">Open in {{.AppName}}</a>
    </p>
    {{end}}
    <div class="footer">
        <p>You can change which emails you receive in your notification settings.</p>
    </div>
</body>
</html>`
