package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var (
	resetHTML = template.Must(template.New("reset").Parse(
		`<p>Hi {{.Name}},</p><p>Someone asked to reset your feedcast password. ` +
			`<a href="{{.URL}}">Choose a new password</a>. The link expires in {{.TTL}}.</p>` +
			`<p>If this wasn't you, ignore this email.</p>`))
	publishedHTML = template.Must(template.New("published").Parse(
		`<p>A new episode of <b>{{.Job}}</b> is ready: <a href="{{.URL}}">{{.Title}}</a></p>` +
			`{{if .Description}}<p>{{.Description}}</p>{{end}}`))
)

func PasswordResetMessage(to, name, resetURL string, ttl time.Duration) Message {
	data := map[string]any{"Name": name, "URL": resetURL, "TTL": ttl.String()}
	return Message{
		To:      to,
		Subject: "Reset your feedcast password",
		Text: fmt.Sprintf("Hi %s,\n\nReset your password here: %s\nThe link expires in %s.\n\nIf this wasn't you, ignore this email.\n",
			name, resetURL, ttl),
		HTML: render(resetHTML, data),
	}
}

func EpisodePublishedMessage(to, jobName, title, description, audioURL string) Message {
	data := map[string]any{"Job": jobName, "Title": title, "Description": description, "URL": audioURL}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("New episode: %s", title),
		Text:    fmt.Sprintf("A new episode of %s is ready: %s\n%s\n\n%s\n", jobName, title, audioURL, description),
		HTML:    render(publishedHTML, data),
	}
}

func render(t *template.Template, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}
