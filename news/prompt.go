package news

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/c360studio/newsdesk/llm"
)

const newsSystem = `You are a technology news editor. You answer with JSON only, no commentary.`

const newsTemplate = `Write up to {{.Max}} short news items{{if .Job.Topic}} about {{.Job.Topic}}{{end}}.
Date: {{.Now.Format "2006-01-02"}}.
{{- if .SourceText}}

Base every item on this source material:

{{.SourceText}}
{{- end}}

Respond with a JSON object of the form:
{"items": [{"title": "...", "summary": "...", "content": "...", "source": "...", "url": "...", "tags": ["..."], "published_at": "YYYY-MM-DD"}]}
title and summary are required.`

const tutorialSystem = `You are a senior engineer writing practical tutorials. You answer with JSON only, no commentary.`

const tutorialTemplate = `Write up to {{.Max}} tutorials{{if .Job.Topic}} about {{.Job.Topic}}{{end}}.
{{- if .SourceText}}

Use this source material:

{{.SourceText}}
{{- end}}

Respond with a JSON object of the form:
{"tutorials": [{"title": "...", "summary": "...", "body": "markdown", "difficulty": "{{join .Difficulties "|"}}", "tags": ["..."]}]}
title, summary and body are required.`

// defaultMaxPrompted is the item count asked for when a job has no cap.
const defaultMaxPrompted = 10

// TemplatePrompt builds a PromptFunc from a system instruction and a
// text/template for the user prompt. The template sees .Job, .SourceText,
// .Now, .Max and .Difficulties, plus a join function.
func TemplatePrompt(system, userTemplate string) (PromptFunc, error) {
	tmpl, err := template.New("prompt").Funcs(template.FuncMap{
		"join": strings.Join,
	}).Parse(userTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}

	return func(in PromptInput) (llm.Request, error) {
		maxItems := in.Job.MaxItems
		if maxItems <= 0 {
			maxItems = defaultMaxPrompted
		}
		data := map[string]any{
			"Job":          in.Job,
			"SourceText":   in.SourceText,
			"Now":          in.Now,
			"Max":          maxItems,
			"Difficulties": Difficulties,
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return llm.Request{}, fmt.Errorf("render prompt: %w", err)
		}
		return llm.Request{System: system, Prompt: strings.TrimSpace(buf.String())}, nil
	}, nil
}

// DefaultPrompt renders the built-in prompt for the job's kind.
func DefaultPrompt(in PromptInput) (llm.Request, error) {
	switch in.Job.Kind {
	case KindTutorial:
		return tutorialPrompt(in)
	default:
		return newsPrompt(in)
	}
}

var (
	newsPrompt     = mustTemplatePrompt(newsSystem, newsTemplate)
	tutorialPrompt = mustTemplatePrompt(tutorialSystem, tutorialTemplate)
)

func mustTemplatePrompt(system, userTemplate string) PromptFunc {
	fn, err := TemplatePrompt(system, userTemplate)
	if err != nil {
		panic(err)
	}
	return fn
}
