package news

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPrompt_News(t *testing.T) {
	req, err := DefaultPrompt(PromptInput{
		Job:        Job{Topic: "Go releases", MaxItems: 3},
		SourceText: "Go 1.26 adds generic methods.",
		Now:        time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, newsSystem, req.System)
	assert.Contains(t, req.Prompt, "Write up to 3 short news items about Go releases.")
	assert.Contains(t, req.Prompt, "Date: 2026-02-11.")
	assert.Contains(t, req.Prompt, "Go 1.26 adds generic methods.")
	assert.Contains(t, req.Prompt, `{"items": [`)
	assert.NoError(t, req.Validate())
}

func TestDefaultPrompt_Tutorial(t *testing.T) {
	req, err := DefaultPrompt(PromptInput{Job: Job{Kind: KindTutorial}, Now: time.Now()})
	require.NoError(t, err)

	assert.Equal(t, tutorialSystem, req.System)
	assert.Contains(t, req.Prompt, "Write up to 10 tutorials.")
	assert.Contains(t, req.Prompt, "beginner|intermediate|advanced")
	assert.NotContains(t, req.Prompt, "source material")
}

func TestTemplatePrompt(t *testing.T) {
	fn, err := TemplatePrompt("sys", "Topic: {{.Job.Topic}}")
	require.NoError(t, err)

	req, err := fn(PromptInput{Job: Job{Topic: "NATS"}})
	require.NoError(t, err)
	assert.Equal(t, "sys", req.System)
	assert.Equal(t, "Topic: NATS", req.Prompt)

	_, err = TemplatePrompt("sys", "{{.Job.Topic")
	assert.Error(t, err)
}
