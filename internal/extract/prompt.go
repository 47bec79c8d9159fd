// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/pdiddy/entity-eval/pkg/types"
)

const systemPrompt = "You are a data extraction assistant for missing person case reports. You return only the requested comma-separated data lines."

// promptTmpls holds the extraction prompt of each category. Each prompt
// fixes the artifact line format parsed by the artifact package.
var promptTmpls = map[types.Category]*template.Template{
	types.CategoryPeople: template.Must(template.New("people").Parse(`You are given every missing person and vulnerable person report for one individual.

Extract every relationship between two people mentioned in the reports, including relationships that do not involve the missing person.

Return one line per relationship in exactly this format:
person1,person2,relationship,report_id

Use explicit relationship words where the report gives them (mother, brother, friend, carer, neighbour) and infer them from context otherwise. Quote any value that contains a comma.

Example:
Abigail Ferguson,Jennifer Ferguson,mother,6531
John Smith,Abigail Ferguson,friend,6531

Output only the data lines with no header and no commentary.

The reports:
{{.Text}}
`)),

	types.CategoryLocations: template.Must(template.New("locations").Parse(`You are given every missing person and vulnerable person report for one individual.

Extract every location mentioned in the reports: street addresses, towns, landmarks and descriptive places.

Return one line per location in exactly this format:
location,report_id

Quote any location that contains a comma.

Example:
"Edward Street, Kilsyth",1234
school,12345

Output only the data lines with no header and no commentary.

The reports:
{{.Text}}
`)),

	types.CategoryLocationTypes: template.Must(template.New("location_types").Parse(`You are given every missing person and vulnerable person report for one individual.

Identify the types of place this person is repeatedly associated with, and the places themselves.

Return one line per occurrence in exactly this format:
report_id,location,location_type,quote,pattern

The quote must be copied verbatim from the report. Quote every value that contains a comma. Only report a location_type that occurs in more than one report.

Example:
1240,"Edward Street footbridge, Kilsyth",bridge,"found sitting wrong side of bridge barriers",crisis location
2361,Balcastle Farm gorge,rural area,"full scale search in gorge area",isolation seeking

Output only the data lines with no header and no commentary.

The reports:
{{.Text}}
`)),

	types.CategoryPatterns: template.Must(template.New("patterns").Parse(`You are given every missing person and vulnerable person report for one individual.

Identify recurring behavioural patterns in how this person goes missing. Name each pattern after the behaviour, not after a person, place or vulnerability. Only report a pattern that occurs in more than one report.

Return one line per occurrence in exactly this format:
report_id,explanation,pattern_name,quote

The quote must be copied verbatim from the report. Quote every value that contains a comma.

Example:
22623,"left home after an argument",conflict triggered absconding,"MP left the house following an argument with her mother"

Output only the data lines with no header and no commentary.

The reports:
{{.Text}}
`)),
}

// renderPrompt executes the prompt template of cat with the case text.
func renderPrompt(cat types.Category, text string) (string, error) {
	tmpl, ok := promptTmpls[cat]
	if !ok {
		return "", fmt.Errorf("no prompt for category %q", cat)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Text string }{Text: text}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const defaultMaxTokens = 5000

// OpenAIExtractor calls an OpenAI-compatible chat completion endpoint with
// the category prompt and the attempt's temperature.
type OpenAIExtractor struct {
	client    *openai.Client
	model     string
	maxTokens int
	limiter   *rate.Limiter
}

// NewOpenAIExtractor returns an extractor for cfg. A nil limiter disables
// throttling.
func NewOpenAIExtractor(client *openai.Client, cfg types.AIConfig, limiter *rate.Limiter) *OpenAIExtractor {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &OpenAIExtractor{client: client, model: model, maxTokens: maxTokens, limiter: limiter}
}

// Extract renders the category prompt and returns the model's reply.
func (o *OpenAIExtractor) Extract(ctx context.Context, req Request) (string, error) {
	prompt, err := renderPrompt(req.Category, req.Text)
	if err != nil {
		return "", Permanent(fmt.Errorf("rendering prompt: %w", err))
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   o.maxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("calling chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
