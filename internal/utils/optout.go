package utils

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OptOutPrompt asks a model whether a reply is a request to stop mail.
// Arguments are the sender, subject and body of the reply.
const OptOutPrompt = `You triage replies to a filing reminder service for UK companies.
Decide whether the following reply asks us to stop emailing the sender.
Polite declines, "not interested", complaints about the email and requests to be removed all count.
Questions about a filing, out of office notices and thank-you notes do not.
Respond with a JSON object containing:
- unsubscribe: boolean (true if the sender wants no more email)
- confidence: number between 0 and 1
- explanation: string (one short sentence)

Reply:
From: %s
Subject: %s
Body:
%s

Respond only with the JSON object and nothing else.`

// OptOutVerdict is the structured answer expected from the model
type OptOutVerdict struct {
	Unsubscribe bool    `json:"unsubscribe"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// FormatOptOutPrompt fills OptOutPrompt
func FormatOptOutPrompt(from, subject, body string) string {
	return fmt.Sprintf(OptOutPrompt, from, subject, body)
}

// ParseOptOutVerdict decodes the model answer. Text around the outermost
// JSON object is ignored.
func ParseOptOutVerdict(text string) (*OptOutVerdict, error) {
	var verdict OptOutVerdict
	if err := json.Unmarshal([]byte(text), &verdict); err == nil {
		return &verdict, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model response")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &verdict); err != nil {
		return nil, fmt.Errorf("failed to parse model response as JSON: %w", err)
	}
	return &verdict, nil
}
