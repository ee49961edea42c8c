package scorer

import (
	"embed"
	"fmt"
)

//go:embed prompts/*.txt
var promptFS embed.FS

var sentimentPrompt string
var sentimentPromptError error

func init() {
	// Load the system prompt during package initialization
	promptBytes, err := promptFS.ReadFile("prompts/sentiment_prompt.txt")
	if err != nil {
		sentimentPromptError = fmt.Errorf("failed to load sentiment prompt: %w", err)
		return
	}
	sentimentPrompt = string(promptBytes)
}
