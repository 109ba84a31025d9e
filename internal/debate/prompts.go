package debate

import (
	"fmt"

	"github.com/lorenzotomasdiez/verdict/internal/openrouter"
)

const evaluatorSystemPrompt = `You are a delegate in an assembly that judges written resolutions. ` +
	`Evaluate the resolution and respond with ONLY a strict JSON object in this exact format:
{"vote": "Intelligent" or "Idiotic", "confidence": <integer 1-100>, "argument": "<your main argument>", "rebuttal": "<the strongest counterpoint to your own position>"}
Do NOT include any other text, explanation, or markdown formatting. Return ONLY the JSON object.`

func buildMessages(title, body string) []openrouter.Message {
	return []openrouter.Message{
		{Role: "system", Content: evaluatorSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Resolution: %s\n\n%s", title, body)},
	}
}
