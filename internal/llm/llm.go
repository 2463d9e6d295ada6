// Package llm contains the model providers, the credential-based provider
// selector, and the classification of provider failures.
package llm

import (
	"context"
	"fmt"
	"iter"

	"github.com/pagesmith-dev/pagesmith/internal/models"
)

// Provider generates a streaming completion for a transcript. The returned
// iterator yields text deltas in the order received from the backend and at
// most one error, which terminates the stream. A canceled context ends the
// iterator silently without yielding an error.
type Provider interface {
	Name() string
	Generate(ctx context.Context, messages []models.Message) iter.Seq2[string, error]
}

// DefaultSystemPrompt is the artifact-generation directive sent ahead of
// every transcript. It instructs the model to produce one complete,
// self-contained, responsive HTML document wrapped in a single fenced code
// block.
const DefaultSystemPrompt = `You are an expert web developer specializing in creating landing pages with HTML and CSS.

When asked to create a landing page or website section:
1. Generate a complete, self-contained HTML file with inline CSS
2. Make the design responsive and modern using CSS Grid and Flexbox
3. Use a professional color scheme and typography
4. Include proper semantic HTML structure
5. Add hover effects and smooth transitions
6. Make it mobile-responsive with proper viewport settings
7. Include placeholder content that makes sense for the requested page type
8. Always wrap your code in ` + "```html and ```" + ` tags
9. Include comments to explain key sections of the code

Your HTML should be complete and ready to use without any external dependencies.`

// StatusError is a non-2xx response from a provider's HTTP endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, e.Body)
}
