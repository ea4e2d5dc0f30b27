package provider

import (
	"strings"
	"time"
)

// Kind labels a call for timeouts and logging.
type Kind string

const (
	KindVision  Kind = "vision"
	KindPlanner Kind = "planner"
	KindPing    Kind = "ping"
)

// Message is one OpenAI-compatible chat message. Content is either a string or
// a []ContentPart for multimodal requests.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

func SystemMessage(text string) Message { return Message{Role: "system", Content: text} }
func UserMessage(text string) Message   { return Message{Role: "user", Content: text} }

// ImageMessage builds a user message carrying text and one image data URL.
func ImageMessage(text, dataURL string) Message {
	return Message{Role: "user", Content: []ContentPart{
		{Type: "text", Text: text},
		{Type: "image_url", ImageURL: &ImageURL{URL: dataURL}},
	}}
}

// Text returns the textual part of a message.
func (m Message) Text() string {
	switch c := m.Content.(type) {
	case string:
		return c
	case []ContentPart:
		var b strings.Builder
		for _, p := range c {
			if p.Type == "text" {
				b.WriteString(p.Text)
			}
		}
		return b.String()
	}
	return ""
}

// Images returns the image URLs carried by a message.
func (m Message) Images() []string {
	parts, ok := m.Content.([]ContentPart)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range parts {
		if p.ImageURL != nil {
			out = append(out, p.ImageURL.URL)
		}
	}
	return out
}

// ChatRequest describes one logical completion. Zero values fall back to the
// client configuration.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
	JSONMode    bool
	Timeout     time.Duration
	Kind        Kind
	TraceID     string
}

// Completion is a successful model answer.
type Completion struct {
	Content  string
	Model    string
	Attempts int
}

// ModelInfo is one entry of a provider's model catalogue.
type ModelInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	ContextLength int64  `json:"context_length,omitempty"`
}

type ModelList struct {
	Status int         `json:"status"`
	Models []ModelInfo `json:"models"`
}

type chatPayload struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}
