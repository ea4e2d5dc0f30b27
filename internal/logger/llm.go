package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"tradecoach/internal/pkg/text"
)

const defaultSnippetLimit = 300

var (
	llmMu          sync.Mutex
	llmLog         *log.Logger
	llmDumpPayload bool
	llmSnippet     = defaultSnippetLimit
)

// SetLLMWriter installs the transcript writer for model calls; nil disables it.
func SetLLMWriter(w io.Writer) {
	llmMu.Lock()
	defer llmMu.Unlock()
	if w == nil {
		llmLog = nil
		return
	}
	llmLog = log.New(w, "", log.LstdFlags)
}

// LLMEnabled reports whether a transcript writer is installed.
func LLMEnabled() bool {
	llmMu.Lock()
	defer llmMu.Unlock()
	return llmLog != nil
}

// EnableLLMPayloadDump writes full request bodies into the transcript.
func EnableLLMPayloadDump(enabled bool) {
	llmMu.Lock()
	llmDumpPayload = enabled
	llmMu.Unlock()
}

// SetLLMSnippetLimit bounds the size of logged prompt/response bodies.
func SetLLMSnippetLimit(n int) {
	llmMu.Lock()
	if n <= 0 {
		n = defaultSnippetLimit
	}
	llmSnippet = n
	llmMu.Unlock()
}

type llmSection struct {
	Title string
	Body  string
}

type llmCall struct {
	Kind    string
	Model   string
	TraceID string
}

func (c llmCall) header(suffix string) string {
	var b strings.Builder
	b.WriteString("[LLM]")
	for _, part := range []string{c.Kind + suffix, c.Model, c.TraceID} {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteString("[")
		b.WriteString(part)
		b.WriteString("]")
	}
	return b.String()
}

func writeLLM(header string, sections []llmSection) {
	llmMu.Lock()
	out := llmLog
	limit := llmSnippet
	llmMu.Unlock()
	if out == nil {
		return
	}
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	for _, sec := range sections {
		title := strings.TrimSpace(sec.Title)
		if title == "" {
			title = "CONTENT"
		}
		body := sec.Body
		if truncatable(title) {
			body = text.Truncate(body, limit)
		}
		fmt.Fprintf(&b, "--- %s ---\n%s", title, body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	out.Print(b.String())
}

// truncatable reports whether a section is cut to the snippet limit. Payload
// dumps and image summaries are always written whole.
func truncatable(title string) bool {
	return title != "PAYLOAD" && !strings.HasPrefix(title, "IMAGE")
}

// LogLLMRequest records the prompt side of a model call. Image data URLs are
// reduced to their media type and size.
func LogLLMRequest(kind, model, traceID, systemPrompt, userPrompt string, images []string, payload string) {
	sections := []llmSection{
		{Title: "SYSTEM", Body: systemPrompt},
		{Title: "USER", Body: userPrompt},
	}
	for i, img := range images {
		sections = append(sections, llmSection{Title: fmt.Sprintf("IMAGE#%d", i+1), Body: describeDataURL(img)})
	}
	llmMu.Lock()
	dump := llmDumpPayload
	llmMu.Unlock()
	if dump && strings.TrimSpace(payload) != "" {
		sections = append(sections, llmSection{Title: "PAYLOAD", Body: payload})
	}
	writeLLM(llmCall{Kind: kind, Model: model, TraceID: traceID}.header("-request"), sections)
}

// LogLLMResponse records the raw completion text (or the failure) of a call.
func LogLLMResponse(kind, model, traceID, raw string, err error) {
	sections := []llmSection{{Title: "RAW", Body: raw}}
	if err != nil {
		sections = append(sections, llmSection{Title: "ERROR", Body: err.Error()})
	}
	writeLLM(llmCall{Kind: kind, Model: model, TraceID: traceID}.header("-response"), sections)
}

func describeDataURL(uri string) string {
	uri = strings.TrimSpace(uri)
	if !strings.HasPrefix(uri, "data:") {
		return text.Truncate(uri, 120)
	}
	head, body, ok := strings.Cut(uri, ",")
	if !ok {
		return "data:(malformed)"
	}
	return fmt.Sprintf("%s (%d base64 chars)", head, len(body))
}
