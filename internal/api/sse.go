package api

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	dataPrefix  = "data:"
	doneMarker  = "[DONE]"
	maxLineSize = 1 << 20
)

// ParseStream consumes a Server-Sent-Events body of chat-completion chunks and
// feeds every non-empty delta into the tracker. Frames that are not valid JSON
// are skipped; only a failing read is reported as an error. A body that ends
// without the [DONE] marker is treated as complete.
func ParseStream(r io.Reader, tracker *TimingTracker) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
		if data == doneMarker {
			return nil
		}
		if content := chunkContent(data); content != "" {
			tracker.RecordToken(content)
		}
	}
	return scanner.Err()
}

func chunkContent(data string) string {
	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return ""
	}
	if len(chunk.Choices) == 0 {
		return ""
	}
	return chunk.Choices[0].Delta.Content
}
