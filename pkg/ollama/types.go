package ollama

// Message is one role/content pair in a chat request. The backend is
// stateless between calls; every request carries the full window.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the body for POST /api/chat.
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// chunk is one structured fragment from the backend. Non-streaming
// responses use the same shape with done=true. Older generate-style
// endpoints put text in the flat "response" field, chat-style streaming
// nests it under "message.content"; both are accepted.
type chunk struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Message  struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`
}

// text returns the fragment's content from whichever field carries it.
func (c *chunk) text() string {
	if c.Message.Content != "" {
		return c.Message.Content
	}
	return c.Response
}
