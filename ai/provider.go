package ai

// combined pairs a chat model and an embedder that come from different
// backends, e.g. Groq for chat and Hugging Face for embeddings.
type combined struct {
	chat     ChatModel
	embedder Embedder
}

// Combine returns an AIProvider serving chat and embedder.
func Combine(chat ChatModel, embedder Embedder) AIProvider {
	return &combined{chat: chat, embedder: embedder}
}

func (c *combined) Embedder() Embedder {
	return c.embedder
}

func (c *combined) ChatModel() ChatModel {
	return c.chat
}

func (c *combined) Close() error {
	return nil
}
