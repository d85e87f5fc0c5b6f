// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.ChatModel
// and ai.AIProvider for use in unit tests. The mocks allow tests to run without
// a model server and give deterministic results.
//
// # Usage in Tests
//
//	chat := mock.NewMockChatModel().WithResponses("Paris")
//	embedder := mock.NewMockEmbedder().WithDimension(8)
//	provider := mock.NewMockProviderWithServices(embedder, chat)
//
//	// Check call counts
//	count := chat.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic unit vectors based on text hash
//   - MockChatModel: Echoes the last human message, streaming word by word
//   - MockProvider: Aggregates mock embedder and chat model
package mock
