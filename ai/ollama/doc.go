// Package ollama implements the ai interfaces against a locally hosted
// Ollama server, the default backend for chainlab.
//
//	provider, err := ollama.NewProvider(ai.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//	reply, err := provider.ChatModel().Generate(ctx, messages)
package ollama
