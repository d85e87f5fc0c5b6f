package prompt

import "github.com/poiesic/chainlab/ai"

// Assistant answers a {question}.
func Assistant() *Template {
	return MustNew("assistant",
		ai.Message{Role: ai.RoleSystem, Content: "You are a helpful assistant. Answer user questions in a structured way."},
		ai.Message{Role: ai.RoleHuman, Content: "Question: {question}"},
	)
}

// Translator translates {text} into {language}.
func Translator() *Template {
	return MustNew("translator",
		ai.Message{Role: ai.RoleSystem, Content: "You are helpful multi-lingual language translator and you need to translate following text in {language}:"},
		ai.Message{Role: ai.RoleHuman, Content: "{text}"},
	)
}

// RetrievalQA answers a {question} from retrieved {context}.
func RetrievalQA() *Template {
	return MustNew("retrieval_qa",
		ai.Message{Role: ai.RoleSystem, Content: "Answer the question using only the context below. If the context does not contain the answer, say that you don't know.\n\nContext:\n{context}"},
		ai.Message{Role: ai.RoleHuman, Content: "{question}"},
	)
}

// Preset returns a built-in template by name.
func Preset(name string) (*Template, bool) {
	switch name {
	case "assistant":
		return Assistant(), true
	case "translator":
		return Translator(), true
	case "retrieval_qa":
		return RetrievalQA(), true
	}
	return nil, false
}
