package llm

import "github.com/pkoukk/tiktoken-go"

// CountTokens returns the token count of text for the given model, for
// logging and usage accounting. Unknown models fall back to the cl100k_base
// encoding, and if that fails too, to the chars/4 heuristic the context
// builder budgets with.
func CountTokens(model, text string) int {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil || enc == nil {
		return (len(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
