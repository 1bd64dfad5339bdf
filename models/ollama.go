package models

// OllamaEmbedRequest is the body of Ollama's /api/embed endpoint.
type OllamaEmbedRequest struct {
	Model    string `json:"model"`
	Input    string `json:"input"`
	Truncate bool   `json:"truncate"`
}

// OllamaEmbedResponse carries one embedding per input.
type OllamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}
