package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/civiclens/planrag/internal/core/domain"
	"github.com/civiclens/planrag/internal/infrastructure/resilience"
)

// Client is the shared Ollama transport. The concrete adapters (Embedder,
// Chat, Generator) are thin views over it so one HTTP client and one set of
// circuit breakers serves all model calls.
type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.executor.Execute(ctx, "ollama.embed", func(ctx context.Context) error {
		return e.client.postJSON(ctx, "/api/embed", request, &response, "embed")
	}, classifyOllamaError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed query", err)
	}
	if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embed query: empty embedding result")
	}
	return response.Embeddings[0], nil
}

// Chat implements the generic completion port used for translation and
// query rewriting.
type Chat struct {
	client *Client
}

func NewChat(client *Client) *Chat {
	return &Chat{client: client}
}

func (c *Chat) Complete(ctx context.Context, systemPrompt, userPrompt string) (domain.Completion, error) {
	response, err := c.client.chat(ctx, "ollama.chat", systemPrompt, userPrompt)
	if err != nil {
		return domain.Completion{}, wrapTemporaryIfNeeded("chat completion", err)
	}
	return domain.Completion{
		Text:       strings.TrimSpace(response.Message.Content),
		TokensUsed: response.PromptEvalCount + response.EvalCount,
	}, nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

// GenerateAnswer produces a grounded answer from the retrieved fragments.
// Fragments are presented as a numbered context block so the model can cite
// them by index.
func (g *Generator) GenerateAnswer(
	ctx context.Context,
	question string,
	chunks []domain.ScoredCandidate,
	municipalityName string,
) (domain.GeneratedAnswer, error) {
	response, err := g.client.chat(ctx, "ollama.generate",
		buildAnswerSystemPrompt(municipalityName),
		buildAnswerUserPrompt(question, chunks),
	)
	if err != nil {
		return domain.GeneratedAnswer{}, wrapTemporaryIfNeeded("generate answer", err)
	}

	text := strings.TrimSpace(response.Message.Content)
	if text == "" {
		return domain.GeneratedAnswer{}, fmt.Errorf("generate answer: empty completion")
	}
	return domain.GeneratedAnswer{
		Text:       text,
		TokensUsed: response.PromptEvalCount + response.EvalCount,
	}, nil
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

func (c *Client) chat(ctx context.Context, operation, systemPrompt, userPrompt string) (chatResponse, error) {
	request := map[string]any{
		"model":  c.genModel,
		"stream": false,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}

	var response chatResponse
	err := c.executor.Execute(ctx, operation, func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/chat", request, &response, "chat")
	}, classifyOllamaError)
	return response, err
}
