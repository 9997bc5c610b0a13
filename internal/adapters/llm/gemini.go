package llm

import (
	"context"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/PabloGalante/engigen-agent/internal/domain"
	"github.com/PabloGalante/engigen-agent/internal/observability"
)

// GeminiConfig selects the backend: Vertex AI when Project is set, Gemini API otherwise.
type GeminiConfig struct {
	APIKey    string
	Project   string
	Location  string
	ModelName string
}

// GeminiFactory creates one genai chat per session.
type GeminiFactory struct {
	client    *genai.Client
	modelName string
	persona   *PersonaTemplate
}

// NewGeminiFactory creates a ConnectorFactory backed by google.golang.org/genai.
func NewGeminiFactory(ctx context.Context, cfg GeminiConfig, persona *PersonaTemplate) (*GeminiFactory, error) {
	if persona == nil {
		persona = MustDefaultPersona()
	}

	modelName := cfg.ModelName
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Project != "" {
		cc = &genai.ClientConfig{
			Project:  cfg.Project,
			Location: cfg.Location,
			Backend:  genai.BackendVertexAI,
		}
	} else if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: an API key or a GCP project is required")
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GeminiFactory{
		client:    client,
		modelName: modelName,
		persona:   persona,
	}, nil
}

// NewConnector implements domain.ConnectorFactory.
func (f *GeminiFactory) NewConnector(
	ctx context.Context,
	sessionID domain.SessionID,
	d domain.EngineeringDomain,
) (domain.Connector, error) {
	system, err := f.persona.Render(d)
	if err != nil {
		return nil, err
	}

	temp := float32(0.7)
	cfg := &genai.GenerateContentConfig{
		// The persona is sent once, when the chat is created.
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       &temp,
	}

	chat, err := f.client.Chats.Create(ctx, f.modelName, cfg, nil)
	if err != nil {
		return nil, &domain.RemoteServiceError{Op: "create chat", Err: err}
	}

	observability.LoggerFromContext(ctx).Info("gemini chat created",
		"session_id", sessionID,
		"domain", d,
		"model", f.modelName,
	)

	return &geminiConnector{chat: chat}, nil
}

type geminiConnector struct {
	chat *genai.Chat
}

// SendMessageStream forwards one user turn and yields the text of every chunk.
func (c *geminiConnector) SendMessageStream(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for res, err := range c.chat.SendMessageStream(ctx, genai.Part{Text: text}) {
			if err != nil {
				yield("", &domain.RemoteServiceError{Op: "stream", Err: err})
				return
			}
			if res == nil {
				continue
			}
			chunk := res.Text()
			if chunk == "" {
				continue
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}
