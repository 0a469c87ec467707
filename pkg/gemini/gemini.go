package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const describePrompt = `You are assisting a road maintenance team. The attached photo was flagged
by a detector with these defect classes: %s.
In at most two sentences, describe the visible road damage and how severe it looks.
Reply with plain text only.`

var ErrEmptyResponse = errors.New("no response from Gemini API")

// IGemini writes a short human readable summary for a defect photo.
type IGemini interface {
	DescribeDefects(ctx context.Context, jpeg []byte, classes []string) (string, error)
	Close()
}

type textGenerator func(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)

type geminiClient struct {
	modelName string
	client    *genai.Client
	generate  textGenerator
}

func NewGeminiClient() (IGemini, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	modelName := os.Getenv("GEMINI_MODEL_NAME")
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.2)

	return &geminiClient{
		modelName: modelName,
		client:    client,
		generate:  model.GenerateContent,
	}, nil
}

func (g *geminiClient) DescribeDefects(ctx context.Context, jpeg []byte, classes []string) (string, error) {
	if len(jpeg) == 0 {
		return "", errors.New("empty image")
	}

	prompt := fmt.Sprintf(describePrompt, strings.Join(classes, ", "))

	res, err := g.generate(ctx, genai.Text(prompt), genai.ImageData("jpeg", jpeg))
	if err != nil {
		return "", err
	}

	return firstText(res)
}

func firstText(res *genai.GenerateContentResponse) (string, error) {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil || len(res.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}

	text, ok := res.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", errors.New("unexpected response format from Gemini API")
	}

	return strings.TrimSpace(string(text)), nil
}

func (g *geminiClient) Close() {
	if g.client != nil {
		g.client.Close()
	}
}
