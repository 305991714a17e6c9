package docai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dkotenko/document-intake/internal/core/domain"
	"github.com/dkotenko/document-intake/internal/infrastructure/resilience"
	"golang.org/x/time/rate"
)

// Client talks to the document AI service. Every method returns either a
// usable result or a *domain.InferenceError carrying the failure kind, so
// callers never see provider error shapes.
type Client struct {
	baseURL     string
	model       string
	callTimeout time.Duration
	httpClient  *http.Client
	limiter     *rate.Limiter
	exec        *resilience.Executor
}

type Options struct {
	BaseURL     string
	Model       string
	CallTimeout time.Duration
	RateLimit   float64
	RateBurst   int
}

func New(opts Options, exec *resilience.Executor) *Client {
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	limit := rate.Limit(opts.RateLimit)
	if opts.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 1
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultPolicy())
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		model:       opts.Model,
		callTimeout: timeout,
		httpClient:  &http.Client{},
		limiter:     rate.NewLimiter(limit, burst),
		exec:        exec,
	}
}

type documentPayload struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

func payloadFor(doc domain.DocumentContent) documentPayload {
	return documentPayload{Name: doc.Ref.Name, Content: doc.Data}
}

type classifyRequest struct {
	Model    string          `json:"model"`
	Document documentPayload `json:"document"`
	Question string          `json:"question"`
}

type classifyResponse struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

func (c *Client) Classify(ctx context.Context, doc domain.DocumentContent) (string, error) {
	req := classifyRequest{
		Model:    c.model,
		Document: payloadFor(doc),
		Question: classifyQuestion,
	}
	var resp classifyResponse
	if err := c.call(ctx, "classify", "/v1/documents/classify", req, &resp); err != nil {
		return "", err
	}
	class := strings.TrimSpace(resp.Class)
	if class == "" {
		return "", domain.NewInferenceError(domain.FailureMalformed, "classify", errors.New("empty class in response"))
	}
	return class, nil
}

type extractRequest struct {
	Model     string            `json:"model"`
	Document  documentPayload   `json:"document"`
	Questions map[string]string `json:"questions"`
}

type extractResponse struct {
	Answers map[string]json.RawMessage `json:"answers"`
}

func (c *Client) ExtractFields(ctx context.Context, doc domain.DocumentContent, class domain.DocumentClass) (*domain.ExtractionResult, error) {
	if len(class.Fields) == 0 {
		return &domain.ExtractionResult{Fields: []domain.FieldAnswer{}}, nil
	}

	questions := make(map[string]string, len(class.Fields))
	for _, field := range class.Fields {
		questions[field.Name] = field.Question
	}
	req := extractRequest{
		Model:     c.model,
		Document:  payloadFor(doc),
		Questions: questions,
	}
	var resp extractResponse
	if err := c.call(ctx, "extract_fields", "/v1/documents/extract", req, &resp); err != nil {
		return nil, err
	}

	// Answers come back keyed by field name; missing fields become nulls so
	// the result always mirrors the class schema order.
	fields := make([]domain.FieldAnswer, 0, len(class.Fields))
	for _, field := range class.Fields {
		raw, ok := resp.Answers[field.Name]
		if !ok {
			fields = append(fields, domain.FieldAnswer{Name: field.Name, Value: domain.NullValue()})
			continue
		}
		answer, err := decodeFieldAnswer(field.Name, raw)
		if err != nil {
			return nil, domain.NewInferenceError(domain.FailureMalformed, "extract_fields", err)
		}
		fields = append(fields, answer)
	}
	return &domain.ExtractionResult{Fields: fields}, nil
}

// decodeFieldAnswer accepts both envelope shapes the service emits: a bare
// JSON value, or an object {"value": ..., "confidence": ...}.
func decodeFieldAnswer(name string, raw json.RawMessage) (domain.FieldAnswer, error) {
	var value domain.FieldValue
	if err := json.Unmarshal(raw, &value); err != nil {
		return domain.FieldAnswer{}, fmt.Errorf("field %s: %w", name, err)
	}
	if members, ok := value.AsObject(); ok {
		if inner, exists := members["value"]; exists {
			answer := domain.FieldAnswer{Name: name, Value: inner}
			if conf, exists := members["confidence"]; exists {
				if num, isNum := conf.AsNumber(); isNum {
					answer.Confidence = &num
				}
			}
			return answer, nil
		}
	}
	return domain.FieldAnswer{Name: name, Value: value}, nil
}

type ocrRequest struct {
	Model    string          `json:"model"`
	Document documentPayload `json:"document"`
	Mode     string          `json:"mode"`
}

type ocrResponse struct {
	Content string `json:"content"`
}

func (c *Client) OCR(ctx context.Context, doc domain.DocumentContent) (string, error) {
	req := ocrRequest{
		Model:    c.model,
		Document: payloadFor(doc),
		Mode:     ocrLayoutMode,
	}
	var resp ocrResponse
	if err := c.call(ctx, "ocr", "/v1/documents/ocr", req, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", domain.NewInferenceError(domain.FailureMalformed, "ocr", errors.New("empty ocr content"))
	}
	return resp.Content, nil
}

type summarizeRequest struct {
	Model    string          `json:"model"`
	Document documentPayload `json:"document"`
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

// Summarize prefers the cheap text completion path when recognized text is
// already available and falls back to posting the raw document.
func (c *Client) Summarize(ctx context.Context, doc domain.DocumentContent, fullText string) (string, error) {
	if strings.TrimSpace(fullText) != "" {
		summary, err := c.complete(ctx, "summarize", buildSummaryPrompt(fullText), "")
		if err != nil {
			return "", err
		}
		if summary == "" {
			return "", domain.NewInferenceError(domain.FailureMalformed, "summarize", errors.New("empty summary in response"))
		}
		return summary, nil
	}

	req := summarizeRequest{
		Model:    c.model,
		Document: payloadFor(doc),
	}
	var resp summarizeResponse
	if err := c.call(ctx, "summarize", "/v1/documents/summarize", req, &resp); err != nil {
		return "", err
	}
	summary := strings.TrimSpace(resp.Summary)
	if summary == "" {
		return "", domain.NewInferenceError(domain.FailureMalformed, "summarize", errors.New("empty summary in response"))
	}
	return summary, nil
}

type schemaEnvelope struct {
	Fields []domain.FieldPrompt `json:"fields"`
}

func (c *Client) SuggestSchema(ctx context.Context, className string) ([]domain.FieldPrompt, error) {
	respText, err := c.complete(ctx, "suggest_schema", buildSchemaPrompt(className), "json")
	if err != nil {
		return nil, err
	}

	var envelope schemaEnvelope
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &envelope); err != nil {
		return nil, domain.NewInferenceError(domain.FailureMalformed, "suggest_schema", fmt.Errorf("parse schema json: %w", err))
	}

	fields := make([]domain.FieldPrompt, 0, len(envelope.Fields))
	for _, field := range envelope.Fields {
		name := strings.TrimSpace(field.Name)
		question := strings.TrimSpace(field.Question)
		if name == "" || question == "" {
			continue
		}
		fields = append(fields, domain.FieldPrompt{Name: name, Question: question})
	}
	if len(fields) == 0 {
		return nil, domain.NewInferenceError(domain.FailureMalformed, "suggest_schema", errors.New("no usable fields in response"))
	}
	return fields, nil
}

type completionRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type completionResponse struct {
	Response string `json:"response"`
}

func (c *Client) complete(ctx context.Context, operation, prompt, format string) (string, error) {
	req := completionRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Format: format,
	}
	var resp completionResponse
	if err := c.call(ctx, operation, "/v1/completions", req, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Response), nil
}
