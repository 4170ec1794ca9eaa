// Package verification проверяет фото собранного мусора через vision-модель Gemini.
// Клиент ходит в REST generateContent напрямую и разбирает JSON-ответ модели.
package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/waste-rewards/internal/common"
	"serotonyl.ru/waste-rewards/internal/media"
)

// ConfidenceThreshold — уверенность модели, начиная с которой (строго больше) сбор засчитывается.
const ConfidenceThreshold = 0.7

// maxResponseBytes — сколько читаем из ответа модели.
const maxResponseBytes = 1 << 20

// Result — вердикт модели.
type Result struct {
	WasteTypeMatch bool    `json:"wasteTypeMatch"`
	Confidence     float64 `json:"confidence"`
}

// Passed — тип совпал и уверенность выше порога.
func (r Result) Passed() bool {
	return r.WasteTypeMatch && r.Confidence > ConfidenceThreshold
}

// Verifier сверяет фото с заявленным типом мусора.
type Verifier interface {
	Verify(ctx context.Context, img media.Image, wasteType string) (Result, error)
}

// Client — клиент Gemini generateContent.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт клиента. timeout ограничивает весь запрос целиком.
func NewClient(baseURL, model, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Prompt возвращает текст запроса к модели для заявленного типа мусора.
func Prompt(wasteType string) string {
	return `You are an expert in waste management and recycling. Analyze this image and provide:
1. Confirm if the waste type matches: ` + wasteType + `
2. Your confidence level in this assessment (as a decimal between 0 and 1)

Respond in JSON format like this:
{"wasteTypeMatch": true, "confidence": 0.95}`
}

// Verify отправляет фото модели и возвращает её вердикт.
// Любой сбой (сеть, не-2xx, мусор вместо JSON) — ошибка ErrUpstream, повторов нет.
func (c *Client) Verify(ctx context.Context, img media.Image, wasteType string) (Result, error) {
	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{
		{Text: Prompt(wasteType)},
		{InlineData: &inlineData{MIMEType: img.MIMEType, Data: img.Data}},
	}}}})
	if err != nil {
		return Result{}, fmt.Errorf("ошибка сборки запроса к модели: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("ошибка создания запроса к модели: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Ключ в query: в ошибке url.Error он есть, не логируем его
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return Result{}, common.Upstream("verification service is unavailable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, common.Upstream("verification service response could not be read", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, common.Upstream("verification service failed",
			fmt.Errorf("status %d", resp.StatusCode))
	}

	var gen generateResponse
	if err := json.Unmarshal(raw, &gen); err != nil {
		return Result{}, common.Upstream("verification service returned malformed response", err)
	}
	if len(gen.Candidates) == 0 {
		return Result{}, common.Upstream("verification service returned no candidates", nil)
	}
	var text strings.Builder
	for _, p := range gen.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}

	result, err := ParseVerdict(text.String())
	if err != nil {
		return Result{}, err
	}

	log.WithFields(log.Fields{
		"component":  "verification",
		"waste_type": wasteType,
		"match":      result.WasteTypeMatch,
		"confidence": result.Confidence,
		"duration":   time.Since(started).String(),
	}).Info("Модель вернула вердикт")
	return result, nil
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ParseVerdict разбирает текст модели: снимает ```json-обёртку и проверяет поля.
// confidence в (1, 100] считается процентами и делится на 100.
func ParseVerdict(text string) (Result, error) {
	text = strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	var v struct {
		WasteTypeMatch *bool    `json:"wasteTypeMatch"`
		Confidence     *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return Result{}, common.Upstream("verification response is not valid JSON", err)
	}
	if v.WasteTypeMatch == nil || v.Confidence == nil {
		return Result{}, common.Upstream("verification response is missing fields", nil)
	}
	confidence := *v.Confidence
	// Модель иногда отвечает процентами (95 вместо 0.95)
	if confidence > 1 && confidence <= 100 {
		confidence /= 100
	}
	if confidence < 0 || confidence > 1 {
		return Result{}, common.Upstream(fmt.Sprintf("verification confidence %v is out of range", *v.Confidence), nil)
	}
	return Result{WasteTypeMatch: *v.WasteTypeMatch, Confidence: confidence}, nil
}

// Disabled — верификатор для окружений без ключа модели: всегда отвечает ErrUpstream.
type Disabled struct{}

func (Disabled) Verify(context.Context, media.Image, string) (Result, error) {
	return Result{}, common.Upstream("verification service is disabled", nil)
}
