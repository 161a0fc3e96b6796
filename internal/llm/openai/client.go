package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/NectaFi/necta-agents/internal/llm"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second
)

// Config 描述了调用 OpenAI Chat Completions API 所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client 通过 HTTP 调用 OpenAI 提供的大模型能力。
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient 根据配置创建 OpenAI 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 OpenAI API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Refine 调用 OpenAI 把预演失败的任务改写为可执行的新任务文本。
func (c *Client) Refine(ctx context.Context, req llm.Request) (*llm.Response, error) {
	payload, err := c.buildPayload(req)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建 OpenAI 请求失败: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求 OpenAI 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("OpenAI 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析 OpenAI 响应失败: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, errors.New("OpenAI 响应中没有有效的 choices")
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return nil, errors.New("OpenAI 响应内容为空")
	}

	var structured struct {
		Thought string `json:"thought"`
		Revised string `json:"revised"`
	}
	if err := json.Unmarshal([]byte(content), &structured); err != nil {
		structured.Revised = content
		structured.Thought = ""
	}
	if strings.TrimSpace(structured.Revised) == "" {
		structured.Revised = content
	}

	return &llm.Response{
		Thought: structured.Thought,
		Revised: structured.Revised,
	}, nil
}

func (c *Client) buildPayload(req llm.Request) ([]byte, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	messages := []message{
		{
			Role:    "system",
			Content: systemPrompt,
		},
		{
			Role:    "user",
			Content: buildUserPrompt(req),
		},
	}

	body := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": 0.2,
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化 OpenAI 请求失败: %w", err)
	}
	return encoded, nil
}

const systemPrompt = "" +
	"You are NectaFi's task refinement engine. " +
	"A DeFi task failed simulation; rewrite it into a new executable intent. " +
	"The revised intent must keep the form \"<Deposit|Withdraw|Swap> <amount> <token> [for|into|from <target>]\". " +
	"Always respond with a compact JSON object: {\"thought\": string, \"revised\": string}."

func buildUserPrompt(req llm.Request) string {
	var builder strings.Builder
	builder.WriteString("## Failed task\n")
	builder.WriteString(fmt.Sprintf("Intent: %s\n", strings.TrimSpace(req.Description)))
	if diagnosis := strings.TrimSpace(req.Diagnosis); diagnosis != "" {
		builder.WriteString(fmt.Sprintf("Simulation diagnosis: %s\n", diagnosis))
	}

	if len(req.Opportunities) > 0 {
		builder.WriteString("\n## Current yield opportunities\n")
		for idx, opp := range req.Opportunities {
			builder.WriteString(fmt.Sprintf("[%d] %s: %.2f%% APY\n",
				idx+1,
				strings.TrimSpace(opp.Name),
				opp.APY/100,
			))
			if idx >= 4 {
				break
			}
		}
	}

	builder.WriteString("\nRewrite the intent so it can execute, and summarise the reasoning in \"thought\".")
	return builder.String()
}
