package llm

import "context"

// Request 描述发送给大模型的任务改写上下文。
type Request struct {
	Description   string
	Diagnosis     string
	Opportunities []Opportunity
}

// Opportunity 表示提供给大模型的备选收益机会，帮助改写出可行的任务。
type Opportunity struct {
	Name string
	APY  float64
}

// Response 是大模型改写得到的结构化输出。
type Response struct {
	Thought string
	Revised string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Refine(ctx context.Context, req Request) (*Response, error)
}
