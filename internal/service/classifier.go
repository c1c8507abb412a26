package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/user/cinesearch/internal/logging"
	"github.com/user/cinesearch/internal/model"
	"github.com/user/cinesearch/internal/utils"
)

const structuredPrompt = `You extract structured movie search filters from a user request.
Return ONLY a JSON object with these keys:
  "director": the full name of a film director mentioned in the request, or null
  "start_year": the earliest release year implied by the request, or null
  "end_year": the latest release year implied by the request, or null
Do not guess. Use null when the request does not mention a director or a time period.

Request: %s`

const titlesPrompt = `Suggest up to 5 real, existing movie titles that best match the following request.
Return ONLY a JSON object of the form {"titles": ["Title One", "Title Two"]}.

Request: %s`

// flexInt 兼容 LLM 返回的 1999、"1999"、null
type flexInt struct {
	Value *int
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		f.Value = nil
		return nil
	}
	var s string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		f.Value = nil
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid year %q", s)
	}
	v := int(n)
	f.Value = &v
	return nil
}

type structuredReply struct {
	Director  *string `json:"director"`
	StartYear flexInt `json:"start_year"`
	EndYear   flexInt `json:"end_year"`
}

type titlesReply struct {
	Titles []string `json:"titles"`
}

// parseStrategy 解析策略：成功时返回 true，失败交给下一个策略
type parseStrategy struct {
	name string
	run  func(ctx context.Context, query string, st *classifyState) (model.ParsedIntent, bool)
}

// classifyState 单次 Classify 调用内共享，保证标题提示词只调用一次
type classifyState struct {
	titlesRaw  string
	titlesErr  error
	titlesDone bool
}

// Classifier 把自然语言查询转换为结构化意图，永远不会失败
type Classifier struct {
	llm        Completer
	strategies []parseStrategy
}

// NewClassifier llm 为 nil 时直接走关键词兜底
func NewClassifier(llm Completer) *Classifier {
	c := &Classifier{llm: llm}
	c.strategies = []parseStrategy{
		{name: "structured", run: c.structured},
		{name: "titles", run: c.titles},
		{name: "quoted", run: c.quoted},
	}
	return c
}

// Classify 依次尝试各个解析策略，全部失败时返回只含关键词的意图
func (c *Classifier) Classify(ctx context.Context, query string, cfg model.SearchConfig) model.ParsedIntent {
	query = strings.TrimSpace(query)
	if c.llm == nil || cfg.SkipClassifier || query == "" {
		return model.KeywordIntent(query)
	}

	logger := logging.FromContext(ctx)
	st := &classifyState{}
	for _, s := range c.strategies {
		if intent, ok := s.run(ctx, query, st); ok {
			logger.Info("意图解析完成", "strategy", s.name, "branch", intent.Branch())
			return intent
		}
		logger.Debug("解析策略未命中", "strategy", s.name)
	}
	logger.Info("意图解析降级为关键词", "query", query)
	return model.KeywordIntent(query)
}

func (c *Classifier) structured(ctx context.Context, query string, _ *classifyState) (model.ParsedIntent, bool) {
	raw, err := c.llm.Complete(ctx, fmt.Sprintf(structuredPrompt, query))
	if err != nil {
		logging.FromContext(ctx).Warn("结构化解析调用失败", "error", err)
		return model.ParsedIntent{}, false
	}
	body, ok := utils.ExtractJSON(raw)
	if !ok {
		return model.ParsedIntent{}, false
	}
	var reply structuredReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		return model.ParsedIntent{}, false
	}

	intent := model.ParsedIntent{
		StartYear: reply.StartYear.Value,
		EndYear:   reply.EndYear.Value,
		Keywords:  []string{query},
	}
	if reply.Director != nil {
		intent.Director = strings.TrimSpace(*reply.Director)
	}
	if intent.StartYear != nil && intent.EndYear != nil && *intent.StartYear > *intent.EndYear {
		intent.StartYear, intent.EndYear = intent.EndYear, intent.StartYear
	}
	return intent, intent.HasStructuredFields()
}

func (c *Classifier) titlesResponse(ctx context.Context, query string, st *classifyState) (string, error) {
	if !st.titlesDone {
		st.titlesRaw, st.titlesErr = c.llm.Complete(ctx, fmt.Sprintf(titlesPrompt, query))
		st.titlesDone = true
	}
	return st.titlesRaw, st.titlesErr
}

func (c *Classifier) titles(ctx context.Context, query string, st *classifyState) (model.ParsedIntent, bool) {
	raw, err := c.titlesResponse(ctx, query, st)
	if err != nil {
		logging.FromContext(ctx).Warn("片名生成调用失败", "error", err)
		return model.ParsedIntent{}, false
	}
	body, ok := utils.ExtractJSON(raw)
	if !ok {
		return model.ParsedIntent{}, false
	}

	var reply titlesReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		// 也接受直接返回数组
		if err := json.Unmarshal([]byte(body), &reply.Titles); err != nil {
			return model.ParsedIntent{}, false
		}
	}
	titles := cleanTitles(reply.Titles)
	if len(titles) == 0 {
		return model.ParsedIntent{}, false
	}
	return model.ParsedIntent{Titles: titles, Keywords: []string{query}}, true
}

func (c *Classifier) quoted(ctx context.Context, query string, st *classifyState) (model.ParsedIntent, bool) {
	raw, err := c.titlesResponse(ctx, query, st)
	if err != nil || raw == "" {
		return model.ParsedIntent{}, false
	}
	titles := cleanTitles(utils.QuotedStrings(raw))
	if len(titles) == 0 {
		return model.ParsedIntent{}, false
	}
	return model.ParsedIntent{Titles: titles, Keywords: []string{query}}, true
}

func cleanTitles(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || key == "titles" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
