package model

import "time"

// Branch 检索策略
type Branch string

const (
	BranchDirector Branch = "director"
	BranchTitles   Branch = "titles"
	BranchSemantic Branch = "semantic"
)

// ParsedIntent 查询意图，每个查询解析一次
type ParsedIntent struct {
	Director  string   `json:"director,omitempty"`
	StartYear *int     `json:"start_year,omitempty"`
	EndYear   *int     `json:"end_year,omitempty"`
	Titles    []string `json:"titles,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
}

// HasStructuredFields 导演或年份区间至少有一个
func (p ParsedIntent) HasStructuredFields() bool {
	return p.Director != "" || p.StartYear != nil || p.EndYear != nil
}

// Branch 按固定优先级选择策略：导演 > 片名列表 > 关键词/语义
func (p ParsedIntent) Branch() Branch {
	switch {
	case p.Director != "":
		return BranchDirector
	case len(p.Titles) > 0:
		return BranchTitles
	default:
		return BranchSemantic
	}
}

// KeywordIntent 只有关键词的兜底意图
func KeywordIntent(rawQuery string) ParsedIntent {
	return ParsedIntent{Keywords: []string{rawQuery}}
}

// SearchConfig 查询附带的过滤条件，构造后不再修改
type SearchConfig struct {
	StartYear          *int `json:"start_year,omitempty"`
	EndYear            *int `json:"end_year,omitempty"`
	EnrichFromProvider bool `json:"enrich_from_provider,omitempty"`
	SkipClassifier     bool `json:"skip_classifier,omitempty"`
}

// HasYearBound 是否设置了任一年份边界
func (c SearchConfig) HasYearBound() bool {
	return c.StartYear != nil || c.EndYear != nil
}

// AcceptsYear 判断上映年份是否落在闭区间内；未设置边界时全部通过（包括缺失年份）
func (c SearchConfig) AcceptsYear(year int, ok bool) bool {
	if !c.HasYearBound() {
		return true
	}
	if !ok {
		return false
	}
	if c.StartYear != nil && year < *c.StartYear {
		return false
	}
	if c.EndYear != nil && year > *c.EndYear {
		return false
	}
	return true
}

// RetrievalResult 检索结果：TMDB 路径与向量路径分别返回，互不合并
type RetrievalResult struct {
	Query           string        `json:"query"`
	CorrelationID   string        `json:"correlation_id,omitempty"`
	Branch          Branch        `json:"branch"`
	Intent          ParsedIntent  `json:"intent"`
	ProviderResults []Movie       `json:"provider_results"`
	VectorResults   []ScoredMovie `json:"vector_results"`
	Error           string        `json:"error,omitempty"`
}

// EmptyResult 空结果（两个列表都非 nil，便于 JSON 输出 []）
func EmptyResult(query string) RetrievalResult {
	return RetrievalResult{
		Query:           query,
		ProviderResults: []Movie{},
		VectorResults:   []ScoredMovie{},
	}
}

// SearchLog 搜索日志
type SearchLog struct {
	ID             int64     `json:"id" gorm:"primaryKey"`
	Query          string    `json:"query" gorm:"not null"`
	Branch         string    `json:"branch"`
	CorrelationID  string    `json:"correlation_id" gorm:"index"`
	ProviderCount  int       `json:"provider_count"`
	VectorCount    int       `json:"vector_count"`
	DurationMillis int64     `json:"duration_ms"`
	Failed         bool      `json:"failed"`
	CreatedAt      time.Time `json:"created_at" gorm:"index"`
}

func (SearchLog) TableName() string {
	return "search_logs"
}
