package evidence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/healthqa/internal/config"
)

// TypeRule maps a document type to a level.
type TypeRule struct {
	Level Level `koanf:"level" json:"level"`
	// TimeSensitive content is subject to the recency cap.
	TimeSensitive bool `koanf:"time_sensitive" json:"time_sensitive"`
}

// LevelInfo is the display label and fixed rationale for a level.
type LevelInfo struct {
	Level       Level  `koanf:"level" json:"level"`
	Name        string `koanf:"name" json:"name"`
	Explanation string `koanf:"explanation" json:"explanation"`
}

// DomainScore is a source-domain authority score (0-100).
type DomainScore struct {
	Domain string  `koanf:"domain" json:"domain"`
	Score  float64 `koanf:"score" json:"score"`
}

// NameHint raises authority to at least Score when the source name
// contains any keyword.
type NameHint struct {
	Keywords []string `koanf:"keywords" json:"keywords"`
	Score    float64  `koanf:"score" json:"score"`
}

// KeywordBonus adds to the document-type component of the score when the
// title or content contains Keyword.
type KeywordBonus struct {
	Keyword string  `koanf:"keyword" json:"keyword"`
	Bonus   float64 `koanf:"bonus" json:"bonus"`
}

// Rules is the complete grading table.
type Rules struct {
	// Types is keyed by normalized document type (lowercase, underscores).
	Types  map[string]TypeRule `koanf:"types" json:"types"`
	Levels []LevelInfo         `koanf:"levels" json:"levels"`

	StaleAfter    config.Duration `koanf:"stale_after" json:"stale_after"`
	StaleCapLevel Level           `koanf:"stale_cap_level" json:"stale_cap_level"`
	// StaticTopics exempt passages from the recency cap when found in the
	// topic or title.
	StaticTopics []string `koanf:"static_topics" json:"static_topics"`

	Authorities      []DomainScore  `koanf:"authorities" json:"authorities"`
	DefaultAuthority float64        `koanf:"default_authority" json:"default_authority"`
	NameHints        []NameHint     `koanf:"name_hints" json:"name_hints"`
	KeywordBonuses   []KeywordBonus `koanf:"keyword_bonuses" json:"keyword_bonuses"`
}

const fiveYears = 5 * 365 * 24 * time.Hour

// DefaultRules returns the built-in grading table.
func DefaultRules() *Rules {
	return &Rules{
		Types: map[string]TypeRule{
			"guideline":               {Level: LevelHigh, TimeSensitive: true},
			"fact_sheet":              {Level: LevelHigh, TimeSensitive: true},
			"official":                {Level: LevelHigh, TimeSensitive: true},
			"public_health_guideline": {Level: LevelHigh, TimeSensitive: true},
			"encyclopedia":            {Level: LevelMedium, TimeSensitive: true},
			"medical_encyclopedia":    {Level: LevelMedium, TimeSensitive: true},
			"health_article":          {Level: LevelMedium, TimeSensitive: true},
			"clinical_reference":      {Level: LevelMedium, TimeSensitive: true},
			"encyclopedia_wiki":       {Level: LevelLow},
			"wiki":                    {Level: LevelLow},
			"news":                    {Level: LevelLow},
			"forum":                   {Level: LevelReference},
			"forum_post":              {Level: LevelReference},
			"community":               {Level: LevelReference},
			"qa":                      {Level: LevelReference},
		},
		Levels: []LevelInfo{
			{Level: LevelHigh, Name: "高", Explanation: "来源为国家或国际公共卫生机构发布的官方指南或事实清单，经过政策审查，机构权威性最高。"},
			{Level: LevelMedium, Name: "中", Explanation: "来源为经过编辑审核的医学百科或知名健康信息机构，内容经过专业审阅。"},
			{Level: LevelLow, Name: "低", Explanation: "来源为众包编辑的通用百科或资讯，未经专门医学审核；或权威内容发布时间过久，时效性不足。"},
			{Level: LevelReference, Name: "参考", Explanation: "来源为论坛、社区等未经核实的用户生成内容，或来源类型无法识别，仅供参考。"},
		},
		StaleAfter:    config.Duration(fiveYears),
		StaleCapLevel: LevelLow,
		StaticTopics:  []string{"anatomy", "physiology", "解剖", "生理", "人体结构"},
		Authorities: []DomainScore{
			{"who.int", 100}, {"cdc.gov", 98}, {"nih.gov", 95},
			{"chinacdc.cn", 95}, {"nhc.gov.cn", 95}, {"gov.cn", 90},
			{"mayoclinic.org", 88}, {"medlineplus.gov", 85}, {"harvard.edu", 85},
			{"clevelandclinic.org", 82}, {"webmd.com", 75}, {"healthline.com", 70},
			{"dxy.cn", 65}, {"baikemy.com", 65}, {"chunyuyisheng.com", 60},
			{"baike.baidu.com", 52}, {"tieba.baidu.com", 35},
		},
		DefaultAuthority: 40,
		NameHints: []NameHint{
			{Keywords: []string{"who", "world health organization", "世界卫生组织"}, Score: 98},
			{Keywords: []string{"cdc", "疾控"}, Score: 95},
			{Keywords: []string{"mayo", "梅奥"}, Score: 85},
		},
		KeywordBonuses: []KeywordBonus{
			{"guideline", 15}, {"指南", 15},
			{"systematic review", 12}, {"meta-analysis", 12},
			{"clinical trial", 10}, {"official", 10},
			{"fact sheet", 8}, {"encyclopedia", 5},
		},
	}
}

// NormalizeType lowercases and maps spaces and hyphens to underscores.
func NormalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(t)
}

// Validate checks that every level referenced is within 1..4 and that
// every level has display info.
func (r *Rules) Validate() error {
	var errs []error
	for name, rule := range r.Types {
		if !rule.Level.Valid() {
			errs = append(errs, fmt.Errorf("type %q: level %d out of range", name, rule.Level))
		}
		if NormalizeType(name) != name {
			errs = append(errs, fmt.Errorf("type %q: must be normalized as %q", name, NormalizeType(name)))
		}
	}
	if !r.StaleCapLevel.Valid() {
		errs = append(errs, fmt.Errorf("stale_cap_level %d out of range", r.StaleCapLevel))
	}
	if r.StaleAfter.Duration() <= 0 {
		errs = append(errs, errors.New("stale_after must be positive"))
	}
	seen := map[Level]bool{}
	for _, info := range r.Levels {
		if !info.Level.Valid() {
			errs = append(errs, fmt.Errorf("levels: level %d out of range", info.Level))
			continue
		}
		if info.Name == "" || info.Explanation == "" {
			errs = append(errs, fmt.Errorf("levels: level %d needs name and explanation", info.Level))
		}
		seen[info.Level] = true
	}
	for l := LevelReference; l <= LevelHigh; l++ {
		if !seen[l] {
			errs = append(errs, fmt.Errorf("levels: missing info for level %d", l))
		}
	}
	return errors.Join(errs...)
}

// Info returns display info for l.
func (r *Rules) Info(l Level) LevelInfo {
	for _, info := range r.Levels {
		if info.Level == l {
			return info
		}
	}
	return LevelInfo{Level: l}
}

// clone returns a deep copy so callers can mutate freely.
func (r *Rules) clone() *Rules {
	out := *r
	out.Types = make(map[string]TypeRule, len(r.Types))
	for k, v := range r.Types {
		out.Types[k] = v
	}
	out.Levels = append([]LevelInfo(nil), r.Levels...)
	out.StaticTopics = append([]string(nil), r.StaticTopics...)
	out.Authorities = append([]DomainScore(nil), r.Authorities...)
	out.NameHints = append([]NameHint(nil), r.NameHints...)
	out.KeywordBonuses = append([]KeywordBonus(nil), r.KeywordBonuses...)
	return &out
}
