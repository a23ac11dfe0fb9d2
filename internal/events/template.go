package events

import (
	"math"
	"strconv"
	"strings"

	"tycoon/internal/clock"

	"github.com/google/uuid"
)

type Effect string

const (
	EffectCrash         Effect = "crash"
	EffectBoom          Effect = "boom"
	EffectIndustryBoom  Effect = "industry_boom"
	EffectIndustryCrash Effect = "industry_crash"
	EffectCompanyBoom   Effect = "company_boom"
	EffectCompanyCrash  Effect = "company_crash"
	EffectBonus         Effect = "bonus"
	EffectLoss          Effect = "loss"
	EffectMixedShift    Effect = "mixed_shift"
	EffectNewsFluff     Effect = "news_fluff"
)

type Class int

const (
	ClassUnknown Class = iota
	ClassGlobalShock
	ClassIndustryShock
	ClassCompanyShock
	ClassCashBonus
	ClassCashLoss
	ClassVolatilityShift
	ClassNoOp
)

func (e Effect) Class() Class {
	switch e {
	case EffectCrash, EffectBoom:
		return ClassGlobalShock
	case EffectIndustryBoom, EffectIndustryCrash:
		return ClassIndustryShock
	case EffectCompanyBoom, EffectCompanyCrash:
		return ClassCompanyShock
	case EffectBonus:
		return ClassCashBonus
	case EffectLoss:
		return ClassCashLoss
	case EffectMixedShift:
		return ClassVolatilityShift
	case EffectNewsFluff:
		return ClassNoOp
	default:
		return ClassUnknown
	}
}

// Direction is -1 for price falls and +1 otherwise. Template values are magnitudes.
func (e Effect) Direction() float64 {
	switch e {
	case EffectCrash, EffectIndustryCrash, EffectCompanyCrash:
		return -1
	default:
		return 1
	}
}

type Template struct {
	ID          string  `json:"id" yaml:"id"`
	Title       string  `json:"title" yaml:"title"`
	Description string  `json:"description" yaml:"description"`
	Effect      Effect  `json:"effect" yaml:"effect"`
	Value       float64 `json:"value" yaml:"value"`
	MinValue    float64 `json:"min_value" yaml:"min_value"`
	MaxValue    float64 `json:"max_value" yaml:"max_value"`
	Industry    string  `json:"industry,omitempty" yaml:"industry"`
	Company     string  `json:"company,omitempty" yaml:"company"`
}

func (t Template) ranged() bool {
	return t.MinValue != 0 || t.MaxValue != 0
}

type Instance struct {
	ID          uuid.UUID  `json:"id"`
	TemplateID  string     `json:"template_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Effect      Effect     `json:"effect"`
	Value       float64    `json:"value"`
	Industry    string     `json:"industry,omitempty"`
	Company     string     `json:"company,omitempty"`
	At          clock.Time `json:"at"`
}

// Format fills {percentage}, {amount}, {industry} and {company}. Placeholders
// without a backing value are left as written.
func (i Instance) Format(text string) string {
	var pairs []string
	if i.Value != 0 {
		pairs = append(pairs,
			"{percentage}", strconv.FormatFloat(i.Value*100, 'f', 1, 64),
			"{amount}", strconv.FormatInt(int64(math.Round(i.Value)), 10),
		)
	}
	if i.Industry != "" {
		pairs = append(pairs, "{industry}", i.Industry)
	}
	if i.Company != "" {
		pairs = append(pairs, "{company}", i.Company)
	}
	if len(pairs) == 0 {
		return text
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
