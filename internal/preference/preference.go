package preference

import "strings"

// Key is the storage key the preference is persisted under.
const Key = "analysis_preference"

// Preference is the user's analysis focus.
type Preference string

const (
	Normal            Preference = "normal"
	Allergy           Preference = "allergy"
	Kids              Preference = "kids"
	Pregnancy         Preference = "pregnancy"
	WeightLoss        Preference = "weight_loss"
	LowSodium         Preference = "low_sodium"
	Fitness           Preference = "fitness"
	GutSensitive      Preference = "gut_sensitive"
	LactoseIntolerant Preference = "lactose_intolerant"
)

// Default is used whenever nothing valid is stored.
const Default = Normal

// Option describes a preference for selection screens.
type Option struct {
	Value       Preference
	Label       string
	Description string
}

var options = []Option{
	{Value: Normal, Label: "普通人群", Description: "适合大多数人，综合查看风险与建议"},
	{Value: Allergy, Label: "过敏体质", Description: "重点关注过敏原与交叉污染提示"},
	{Value: Kids, Label: "儿童/婴幼儿", Description: "关注高糖、刺激性与儿童敏感成分"},
	{Value: Pregnancy, Label: "孕期/哺乳", Description: "关注刺激性成分与不明确添加剂"},
	{Value: WeightLoss, Label: "控糖/控重", Description: "关注糖分、脂肪与热量负担"},
	{Value: LowSodium, Label: "低钠/心血管关注", Description: "关注钠盐、调味剂与血压负担"},
	{Value: Fitness, Label: "健身增肌", Description: "关注蛋白质与整体营养结构"},
	{Value: GutSensitive, Label: "肠胃敏感", Description: "关注刺激性成分与肠胃负担"},
	{Value: LactoseIntolerant, Label: "乳糖不耐/乳制品敏感", Description: "关注乳制品相关成分"},
}

// Options returns the selectable preferences in display order.
func Options() []Option {
	out := make([]Option, len(options))
	copy(out, options)
	return out
}

// Parse normalises raw into a Preference. Empty input and "none" map to the
// default. The boolean is false when raw is not a known value, in which case
// the default is returned.
func Parse(raw string) (Preference, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" || value == "none" {
		return Default, true
	}
	for _, opt := range options {
		if string(opt.Value) == value {
			return opt.Value, true
		}
	}
	return Default, false
}

// Valid reports whether p is one of the known preferences.
func (p Preference) Valid() bool {
	for _, opt := range options {
		if opt.Value == p {
			return true
		}
	}
	return false
}

func (p Preference) String() string {
	return string(p)
}
