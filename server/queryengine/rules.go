package queryengine

import (
	"regexp"

	"github.com/pkg/errors"
)

// ruleSpec 规则表行：同一意图的模式按精确到宽泛排列
// 表序即优先序，这是正确性契约而非实现细节：
// 窄的 refund_request 必须排在宽的 policy_inquiry 关键词扫描之前，
// 否则"我要退货"会被"退"字吸进政策类。调整顺序等于改变分类结果。
type ruleSpec struct {
	intent   Intent
	patterns []string
}

// 高优先规则：无论上下文如何都不允许被其他意图抢走的表达
// 第一条命中即短路全部后续层
var priorityRuleSpecs = []ruleSpec{
	{IntentRefundRequest, []string{
		`^(退货|退款)$`,
		`^(我要|我想|申请)(退货|退款)`,
		`(退货|退款)(流程|申请)`,
		`(烂|坏|变质|变黑|发霉|质量).*(退|怎么办|怎么处理|如何处理)`,
		`(怎么|如何)退(货|款)?`,
		`(能|可以)退(吗|货|款)?`,
		`售后|联系客服`,
	}},
	{IntentGreeting, []string{
		`^(你好|您好|hi|hello|嗨|在吗|早上好|晚上好)(啊|呀)?$`,
	}},
	{IntentIdentityQuery, []string{
		`你是(谁|什么|机器人|ai|chatgpt|助手|真人)`,
		`(介绍|说说)(一下)?(你)?自己`,
		`你叫什么(名字)?`,
	}},
}

// 通用规则表：每个意图一组有序模式，按意图声明序扫描，
// 首个命中的意图即为结果，置信度恒为 1.0
var generalRuleSpecs = []ruleSpec{
	{IntentCatalogOverview, []string{
		`(你们)?(卖|有)(什么|哪些)(产品|商品|东西|水果|蔬菜)`,
		`(商品|产品)列表`,
		`菜单`,
		`都有(什么|哪些|啥)`,
	}},
	{IntentPriceOrBuy, []string{
		`(多少钱|价格|怎么卖|售价|一斤多少)`,
		`(我要|来|买)(一|两|几|[0-9]+)?(斤|个|袋|箱|盒|份)`,
	}},
	{IntentAvailability, []string{
		`(有没有|有不有|有木有)`,
		`(卖不卖|卖不|卖吗|有不)`,
		`^有.+(吗|么|没)$`,
		`^.{1,5}有$`,
		`还有.*(吗|没)`,
	}},
	{IntentRecommendation, []string{
		`(推荐|介绍)(点|一些|几样)?(好吃的|东西|产品|什么)?`,
		`什么(比较好|值得买|好吃|特色)`,
		`有什么(推荐|好的|特色)`,
		`当季有什么`,
	}},
	{IntentPolicyInquiry, []string{
		`(政策|条款|规定|须知)`,
		`(配送|送货|运费|快递|物流|截单)`,
		`(付款|支付|转账|汇款|venmo)`,
		`(取货|自取|自提)`,
		`质量问题怎么办`,
	}},
}

type compiledRule struct {
	intent   Intent
	patterns []*regexp.Regexp
}

// compileRules turns a rule spec table into compiled form. A malformed
// pattern is a fatal startup error per the error taxonomy: serving with
// a broken rule table silently misclassifies.
func compileRules(specs []ruleSpec) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(specs))
	for _, spec := range specs {
		if spec.intent == "" || len(spec.patterns) == 0 {
			return nil, errors.Errorf("queryengine: empty rule spec for intent %q", spec.intent)
		}
		cr := compiledRule{intent: spec.intent}
		for _, p := range spec.patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, errors.Wrapf(err, "queryengine: bad pattern %q for intent %s", p, spec.intent)
			}
			cr.patterns = append(cr.patterns, re)
		}
		out = append(out, cr)
	}
	return out, nil
}

// matchRules returns the first intent whose pattern list matches,
// respecting both the intent order and the per-intent pattern order.
func matchRules(rules []compiledRule, normalized string) (Intent, bool) {
	for _, r := range rules {
		for _, re := range r.patterns {
			if re.MatchString(normalized) {
				return r.intent, true
			}
		}
	}
	return IntentUnknown, false
}
