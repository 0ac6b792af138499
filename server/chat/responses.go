package chat

import (
	"fmt"
	"strings"

	"github.com/freshcoop/coopchat/server/queryengine"
	"github.com/freshcoop/coopchat/store"
)

// 用户可见文案集中在这里，内部错误绝不以原始异常形态外泄
const (
	msgEmptyInput          = "抱歉，我没有听清您说什么。请再说一遍。"
	msgGreeting            = "您好！我是合作社的生鲜小助手，今天想来点什么新鲜的？"
	msgIdentity            = "我是这里的生鲜小助手，专门为您挑选最新鲜的食材，有什么可以帮您的吗？"
	msgProductNotFound     = "抱歉，没有找到「%s」相关的商品。您可以换个名字再问问，或者问我\"你们卖什么\"看看全部商品。"
	msgClarify             = "您问的「%s」有几个相近的商品，请问您指的是哪一个？"
	msgSelectionBroken     = "抱歉，查找您选择的商品信息时出了一点问题，请稍后再试。"
	msgPolicyMiss          = "关于这方面的规定我暂时没有找到具体信息，您可以换个方式问我，比如\"退货政策\"或\"运费\"。"
	msgPolicyMenu          = "我们的规则分这么几类，您想了解哪一方面？"
	msgCatalogIntro        = "我们目前在售的商品有："
	msgRecommendIntro      = "给您推荐几样不错的："
	msgNoRecommendation    = "最近还没有特别推荐的商品，您可以问我\"你们卖什么\"看看全部。"
	msgQuantityTotal       = "好的，%d%s %s 总共是 %.2f 元。"
	msgFallbackUnavailable = "这个问题我暂时答不上来，您可以问我商品、价格或者配送取货这些问题。"

	llmSystemPrompt = "你是一个社区食品合作社的中文客服助手，回答要简短、友好、只谈合作社业务。"
)

// productAnswer renders the availability or price answer for one
// resolved product.
func productAnswer(p *store.Product, intent queryengine.Intent) string {
	if intent == queryengine.IntentPriceOrBuy {
		return fmt.Sprintf("「%s」%s。%s", p.DisplayName(), priceLine(p), tailNote(p))
	}
	return fmt.Sprintf("有的！「%s」现在有售，%s。%s", p.DisplayName(), priceLine(p), tailNote(p))
}

// productDetail is the richer reply after an explicit selection.
func productDetail(p *store.Product) string {
	parts := []string{
		fmt.Sprintf("好的，我们来看看「%s」：", p.DisplayName()),
		fmt.Sprintf("%s，属于「%s」分类。", priceLine(p), p.Category),
	}
	if p.Description != "" {
		parts = append(parts, p.Description)
	}
	if p.Seasonal {
		parts = append(parts, "现在正当季，新鲜度有保障。")
	}
	parts = append(parts, "还有其他想了解的吗？")
	return strings.Join(parts, "\n")
}

func priceLine(p *store.Product) string {
	return fmt.Sprintf("价格是 %.2f 元/%s", p.Price, p.Specification)
}

func tailNote(p *store.Product) string {
	if p.Seasonal {
		return "正当季，值得一试！"
	}
	return "需要来点吗？"
}
