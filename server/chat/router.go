// Package chat implements the top-level router: cache-first dispatch
// over classification, entity resolution, policy retrieval and the
// generative fallback, with multi-turn clarification handling.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/freshcoop/coopchat/plugin/llm"
	"github.com/freshcoop/coopchat/server/nlp"
	"github.com/freshcoop/coopchat/server/queryengine"
	"github.com/freshcoop/coopchat/server/resolver"
	"github.com/freshcoop/coopchat/server/retrieval"
	"github.com/freshcoop/coopchat/server/session"
	"github.com/freshcoop/coopchat/store"
	"github.com/freshcoop/coopchat/store/cache"
)

const (
	// PolicyCategoryPrefix distinguishes a policy-category payload
	// from a raw catalog key in selection options.
	PolicyCategoryPrefix = "policy_category:"

	// llmTimeout 生成式兜底的调用上限
	llmTimeout = 10 * time.Second

	maxRecommendations = 3
)

// Response is what the transport layer renders: the answer text plus
// optional selectable clarification options.
type Response struct {
	Text    string           `json:"text"`
	Options []session.Option `json:"options,omitempty"`
}

// Router wires the engine components together. All fields are set at
// construction and never mutated, so one Router serves all requests.
type Router struct {
	classifier *queryengine.Classifier
	resolver   *resolver.Resolver
	policies   *retrieval.Engine
	catalog    *store.Catalog
	corpus     *store.PolicyCorpus
	cache      *cache.Manager
	sessions   session.Service
	llm        llm.Service // nil 时跳过生成式兜底
	logger     *slog.Logger
}

// Config collects the router dependencies.
type Config struct {
	Classifier *queryengine.Classifier
	Resolver   *resolver.Resolver
	Policies   *retrieval.Engine
	Catalog    *store.Catalog
	Corpus     *store.PolicyCorpus
	Cache      *cache.Manager
	Sessions   session.Service
	LLM        llm.Service
	Logger     *slog.Logger
}

// NewRouter validates the wiring.
func NewRouter(cfg Config) (*Router, error) {
	if cfg.Classifier == nil || cfg.Resolver == nil || cfg.Policies == nil ||
		cfg.Catalog == nil || cfg.Corpus == nil || cfg.Cache == nil || cfg.Sessions == nil {
		return nil, errors.New("chat: missing router dependency")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{
		classifier: cfg.Classifier,
		resolver:   cfg.Resolver,
		policies:   cfg.Policies,
		catalog:    cfg.Catalog,
		corpus:     cfg.Corpus,
		cache:      cfg.Cache,
		sessions:   cfg.Sessions,
		llm:        cfg.LLM,
		logger:     cfg.Logger,
	}, nil
}

// HandleMessage processes one user turn. Every path terminates in a
// crafted user-facing response; internal failures degrade, they are
// never surfaced raw.
func (r *Router) HandleMessage(ctx context.Context, rawMessage, userID string) Response {
	logger := r.logger.With("request_id", uuid.NewString(), "user_id", userID)

	u := nlp.NewUtterance(rawMessage)
	if u.Normalized == "" {
		return Response{Text: msgEmptyInput}
	}

	// 待决澄清优先：有效选择直接解析，其他消息作废旧澄清后照常走
	if pending := r.sessions.GetPending(userID); pending != nil {
		if opt, ok := matchSelection(pending, rawMessage); ok {
			r.sessions.ClearPending(userID)
			return r.handleSelection(ctx, opt, userID, logger)
		}
		logger.Debug("非选择消息，作废待决澄清")
		r.sessions.ClearPending(userID)
	}

	// 省略追问：裸价格/数量消息借最近实体补全
	if resp, ok := r.handleFollowUp(u, userID, logger); ok {
		return resp
	}

	// 缓存前置于分类，键里带上下文实体防止省略句串味
	queryType := guessQueryType(u.Normalized)
	cacheKey := cache.Key(queryType, u.Normalized, r.sessions.GetLastContext(userID).ProductKey)
	if data, hit := r.cache.Get(ctx, cacheKey, queryType); hit {
		var resp Response
		if err := json.Unmarshal(data, &resp); err == nil {
			logger.Debug("缓存命中", "key", cacheKey)
			return resp
		}
		r.cache.Invalidate(ctx, cacheKey)
	}

	result := r.classifier.Classify(u)
	logger.Info("意图分类完成",
		"intent", result.Intent, "confidence", result.Confidence, "tier", result.Tier)

	resp, cacheable := r.dispatch(ctx, u, result.Intent, userID, logger)
	if cacheable {
		// 先落缓存再返回：即使调用方超时放弃，下一个相同查询也不再走慢路径
		if data, err := json.Marshal(resp); err == nil {
			r.cache.Put(ctx, cacheKey, data, queryType)
		}
	}
	return resp
}

// dispatch switches over the closed intent taxonomy. The second return
// reports whether the response may be cached: clarification and
// context-dependent turns must not be.
func (r *Router) dispatch(ctx context.Context, u nlp.Utterance, intent queryengine.Intent, userID string, logger *slog.Logger) (Response, bool) {
	switch intent {
	case queryengine.IntentGreeting:
		return Response{Text: msgGreeting}, false
	case queryengine.IntentIdentityQuery:
		return Response{Text: msgIdentity}, false
	case queryengine.IntentCatalogOverview:
		return r.handleCatalogOverview(), true
	case queryengine.IntentAvailability, queryengine.IntentPriceOrBuy:
		return r.handleProductQuery(u, intent, userID, logger)
	case queryengine.IntentRecommendation:
		return r.handleRecommendation(), false
	case queryengine.IntentPolicyInquiry:
		// 没点名具体类别的泛问先给类别菜单；退货意图则直达语料
		if resp, ok := r.policyCategoryMenu(u, userID, logger); ok {
			return resp, false
		}
		return r.handlePolicyQuery(ctx, u, logger)
	case queryengine.IntentRefundRequest:
		return r.handlePolicyQuery(ctx, u, logger)
	case queryengine.IntentUnknown:
		fallthrough
	default:
		return r.generativeFallback(ctx, u, nil, logger), false
	}
}

// handleProductQuery runs fuzzy resolution and the disambiguation flow.
func (r *Router) handleProductQuery(u nlp.Utterance, intent queryengine.Intent, userID string, logger *slog.Logger) (Response, bool) {
	fragment := r.resolver.ExtractFragment(u.Normalized)
	candidates := r.resolver.Resolve(fragment)

	switch len(candidates) {
	case 0:
		logger.Debug("实体未找到", "fragment", fragment)
		return Response{Text: fmt.Sprintf(msgProductNotFound, fragment)}, false
	case 1:
		p := candidates[0].Product
		p.BumpPopularity()
		r.sessions.SetLastContext(userID, p.Key)
		return Response{Text: productAnswer(p, intent)}, false
	default:
		opts := candidateOptions(resolver.ClarificationOptions(candidates))
		r.sessions.SetPending(userID, opts)
		return Response{Text: fmt.Sprintf(msgClarify, fragment), Options: opts}, false
	}
}

// handlePolicyQuery answers from the tiered policy search, falling back
// to the generative model with the raw corpus as context when empty.
func (r *Router) handlePolicyQuery(ctx context.Context, u nlp.Utterance, logger *slog.Logger) (Response, bool) {
	results := r.policies.Search(u.Normalized, 0)
	if len(results) == 0 {
		logger.Debug("政策检索空结果，转生成式兜底")
		return r.generativeFallback(ctx, u, r.corpus.Contents(), logger), false
	}

	var b strings.Builder
	for i, res := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(res.Sentence.Content)
	}
	logger.Debug("政策检索完成", "tier", results[0].Tier, "count", len(results))
	return Response{Text: b.String()}, true
}

func (r *Router) handleCatalogOverview() Response {
	var b strings.Builder
	b.WriteString(msgCatalogIntro)
	for _, cat := range r.catalog.Categories() {
		names := make([]string, 0, 4)
		for _, p := range r.catalog.ByCategory(cat) {
			names = append(names, p.DisplayName())
			if len(names) == 4 {
				break
			}
		}
		b.WriteString(fmt.Sprintf("\n【%s】%s", cat, strings.Join(names, "、")))
	}
	return Response{Text: b.String()}
}

// handleRecommendation answers from the catalog: seasonal items first,
// then popular ones, capped at three.
func (r *Router) handleRecommendation() Response {
	seen := make(map[string]struct{})
	var picks []*store.Product
	add := func(p *store.Product) {
		if _, dup := seen[p.Key]; dup || len(picks) >= maxRecommendations {
			return
		}
		seen[p.Key] = struct{}{}
		picks = append(picks, p)
	}
	for _, p := range r.catalog.Seasonal() {
		add(p)
	}
	for _, p := range r.catalog.Popular(maxRecommendations) {
		add(p)
	}
	if len(picks) == 0 {
		return Response{Text: msgNoRecommendation}
	}

	var b strings.Builder
	b.WriteString(msgRecommendIntro)
	for _, p := range picks {
		b.WriteString(fmt.Sprintf("\n· %s，%s", p.DisplayName(), priceLine(p)))
	}
	return Response{Text: b.String()}
}

// policyCategoryMenu intercepts policy questions that name no concrete
// topic ("你们有什么政策") and offers the category list as a pending
// clarification; the chosen payload routes back through handleSelection.
func (r *Router) policyCategoryMenu(u nlp.Utterance, userID string, logger *slog.Logger) (Response, bool) {
	guess := r.corpus.GuessCategory(u.Normalized)
	if guess != store.GenericCategory && guess != store.GeneralCategory {
		return Response{}, false
	}

	var opts []session.Option
	for _, cat := range r.corpus.Categories() {
		if len(r.corpus.ByCategory(cat.Name)) == 0 {
			continue
		}
		opts = append(opts, session.Option{
			DisplayText: cat.DisplayLabel(),
			Payload:     PolicyCategoryPrefix + cat.Name,
		})
	}
	if len(opts) == 0 {
		return Response{}, false
	}

	logger.Debug("泛政策询问，给出类别菜单", "guess", guess, "categories", len(opts))
	r.sessions.SetPending(userID, opts)
	return Response{Text: msgPolicyMenu, Options: opts}, true
}

// handleSelection resolves a clarification choice by payload.
func (r *Router) handleSelection(ctx context.Context, opt session.Option, userID string, logger *slog.Logger) Response {
	if cat, ok := strings.CutPrefix(opt.Payload, PolicyCategoryPrefix); ok {
		logger.Debug("选择了政策类别", "category", cat)
		var lines []string
		for i, s := range r.corpus.ByCategory(cat) {
			if i == retrieval.DefaultTopK {
				break
			}
			lines = append(lines, s.Content)
		}
		if len(lines) == 0 {
			return Response{Text: msgPolicyMiss}
		}
		return Response{Text: strings.Join(lines, "\n")}
	}

	p, ok := r.catalog.Get(opt.Payload)
	if !ok {
		logger.Error("选择的商品键不在目录中", "payload", opt.Payload)
		return Response{Text: msgSelectionBroken}
	}
	p.BumpPopularity()
	r.sessions.SetLastContext(userID, p.Key)
	return Response{Text: productDetail(p)}
}

var quantityPattern = regexp.MustCompile(
	`^([\d一二三四五六七八九十百千万俩两]+)(份|个|袋|盒|瓶|箱|斤|公斤|kg|只|板|串|打|磅)?(呢|呀|啊|吧|多少钱|总共)?$`)

// handleFollowUp resolves elliptical turns against the last entity:
// a bare price question or a bare quantity after a resolved product.
func (r *Router) handleFollowUp(u nlp.Utterance, userID string, logger *slog.Logger) (Response, bool) {
	last := r.sessions.GetLastContext(userID)
	if last.ProductKey == "" {
		return Response{}, false
	}
	p, ok := r.catalog.Get(last.ProductKey)
	if !ok {
		return Response{}, false
	}

	if isPurePriceQuery(u.Normalized) {
		logger.Debug("省略价格追问", "product", p.Key)
		r.sessions.SetLastContext(userID, p.Key)
		return Response{Text: productAnswer(p, queryengine.IntentPriceOrBuy)}, true
	}

	if m := quantityPattern.FindStringSubmatch(u.Normalized); m != nil {
		qty, err := nlp.ParseQuantity(m[1])
		if err != nil {
			return Response{}, false
		}
		logger.Debug("数量追问", "product", p.Key, "quantity", qty)
		r.sessions.SetLastContext(userID, p.Key)
		total := float64(qty) * p.Price
		return Response{Text: fmt.Sprintf(msgQuantityTotal, qty, p.Unit, p.DisplayName(), total)}, true
	}
	return Response{}, false
}

var purePriceQueries = map[string]struct{}{
	"多少钱": {}, "什么价": {}, "多少钱一斤": {}, "怎么卖": {}, "价格": {}, "贵吗": {},
}

func isPurePriceQuery(normalized string) bool {
	_, ok := purePriceQueries[normalized]
	return ok
}

// generativeFallback asks the external model, with partial retrieval
// context as hints and a strict timeout. The answer is cached as a chat
// entry so repeats skip the expensive call.
func (r *Router) generativeFallback(ctx context.Context, u nlp.Utterance, hints []string, logger *slog.Logger) Response {
	if r.llm == nil {
		return Response{Text: msgFallbackUnavailable}
	}

	cacheKey := cache.Key(cache.QueryTypeChat, u.Normalized, "")
	if data, hit := r.cache.Get(ctx, cacheKey, cache.QueryTypeChat); hit {
		var resp Response
		if err := json.Unmarshal(data, &resp); err == nil {
			return resp
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	messages := []llm.Message{{Role: "system", Content: llmSystemPrompt}}
	if len(hints) > 0 {
		messages = append(messages, llm.Message{
			Role:    "system",
			Content: "参考资料：\n" + strings.Join(hints, "\n"),
		})
	}
	messages = append(messages, llm.Message{Role: "user", Content: u.Raw})

	answer, err := r.llm.Chat(callCtx, messages)
	if err != nil {
		logger.Warn("生成式兜底失败", "error", err)
		return Response{Text: msgFallbackUnavailable}
	}

	resp := Response{Text: answer}
	if data, err := json.Marshal(resp); err == nil {
		r.cache.Put(ctx, cacheKey, data, cache.QueryTypeChat)
	}
	return resp
}

// matchSelection accepts an option payload, its display text, or a
// 1-based index as a valid selection.
func matchSelection(pending *session.PendingClarification, rawMessage string) (session.Option, bool) {
	msg := strings.TrimSpace(rawMessage)
	if msg == "" {
		return session.Option{}, false
	}
	if idx, err := strconv.Atoi(msg); err == nil {
		if idx >= 1 && idx <= len(pending.Options) {
			return pending.Options[idx-1], true
		}
		return session.Option{}, false
	}
	for _, opt := range pending.Options {
		if strings.EqualFold(msg, opt.Payload) || strings.EqualFold(msg, opt.DisplayText) {
			return opt, true
		}
	}
	return session.Option{}, false
}

func candidateOptions(cands []resolver.Candidate) []session.Option {
	opts := make([]session.Option, 0, len(cands))
	for _, c := range cands {
		opts = append(opts, session.Option{
			DisplayText: c.Product.DisplayName(),
			Payload:     c.Product.Key,
		})
	}
	return opts
}

// guessQueryType is the cache's own cheap query-type classification,
// run before the full classifier so cache reads stay on the fast path.
func guessQueryType(normalized string) cache.QueryType {
	for _, kw := range []string{"政策", "配送", "运费", "退货", "退款", "付款", "支付", "取货", "自提", "条款"} {
		if strings.Contains(normalized, kw) {
			return cache.QueryTypePolicy
		}
	}
	for _, kw := range []string{"多少钱", "价格", "有没有", "卖不", "有吗", "买", "推荐", "菜单", "卖什么"} {
		if strings.Contains(normalized, kw) {
			return cache.QueryTypeProduct
		}
	}
	return cache.QueryTypeChat
}
