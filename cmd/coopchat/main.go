package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/freshcoop/coopchat/internal/profile"
	"github.com/freshcoop/coopchat/plugin/llm"
	"github.com/freshcoop/coopchat/server/chat"
	"github.com/freshcoop/coopchat/server/queryengine"
	"github.com/freshcoop/coopchat/server/resolver"
	"github.com/freshcoop/coopchat/server/retrieval"
	apiv1 "github.com/freshcoop/coopchat/server/router/api/v1"
	"github.com/freshcoop/coopchat/server/session"
	"github.com/freshcoop/coopchat/store"
	"github.com/freshcoop/coopchat/store/cache"
)

const version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "coopchat",
	Short: "社区生鲜合作社的中文对话服务",
	RunE: func(_ *cobra.Command, _ []string) error {
		p := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Version: version,
		}
		p.FromEnv()
		if err := p.Validate(); err != nil {
			return errors.Wrap(err, "invalid profile")
		}
		return run(p)
	},
}

func init() {
	rootCmd.PersistentFlags().String("mode", "dev", `server mode: "dev" or "prod"`)
	rootCmd.PersistentFlags().String("addr", "", "binding address")
	rootCmd.PersistentFlags().Int("port", 8081, "binding port")
	rootCmd.PersistentFlags().String("data", "data", "data directory")

	for _, name := range []string{"mode", "addr", "port", "data"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("coopchat")
	viper.AutomaticEnv()
}

func run(p *profile.Profile) error {
	level := slog.LevelInfo
	if p.IsDev() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// 启动表：目录和语料损坏直接拒绝启动
	catalog, corpus, err := loadTables(p.Data)
	if err != nil {
		return errors.Wrap(err, "load startup tables")
	}
	logger.Info("启动表加载完成", "products", catalog.Len(), "sentences", len(corpus.Sentences()))

	classifierOpts := []queryengine.Option{queryengine.WithLogger(logger)}
	if model, err := queryengine.LoadBayesModel(filepath.Join(p.Data, "intent_model.json")); err != nil {
		// 模型缺失不致命，分类器自己会告警并降级为纯规则
		logger.Warn("统计模型加载失败", "error", err)
	} else {
		classifierOpts = append(classifierOpts, queryengine.WithModel(model))
	}
	classifier, err := queryengine.NewClassifier(classifierOpts...)
	if err != nil {
		return errors.Wrap(err, "build classifier")
	}

	var l2 cache.Backend
	if p.RedisAddr != "" {
		l2 = cache.NewRedisBackend(cache.RedisConfig{
			Addr:     p.RedisAddr,
			Password: p.RedisPassword,
		}, logger)
	}
	cacheManager := cache.NewManager(cache.Config{
		L2:     l2,
		Logger: logger,
		Preheat: []cache.PreheatQuery{
			{Query: "怎么付款", Type: cache.QueryTypePolicy},
			{Query: "配送费多少", Type: cache.QueryTypePolicy},
			{Query: "取货地址", Type: cache.QueryTypePolicy},
		},
	})
	defer cacheManager.Close()

	sessions := session.NewStore(session.Config{Logger: logger})
	defer sessions.Close()

	var llmService llm.Service
	if p.IsLLMEnabled() {
		llmService, err = llm.NewService(llm.Config{
			APIKey:  p.LLMAPIKey,
			BaseURL: p.LLMBaseURL,
			Model:   p.LLMModel,
		})
		if err != nil {
			return errors.Wrap(err, "build llm client")
		}
	} else {
		logger.Warn("未配置生成式模型，unknown 意图将返回兜底话术")
	}

	policies := retrieval.NewEngine(corpus, retrieval.WithLogger(logger))
	router, err := chat.NewRouter(chat.Config{
		Classifier: classifier,
		Resolver:   resolver.New(catalog, resolver.WithLogger(logger)),
		Policies:   policies,
		Catalog:    catalog,
		Corpus:     corpus,
		Cache:      cacheManager,
		Sessions:   sessions,
		LLM:        llmService,
		Logger:     logger,
	})
	if err != nil {
		return errors.Wrap(err, "build router")
	}

	// 预热走与正常请求相同的政策检索路径
	cacheManager.SetPreheatLoader(func(_ context.Context, q cache.PreheatQuery) ([]byte, error) {
		results := policies.Search(q.Query, 0)
		if len(results) == 0 {
			return nil, nil
		}
		return json.Marshal(chat.Response{Text: results[0].Sentence.Content})
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	apiv1.NewAPIV1Service(router, cacheManager, logger).Register(e)

	addr := fmt.Sprintf("%s:%d", p.Addr, p.Port)
	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("服务启动失败", "error", err)
			os.Exit(1)
		}
	}()
	logger.Info("coopchat 已启动", "addr", addr, "version", p.Version, "mode", p.Mode)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown server")
	}
	logger.Info("coopchat 已退出")
	return nil
}

// loadTables reads the already-parsed catalog and policy files from the
// data directory and builds the immutable startup tables.
func loadTables(dataDir string) (*store.Catalog, *store.PolicyCorpus, error) {
	var rows []store.ProductRow
	if err := readJSON(filepath.Join(dataDir, "catalog.json"), &rows); err != nil {
		return nil, nil, err
	}
	catalog, err := store.NewCatalog(rows)
	if err != nil {
		return nil, nil, err
	}

	var policy struct {
		Sentences []string `json:"sentences"`
	}
	if err := readJSON(filepath.Join(dataDir, "policy.json"), &policy); err != nil {
		return nil, nil, err
	}
	corpus, err := store.NewPolicyCorpus(policy.Sentences, store.DefaultPolicyCategories())
	if err != nil {
		return nil, nil, err
	}
	return catalog, corpus, nil
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
