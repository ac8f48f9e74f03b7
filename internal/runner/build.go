package runner

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/valpere/perebench/internal/config"
	"github.com/valpere/perebench/internal/hardcheck"
	"github.com/valpere/perebench/internal/llm"
	"github.com/valpere/perebench/internal/pipeline"
	"github.com/valpere/perebench/internal/prompt"
	"github.com/valpere/perebench/internal/trace"
)

// Build assembles a Runner from a parsed configuration. All components
// share one response cache and one rate limiter; gateways are created per
// provider so mixed-provider configs work.
func Build(cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var cache *llm.Cache
	if dir := cfg.CacheDir(); dir != "" {
		cache = llm.NewCache(dir)
	}
	limiter := llm.NewRateLimiter(cfg.RunSettings.RPM, cfg.RunSettings.TPM)
	resolver := prompt.NewResolver(cfg.ArtifactPaths())

	gateways := make(map[string]*llm.Gateway)
	gatewayFor := func(provider string) (*llm.Gateway, error) {
		if gw, ok := gateways[provider]; ok {
			return gw, nil
		}
		p, err := llm.NewProvider(provider)
		if err != nil {
			return nil, err
		}
		gw := llm.NewGateway(p, cache, limiter, logger)
		gateways[provider] = gw
		return gw, nil
	}

	promptDumps := make(map[string]string)

	// resolveComponent returns the pieces of one configured stage; a nil
	// component yields a nil gateway (heuristic mode).
	resolveComponent := func(name string, comp *config.Component) (*llm.Gateway, llm.ModelSpec, *prompt.Resolved, error) {
		if comp == nil || comp.Model.Provider == "" {
			return nil, llm.ModelSpec{}, nil, nil
		}
		gw, err := gatewayFor(comp.Model.Provider)
		if err != nil {
			return nil, llm.ModelSpec{}, nil, fmt.Errorf("components.%s: %w", name, err)
		}
		var resolved *prompt.Resolved
		if !comp.Prompt.IsZero() {
			resolved, err = resolver.Resolve(comp.Prompt)
			if err != nil {
				return nil, llm.ModelSpec{}, nil, fmt.Errorf("components.%s: %w", name, err)
			}
			promptDumps[name] = resolved.Template
		}
		return gw, comp.Model, resolved, nil
	}

	translatorGW, translatorModel, translatorPrompt, err := resolveComponent("translator", &cfg.Components.Translator)
	if err != nil {
		return nil, err
	}
	if translatorGW == nil {
		return nil, fmt.Errorf("components.translator: model is required")
	}

	engine := hardcheck.New(cfg.HardCheckSettings())

	pipe := Pipeline{
		Translator: pipeline.NewTranslator(translatorGW, translatorModel, translatorPrompt),
	}

	if gw, model, res, err := resolveComponent("translatorWithState", cfg.Components.TranslatorWithState); err != nil {
		return nil, err
	} else if gw != nil {
		pipe.TranslatorWithState = pipeline.NewTranslator(gw, model, res)
	}

	gw, model, res, err := resolveComponent("stateBuilder", cfg.Components.StateBuilder)
	if err != nil {
		return nil, err
	}
	pipe.StateBuilder = pipeline.NewStateBuilder(gw, model, res, logger)

	gw, model, res, err = resolveComponent("verifier", cfg.Components.Verifier)
	if err != nil {
		return nil, err
	}
	pipe.Verifier = pipeline.NewVerifier(engine, gw, model, res, logger)

	gw, model, res, err = resolveComponent("repairer", cfg.Components.Repairer)
	if err != nil {
		return nil, err
	}
	pipe.Repairer = pipeline.NewRepairer(gw, model, res)

	gw, model, res, err = resolveComponent("judge", cfg.Components.Judge)
	if err != nil {
		return nil, err
	}
	pipe.Judge = pipeline.NewJudge(gw, model, res, cfg.RunSettings.JudgeRuns, logger)

	tracer := trace.New(cfg.Langfuse.Enabled, cfg.Langfuse.BaseURL, logger)

	settings := Settings{
		Concurrency:       cfg.RunSettings.Concurrency,
		MaxRepairs:        cfg.RunSettings.MaxRepairs,
		Defaults:          cfg.Defaults.Constraints,
		ResolvedPromptDir: cfg.ResolvedPromptDir(),
		PromptDumps:       promptDumps,
	}

	return New(pipe, settings, tracer, logger), nil
}
