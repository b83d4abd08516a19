package stages

import (
	"envi/app/client/geocode"
	"envi/app/client/mcptools"
	"envi/app/client/openmeteo"
	"envi/app/config"
	"envi/app/service/memory"

	"github.com/samber/do"
	"github.com/tmc/langchaingo/tools"
)

// Service owns the LLM-driven pipeline stages. The worker model runs
// the structured stages, the writer model produces the final report.
type Service struct {
	cfg *config.Config

	weatherClient *openmeteo.Client
	geocodeClient *geocode.Client
	memorySvc     *memory.Service

	worker Completer
	writer Completer

	contextTools []tools.Tool
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)
	memorySvc := do.MustInvoke[*memory.Service](di)
	registry := do.MustInvoke[*mcptools.Registry](di)

	contextTools := append(memorySvc.Tools(), registry.Tools()...)

	return &Service{
		cfg:           cfg,
		weatherClient: do.MustInvoke[*openmeteo.Client](di),
		geocodeClient: do.MustInvoke[*geocode.Client](di),
		memorySvc:     memorySvc,
		worker:        newChatClient(cfg.OpenAI.Worker),
		writer:        newChatClient(cfg.OpenAI.Writer),
		contextTools:  contextTools,
	}, nil
}

func (s *Service) Location() *LocationStage {
	return &LocationStage{svc: s}
}

func (s *Service) Data() *DataStage {
	return &DataStage{svc: s}
}

func (s *Service) Risk() *RiskStage {
	return &RiskStage{svc: s}
}

func (s *Service) Advice() *AdviceStage {
	return &AdviceStage{svc: s}
}
