package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"envi/app/config"
	"envi/app/service/eval"
	"envi/app/service/memory"
	"envi/app/service/pipeline"
	"envi/app/service/report"
	"envi/app/service/session"
	"envi/app/service/stages"
	"envi/app/util/jsonx"

	"github.com/elliotchance/pie/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/do"
)

const turnTimeout = 2 * time.Minute

const clarificationReply = "I couldn't put together an answer from that. " +
	"Which city, town or area are you asking about, and what do you plan to do there?"

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// Service owns the HTTP surface and the per-user conversations. Each
// user ID maps to one long-lived session state; turns of the same user
// serialize on the session, turns of different users run concurrently.
type Service struct {
	cfg         *config.Config
	pipelineSvc *pipeline.Service
	stagesSvc   *stages.Service
	memorySvc   *memory.Service
	reportSvc   *report.Service
	evaluator   *eval.Evaluator

	mu       sync.Mutex
	sessions map[string]*userSession
}

// userSession pairs a session state with the mutex that serializes
// whole turns on it. State's internal lock only makes single reads and
// writes atomic; a turn spans many of them.
type userSession struct {
	mu sync.Mutex
	st *session.State
}

func New(di *do.Injector) (*Service, error) {
	return &Service{
		cfg:         do.MustInvoke[*config.Config](di),
		pipelineSvc: do.MustInvoke[*pipeline.Service](di),
		stagesSvc:   do.MustInvoke[*stages.Service](di),
		memorySvc:   do.MustInvoke[*memory.Service](di),
		reportSvc:   do.MustInvoke[*report.Service](di),
		evaluator:   do.MustInvoke[*eval.Evaluator](di),
		sessions:    make(map[string]*userSession),
	}, nil
}

func (s *Service) Run(ctx context.Context) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Post("/api/chat", s.handleChat)

	go func() {
		<-ctx.Done()

		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}
	}()

	slog.Info("Listening", "addr", s.cfg.Server.Listen)

	if err := app.Listen(s.cfg.Server.Listen); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Server stopped", "error", err, "telegram", true)
	}
}

func (s *Service) handleChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if strings.TrimSpace(req.Message) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "message is required")
	}

	if req.UserID == "" {
		req.UserID = "anonymous"
	}

	ctx, cancel := context.WithTimeout(c.Context(), turnTimeout)
	defer cancel()

	start := time.Now()
	reply := s.ProcessTurn(ctx, req.UserID, req.Message)

	slog.Info("Processed turn",
		"user_id", req.UserID,
		"duration", time.Since(start),
	)

	return c.JSON(chatResponse{Reply: reply})
}

// ProcessTurn runs one full conversation turn: preference capture and
// report export short-circuit the pipeline, everything else goes
// through it.
func (s *Service) ProcessTurn(ctx context.Context, userID, message string) string {
	sess := s.sessionFor(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	st := sess.st

	st.Set(session.KeyUserMessage, message)
	st.Set(session.KeyUserID, userID)

	if isRememberIntent(message) {
		if reply := s.capturePreferences(ctx, userID, message); reply != "" {
			return reply
		}
	}

	if isExportIntent(message) {
		if reply := s.exportReport(st, message); reply != "" {
			return reply
		}
	}

	// a fresh audit key marks a turn that actually ran pipeline stages
	st.Delete(session.KeyAudit)

	reply := s.pipelineSvc.RunTurn(ctx, st)

	if audit, ok := st.Get(session.KeyAudit); ok {
		if auditMap, isMap := audit.(map[string]any); isMap {
			s.recordTurn(userID, st)

			results := s.evaluator.EvaluateTurn(auditMap)
			for _, r := range results {
				slog.Debug("Turn evaluation",
					"category", r.Category,
					"score", r.Score,
					"details", r.Details,
				)
			}
		}
	}

	if reply == "" {
		return clarificationReply
	}

	return reply
}

func (s *Service) sessionFor(userID string) *userSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		sess = &userSession{st: session.New()}
		s.sessions[userID] = sess
	}

	return sess
}

func (s *Service) capturePreferences(ctx context.Context, userID, message string) string {
	update, err := s.stagesSvc.ExtractPreferences(ctx, message)
	if err != nil {
		slog.Warn("Preference extraction failed", "error", err)
		return ""
	}

	if update == nil || update.Empty() {
		return ""
	}

	s.memorySvc.UpdatePreference(userID, *update)

	return "Got it, I'll keep that in mind for future recommendations."
}

func (s *Service) exportReport(st *session.State, message string) string {
	advice, ok := st.GetString(session.KeyAdviceMarkdown)
	if !ok {
		return "There is no report to save yet. Ask me about conditions somewhere first."
	}

	result, err := s.reportSvc.Export(jsonx.StripFences(advice), exportFilename(message))
	if err != nil {
		slog.Error("Report export failed", "error", err, "telegram", true)
		return "Saving the report failed, sorry. Please try again."
	}

	return "Report saved to " + result.Path + "."
}

// exportFilename pulls an explicit target file out of the message
// ("save the report to trip.md"); empty means use the default name.
func exportFilename(message string) string {
	for _, field := range strings.Fields(message) {
		token := strings.Trim(field, `"'.,!?()`)
		if strings.HasSuffix(token, ".md") || strings.HasSuffix(token, ".txt") {
			return token
		}
	}

	return ""
}

// recordTurn feeds the memory bank from whatever the pipeline resolved
// this turn.
func (s *Service) recordTurn(userID string, st *session.State) {
	resolved, ok := st.Get(session.KeyResolvedLocation)
	if !ok {
		return
	}

	loc, ok := resolved.(map[string]any)
	if !ok {
		return
	}

	name, _ := loc["name"].(string)
	if name == "" {
		return
	}

	lat, _ := jsonx.AsFloat(loc["latitude"])
	lon, _ := jsonx.AsFloat(loc["longitude"])
	activity, _ := loc["activity"].(string)

	conditions := snapshotConditions(st)

	s.memorySvc.RecordQuery(userID, name, activity, conditions)
	s.memorySvc.RecordLocation(name, lat, lon, conditions, "")
}

func snapshotConditions(st *session.State) map[string]any {
	snapshot, ok := st.Get(session.KeySnapshot)
	if !ok {
		return nil
	}

	entry, isMap := snapshot.(map[string]any)
	if !isMap {
		list, isList := snapshot.([]any)
		if !isList || len(list) == 0 {
			return nil
		}
		entry, isMap = list[0].(map[string]any)
		if !isMap {
			return nil
		}
	}

	current, _ := entry["current"].(map[string]any)
	if len(current) == 0 {
		return nil
	}

	conditions := make(map[string]any, len(current))
	for k, v := range current {
		if v != nil {
			conditions[k] = v
		}
	}

	return conditions
}

var rememberKeywords = []string{
	"remember",
	"my favorite",
	"my favourite",
	"i prefer",
	"i like",
	"i love",
	"i enjoy",
}

var exportKeywords = []string{
	"save the report",
	"save this report",
	"save report",
	"export the report",
	"export report",
	"save that as a file",
}

func isRememberIntent(message string) bool {
	lower := strings.ToLower(message)

	return pie.Any(rememberKeywords, func(kw string) bool {
		return strings.Contains(lower, kw)
	})
}

func isExportIntent(message string) bool {
	lower := strings.ToLower(message)

	return pie.Any(exportKeywords, func(kw string) bool {
		return strings.Contains(lower, kw)
	})
}
