package intent

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/plumeline/plumeline/internal/i18n"
	"github.com/plumeline/plumeline/internal/llm"
	"github.com/plumeline/plumeline/models"
)

// ClarifierConfig bounds the clarification output
type ClarifierConfig struct {
	MaxQuestions int
}

// Clarifier decides whether extracted entities are sufficient and, if not,
// emits localized clarifying questions. The generic-breed rule is mandatory
// and never touches the provider.
type Clarifier struct {
	cfg ClarifierConfig
	llm *llm.Manager
	log *zap.Logger
}

// NewClarifier creates a clarifier; llm may be nil
func NewClarifier(cfg ClarifierConfig, manager *llm.Manager, log *zap.Logger) *Clarifier {
	if cfg.MaxQuestions <= 0 || cfg.MaxQuestions > 3 {
		cfg.MaxQuestions = 3
	}
	return &Clarifier{cfg: cfg, llm: manager, log: log}
}

// Check returns a clarification request, or nil when the question is clear.
// Rules are evaluated in order; only the last resorts to the provider.
func (c *Clarifier) Check(ctx context.Context, q *models.Query, intent models.Intent, e *models.ExtractedEntities) *models.ClarificationRequest {
	lang := q.Language

	// (a) Generic breed: mandatory rule-based clarification
	if e.IsGenericBreed() {
		fields := []string{"breed", "age"}
		if len(e.Symptoms) > 0 || intent == models.IntentDiagnosisTriage {
			fields = append(fields, "housing")
		} else if e.AgeDays != nil {
			fields = []string{"breed", "housing"}
		} else {
			fields = append(fields, "housing")
		}
		return c.fromTemplates(lang, fields)
	}

	// (b) Specific breed with age, and no symptom-driven intent: clear
	if e.BreedType != nil && *e.BreedType == models.BreedTypeSpecific &&
		e.AgeDays != nil && intent != models.IntentDiagnosisTriage {
		return nil
	}

	// (c) Growth/weight metric query missing breed or age
	if intent == models.IntentMetricQuery && isGrowthTopic(e) {
		var fields []string
		if e.Breed == nil {
			fields = append(fields, "breed")
		}
		if e.AgeDays == nil {
			fields = append(fields, "age")
		}
		if len(fields) > 0 {
			return c.fromTemplates(lang, fields)
		}
	}

	// (d) Ask the provider; CLEAR token means no clarification needed
	if c.llm != nil {
		if req := c.consultProvider(ctx, q, intent, e); req != nil {
			return req
		}
	}

	return nil
}

// fromTemplates builds a request from the localized template catalog
func (c *Clarifier) fromTemplates(lang string, fields []string) *models.ClarificationRequest {
	if len(fields) > c.cfg.MaxQuestions {
		fields = fields[:c.cfg.MaxQuestions]
	}
	questions := make([]string, 0, len(fields))
	for _, f := range fields {
		questions = append(questions, i18n.T(lang, i18n.ClarifyIDForField(f)))
	}
	return &models.ClarificationRequest{
		Questions:     questions,
		MissingFields: fields,
		Language:      lang,
	}
}

func (c *Clarifier) consultProvider(ctx context.Context, q *models.Query, intent models.Intent, e *models.ExtractedEntities) *models.ClarificationRequest {
	prompt := "A poultry farmer asked (" + q.Language + "): " + q.Text + "\n" +
		"Known details: " + summarizeEntities(e) + "\n" +
		"Intent: " + string(intent) + "\n\n" +
		"If the question can be answered as is, reply with the single word CLEAR.\n" +
		"Otherwise reply with up to " + strconv.Itoa(c.cfg.MaxQuestions) + " short clarifying questions in " +
		q.Language + ", one per line, nothing else."

	resp, err := c.llm.Generate(ctx, &llm.GenerationRequest{
		SystemPrompt: "You triage poultry production questions.",
		Prompt:       prompt,
		Temperature:  0.0,
	})
	if err != nil {
		if c.log != nil {
			c.log.Debug("clarification provider call failed", zap.Error(err))
		}
		return nil
	}

	text := strings.TrimSpace(resp.Text)
	if strings.EqualFold(text, "CLEAR") {
		return nil
	}

	var questions []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-•0123456789. "))
		if line != "" {
			questions = append(questions, line)
		}
		if len(questions) == c.cfg.MaxQuestions {
			break
		}
	}
	if len(questions) == 0 {
		return nil
	}
	return &models.ClarificationRequest{
		Questions: questions,
		Language:  q.Language,
	}
}

// isGrowthTopic reports whether the query targets growth or weight metrics
func isGrowthTopic(e *models.ExtractedEntities) bool {
	for _, m := range e.Metrics {
		if m == "weight" || m == "gain" || m == "fcr" {
			return true
		}
	}
	return e.TargetWeightG != nil
}

func summarizeEntities(e *models.ExtractedEntities) string {
	var parts []string
	if e.Breed != nil {
		parts = append(parts, "breed="+*e.Breed)
	}
	if e.Sex != nil {
		parts = append(parts, "sex="+string(*e.Sex))
	}
	if e.AgeDays != nil {
		parts = append(parts, "age_days="+strconv.Itoa(*e.AgeDays))
	}
	if len(e.Symptoms) > 0 {
		parts = append(parts, "symptoms="+strings.Join(e.Symptoms, ","))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}
