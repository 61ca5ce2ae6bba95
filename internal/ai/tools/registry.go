// Package tools declares the scoring callables exposed to the model during
// agent-mode enrichment. Every call is validated against the declared
// argument schema before dispatch; a bad call yields a structured tool error
// that goes back into the conversation instead of aborting the run.
package tools

import (
	"fmt"
	"math"
	"strings"

	"github.com/fairyhunter13/findajob/internal/domain"
	"github.com/fairyhunter13/findajob/internal/scoring"
)

// Handler executes one validated tool call.
type Handler func(args map[string]any) (any, error)

// Declaration is the provider-agnostic description of one tool. Parameters is
// a JSON schema in the subset both providers accept.
type Declaration struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     Handler
}

// Registry holds the tool set for one enrichment session.
type Registry struct {
	decls  []Declaration
	byName map[string]Declaration
}

// NewRegistry builds the fixed six-tool registry.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Declaration)}
	for _, d := range declarations() {
		r.decls = append(r.decls, d)
		r.byName[d.Name] = d
	}
	return r
}

// Declarations returns the tools in registration order.
func (r *Registry) Declarations() []Declaration { return r.decls }

// Dispatch validates and executes one call. The returned map is the function
// response payload: {"result": v} on success, {"error": detail} on a rejected
// or failed call. The second return reports whether the call succeeded so the
// agent loop can log and count failures.
func (r *Registry) Dispatch(name string, args map[string]any) (map[string]any, bool) {
	d, ok := r.byName[name]
	if !ok {
		return map[string]any{"error": fmt.Sprintf("unknown tool %q", name)}, false
	}
	v, err := d.Handler(args)
	if err != nil {
		return map[string]any{"error": err.Error()}, false
	}
	return map[string]any{"result": v}, true
}

func declarations() []Declaration {
	return []Declaration{
		{
			Name:        "calculate_month_between",
			Description: "Number of months between two YYYY-MM dates: (end.year-start.year)*12 + (end.month-start.month). Negative when end precedes start.",
			Parameters: objectSchema(map[string]any{
				"start_date": monthSchema(),
				"end_date":   monthSchema(),
			}, "start_date", "end_date"),
			Handler: monthBetween,
		},
		{
			Name:        "calculate_skills_score",
			Description: "Percentage of the job's required skills the candidate covers, case-insensitive. 100 when the job lists no skills.",
			Parameters: objectSchema(map[string]any{
				"candidate_skills": stringArraySchema(),
				"job_skills":       stringArraySchema(),
			}, "candidate_skills", "job_skills"),
			Handler: skillsScore,
		},
		{
			Name:        "calculate_experience_score",
			Description: "min(candidate_months/job_months, 1) * 100, rounded. 100 when job_months is 0.",
			Parameters: objectSchema(map[string]any{
				"candidate_months": map[string]any{"type": "integer", "minimum": 0},
				"job_months":       map[string]any{"type": "integer", "minimum": 0},
			}, "candidate_months", "job_months"),
			Handler: experienceScore,
		},
		{
			Name:        "calculate_industries_score",
			Description: "Percentage of the job's industries the candidate has worked in, case-insensitive. 100 when the job lists no industries.",
			Parameters: objectSchema(map[string]any{
				"candidate_industries": stringArraySchema(),
				"job_industries":       stringArraySchema(),
			}, "candidate_industries", "job_industries"),
			Handler: industriesScore,
		},
		{
			Name:        "calculate_languages_score",
			Description: "Language alignment. Both maps go from language name to CEFR level (a1,a2,b1,b2,c1,c2,native). Mean over the job's languages of 100 minus the proficiency-weight distance; languages the candidate lacks count 0. 100 when the job requires none.",
			Parameters: objectSchema(map[string]any{
				"candidate_languages": languageMapSchema(),
				"job_languages":       languageMapSchema(),
			}, "candidate_languages", "job_languages"),
			Handler: languagesScore,
		},
		{
			Name:        "calculate_overall_score",
			Description: "Weighted total of the six partial scores: skills 0.3, education 0.1, experience 0.3, location 0.05, industries 0.05, languages 0.2. Each input must be an integer in [0,100].",
			Parameters: objectSchema(map[string]any{
				"scores": objectSchema(map[string]any{
					"skills":     scoreSchema(),
					"education":  scoreSchema(),
					"experience": scoreSchema(),
					"location":   scoreSchema(),
					"industries": scoreSchema(),
					"languages":  scoreSchema(),
				}, "skills", "education", "experience", "location", "industries", "languages"),
			}, "scores"),
			Handler: overallScore,
		},
	}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	return map[string]any{"type": "object", "properties": props, "required": required}
}

func monthSchema() map[string]any {
	return map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}$`, "description": "YYYY-MM"}
}

func stringArraySchema() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

func languageMapSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"additionalProperties": map[string]any{
			"type": "string",
			"enum": []string{"a1", "a2", "b1", "b2", "c1", "c2", "native"},
		},
	}
}

func scoreSchema() map[string]any {
	return map[string]any{"type": "integer", "minimum": 0, "maximum": 100}
}

func monthBetween(args map[string]any) (any, error) {
	start, err := stringArg(args, "start_date")
	if err != nil {
		return nil, err
	}
	end, err := stringArg(args, "end_date")
	if err != nil {
		return nil, err
	}
	months, err := scoring.MonthsBetween(start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrToolCall, err)
	}
	return months, nil
}

func skillsScore(args map[string]any) (any, error) {
	candidate, err := stringSliceArg(args, "candidate_skills")
	if err != nil {
		return nil, err
	}
	job, err := stringSliceArg(args, "job_skills")
	if err != nil {
		return nil, err
	}
	return scoring.Skills(candidate, job), nil
}

func experienceScore(args map[string]any) (any, error) {
	candidate, err := intArg(args, "candidate_months")
	if err != nil {
		return nil, err
	}
	job, err := intArg(args, "job_months")
	if err != nil {
		return nil, err
	}
	if candidate < 0 || job < 0 {
		return nil, fmt.Errorf("%w: months must be non-negative", domain.ErrToolCall)
	}
	return scoring.Experience(candidate, job), nil
}

func industriesScore(args map[string]any) (any, error) {
	candidate, err := stringSliceArg(args, "candidate_industries")
	if err != nil {
		return nil, err
	}
	job, err := stringSliceArg(args, "job_industries")
	if err != nil {
		return nil, err
	}
	return scoring.Industries(candidate, job), nil
}

func languagesScore(args map[string]any) (any, error) {
	candidate, err := languageWeightsArg(args, "candidate_languages")
	if err != nil {
		return nil, err
	}
	job, err := languageWeightsArg(args, "job_languages")
	if err != nil {
		return nil, err
	}
	return scoring.Languages(candidate, job), nil
}

func overallScore(args map[string]any) (any, error) {
	raw, ok := args["scores"]
	if !ok {
		return nil, fmt.Errorf("%w: missing argument scores", domain.ErrToolCall)
	}
	scores, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: scores must be an object", domain.ErrToolCall)
	}
	part := func(key string) (int, error) {
		v, err := intArg(scores, key)
		if err != nil {
			return 0, err
		}
		if v < 0 || v > 100 {
			return 0, fmt.Errorf("%w: scores.%s %d out of range [0,100]", domain.ErrToolCall, key, v)
		}
		return v, nil
	}
	skills, err := part("skills")
	if err != nil {
		return nil, err
	}
	education, err := part("education")
	if err != nil {
		return nil, err
	}
	experience, err := part("experience")
	if err != nil {
		return nil, err
	}
	location, err := part("location")
	if err != nil {
		return nil, err
	}
	industries, err := part("industries")
	if err != nil {
		return nil, err
	}
	languages, err := part("languages")
	if err != nil {
		return nil, err
	}
	return scoring.Overall(skills, education, experience, location, industries, languages), nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: missing argument %s", domain.ErrToolCall, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", domain.ErrToolCall, key)
	}
	return s, nil
}

// intArg accepts native ints and the float64 that encoding/json produces,
// rejecting non-integral values.
func intArg(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing argument %s", domain.ErrToolCall, key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrToolCall, key)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrToolCall, key)
	}
}

func stringSliceArg(args map[string]any, key string) ([]string, error) {
	v, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing argument %s", domain.ErrToolCall, key)
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be an array of strings", domain.ErrToolCall, key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s must be an array of strings", domain.ErrToolCall, key)
	}
}

// languageWeightsArg converts a language→CEFR map into proficiency weights.
func languageWeightsArg(args map[string]any, key string) (map[string]int, error) {
	v, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing argument %s", domain.ErrToolCall, key)
	}
	raw, ok := v.(map[string]any)
	if !ok {
		if typed, isTyped := v.(map[string]string); isTyped {
			raw = make(map[string]any, len(typed))
			for lang, level := range typed {
				raw[lang] = level
			}
		} else {
			return nil, fmt.Errorf("%w: %s must be an object of language to CEFR level", domain.ErrToolCall, key)
		}
	}
	out := make(map[string]int, len(raw))
	for lang, lvl := range raw {
		s, ok := lvl.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s must be a CEFR level string", domain.ErrToolCall, key, lang)
		}
		weight, ok := domain.ProficiencyWeights[strings.ToLower(strings.TrimSpace(s))]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s has unknown proficiency %q", domain.ErrToolCall, key, lang, s)
		}
		out[strings.ToLower(strings.TrimSpace(lang))] = weight
	}
	return out, nil
}
