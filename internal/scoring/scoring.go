// Package scoring implements the pure alignment-score kernel. All functions
// are deterministic, allocation-light, and return integers in [0,100].
// Input validation (negative months, out-of-range components) happens at the
// tool-dispatch boundary, not here.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Component weights for the overall score.
const (
	WeightSkills     = 0.3
	WeightEducation  = 0.1
	WeightExperience = 0.3
	WeightLocation   = 0.05
	WeightIndustries = 0.05
	WeightLanguages  = 0.2
)

const monthLayout = "2006-01"

// Skills returns the fraction of job skills the candidate covers,
// case-insensitively, scaled to [0,100]. An empty requirement list scores 100.
func Skills(candidateSkills, jobSkills []string) int {
	return coverage(candidateSkills, jobSkills)
}

// Industries scores industry overlap with the same coverage rule as Skills.
func Industries(candidateIndustries, jobIndustries []string) int {
	return coverage(candidateIndustries, jobIndustries)
}

func coverage(have, want []string) int {
	if len(want) == 0 {
		return 100
	}
	set := make(map[string]struct{}, len(have))
	for _, s := range have {
		set[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	matched := 0
	for _, s := range want {
		if _, ok := set[strings.ToLower(strings.TrimSpace(s))]; ok {
			matched++
		}
	}
	return int(math.Round(float64(matched) / float64(len(want)) * 100))
}

// Experience compares total experience in months: min(candidate/job, 1)·100.
// A job with no stated requirement scores 100.
func Experience(candidateMonths, jobMonths int) int {
	if jobMonths == 0 {
		return 100
	}
	ratio := float64(candidateMonths) / float64(jobMonths)
	if ratio > 1 {
		ratio = 1
	}
	return int(math.Round(ratio * 100))
}

// Languages compares proficiency weights. For each language the job requires,
// a candidate match contributes 100 - |candidate weight - job weight|; a
// missing language contributes 0. The result is the mean over the job's
// language set. No required languages scores 100.
func Languages(candidateLangs, jobLangs map[string]int) int {
	if len(jobLangs) == 0 {
		return 100
	}
	sum := 0.0
	for lang, jobWeight := range jobLangs {
		candWeight, ok := candidateLangs[lang]
		if !ok {
			continue
		}
		diff := candWeight - jobWeight
		if diff < 0 {
			diff = -diff
		}
		sum += float64(100 - diff)
	}
	return int(math.Round(sum / float64(len(jobLangs))))
}

// Overall combines the six partial scores with the fixed weights, rounded to
// the nearest integer.
func Overall(skills, education, experience, location, industries, languages int) int {
	weighted := WeightSkills*float64(skills) +
		WeightEducation*float64(education) +
		WeightExperience*float64(experience) +
		WeightLocation*float64(location) +
		WeightIndustries*float64(industries) +
		WeightLanguages*float64(languages)
	return int(math.Round(weighted))
}

// MonthsBetween returns the number of months from start to end, both in
// YYYY-MM form. The count is (end.year-start.year)*12 + (end.month-start.month)
// and may be negative when end precedes start.
func MonthsBetween(start, end string) (int, error) {
	s, err := time.Parse(monthLayout, start)
	if err != nil {
		return 0, fmt.Errorf("start date %q: want YYYY-MM: %w", start, err)
	}
	e, err := time.Parse(monthLayout, end)
	if err != nil {
		return 0, fmt.Errorf("end date %q: want YYYY-MM: %w", end, err)
	}
	return (e.Year()-s.Year())*12 + int(e.Month()) - int(s.Month()), nil
}
