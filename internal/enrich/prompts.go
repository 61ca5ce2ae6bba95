package enrich

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fairyhunter13/findajob/internal/domain"
)

// systemPrompt frames the whole per-job conversation: who the assistant is,
// the candidate's full normalized profile, and the job under discussion.
// It is re-sent on every call and never part of history.
func systemPrompt(profile domain.CandidateProfile, job domain.RawJob) string {
	cv, _ := json.MarshalIndent(profile, "", "  ")

	var b strings.Builder
	b.WriteString("You are a professional job search assistant.\n")
	b.WriteString("You are given a job description and a candidate's CV.\n")
	b.WriteString("Your task is to help the candidate with their request. Strictly follow the request.\n\n")
	b.WriteString("CANDIDATE CV (JSON):\n")
	b.Write(cv)
	b.WriteString("\n\nJOB DESCRIPTION:\n")
	b.WriteString(jobContext(job))
	return b.String()
}

func jobContext(job domain.RawJob) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", job.JobTitle)
	fmt.Fprintf(&b, "Company: %s\n", job.Employer)
	fmt.Fprintf(&b, "Location: %s\n", job.JobLocation)
	fmt.Fprintf(&b, "Employment Type: %s\n", job.EmploymentType)
	fmt.Fprintf(&b, "Seniority Level: %s\n", job.SeniorityLevel)
	fmt.Fprintf(&b, "Job Function: %s\n", job.JobFunction)
	fmt.Fprintf(&b, "Industries: %s\n", job.Industries)
	fmt.Fprintf(&b, "HTML Description: %s\n", job.JobDescription)
	return b.String()
}

const jobSummaryPrompt = `TASK:
Create a concise job summary that captures:
    1. Responsibilities: the 3-5 key responsibilities of the role.
    2. Requirements: the 3-5 main requirements or qualifications.
    3. Opportunity Interest: 2-3 sentences on what makes this opportunity interesting or unique for the candidate. Use personal pronouns like "you" and "your".
    4. Background Alignment: compute every component of background_aligns with the scoring tools. Use calculate_month_between for date arithmetic, then calculate_skills_score, calculate_experience_score, calculate_industries_score and calculate_languages_score with values taken from the CV and the job description. Pass calculate_languages_score only the languages the job actually requires. Judge the education and location scores yourself on the same 0-100 scale, then combine everything with calculate_overall_score.
    5. Summary: the job in 3-4 sentences based only on the job description.

Keep it concise but informative and personalized to the candidate's profile.`

const coverLetterPrompt = `TASK:
Create a compelling, personalized cover letter that:
    1. Addresses the hiring manager professionally.
    2. Explains why the candidate is interested in this specific role and company.
    3. Highlights relevant skills and experience from their CV that match the job requirements.
    4. Demonstrates understanding of the company and role.
    5. Shows how their background aligns with the position.
    6. Includes a strong closing statement.
    7. Is humanized, well-composed, and personalized based on the CV data.

Make it personal, specific to this opportunity, and compelling.
Use the candidate's actual experience and skills from their CV.
Write in a professional but engaging tone.
The letter should be no longer than 400 words. Optimal length is 200-350 words.`
