package llm

import (
	"text/template"
)

const (
	TemplateCoverLetter = "cover_letter"
	TemplateRevision    = "revision"
)

// Template variables.
const (
	VarJobDescription = "job_description"
	VarCVText         = "cv_text"
	VarCoverLetter    = "current_cover_letter"
	VarFeedback       = "feedback"
)

const systemPrompt = "You are an expert career coach who writes and edits cover letters."

type promptTemplate struct {
	tmpl     *template.Template
	required []string
}

var templates = map[string]promptTemplate{
	TemplateCoverLetter: {
		tmpl:     template.Must(template.New(TemplateCoverLetter).Option("missingkey=zero").Parse(coverLetterPrompt)),
		required: []string{VarJobDescription, VarCVText},
	},
	TemplateRevision: {
		tmpl:     template.Must(template.New(TemplateRevision).Option("missingkey=zero").Parse(revisionPrompt)),
		required: []string{VarJobDescription, VarCVText, VarCoverLetter},
	},
}

const coverLetterPrompt = `Write a professional and personalized cover letter from the information below.

Job Description:
{{.job_description}}

Candidate's Resume:
{{.cv_text}}

The cover letter must:
1. Address what the job requires, backed by specific examples from the resume
2. Highlight the candidate's strongest skills and achievements
3. Sound professional but friendly
4. Fit on one page
5. Open and close strongly
6. Show an understanding of what the company needs

Return only the cover letter text.`

const revisionPrompt = `Revise the cover letter below according to the user's feedback.

Job Description:
{{.job_description}}

Candidate's Resume:
{{.cv_text}}

Current Cover Letter:
{{.current_cover_letter}}

User's Feedback:
{{.feedback}}

Rules:
1. Do not rewrite the whole letter. The current cover letter is the base.
2. Change only the parts the feedback addresses.
3. Keep all other content, tone and structure as they are.
4. Make targeted edits that directly answer the feedback.
5. When the feedback contradicts the resume, follow the feedback.
6. Keep a professional tone and a one page length.

Return only the revised cover letter text.`
