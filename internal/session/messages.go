package session

import "fmt"

const (
	msgWelcome          = "# Welcome to the Cover Letter Generator!"
	msgAskJob           = "Please provide me with the job description (text):"
	msgProcessingJob    = "Processing job description..."
	msgJobTooShort      = "The job description is too short. Provide more details."
	msgJobAccepted      = "Job description processed successfully!"
	msgUploadPDF        = "### Please upload your CV/Resume as a PDF"
	msgUploadPDFOrDocx  = "### Please upload your CV/Resume as a PDF or docx"
	msgNoFile           = "I didn't get your CV. Please send the job description again to start over."
	msgGenerating       = "Generating your cover letter..."
	msgGenerationFailed = "Something went wrong"
	msgHereIsLetter     = "**Here is your cover letter**"
	msgAskSatisfied     = "Are you satisfied with the cover letter?"
	msgAskRevised       = "Are you satisfied with the revised cover letter?"
	msgReady            = "Your cover letter is ready to use! Good luck on your application."
	msgRevising         = "Revising your cover letter based on your feedback..."
	msgRevisionFailed   = "Error revising cover letter"
	msgChoiceFailed     = "ERROR"
	msgChoiceLostFirst  = "Please send the job description again to start over."
	msgChoiceLostRevise = "Send more feedback if you want another revision."
	msgAlreadyDone      = "This cover letter is final. Send a new job description to start another one."
)

const (
	ChoiceYes = "yes"
	ChoiceNo  = "no"
)

func msgRemaining(n int) string {
	return fmt.Sprintf("Please provide specific feedback on what you'd like to change. You have %d revision(s) remaining.", n)
}

func msgRevisionHeader(n int) string {
	return fmt.Sprintf("**Here is revision #%d of your cover letter**", n)
}

func msgMaxRevisions() string {
	return fmt.Sprintf("You've reached the maximum number of revisions (%d). This is your final cover letter.", MaxRevisions)
}
