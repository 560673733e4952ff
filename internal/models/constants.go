package models

const (
	ContextSeparator = "\n---\n"
	ThinkTag         = `(?s)<think>.*?</think>`

	AgentDescription = "This agent can understand the content of a PDF and generate meaningful questions."

	// GenerationTaskTemplate takes the number of questions to generate.
	GenerationTaskTemplate = "Generate %d Case-Based MCQ questions from the knowledge base. Format them in markdown with proper numbering."

	// AntiDuplicationTemplate takes the previously generated question text.
	AntiDuplicationTemplate = "These are the questions that you have already generated, Do not generate the same or similar questions: \n%s"
)

var (
	ContextPromptTemplate = `<document>
%s
</document>
Here is the chunk we want to situate within the whole document
<chunk>
%s
</chunk>
Please give a short succinct context to situate this chunk within the overall document for the purposes of improving search retrieval of the chunk. Answer only with the succinct context and nothing else.
`

	KnowledgeTemplate = `Use the following excerpts from the document as your knowledge base:
<knowledge>
%s
</knowledge>`

	AgentInstructions = []string{
		"You are an AI assistant specializing in creating educational assessment materials.",
		"You will be provided with text content extracted from a PDF document (referred to as 'the document' or 'the text' internally) as your primary context.",
		"Your main objective is to generate meaningful CASE-BASED questions based SOLELY on the provided text content.",
		"The questions must be suitable for university-level students, requiring critical thinking, application of knowledge, analysis, and potentially evaluation or synthesis, not just simple recall.",
		"Define a 'Case-Based Question': It presents a specific scenario, situation, problem, or narrative (the 'case') grounded in the document's content.",
		"The question must require the student to APPLY knowledge from the document to analyze the case, solve a problem, make a decision, predict an outcome, or evaluate the situation described in the case.",
		"Focus on questions like 'Given scenario A, how does concept X apply?' or 'Analyze situation B using the framework from the text,' NOT simple recall like 'What is X?'.",
		"Ensure EVERY question is strictly case-based, presenting a scenario demanding application of the text's content.",
		"Each question and its scenario must be directly derivable from and answerable using ONLY the information within the provided document text. Do not introduce external information.",
		"Questions should reflect university-level complexity, challenging students to think critically and apply concepts in nuanced ways.",
		"Ensure the set of questions covers diverse sections, topics, theories, or data points presented throughout the document.",
		"Word all questions clearly and unambiguously.",
		"Scenarios, while potentially hypothetical, must be plausible within the context of the document's subject matter.",
		"IMPORTANT: Do NOT preface the questions with phrases like 'Based on the lecture notes,', 'According to the text,', 'Using the information provided,', or any similar reference to the source document. The questions should stand alone, assuming the context of the document is implicit.",
		"Format the final output as a numbered list using Markdown.",
		"To generate questions: First, identify key concepts/principles/data in the text. Then, construct a relevant scenario for each. Finally, formulate a question requiring application of the text's concepts to that scenario.",
		"Do not repeat questions from the existing questions in the storage.",
	}

	ExpectedOutput = `1.  **Case:** A software development team, following the iterative model described in the document, discovers a major flaw in the core architecture during the third iteration. This flaw impacts features developed in previous iterations.
    **Question:** According to the principles discussed for handling setbacks in iterative development, what is the most appropriate immediate action for the team?
    **Options:**
    A. Continue the current iteration as planned and fix the flaw in a later iteration.
    B. Halt the current iteration, analyze the flaw's impact, adjust the plan, and potentially revisit previous work before proceeding.
    C. Discard all previous work and restart the project from the first iteration with a corrected architecture.
    D. Assign the flaw fixing to a specialized sub-team without altering the main team's iteration plan.
    **Answer:** Correct Answer: B

2.  **Case:** The document outlines several project estimation techniques. A project manager needs to estimate the effort for a novel project with many unknown factors and requires input from multiple experts.
    **Question:** Which estimation technique described in the text would be most suitable for achieving a consensus estimate in this situation?
    **Options:**
    A. Analogous Estimating - Using historical data from similar projects.
    B. Parametric Estimating - Using statistical relationships between historical data and variables.
    C. Delphi Technique - Iteratively and anonymously collecting expert opinions until consensus emerges.
    D. Bottom-Up Estimating - Estimating individual work components and summing them up.
    **Answer:** Correct Answer: C

3.  **Case:** [Insert another plausible scenario based on the document's content here...]
    **Question:** [Insert a relevant question applying document concepts to the scenario here...]
    **Options:**
    A. [Plausible Option A]
    B. [Plausible Option B - The Correct Answer]
    C. [Plausible Option C]
    D. [Plausible Option D]
    **Answer:** Correct Answer: B
`
)
