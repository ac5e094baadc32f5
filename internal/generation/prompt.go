package generation

import "fmt"

const promptTemplate = `
You MUST output EXACTLY AND ONLY the following format.

<<<FIXED_CODE>>>
<secure code only, no explanation, no backticks>
<<<END_FIXED_CODE>>>

<<<EXPLANATION>>>
<clear explanation only, no code blocks, no backticks>
<<<END_EXPLANATION>>>

DO NOT output anything else outside these markers.
DO NOT wrap code in ` + "```" + ` fencing.
DO NOT repeat the prompt.
DO NOT invent any additional sections.

Now fix this code:

Language: %s
CWE: %s

Guidelines:
%s

<<<VULNERABLE_CODE>>>
%s
<<<END_VULNERABLE_CODE>>>
`

// BuildPrompt renders the fixed remediation prompt. Guidelines may be empty.
func BuildPrompt(in Input) string {
	return fmt.Sprintf(promptTemplate, in.Language, in.CWE, in.Guidelines, in.Code)
}
