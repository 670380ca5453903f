package qa

import "github.com/tmc/langchaingo/prompts"

var judgeSystemPrompt = prompts.NewPromptTemplate(`You compare questions by meaning.
You are given a numbered list of previously asked questions and a new question.
For every previous question, rate how similar in meaning the new question is, from 0 (unrelated) to 1 (the same question).
Respond with JSON only, in this exact shape: {"similarities": [<score for 0>, <score for 1>, ...]}
There must be exactly {{.count}} scores, in the order of the list. Do not add any other comment.`, []string{"count"})

var judgeHumanPrompt = prompts.NewPromptTemplate(`Previous questions:
{{range $i, $q := .history}}{{$i}}: {{$q}}
{{end}}
New question: {{.question}}`, []string{"history", "question"})

var answerSystemPrompt = prompts.NewPromptTemplate(`Using ONLY the following context answer the user's question. If you can't just say you don't know, don't make anything up.

Then, give a score to the answer between 0 and 5.
If the answer answers the user question the score should be high, else it should be low.
Make sure to always include the answer's score even if it's 0.

Respond with JSON only: {"answer": "<answer>", "score": <integer 0-5>}

Examples:

Question: How far away is the moon?
{"answer": "The moon is 384,400 km away.", "score": 5}

Question: How far away is the sun?
{"answer": "I don't know", "score": 0}

Context: {{.context}}`, []string{"context"})

var answerHumanPrompt = prompts.NewPromptTemplate(`Question: {{.question}}`, []string{"question"})

var synthesizeSystemPrompt = prompts.NewPromptTemplate(`Use ONLY the following pre-existing answers to answer the user's question.

Use the answers that have the highest score (more helpful).

Cite sources. Do not modify the source, keep it as a link.

Answers: {{range .answers}}
Answer: {{.Answer}}
Score: {{.Score}}
Source: {{.Source}}
{{end}}`, []string{"answers"})

var synthesizeHumanPrompt = prompts.NewPromptTemplate(`{{.question}}`, []string{"question"})
