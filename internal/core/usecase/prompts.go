package usecase

import (
	"fmt"
	"strings"

	"github.com/Anudeepsrib/ClinIQ/internal/core/domain"
)

// Role-specific instruction text applied during answer synthesis. Unknown
// roles fall back to the viewer instruction.
var roleInstructions = map[string]string{
	"admin":      "You have full administrative access. Provide complete details.",
	"doctor":     "You are responding to a licensed physician. Provide full clinical detail and procedure specifics.",
	"nurse":      "You are responding to a nurse. Focus on care protocols, dosing guidelines, and patient management procedures.",
	"technician": "You are responding to a lab/radiology technician. Focus on technical procedures and safety protocols.",
	"researcher": "You are responding to a researcher. Ensure all PHI is redacted. Focus on aggregate data and policy patterns.",
	"viewer":     "You are responding to a general staff member. Provide only high-level policy summaries.",
}

const defaultRole = "viewer"

func roleInstruction(role string) string {
	if instruction, ok := roleInstructions[strings.ToLower(role)]; ok {
		return instruction
	}
	return roleInstructions[defaultRole]
}

const fallbackNoContext = "I could not find any relevant information in the policy documents you have access to."

const clarificationPrompt = "I'd like to make sure I give you the most relevant information. Could you clarify what you're looking for?"

func buildClarificationPrompt(question, role string, groups []string) string {
	groupList := strings.Join(groups, ", ")
	if groupList == "" {
		groupList = "all groups"
	}
	return fmt.Sprintf(`You are a clinical query analyst for a hospital knowledge system.

Decide whether the query below is specific enough to retrieve a useful answer
from hospital policy documents, or too vague and in need of clarification.

A query is AMBIGUOUS if it lacks a specific department, procedure, medication
or policy name, could apply to many different scenarios, or uses vague phrases
like "the policy" or "tell me about". A query is SPECIFIC if it names a
procedure, medication, diagnosis code or policy, or describes a clear clinical
scenario.

If the query is ambiguous, produce 2 to 4 complete, ready-to-send follow-up
questions covering the plausible interpretations, each under 15 words.

Groups available: %s
User role: %s

Return strict JSON with keys:
is_ambiguous (boolean), clarification_options (array of strings).
No markdown, no extra keys.

Query: %s`, groupList, role, question)
}

func buildGradePrompt(question, document string) string {
	return fmt.Sprintf(`You are a clinical document relevance grader for a hospital knowledge system.

Given a user question and a retrieved document, decide if the document is
relevant to answering the question. Clinical terminology, procedure codes,
drug names or dosing guidelines matching the clinical intent count as
relevant; policy documents addressing the topic are relevant even with
different phrasing. Do not be overly strict.

Return strict JSON with one key:
binary_score ("yes" if relevant, "no" otherwise).
No markdown, no extra keys.

Retrieved document:
%s

User question: %s`, document, question)
}

func buildGenerationPrompt(question, role string, documents []domain.RetrievalResult) string {
	var contextBuilder strings.Builder
	for idx, doc := range documents {
		locator := "Page n/a"
		switch {
		case doc.Page > 0:
			locator = fmt.Sprintf("Page %d", doc.Page)
		case doc.Sheet != "":
			locator = fmt.Sprintf("Sheet %s", doc.Sheet)
		}
		contextBuilder.WriteString(fmt.Sprintf(
			"[Ref %d]: Source: %s (%s group), %s\nContent: %s\n\n",
			idx+1, doc.Source, doc.Group, locator, doc.Content,
		))
	}

	return fmt.Sprintf(`You are a helpful healthcare assistant for an enterprise hospital policy system.
Use the retrieved context below to answer the question.
Do not use any outside knowledge.
If the answer is not in the context, say that you don't know.

ROLE CONTEXT: %s

IMPORTANT:
1. You must cite your sources. Use [Ref X] notation.
2. Do NOT provide medical advice. This is for policy/administrative information only.
3. Note which group each source comes from for transparency.

Context:
%s
Question: %s

Answer:`, roleInstruction(role), contextBuilder.String(), question)
}

func buildGroundednessPrompt(generation string, documents []domain.RetrievalResult) string {
	var docsBuilder strings.Builder
	for idx, doc := range documents {
		docsBuilder.WriteString(fmt.Sprintf("[Doc %d] (%s): %s\n\n", idx+1, doc.Source, doc.Content))
	}

	return fmt.Sprintf(`You are a clinical accuracy auditor for a hospital knowledge system.

You will be given retrieved policy documents (the FACTS) and an AI-generated
answer. Every factual claim in the answer must be supported by the documents;
dosages, procedure steps and policy details must exactly match. Generic
transitional phrases are acceptable. If the answer adds any clinical or
operational detail not present in the documents, it is not grounded.

Return strict JSON with one key:
binary_score ("yes" if fully grounded, "no" otherwise).
No markdown, no extra keys.

Retrieved documents (FACTS):

%s---

AI-generated answer:

%s`, docsBuilder.String(), generation)
}

func buildRewritePrompt(question string) string {
	return fmt.Sprintf(`You are a medical query optimizer for a hospital knowledge retrieval system.

The original question did not return relevant documents. Rewrite it to
improve search recall: expand medical abbreviations, add clinical synonyms,
broaden overly specific scope while keeping the clinical intent, and rephrase
for clarity without changing the meaning.

Return ONLY the rewritten question, no explanation or preamble.

Original question: %s`, question)
}
