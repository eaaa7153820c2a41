package rag

import (
	"fmt"
	"strings"
)

// Action selects the prompt template for a chat turn. Unknown values fall
// back to the default question-answering template.
type Action string

const (
	ActionDefault         Action = ""
	ActionSummarize       Action = "summarize"
	ActionSuggestProjects Action = "suggest_projects"
	ActionExplain         Action = "explain"
)

const ragSystemPrompt = `You are a helpful AI assistant for engineering students. You help them understand their academic materials, answer questions, and provide insights based on the documents they have uploaded.

Use the following context from their uploaded documents to answer their questions accurately and helpfully. If the context doesn't contain relevant information, you can supplement with your general knowledge.`

const directSystemPrompt = `You are a helpful AI assistant for engineering students. You help them understand concepts, answer questions, and provide insights. Be thorough, accurate, and educational in your responses.`

// ComposePrompt deterministically builds the full prompt for a chat turn.
// RAG mode is used only when ragEnabled is set AND context chunks were
// actually retrieved; everything else degrades to the direct template.
func ComposePrompt(query string, contextChunks []string, action Action, ragEnabled bool) string {
	if ragEnabled && len(contextChunks) > 0 {
		contextText := strings.Join(contextChunks, "\n\n")
		return ragSystemPrompt + "\n\n" + ragUserPrompt(query, contextText, action)
	}
	return directSystemPrompt + "\n\n" + directUserPrompt(query, action)
}

func ragUserPrompt(query, contextText string, action Action) string {
	switch action {
	case ActionSummarize:
		return fmt.Sprintf(`Based on the following context from the uploaded documents, provide a comprehensive summary.

Context:
%s

Please provide a clear, well-structured summary of the key points and main ideas.`, contextText)
	case ActionSuggestProjects:
		return fmt.Sprintf(`Based on the following context from the uploaded documents, suggest practical project ideas that would help the student apply and deepen their understanding of these concepts.

Context:
%s

Provide creative, actionable project suggestions that relate to the material.`, contextText)
	case ActionExplain:
		return fmt.Sprintf(`Based on the following context from the uploaded documents, explain the concepts mentioned in the user's query in a clear and educational way.

Context:
%s

User Query: %s

Provide a detailed explanation that helps the student understand the concept.`, contextText, query)
	default:
		return fmt.Sprintf(`Context from uploaded documents:
%s

User Question: %s

Please answer the user's question based on the provided context. If the context is insufficient, use your general knowledge to provide a helpful answer.`, contextText, query)
	}
}

func directUserPrompt(query string, action Action) string {
	switch action {
	case ActionSummarize:
		return fmt.Sprintf("The user is asking for a summary. Please provide a helpful response to: %s", query)
	case ActionSuggestProjects:
		return fmt.Sprintf("Suggest practical project ideas related to: %s. Provide creative, actionable project suggestions.", query)
	case ActionExplain:
		return fmt.Sprintf("Explain the following concept in a clear and educational way: %s. Provide a detailed explanation that helps the student understand.", query)
	default:
		return fmt.Sprintf(`User Question: %s

Please answer the user's question. Be thorough, accurate, and helpful.`, query)
	}
}
