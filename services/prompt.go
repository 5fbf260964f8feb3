package services

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/knowledgevault/vault/models"
)

// GetSystemPrompt defines the core instructions for the assistant.
func GetSystemPrompt() *genai.Content {
	prompt := `You are a helpful assistant for question-answering tasks.
Use the pieces of retrieved context in the user's message to answer the question.
If you don't know the answer, just say that you don't know.
Use three sentences maximum and keep the answer concise.

Always cite your sources by mentioning the document name when providing information.`

	contents := genai.Text(prompt)
	if len(contents) == 0 {
		return nil
	}
	return contents[0]
}

// FormatChatContext renders recent history as Q/A lines for the prompt.
// At most maxMessages exchanges are kept, newest last, and the result is
// additionally capped at tokenBudget tokens (oldest exchanges dropped first).
// A nil counter skips the token cap.
func FormatChatContext(entries []models.ChatEntry, maxMessages, tokenBudget int, counter *TokenCounter) string {
	if len(entries) == 0 {
		return "No previous conversation."
	}
	if maxMessages > 0 && len(entries) > maxMessages {
		entries = entries[len(entries)-maxMessages:]
	}

	blocks := make([]string, len(entries))
	for i, entry := range entries {
		blocks[i] = fmt.Sprintf("Q: %s\nA: %s", entry.Question, entry.Answer)
	}

	if counter != nil && tokenBudget > 0 {
		total := 0
		start := len(blocks)
		// Walk backwards so the newest exchanges win the budget.
		for i := len(blocks) - 1; i >= 0; i-- {
			cost := counter.Count(blocks[i])
			if total+cost > tokenBudget {
				break
			}
			total += cost
			start = i
		}
		blocks = blocks[start:]
		if len(blocks) == 0 {
			return "No previous conversation."
		}
	}

	return strings.Join(blocks, "\n")
}

// FormatRetrievedContext joins retrieved chunks for the prompt.
func FormatRetrievedContext(chunks []string) string {
	if len(chunks) == 0 {
		return "No relevant documents found."
	}
	return strings.Join(chunks, "\n\n")
}

// BuildPrompt assembles the final user message: conversation memory, the
// retrieved context, then the question itself.
func BuildPrompt(question, chatContext, retrievedContext string) string {
	var sb strings.Builder
	sb.WriteString("Previous conversation context:\n")
	sb.WriteString(chatContext)
	sb.WriteString("\n\nRetrieved context:\n")
	sb.WriteString(retrievedContext)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	return sb.String()
}
