// Package prompt holds the fixed instruction text sent to the chat model and
// the constructors that turn a task and its retrieved context into messages.
package prompt

import (
	"github.com/cloudwego/eino/schema"
)

// SystemInstruction is the first message of every completion request.
const SystemInstruction = "You are a helpful assistant that writes YAML code for Semaphore " +
	"continuous integration pipelines and explains them. Return YAML code inside code fences."

const (
	header = "Create the continuous integration pipeline YAML code to fulfill the requested task.\n" +
		"Below you will find some context that may help. Ignore it if it seems irrelevant.\n\n"
	contextLabel = "Context:\n"
	taskLabel    = "\n\nTask: "
	answerLabel  = "\n\nYAML Code:"
)

// Build embeds task and context into the instruction template. An empty
// context leaves the Context section empty; the prompt is still valid.
func Build(task, context string) string {
	return header + contextLabel + context + taskLabel + task + answerLabel
}

// Message returns a chat message with the given role and content.
func Message(role schema.RoleType, content string) *schema.Message {
	return &schema.Message{Role: role, Content: content}
}

// Initial returns the message list of a fresh query: the system instruction
// followed by the built user prompt.
func Initial(task, context string) []*schema.Message {
	return []*schema.Message{
		Message(schema.System, SystemInstruction),
		Message(schema.User, Build(task, context)),
	}
}
