// Package common defines the capability traits that every wire protocol's
// message/content types implement, so the pipeline and mappers can walk a
// conversation without knowing whether it's OpenAI, Anthropic, or Ollama
// shaped underneath.
package common

import "strings"

// Content is one piece of a message. Text content exposes its string;
// non-text content (tool calls, images) returns ok=false so redaction
// and context-retrieval walks skip it rather than treating binary/JSON
// payloads as prose.
type Content interface {
	GetText() (string, bool)
	SetText(s string)
}

// Message is the trait every concrete per-protocol message type
// implements. Pipeline steps and mappers depend only on this interface,
// never on a concrete openai.Message or anthropic.Message struct.
type Message interface {
	Role() string
	Contents() []Content
}

// Request is the trait every concrete per-protocol request body
// implements, letting pipeline code read/mutate the system prompt and
// walk messages without protocol-specific branching.
type Request interface {
	GetStream() bool
	GetModel() string
	Messages() []Message
	GetSystemPrompt() []string
	SetSystemPrompt(s string)
	AddSystemPrompt(s, sep string)
	GetPrompt(def string) string
}

// okBlockTerminator is Aider's convention for marking the end of a
// repo-map turn: a trailing assistant message whose entire content is
// "Ok." (with the trailing period). When present it is not part of the
// "last user block" — original_source treats it as a terminator, not a
// turn to redact into.
const okBlockTerminator = "Ok."

// openInterpreterToolRole is Open-Interpreter's extra message role that
// carries tool output as part of the preceding user turn rather than as
// a separate assistant turn.
const openInterpreterToolRole = "tool"

// LastUserMessage returns the last message with role "user" and its
// index, or ok=false if there is none.
func LastUserMessage(msgs []Message) (msg Message, index int, ok bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role() == "user" {
			return msgs[i], i, true
		}
	}
	return nil, -1, false
}

// LastUserBlock returns the trailing run of messages made of the last
// user message followed by the Open-Interpreter "tool" role messages
// after it (they are logically part of the same turn). If a message with
// any other role sits between the last user message and the end, the
// block is only the final message. An Aider-style
// trailing "Ok." assistant message is never itself part of the block: it
// only marks where the previous block ended, so when the true last
// message is that terminator we look at the block before it instead.
func LastUserBlock(msgs []Message) []Message {
	end := len(msgs)
	if end > 0 {
		if last, ok := soleText(msgs[end-1]); ok && last == okBlockTerminator {
			end--
		}
	}
	if end == 0 {
		return nil
	}

	// Walk backwards from end-1 over contiguous open-interpreter "tool"
	// role messages until the user message they follow is reached.
	start := end - 1
	for start >= 0 && msgs[start].Role() != "user" {
		if msgs[start].Role() != openInterpreterToolRole {
			start++
			break
		}
		start--
	}
	if start < 0 || start >= end {
		start = end - 1
	}
	return msgs[start:end]
}

func soleText(m Message) (string, bool) {
	cs := m.Contents()
	if len(cs) != 1 {
		return "", false
	}
	text, ok := cs[0].GetText()
	if !ok {
		return "", false
	}
	return strings.TrimSpace(text), true
}

// JoinNonEmpty joins non-empty strings with sep, skipping blanks.
func JoinNonEmpty(parts []string, sep string) string {
	var nonEmpty []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, sep)
}
