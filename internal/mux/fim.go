// Package mux implements the Muxing Router (component J): the single
// entry point that takes a request in whatever shape the client sent it,
// decides whether it's a fill-in-the-middle completion or a chat turn,
// matches it against a workspace's ordered mux rules, and rewrites it for
// the destination provider.
package mux

import "strings"

// fimStopSequences are the four tags that bracket a FIM prompt's query
// and completion regions. A body that contains all four in its first
// message is treated as FIM even when the URL alone doesn't say so —
// this is how OpenAI- and Anthropic-shaped FIM requests (llama.cpp
// signals FIM purely by URL instead) get detected.
var fimStopSequences = []string{"</COMPLETION>", "<COMPLETION>", "</QUERY>", "<QUERY>"}

// fimExemptTools never produce a FIM request regardless of URL or body
// shape, because their own prompts can legitimately contain the stop
// sequence text as ordinary conversation.
var fimExemptTools = []string{"cline", "kodu", "open interpreter"}

// isFIMRequestURL checks the request's URL path the way llama.cpp's
// client distinguishes FIM from chat: by which endpoint it posted to.
// grounded on providers/fim_analyzer.py:_is_fim_request_url.
func isFIMRequestURL(urlPath string) bool {
	if strings.HasSuffix(urlPath, "chat/completions") {
		return false
	}
	return strings.HasSuffix(urlPath, "completions") || strings.HasSuffix(urlPath, "api/generate")
}

// isFIMRequestBody inspects the raw parsed body the way OpenAI's and
// Anthropic's clients signal FIM: every content block of the first
// message must contain all four fimStopSequences.
//
// The Go port operates on the generic map[string]any the router already
// holds (spec §4.J step 1), rather than on a typed per-protocol request
// object. The original's fim_analyzer.py calls data.first_message() and
// content.get_text(), which only exist on its pydantic request models —
// but its own call site in muxing/router.py passes it the raw
// json.loads(body) dict, which has neither method. That mismatch looks
// like a latent bug in the original rather than an intentional contract;
// see DESIGN.md. This port reproduces the *intended* semantics (first
// message, every text block, all four sequences present) against the
// shape that's actually available at the mux router: a generic JSON
// object.
//
// firstMessageTexts returning (nil, false) — no first message at all —
// means not-FIM. firstMessageTexts returning ([], true) — a first
// message exists but has zero text blocks — reproduces the original's
// vacuous-truth corner case: the for loop over content never runs, so
// the function falls through to its final `return True`.
func isFIMRequestBody(body map[string]any) bool {
	texts, hasFirstMessage := firstMessageTexts(body)
	if !hasFirstMessage {
		return false
	}
	for _, text := range texts {
		lower := text
		for _, seq := range fimStopSequences {
			if !strings.Contains(lower, seq) {
				return false
			}
		}
	}
	return true
}

// firstMessageTexts returns the text of every content block of body's
// first message. ok is false when there is no messages list or it's
// empty (no first message to inspect); ok is true with a possibly-empty
// texts slice when a first message exists but carries no plain-text
// content blocks (e.g. only a tool call).
func firstMessageTexts(body map[string]any) (texts []string, ok bool) {
	rawMsgs, _ := body["messages"].([]any)
	if len(rawMsgs) == 0 {
		return nil, false
	}
	msg, isMap := rawMsgs[0].(map[string]any)
	if !isMap {
		return nil, false
	}

	switch content := msg["content"].(type) {
	case string:
		return []string{content}, true
	case []any:
		var out []string
		for _, block := range content {
			bm, ok := block.(map[string]any)
			if !ok {
				continue
			}
			if text, _ := bm["text"].(string); text != "" {
				out = append(out, text)
			}
		}
		return out, true
	default:
		return nil, true
	}
}

// promptText concatenates every message's text plus a top-level "system"
// string, approximating the original's Request.get_prompt("") trait
// method closely enough for the cline/kodu/open-interpreter substring
// pre-filter, which only cares whether those tool names appear anywhere
// in the conversation.
func promptText(body map[string]any) string {
	var sb strings.Builder
	rawMsgs, _ := body["messages"].([]any)
	for _, rawMsg := range rawMsgs {
		msg, ok := rawMsg.(map[string]any)
		if !ok {
			continue
		}
		switch content := msg["content"].(type) {
		case string:
			sb.WriteString(content)
			sb.WriteByte('\n')
		case []any:
			for _, block := range content {
				bm, ok := block.(map[string]any)
				if !ok {
					continue
				}
				if text, _ := bm["text"].(string); text != "" {
					sb.WriteString(text)
					sb.WriteByte('\n')
				}
			}
		}
	}
	if sys, ok := body["system"].(string); ok {
		sb.WriteString(sys)
	}
	return sb.String()
}

// IsFIMRequest decides whether a mux request is fill-in-the-middle,
// mirroring FIMAnalyzer.is_fim_request: the exempt-tool prefilter runs
// first (cheapest and an absolute override), then the URL check (cheap),
// then the body check (most expensive — requires walking message
// content).
func IsFIMRequest(urlPath string, body map[string]any) bool {
	prompt := strings.ToLower(promptText(body))
	for _, tool := range fimExemptTools {
		if strings.Contains(prompt, tool) {
			return false
		}
	}

	if isFIMRequestURL(urlPath) {
		return true
	}
	return isFIMRequestBody(body)
}
