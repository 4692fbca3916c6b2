package plumber

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	llmFixTimeout       = 60 * time.Second
	llmMinConfidence    = 0.6
	llmMaxDiffLines     = 50
	llmCodeWindowLines  = 400
	llmCodeWindowMargin = 200
)

const llmFixSystem = `You repair broken automation scripts. You receive a file and the
error it produces. Respond with JSON only:
{"fixed_code": "<the complete corrected file>", "confidence": <0..1>, "summary": "<one line>"}
Change as little as possible. If you cannot fix it, set confidence to 0.`

// llmFix is the fallback repair path. It is budgeted to one attempt
// per file per session and every candidate goes through verification
// before it can land; the patch trail is written even for candidates
// that are rejected.
func (p *Plumber) llmFix(ctx context.Context, workflow, errText, path, content string, verify func(context.Context, string) bool) string {
	if !p.cfg.Plumber.LLMFix || p.llm == nil {
		return FixDisabled
	}
	if p.llmFixedFiles[path] {
		return FixBlocked
	}
	p.llmFixedFiles[path] = true

	user := fmt.Sprintf("File: %s\nError:\n%s\n\nCode:\n%s", path, errText, codeWindow(content))
	cctx, cancel := context.WithTimeout(ctx, llmFixTimeout)
	defer cancel()
	resp, err := p.llm.CompleteJSON(cctx, llmFixSystem, user)
	if err != nil {
		p.prints.Record(workflow, errText, true, false, "llm fix", "")
		return FixLLMError
	}

	fixed, _ := resp["fixed_code"].(string)
	confidence, haveConf := resp["confidence"].(float64)
	summary, _ := resp["summary"].(string)
	if fixed == "" || !haveConf {
		p.prints.Record(workflow, errText, true, false, "llm fix", "")
		return FixLLMBadResponse
	}
	if summary == "" {
		summary = "automated repair"
	}
	summary = "llm: " + summary

	if confidence < llmMinConfidence {
		p.auditRejected(ctx, path, workflow, content, fixed, summary)
		return FixLowConfidence
	}
	if fixed == content {
		return FixNoChanges
	}
	diff, err := unifiedDiff(ctx, path, content, fixed)
	if err == nil && countChangedLines(diff) > llmMaxDiffLines {
		p.auditRejected(ctx, path, workflow, content, fixed, summary)
		return FixDiffTooLarge
	}
	if !verify(ctx, fixed) {
		p.prints.Record(workflow, errText, true, false, summary, "")
		p.auditRejected(ctx, path, workflow, content, fixed, summary)
		return FixFailedVerification
	}
	return p.deliverFix(ctx, workflow, errText, path, content, fixed, summary)
}

// auditRejected keeps the patch trail for candidates that never land.
// The safe zone bounds patch metadata the same as applied fixes.
func (p *Plumber) auditRejected(ctx context.Context, path, workflow, oldContent, newContent, summary string) {
	if ok, err := p.inSafeZone(path); err != nil || !ok {
		return
	}
	if _, err := p.writePatch(ctx, path, workflow, oldContent, newContent, summary, false); err != nil {
		p.log.Warn("rejected-fix patch write failed", "file", path, "error", err)
	}
}

// codeWindow bounds what is sent to the model: whole file when small,
// head plus tail with an elision marker when large.
func codeWindow(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) <= llmCodeWindowLines {
		return content
	}
	head := lines[:llmCodeWindowMargin]
	tail := lines[len(lines)-llmCodeWindowMargin:]
	elided := len(lines) - 2*llmCodeWindowMargin
	return strings.Join(head, "\n") +
		fmt.Sprintf("\n... (%d lines elided) ...\n", elided) +
		strings.Join(tail, "\n")
}
