package utils

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// TextProcessor prepares reply text before it is sent to a language model
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// TruncateText cuts text to at most maxSize bytes on a rune boundary and
// appends a marker. maxSize <= 0 means no limit.
func (tp *TextProcessor) TruncateText(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	cut := maxSize
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}

	tp.logger.Debug("Reply text truncated",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", cut),
		zap.Int("max_size", maxSize))

	return text[:cut] + "\n[... reply truncated ...]"
}

// SanitizeUTF8 drops invalid UTF-8 sequences
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	clean := strings.ToValidUTF8(text, "")
	tp.logger.Debug("Reply text sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(clean)))
	return clean
}

// ProcessText drops quoted history, then truncates and sanitizes the rest
func (tp *TextProcessor) ProcessText(text string, maxSize int) string {
	return tp.SanitizeUTF8(tp.TruncateText(StripQuoted(text), maxSize))
}

// StripQuoted removes the quoted original from a reply: lines starting with
// ">" and everything after an "On ... wrote:" attribution line.
func StripQuoted(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "On ") && strings.HasSuffix(trimmed, "wrote:") {
			break
		}
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
