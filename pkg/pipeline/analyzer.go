package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/pkg/logsource"
)

// Payload fields consulted in order when the log source splits error
// details into structured keys.
var (
	payloadErrorTypeKeys = []string{"error_type", "error.type", "exception", "exception_type", "error_class"}
	payloadStackKeys     = []string{"stack_trace", "stacktrace", "stack", "exception_stacktrace", "traceback"}
	payloadMessageKeys   = []string{"error_message", "error.message", "message"}
)

// errorClassRe matches conventional error class names such as
// NullPointerException or TimeoutError.
var errorClassRe = regexp.MustCompile(`\b[A-Z][A-Za-z0-9_]*(?:Error|Exception)\b`)

// Stack frame formats, one per runtime family.
var (
	// at Namespace.Class.Method(String arg) in /src/File.cs:line 42
	csFrameRe = regexp.MustCompile("^\\s*at\\s+([\\w.]+)\\.([\\w<>\\[\\],`]+)\\([^)]*\\)\\s+in\\s+(.+?):line\\s+(\\d+)")

	// at com.example.Handler.process(Handler.java:42)
	javaFrameRe = regexp.MustCompile(`^\s*at\s+([\w.$]+)\.([\w$<>]+)\(([\w.$]+):(\d+)\)`)

	// File "app/views.py", line 42, in get_user
	pythonFrameRe = regexp.MustCompile(`File\s+"([^"]+)",\s+line\s+(\d+)(?:,\s+in\s+([\w.<>]+))?`)

	// at Object.handler (src/routes.js:42:13)  |  at src/routes.js:42:13
	jsFrameRe = regexp.MustCompile(`^\s*at\s+(?:([\w.$<>\[\]]+)\s+\()?([^():\s]+):(\d+):(\d+)\)?`)
)

// maxFrames caps how many frames one entry contributes to the search.
const maxFrames = 32

// LogAnalyzer turns the raw log entry into an Analysis. It is fully
// deterministic: structured payload fields win over message parsing, and no
// model is consulted.
type LogAnalyzer struct {
	logger *zap.Logger
}

// NewLogAnalyzer creates the first pipeline stage.
func NewLogAnalyzer(logger *zap.Logger) *LogAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogAnalyzer{logger: logger}
}

// Name returns the stage name.
func (a *LogAnalyzer) Name() string { return StageLogAnalyzer }

// Run extracts the error type, normalized message, stack trace, and frames
// from the source entry. It fails only when the entry carries no message
// and no structured payload at all.
func (a *LogAnalyzer) Run(ctx context.Context, ec *ErrorCase) error {
	entry := ec.SourceLog
	message := strings.TrimSpace(entry.Message)
	if message == "" && len(entry.Payload) == 0 {
		return ErrNoAnalyzableContent
	}
	if message == "" {
		message = strings.TrimSpace(firstPayloadValue(entry.Payload, payloadMessageKeys))
	}

	an := &Analysis{
		Severity:          entry.Severity,
		NormalizedMessage: normalizeMessage(message),
	}
	an.StackTrace = strings.TrimSpace(firstPayloadValue(entry.Payload, payloadStackKeys))
	if an.StackTrace == "" && strings.ContainsRune(entry.Message, '\n') {
		// multi-line messages usually carry the trace inline
		an.StackTrace = strings.TrimSpace(entry.Message)
	}
	an.ErrorType = resolveErrorType(entry, an)
	an.Frames = collectFrames(entry.Stack, an.StackTrace)
	ec.Analysis = an

	a.logger.Info("log analyzed",
		zap.String("case_id", ec.ID),
		zap.String("error_type", an.ErrorType),
		zap.Int("frames", len(an.Frames)))
	return nil
}

// normalizeMessage reduces a message to its first line with whitespace
// collapsed.
func normalizeMessage(message string) string {
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		message = message[:i]
	}
	return strings.Join(strings.Fields(message), " ")
}

// resolveErrorType picks the error class: structured payload first, then
// the first conventional class name in the message or trace, then a
// severity-derived generic type.
func resolveErrorType(entry logsource.LogEntry, an *Analysis) string {
	if v := strings.TrimSpace(firstPayloadValue(entry.Payload, payloadErrorTypeKeys)); v != "" {
		return v
	}
	for _, text := range []string{an.NormalizedMessage, an.StackTrace} {
		if m := errorClassRe.FindString(text); m != "" {
			return m
		}
	}
	return genericErrorType(entry.Severity)
}

func genericErrorType(sev logsource.Severity) string {
	switch sev {
	case logsource.SeverityFatal:
		return "CriticalError"
	case logsource.SeverityWarn:
		return "Warning"
	default:
		return "RuntimeError"
	}
}

func firstPayloadValue(payload map[string]string, keys []string) string {
	for _, k := range keys {
		if v, ok := payload[k]; ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// collectFrames merges structured source frames with frames parsed from
// the trace text. Structured frames come first; duplicates are dropped.
func collectFrames(structured []logsource.Frame, trace string) []logsource.Frame {
	frames := make([]logsource.Frame, 0, len(structured))
	seen := make(map[string]struct{})
	add := func(f logsource.Frame) {
		if f.File == "" && f.Function == "" {
			return
		}
		if len(frames) >= maxFrames {
			return
		}
		key := fmt.Sprintf("%s|%s|%d", f.File, f.Function, f.Line)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		frames = append(frames, f)
	}
	for _, f := range structured {
		add(f)
	}
	for _, line := range strings.Split(trace, "\n") {
		if f, ok := parseFrameLine(line); ok {
			add(f)
		}
	}
	return frames
}

// parseFrameLine matches one trace line against the known frame formats,
// most specific first.
func parseFrameLine(line string) (logsource.Frame, bool) {
	if m := csFrameRe.FindStringSubmatch(line); m != nil {
		return logsource.Frame{File: m[3], Function: qualifiedName(m[1], m[2]), Line: atoi(m[4])}, true
	}
	if m := javaFrameRe.FindStringSubmatch(line); m != nil {
		return logsource.Frame{File: m[3], Function: qualifiedName(m[1], m[2]), Line: atoi(m[4])}, true
	}
	if m := pythonFrameRe.FindStringSubmatch(line); m != nil {
		return logsource.Frame{File: m[1], Function: m[3], Line: atoi(m[2])}, true
	}
	if m := jsFrameRe.FindStringSubmatch(line); m != nil && looksLikeFile(m[2]) {
		return logsource.Frame{File: m[2], Function: m[1], Line: atoi(m[3])}, true
	}
	return logsource.Frame{}, false
}

// qualifiedName joins the last segment of a dotted qualifier with the
// member name, so "com.example.Handler" + "process" becomes
// "Handler.process".
func qualifiedName(qualifier, member string) string {
	if i := strings.LastIndex(qualifier, "."); i >= 0 {
		qualifier = qualifier[i+1:]
	}
	return qualifier + "." + member
}

// looksLikeFile rejects colon-separated numbers (timestamps, ratios) that
// the loose JS frame format would otherwise accept.
func looksLikeFile(s string) bool {
	if !strings.Contains(s, ".") {
		return false
	}
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
