package transfer

import (
	"bufio"
	"encoding/json"
	"strings"
)

// logLine is the shape of one rclone --use-json-log record. Fields we do
// not inspect are ignored by the decoder.
type logLine struct {
	Level      string `json:"level"`
	Msg        string `json:"msg"`
	Object     string `json:"object"`
	ObjectType string `json:"objectType"`
}

// parseLog walks the tool's log output (one JSON record per line) and
// extracts per-file events. Non-JSON lines are collected so callers can
// surface them when the run failed.
func parseLog(output string) (events []FileEvent, plain []string) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "{") {
			plain = append(plain, line)
			if ev, ok := classifyPlain(line); ok {
				events = append(events, ev)
			}
			continue
		}
		var rec logLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			plain = append(plain, line)
			continue
		}
		if ev, ok := classifyRecord(rec); ok {
			events = append(events, ev)
		}
	}
	return events, plain
}

// classifyRecord maps one log record onto a file event. The direction of a
// copy follows the object type: rclone reports the destination object, so
// a WebDAV destination means the file went up.
func classifyRecord(rec logLine) (FileEvent, bool) {
	if rec.Object == "" {
		return FileEvent{}, false
	}
	msg := rec.Msg
	switch {
	case strings.Contains(msg, "Copied") || strings.Contains(msg, "Updated") ||
		strings.Contains(msg, "Uploaded") || strings.Contains(msg, "Transferred"):
		if isRemoteObject(rec.ObjectType) {
			return FileEvent{Path: rec.Object, Outcome: OutcomeUploaded, Detail: msg}, true
		}
		return FileEvent{Path: rec.Object, Outcome: OutcomeDownloaded, Detail: msg}, true
	case strings.Contains(msg, "Deleted"):
		return FileEvent{Path: rec.Object, Outcome: OutcomeDeleted, Detail: msg}, true
	case strings.Contains(msg, "Excluded") || strings.Contains(msg, "max-size") ||
		strings.Contains(msg, "file size exceeds"):
		return FileEvent{Path: rec.Object, Outcome: OutcomeSkipped, Detail: msg}, true
	case strings.Contains(msg, "conflict") || strings.Contains(msg, "Conflict"):
		return FileEvent{Path: rec.Object, Outcome: OutcomeConflict, Detail: msg}, true
	}
	return FileEvent{}, false
}

func isRemoteObject(objectType string) bool {
	return strings.Contains(strings.ToLower(objectType), "webdav")
}

// classifyPlain catches conflict markers that the tool prints outside its
// structured log, such as bisync "..conflict" renames.
func classifyPlain(line string) (FileEvent, bool) {
	lower := strings.ToLower(line)
	if !strings.Contains(lower, "conflict") {
		return FileEvent{}, false
	}
	// "NOTICE: file.txt: ...conflict..." keeps the file name in the
	// second colon-separated field when present.
	path := ""
	parts := strings.SplitN(line, ": ", 3)
	if len(parts) == 3 {
		path = strings.TrimSpace(parts[1])
	}
	return FileEvent{Path: path, Outcome: OutcomeConflict, Detail: strings.TrimSpace(line)}, true
}
