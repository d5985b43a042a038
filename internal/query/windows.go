package query

import (
	"fmt"
	"sort"

	"engram/internal/index"
	"engram/internal/tape"
)

// TranscriptWindowRadius is how many events around a touch a session
// window shows in each direction.
const TranscriptWindowRadius = 2

// Touch is one evidence row projected into session output.
type Touch struct {
	EventOffset int64  `json:"event_offset"`
	Kind        string `json:"kind"`
	FilePath    string `json:"file_path"`
	Timestamp   string `json:"timestamp"`
}

// WindowEvent is one raw tape row inside a transcript window.
type WindowEvent struct {
	Offset int64          `json:"offset"`
	Event  map[string]any `json:"event"`
}

// Window is the transcript slice around one touch.
type Window struct {
	TouchOffset int64         `json:"touch_offset"`
	Events      []WindowEvent `json:"events"`
}

// Session groups the touches of one tape with their transcript windows.
type Session struct {
	TapeID               string   `json:"tape_id"`
	TouchCount           int      `json:"touch_count"`
	LatestTouchTimestamp string   `json:"latest_touch_timestamp"`
	Touches              []Touch  `json:"touches"`
	Windows              []Window `json:"windows"`
}

// CollectTouches merges direct evidence with evidence for every anchor
// the traversal reached, deduplicated by full row identity. Direct rows
// come first so the query anchors' own touches survive the dedupe.
func CollectTouches(store *index.Store, direct []index.EvidenceFragment, touchedAnchors []string) ([]index.EvidenceFragment, error) {
	seen := make(map[string]struct{})
	var out []index.EvidenceFragment

	for _, f := range direct {
		key := touchKey(f)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}

	reached, err := store.Lookup(touchedAnchors)
	if err != nil {
		return nil, err
	}
	for _, f := range reached {
		key := touchKey(f)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

// touchKey identifies a touch independent of which anchor surfaced it.
// The same event row indexed under several anchors is one touch.
func touchKey(f index.EvidenceFragment) string {
	return fmt.Sprintf("%s:%d:%s:%s:%s", f.TapeID, f.EventOffset, f.Kind, f.FilePath, f.Timestamp)
}

// BuildSessions groups touches by tape and cuts transcript windows around
// each touch from the stored tape. Tapes whose blob is gone are skipped;
// the index rows alone cannot show a transcript.
func BuildSessions(blobs *tape.BlobStore, touches []index.EvidenceFragment) ([]Session, error) {
	byTape := make(map[string][]index.EvidenceFragment)
	for _, touch := range touches {
		byTape[touch.TapeID] = append(byTape[touch.TapeID], touch)
	}

	var sessions []Session
	for tapeID, tapeTouches := range byTape {
		sort.Slice(tapeTouches, func(i, j int) bool {
			return tapeTouches[i].EventOffset < tapeTouches[j].EventOffset
		})
		if !blobs.Exists(tapeID) {
			continue
		}
		content, err := blobs.Read(tapeID)
		if err != nil {
			return nil, err
		}
		rows := tape.ParseRows(content)

		session := Session{
			TapeID:  tapeID,
			Touches: make([]Touch, 0, len(tapeTouches)),
			Windows: make([]Window, 0, len(tapeTouches)),
		}
		for _, touch := range tapeTouches {
			session.Touches = append(session.Touches, Touch{
				EventOffset: touch.EventOffset,
				Kind:        string(touch.Kind),
				FilePath:    touch.FilePath,
				Timestamp:   touch.Timestamp,
			})
			if window, ok := eventWindow(rows, touch.EventOffset, TranscriptWindowRadius); ok {
				session.Windows = append(session.Windows, window)
			}
			if touch.Timestamp > session.LatestTouchTimestamp {
				session.LatestTouchTimestamp = touch.Timestamp
			}
		}
		session.TouchCount = len(session.Touches)
		sessions = append(sessions, session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if a.TouchCount != b.TouchCount {
			return a.TouchCount > b.TouchCount
		}
		if a.LatestTouchTimestamp != b.LatestTouchTimestamp {
			return a.LatestTouchTimestamp > b.LatestTouchTimestamp
		}
		return a.TapeID < b.TapeID
	})
	return sessions, nil
}

// eventWindow cuts the rows around the touch offset. A touch whose offset
// is not in the tape (the row was skipped at parse time) has no window.
func eventWindow(rows []tape.Row, targetOffset int64, radius int) (Window, bool) {
	pos := -1
	for i, row := range rows {
		if row.Offset == targetOffset {
			pos = i
			break
		}
	}
	if pos < 0 {
		return Window{}, false
	}

	start := pos - radius
	if start < 0 {
		start = 0
	}
	end := pos + radius
	if end > len(rows)-1 {
		end = len(rows) - 1
	}

	window := Window{TouchOffset: targetOffset, Events: make([]WindowEvent, 0, end-start+1)}
	for _, row := range rows[start : end+1] {
		window.Events = append(window.Events, WindowEvent{Offset: row.Offset, Event: row.Value})
	}
	return window, true
}
