package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// Source identifies an external data source feeding the collector.
type Source string

const (
	SourceCalendar Source = "calendar"
	SourceTasks    Source = "tasks"
	SourceWeather  Source = "weather"
)

// SourceState records whether a source contributed fresh data to a snapshot.
type SourceState struct {
	Fresh bool
	Error string // failure reason when stale
}

// CalendarEvent is a normalized external calendar entry.
type CalendarEvent struct {
	ID    string
	Title string
	Slot  TimeRange
	Busy  bool
}

// ExternalTask is a normalized task record from the external task store.
type ExternalTask struct {
	ID          string
	Title       string
	Description string
	Priority    Priority
	Deadline    *time.Time
	Duration    time.Duration
	Tags        []string
}

// WeatherConditions is a normalized weather forecast for the plan window.
type WeatherConditions struct {
	Temperature     float64
	Condition       string
	Humidity        int
	WindSpeed       float64
	RainProbability float64 // 0..1
	ObservedAt      time.Time
}

// Snapshot is an immutable, timestamped bundle of normalized external state
// produced once per collector cycle. Consumed read-only by the planner.
type Snapshot struct {
	takenAt time.Time
	window  TimeRange
	events  []CalendarEvent
	tasks   []ExternalTask
	weather *WeatherConditions
	sources map[Source]SourceState
}

// NewSnapshot creates a snapshot. The input slices are copied; the snapshot
// never changes after construction.
func NewSnapshot(
	window TimeRange,
	events []CalendarEvent,
	tasks []ExternalTask,
	weather *WeatherConditions,
	sources map[Source]SourceState,
) *Snapshot {
	s := &Snapshot{
		takenAt: time.Now().UTC(),
		window:  window,
		events:  make([]CalendarEvent, len(events)),
		tasks:   make([]ExternalTask, len(tasks)),
		sources: make(map[Source]SourceState, len(sources)),
	}
	copy(s.events, events)
	copy(s.tasks, tasks)
	if weather != nil {
		w := *weather
		s.weather = &w
	}
	for k, v := range sources {
		s.sources[k] = v
	}
	return s
}

func (s *Snapshot) TakenAt() time.Time { return s.takenAt }
func (s *Snapshot) Window() TimeRange  { return s.window }

// Events returns a copy of the normalized calendar events.
func (s *Snapshot) Events() []CalendarEvent {
	out := make([]CalendarEvent, len(s.events))
	copy(out, s.events)
	return out
}

// ExternalTasks returns a copy of the normalized external task records.
func (s *Snapshot) ExternalTasks() []ExternalTask {
	out := make([]ExternalTask, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Weather returns the weather conditions, or nil when the weather source
// was unavailable.
func (s *Snapshot) Weather() *WeatherConditions {
	if s.weather == nil {
		return nil
	}
	w := *s.weather
	return &w
}

// SourceState reports whether the given source contributed fresh data.
func (s *Snapshot) SourceState(src Source) (SourceState, bool) {
	st, ok := s.sources[src]
	return st, ok
}

// StaleSources lists the sources that failed during collection.
func (s *Snapshot) StaleSources() []Source {
	var out []Source
	for src, st := range s.sources {
		if !st.Fresh {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BusyBlocks returns the time ranges of busy calendar events, sorted by start.
func (s *Snapshot) BusyBlocks() []TimeRange {
	var out []TimeRange
	for _, ev := range s.events {
		if ev.Busy {
			out = append(out, ev.Slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// fingerprintPayload mirrors the snapshot content minus TakenAt, so two
// collections of identical external state hash identically.
type fingerprintPayload struct {
	Window  TimeRange          `json:"window"`
	Events  []CalendarEvent    `json:"events"`
	Tasks   []ExternalTask     `json:"tasks"`
	Weather *WeatherConditions `json:"weather,omitempty"`
	Sources map[string]bool    `json:"sources"`
}

// Fingerprint returns a stable content hash of the snapshot, excluding the
// collection timestamp. Equal fingerprints mean equivalent snapshots.
func (s *Snapshot) Fingerprint() string {
	events := s.Events()
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })

	tasks := s.ExternalTasks()
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	sources := make(map[string]bool, len(s.sources))
	for src, st := range s.sources {
		sources[string(src)] = st.Fresh
	}

	payload := fingerprintPayload{
		Window:  s.window,
		Events:  events,
		Tasks:   tasks,
		Weather: s.weather,
		Sources: sources,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		// Marshalling plain structs cannot fail; guard anyway.
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Equivalent reports whether two snapshots carry the same content,
// ignoring when they were taken.
func (s *Snapshot) Equivalent(other *Snapshot) bool {
	if other == nil {
		return false
	}
	return s.Fingerprint() == other.Fingerprint()
}
