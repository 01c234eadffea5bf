package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// EventData is the interface every typed event payload implements, so the
// bus can carry a concrete struct through EventWithData without callers
// type-asserting on a bare map.
type EventData interface {
	EventType() EventType
}

// StockResolvedData contains data for StockResolved events.
type StockResolvedData struct {
	CodeSymbol string `json:"code_symbol"`
	Level      uint32 `json:"level"`
	Resolved   uint32 `json:"resolved"`
}

func (d *StockResolvedData) EventType() EventType { return StockResolved }

// ResolutionFailedData contains data for ResolutionFailed events.
type ResolutionFailedData struct {
	CodeSymbol  string `json:"code_symbol"`
	Level       uint32 `json:"level"`
	Error       string `json:"error"`
	FetchErrors uint32 `json:"fetch_errors"`
	Poisoned    bool   `json:"poisoned"`
}

func (d *ResolutionFailedData) EventType() EventType { return ResolutionFailed }

// RealtimeRecordAppendedData contains data for RealtimeRecordAppended events.
type RealtimeRecordAppendedData struct {
	CodeSymbol string  `json:"code_symbol"`
	Timestamp  int64   `json:"timestamp"`
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
}

func (d *RealtimeRecordAppendedData) EventType() EventType { return RealtimeRecordAppended }

// AlertTriggeredData contains data for AlertTriggered events.
type AlertTriggeredData struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Expression    string `json:"expression"`
	TriggeredTime int64  `json:"triggered_time"`
}

func (d *AlertTriggeredData) EventType() EventType { return AlertTriggered }

// BackupCompletedData contains data for BackupCompleted events.
type BackupCompletedData struct {
	Key      string `json:"key"`
	Bytes    int64  `json:"bytes"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

func (d *BackupCompletedData) EventType() EventType { return BackupCompleted }

// JobFailedData contains data for JobFailed events.
type JobFailedData struct {
	JobName string `json:"job_name"`
	Error   string `json:"error"`
}

func (d *JobFailedData) EventType() EventType { return JobFailed }

// ErrorEventData contains data for ErrorOccurred events.
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (d *ErrorEventData) EventType() EventType { return ErrorOccurred }

// GenericEventData is the fallback for event types with no registered
// struct, carrying the raw decoded map straight through.
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

func (d *GenericEventData) EventType() EventType { return d.Type }

func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}

// EventWithData is an event envelope carrying a typed payload rather than
// the bus's legacy map[string]interface{}, for callers that want to
// round-trip a concrete struct through JSON (currently only the tests).
type EventWithData struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

func (e *EventWithData) MarshalJSON() ([]byte, error) {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{Alias: (*Alias)(e)}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}
	return json.Marshal(aux)
}

func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{Alias: (*Alias)(e)}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.Data) == 0 {
		return nil
	}

	var eventData EventData
	switch aux.Type {
	case StockResolved:
		eventData = &StockResolvedData{}
	case ResolutionFailed:
		eventData = &ResolutionFailedData{}
	case RealtimeRecordAppended:
		eventData = &RealtimeRecordAppendedData{}
	case AlertTriggered:
		eventData = &AlertTriggeredData{}
	case BackupCompleted:
		eventData = &BackupCompletedData{}
	case JobFailed:
		eventData = &JobFailedData{}
	case ErrorOccurred:
		eventData = &ErrorEventData{}
	default:
		var rawData map[string]interface{}
		if err := json.Unmarshal(aux.Data, &rawData); err != nil {
			return err
		}
		e.Data = &GenericEventData{Type: aux.Type, Data: rawData}
		return nil
	}

	if err := json.Unmarshal(aux.Data, eventData); err != nil {
		return err
	}
	e.Data = eventData
	return nil
}

// newEvent builds the legacy map-based Event the bus fans out, carrying
// data as given (typed payloads are converted to a map by toMap first).
func newEvent(eventType EventType, module string, data map[string]interface{}) *Event {
	return &Event{
		ID:        NewEventID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}
}

// toMap converts a typed EventData payload to the map the bus carries.
func toMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}
	return result
}

// Manager wraps a Bus with structured logging of every emission, mirroring
// the way the rest of the workbench logs through a component-scoped
// zerolog.Logger.
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates an event manager that emits through bus and logs
// through log.
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("component", "events").Logger(),
	}
}

// Emit publishes a typed event to the bus and logs it.
func (m *Manager) Emit(module string, data EventData) {
	eventType := data.EventType()
	dataMap := toMap(data)

	m.bus.Emit(eventType, module, dataMap)

	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		Interface("data", data).
		Msg("event emitted")
}

// EmitError emits an ErrorOccurred event for an ad-hoc failure that doesn't
// warrant its own typed event.
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	m.Emit(module, &ErrorEventData{Error: err.Error(), Context: context})
}
