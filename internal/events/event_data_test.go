package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockResolvedDataRoundTrip(t *testing.T) {
	data := StockResolvedData{CodeSymbol: "AAPL.US", Level: 4, Resolved: 6}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)

	var unmarshaled StockResolvedData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
	assert.Equal(t, StockResolved, data.EventType())
}

func TestResolutionFailedDataEventType(t *testing.T) {
	data := &ResolutionFailedData{CodeSymbol: "BAD.US", Poisoned: true}
	assert.Equal(t, ResolutionFailed, data.EventType())
}

func TestRealtimeRecordAppendedDataRoundTrip(t *testing.T) {
	data := RealtimeRecordAppendedData{CodeSymbol: "MSFT.US", Timestamp: 1700000000, Price: 123.45, Volume: 100}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)

	var unmarshaled RealtimeRecordAppendedData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, data, unmarshaled)
}

func TestAlertTriggeredDataEventType(t *testing.T) {
	data := &AlertTriggeredData{Title: "Breakout", Expression: "S(AAPL.US,CLOSE,0) > 200"}
	assert.Equal(t, AlertTriggered, data.EventType())
}

func TestGenericEventDataMarshalUnmarshal(t *testing.T) {
	data := &GenericEventData{Type: "SOMETHING_UNKNOWN", Data: map[string]interface{}{"foo": "bar"}}

	jsonData, err := json.Marshal(data)
	require.NoError(t, err)

	var unmarshaled GenericEventData
	require.NoError(t, json.Unmarshal(jsonData, &unmarshaled))
	assert.Equal(t, "bar", unmarshaled.Data["foo"])
}

func TestEventWithDataMarshalUnmarshalStockResolved(t *testing.T) {
	original := &EventWithData{
		Type:      StockResolved,
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Module:    "resolver",
		Data:      &StockResolvedData{CodeSymbol: "AAPL.US", Level: 4, Resolved: 6},
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)

	var roundTripped EventWithData
	require.NoError(t, json.Unmarshal(jsonData, &roundTripped))

	require.IsType(t, &StockResolvedData{}, roundTripped.Data)
	assert.Equal(t, "AAPL.US", roundTripped.Data.(*StockResolvedData).CodeSymbol)
}

func TestEventWithDataUnmarshalUnknownTypeFallsBackToGeneric(t *testing.T) {
	raw := `{"type":"SOMETHING_UNKNOWN","timestamp":"2026-01-01T00:00:00Z","module":"x","data":{"foo":"bar"}}`

	var event EventWithData
	require.NoError(t, json.Unmarshal([]byte(raw), &event))

	require.IsType(t, &GenericEventData{}, event.Data)
	assert.Equal(t, "bar", event.Data.(*GenericEventData).Data["foo"])
}

func TestEventWithDataMarshalNilData(t *testing.T) {
	event := &EventWithData{Type: ErrorOccurred, Module: "x"}

	jsonData, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"module":"x"`)
}

func TestBusSubscribeAndEmit(t *testing.T) {
	bus := NewBus()

	received := make(chan *Event, 1)
	bus.Subscribe(StockResolved, func(e *Event) { received <- e })

	bus.Emit(StockResolved, "resolver", map[string]interface{}{"code_symbol": "AAPL.US"})

	select {
	case e := <-received:
		assert.Equal(t, StockResolved, e.Type)
		assert.Equal(t, "resolver", e.Module)
		assert.Equal(t, "AAPL.US", e.Data["code_symbol"])
	default:
		t.Fatal("handler was not invoked synchronously")
	}
}

func TestBusSubscriberOnlyReceivesItsType(t *testing.T) {
	bus := NewBus()

	var stockCalls, alertCalls int
	bus.Subscribe(StockResolved, func(e *Event) { stockCalls++ })
	bus.Subscribe(AlertTriggered, func(e *Event) { alertCalls++ })

	bus.Emit(StockResolved, "resolver", nil)

	assert.Equal(t, 1, stockCalls)
	assert.Equal(t, 0, alertCalls)
}

func TestBusMultipleSubscribersAllInvoked(t *testing.T) {
	bus := NewBus()

	var calls int
	bus.Subscribe(AlertTriggered, func(e *Event) { calls++ })
	bus.Subscribe(AlertTriggered, func(e *Event) { calls++ })

	bus.Emit(AlertTriggered, "alerts", nil)

	assert.Equal(t, 2, calls)
}

func TestManagerEmitPublishesToBus(t *testing.T) {
	bus := NewBus()
	mgr := NewManager(bus, zerolog.Nop())

	received := make(chan *Event, 1)
	bus.Subscribe(AlertTriggered, func(e *Event) { received <- e })

	mgr.Emit("alerts", &AlertTriggeredData{Title: "Breakout", TriggeredTime: 1700000000})

	select {
	case e := <-received:
		assert.Equal(t, "Breakout", e.Data["title"])
	default:
		t.Fatal("manager did not publish to bus")
	}
}

func TestManagerEmitError(t *testing.T) {
	bus := NewBus()
	mgr := NewManager(bus, zerolog.Nop())

	received := make(chan *Event, 1)
	bus.Subscribe(ErrorOccurred, func(e *Event) { received <- e })

	mgr.EmitError("resolver", assertError("boom"), map[string]interface{}{"code_symbol": "AAPL.US"})

	select {
	case e := <-received:
		assert.Equal(t, "boom", e.Data["error"])
	default:
		t.Fatal("manager did not publish error event to bus")
	}
}

type assertError string

func (e assertError) Error() string { return string(e) }
