package channel

import (
	"encoding/json"
	"testing"
)

func TestSubscription_CloseDeregistersOnlyItsOwnEvents(t *testing.T) {
	fake := NewFake()

	a := Subscribe(fake)
	b := Subscribe(fake)
	var aGot, bGot int
	a.On("update_rooms", func(json.RawMessage) { aGot++ })
	b.On("room_error", func(json.RawMessage) { bGot++ })

	a.Close()

	if fake.Deliver("update_rooms", nil) {
		t.Fatalf("closed subscription still handles update_rooms")
	}
	if !fake.Deliver("room_error", nil) || bGot != 1 {
		t.Fatalf("unrelated subscription was torn down too")
	}
	if aGot != 0 {
		t.Fatalf("handler ran after deregistration")
	}
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	fake := NewFake()
	s := Subscribe(fake)
	s.On("update_rooms", func(json.RawMessage) {})
	s.Close()
	s.Close()
}

func TestFake_DeliverWithoutHandler(t *testing.T) {
	fake := NewFake()
	if fake.Deliver("update_rooms", nil) {
		t.Fatalf("deliver must report false with no handler registered")
	}
}

func TestFake_RecordsSends(t *testing.T) {
	fake := NewFake()
	if err := fake.Send("get_rooms", nil); err != nil {
		t.Fatal(err)
	}
	if err := fake.Send("leave_room", map[string]string{"roomName": "beta"}); err != nil {
		t.Fatal(err)
	}
	names := fake.SentNames()
	if len(names) != 2 || names[0] != "get_rooms" || names[1] != "leave_room" {
		t.Fatalf("unexpected send order: %v", names)
	}
}
