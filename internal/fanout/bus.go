package fanout

import (
    "time"
)

const subscriberBuffer = 16

// Event is broadcast to every viewer of a sheet after a signature commits.
// Per (sheet, participant) at most one event is ever published, so no
// ordering concern exists within a key.
type Event struct {
    SheetID       string    `json:"sheet_id"`
    ParticipantID string    `json:"participant_id"`
    Present       bool      `json:"present"`
    SignedAt      time.Time `json:"signed_at"`
}

// Subscriber receives events for a single sheet on C. C is closed on
// Unsubscribe, and also when the subscriber falls too far behind; either way
// the consumer should reconcile by re-fetching the sheet on reconnect.
type Subscriber struct {
    C       chan Event
    sheetID string
}

type publishReq struct {
    event Event
}

// Bus is the per-sheet broadcast channel. It is a liveness optimization
// only; the store remains the source of truth.
type Bus struct {
    register   chan *Subscriber
    unregister chan *Subscriber
    publish    chan publishReq
    subs       map[string]map[*Subscriber]struct{}
}

func NewBus() *Bus {
    return &Bus{
        register:   make(chan *Subscriber),
        unregister: make(chan *Subscriber),
        publish:    make(chan publishReq, 256),
        subs:       make(map[string]map[*Subscriber]struct{}),
    }
}

func (b *Bus) Run() {
    for {
        select {
        case sub := <-b.register:
            b.add(sub)
        case sub := <-b.unregister:
            b.remove(sub)
        case req := <-b.publish:
            b.broadcast(req.event)
        }
    }
}

// add, remove and broadcast touch b.subs and must only be called from the
// Run goroutine.

func (b *Bus) add(sub *Subscriber) {
    room, ok := b.subs[sub.sheetID]
    if !ok {
        room = make(map[*Subscriber]struct{})
        b.subs[sub.sheetID] = room
    }
    room[sub] = struct{}{}
}

func (b *Bus) remove(sub *Subscriber) {
    room, ok := b.subs[sub.sheetID]
    if !ok {
        return
    }
    if _, ok := room[sub]; !ok {
        return
    }
    delete(room, sub)
    close(sub.C)
    if len(room) == 0 {
        delete(b.subs, sub.sheetID)
    }
}

func (b *Bus) broadcast(event Event) {
    room := b.subs[event.SheetID]
    for sub := range room {
        select {
        case sub.C <- event:
        default:
            // Slow consumer: drop it and let the client reconcile.
            delete(room, sub)
            close(sub.C)
        }
    }
    // A sheet whose last subscriber was dropped must not pin its room entry.
    if len(room) == 0 {
        delete(b.subs, event.SheetID)
    }
}

// Subscribe registers a viewer on the sheet's channel.
func (b *Bus) Subscribe(sheetID string) *Subscriber {
    sub := &Subscriber{C: make(chan Event, subscriberBuffer), sheetID: sheetID}
    b.register <- sub
    return sub
}

// Unsubscribe removes the viewer and closes its channel. Safe to call once
// per subscriber.
func (b *Bus) Unsubscribe(sub *Subscriber) {
    b.unregister <- sub
}

// Publish fans the event out to every current subscriber of its sheet.
// Callers must publish only after the signature write has committed.
func (b *Bus) Publish(event Event) {
    if b == nil {
        return
    }
    b.publish <- publishReq{event: event}
}
