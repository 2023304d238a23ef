package chathub

import (
	"fmt"

	"marketchat/backend/internal/chat"
	"marketchat/backend/internal/models"
)

// Phase is where a connection is in its lifecycle.
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseIdle
	PhaseInRoom
	PhaseDisconnected
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseIdle:
		return "idle"
	case PhaseInRoom:
		return "in_room"
	case PhaseDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Session is the per-connection state. It is only changed through Transition.
type Session struct {
	ConnID   string
	Identity models.Identity
	Phase    Phase
	// ActiveChat is the room used for read marking and as the default target.
	ActiveChat string
	// Subscribed holds every room this connection receives broadcasts from.
	Subscribed map[string]struct{}
}

func NewSession(connID string, identity models.Identity) Session {
	return Session{ConnID: connID, Identity: identity, Phase: PhaseConnecting, Subscribed: map[string]struct{}{}}
}

// InRoom reports whether the connection receives broadcasts for chatID.
func (s Session) InRoom(chatID string) bool {
	_, ok := s.Subscribed[chatID]
	return ok
}

func (s Session) clone() Session {
	out := s
	out.Subscribed = make(map[string]struct{}, len(s.Subscribed))
	for k := range s.Subscribed {
		out.Subscribed[k] = struct{}{}
	}
	return out
}

// InputKind classifies what happened to a connection.
type InputKind int

const (
	// InputAuthenticated: the handshake credential was verified.
	InputAuthenticated InputKind = iota
	// InputRejected: the handshake credential was missing or invalid.
	InputRejected
	// InputEvent: the client sent a command.
	InputEvent
	// InputMalformed: the client sent something that does not decode.
	InputMalformed
	// InputRateLimited: the client exceeded its event budget.
	InputRateLimited
	// InputJoinGranted and InputJoinDenied carry the result of an access check.
	InputJoinGranted
	InputJoinDenied
	// InputClosed: the transport went away.
	InputClosed
)

type Input struct {
	Kind   InputKind
	Event  models.InboundEvent
	ChatID string
	Err    error
}

// EffectKind is a side effect the hub executes after a transition.
type EffectKind int

const (
	EffectAttach EffectKind = iota
	EffectDetach
	EffectRegisterPresence
	EffectUnregisterPresence
	EffectEmit
	EffectOpenChat
	EffectSubscribe
	EffectUnsubscribe
	EffectMarkRead
	EffectSend
	EffectTyping
)

type Effect struct {
	Kind          EffectKind
	ChatID        string
	Event         models.Event // EffectEmit
	Content       string       // EffectSend, already validated
	CorrelationID string       // EffectSend
	Typing        bool         // EffectTyping: true for start
}

func emit(ev models.Event) Effect { return Effect{Kind: EffectEmit, Event: ev} }

func emitErr(chatID, correlationID string, err error) Effect {
	return emit(models.ErrorEvent(chatID, correlationID, err))
}

// Transition is the connection state machine. It is pure: it returns the next
// session and the effects to run, in order.
func Transition(s Session, in Input) (Session, []Effect) {
	next := s.clone()

	if s.Phase == PhaseDisconnected {
		return next, nil
	}

	switch in.Kind {
	case InputRejected:
		if s.Phase != PhaseConnecting {
			return next, nil
		}
		next.Phase = PhaseDisconnected
		return next, nil

	case InputAuthenticated:
		if s.Phase != PhaseConnecting {
			return next, nil
		}
		next.Phase = PhaseIdle
		return next, []Effect{
			{Kind: EffectAttach},
			{Kind: EffectRegisterPresence},
			emit(models.Event{Type: models.EventConnected, UserID: s.Identity.ID, IsProvider: s.Identity.IsProvider}),
		}

	case InputClosed:
		next.Phase = PhaseDisconnected
		next.ActiveChat = ""
		next.Subscribed = map[string]struct{}{}
		if s.Phase == PhaseConnecting {
			return next, nil
		}
		return next, []Effect{{Kind: EffectDetach}, {Kind: EffectUnregisterPresence}}
	}

	if s.Phase == PhaseConnecting {
		return next, []Effect{emitErr("", in.Event.CorrelationID, models.ErrInvalidCredential)}
	}

	switch in.Kind {
	case InputMalformed:
		return next, []Effect{emit(models.Event{Type: models.EventError, Reason: models.ReasonBadRequest, Error: "malformed event"})}

	case InputRateLimited:
		return next, []Effect{emit(models.Event{
			Type:          models.EventError,
			ChatID:        in.Event.ChatID,
			CorrelationID: in.Event.CorrelationID,
			Reason:        models.ReasonRateLimited,
			Error:         "too many events",
		})}

	case InputJoinGranted:
		next.Subscribed[in.ChatID] = struct{}{}
		next.ActiveChat = in.ChatID
		next.Phase = PhaseInRoom
		return next, []Effect{
			{Kind: EffectSubscribe, ChatID: in.ChatID},
			{Kind: EffectMarkRead, ChatID: in.ChatID},
			emit(models.Event{Type: models.EventJoined, ChatID: in.ChatID, UserID: s.Identity.ID}),
		}

	case InputJoinDenied:
		return next, []Effect{emitErr(in.ChatID, "", in.Err)}

	case InputEvent:
		return onEvent(next, in.Event)
	}

	return next, nil
}

func onEvent(s Session, ev models.InboundEvent) (Session, []Effect) {
	chatID := ev.ChatID
	if chatID == "" {
		chatID = s.ActiveChat
	}
	if chatID == "" && ev.Type != models.EventLeave && isKnown(ev.Type) {
		return s, []Effect{emitErr("", ev.CorrelationID, fmt.Errorf("%w: chat_id is required", models.ErrValidation))}
	}

	switch ev.Type {
	case models.EventJoin:
		return s, []Effect{{Kind: EffectOpenChat, ChatID: chatID}}

	case models.EventLeave:
		if chatID == "" {
			return s, nil
		}
		delete(s.Subscribed, chatID)
		if s.ActiveChat == chatID {
			s.ActiveChat = ""
		}
		if s.ActiveChat == "" {
			s.Phase = PhaseIdle
		}
		return s, []Effect{
			{Kind: EffectUnsubscribe, ChatID: chatID},
			emit(models.Event{Type: models.EventLeft, ChatID: chatID, UserID: s.Identity.ID}),
		}

	case models.EventSend:
		content, err := chat.ValidateContent(ev.Content)
		if err != nil {
			return s, []Effect{emitErr(chatID, ev.CorrelationID, err)}
		}
		return s, []Effect{{Kind: EffectSend, ChatID: chatID, Content: content, CorrelationID: ev.CorrelationID}}

	case models.EventTypingStart, models.EventTypingStop:
		return s, []Effect{{Kind: EffectTyping, ChatID: chatID, Typing: ev.Type == models.EventTypingStart}}

	case models.EventMarkRead:
		return s, []Effect{{Kind: EffectMarkRead, ChatID: chatID}}
	}

	return s, []Effect{emit(models.Event{
		Type:          models.EventError,
		CorrelationID: ev.CorrelationID,
		Reason:        models.ReasonBadRequest,
		Error:         fmt.Sprintf("unknown event type %q", ev.Type),
	})}
}

func isKnown(t models.EventType) bool {
	switch t {
	case models.EventJoin, models.EventLeave, models.EventSend,
		models.EventTypingStart, models.EventTypingStop, models.EventMarkRead:
		return true
	}
	return false
}
