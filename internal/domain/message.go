package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionKind names the variants of GameAction.
type ActionKind string

const (
	ActionPlayCard     ActionKind = "playcard"
	ActionBid          ActionKind = "bid"
	ActionStartGame    ActionKind = "startgame"
	ActionDeal         ActionKind = "deal"
	ActionCurrentState ActionKind = "currentstate"
)

// GameAction is a closed tagged union. Variants with a payload serialize as a
// single-key object ({"playcard":{...}}, {"bid":3}); bare variants serialize
// as their name ("startgame").
type GameAction struct {
	Kind ActionKind
	Card Card // valid when Kind == ActionPlayCard
	Bid  int  // valid when Kind == ActionBid
}

func PlayCardAction(c Card) GameAction { return GameAction{Kind: ActionPlayCard, Card: c} }
func BidAction(n int) GameAction       { return GameAction{Kind: ActionBid, Bid: n} }
func StartGameAction() GameAction      { return GameAction{Kind: ActionStartGame} }
func DealAction() GameAction           { return GameAction{Kind: ActionDeal} }
func CurrentStateAction() GameAction   { return GameAction{Kind: ActionCurrentState} }

func (a GameAction) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case ActionPlayCard:
		return json.Marshal(map[string]Card{string(ActionPlayCard): a.Card})
	case ActionBid:
		return json.Marshal(map[string]int{string(ActionBid): a.Bid})
	case ActionStartGame, ActionDeal, ActionCurrentState:
		return json.Marshal(string(a.Kind))
	default:
		return nil, fmt.Errorf("marshal game action: unknown kind %q", a.Kind)
	}
}

func (a *GameAction) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		switch ActionKind(bare) {
		case ActionStartGame, ActionDeal, ActionCurrentState:
			a.Kind = ActionKind(bare)
			return nil
		default:
			return fmt.Errorf("unmarshal game action: unknown variant %q", bare)
		}
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("unmarshal game action: %w", err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("unmarshal game action: expected exactly one variant, got %d", len(tagged))
	}
	for tag, raw := range tagged {
		switch ActionKind(tag) {
		case ActionPlayCard:
			a.Kind = ActionPlayCard
			return json.Unmarshal(raw, &a.Card)
		case ActionBid:
			a.Kind = ActionBid
			return json.Unmarshal(raw, &a.Bid)
		default:
			return fmt.Errorf("unmarshal game action: unknown variant %q", tag)
		}
	}
	return nil
}

// Actioner records who originated an action: the system itself or a named
// player. It serializes as "system" or {"player":"name"}.
type Actioner struct {
	Player string // empty means system
}

func SystemActioner() Actioner            { return Actioner{} }
func PlayerActioner(username string) Actioner { return Actioner{Player: username} }

func (a Actioner) MarshalJSON() ([]byte, error) {
	if a.Player == "" {
		return json.Marshal("system")
	}
	return json.Marshal(map[string]string{"player": a.Player})
}

func (a *Actioner) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		if bare != "system" {
			return fmt.Errorf("unmarshal actioner: unknown variant %q", bare)
		}
		a.Player = ""
		return nil
	}
	var tagged struct {
		Player string `json:"player"`
	}
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("unmarshal actioner: %w", err)
	}
	a.Player = tagged.Player
	return nil
}

// ActionEnvelope pairs an action with its origin.
type ActionEnvelope struct {
	Action GameAction `json:"action"`
	Origin Actioner   `json:"origin"`
}

// GameMessage is the inbound frame clients send after connecting.
type GameMessage struct {
	Username  string         `json:"username"`
	Message   ActionEnvelope `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
}

// Connect is the first frame on every connection. Secret is empty for a
// fresh join and set when reconnecting under a taken username.
type Connect struct {
	Username string `json:"username"`
	Channel  string `json:"channel"`
	Secret   string `json:"secret,omitempty"`
}

// SecretGrant is unicast to a player after a successful first join.
type SecretGrant struct {
	ClientSecret string `json:"client_secret"`
}

// Notice is a human-readable system message about a rejected or notable
// action.
type Notice struct {
	Message string `json:"message"`
	From    string `json:"from"`
}

// Event is one unit of inbound work for a room's authority task. Addr is the
// connection address of the sender, used to target unicast replies. Exactly
// one of Join and Msg is set.
type Event struct {
	Addr string
	Join *Connect
	Msg  *GameMessage
}

// Result is one outbound message from the engine. An empty Recipient means
// broadcast to the whole lobby; otherwise it is a unicast to the connection
// with that address.
type Result struct {
	Recipient string
	Payload   any
}

func Broadcast(payload any) Result           { return Result{Payload: payload} }
func Unicast(addr string, payload any) Result { return Result{Recipient: addr, Payload: payload} }
