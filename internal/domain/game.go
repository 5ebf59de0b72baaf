package domain

import (
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// GameState is the engine phase. Pregame moves to Bid once, and Bid and Play
// alternate forever; there is no terminal state.
type GameState string

const (
	Pregame GameState = "pregame"
	Bid     GameState = "bid"
	Play    GameState = "play"
)

// Role distinguishes the room creator from everyone else.
type Role string

const (
	RoleLeader Role = "leader"
	RolePlayer Role = "player"
)

// Player persists for the lifetime of its room; reconnects rebind Addr but
// keep secret and score.
type Player struct {
	ID     string `json:"id"`
	Hand   []Card `json:"hand"`
	Role   Role   `json:"role"`
	Secret string `json:"-"`
	Score  int    `json:"score"`
	Addr   string `json:"-"`
}

// BidEntry records one placed bid, in placement order.
type BidEntry struct {
	Player string `json:"player"`
	Bid    int    `json:"bid"`
}

// SecretSource mints and checks the opaque reconnection tokens handed to
// players on first join.
type SecretSource interface {
	Mint(username, lobby string) (string, error)
	Verify(secret, username, lobby string) bool
}

// Game is one room's full authoritative state. It is owned and mutated
// exclusively by the room's authority goroutine; everyone else sees clones
// from Snapshot.
type Game struct {
	LobbyCode       string             `json:"lobby_code"`
	State           GameState          `json:"state"`
	Players         map[string]*Player `json:"players"`
	Deck            []Card             `json:"-"`
	CurrRound       int                `json:"curr_round"`
	Trump           Suit               `json:"trump"`
	PlayerOrder     []string           `json:"player_order"`
	CurrDealer      string             `json:"curr_dealer"`
	CurrPlayerTurn  string             `json:"curr_player_turn"`
	Bids            map[string]int     `json:"bids"`
	BidOrder        []BidEntry         `json:"bid_order"`
	Wins            map[string]int     `json:"wins"`
	CurrPlayedCards []Card             `json:"curr_played_cards"`
	CurrWinningCard *Card              `json:"curr_winning_card,omitempty"`
	EventLog        []GameMessage      `json:"event_log"`
	SystemStatus    []string           `json:"system_status"`
	MaxPlayers      int                `json:"max_players"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`

	// Deterministic disables shuffling and seats players in sorted order;
	// test hook only.
	Deterministic bool `json:"-"`

	rng     *rand.Rand
	secrets SecretSource
}

// NewGame creates a room in Pregame with no players.
func NewGame(lobbyCode string, maxPlayers int, rng *rand.Rand, secrets SecretSource) *Game {
	now := time.Now()
	return &Game{
		LobbyCode:  lobbyCode,
		State:      Pregame,
		Players:    make(map[string]*Player),
		Trump:      Heart,
		Bids:       make(map[string]int),
		Wins:       make(map[string]int),
		MaxPlayers: maxPlayers,
		CreatedAt:  now,
		UpdatedAt:  now,
		rng:        rng,
		secrets:    secrets,
	}
}

// ProcessEvents is the single mutating entry point. Events are applied in
// order; every batch ends with a broadcast of the post-batch snapshot.
func (g *Game) ProcessEvents(batch []Event) []Result {
	var results []Result
	for _, ev := range batch {
		switch {
		case ev.Join != nil:
			results = append(results, g.handleJoin(*ev.Join, ev.Addr)...)
		case ev.Msg != nil:
			results = append(results, g.handleMessage(*ev.Msg)...)
		}
	}
	g.UpdatedAt = time.Now()
	return append(results, Broadcast(g.Snapshot()))
}

// handleJoin implements the join/reconnect negotiation. Unknown usernames
// join fresh (Pregame only); a taken username needs a matching secret to
// rebind, anything else is rejected without closing the connection.
func (g *Game) handleJoin(c Connect, addr string) []Result {
	if p, ok := g.Players[c.Username]; ok {
		if c.Secret != "" && c.Secret == p.Secret && g.secrets.Verify(c.Secret, c.Username, g.LobbyCode) {
			p.Addr = addr
			g.notice(fmt.Sprintf("%s reconnected", c.Username))
			return []Result{
				Unicast(addr, SecretGrant{ClientSecret: p.Secret}),
				Broadcast(Notice{Message: fmt.Sprintf("%s reconnected", c.Username), From: "system"}),
			}
		}
		msg := fmt.Sprintf("username %s is already taken in lobby %s, choose another", c.Username, g.LobbyCode)
		g.notice(msg)
		return []Result{Unicast(addr, Notice{Message: msg, From: "system"})}
	}

	if g.State != Pregame {
		msg := fmt.Sprintf("game in lobby %s has already started", g.LobbyCode)
		g.notice(msg)
		return []Result{Unicast(addr, Notice{Message: msg, From: "system"})}
	}
	if len(g.Players) >= g.MaxPlayers {
		msg := fmt.Sprintf("lobby %s is full", g.LobbyCode)
		g.notice(msg)
		return []Result{Unicast(addr, Notice{Message: msg, From: "system"})}
	}

	secret, err := g.secrets.Mint(c.Username, g.LobbyCode)
	if err != nil {
		msg := fmt.Sprintf("could not admit %s: %v", c.Username, err)
		g.notice(msg)
		return []Result{Unicast(addr, Notice{Message: msg, From: "system"})}
	}

	role := RolePlayer
	if len(g.Players) == 0 {
		role = RoleLeader
	}
	g.Players[c.Username] = &Player{
		ID:     c.Username,
		Role:   role,
		Secret: secret,
		Addr:   addr,
	}
	g.notice(fmt.Sprintf("%s joined", c.Username))
	return []Result{
		Unicast(addr, SecretGrant{ClientSecret: secret}),
		Broadcast(Notice{Message: fmt.Sprintf("%s joined", c.Username), From: "system"}),
	}
}

func (g *Game) handleMessage(msg GameMessage) []Result {
	// A state request never mutates anything beyond its own log entry; the
	// sender picks up the post-batch snapshot like everyone else.
	if msg.Message.Action.Kind == ActionCurrentState {
		g.EventLog = append(g.EventLog, msg)
		return nil
	}

	// Play-phase turn enforcement happens here for every action; the bid
	// phase checks turns inside processBid instead.
	if g.State == Play && msg.Username != g.CurrPlayerTurn {
		return g.reject(fmt.Sprintf("%s acted out of turn, it is %s's turn", msg.Username, g.CurrPlayerTurn))
	}

	switch g.State {
	case Pregame:
		if msg.Message.Action.Kind == ActionStartGame {
			return g.startGame(msg)
		}
	case Bid:
		if msg.Message.Action.Kind == ActionBid {
			return g.processBid(msg)
		}
	case Play:
		if msg.Message.Action.Kind == ActionPlayCard {
			return g.processPlay(msg)
		}
	}
	// Actions not valid for the current state are ignored.
	return nil
}

// startGame seats the players, picks dealer and first bidder, and deals
// round 1. The dealer never acts first; the seat after it does.
func (g *Game) startGame(msg GameMessage) []Result {
	if len(g.Players) < 2 {
		return g.reject("cannot start game with fewer than 2 players")
	}

	order := make([]string, 0, len(g.Players))
	for id := range g.Players {
		order = append(order, id)
	}
	sort.Strings(order)
	if !g.Deterministic {
		g.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	g.PlayerOrder = order
	g.CurrDealer = order[0]
	g.CurrPlayerTurn = order[1]

	for _, p := range g.Players {
		p.Score = 0
		g.Wins[p.ID] = 0
	}
	g.CurrRound = 1
	g.Trump = Heart
	g.freshDeck()
	g.deal()
	g.State = Bid
	g.EventLog = append(g.EventLog, msg)
	return nil
}

func (g *Game) processBid(msg GameMessage) []Result {
	if msg.Username != g.CurrPlayerTurn {
		return g.reject(fmt.Sprintf("%s bid out of turn, it is %s's turn", msg.Username, g.CurrPlayerTurn))
	}

	bid, err := ValidateBid(msg.Message.Action.Bid, g.CurrRound, g.Bids, msg.Username == g.CurrDealer)
	if err != nil {
		return g.reject(fmt.Sprintf("bid of %d rejected: %v", msg.Message.Action.Bid, err))
	}

	g.Bids[msg.Username] = bid
	g.BidOrder = append(g.BidOrder, BidEntry{Player: msg.Username, Bid: bid})
	next, err := NextInOrder(g.CurrPlayerTurn, g.PlayerOrder)
	if err != nil {
		return g.internalError(fmt.Errorf("advance turn after bid: %w", err))
	}
	g.CurrPlayerTurn = next
	g.EventLog = append(g.EventLog, msg)

	if len(g.Bids) == len(g.Players) {
		// The first strictly-highest bid leads; scanning left to right with
		// > keeps earlier bidders ahead on ties.
		leader := g.BidOrder[0]
		for _, entry := range g.BidOrder[1:] {
			if entry.Bid > leader.Bid {
				leader = entry
			}
		}
		g.CurrPlayerTurn = leader.Player
		g.State = Play
	}
	return nil
}

func (g *Game) processPlay(msg GameMessage) []Result {
	player := g.Players[msg.Username]
	if player == nil {
		return g.reject(fmt.Sprintf("%s is not in this game", msg.Username))
	}

	idx := -1
	for i, c := range player.Hand {
		if c.ID == msg.Message.Action.Card.ID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return g.reject(fmt.Sprintf("%s does not hold card %s", msg.Username, msg.Message.Action.Card))
	}
	card := player.Hand[idx]

	if err := ValidatePlay(g.CurrPlayedCards, player.Hand, card, g.Trump); err != nil {
		return g.reject(fmt.Sprintf("%s cannot be played: %v", card, err))
	}

	player.Hand = append(player.Hand[:idx], player.Hand[idx+1:]...)
	g.CurrPlayedCards = append(g.CurrPlayedCards, card)
	winning := FindWinningCard(g.CurrPlayedCards, g.Trump)
	g.CurrWinningCard = &winning
	next, err := NextInOrder(g.CurrPlayerTurn, g.PlayerOrder)
	if err != nil {
		return g.internalError(fmt.Errorf("advance turn after play: %w", err))
	}
	g.CurrPlayerTurn = next
	g.EventLog = append(g.EventLog, msg)

	if len(g.CurrPlayedCards) == len(g.Players) {
		if res := g.endTrick(); res != nil {
			return res
		}
	}
	return nil
}

// endTrick awards the trick and, when every trick of the round has been won,
// rolls the round over.
func (g *Game) endTrick() []Result {
	winner := g.CurrWinningCard.PlayedBy
	g.Wins[winner]++
	g.CurrPlayedCards = nil
	g.CurrWinningCard = nil
	g.CurrPlayerTurn = winner
	g.notice(fmt.Sprintf("%s takes the trick", winner))

	total := 0
	for _, w := range g.Wins {
		total += w
	}
	if total == g.CurrRound {
		return g.endRound()
	}
	return nil
}

// endRound scores the finished round and sets up the next one. The turn
// pointer advances from its previous value, the trick winner, rather than
// being derived from the new dealer; dealer and turn drift independently
// around the seating order.
func (g *Game) endRound() []Result {
	for id, p := range g.Players {
		if g.Wins[id] == g.Bids[id] {
			p.Score += g.Bids[id] + 10
			g.notice(fmt.Sprintf("%s made their bid of %d", id, g.Bids[id]))
		}
		g.Wins[id] = 0
	}
	g.Bids = make(map[string]int)
	g.BidOrder = nil

	g.freshDeck()
	g.Trump = NextTrump(g.Trump)

	dealer, err := NextInOrder(g.CurrDealer, g.PlayerOrder)
	if err != nil {
		return g.internalError(fmt.Errorf("advance dealer: %w", err))
	}
	g.CurrDealer = dealer
	turn, err := NextInOrder(g.CurrPlayerTurn, g.PlayerOrder)
	if err != nil {
		return g.internalError(fmt.Errorf("advance turn at round end: %w", err))
	}
	g.CurrPlayerTurn = turn

	g.CurrRound++
	g.deal()
	g.State = Bid
	g.notice(fmt.Sprintf("round %d begins, trump is %s", g.CurrRound, g.Trump))
	return nil
}

func (g *Game) freshDeck() {
	g.Deck = NewDeck()
	if !g.Deterministic {
		Shuffle(g.rng, g.Deck)
	}
}

// deal hands out currRound cards per player, one card per player per pass,
// popping from the deck tail and stamping provenance.
func (g *Game) deal() {
	for i := 1; i <= g.CurrRound; i++ {
		for _, id := range g.PlayerOrder {
			card := g.Deck[len(g.Deck)-1]
			g.Deck = g.Deck[:len(g.Deck)-1]
			card.PlayedBy = id
			g.Players[id].Hand = append(g.Players[id].Hand, card)
		}
	}
}

// reject records a rule-validation failure. Nothing about the game changes
// and the turn does not advance; the notice is broadcast so everyone sees
// what was refused.
func (g *Game) reject(msg string) []Result {
	g.notice(msg)
	return []Result{Broadcast(Notice{Message: msg, From: "system"})}
}

// internalError surfaces an invariant violation without killing the room.
func (g *Game) internalError(err error) []Result {
	msg := fmt.Sprintf("internal error: %v", err)
	g.notice(msg)
	return []Result{Broadcast(Notice{Message: msg, From: "system"})}
}

func (g *Game) notice(msg string) {
	g.SystemStatus = append(g.SystemStatus, msg)
}

// Snapshot returns an independent deep copy safe to hand to other
// goroutines. The undealt deck and per-player secrets carry json:"-" tags,
// so serialized snapshots never leak them.
func (g *Game) Snapshot() *Game {
	clone := *g
	clone.rng = nil
	clone.secrets = nil

	clone.Players = make(map[string]*Player, len(g.Players))
	for id, p := range g.Players {
		cp := *p
		cp.Hand = append([]Card(nil), p.Hand...)
		clone.Players[id] = &cp
	}
	clone.Deck = append([]Card(nil), g.Deck...)
	clone.PlayerOrder = append([]string(nil), g.PlayerOrder...)
	clone.Bids = make(map[string]int, len(g.Bids))
	for k, v := range g.Bids {
		clone.Bids[k] = v
	}
	clone.BidOrder = append([]BidEntry(nil), g.BidOrder...)
	clone.Wins = make(map[string]int, len(g.Wins))
	for k, v := range g.Wins {
		clone.Wins[k] = v
	}
	clone.CurrPlayedCards = append([]Card(nil), g.CurrPlayedCards...)
	if g.CurrWinningCard != nil {
		c := *g.CurrWinningCard
		clone.CurrWinningCard = &c
	}
	clone.EventLog = append([]GameMessage(nil), g.EventLog...)
	clone.SystemStatus = append([]string(nil), g.SystemStatus...)
	return &clone
}
