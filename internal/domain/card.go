package domain

import (
	"fmt"
	"math/rand"
)

// Suit is a card suit. NoTrump is a legal trump value meaning "no suit is
// trump this round"; it is never the suit of an actual card.
type Suit string

const (
	Heart   Suit = "heart"
	Diamond Suit = "diamond"
	Club    Suit = "club"
	Spade   Suit = "spade"
	NoTrump Suit = "notrump"
)

// NextTrump advances the trump suit through the fixed round cycle.
func NextTrump(s Suit) Suit {
	switch s {
	case Heart:
		return Diamond
	case Diamond:
		return Club
	case Club:
		return Spade
	case Spade:
		return NoTrump
	default:
		return Heart
	}
}

// Card is immutable once dealt except for PlayedBy, which is stamped at deal
// time and records which hand the card was dealt into.
type Card struct {
	ID       int    `json:"id"`
	Suit     Suit   `json:"suit"`
	Value    int    `json:"value"` // 2..14, 14 = Ace
	PlayedBy string `json:"played_by,omitempty"`
}

func (c Card) String() string {
	return fmt.Sprintf("[%d %s]", c.Value, c.Suit)
}

// NewDeck builds the 52-card deck. Ids follow a fixed layout: for each value
// v in 2..14, Heart gets id v-2, then Diamond, Club and Spade offset by 13,
// 26 and 39.
func NewDeck() []Card {
	cards := make([]Card, 0, 52)
	id := 0
	for value := 2; value <= 14; value++ {
		cards = append(cards,
			Card{ID: id, Suit: Heart, Value: value},
			Card{ID: id + 13, Suit: Diamond, Value: value},
			Card{ID: id + 26, Suit: Club, Value: value},
			Card{ID: id + 39, Suit: Spade, Value: value},
		)
		id++
	}
	return cards
}

// Shuffle permutes the deck in place.
func Shuffle(rng *rand.Rand, deck []Card) {
	rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
}
