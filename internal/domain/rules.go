package domain

import "errors"

var (
	// Bid rejections.
	ErrBidTooHigh     = errors.New("bid exceeds round number")
	ErrBidTooLow      = errors.New("bid is negative")
	ErrBidEqualsRound = errors.New("dealer bid would make total bids equal the round number")

	// Play rejections.
	ErrMustFollowSuit  = errors.New("must follow the led suit")
	ErrCannotLeadTrump = errors.New("cannot lead trump unless the whole hand is trump")

	// Internal invariant violations.
	ErrNotInOrder = errors.New("player not found in seating order")
)

// NextInOrder returns the circular successor of curr in order. It fails when
// curr is not seated at all, which indicates corrupted room state rather than
// a bad client action.
func NextInOrder(curr string, order []string) (string, error) {
	for i, id := range order {
		if id == curr {
			return order[(i+1)%len(order)], nil
		}
	}
	return "", ErrNotInOrder
}

// ValidateBid applies the bid bounds and the dealer "hook" rule: the dealer
// may never bid a number that makes the bid total equal the round's trick
// count, so at least one player must miss their bid every round.
func ValidateBid(bid, currRound int, bidsSoFar map[string]int, isDealer bool) (int, error) {
	if bid > currRound {
		return 0, ErrBidTooHigh
	}
	if bid < 0 {
		return 0, ErrBidTooLow
	}
	if isDealer {
		sum := 0
		for _, b := range bidsSoFar {
			sum += b
		}
		if bid+sum == currRound {
			return 0, ErrBidEqualsRound
		}
	}
	return bid, nil
}

// ValidatePlay decides whether card is a legal play given the cards already
// on the table and the player's hand.
//
// Leading: a trump card may only lead when every card in hand is trump.
// Following: an off-suit card is legal only when the hand holds no card of
// the led suit. Holding trump does not force a trump discard when void.
func ValidatePlay(playedCards []Card, hand []Card, card Card, trump Suit) error {
	if len(playedCards) == 0 {
		if card.Suit == trump {
			for _, c := range hand {
				if c.Suit != trump {
					return ErrCannotLeadTrump
				}
			}
		}
		return nil
	}

	ledSuit := playedCards[0].Suit
	if card.Suit != ledSuit {
		for _, c := range hand {
			if c.Suit == ledSuit {
				return ErrMustFollowSuit
			}
		}
	}
	return nil
}

// FindWinningCard scans the trick left to right. Trump beats all non-trump;
// within a suit higher value wins; the first card sets the default winning
// suit. Replacement is strictly-greater, so earlier cards win ties.
func FindWinningCard(playedCards []Card, trump Suit) Card {
	winning := playedCards[0]
	for _, card := range playedCards[1:] {
		switch {
		case card.Suit == winning.Suit && card.Value > winning.Value:
			winning = card
		case card.Suit == trump && winning.Suit != trump:
			winning = card
		}
	}
	return winning
}
