package domain

// Choice is one element of the duel's fixed three-element choice set.
type Choice string

const (
	// ChoiceUnset marks a choice that has not been submitted yet.
	ChoiceUnset Choice = ""
	// ChoiceRock beats scissors and loses to paper.
	ChoiceRock Choice = "rock"
	// ChoicePaper beats rock and loses to scissors.
	ChoicePaper Choice = "paper"
	// ChoiceScissors beats paper and loses to rock.
	ChoiceScissors Choice = "scissors"
)

// beats maps each choice to the choice it defeats. The choice set forms a
// 3-cycle: every choice beats exactly one other and loses to the remaining
// one.
var beats = map[Choice]Choice{
	ChoiceRock:     ChoiceScissors,
	ChoicePaper:    ChoiceRock,
	ChoiceScissors: ChoicePaper,
}

// Valid reports whether the choice is a member of the choice set.
func (c Choice) Valid() bool {
	_, ok := beats[c]
	return ok
}

// Outcome is the result of resolving a pair of choices.
type Outcome int

const (
	// OutcomeDraw means both participants played the same choice.
	OutcomeDraw Outcome = iota
	// OutcomeChallengerWins means the challenger's choice beats the opponent's.
	OutcomeChallengerWins
	// OutcomeOpponentWins means the opponent's choice beats the challenger's.
	OutcomeOpponentWins
)

// Resolve maps a pair of choices to an outcome. It is a pure, total
// function over the nine valid input pairs: equal choices draw, otherwise
// exactly one side's choice beats the other's.
func Resolve(challengerChoice, opponentChoice Choice) Outcome {
	if challengerChoice == opponentChoice {
		return OutcomeDraw
	}
	if beats[challengerChoice] == opponentChoice {
		return OutcomeChallengerWins
	}
	return OutcomeOpponentWins
}
