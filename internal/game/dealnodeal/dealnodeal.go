// Package dealnodeal implements the chat-driven deal-or-no-deal game.
//
// Viewers vote through chat; the streamer (admin) starts the game and
// concludes each voting phase. Case indices are zero-based internally and on
// the wire; chat votes use the one-based case numbers shown on screen.
package dealnodeal

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/mstrand/partyhub/internal/game"
)

// TotalCases is the number of briefcases on the board.
const TotalCases = 26

// MoneyValues is the fixed board of amounts distributed among the cases.
var MoneyValues = [TotalCases]int64{
	1, 3, 5, 10, 25, 50, 75, 100, 200, 300, 400, 500, 750,
	1000, 5000, 10000, 25000, 50000, 75000, 100000,
	200000, 300000, 400000, 500000, 750000, 1000000,
}

// RoundSchedule gives the number of cases opened per round. It opens 24 of
// the 25 non-player cases, so play always ends at the switch-or-keep choice.
var RoundSchedule = []int{6, 5, 4, 3, 2, 1, 1, 1, 1}

// Phase names as they appear in snapshots and events.
const (
	PhaseSetup        = "Setup"
	PhasePlayerPick   = "PlayerCaseSelectionVoting"
	PhaseCaseOpen     = "RoundCaseOpeningVoting"
	PhaseDeal         = "DealOrNoDealVoting"
	PhaseSwitchOrKeep = "SwitchOrKeepVoting"
	PhaseGameOver     = "GameOver"
)

// Admin command names.
const (
	CmdStartGame      = "StartGame"
	CmdConcludeVoting = "ConcludeVoting"
)

// Event type names.
const (
	EventVoteRegistered = "PlayerVoteRegistered"
	EventCaseOpened     = "CaseOpened"
	EventOfferPresented = "BankerOfferPresented"
)

// VoteRegisteredData is the payload of a PlayerVoteRegistered event.
type VoteRegisteredData struct {
	Voter string `json:"voter_username"`
	Vote  string `json:"vote_value"`
}

// CaseOpenedData is the payload of a CaseOpened event.
type CaseOpenedData struct {
	CaseIndex    int   `json:"case_index"`
	Value        int64 `json:"value"`
	PlayerReveal bool  `json:"is_player_case_reveal_at_end"`
}

// OfferPresentedData is the payload of a BankerOfferPresented event.
type OfferPresentedData struct {
	Offer int64 `json:"offer_amount"`
}

// OpenedCase pairs a revealed case with its amount.
type OpenedCase struct {
	CaseIndex int   `json:"case_index"`
	Value     int64 `json:"value"`
}

// State is the full client-visible snapshot.
type State struct {
	Phase                string         `json:"phase"`
	RoundDisplayNumber   int            `json:"current_round_display_number"`
	CasesToOpenThisRound int            `json:"cases_to_open_this_round_target"`
	CasesOpenedThisRound int            `json:"cases_opened_in_current_round_segment"`
	PlayerCaseIndex      *int           `json:"player_case_index"`
	OpenedCases          []OpenedCase   `json:"opened_cases"`
	RemainingMoneyValues []int64        `json:"remaining_money_values"`
	BankerOffer          *int64         `json:"banker_offer,omitempty"`
	VoteTally            map[string]int `json:"current_vote_tally"`
	Summary              string         `json:"summary,omitempty"`
	Winnings             *int64         `json:"winnings,omitempty"`
	PlayerCaseValue      *int64         `json:"player_case_original_value,omitempty"`
}

// Engine holds the mutable game state. It is not safe for concurrent use;
// the owning lobby serializes all calls.
type Engine struct {
	rng *rand.Rand

	phase           string
	caseValues      [TotalCases]int64
	opened          [TotalCases]bool
	playerCase      int // -1 until picked
	roundIdx        int
	openedThisRound int
	offer           int64
	votes           map[string]string // voter -> normalized vote token

	summary         string
	winnings        int64
	playerCaseValue int64
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithRand injects a deterministic random source.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// New returns an engine in the Setup phase.
func New(opts ...Option) *Engine {
	e := &Engine{
		phase:      PhaseSetup,
		playerCase: -1,
		votes:      map[string]string{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		t := uint64(time.Now().UnixNano())
		e.rng = rand.New(rand.NewPCG(t, t^0x9e3779b97f4a7c15))
	}
	return e
}

// TypeID implements game.Engine.
func (e *Engine) TypeID() string { return game.TypeDealNoDeal }

// ApplyAdmin implements game.Engine.
func (e *Engine) ApplyAdmin(raw json.RawMessage) ([]game.Event, error) {
	cmd, err := game.DecodeAdminCommand(raw)
	if err != nil {
		return nil, err
	}
	switch cmd.Name {
	case CmdStartGame:
		return e.startGame()
	case CmdConcludeVoting:
		return e.concludeVoting()
	default:
		return nil, &game.IllegalTransitionError{Phase: e.phase, Command: cmd.Name, Reason: game.ErrUnknownCommand.Error()}
	}
}

// ApplyChat implements game.Engine. A later vote from the same viewer
// replaces the earlier one; it never accumulates.
func (e *Engine) ApplyChat(username, text string) ([]game.Event, error) {
	var token string
	var ok bool
	switch e.phase {
	case PhasePlayerPick, PhaseCaseOpen:
		token, ok = ParseCaseVote(text)
	case PhaseDeal:
		token, ok = ParseDealVote(text)
	case PhaseSwitchOrKeep:
		token, ok = ParseSwitchKeepVote(text)
	default:
		return nil, game.ErrNotAcceptingVotes
	}
	if !ok {
		return nil, game.ErrIgnored
	}
	e.votes[username] = token
	return []game.Event{{
		Type: EventVoteRegistered,
		Data: VoteRegisteredData{Voter: username, Vote: token},
	}}, nil
}

func (e *Engine) startGame() ([]game.Event, error) {
	if e.phase != PhaseSetup && e.phase != PhaseGameOver {
		return nil, &game.IllegalTransitionError{Phase: e.phase, Command: CmdStartGame}
	}
	vals := MoneyValues
	e.rng.Shuffle(TotalCases, func(i, j int) {
		vals[i], vals[j] = vals[j], vals[i]
	})
	e.caseValues = vals
	e.opened = [TotalCases]bool{}
	e.playerCase = -1
	e.roundIdx = 0
	e.openedThisRound = 0
	e.offer = 0
	e.summary = ""
	e.winnings = 0
	e.playerCaseValue = 0
	e.enterPhase(PhasePlayerPick)
	return nil, nil
}

func (e *Engine) concludeVoting() ([]game.Event, error) {
	switch e.phase {
	case PhasePlayerPick:
		return e.concludePlayerPick()
	case PhaseCaseOpen:
		return e.concludeCaseOpen()
	case PhaseDeal:
		return e.concludeDeal()
	case PhaseSwitchOrKeep:
		return e.concludeSwitchOrKeep()
	default:
		return nil, &game.IllegalTransitionError{Phase: e.phase, Command: CmdConcludeVoting}
	}
}

func (e *Engine) concludePlayerPick() ([]game.Event, error) {
	winner, ok := e.topVotedCase()
	if !ok {
		return nil, &game.IllegalTransitionError{Phase: e.phase, Command: CmdConcludeVoting, Reason: "no valid votes"}
	}
	e.playerCase = winner
	e.roundIdx = 0
	e.openedThisRound = 0
	e.enterPhase(PhaseCaseOpen)
	return nil, nil
}

func (e *Engine) concludeCaseOpen() ([]game.Event, error) {
	target := RoundSchedule[e.roundIdx]
	toOpen := e.pickCasesToOpen(target)

	var events []game.Event
	for _, idx := range toOpen {
		e.opened[idx] = true
		e.openedThisRound++
		events = append(events, game.Event{
			Type: EventCaseOpened,
			Data: CaseOpenedData{CaseIndex: idx, Value: e.caseValues[idx]},
		})
	}

	e.offer = e.bankerOffer()
	events = append(events, game.Event{
		Type: EventOfferPresented,
		Data: OfferPresentedData{Offer: e.offer},
	})
	e.enterPhase(PhaseDeal)
	return events, nil
}

func (e *Engine) concludeDeal() ([]game.Event, error) {
	deal, noDeal := 0, 0
	for _, v := range e.votes {
		if v == VoteDeal {
			deal++
		} else {
			noDeal++
		}
	}
	// Zero votes defaults to no deal; on a tie the deal is taken.
	if deal+noDeal > 0 && deal >= noDeal {
		e.winnings = e.offer
		e.playerCaseValue = e.caseValues[e.playerCase]
		e.summary = "DEAL! The banker's offer was accepted."
		reveal := game.Event{
			Type: EventCaseOpened,
			Data: CaseOpenedData{CaseIndex: e.playerCase, Value: e.playerCaseValue, PlayerReveal: true},
		}
		e.opened[e.playerCase] = true
		e.enterPhase(PhaseGameOver)
		return []game.Event{reveal}, nil
	}

	e.roundIdx++
	e.openedThisRound = 0
	if e.unopenedNonPlayerCount() <= 1 || e.roundIdx >= len(RoundSchedule) {
		e.enterPhase(PhaseSwitchOrKeep)
	} else {
		e.enterPhase(PhaseCaseOpen)
	}
	return nil, nil
}

func (e *Engine) concludeSwitchOrKeep() ([]game.Event, error) {
	switchVotes, keepVotes := 0, 0
	for _, v := range e.votes {
		if v == VoteSwitch {
			switchVotes++
		} else {
			keepVotes++
		}
	}

	other := -1
	for i := 0; i < TotalCases; i++ {
		if !e.opened[i] && i != e.playerCase {
			other = i
			break
		}
	}

	// Keep wins ties and the zero-vote case.
	if switchVotes > keepVotes && other >= 0 {
		e.playerCase, other = other, e.playerCase
	}

	var events []game.Event
	if other >= 0 {
		e.opened[other] = true
		events = append(events, game.Event{
			Type: EventCaseOpened,
			Data: CaseOpenedData{CaseIndex: other, Value: e.caseValues[other]},
		})
	}
	e.winnings = e.caseValues[e.playerCase]
	e.playerCaseValue = e.winnings
	e.summary = "The final case was opened."
	e.opened[e.playerCase] = true
	events = append(events, game.Event{
		Type: EventCaseOpened,
		Data: CaseOpenedData{CaseIndex: e.playerCase, Value: e.playerCaseValue, PlayerReveal: true},
	})
	e.enterPhase(PhaseGameOver)
	return events, nil
}

// enterPhase switches phase and clears the vote map. Every phase starts
// with an empty tally.
func (e *Engine) enterPhase(phase string) {
	e.phase = phase
	e.votes = map[string]string{}
}

// topVotedCase tallies case votes and returns the winning zero-based index.
// Ties resolve to the lowest case index. Votes for opened cases are
// discarded.
func (e *Engine) topVotedCase() (int, bool) {
	counts := map[int]int{}
	for _, v := range e.votes {
		idx, ok := caseTokenToIndex(v)
		if !ok || e.opened[idx] {
			continue
		}
		counts[idx]++
	}
	best, bestCount := -1, 0
	for idx, n := range counts {
		if n > bestCount || (n == bestCount && best >= 0 && idx < best) {
			best, bestCount = idx, n
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// pickCasesToOpen selects the n cases to open this round: voted cases first
// (count descending, index ascending), padded with the lowest-index openable
// cases when the vote does not cover the full round.
func (e *Engine) pickCasesToOpen(n int) []int {
	counts := map[int]int{}
	for _, v := range e.votes {
		idx, ok := caseTokenToIndex(v)
		if !ok || e.opened[idx] || idx == e.playerCase {
			continue
		}
		counts[idx]++
	}

	picked := make([]int, 0, n)
	taken := map[int]bool{}
	for len(picked) < n && len(counts) > 0 {
		best, bestCount := -1, 0
		for idx, c := range counts {
			if c > bestCount || (c == bestCount && best >= 0 && idx < best) {
				best, bestCount = idx, c
			}
		}
		picked = append(picked, best)
		taken[best] = true
		delete(counts, best)
	}
	for i := 0; i < TotalCases && len(picked) < n; i++ {
		if !e.opened[i] && i != e.playerCase && !taken[i] {
			picked = append(picked, i)
		}
	}
	return picked
}

// bankerOffer computes the offer from the mean of all unopened amounts,
// scaled by how deep into the schedule play has progressed.
func (e *Engine) bankerOffer() int64 {
	var sum, count int64
	for i := 0; i < TotalCases; i++ {
		if !e.opened[i] {
			sum += e.caseValues[i]
			count++
		}
	}
	if count == 0 {
		return 1
	}
	avg := float64(sum) / float64(count)
	progression := float64(e.roundIdx+1) / float64(len(RoundSchedule))
	pct := math.Min(0.10+progression*0.75, 0.85)
	offer := int64(math.Round(avg * pct))
	if offer < 1 {
		offer = 1
	}
	return offer
}

func (e *Engine) unopenedNonPlayerCount() int {
	n := 0
	for i := 0; i < TotalCases; i++ {
		if !e.opened[i] && i != e.playerCase {
			n++
		}
	}
	return n
}

// Snapshot implements game.Engine.
func (e *Engine) Snapshot() any {
	st := State{
		Phase:       e.phase,
		OpenedCases: []OpenedCase{},
		VoteTally:   map[string]int{},
	}
	for _, v := range e.votes {
		st.VoteTally[v]++
	}
	for i := 0; i < TotalCases; i++ {
		if e.opened[i] {
			st.OpenedCases = append(st.OpenedCases, OpenedCase{CaseIndex: i, Value: e.caseValues[i]})
		}
	}
	st.RemainingMoneyValues = e.remainingValues()
	if e.playerCase >= 0 {
		pc := e.playerCase
		st.PlayerCaseIndex = &pc
	}
	switch e.phase {
	case PhaseCaseOpen:
		st.RoundDisplayNumber = e.roundIdx + 1
		st.CasesToOpenThisRound = RoundSchedule[e.roundIdx]
		st.CasesOpenedThisRound = e.openedThisRound
	case PhaseDeal:
		st.RoundDisplayNumber = e.roundIdx + 1
		offer := e.offer
		st.BankerOffer = &offer
	case PhaseGameOver:
		st.Summary = e.summary
		w, pcv := e.winnings, e.playerCaseValue
		st.Winnings = &w
		st.PlayerCaseValue = &pcv
	}
	return st
}

// remainingValues returns the amounts still in play, sorted ascending, so
// clients can gray out the money board.
func (e *Engine) remainingValues() []int64 {
	vals := make([]int64, 0, TotalCases)
	for i := 0; i < TotalCases; i++ {
		if !e.opened[i] {
			vals = append(vals, e.caseValues[i])
		}
	}
	slices.Sort(vals)
	return vals
}
