package loader

import (
	"fmt"
	"strings"

	"aflload/internal/normalize"
	"aflload/internal/schema"
	"aflload/internal/source"
)

// Player is one row of the players table.
type Player struct {
	FirstName string
	LastName  string
	BornDate  string
	DebutDate string
	Height    *int
	Weight    *int
}

var playerColumns = []string{"first_name", "last_name", "born_date", "debut_date", "height", "weight"}

func (p Player) args() []any {
	return []any{p.FirstName, p.LastName, p.BornDate, p.DebutDate, nullInt(p.Height), nullInt(p.Weight)}
}

// Performance is one row of player_performances minus its player id.
type Performance struct {
	Team        string
	Year        *int
	GamesPlayed *int
	Opponent    string
	Round       string
	Result      string
	// Counters follow schema.PerformanceCounters.
	Counters []*int
}

var performanceColumns = append(
	[]string{"player_id", "team", "year", "games_played", "opponent", "round", "result"},
	schema.PerformanceCounters...,
)

// performanceRequired are the header columns a performance file must have.
var performanceRequired = []string{"team", "year", "games_played", "opponent", "round", "result"}

func (p Performance) args(playerID int64) []any {
	out := make([]any, 0, len(performanceColumns))
	out = append(out, playerID, p.Team, nullInt(p.Year), nullInt(p.GamesPlayed), p.Opponent, p.Round, p.Result)
	for _, c := range p.Counters {
		out = append(out, nullInt(c))
	}
	return out
}

// LineupEntry is one row of team_lineups.
type LineupEntry struct {
	Year       *int
	Date       string
	RoundNum   string
	TeamName   string
	PlayerName string
}

var (
	lineupColumns  = []string{"year", "date", "round_num", "team_name", "player_name"}
	lineupConflict = []string{"date", "team_name", "player_name"}
)

func (l LineupEntry) args() []any {
	return []any{nullInt(l.Year), l.Date, l.RoundNum, l.TeamName, l.PlayerName}
}

// Match is one row of matches.
type Match struct {
	Year      int
	RoundNum  string
	Date      string
	Venue     string
	Team1Name string
	Team2Name string
	// Scores follow schema.MatchScores.
	Scores []int
}

var matchColumns = append(
	[]string{"year", "round_num", "date", "venue", "team_1_name", "team_2_name"},
	schema.MatchScores...,
)

var matchRequired = append(
	[]string{"year", "round_num", "date", "venue", "team_1_team_name", "team_2_team_name"},
	schema.MatchScores...,
)

func (m Match) args() []any {
	out := make([]any, 0, len(matchColumns))
	out = append(out, m.Year, m.RoundNum, m.Date, m.Venue, m.Team1Name, m.Team2Name)
	for _, s := range m.Scores {
		out = append(out, s)
	}
	return out
}

// TeamStat is one row of team_stats.
type TeamStat struct {
	Year *int
	Team string
	// Counters follow schema.TeamStatCounters.
	Counters []*int
}

var teamStatColumns = append([]string{"year", "team"}, schema.TeamStatCounters...)

func (s TeamStat) args() []any {
	out := make([]any, 0, len(teamStatColumns))
	out = append(out, nullInt(s.Year), s.Team)
	for _, c := range s.Counters {
		out = append(out, nullInt(c))
	}
	return out
}

// requiredDate parses a D-M-YYYY cell that must be present.
func requiredDate(r source.Row, col string) (string, error) {
	d, err := normalize.Date(r.Value(col))
	if err != nil {
		return "", fmt.Errorf("%s: %w", col, err)
	}
	if d == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingValue, col)
	}
	return *d, nil
}

// requiredText returns a trimmed cell that must be present.
func requiredText(r source.Row, col string) (string, error) {
	v := r.Value(col)
	if normalize.IsMissing(v) {
		return "", fmt.Errorf("%w: %s", ErrMissingValue, col)
	}
	return normalize.Text(v), nil
}

func parsePlayer(r source.Row) (Player, error) {
	born, err := requiredDate(r, "born_date")
	if err != nil {
		return Player{}, err
	}
	debut, err := requiredDate(r, "debut_date")
	if err != nil {
		return Player{}, err
	}
	return Player{
		FirstName: normalize.Text(r.Value("first_name")),
		LastName:  normalize.Text(r.Value("last_name")),
		BornDate:  born,
		DebutDate: debut,
		Height:    normalize.Int(r.Value("height")),
		Weight:    normalize.Int(r.Value("weight")),
	}, nil
}

func parsePerformance(r source.Row) Performance {
	p := Performance{
		Team:        normalize.Text(r.Value("team")),
		Year:        normalize.Int(r.Value("year")),
		GamesPlayed: normalize.Int(r.Value("games_played")),
		Opponent:    normalize.Text(r.Value("opponent")),
		Round:       normalize.Text(r.Value("round")),
		Result:      normalize.Text(r.Value("result")),
		Counters:    make([]*int, len(schema.PerformanceCounters)),
	}
	for i, col := range schema.PerformanceCounters {
		p.Counters[i] = normalize.Int(r.Value(col))
	}
	return p
}

// parseLineup fans a roster row out into one entry per named player. Empty
// names between separators are dropped.
func parseLineup(r source.Row) ([]LineupEntry, error) {
	date, err := requiredText(r, "date")
	if err != nil {
		return nil, err
	}
	team, err := requiredText(r, "team_name")
	if err != nil {
		return nil, err
	}
	roster, err := requiredText(r, "players")
	if err != nil {
		return nil, err
	}

	base := LineupEntry{
		Year:     normalize.Int(r.Value("year")),
		Date:     date,
		RoundNum: normalize.Text(r.Value("round_num")),
		TeamName: team,
	}
	var out []LineupEntry
	for _, name := range strings.Split(roster, ";") {
		name = normalize.Text(name)
		if name == "" || name == normalize.MissingText {
			continue
		}
		e := base
		e.PlayerName = name
		out = append(out, e)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: players", ErrMissingValue)
	}
	return out, nil
}

func parseMatch(r source.Row) (Match, error) {
	year, err := normalize.StrictInt(r.Value("year"))
	if err != nil {
		return Match{}, fmt.Errorf("year: %w", err)
	}
	date, err := requiredText(r, "date")
	if err != nil {
		return Match{}, err
	}
	m := Match{
		Year:      year,
		RoundNum:  normalize.Text(r.Value("round_num")),
		Date:      date,
		Venue:     normalize.Text(r.Value("venue")),
		Team1Name: normalize.Text(r.Value("team_1_team_name")),
		Team2Name: normalize.Text(r.Value("team_2_team_name")),
		Scores:    make([]int, len(schema.MatchScores)),
	}
	for i, col := range schema.MatchScores {
		n, err := normalize.StrictInt(r.Value(col))
		if err != nil {
			return Match{}, fmt.Errorf("%s: %w", col, err)
		}
		m.Scores[i] = n
	}
	return m, nil
}

func parseTeamStat(r source.Row) TeamStat {
	s := TeamStat{
		Year:     normalize.Int(r.Value("year")),
		Team:     normalize.Text(r.Value("team")),
		Counters: make([]*int, len(schema.TeamStatCounters)),
	}
	for i, col := range schema.TeamStatCounters {
		s.Counters[i] = normalize.Int(r.Value(col))
	}
	return s
}
