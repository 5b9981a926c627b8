package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/fortuna/hoopelo/internal/elo"
)

func main() {
	var (
		team1  = flag.String("team1", "", `Team 1 roster, e.g. "Alice:1600,Bob:1650"`)
		team2  = flag.String("team2", "", "Team 2 roster")
		winner = flag.Int("winner", 0, "Winning team (1 or 2); 0 prints both branches only")
		k      = flag.Float64("k", elo.DefaultKFactor, "K-factor")
		asJSON = flag.Bool("json", false, "Print JSON instead of a table")
	)
	flag.Parse()

	t1, err := parseRoster("team1", *team1)
	if err != nil {
		log.Fatalf("%v", err)
	}
	t2, err := parseRoster("team2", *team2)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if *winner < 0 || *winner > 2 {
		log.Fatalf("--winner must be 1 or 2")
	}

	opts := elo.Options{KFactor: elo.Float64(*k)}

	sim, err := elo.SimulateGameOutcomes(t1, t2, opts)
	if err != nil {
		log.Fatalf("simulate: %v", err)
	}
	analysis, err := elo.AnalyzeRatingGap(sim.Team1Wins.Team1AverageRating, sim.Team1Wins.Team2AverageRating, *k)
	if err != nil {
		log.Fatalf("analyze: %v", err)
	}

	if *asJSON {
		out := map[string]interface{}{"analysis": analysis, "simulation": sim}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			log.Fatalf("encode: %v", err)
		}
		return
	}

	printAnalysis(analysis, sim.Team1Wins)
	switch *winner {
	case 1:
		printResult("Team 1 wins", sim.Team1Wins)
	case 2:
		printResult("Team 2 wins", sim.Team2Wins)
	default:
		printResult("If team 1 wins", sim.Team1Wins)
		printResult("If team 2 wins", sim.Team2Wins)
	}
}

// parseRoster reads "Name:rating" pairs. A missing rating means a new player.
func parseRoster(label, raw string) ([]elo.Player, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("--%s is required", label)
	}

	var players []elo.Player
	for i, entry := range strings.Split(raw, ",") {
		name, ratingStr, hasRating := strings.Cut(strings.TrimSpace(entry), ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("--%s entry %d has no name", label, i+1)
		}

		rating := elo.InitialRatingValue()
		if hasRating {
			v, err := strconv.ParseFloat(strings.TrimSpace(ratingStr), 64)
			if err != nil {
				return nil, fmt.Errorf("--%s entry %q: invalid rating: %w", label, entry, err)
			}
			rating = v
		}

		players = append(players, elo.Player{
			ID:     fmt.Sprintf("%s-%d", label, i+1),
			Name:   name,
			Rating: rating,
		})
	}
	return players, nil
}

func printAnalysis(a *elo.GapAnalysis, r *elo.TeamUpdateResult) {
	favored := "even matchup"
	switch a.FavoredTeam {
	case elo.Team1:
		favored = "team 1 favored"
	case elo.Team2:
		favored = "team 2 favored"
	}

	fmt.Printf("Team 1 avg %.2f vs team 2 avg %.2f (gap %.2f, %s)\n",
		r.Team1AverageRating, r.Team2AverageRating, a.RatingGap, favored)
	fmt.Printf("Expected score: team 1 %.3f, team 2 %.3f\n", a.ExpectedScoreTeam1, a.ExpectedScoreTeam2)
	fmt.Printf("Team 1 stands to gain %+.2f or lose %+.2f\n", a.Team1MaxGain, a.Team1MaxLoss)
	fmt.Printf("Team 2 stands to gain %+.2f or lose %+.2f\n", a.Team2MaxGain, a.Team2MaxLoss)
}

func printResult(title string, r *elo.TeamUpdateResult) {
	fmt.Printf("\n%s\n", title)
	for _, changes := range [][]elo.RatingChange{r.Team1Changes, r.Team2Changes} {
		for _, c := range changes {
			fmt.Printf("  %-20s %8.2f -> %8.2f (%+.2f)\n", c.PlayerName, c.OldRating, c.NewRating, c.RatingChange)
		}
	}
}
