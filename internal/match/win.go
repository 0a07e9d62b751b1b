package match

// EvaluateWinCondition inspects alive-role counts. Villagers win when no
// werewolf is left; werewolves win when they match or outnumber everyone
// else. decided is false while the game is still open.
func EvaluateWinCondition(m Match) (winner Winner, decided bool) {
	wolves, others := m.aliveSides()
	switch {
	case wolves == 0:
		return WinnerVillagers, true
	case wolves >= others:
		return WinnerWerewolves, true
	}
	return "", false
}
