package core

// rankLadder maps XP thresholds to rank titles. Purely decorative: ranks
// never gate any operation.
var rankLadder = []struct {
	minXP int
	name  string
}{
	{0, "Iniciante"},
	{100, "Aprendiz"},
	{300, "Explorador"},
	{600, "Veterano"},
	{1000, "Mestre"},
	{2000, "Lenda"},
}

// RankForXP returns the rank title and level for an XP total.
// Level grows by one every 100 XP, starting at 1.
func RankForXP(xp int) (string, int) {
	if xp < 0 {
		xp = 0
	}
	name := rankLadder[0].name
	for _, r := range rankLadder {
		if xp >= r.minXP {
			name = r.name
		}
	}
	return name, xp/100 + 1
}
