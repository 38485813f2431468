package content

import "github.com/mstrand/partyhub/internal/game/quiz"

// Built-in seed content so a fresh deployment can host lobbies before any
// external source is wired up.

func seedWords() []string {
	return []string{
		"giraff", "lampa", "cykel", "hackspett", "brandbil",
		"paraply", "tandborste", "snögubbe", "fallskärm", "kylskåp",
		"trollkarl", "vattenmelon", "fyrverkeri", "dammsugare", "kompass",
	}
}

func seedQuestions() []quiz.Question {
	return []quiz.Question{
		{Text: "Vad heter Sveriges huvudstad?", Answer: "Stockholm"},
		{Text: "Vilket år slutade andra världskriget?", Answer: "1945"},
		{Text: "Hur många ben har en spindel?", Answer: "åtta"},
		{Text: "Vilket grundämne har den kemiska beteckningen O?", Answer: "syre"},
		{Text: "Vad heter världens längsta flod?", Answer: "Nilen", Extra: "Mätningarna är omtvistade mot Amazonas."},
		{Text: "Vilken planet är närmast solen?", Answer: "Merkurius"},
	}
}
