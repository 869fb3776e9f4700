package gate

// Texts are the user-facing strings of the gate. Welcome is HTML; the rest
// are plain text. ChallengeFooter takes the TTL as its only %s verb.
type Texts struct {
	ChallengeTitle  string `json:"challenge_title"`
	ChallengeFooter string `json:"challenge_footer"`
	ButtonError     string `json:"button_error"`
	NotYours        string `json:"not_yours"`
	Expired         string `json:"expired"`
	Wrong           string `json:"wrong"`
	Done            string `json:"done"`
	Welcome         string `json:"welcome"`
	Failure         string `json:"failure"`
}

func DefaultTexts() Texts {
	return Texts{
		ChallengeTitle:  "Solve to join:",
		ChallengeFooter: "You have %s!",
		ButtonError:     "Button error.",
		NotYours:        "This captcha is not yours.",
		Expired:         "Time is up. Send a new join request to try again.",
		Wrong:           "❌ Wrong answer.",
		Done:            "✅ Done!",
		Welcome: "🎉 <b>Passed!</b>\n\n" +
			"Your request is being processed. We will review it and add you to the group soon 🚀\n" +
			"Thanks for your patience!",
		Failure: "Something went wrong. Please send a new join request.",
	}
}

func (t Texts) withDefaults() Texts {
	d := DefaultTexts()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&t.ChallengeTitle, d.ChallengeTitle)
	fill(&t.ChallengeFooter, d.ChallengeFooter)
	fill(&t.ButtonError, d.ButtonError)
	fill(&t.NotYours, d.NotYours)
	fill(&t.Expired, d.Expired)
	fill(&t.Wrong, d.Wrong)
	fill(&t.Done, d.Done)
	fill(&t.Welcome, d.Welcome)
	fill(&t.Failure, d.Failure)
	return t
}
