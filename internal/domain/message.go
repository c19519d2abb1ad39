package domain

// Turn is one question paired with its answer
type Turn struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

// Transcript is the chronological list of turns for one session
type Transcript []Turn

// Clone returns an independent copy of the transcript
func (t Transcript) Clone() Transcript {
	if t == nil {
		return Transcript{}
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}
