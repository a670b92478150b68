package transcript

import "slices"

// Transcript is an append-only view over a turn sequence. It is not safe
// for concurrent use; a single turn driver owns it while a turn runs.
type Transcript struct {
	turns []Turn
}

// New copies turns into a fresh transcript.
func New(turns []Turn) *Transcript {
	return &Transcript{turns: slices.Clone(turns)}
}

// Append adds a complete block.
func (t *Transcript) Append(role Role, kind, text string) {
	t.turns = append(t.turns, Turn{Role: role, Kind: kind, Text: text})
}

// OpenBlock starts an empty block whose text arrives later through
// AppendText.
func (t *Transcript) OpenBlock(role Role, kind string) {
	t.Append(role, kind, "")
}

// AppendText extends the body of the last block. It is a no-op on an
// empty transcript.
func (t *Transcript) AppendText(text string) {
	if len(t.turns) == 0 {
		return
	}
	t.turns[len(t.turns)-1].Text += text
}

// Last returns the most recent block.
func (t *Transcript) Last() (Turn, bool) {
	if len(t.turns) == 0 {
		return Turn{}, false
	}
	return t.turns[len(t.turns)-1], true
}

func (t *Transcript) Len() int { return len(t.turns) }

// Turns returns a copy of the current blocks.
func (t *Transcript) Turns() []Turn { return slices.Clone(t.turns) }

func (t *Transcript) String() string { return Serialize(t.turns) }
