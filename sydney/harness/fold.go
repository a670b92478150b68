package harness

import (
	"github.com/ZanzyTHEbar/sydney-stream/sydney/chathub"
	"github.com/ZanzyTHEbar/sydney-stream/sydney/transcript"
)

// turnFolder records the events of one attempt into the transcript.
type turnFolder struct {
	tr     *transcript.Transcript
	policy *Policy
	open   bool // an assistant message block is receiving text
}

func newTurnFolder(tr *transcript.Transcript, policy *Policy) *turnFolder {
	return &turnFolder{tr: tr, policy: policy}
}

func (f *turnFolder) apply(ev chathub.Event) {
	switch e := ev.(type) {
	case chathub.SearchQuery:
		f.record(transcript.KindSearchQuery, e.Query)
	case chathub.SearchResult:
		if f.policy.RecordSearchResults {
			f.record(transcript.KindSearchResults, e.Text())
		}
	case chathub.Loader:
		if f.policy.RecordLoading {
			f.record(transcript.KindLoading, e.Status)
		}
	case chathub.GenerativeImage:
		f.record(transcript.KindGenerativeImg, e.Prompt)
	case chathub.TextDelta:
		f.text(e)
	}
}

func (f *turnFolder) record(kind, text string) {
	f.tr.Append(transcript.RoleAssistant, kind, text)
	f.open = false
}

func (f *turnFolder) text(d chathub.TextDelta) {
	if !f.open {
		f.tr.OpenBlock(transcript.RoleAssistant, transcript.KindMessage)
		f.open = true
	} else if d.NewBlock {
		if last, ok := f.tr.Last(); ok && last.Text != "" {
			f.tr.OpenBlock(transcript.RoleAssistant, transcript.KindMessage)
		}
	}
	f.tr.AppendText(d.Text)
}
