package heuristic

import (
	"strings"
	"time"

	"inboxagent/internal/model"
)

// Keyword tables per category. Matching is containment over the lowercased
// subject + body, the same scan the email poller used.
var (
	actionRequiredKeywords = []string{
		"action required", "action needed", "please review", "todo",
		"respond", "reply needed", "awaiting your", "your input",
		"follow up", "followup", "sign off", "approval needed",
	}
	urgencyKeywords = []string{
		"urgent", "asap", "deadline", "by end of day", "eod",
		"immediately", "overdue", "final notice", "time sensitive",
	}
	requestKeywords = []string{
		"could you", "can you", "would you", "reminder",
	}
	fyiKeywords = []string{
		"fyi", "for your information", "no action needed", "no reply needed",
		"newsletter", "digest", "weekly update",
	}
	automatedKeywords = []string{
		"unsubscribe", "do not reply", "this is an automated",
		"view in browser",
	}
	automatedSenderPrefixes = []string{
		"noreply@", "no-reply@", "donotreply@", "notifications@",
		"notification@", "deals@", "offers@", "newsletter@", "mailer@",
		"bounce@", "updates@",
	}
	automatedSenderDomains = []string{
		"newsletter.", "mailer.", "marketing.", "email.", "campaign.",
	}
)

// Signals is the bundle the heuristic scorer hands to the confidence
// calculator, with the matched evidence kept for the audit trail.
type Signals struct {
	ActionRequiredHits []string
	UrgencyHits        []string
	RequestHits        []string
	FYIHits            []string
	AutomatedHits      []string
	AutomatedSender    bool
	Deadline           *time.Time
	DeadlinePhrase     string
	SenderFrequency    int
	KnownSender        bool
	IsReply            bool
	ThreadDepth        int
}

// MatchedKeywords flattens every keyword hit for reasoning_details.
func (s Signals) MatchedKeywords() []string {
	var out []string
	out = append(out, s.ActionRequiredHits...)
	out = append(out, s.UrgencyHits...)
	out = append(out, s.RequestHits...)
	out = append(out, s.FYIHits...)
	out = append(out, s.AutomatedHits...)
	return out
}

// Actionable reports the heuristic's directional read of the signal, used
// to decide whether an external analysis agrees with us.
func (s Signals) Actionable() bool {
	positive := len(s.ActionRequiredHits) + len(s.UrgencyHits) + len(s.RequestHits)
	if s.Deadline != nil {
		positive++
	}
	return positive > 0
}

// Scorer runs only when no rule matched. It scans fixed keyword categories,
// resolves relative deadline phrases against received_at, and derives
// sender/thread context.
type Scorer struct {
	knownSenderMin int
}

func NewScorer(knownSenderMin int) *Scorer {
	return &Scorer{knownSenderMin: knownSenderMin}
}

// Score derives the heuristic signal bundle. senderFrequency is the
// prior-interaction count supplied by the sender-stats store.
func (s *Scorer) Score(sig model.Signal, senderFrequency int) Signals {
	content := strings.ToLower(sig.Subject + " " + sig.BodyText)

	fyiHits := findKeywords(content, fyiKeywords)
	// Negations first: "no action needed" must not also score its
	// "action needed" substring as a positive hit.
	positive := content
	for _, hit := range fyiHits {
		positive = strings.ReplaceAll(positive, hit, " ")
	}

	out := Signals{
		ActionRequiredHits: findKeywords(positive, actionRequiredKeywords),
		UrgencyHits:        findKeywords(positive, urgencyKeywords),
		RequestHits:        findKeywords(positive, requestKeywords),
		FYIHits:            fyiHits,
		AutomatedHits:      findKeywords(content, automatedKeywords),
		SenderFrequency:    senderFrequency,
		KnownSender:        senderFrequency > s.knownSenderMin,
		IsReply:            sig.IsReply,
		ThreadDepth:        sig.ThreadDepth,
	}

	out.AutomatedSender = len(out.AutomatedHits) > 0 || automatedSender(sig.Sender)

	if due, phrase, ok := DetectDeadline(content, sig.ReceivedAt); ok {
		out.Deadline = &due
		out.DeadlinePhrase = phrase
	}

	return out
}

func findKeywords(content string, keywords []string) []string {
	var hits []string
	for _, kw := range keywords {
		if strings.Contains(content, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

func automatedSender(sender string) bool {
	for _, p := range automatedSenderPrefixes {
		if strings.HasPrefix(sender, p) {
			return true
		}
	}
	at := strings.LastIndex(sender, "@")
	if at < 0 {
		return false
	}
	domain := sender[at+1:]
	for _, d := range automatedSenderDomains {
		if strings.HasPrefix(domain, d) {
			return true
		}
	}
	return false
}
