package models

import "time"

// PatternGroups holds the five categorised pattern lists the analyst model
// is asked to produce.
type PatternGroups struct {
	Emotional    []string `bson:"emotional" json:"emotional"`
	Behavioral   []string `bson:"behavioral" json:"behavioral"`
	Thinking     []string `bson:"thinking" json:"thinking"`
	Relationship []string `bson:"relationship" json:"relationship"`
	Themes       []string `bson:"themes" json:"themes"`
}

// Empty reports whether no category contains any entry.
func (p PatternGroups) Empty() bool {
	return len(p.Emotional) == 0 &&
		len(p.Behavioral) == 0 &&
		len(p.Thinking) == 0 &&
		len(p.Relationship) == 0 &&
		len(p.Themes) == 0
}

// PatternAnalysis is the append-only artifact produced by one pattern-analysis
// request. Multiple records per conversation are allowed; they accumulate.
type PatternAnalysis struct {
	ID              string        `bson:"_id" json:"id"`
	ConversationID  string        `bson:"conversation_id" json:"conversationId"`
	Patterns        PatternGroups `bson:"patterns" json:"patterns"`
	Insights        string        `bson:"insights" json:"insights"`
	Recommendations string        `bson:"recommendations" json:"recommendations"`
	CreatedAt       time.Time     `bson:"created_at" json:"createdAt"`
}
