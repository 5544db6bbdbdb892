package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// HealthEntry is one journal entry written by a user.
type HealthEntry struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      bson.ObjectID `bson:"user_id"       json:"userId"`
	EntryText   string        `bson:"entry_text"    json:"entryText"`
	MoodScore   float64       `bson:"mood_score"    json:"moodScore"`
	EnergyScore float64       `bson:"energy_score"  json:"energyScore"`
	SleepHours  float64       `bson:"sleep_hours"   json:"sleepHours"`
	Steps       *int64        `bson:"steps,omitempty" json:"steps,omitempty"`
	CreatedAt   time.Time     `bson:"created_at"    json:"createdAt"`
	UpdatedAt   time.Time     `bson:"updated_at"    json:"updatedAt"`
}
