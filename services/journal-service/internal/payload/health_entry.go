package payload

import "github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/usecase"

type CreateHealthEntryRequest struct {
	EntryText   string   `json:"entryText"`
	MoodScore   *float64 `json:"moodScore"`
	EnergyScore *float64 `json:"energyScore"`
	SleepHours  *float64 `json:"sleepHours"`
	Steps       *int64   `json:"steps,omitempty"`
}

func (r CreateHealthEntryRequest) Params() usecase.CreateEntryParams {
	return usecase.CreateEntryParams{
		EntryText:   r.EntryText,
		MoodScore:   r.MoodScore,
		EnergyScore: r.EnergyScore,
		SleepHours:  r.SleepHours,
		Steps:       r.Steps,
	}
}
