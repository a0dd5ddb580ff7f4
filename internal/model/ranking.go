package model

import "github.com/google/uuid"

// RankingRow is the raw joined row the ranking query yields: participant,
// real student identity, stored anonymous token and the linked result score.
// Anonymization happens when shaping output, never in storage.
type RankingRow struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	StudentID     int       `json:"student_id"`
	StudentName   string    `json:"student_name"`
	AnonymousID   string    `json:"anonymous_id"`
	Score         float64   `json:"score"`
}

// RankingEntry is one shaped leaderboard row as returned to a requester.
type RankingEntry struct {
	Position    int     `json:"position"`
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
	IsSelf      bool    `json:"is_self,omitempty"`
}
