package model

import (
	"time"

	"github.com/google/uuid"
)

// The types below are read models over tables owned by the main exam backend.
// This service never writes them — it only needs assignment eligibility,
// simulation timing/access mode, roster composition and final results.

// AssignmentStatus enumerates assignment lifecycle states.
type AssignmentStatus string

const (
	AssignmentStatusActive AssignmentStatus = "ACTIVE"
	AssignmentStatusClosed AssignmentStatus = "CLOSED"
)

// AccessMode controls how students enter a simulation.
type AccessMode string

const (
	// AccessModeSupervised requires a live virtual room with staff supervision.
	AccessModeSupervised AccessMode = "SUPERVISED"
	// AccessModeFree lets students start on their own; no room is ever opened.
	AccessModeFree AccessMode = "FREE"
)

// Assignment pairs a simulation with either a single student or a group.
type Assignment struct {
	ID           uuid.UUID        `json:"id"`
	SimulationID uuid.UUID        `json:"simulation_id"`
	Status       AssignmentStatus `json:"status"`
	StudentID    *int             `json:"student_id,omitempty"`
	GroupID      *uuid.UUID       `json:"group_id,omitempty"`
	StartDate    *time.Time       `json:"start_date,omitempty"`
	EndDate      *time.Time       `json:"end_date,omitempty"`
}

// Simulation is the exam definition an assignment points at.
type Simulation struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	AccessMode      AccessMode `json:"access_mode"`
	DurationMinutes int        `json:"duration_minutes"`
	QuestionCount   int        `json:"question_count"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
}

// StudentRef is the minimal student identity the room engine needs.
type StudentRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Result is the external scorer's record linked via Participant.ResultID.
type Result struct {
	ID    uuid.UUID `json:"id"`
	Score float64   `json:"score"`
}
