package domain

const (
	EventNameSessionStarted     = "session.started"
	EventNameSessionCompleted   = "session.completed"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventSessionStarted struct {
	State SessionState
}

func (EventSessionStarted) Name() string { return EventNameSessionStarted }

type EventSessionCompleted struct {
	State  SessionState
	Reason CompletionReason
}

func (EventSessionCompleted) Name() string { return EventNameSessionCompleted }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
