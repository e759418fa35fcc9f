package app

import (
	"sort"

	"live-quiz-service/internal/domain"
)

const (
	correctPoints   = 1000
	pointsPerSecond = 10
)

// scoreAnswer grades a submission for question q at index. The reported time
// left is clamped to the question window so clients cannot inflate the bonus.
func scoreAnswer(q domain.Question, index int, sub domain.AnswerSubmission) domain.AnswerRecord {
	limit := q.Limit()
	timeLeft := sub.TimeLeft
	if timeLeft < 0 {
		timeLeft = 0
	}
	if timeLeft > limit {
		timeLeft = limit
	}

	record := domain.AnswerRecord{
		QuestionIndex: index,
		AnswerIndex:   sub.AnswerIndex,
		IsCorrect:     sub.AnswerIndex == q.CorrectAnswer,
		TimeTaken:     limit - timeLeft,
	}
	if record.IsCorrect {
		record.Points = correctPoints + pointsPerSecond*timeLeft
	}
	return record
}

// Rank orders players by score, highest first. Ties keep join order.
// A limit <= 0 returns the full ranking.
func Rank(players []domain.Player, limit int) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, domain.LeaderboardEntry{Nickname: p.Nickname, Score: p.Score})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
