package redisrepo

import "fmt"

const ns = "classgo:v1"

func KeySessionSummary(sessionID int64) string {
	return fmt.Sprintf("%s:session:%d:summary", ns, sessionID)
}

func KeySessionAvailability(sessionID int64) string {
	return fmt.Sprintf("%s:session:%d:availability", ns, sessionID)
}

func KeySessionSeatMap(sessionID int64) string {
	return fmt.Sprintf("%s:session:%d:seatmap", ns, sessionID)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func KeyIdemReserve(assignmentID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:reserve:%d:%s", ns, assignmentID, idemKey)
}

func ChannelSessionsChanged() string {
	return ns + ":sessions:changed"
}
