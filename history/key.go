package history

import "fmt"

// carKey is the shared-cache key format for a car's rolling lap window.
func carKey(eventID int64, car string) string {
	return fmt.Sprintf("carLapHistory:%d:%s", eventID, car)
}
