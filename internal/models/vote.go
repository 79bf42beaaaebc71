package models

import "strconv"

// VoteUnknown is the "?" card: a valid vote with no numeric value.
const VoteUnknown = "?"

// VoteValues is the closed set of castable card values.
var VoteValues = []string{"0", "1", "2", "3", "5", "8", "13", "20", "35", "50", "100", VoteUnknown}

func IsValidVote(value string) bool {
	for _, v := range VoteValues {
		if v == value {
			return true
		}
	}
	return false
}

// NumericVote returns the numeric value of a card. The "?" card reports
// ok=false and is excluded from min/max computations.
func NumericVote(value string) (int, bool) {
	if value == VoteUnknown {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}
