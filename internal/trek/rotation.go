package trek

// NextAdder returns the participant following mostRecentAdderID in the cyclic
// join order. Participants must be sorted by join time. If the most recent
// adder is unknown (e.g. removed from the trek) the first participant is next.
func NextAdder(mostRecentAdderID string, participants []Participant) string {
	if len(participants) == 0 {
		return ""
	}
	for i, p := range participants {
		if p.UserID == mostRecentAdderID {
			return participants[(i+1)%len(participants)].UserID
		}
	}
	return participants[0].UserID
}

// nextAdderForLegs resolves who may add the next leg given the trek's leg
// history: the first participant when no leg exists, otherwise the cyclic
// successor of the latest leg's creator.
func nextAdderForLegs(legs []Leg, participants []Participant) string {
	if len(participants) == 0 {
		return ""
	}
	if len(legs) == 0 {
		return participants[0].UserID
	}
	return NextAdder(legs[len(legs)-1].AddedBy, participants)
}
