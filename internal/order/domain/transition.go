package domain

var statusTransitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusFailed},
	StatusPaid:    {StatusRefunded},
}

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryPending:    {DeliveryProcessing},
	DeliveryProcessing: {DeliveryCompleted, DeliveryFailed},
}

// CanTransition reports whether status may move from one value to another.
// Nothing ever returns to pending.
func CanTransition(from, to Status) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanAdvanceDelivery reports whether delivery may move forward. Callers must
// also hold status = paid.
func CanAdvanceDelivery(from, to DeliveryStatus) bool {
	for _, next := range deliveryTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
