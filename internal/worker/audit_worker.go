package worker

// EventSubscriber attaches its handlers to the event dispatcher.
type EventSubscriber interface {
	RegisterHandlers()
}

// StartAuditWorker registers audit handlers on the event dispatcher.
func StartAuditWorker(subscriber EventSubscriber) {
	if subscriber == nil {
		return
	}
	subscriber.RegisterHandlers()
}
