package notifier

import "context"

// NoOpNotifier drops every message.
type NoOpNotifier struct{}

func NewNoOpNotifier() *NoOpNotifier { return &NoOpNotifier{} }

func (n *NoOpNotifier) NotifyChange(context.Context, *Message) error { return nil }
