package notify

import "go.uber.org/zap"

// LogNotifier writes alerts to the log. Chat channels hang off the same
// interface; trading logic never learns whether a notification landed.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(message string) {
	n.logger.Info("ALERT", zap.String("message", message))
}
