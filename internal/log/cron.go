package log

// CronLogger adapts this package to the logger interface of
// github.com/robfig/cron/v3. Scheduler chatter goes to debug.
type CronLogger struct{}

func (CronLogger) Info(msg string, kv ...any) {
	Debug("cron: "+msg, kv...)
}

func (CronLogger) Error(err error, msg string, kv ...any) {
	Error("cron: "+msg, err, kv...)
}
