package internal

import (
	"log"
	"os"
)

func NewLogger(component string) *log.Logger {
	prefix := "achievibit"
	if component != "" {
		prefix = prefix + "/" + component
	}
	return log.New(os.Stdout, prefix+" ", log.LstdFlags|log.Lmicroseconds)
}

// WithRequestID returns a copy of logger that tags every line with id.
func WithRequestID(logger *log.Logger, id string) *log.Logger {
	if logger == nil {
		logger = NewLogger("")
	}
	if id == "" {
		return logger
	}
	return log.New(logger.Writer(), logger.Prefix()+"request_id="+id+" ", logger.Flags())
}
